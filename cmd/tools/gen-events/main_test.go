package main

import (
	"testing"

	"github.com/banshee-data/evrecon/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_DecodesAsOneStream(t *testing.T) {
	for _, enc := range []string{codec.EncodingMono, codec.EncodingEVT3} {
		t.Run(enc, func(t *testing.T) {
			o := genOptions{encoding: enc, width: 20, height: 10, startNs: 2_000_000_000,
				stepNs: 3_000_000, sweeps: 2, perPacket: 64, frameID: "cam1"}
			arrays, err := generate(o)
			require.NoError(t, err)
			require.Len(t, arrays, 20*10*2*2/64+1)

			dec, err := codec.NewDecoder(enc, 20, 10)
			require.NoError(t, err)
			var c codec.Collector
			var prevStamp int64
			for i, arr := range arrays {
				assert.Equal(t, uint64(i), arr.Seq)
				assert.Equal(t, "cam1", arr.Header.FrameID)
				assert.GreaterOrEqual(t, arr.Header.StampNs, prevStamp)
				prevStamp = arr.Header.StampNs
				if s, ok := dec.(codec.TimeBaseSetter); ok {
					s.SetTimeBase(arr.TimeBase)
				}
				dec.Decode(arr.Events, &c)
			}
			require.Len(t, c.Events, 20*10*2*2)
			assert.Equal(t, uint64(2_000_000_000), c.Events[0].T)
			last := c.Events[len(c.Events)-1].T
			assert.InDelta(t, float64(2_000_000_000+120_000_000), float64(last), 3_000_000)
		})
	}
}

func TestGenerate_Rejects(t *testing.T) {
	base := genOptions{encoding: codec.EncodingMono, width: 8, height: 8, stepNs: 1000, sweeps: 1, perPacket: 16}

	bad := base
	bad.encoding = "raw"
	_, err := generate(bad)
	assert.Error(t, err)

	bad = base
	bad.width = 0
	_, err = generate(bad)
	assert.Error(t, err)

	bad = base
	bad.perPacket = 100000
	_, err = generate(bad)
	assert.Error(t, err)
}
