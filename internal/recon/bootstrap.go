package recon

import "github.com/banshee-data/evrecon/internal/codec"

// firstStampProcessor captures the time of the first CD event and ignores
// everything else.
type firstStampProcessor struct {
	stamp uint64
	found bool
}

func (p *firstStampProcessor) EventCD(t uint64, _, _ uint16, _ uint8) {
	if !p.found {
		p.stamp = t
		p.found = true
	}
}

func (p *firstStampProcessor) EventExtTrigger(uint64, uint8, uint8) {}
func (p *firstStampProcessor) Finished()                            {}
func (p *firstStampProcessor) RawData([]byte)                       {}

// firstTimestamp decodes buf in full with a throwaway decoder and returns
// the first event time. found is false when the buffer has no CD events,
// in which case the stamp is 0. The decoder should not be reused.
func firstTimestamp(dec codec.Decoder, buf *codec.EventArray) (stamp uint64, found bool) {
	if tb, ok := dec.(codec.TimeBaseSetter); ok {
		tb.SetTimeBase(buf.TimeBase)
	}
	var p firstStampProcessor
	dec.Decode(buf.Events, &p)
	return p.stamp, p.found
}
