package recorder

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/banshee-data/evrecon/internal/codec"
	"github.com/banshee-data/evrecon/internal/recon"
)

var errBadRecord = errors.New("malformed frame record")

// Frame record fields. The layout follows an image message: header,
// height, width, encoding, is_bigendian, step, data, plus seq.
const (
	fieldHeader      protowire.Number = 1
	fieldHeight      protowire.Number = 2
	fieldWidth       protowire.Number = 3
	fieldEncoding    protowire.Number = 4
	fieldIsBigEndian protowire.Number = 5
	fieldStep        protowire.Number = 6
	fieldData        protowire.Number = 7
	fieldSeq         protowire.Number = 8
)

func serializeFrame(f *recon.Frame) []byte {
	b := make([]byte, 0, len(f.Data)+64)
	if hdr := codec.MarshalHeader(f.Header); len(hdr) > 0 {
		b = protowire.AppendTag(b, fieldHeader, protowire.BytesType)
		b = protowire.AppendBytes(b, hdr)
	}
	b = appendVarint(b, fieldHeight, uint64(f.Height))
	b = appendVarint(b, fieldWidth, uint64(f.Width))
	if f.Encoding != "" {
		b = protowire.AppendTag(b, fieldEncoding, protowire.BytesType)
		b = protowire.AppendString(b, f.Encoding)
	}
	if f.IsBigEndian {
		b = appendVarint(b, fieldIsBigEndian, 1)
	}
	b = appendVarint(b, fieldStep, uint64(f.Step))
	if len(f.Data) > 0 {
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Data)
	}
	b = appendVarint(b, fieldSeq, f.Seq)
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func deserializeFrame(b []byte) (*recon.Frame, error) {
	f := &recon.Frame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errBadRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == fieldHeader || num == fieldEncoding || num == fieldData):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", errBadRecord, num, protowire.ParseError(n))
			}
			switch num {
			case fieldHeader:
				if err := codec.UnmarshalHeader(v, &f.Header); err != nil {
					return nil, err
				}
			case fieldEncoding:
				f.Encoding = string(v)
			case fieldData:
				f.Data = append([]byte(nil), v...)
			}
			b = b[n:]
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", errBadRecord, num, protowire.ParseError(n))
			}
			switch num {
			case fieldHeight:
				f.Height = uint32(v)
			case fieldWidth:
				f.Width = uint32(v)
			case fieldIsBigEndian:
				f.IsBigEndian = v != 0
			case fieldStep:
				f.Step = uint32(v)
			case fieldSeq:
				f.Seq = v
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", errBadRecord, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return f, nil
}
