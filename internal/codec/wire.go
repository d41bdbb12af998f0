package codec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrTruncated is returned when an EventArray payload ends mid-field.
var ErrTruncated = errors.New("truncated event array")

// Header mirrors the message header that accompanies every buffer.
type Header struct {
	StampNs int64
	FrameID string
}

// EventArray is one buffer of packed camera events together with the
// sensor geometry and the name of the encoding used for Events.
type EventArray struct {
	Header   Header
	Seq      uint64
	Width    uint32
	Height   uint32
	Encoding string
	TimeBase uint64
	Events   []byte
}

// Field numbers of the protobuf-compatible wire layout.
const (
	fieldHeader   protowire.Number = 1
	fieldWidth    protowire.Number = 2
	fieldHeight   protowire.Number = 3
	fieldEncoding protowire.Number = 4
	fieldTimeBase protowire.Number = 5
	fieldSeq      protowire.Number = 6
	fieldEvents   protowire.Number = 7

	fieldHeaderStamp   protowire.Number = 1
	fieldHeaderFrameID protowire.Number = 2
)

// MarshalEventArray encodes a in protobuf wire format. Zero-valued scalar
// fields are omitted, matching proto3 semantics.
func MarshalEventArray(a *EventArray) []byte {
	hdr := MarshalHeader(a.Header)
	b := make([]byte, 0, len(a.Events)+len(hdr)+64)
	if len(hdr) > 0 {
		b = protowire.AppendTag(b, fieldHeader, protowire.BytesType)
		b = protowire.AppendBytes(b, hdr)
	}
	b = appendVarintField(b, fieldWidth, uint64(a.Width))
	b = appendVarintField(b, fieldHeight, uint64(a.Height))
	if a.Encoding != "" {
		b = protowire.AppendTag(b, fieldEncoding, protowire.BytesType)
		b = protowire.AppendString(b, a.Encoding)
	}
	b = appendVarintField(b, fieldTimeBase, a.TimeBase)
	b = appendVarintField(b, fieldSeq, a.Seq)
	if len(a.Events) > 0 {
		b = protowire.AppendTag(b, fieldEvents, protowire.BytesType)
		b = protowire.AppendBytes(b, a.Events)
	}
	return b
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// UnmarshalEventArray decodes a buffer produced by MarshalEventArray.
// Unknown fields are skipped. The returned Events slice is a copy.
func UnmarshalEventArray(b []byte) (*EventArray, error) {
	a := &EventArray{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldHeader && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: header: %v", ErrTruncated, protowire.ParseError(n))
			}
			if err := UnmarshalHeader(v, &a.Header); err != nil {
				return nil, err
			}
			b = b[n:]
		case num == fieldEncoding && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: encoding: %v", ErrTruncated, protowire.ParseError(n))
			}
			a.Encoding = v
			b = b[n:]
		case num == fieldEvents && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: events: %v", ErrTruncated, protowire.ParseError(n))
			}
			a.Events = append([]byte(nil), v...)
			b = b[n:]
		case typ == protowire.VarintType && num >= fieldWidth && num <= fieldSeq:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrTruncated, num, protowire.ParseError(n))
			}
			switch num {
			case fieldWidth:
				a.Width = uint32(v)
			case fieldHeight:
				a.Height = uint32(v)
			case fieldTimeBase:
				a.TimeBase = v
			case fieldSeq:
				a.Seq = v
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrTruncated, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return a, nil
}

// MarshalHeader encodes h as an embedded header message. It returns nil
// for a zero header.
func MarshalHeader(h Header) []byte {
	var b []byte
	if h.StampNs != 0 {
		b = protowire.AppendTag(b, fieldHeaderStamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(h.StampNs))
	}
	if h.FrameID != "" {
		b = protowire.AppendTag(b, fieldHeaderFrameID, protowire.BytesType)
		b = protowire.AppendString(b, h.FrameID)
	}
	return b
}

// UnmarshalHeader decodes a header message into h.
func UnmarshalHeader(b []byte, h *Header) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: header tag: %v", ErrTruncated, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldHeaderStamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: header stamp: %v", ErrTruncated, protowire.ParseError(n))
			}
			h.StampNs = int64(v)
			b = b[n:]
		case num == fieldHeaderFrameID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("%w: header frame id: %v", ErrTruncated, protowire.ParseError(n))
			}
			h.FrameID = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: header field %d: %v", ErrTruncated, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}
