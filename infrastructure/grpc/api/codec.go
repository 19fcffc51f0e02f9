// Package api declares the chatrelay.v1 gRPC services of
// proto/chatrelay/v1/chatrelay.proto: their messages, descriptors and
// clients. Messages travel in the protobuf wire format of that file, through
// the codec registered under the default "proto" content-subtype.
package api

import (
	"fmt"
	"time"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const CodecName = "proto"

func init() {
	encoding.RegisterCodec(Codec{})
}

// wireMarshaler and wireUnmarshaler are implemented by every chatrelay.v1
// message, by value and by pointer respectively.
type wireMarshaler interface {
	appendWire(w *wireWriter)
}

type wireUnmarshaler interface {
	readField(f wireField) error
}

// Codec encodes the chatrelay.v1 messages field by field and hands any
// other proto.Message to the protobuf runtime.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case wireMarshaler:
		w := &wireWriter{}
		m.appendWire(w)
		if w.err != nil {
			return nil, fmt.Errorf("proto marshal %T: %w", v, w.err)
		}
		return w.buf, nil
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("proto marshal: unsupported type %T", v)
	}
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case wireUnmarshaler:
		if err := unmarshalWire(data, m); err != nil {
			return fmt.Errorf("proto unmarshal %T: %w", v, err)
		}
		return nil
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("proto unmarshal: unsupported type %T", v)
	}
}

func (Codec) Name() string { return CodecName }

type wireWriter struct {
	buf []byte
	err error
}

func (w *wireWriter) str(num protowire.Number, v string) {
	if v == "" {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendString(w.buf, v)
}

func (w *wireWriter) varint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.VarintType)
	w.buf = protowire.AppendVarint(w.buf, v)
}

// signed writes an int32 field: negative values take ten bytes.
func (w *wireWriter) signed(num protowire.Number, v int) {
	w.varint(num, uint64(int64(int32(v))))
}

// time writes a google.protobuf.Timestamp, the zero time is left out.
func (w *wireWriter) time(num protowire.Number, v time.Time) {
	if v.IsZero() {
		return
	}
	b, err := proto.Marshal(timestamppb.New(v))
	if err != nil {
		w.err = err
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, b)
}

func (w *wireWriter) msg(num protowire.Number, m wireMarshaler) {
	sub := &wireWriter{}
	m.appendWire(sub)
	if sub.err != nil {
		w.err = sub.err
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, sub.buf)
}

// wireField is one decoded field. A field read with another wire type than
// the one it was written with comes out as its zero value.
type wireField struct {
	num    protowire.Number
	varint uint64
	bytes  []byte
}

func (f wireField) str() string { return string(f.bytes) }

func (f wireField) signed() int { return int(int32(f.varint)) }

func (f wireField) time() (time.Time, error) {
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(f.bytes, &ts); err != nil {
		return time.Time{}, fmt.Errorf("field %d: %w", f.num, err)
	}
	if err := ts.CheckValid(); err != nil {
		return time.Time{}, fmt.Errorf("field %d: %w", f.num, err)
	}
	return ts.AsTime(), nil
}

func (f wireField) msg(m wireUnmarshaler) error {
	if err := unmarshalWire(f.bytes, m); err != nil {
		return fmt.Errorf("field %d: %w", f.num, err)
	}
	return nil
}

// unmarshalWire feeds every varint and length-delimited field of b to m.
// Other wire types are skipped, as are fields m does not know.
func unmarshalWire(b []byte, m wireUnmarshaler) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		f := wireField{num: num}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := m.readField(f); err != nil {
			return err
		}
	}
	return nil
}
