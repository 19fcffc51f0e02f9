package repositories

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored as protobuf wire messages built field by field.
// Field numbers are part of the on-disk format: never renumber them.

type recordWriter struct {
	buf []byte
}

func (w *recordWriter) str(num protowire.Number, v string) {
	if v == "" {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendString(w.buf, v)
}

func (w *recordWriter) blob(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, v)
}

func (w *recordWriter) varint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.VarintType)
	w.buf = protowire.AppendVarint(w.buf, v)
}

func (w *recordWriter) timestamp(num protowire.Number, v time.Time) {
	if v.IsZero() {
		return
	}
	w.varint(num, uint64(v.UnixNano()))
}

// record is a decoded wire message. Unknown fields are skipped so that
// older binaries can read records written by newer ones.
type record struct {
	varints map[protowire.Number]uint64
	blobs   map[protowire.Number][]byte
}

func decodeRecord(b []byte) (record, error) {
	r := record{
		varints: make(map[protowire.Number]uint64),
		blobs:   make(map[protowire.Number][]byte),
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return record{}, fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return record{}, fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			r.varints[num] = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return record{}, fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			r.blobs[num] = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return record{}, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

func (r record) str(num protowire.Number) string {
	return string(r.blobs[num])
}

func (r record) blob(num protowire.Number) []byte {
	return r.blobs[num]
}

func (r record) varint(num protowire.Number) uint64 {
	return r.varints[num]
}

func (r record) timestamp(num protowire.Number) time.Time {
	v, ok := r.varints[num]
	if !ok {
		return time.Time{}
	}
	return time.Unix(0, int64(v)).UTC()
}
