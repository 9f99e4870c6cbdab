package checkpoints

import (
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the checkpoint wire message. Numbers are never reused.
const (
	fieldVersion         protowire.Number = 1
	fieldFramework       protowire.Number = 2
	fieldCreatedAt       protowire.Number = 3 // unix nanoseconds
	fieldDescription     protowire.Number = 4
	fieldSource          protowire.Number = 5
	fieldSeed            protowire.Number = 6 // zigzag
	fieldShuffle         protowire.Number = 7
	fieldCursor          protowire.Number = 8
	fieldPasses          protowire.Number = 9
	fieldIndices         protowire.Number = 10 // packed
	fieldBatchesConsumed protowire.Number = 11
)

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func marshalWire(cp *Checkpoint) []byte {
	var b []byte
	b = appendString(b, fieldVersion, cp.Metadata.Version)
	b = appendString(b, fieldFramework, cp.Metadata.Framework)
	if !cp.Metadata.CreatedAt.IsZero() {
		b = appendVarint(b, fieldCreatedAt, protowire.EncodeZigZag(cp.Metadata.CreatedAt.UnixNano()))
	}
	b = appendString(b, fieldDescription, cp.Metadata.Description)
	b = appendString(b, fieldSource, cp.Source)
	b = appendVarint(b, fieldSeed, protowire.EncodeZigZag(cp.Seed))
	b = appendVarint(b, fieldShuffle, protowire.EncodeBool(cp.Shuffle))
	b = appendVarint(b, fieldCursor, uint64(cp.Cursor))
	b = appendVarint(b, fieldPasses, uint64(cp.Passes))

	if len(cp.Indices) > 0 {
		var packed []byte
		for _, idx := range cp.Indices {
			packed = protowire.AppendVarint(packed, uint64(idx))
		}
		b = protowire.AppendTag(b, fieldIndices, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}

	b = appendVarint(b, fieldBatchesConsumed, cp.BatchesConsumed)
	return b
}

func unmarshalWire(data []byte) (*Checkpoint, error) {
	cp := &Checkpoint{}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "bad tag")
		}
		data = data[n:]

		switch num {
		case fieldVersion, fieldFramework, fieldDescription, fieldSource:
			if typ != protowire.BytesType {
				return nil, errors.Errorf("field %d: unexpected wire type %d", num, typ)
			}
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, errors.Wrapf(protowire.ParseError(n), "field %d", num)
			}
			data = data[n:]
			switch num {
			case fieldVersion:
				cp.Metadata.Version = s
			case fieldFramework:
				cp.Metadata.Framework = s
			case fieldDescription:
				cp.Metadata.Description = s
			case fieldSource:
				cp.Source = s
			}

		case fieldCreatedAt, fieldSeed, fieldShuffle, fieldCursor, fieldPasses, fieldBatchesConsumed:
			if typ != protowire.VarintType {
				return nil, errors.Errorf("field %d: unexpected wire type %d", num, typ)
			}
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.Wrapf(protowire.ParseError(n), "field %d", num)
			}
			data = data[n:]
			switch num {
			case fieldCreatedAt:
				cp.Metadata.CreatedAt = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
			case fieldSeed:
				cp.Seed = protowire.DecodeZigZag(v)
			case fieldShuffle:
				cp.Shuffle = protowire.DecodeBool(v)
			case fieldCursor:
				cp.Cursor = int(v)
			case fieldPasses:
				cp.Passes = int(v)
			case fieldBatchesConsumed:
				cp.BatchesConsumed = v
			}

		case fieldIndices:
			switch typ {
			case protowire.BytesType:
				packed, n := protowire.ConsumeBytes(data)
				if n < 0 {
					return nil, errors.Wrapf(protowire.ParseError(n), "field %d", num)
				}
				data = data[n:]
				for len(packed) > 0 {
					v, m := protowire.ConsumeVarint(packed)
					if m < 0 {
						return nil, errors.Wrap(protowire.ParseError(m), "packed indices")
					}
					packed = packed[m:]
					cp.Indices = append(cp.Indices, int(v))
				}
			case protowire.VarintType:
				// unpacked encoding is also valid for repeated scalars
				v, n := protowire.ConsumeVarint(data)
				if n < 0 {
					return nil, errors.Wrapf(protowire.ParseError(n), "field %d", num)
				}
				data = data[n:]
				cp.Indices = append(cp.Indices, int(v))
			default:
				return nil, errors.Errorf("field %d: unexpected wire type %d", num, typ)
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.Wrapf(protowire.ParseError(n), "unknown field %d", num)
			}
			data = data[n:]
		}
	}

	return cp, nil
}
