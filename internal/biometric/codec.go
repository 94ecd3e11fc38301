package biometric

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Vectors are encoded as a small protobuf message:
//
//	message FeatureVector {
//	  uint32 format     = 1;
//	  repeated double v = 2 [packed = true];
//	}
//
// Bumping encodingVersion is required for any incompatible layout change.
const (
	encodingVersion = 1

	fieldFormat     protowire.Number = 1
	fieldComponents protowire.Number = 2
)

var ErrBadEncoding = errors.New("malformed feature vector encoding")

// MarshalBinary encodes v in the versioned wire format.
func (v FeatureVector) MarshalBinary() ([]byte, error) {
	packed := make([]byte, 0, len(v)*8)
	for _, f := range v {
		packed = protowire.AppendFixed64(packed, math.Float64bits(f))
	}

	b := make([]byte, 0, len(packed)+16)
	b = protowire.AppendTag(b, fieldFormat, protowire.VarintType)
	b = protowire.AppendVarint(b, encodingVersion)
	b = protowire.AppendTag(b, fieldComponents, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)
	return b, nil
}

// UnmarshalBinary decodes data produced by MarshalBinary. Unknown fields are
// skipped; an unknown format version is rejected.
func (v *FeatureVector) UnmarshalBinary(data []byte) error {
	var (
		version uint64
		out     FeatureVector
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrBadEncoding, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldFormat && typ == protowire.VarintType:
			val, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrBadEncoding, protowire.ParseError(n))
			}
			version = val
			data = data[n:]

		case num == fieldComponents && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrBadEncoding, protowire.ParseError(n))
			}
			if len(packed)%8 != 0 {
				return fmt.Errorf("%w: packed length %d", ErrBadEncoding, len(packed))
			}
			for len(packed) > 0 {
				bits, m := protowire.ConsumeFixed64(packed)
				if m < 0 {
					return fmt.Errorf("%w: %v", ErrBadEncoding, protowire.ParseError(m))
				}
				out = append(out, math.Float64frombits(bits))
				packed = packed[m:]
			}
			data = data[n:]

		case num == fieldComponents && typ == protowire.Fixed64Type:
			// Unpacked repeated encoding, as some encoders emit.
			bits, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrBadEncoding, protowire.ParseError(n))
			}
			out = append(out, math.Float64frombits(bits))
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrBadEncoding, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if version != encodingVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrBadEncoding, version)
	}
	*v = out
	return nil
}

// DecodeVector is a convenience wrapper around UnmarshalBinary.
func DecodeVector(data []byte) (FeatureVector, error) {
	var v FeatureVector
	if err := v.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return v, nil
}
