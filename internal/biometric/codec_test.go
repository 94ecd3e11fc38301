package biometric_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/facelocker/server/internal/biometric"
)

func TestCodec_PreservesExactBits(t *testing.T) {
	v := vec(0.1, -0.0, math.SmallestNonzeroFloat64, -123.456, 1e300)
	b, err := v.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	got, err := biometric.DecodeVector(b)
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if len(got) != len(v) {
		t.Fatalf("expected %d components, got %d", len(v), len(got))
	}
	for i := range v {
		if math.Float64bits(got[i]) != math.Float64bits(v[i]) {
			t.Errorf("component %d: got %v want %v", i, got[i], v[i])
		}
	}
}

func TestCodec_RejectsUnknownVersion(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	_, err := biometric.DecodeVector(b)
	if !errors.Is(err, biometric.ErrBadEncoding) {
		t.Fatalf("expected ErrBadEncoding, got %v", err)
	}
}

func TestCodec_RejectsMissingVersion(t *testing.T) {
	_, err := biometric.DecodeVector(nil)
	if !errors.Is(err, biometric.ErrBadEncoding) {
		t.Fatalf("expected ErrBadEncoding, got %v", err)
	}
}

func TestCodec_RejectsTruncated(t *testing.T) {
	b, _ := vec(1, 2, 3).MarshalBinary()
	_, err := biometric.DecodeVector(b[:len(b)-3])
	if !errors.Is(err, biometric.ErrBadEncoding) {
		t.Fatalf("expected ErrBadEncoding, got %v", err)
	}
}

func TestCodec_SkipsUnknownFieldsAndAcceptsUnpacked(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("extractor=dlib"))
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	for _, f := range []float64{0.25, -0.75} {
		b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(f))
	}

	got, err := biometric.DecodeVector(b)
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if !slices.Equal(got, vec(0.25, -0.75)) {
		t.Errorf("unexpected vector %v", got)
	}
}
