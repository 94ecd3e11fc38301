// Package biometric holds the face feature vector type and the distance
// based matching used to compare a presented face with enrolled ones.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// DefaultDimensions is the length of the vectors produced by the reference
// extractor.
const DefaultDimensions = 128

var (
	ErrDimensionMismatch = errors.New("feature vector has wrong dimensionality")
	ErrNoFaceDetected    = errors.New("no face detected in image")
	ErrNonFinite         = errors.New("feature vector has a non-finite component")
)

// FeatureVector is one face embedding. Values are never mutated after they
// leave the extractor; code that stores a vector keeps its own Clone.
type FeatureVector []float64

// Clone returns an independent copy of v.
func (v FeatureVector) Clone() FeatureVector {
	if v == nil {
		return nil
	}
	out := make(FeatureVector, len(v))
	copy(out, v)
	return out
}

// CheckDimensions reports ErrDimensionMismatch when v does not have exactly
// dims components.
func (v FeatureVector) CheckDimensions(dims int) error {
	if len(v) != dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dims)
	}
	return nil
}

// Validate checks dimensionality and rejects NaN or infinite components,
// which would otherwise compare as neither closer nor farther than any
// other vector.
func (v FeatureVector) Validate(dims int) error {
	if err := v.CheckDimensions(dims); err != nil {
		return err
	}
	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrNonFinite, i, f)
		}
	}
	return nil
}

// Extractor turns raw image bytes into the feature vector of the first face
// found. Implementations return ErrNoFaceDetected when the image has none.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (FeatureVector, error)
}
