package biometric

import (
	"fmt"
	"iter"
	"math"
)

// DefaultTolerance is the distance threshold calibrated for the reference
// extractor. Lower is stricter.
const DefaultTolerance = 0.6

// Distance is the Euclidean distance between a and b. Callers must validate
// dimensionality first; mismatched lengths are a programming error.
func Distance(a, b FeatureVector) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("biometric: distance between vectors of length %d and %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// IsMatch reports whether unknown is within tolerance of known.
func IsMatch(known, unknown FeatureVector, tolerance float64) bool {
	return Distance(known, unknown) <= tolerance
}

// Confidence converts a distance into a 0-100 score, (1 - distance) * 100
// rounded to the nearest integer.
func Confidence(distance float64) float64 {
	c := math.Round((1 - distance) * 100)
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// Match is the result of comparing a vector against a candidate set.
type Match struct {
	ID         string
	Found      bool
	Distance   float64
	Confidence float64
}

// BestMatch returns the candidate closest to unknown. Candidates are visited
// in the order the sequence yields them and the first one wins on equal
// distance. When the closest candidate is farther than tolerance, or there
// are no candidates, the result has Found=false and zero confidence.
func BestMatch(unknown FeatureVector, candidates iter.Seq2[string, FeatureVector], tolerance float64) Match {
	var (
		bestID   string
		bestDist = math.Inf(1)
		seen     bool
	)
	for id, vec := range candidates {
		d := Distance(vec, unknown)
		if math.IsNaN(d) {
			continue
		}
		if !seen || d < bestDist {
			bestID, bestDist, seen = id, d, true
		}
	}

	// Negated so a NaN tolerance never counts as a match.
	if !seen || !(bestDist <= tolerance) {
		return Match{}
	}
	return Match{
		ID:         bestID,
		Found:      true,
		Distance:   bestDist,
		Confidence: Confidence(bestDist),
	}
}

// Matcher binds a tolerance to the comparison functions.
type Matcher struct {
	Tolerance float64
}

// NewMatcher returns a Matcher using tolerance, or DefaultTolerance when
// tolerance is negative or NaN.
func NewMatcher(tolerance float64) Matcher {
	if tolerance < 0 || math.IsNaN(tolerance) {
		tolerance = DefaultTolerance
	}
	return Matcher{Tolerance: tolerance}
}

func (m Matcher) IsMatch(known, unknown FeatureVector) bool {
	return IsMatch(known, unknown, m.Tolerance)
}

func (m Matcher) BestMatch(unknown FeatureVector, candidates iter.Seq2[string, FeatureVector]) Match {
	return BestMatch(unknown, candidates, m.Tolerance)
}
