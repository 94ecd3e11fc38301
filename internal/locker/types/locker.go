package types

import (
	"time"

	"github.com/facelocker/server/internal/biometric"
)

// Locker is the lock/occupancy state of one physical unit.
type Locker struct {
	Number       int        `json:"number"`
	Occupied     bool       `json:"occupied"`
	Locked       bool       `json:"locked"`
	Occupant     string     `json:"occupant,omitempty"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

// NewLocker returns a locker in its provisioned state: locked and empty.
func NewLocker(number int) Locker {
	return Locker{Number: number, Locked: true}
}

// Identity is an enrolled subject with its single active vector.
type Identity struct {
	ID         string                  `json:"identity_id"`
	Vector     biometric.FeatureVector `json:"-"`
	ImageRef   string                  `json:"image_ref,omitempty"`
	EnrolledAt time.Time               `json:"enrolled_at"`
}
