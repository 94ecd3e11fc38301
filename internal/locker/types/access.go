package types

import (
	"strings"
	"time"

	"github.com/facelocker/server/internal/biometric"
)

type Action string

const (
	ActionUnlock  Action = "unlock"
	ActionLock    Action = "lock"
	ActionOccupy  Action = "occupy"
	ActionRelease Action = "release"
)

// ParseAction accepts the lower-case action names, ignoring surrounding
// whitespace and case.
func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionUnlock, ActionLock, ActionOccupy, ActionRelease:
		return a, true
	}
	return "", false
}

// Reasons recorded on access log entries and returned to callers.
const (
	ReasonGranted           = "granted"
	ReasonFaceMismatch      = "face_mismatch"
	ReasonNotEnrolled       = "not_enrolled"
	ReasonDimensionMismatch = "dimension_mismatch"
	ReasonInvalidVector     = "invalid_vector"
	ReasonTooManyAttempts   = "too_many_attempts"
	ReasonLockerNotFound    = "locker_not_found"
	ReasonPermissionDenied  = "permission_denied"
	ReasonAlreadyOccupied   = "already_occupied"
	ReasonNotOccupied       = "not_occupied"
	ReasonAlreadyLocked     = "already_locked"
	ReasonAlreadyUnlocked   = "already_unlocked"
	ReasonInternalError     = "internal_error"
)

// AccessLogEntry is one authorization attempt. Entries are append-only.
type AccessLogEntry struct {
	ID           string    `json:"id"`
	IdentityID   string    `json:"identity_id,omitempty"` // empty = unknown actor
	LockerNumber int       `json:"locker_number"`
	Action       Action    `json:"action"`
	Success      bool      `json:"success"`
	Reason       string    `json:"reason"`
	Confidence   *int      `json:"confidence,omitempty"` // 0-100; nil when never computed
	OccurredAt   time.Time `json:"occurred_at"`
}

// ActionRequest asks for a locker transition on behalf of a claimed identity.
// A negative Tolerance selects the configured default.
type ActionRequest struct {
	LockerNumber int
	IdentityID   string
	Vector       biometric.FeatureVector
	Action       Action
	Tolerance    float64
}

// ActionOutcome is the decision for one ActionRequest. Locker is the state
// after a granted transition, or the unchanged state when the locker exists
// and the request was refused.
type ActionOutcome struct {
	Granted      bool    `json:"granted"`
	Verified     bool    `json:"verified"`
	Reason       string  `json:"reason"`
	IdentityID   string  `json:"identity_id"`
	LockerNumber int     `json:"locker_number"`
	Action       Action  `json:"action"`
	Confidence   float64 `json:"confidence"`
	Locker       *Locker `json:"locker,omitempty"`
	EntryID      string  `json:"entry_id,omitempty"`
	ServerTime   string  `json:"server_time"`
}

type VerificationResult struct {
	IdentityID string  `json:"identity_id"`
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
}

type Identification struct {
	IdentityID string  `json:"identity_id,omitempty"`
	Found      bool    `json:"found"`
	Confidence float64 `json:"confidence"`
}
