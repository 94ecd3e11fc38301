package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/facelocker/server/internal/biometric"
	"github.com/facelocker/server/internal/locker/store"
	"github.com/facelocker/server/internal/locker/types"
)

// AccessPolicy carries the decision parameters of an AccessController.
type AccessPolicy struct {
	// Tolerance applies when a request passes a negative tolerance. It is
	// also the loosest tolerance AuthorizeAction accepts.
	Tolerance float64
	// Limiter is optional; nil disables failed-attempt throttling.
	Limiter AttemptLimiter
	// LogLimit caps AccessLog queries that do not set a limit.
	LogLimit int
}

// AccessController verifies faces against enrolled identities and drives
// locker transitions. Every AuthorizeAction that reaches the decision
// stage appends exactly one access log entry.
type AccessController struct {
	identities *IdentityRegistry
	lockers    *LockerRegistry
	events     store.AccessEventStore
	policy     AccessPolicy
	logger     *slog.Logger
}

// NewAccessController wires the registries and the audit store. A negative
// or NaN policy tolerance falls back to biometric.DefaultTolerance.
func NewAccessController(ids *IdentityRegistry, lockers *LockerRegistry, es store.AccessEventStore, policy AccessPolicy, logger *slog.Logger) *AccessController {
	if policy.Tolerance < 0 || math.IsNaN(policy.Tolerance) {
		policy.Tolerance = biometric.DefaultTolerance
	}
	if policy.LogLimit <= 0 {
		policy.LogLimit = store.DefaultEventLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessController{
		identities: ids,
		lockers:    lockers,
		events:     es,
		policy:     policy,
		logger:     logger,
	}
}

// DefaultTolerance reports the tolerance used when a request leaves it unset.
func (c *AccessController) DefaultTolerance() float64 { return c.policy.Tolerance }

func (c *AccessController) matcher(tolerance float64) biometric.Matcher {
	if tolerance < 0 || math.IsNaN(tolerance) {
		tolerance = c.policy.Tolerance
	}
	return biometric.NewMatcher(tolerance)
}

// actionTolerance lets a locker action tighten the policy tolerance but
// never loosen it.
func (c *AccessController) actionTolerance(requested float64) float64 {
	if requested < 0 || math.IsNaN(requested) {
		return c.policy.Tolerance
	}
	return min(requested, c.policy.Tolerance)
}

// ── Identities ───────────────────────────────────────────────────────────────

// Enroll registers or replaces the vector of identityID.
func (c *AccessController) Enroll(ctx context.Context, identityID string, vector biometric.FeatureVector, imageRef string) (types.Identity, error) {
	ident, err := c.identities.Enroll(ctx, identityID, vector, imageRef)
	if err != nil {
		return ident, err
	}
	c.logger.Info("identity enrolled", "identity_id", ident.ID)
	return ident, nil
}

// Unregister removes identityID. Its access log entries are kept.
func (c *AccessController) Unregister(ctx context.Context, identityID string) error {
	if err := c.identities.Remove(ctx, identityID); err != nil {
		return err
	}
	c.logger.Info("identity unregistered", "identity_id", strings.TrimSpace(identityID))
	return nil
}

// Identity returns the enrolled identity or ErrNotEnrolled.
func (c *AccessController) Identity(identityID string) (types.Identity, error) {
	id := strings.TrimSpace(identityID)
	if id == "" {
		return types.Identity{}, ErrInvalidIdentityID
	}
	ident, ok := c.identities.Get(id)
	if !ok {
		return types.Identity{}, fmt.Errorf("%w: %s", ErrNotEnrolled, id)
	}
	return ident, nil
}

// VerifyIdentity compares vector against the identity claimed by the
// caller. A mismatch is a result, not an error. Nothing is logged.
func (c *AccessController) VerifyIdentity(ctx context.Context, claimedID string, vector biometric.FeatureVector, tolerance float64) (types.VerificationResult, error) {
	id := strings.TrimSpace(claimedID)
	if id == "" {
		return types.VerificationResult{}, ErrInvalidIdentityID
	}
	if err := vector.Validate(c.identities.Dimensions()); err != nil {
		return types.VerificationResult{IdentityID: id}, err
	}
	ident, ok := c.identities.Get(id)
	if !ok {
		return types.VerificationResult{IdentityID: id}, fmt.Errorf("%w: %s", ErrNotEnrolled, id)
	}

	m := c.matcher(tolerance)
	d := biometric.Distance(ident.Vector, vector)
	return types.VerificationResult{
		IdentityID: id,
		Matched:    m.IsMatch(ident.Vector, vector),
		Confidence: biometric.Confidence(d),
		Distance:   d,
	}, nil
}

// Identify finds the enrolled identity closest to vector.
func (c *AccessController) Identify(ctx context.Context, vector biometric.FeatureVector, tolerance float64) (types.Identification, error) {
	if err := vector.Validate(c.identities.Dimensions()); err != nil {
		return types.Identification{}, err
	}
	m := c.matcher(tolerance).BestMatch(vector, c.identities.All())
	return types.Identification{
		IdentityID: m.ID,
		Found:      m.Found,
		Confidence: m.Confidence,
	}, nil
}

// ── Lockers ──────────────────────────────────────────────────────────────────

// Lockers returns every locker ordered by number.
func (c *AccessController) Lockers() []types.Locker { return c.lockers.List() }

// Locker returns one locker or ErrLockerNotFound.
func (c *AccessController) Locker(number int) (types.Locker, error) {
	l, ok := c.lockers.Get(number)
	if !ok {
		return types.Locker{}, fmt.Errorf("%w: %d", ErrLockerNotFound, number)
	}
	return l, nil
}

// AccessLog lists audit entries newest first, capped at the policy limit
// when q sets none.
func (c *AccessController) AccessLog(ctx context.Context, q store.AccessEventQuery) ([]types.AccessLogEntry, error) {
	if q.Limit <= 0 {
		q.Limit = c.policy.LogLimit
	}
	q.IdentityID = strings.TrimSpace(q.IdentityID)
	entries, err := c.events.ListEvents(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: list access events: %v", ErrInternalStore, err)
	}
	return entries, nil
}

// Status summarizes enrollment and locker occupancy.
type Status struct {
	Identities int `json:"identities"`
	Lockers    int `json:"lockers"`
	Occupied   int `json:"occupied"`
	Available  int `json:"available"`
	Locked     int `json:"locked"`
	Unlocked   int `json:"unlocked"`
}

// Status counts identities and lockers by state. The counts come from one
// pass over a snapshot, so Occupied+Available and Locked+Unlocked always
// equal Lockers.
func (c *AccessController) Status() Status {
	st := Status{Identities: c.identities.Len()}
	for _, l := range c.lockers.List() {
		st.Lockers++
		if l.Occupied {
			st.Occupied++
		} else {
			st.Available++
		}
		if l.Locked {
			st.Locked++
		} else {
			st.Unlocked++
		}
	}
	return st
}

// ── Authorization ────────────────────────────────────────────────────────────

// AuthorizeAction verifies the claimed identity and, on a match, applies
// the requested locker transition. A face mismatch yields Granted=false
// with a nil error; other refusals return the matching sentinel error along
// with the outcome. Requests without an identity or with an unknown action
// are rejected before any decision is made and are not logged. The request
// tolerance can only tighten the policy tolerance.
func (c *AccessController) AuthorizeAction(ctx context.Context, req types.ActionRequest) (types.ActionOutcome, error) {
	now := time.Now().UTC()

	id := strings.TrimSpace(req.IdentityID)
	if id == "" {
		return types.ActionOutcome{}, ErrInvalidIdentityID
	}
	action, ok := types.ParseAction(string(req.Action))
	if !ok {
		return types.ActionOutcome{}, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}

	out := types.ActionOutcome{
		IdentityID:   id,
		LockerNumber: req.LockerNumber,
		Action:       action,
		ServerTime:   now.Format(time.RFC3339Nano),
	}

	limiter := c.policy.Limiter
	if limiter != nil && !limiter.Allow(ctx, id) {
		return c.refuse(ctx, out, types.ReasonTooManyAttempts, nil, ErrTooManyAttempts)
	}

	res, err := c.VerifyIdentity(ctx, id, req.Vector, c.actionTolerance(req.Tolerance))
	switch {
	case errors.Is(err, ErrNotEnrolled):
		if limiter != nil {
			limiter.RecordFailure(context.WithoutCancel(ctx), id)
		}
		return c.refuse(ctx, out, types.ReasonNotEnrolled, intPtr(0), err)
	case errors.Is(err, biometric.ErrDimensionMismatch):
		return c.refuse(ctx, out, types.ReasonDimensionMismatch, nil, err)
	case errors.Is(err, biometric.ErrNonFinite):
		return c.refuse(ctx, out, types.ReasonInvalidVector, nil, err)
	case err != nil:
		return c.refuse(ctx, out, types.ReasonInternalError, nil, err)
	}

	out.Confidence = res.Confidence
	conf := intPtr(int(res.Confidence))
	if !res.Matched {
		if limiter != nil {
			limiter.RecordFailure(context.WithoutCancel(ctx), id)
		}
		return c.refuse(ctx, out, types.ReasonFaceMismatch, conf, nil)
	}
	out.Verified = true
	if limiter != nil {
		limiter.Reset(context.WithoutCancel(ctx), id)
	}

	l, err := c.lockers.Apply(ctx, action, req.LockerNumber, id)
	if err != nil && !errors.Is(err, ErrInternalStore) {
		if l.Number != 0 {
			out.Locker = &l
		}
		return c.refuse(ctx, out, transitionReason(err), conf, err)
	}

	// A persistence fault after the transition applied still grants: the
	// in-memory state is authoritative and the fault is surfaced below.
	storeErr := err
	out.Granted = true
	out.Reason = types.ReasonGranted
	out.Locker = &l

	entryID, err := c.record(ctx, out, true, conf, now)
	out.EntryID = entryID
	c.logger.Debug("access granted",
		"identity_id", id, "locker", req.LockerNumber, "action", action, "confidence", res.Confidence)
	return out, errors.Join(storeErr, err)
}

// refuse records a failed attempt and returns cause, joined with any audit
// write failure.
func (c *AccessController) refuse(ctx context.Context, out types.ActionOutcome, reason string, conf *int, cause error) (types.ActionOutcome, error) {
	out.Granted = false
	out.Reason = reason

	entryID, err := c.record(ctx, out, false, conf, time.Now().UTC())
	out.EntryID = entryID
	c.logger.Debug("access refused",
		"identity_id", out.IdentityID, "locker", out.LockerNumber, "action", out.Action, "reason", reason)
	return out, errors.Join(cause, err)
}

func (c *AccessController) record(ctx context.Context, out types.ActionOutcome, success bool, conf *int, at time.Time) (string, error) {
	entry := types.AccessLogEntry{
		ID:           uuid.NewString(),
		IdentityID:   out.IdentityID,
		LockerNumber: out.LockerNumber,
		Action:       out.Action,
		Success:      success,
		Reason:       out.Reason,
		Confidence:   conf,
		OccurredAt:   at,
	}
	// Recorded even when the caller has gone away; the decision already
	// took effect.
	if err := c.events.RecordEvent(context.WithoutCancel(ctx), entry); err != nil {
		c.logger.Error("access event not recorded",
			"entry_id", entry.ID, "identity_id", entry.IdentityID, "locker", entry.LockerNumber, "err", err)
		return "", fmt.Errorf("%w: record access event: %v", ErrInternalStore, err)
	}
	return entry.ID, nil
}

func transitionReason(err error) string {
	switch {
	case errors.Is(err, ErrLockerNotFound):
		return types.ReasonLockerNotFound
	case errors.Is(err, ErrPermissionDenied):
		return types.ReasonPermissionDenied
	case errors.Is(err, ErrAlreadyOccupied):
		return types.ReasonAlreadyOccupied
	case errors.Is(err, ErrNotOccupied):
		return types.ReasonNotOccupied
	case errors.Is(err, ErrAlreadyLocked):
		return types.ReasonAlreadyLocked
	case errors.Is(err, ErrAlreadyUnlocked):
		return types.ReasonAlreadyUnlocked
	}
	return types.ReasonInternalError
}

func intPtr(v int) *int { return &v }
