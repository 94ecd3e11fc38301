package service

import "errors"

var (
	ErrInvalidIdentityID   = errors.New("identity_id is required")
	ErrInvalidAction       = errors.New("action must be one of unlock, lock, occupy, release")
	ErrInvalidLockerNumber = errors.New("locker number must be positive")

	ErrNotEnrolled     = errors.New("identity is not enrolled")
	ErrTooManyAttempts = errors.New("too many failed attempts, try again later")

	ErrLockerNotFound   = errors.New("locker not found")
	ErrPermissionDenied = errors.New("locker is held by another identity")
	ErrAlreadyOccupied  = errors.New("locker is already occupied")
	ErrNotOccupied      = errors.New("locker is not occupied")
	ErrAlreadyLocked    = errors.New("locker is already locked")
	ErrAlreadyUnlocked  = errors.New("locker is already unlocked")

	// ErrInternalStore wraps persistence faults. The core never retries.
	ErrInternalStore = errors.New("internal store failure")
)
