package engine

import "errors"

// Error categories. Every entry point is atomic, so any of these means the
// caller observes pre-call state unchanged.
var (
	// ErrInvalid marks validation failures (empty title, zero reward,
	// bad deadline, empty evidence).
	ErrInvalid = errors.New("invalid argument")
	// ErrUnauthorized marks authorization failures (not owner, not an
	// authorized caller, not requester, not admin).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAccessDenied marks reputation-gate failures from ValidateAccess.
	ErrAccessDenied = errors.New("access denied")
	// ErrStateConflict marks operations invalid in the entity's current
	// state (already resolved, not editable, already reviewed).
	ErrStateConflict = errors.New("state conflict")
	// ErrInsufficient marks insufficient balance, stake or pending score.
	ErrInsufficient = errors.New("insufficient funds")
	// ErrPaused is returned by custody entry points while the emergency
	// breaker is engaged.
	ErrPaused = errors.New("ledger is paused")
)
