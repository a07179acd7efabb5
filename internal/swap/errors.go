package swap

import "errors"

var (
	// ErrNotFound covers missing records and owner-scoped lookups that match
	// nothing; a caller cannot distinguish "absent" from "not yours".
	ErrNotFound = errors.New("swap: not found")
	// ErrInvalidInput indicates missing or malformed fields.
	ErrInvalidInput = errors.New("swap: invalid input")
	// ErrAlreadyExists indicates a uniqueness violation (duplicate email).
	ErrAlreadyExists = errors.New("swap: already exists")
	// ErrUnauthorized indicates the caller may not act on the record.
	ErrUnauthorized = errors.New("swap: unauthorized")
	// ErrDuplicateRequest indicates a pending request already exists for the
	// same (from, to, event) triple.
	ErrDuplicateRequest = errors.New("swap: a pending request already exists")
	// ErrRequestClosed indicates an approve/reject attempt on a request that
	// already reached a terminal state.
	ErrRequestClosed = errors.New("swap: request already resolved")
	// ErrEventNotSwappable indicates a request against an event that is not
	// currently offered for exchange.
	ErrEventNotSwappable = errors.New("swap: event is not swappable")
)
