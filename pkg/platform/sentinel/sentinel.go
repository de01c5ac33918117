package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in store
// - ErrConflict: optimistic version check failed, the record moved underneath us
// - ErrAlreadyUsed: unique key (open fingerprint) already taken by another record
// - ErrUnavailable: backing store or broker temporarily unreachable
// - ErrLockNotObtained: an exclusive section could not be entered
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyUsed     = errors.New("already used")
	ErrUnavailable     = errors.New("unavailable")
	ErrLockNotObtained = errors.New("lock not obtained")
)

// Transient reports whether err is an infrastructure fact worth retrying.
func Transient(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAlreadyUsed) ||
		errors.Is(err, ErrLockNotObtained)
}
