package tx

import (
	"errors"
	"fmt"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/classify"
	"github.com/roach88/causetdb/internal/resolve"
	"github.com/roach88/causetdb/internal/validate"
)

// ErrFinished is returned by Add and Commit once a transaction has left the
// Collecting state.
var ErrFinished = errors.New("transaction already committed or aborted")

// ConflictError reports that another transaction committed first. Nothing
// was written; the caller may rebuild and retry.
type ConflictError struct {
	TxID causet.Entid
	Err  error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("transaction %d lost a commit race: %v", e.TxID, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// CommitFailedError reports a storage failure while committing. Whether the
// batch was applied is unknown, and the transaction is never retried
// automatically.
type CommitFailedError struct {
	TxID causet.Entid
	Err  error
}

func (e *CommitFailedError) Error() string {
	return fmt.Sprintf("commit of transaction %d failed, outcome unknown: %v", e.TxID, e.Err)
}

func (e *CommitFailedError) Unwrap() error { return e.Err }

// IsResolutionError reports whether err came from resolving tempids,
// idents, lookup refs or tx functions.
func IsResolutionError(err error) bool {
	return resolve.IsError(err)
}

// IsValidationError reports whether err is a schema or constraint
// violation.
func IsValidationError(err error) bool {
	return validate.IsValidationError(err)
}

// IsShapeError reports whether err rejected the payload's structure.
func IsShapeError(err error) bool {
	return classify.IsShapeError(err)
}

// IsConflict reports whether err is a lost commit race.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsOutcomeUnknown reports whether err leaves the commit outcome unknown.
func IsOutcomeUnknown(err error) bool {
	var cf *CommitFailedError
	return errors.As(err, &cf)
}

// Code returns a short machine-readable name for err's kind, used in logs,
// metrics and CLI output.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case IsShapeError(err):
		return "invalid_shape"
	case IsResolutionError(err):
		return string(resolve.CodeOf(err))
	case IsValidationError(err):
		return string(validate.CodeOf(err))
	case IsConflict(err):
		return "conflict"
	case IsOutcomeUnknown(err):
		return "commit_failed"
	case errors.Is(err, ErrFinished):
		return "finished"
	}
	return "internal"
}
