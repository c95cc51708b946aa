package feed

import (
	"github.com/pkg/errors"
)

// Error kinds. Every error returned by this package matches exactly one of
// them under errors.Is.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrNotFound           = errors.New("not found")
	ErrBackendFailure     = errors.New("backend failure")
	ErrPreconditionFailed = errors.New("precondition failed")
)

// classify maps an error coming out of a collaborator to one of the error
// kinds. Unknown errors are backend failures.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrUnauthenticated, ErrNotFound, ErrPreconditionFailed, ErrBackendFailure} {
		if errors.Is(err, kind) {
			return errors.WithMessage(err, op)
		}
	}
	return errors.Wrapf(ErrBackendFailure, "%s: %s", op, err)
}

func preconditionFailed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrPreconditionFailed, format, args...)
}
