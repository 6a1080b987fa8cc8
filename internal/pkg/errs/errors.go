package errs

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalid               = errors.New("invalid")
	ErrConflict              = errors.New("conflict")
	ErrTooMany               = errors.New("too many requests")
	ErrInternal              = errors.New("internal")
	ErrScopeViolation        = errors.New("scope violation")
	ErrUnsupportedFormat     = errors.New("unsupported format")
	ErrCorruptFile           = errors.New("corrupt file")
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrIngestionInFlight     = errors.New("ingestion already running")
	ErrDimensionMismatch     = errors.New("embedding dimension mismatch")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrIngestionInFlight)
}

func IsScopeViolation(err error) bool {
	return errors.Is(err, ErrScopeViolation)
}
