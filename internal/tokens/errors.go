package tokens

import "errors"

// Authentication failures. All of these surface as 401 and are never retried.
var (
	ErrMalformed        = errors.New("token malformed")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrWrongTokenType   = errors.New("wrong token type")
	ErrExpired          = errors.New("token expired")
	ErrRevoked          = errors.New("refresh token revoked")
	ErrNotFound         = errors.New("not found")
)

// Infrastructure failures.
var (
	ErrTokenGenerationFailed = errors.New("token generation failed")
	ErrPersistFailed         = errors.New("refresh token persist failed")
	ErrStoreUnavailable      = errors.New("token store unavailable")
)

// ErrHashMismatch is returned by Store.SwapRefreshHash when the stored hash no
// longer equals the expected one.
var ErrHashMismatch = errors.New("refresh hash mismatch")

// Reason maps an error to a short label for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	// persist failures wrap the store error, so they are matched first
	case errors.Is(err, ErrPersistFailed):
		return "persist_failed"
	case errors.Is(err, ErrTokenGenerationFailed):
		return "generation_failed"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrWrongTokenType):
		return "wrong_type"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// IsAuthFailure reports whether err means the caller failed to authenticate,
// as opposed to an infrastructure problem.
func IsAuthFailure(err error) bool {
	if errors.Is(err, ErrPersistFailed) || errors.Is(err, ErrTokenGenerationFailed) {
		return false
	}
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrWrongTokenType) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrRevoked) ||
		errors.Is(err, ErrNotFound)
}
