package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable marks a credential source that cannot serve
	// in the current environment. Chains treat it as "try the next one".
	ErrSourceUnavailable = errors.New("credential source unavailable")

	// ErrIdentityUnavailable is returned once a whole chain is exhausted
	// without producing a token.
	ErrIdentityUnavailable = errors.New("no identity available")

	// ErrDenied marks a definitive rejection by the identity platform.
	// Retrying or advancing the chain will not help.
	ErrDenied = errors.New("access denied by identity platform")

	// ErrUnknownScope is returned for scope names absent from the
	// registry. This is a wiring bug, not a runtime condition.
	ErrUnknownScope = errors.New("unknown credential scope")
)

func SourceUnavailableError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSourceUnavailable, fmt.Sprintf(format, args...))
}

func IdentityUnavailableError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIdentityUnavailable, fmt.Sprintf(format, args...))
}

func DeniedError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDenied, fmt.Sprintf(format, args...))
}

func IsSourceUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

func IsIdentityUnavailable(err error) bool {
	return errors.Is(err, ErrIdentityUnavailable)
}

func IsDenied(err error) bool {
	return errors.Is(err, ErrDenied)
}
