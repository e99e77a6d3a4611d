package ociclient

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrorKind classifies an OCI operation failure for the retry policy:
// Download/OCI/Authentication are transient and retried; Parsing and
// Validation are logical and surface immediately.
type ErrorKind int

const (
	KindDownload ErrorKind = iota
	KindOCI
	KindAuthentication
	KindParsing
	KindValidation
)

// Error wraps an OCI operation failure with its retry classification.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func (e *Error) retryable() bool {
	switch e.Kind {
	case KindDownload, KindOCI, KindAuthentication:
		return true
	default:
		return false
	}
}

// Policy configures Retry's attempt count, delay bounds, and jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      JitterStrategy
}

// JitterStrategy controls how delay is randomized between attempts.
type JitterStrategy int

const (
	// JitterFull picks a uniform random delay in [0, computed delay].
	JitterFull JitterStrategy = iota
	// JitterNone applies the computed delay with no randomization.
	JitterNone
)

// DefaultPolicy is the retry policy new Clients are constructed with.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      JitterFull,
	}
}

// Retry runs fn, retrying on retryable classified errors up to
// p.MaxAttempts times with exponential backoff and the configured
// jitter strategy. Non-retryable errors (Parsing, Validation) and
// unclassified errors surface on the first failure.
func Retry(ctx context.Context, p Policy, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.RandomizationFactor = 0

	attempt := 0
	for {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}

		var classified *Error
		if !errors.As(err, &classified) || !classified.retryable() || attempt >= p.MaxAttempts {
			return err
		}

		delay := eb.NextBackOff()
		if delay == backoff.Stop {
			return err
		}
		if p.Jitter == JitterFull {
			delay = time.Duration(rand.Int63n(int64(delay) + 1))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
