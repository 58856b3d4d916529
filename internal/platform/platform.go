// File: internal/platform/platform.go
package platform

import (
	"context"
	"time"
)

// Page is the slice of a browser tab the adapters drive. It is satisfied by
// the browser package's tab wrapper; tests substitute fakes.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	Fill(ctx context.Context, sel, value string) error
	Click(ctx context.Context, sel string) error
	Evaluate(ctx context.Context, js string, out any) error
	Screenshot(ctx context.Context, path string) error
}

// OutcomeKind is the closed classification of one platform's authentication
// attempt. Credential rejection is its own kind because it must never be
// retried, unlike transient failures.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeCredentialsRejected
	OutcomeTransient
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeCredentialsRejected:
		return "credentials_rejected"
	default:
		return "transient"
	}
}

// Outcome is the result of one platform's login attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// OK reports whether the platform authenticated.
func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }

func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

func CredentialsRejected(reason string) Outcome {
	return Outcome{Kind: OutcomeCredentialsRejected, Reason: reason}
}

func Transient(reason string) Outcome {
	return Outcome{Kind: OutcomeTransient, Reason: reason}
}

// Credentials carries the secrets fed into a login form.
type Credentials struct {
	Username string
	Password string
}

// Platform is one of the two target services an account authenticates
// against. Implementations own the platform-specific selectors and page
// heuristics; callers own timeouts and retry policy.
type Platform interface {
	Name() string
	LoginURL() string
	// Login drives the login form on an already-navigated page and
	// classifies the result. It must not retry internally.
	Login(ctx context.Context, page Page, creds Credentials) Outcome
	// CheckHealth re-verifies the page still holds an authenticated
	// session, returning a human-readable reason either way.
	CheckHealth(ctx context.Context, page Page) (bool, string)
}
