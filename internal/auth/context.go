// ABOUTME: Authentication context for tracking the caller through request handlers
// ABOUTME: Provides WithSubject/SubjectFrom for propagating the token subject via context

package auth

import "context"

type subjectKey struct{}

// WithSubject returns a context carrying the authenticated token subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFrom returns the authenticated subject, or "" for anonymous requests.
func SubjectFrom(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
