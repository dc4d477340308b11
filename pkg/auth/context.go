package auth

import "context"

type subjectKey struct{}

// WithSubject stores the authenticated operator on the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the operator set by WithSubject, or "".
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(subjectKey{}).(string); ok {
		return v
	}
	return ""
}
