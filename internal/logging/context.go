package logging

import "context"

type fieldsKey struct{}

// WithFields returns a context carrying key-value pairs that SlogLogger adds
// to every record logged with it. Pairs accumulate across calls.
func WithFields(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	prev := Fields(ctx)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// Fields returns the pairs attached by WithFields.
func Fields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(fieldsKey{}).([]any)
	return f
}
