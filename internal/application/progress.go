package application

import "context"

// ProgressFunc receives a short description of the stage a run entered.
type ProgressFunc func(stage string)

type progressKey struct{}

// WithProgress returns a context whose aggregation and sync stages are
// reported to fn. fn is called from the goroutine running the work.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, fn)
}

func reportProgress(ctx context.Context, stage string) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok {
		fn(stage)
	}
}
