package owctx

import "context"

type ctxIndex int

const ctxIndexTrace ctxIndex = iota

// IsTrace reports whether slot level tracing was requested for this call chain.
func IsTrace(ctx context.Context) bool {
	val := ctx.Value(ctxIndexTrace)
	if val == nil {
		return false
	}
	return val.(bool)
}

func SetTrace(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexTrace, value)
}
