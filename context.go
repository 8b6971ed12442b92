package dashclient

import "context"

type viewNameContextKey struct{}

// WithViewName attaches the name of the protected view being mounted to ctx.
// Gate audit events and logs carry it.
func WithViewName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, viewNameContextKey{}, name)
}

func viewNameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	name, _ := ctx.Value(viewNameContextKey{}).(string)
	return name
}
