package obs

import "context"

// routePatternKey is the context key storing the matched chi route pattern,
// e.g. /api/v1/shipments/{shipmentId}.
type routePatternKey struct{}

// WithRoutePattern stores the matched router pattern on the context so
// metrics and logs label by pattern instead of raw path.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext extracts the route pattern from context if present.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}
