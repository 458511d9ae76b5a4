package context

import "context"

// Actor identifies the advisor (or system job) on whose behalf an entity
// operation runs. Audit effects record it.
type Actor struct {
	AdvisorID string
	FirmID    string
	Email     string
	System    bool
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetAdvisorID returns the acting advisor ID or "system" for background jobs.
func GetAdvisorID(ctx context.Context) string {
	a := GetActor(ctx)
	switch {
	case a == nil:
		return ""
	case a.System:
		return "system"
	default:
		return a.AdvisorID
	}
}
