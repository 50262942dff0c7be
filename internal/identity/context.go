package identity

import "context"

// Role is the caller's authorization role, taken from the JWT "role" claim.
type Role string

const (
	RolePatient Role = "patient"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated caller. Its ID populates owner and created_by fields.
type Actor struct {
	ID    string
	Role  Role
	Email string
}

// IsAdmin reports whether the actor may act on other users' ledgers.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsStaff reports whether the actor is clinic staff or an admin.
func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

// System is the actor recorded for background jobs such as the expiry sweep.
var System = Actor{ID: "system", Role: RoleAdmin}

type ctxKey string

const actorKey ctxKey = "wellness.actor"

// WithActor stores the actor in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the actor if present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok && actor.ID != ""
}

// ActorIDOrSystem returns the caller id, or "system" when none is attached.
func ActorIDOrSystem(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.ID
	}
	return System.ID
}
