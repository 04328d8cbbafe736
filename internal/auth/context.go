// Package auth carries the calling member's identity through request contexts.
package auth

import "context"

type contextKey struct{}

// Identity is the member a request acts on behalf of. The upstream API
// gateway authenticates the caller; this service only trusts its header.
type Identity struct {
	MemberID int64
	// Admin is set for operator calls that passed the admin token check.
	Admin bool
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// WithMember is shorthand for WithIdentity with only a member id.
func WithMember(ctx context.Context, memberID int64) context.Context {
	return WithIdentity(ctx, Identity{MemberID: memberID})
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func MemberID(ctx context.Context) int64 {
	id, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return id.MemberID
}

func IsAdmin(ctx context.Context) bool {
	id, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return id.Admin
}
