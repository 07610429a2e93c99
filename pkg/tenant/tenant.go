// Package tenant resolves the tenant for an inbound request and carries its
// identity through the request context. Every domain table is keyed by
// tenant_id directly rather than by PostgreSQL schema, so this package has
// no notion of per-tenant schemas or scoped connections — stores take the
// pool (or an open transaction) and filter by tenant_id like any other
// predicate.
package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Info holds the resolved tenant metadata for the current request.
type Info struct {
	ID   uuid.UUID
	Name string
	Slug string
}

type contextKey string

const infoKey contextKey = "tenant_info"

// NewContext stores tenant info in the context.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext extracts the tenant info from the context.
// Returns nil if no tenant is set.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(infoKey).(*Info)
	return v
}
