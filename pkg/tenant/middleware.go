package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Resolver identifies the tenant slug for the current request.
type Resolver interface {
	Resolve(r *http.Request) (slug string, err error)
}

// Lookup retrieves tenant metadata by slug.
type Lookup interface {
	LookupBySlug(ctx context.Context, slug string) (id uuid.UUID, name string, err error)
}

// SlugLookup resolves a tenant slug from its ID, the reverse direction of
// Lookup — used by background workers that only carry a tenant_id column
// and need a human-readable slug for alerting.
type SlugLookup interface {
	SlugByID(ctx context.Context, id uuid.UUID) (slug string, err error)
}

// HeaderResolver resolves the tenant from the X-Tenant-Slug header. It is
// the Resolver internal/app wires for /api/v1 in the api mode; the
// repository has no other Resolver implementation.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(r *http.Request) (string, error) {
	slug := r.Header.Get("X-Tenant-Slug")
	if slug == "" {
		return "", fmt.Errorf("missing X-Tenant-Slug header")
	}
	return slug, nil
}

// PoolLookup is a raw-SQL Lookup backed by a pgxpool.Pool.
type PoolLookup struct {
	Pool *pgxpool.Pool
}

func (l *PoolLookup) LookupBySlug(ctx context.Context, slug string) (uuid.UUID, string, error) {
	var id uuid.UUID
	var name string
	err := l.Pool.QueryRow(ctx,
		`SELECT id, name FROM tenants WHERE slug = $1`,
		slug,
	).Scan(&id, &name)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, name, nil
}

func (l *PoolLookup) SlugByID(ctx context.Context, id uuid.UUID) (string, error) {
	var slug string
	err := l.Pool.QueryRow(ctx, `SELECT slug FROM tenants WHERE id = $1`, id).Scan(&slug)
	if err != nil {
		return "", err
	}
	return slug, nil
}

// Middleware resolves the tenant for the request and stores it in the
// context. Unlike the schema-per-tenant variant this repo is descended
// from, it never acquires a dedicated connection or sets search_path —
// handlers and stores take the shared pool and filter by tenant_id.
func Middleware(lookup Lookup, resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug, err := resolver.Resolve(r)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "tenant resolution failed")
				return
			}

			tenantID, tenantName, err := lookup.LookupBySlug(r.Context(), slug)
			if err != nil {
				logger.Warn("tenant not found", "slug", slug, "error", err)
				respondError(w, http.StatusUnauthorized, "unauthorized", "unknown tenant")
				return
			}

			info := &Info{
				ID:   tenantID,
				Name: tenantName,
				Slug: slug,
			}

			ctx := NewContext(r.Context(), info)

			logger.Debug("tenant resolved", "tenant_id", tenantID, "slug", slug)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// respondError writes a JSON error response without importing httpserver,
// which itself depends on this package for tenant resolution.
func respondError(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
