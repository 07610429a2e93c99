package tenant

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type fakeLookup struct {
	id   uuid.UUID
	name string
	ok   bool
}

func (f fakeLookup) LookupBySlug(_ context.Context, slug string) (uuid.UUID, string, error) {
	if !f.ok {
		return uuid.Nil, "", http.ErrNoCookie
	}
	return f.id, f.name, nil
}

func TestHeaderResolver_Resolve(t *testing.T) {
	resolver := HeaderResolver{}

	t.Run("returns slug from header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Tenant-Slug", "acme")

		slug, err := resolver.Resolve(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if slug != "acme" {
			t.Errorf("slug = %q, want %q", slug, "acme")
		}
	})

	t.Run("returns error when header missing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)

		_, err := resolver.Resolve(r)
		if err == nil {
			t.Fatal("expected error for missing header")
		}
	})
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	id := uuid.New()

	t.Run("resolves tenant and calls next", func(t *testing.T) {
		mw := Middleware(fakeLookup{id: id, name: "Acme", ok: true}, HeaderResolver{}, logger)

		var gotTenant *Info
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotTenant = FromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Tenant-Slug", "acme")
		w := httptest.NewRecorder()

		mw(next).ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if gotTenant == nil || gotTenant.ID != id || gotTenant.Slug != "acme" {
			t.Fatalf("unexpected tenant in context: %+v", gotTenant)
		}
	})

	t.Run("rejects missing resolver slug", func(t *testing.T) {
		mw := Middleware(fakeLookup{ok: true}, HeaderResolver{}, logger)

		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		mw(next).ServeHTTP(w, r)

		if called {
			t.Fatal("next handler should not be called")
		}
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("rejects unknown tenant", func(t *testing.T) {
		mw := Middleware(fakeLookup{ok: false}, HeaderResolver{}, logger)

		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Tenant-Slug", "ghost")
		w := httptest.NewRecorder()

		mw(next).ServeHTTP(w, r)

		if called {
			t.Fatal("next handler should not be called")
		}
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
