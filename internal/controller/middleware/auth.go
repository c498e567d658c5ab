// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"baton/internal/auth"
	"baton/internal/store"
)

// NamespaceLookup resolves an API key hash to a namespace.
type NamespaceLookup interface {
	GetNamespaceByAPIKeyHash(ctx context.Context, hash string) (*store.Namespace, error)
}

// namespaceKey is the context key for the authenticated namespace.
type namespaceKey struct{}

// AuthMiddleware authenticates requests with "Authorization: Bearer <key>"
// against the stored namespace key hashes and puts the resolved namespace in
// the request context. Every public route is namespace-scoped, so a request
// without a valid key stops here.
func AuthMiddleware(lookup NamespaceLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Fields(header)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			ns, err := lookup.GetNamespaceByAPIKeyHash(r.Context(), auth.HashKey(parts[1]))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					http.Error(w, "invalid api key", http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if ns == nil {
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContextWithNamespace(r.Context(), ns)))
		})
	}
}

// NewContextWithNamespace returns a context carrying the authenticated
// namespace.
func NewContextWithNamespace(ctx context.Context, ns *store.Namespace) context.Context {
	return context.WithValue(ctx, namespaceKey{}, ns)
}

// NamespaceFromContext extracts the authenticated namespace from the context.
func NamespaceFromContext(ctx context.Context) (*store.Namespace, bool) {
	ns, ok := ctx.Value(namespaceKey{}).(*store.Namespace)
	return ns, ok
}

// NamespaceIDFromContext extracts the authenticated namespace's ID from the
// context.
func NamespaceIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	ns, ok := NamespaceFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return ns.ID, true
}
