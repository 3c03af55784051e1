package httpx

import (
	"context"

	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
)

// Unexported context key types avoid collisions across packages.
type (
	kioskContextKey struct{}
	identityKey     struct{}
	correlationKey  struct{}
)

// KioskContext identifies the browser context a request came from.
type KioskContext struct {
	ID      string
	Console bool
}

// SetKioskContext returns a child context carrying kc.
func SetKioskContext(ctx context.Context, kc KioskContext) context.Context {
	return context.WithValue(ctx, kioskContextKey{}, kc)
}

// GetKioskContext returns the browser context set by the KioskContextMiddleware.
func GetKioskContext(ctx context.Context) (KioskContext, bool) {
	kc, ok := ctx.Value(kioskContextKey{}).(KioskContext)
	return kc, ok && kc.ID != ""
}

// SetIdentityInContext returns a child context that carries the given identity.
// If identity is nil, the original ctx is returned unchanged.
func SetIdentityInContext(ctx context.Context, identity *domainauth.Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, identity)
}

// GetIdentityFromContext returns the signed-in identity and a boolean indicating presence.
func GetIdentityFromContext(ctx context.Context) (*domainauth.Identity, bool) {
	if id, ok := ctx.Value(identityKey{}).(*domainauth.Identity); ok && id != nil {
		return id, true
	}
	return nil, false
}

// SetCorrelationID returns a child context carrying a request correlation id.
func SetCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// GetCorrelationID returns the correlation id or an empty string.
func GetCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
