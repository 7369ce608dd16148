package main

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	tenantsservice "github.com/hourledger/hourledger/domains/tenants/be/service"
	platformauth "github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/gcp"
	"github.com/hourledger/hourledger/platform/go/httpapi"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// buildTokenVerifier selects the configured identity provider.
func buildTokenVerifier(ctx context.Context, cfg config, logger *zap.Logger) platformauth.VerifyFunc {
	switch cfg.AuthProvider {
	case "firebase":
		var credsPath *string
		if cfg.FirebaseCredentials != "" {
			credsPath = &cfg.FirebaseCredentials
		}
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx, credsPath)
		if err != nil {
			logger.Fatal("init firebase auth", zap.Error(err))
		}
		return platformauth.FirebaseTokenVerifier(fbAuth)
	case "dev":
		logger.Warn("using unsigned dev tokens; do not use in production")
		return platformauth.UnsignedTokenVerifier()
	default:
		logger.Fatal("unsupported auth provider (use firebase or dev)", zap.String("provider", cfg.AuthProvider))
		return nil
	}
}

// resolvePrincipal maps the verified identity onto a provisioned tenant user
// and gates the request on the tenant's subscription status. Requests without
// an identity never make it past this point.
func resolvePrincipal(users *persistence.UserStore, tenants *tenantsservice.Service, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := platformauth.IdentityFromContext(r.Context())
			if !ok {
				httpapi.WriteProblem(w, httpapi.Unauthorized("bearer token required"))
				return
			}

			rec, err := users.GetBySubject(r.Context(), identity.Subject)
			if err != nil {
				if errors.Is(err, persistence.ErrNotFound) {
					httpapi.WriteProblem(w, httpapi.NotProvisioned("identity is not provisioned for any tenant"))
					return
				}
				logger.Error("resolve principal", zap.Error(err))
				httpapi.WriteProblem(w, httpapi.Internal())
				return
			}
			if !rec.IsActive {
				httpapi.WriteProblem(w, httpapi.NotProvisioned("user is deactivated"))
				return
			}

			// Super admins carry no tenant and skip the subscription gate.
			if rec.TenantID != nil {
				tenant, err := tenants.Get(r.Context(), *rec.TenantID)
				if err != nil {
					logger.Error("resolve tenant for principal", zap.Error(err))
					httpapi.WriteProblem(w, httpapi.Internal())
					return
				}
				if !tenant.Usable() {
					httpapi.WriteProblem(w, httpapi.SubscriptionInactive("tenant subscription is "+string(tenant.SubscriptionStatus)))
					return
				}
			}

			p := &platformauth.Principal{
				UserID:   rec.UserID,
				Role:     platformauth.RoleFromString(rec.Role),
				TenantID: rec.TenantID,
				Email:    rec.Email,
				Name:     rec.FullName,
			}
			next.ServeHTTP(w, r.WithContext(platformauth.WithPrincipal(r.Context(), p)))
		})
	}
}
