package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"datavant-style-exchange/datalake/internal/config"
	"datavant-style-exchange/datalake/internal/datalake"
	"datavant-style-exchange/datalake/internal/objectstore"
)

// Claims are the bearer token claims. A token carrying a tenant may only
// touch that tenant's data.
type Claims struct {
	jwt.RegisteredClaims
	Tenant string `json:"tenant,omitempty"`
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

func AuthMiddleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Env == "local" && strings.TrimSpace(r.Header.Get("Authorization")) == "Bearer dev" {
				next.ServeHTTP(w, r)
				return
			}

			token, err := parseBearer(r.Header.Get("Authorization"))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}

			claims := &Claims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
				if t.Method != jwt.SigningMethodHS256 {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(cfg.JwtSecret), nil
			})
			if err != nil || parsed == nil || !parsed.Valid {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			if err := validateClaims(claims, cfg); err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// TenantScope rejects requests whose {tenant} path parameter differs from
// the token's tenant claim.
func TenantScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		if claims != nil && claims.Tenant != "" && claims.Tenant != chi.URLParam(r, "tenant") {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// urlInScope reports whether the caller may read the object behind rawURL.
// A tenant-scoped token only reaches its own tenant's keys in the datalake
// bucket; binaryOnly further limits it to Binary objects.
func (h *Handler) urlInScope(claims *Claims, rawURL string, binaryOnly bool) bool {
	if claims == nil || claims.Tenant == "" {
		return true
	}
	loc, err := objectstore.ParseURL(rawURL)
	if err != nil || loc.Bucket != h.cfg.DatalakeBucket {
		return false
	}
	if binaryOnly && !datalake.IsBinaryPath(loc.Key) {
		return false
	}
	tenantID, ok := datalake.KeyTenant(loc.Key)
	return ok && tenantID == claims.Tenant
}

func parseBearer(value string) (string, error) {
	if value == "" {
		return "", errors.New("missing auth")
	}
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("invalid auth")
	}
	if parts[1] == "" {
		return "", errors.New("missing token")
	}
	return parts[1], nil
}

func validateClaims(claims *Claims, cfg config.Config) error {
	if claims == nil {
		return errors.New("missing claims")
	}
	if claims.Issuer != cfg.JwtIssuer {
		return errors.New("invalid issuer")
	}
	found := false
	for _, aud := range claims.Audience {
		if aud == cfg.JwtAudience {
			found = true
			break
		}
	}
	if !found {
		return errors.New("invalid audience")
	}
	return nil
}
