package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// Identity headers set by the authenticating gateway in front of the API.
const (
	HeaderUserID         = "X-User-ID"
	HeaderOrganizationID = "X-Organization-ID"
	HeaderUserRole       = "X-User-Role"
)

const (
	principalLocal            = "principal"
	principalKey       ctxKey = "principal"
)

// PrincipalMiddleware resolves the caller from the gateway headers. Requests
// without a user or organization are rejected with 401. A missing role means
// WORKER.
func PrincipalMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := domain.Principal{
			UserID:         strings.TrimSpace(c.Get(HeaderUserID)),
			OrganizationID: strings.TrimSpace(c.Get(HeaderOrganizationID)),
			Role:           domain.Role(strings.ToUpper(strings.TrimSpace(c.Get(HeaderUserRole)))),
		}
		if p.UserID == "" || p.OrganizationID == "" {
			return errUnauthorized(c, "missing identity headers")
		}
		switch p.Role {
		case "":
			p.Role = domain.RoleWorker
		case domain.RoleWorker, domain.RoleManager, domain.RoleAdmin:
		default:
			return errUnauthorized(c, "unknown role "+string(p.Role))
		}

		c.Locals(principalLocal, p)
		c.SetUserContext(WithPrincipal(c.UserContext(), p))
		return c.Next()
	}
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromCtx returns the principal stored by PrincipalMiddleware.
func PrincipalFromCtx(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(domain.Principal)
	return p, ok
}

func principalOf(c *fiber.Ctx) domain.Principal {
	p, _ := c.Locals(principalLocal).(domain.Principal)
	return p
}
