package auth

import (
	"context"
	"strings"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/NordCoder/Crabiner/internal/domain/identity"
	"github.com/NordCoder/Crabiner/internal/obs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*identity.Identity, error)
}

type ctxKey struct{}

const ginIdentityKey = "crabiner.identity"

func IdentityFromContext(ctx context.Context) (*identity.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*identity.Identity)
	return id, ok && id != nil
}

func IdentityFromGin(c *gin.Context) (*identity.Identity, bool) {
	v, ok := c.Get(ginIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*identity.Identity)
	return id, ok && id != nil
}

// Gateway turns bearer access tokens into an identity on the request. It never retries.
type Gateway struct {
	auth Authenticator
	log  *zap.Logger
}

func NewGateway(a Authenticator, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{auth: a, log: log}
}

// Required rejects the request with 401 unless a valid token for an existing identity is presented.
// A failure to resolve the identity (store down, timeout) answers 500 instead. Clients only
// refresh on 401, so a 500 is passed through without a refresh attempt.
func (g *Gateway) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := g.auth.Authenticate(c.Request.Context(), bearer(c.GetHeader("Authorization")))
		if err != nil {
			ae := domainauth.AsAuthError(err)
			gatewayTotal.WithLabelValues("required", string(ae.Kind)).Inc()
			if ae.Kind == domainauth.KindInternal {
				obs.WithTrace(c.Request.Context(), g.log).Error("gateway", zap.Error(err))
			}
			abortAuth(c, ae)
			return
		}
		gatewayTotal.WithLabelValues("required", "ok").Inc()
		attach(c, id)
		c.Next()
	}
}

// Optional attaches an identity when one can be resolved and otherwise proceeds anonymously.
func (g *Gateway) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c.GetHeader("Authorization"))
		if token == "" {
			gatewayTotal.WithLabelValues("optional", "anonymous").Inc()
			c.Next()
			return
		}
		id, err := g.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			gatewayTotal.WithLabelValues("optional", "anonymous").Inc()
			c.Next()
			return
		}
		gatewayTotal.WithLabelValues("optional", "ok").Inc()
		attach(c, id)
		c.Next()
	}
}

func attach(c *gin.Context, id *identity.Identity) {
	c.Set(ginIdentityKey, id)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKey{}, id))
}

func abortAuth(c *gin.Context, ae *domainauth.AuthError) {
	body := gin.H{"error": string(ae.Kind)}
	if ae.Detail != "" && ae.Kind != domainauth.KindInternal {
		body["message"] = ae.Detail
	}
	c.AbortWithStatusJSON(ae.HTTPStatus(), body)
}

func bearer(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
