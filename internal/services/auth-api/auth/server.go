package auth

import (
	"crypto/subtle"
	"net/http"
	"time"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/NordCoder/Crabiner/internal/domain/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	DefaultCookieName = "refresh_token"
	RefreshHeader     = "X-Refresh-Token"
	internalKeyHeader = "X-Internal-Key"
)

type Server struct {
	log          *zap.Logger
	uc           *Usecase
	gw           *Gateway
	cookieName   string
	cookieDomain string
	cookiePath   string
	cookieSecure bool
	internalKey  string
}

type Opts struct {
	Logger       *zap.Logger
	CookieName   string
	CookieDomain string
	CookiePath   string
	CookieSecure bool
	// InternalKey enables POST /internal/sessions for the identity provider bridge.
	InternalKey string
}

func NewServer(uc *Usecase, gw *Gateway, o Opts) *Server {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if o.CookieName == "" {
		o.CookieName = DefaultCookieName
	}
	if o.CookiePath == "" {
		o.CookiePath = "/"
	}
	return &Server{
		log:          log,
		uc:           uc,
		gw:           gw,
		cookieName:   o.CookieName,
		cookieDomain: o.CookieDomain,
		cookiePath:   o.CookiePath,
		cookieSecure: o.CookieSecure,
		internalKey:  o.InternalKey,
	}
}

func (s *Server) Register(r gin.IRouter) {
	g := r.Group("/auth")
	g.POST("/refresh", s.Refresh)
	g.POST("/logout", s.Logout)
	g.GET("/status", s.Status)
	g.GET("/me", s.gw.Required(), s.Me)
	g.GET("/whoami", s.gw.Optional(), s.WhoAmI)
	g.POST("/logout-all", s.gw.Required(), s.LogoutAll)

	if s.internalKey != "" {
		r.POST("/internal/sessions", s.StartSession)
	}
}

type secretBody struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken,omitempty"`
	ExpiresIn    int64             `json:"expiresIn"`
	User         *identity.Summary `json:"user"`
}

func (s *Server) Refresh(c *gin.Context) {
	secret, src := s.readSecret(c)

	res, err := s.uc.Refresh(c.Request.Context(), RefreshInput{Secret: secret, Source: src, Client: clientContext(c)})
	if err != nil {
		// A server-side failure says nothing about the cookie, so it stays for a retry.
		if domainauth.AsAuthError(err).Kind != domainauth.KindInternal {
			s.clearRefreshCookie(c)
		}
		s.writeErr(c, err)
		return
	}

	out := sessionResponse{
		AccessToken: res.AccessToken,
		ExpiresIn:   int64(res.AccessTTL / time.Second),
		User:        res.Identity.Summary(),
	}
	if res.ReturnRefreshInBody {
		out.RefreshToken = res.RefreshToken
	} else {
		s.setRefreshCookie(c, res.RefreshToken, res.RefreshTTL)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) Logout(c *gin.Context) {
	secret, _ := s.readSecret(c)
	s.uc.Logout(c.Request.Context(), secret, clientContext(c))
	s.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (s *Server) Status(c *gin.Context) {
	secret, err := c.Cookie(s.cookieName)
	if err != nil || secret == "" {
		secret = c.Query("refreshToken")
	}
	st := s.uc.Status(c.Request.Context(), secret)
	c.JSON(http.StatusOK, gin.H{
		"authenticated": st.Authenticated,
		"user":          st.Identity.Summary(),
	})
}

func (s *Server) Me(c *gin.Context) {
	id, _ := IdentityFromGin(c)
	c.JSON(http.StatusOK, id)
}

// WhoAmI reports the bearer's identity, or an anonymous caller, without ever failing.
func (s *Server) WhoAmI(c *gin.Context) {
	id, ok := IdentityFromGin(c)
	c.JSON(http.StatusOK, gin.H{
		"authenticated": ok,
		"user":          id.Summary(),
	})
}

func (s *Server) LogoutAll(c *gin.Context) {
	id, _ := IdentityFromGin(c)
	n, err := s.uc.LogoutEverywhere(c.Request.Context(), id.ID, clientContext(c))
	if err != nil {
		s.writeErr(c, err)
		return
	}
	s.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

type startSessionRequest struct {
	SubjectID string `json:"subjectId" binding:"required"`
	Cookie    bool   `json:"cookie"`
}

// StartSession is called by the identity provider bridge once it has verified a subject.
func (s *Server) StartSession(c *gin.Context) {
	key := c.GetHeader(internalKeyHeader)
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.internalKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	sess, err := s.uc.Issue(c.Request.Context(), req.SubjectID, clientContext(c))
	if err != nil {
		s.writeErr(c, err)
		return
	}
	out := sessionResponse{
		AccessToken: sess.AccessToken,
		ExpiresIn:   int64(sess.AccessTTL / time.Second),
		User:        sess.Identity.Summary(),
	}
	if req.Cookie {
		s.setRefreshCookie(c, sess.RefreshToken, sess.RefreshTTL)
	} else {
		out.RefreshToken = sess.RefreshToken
	}
	c.JSON(http.StatusOK, out)
}

// readSecret prefers the cookie, then the JSON body, then the X-Refresh-Token header.
func (s *Server) readSecret(c *gin.Context) (string, Source) {
	if v, err := c.Cookie(s.cookieName); err == nil && v != "" {
		return v, SourceCookie
	}
	var body secretBody
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err == nil && body.RefreshToken != "" {
			return body.RefreshToken, SourceBody
		}
	}
	if v := c.GetHeader(RefreshHeader); v != "" {
		return v, SourceBody
	}
	return "", SourceBody
}

func (s *Server) writeErr(c *gin.Context, err error) {
	ae := domainauth.AsAuthError(err)
	if ae.Kind == domainauth.KindInternal {
		s.log.Error("auth request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(ae.HTTPStatus(), gin.H{"error": string(ae.Kind)})
}

func (s *Server) setRefreshCookie(c *gin.Context, raw string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookieName,
		Value:    raw,
		Path:     s.cookiePath,
		Domain:   s.cookieDomain,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl).UTC(),
	})
}

func (s *Server) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     s.cookiePath,
		Domain:   s.cookieDomain,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}

func clientContext(c *gin.Context) domainauth.ClientContext {
	return domainauth.ClientContext{
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
		Origin:    c.GetHeader("Origin"),
	}
}
