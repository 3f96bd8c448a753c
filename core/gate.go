package core

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	authContextKey     = "formgate.auth"
	decisionContextKey = "formgate.decision"
	// cookie value holding the SessionID
	sessionIDValue = "sid"
)

// RequestAuth is the authentication state resolved for one request.
// Principal is nil for anonymous requests. SessionID may be set without a
// Principal when the client presents a stale session.
type RequestAuth struct {
	SessionID SessionID
	Principal *Principal
}

// Authenticated reports whether a principal is attached.
func (a RequestAuth) Authenticated() bool {
	return a.Principal != nil
}

// CurrentAuth returns the state the gate resolved for this request.
func CurrentAuth(c *gin.Context) RequestAuth {
	v, _ := c.Get(authContextKey)
	a, _ := v.(RequestAuth)
	return a
}

// GateOptions controls routes and cookie attributes.
type GateOptions struct {
	LoginPath      string
	LogoutPath     string
	DefaultLanding string
	CookieName     string
	CookieSecure   bool
	CookieSameSite http.SameSite
	// SessionTTL bounds the cookie lifetime; 0 makes it a browser-session cookie.
	SessionTTL time.Duration
}

// GateOptionsFromConfig maps the relevant Config fields.
func GateOptionsFromConfig(cfg Config) GateOptions {
	return GateOptions{
		LoginPath:      cfg.LoginPath,
		LogoutPath:     cfg.LogoutPath,
		DefaultLanding: cfg.DefaultLanding,
		CookieName:     cfg.CookieName,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: sameSiteFromString(cfg.CookieSameSite),
		SessionTTL:     cfg.SessionTTL,
	}
}

// Gate decides every guarded request and owns the login and logout
// transitions. The cookie only carries the SessionID; the principal lives
// in the SessionRegistry.
type Gate struct {
	policy   *AccessPolicy
	sessions SessionRegistry
	auth     Authenticator
	cookies  sessions.Store
	views    ViewRenderer
	opts     GateOptions
	logger   *zap.Logger
}

// NewGate fails when the login page itself would not be reachable
// anonymously.
func NewGate(policy *AccessPolicy, registry SessionRegistry, auth Authenticator, cookies sessions.Store, views ViewRenderer, opts GateOptions, logger *zap.Logger) (*Gate, error) {
	if policy == nil || registry == nil || auth == nil || cookies == nil || views == nil {
		return nil, errors.New("gate: missing dependency")
	}
	if opts.CookieName == "" {
		return nil, errors.New("gate: cookie name is required")
	}
	if d := policy.Decide(opts.LoginPath, nil); d != Permit {
		return nil, fmt.Errorf("gate: login path %s must be public, policy says %s", opts.LoginPath, d)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		policy:   policy,
		sessions: registry,
		auth:     auth,
		cookies:  cookies,
		views:    views,
		opts:     opts,
		logger:   logger,
	}, nil
}

// Policy returns the policy the gate enforces.
func (g *Gate) Policy() *AccessPolicy {
	return g.policy
}

// Authorize resolves the session and applies the policy to the request
// path. Only permitted requests reach the next handler.
func (g *Gate) Authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth, err := g.resolve(c)
		if err != nil {
			g.logger.Error("session lookup failed", zap.Error(err))
			g.renderError(c, http.StatusInternalServerError, "Session store unavailable")
			c.Abort()
			return
		}
		c.Set(authContextKey, auth)

		decision := g.policy.Decide(c.Request.URL.Path, auth.Principal)
		c.Set(decisionContextKey, decision)
		DecisionsTotal.WithLabelValues(decision.String()).Inc()

		switch decision {
		case Permit:
			c.Next()
		case RequireLogin:
			c.Redirect(http.StatusFound, g.loginRedirect(c.Request.URL))
			c.Abort()
		default:
			g.views.Render(c, http.StatusForbidden, ViewDenied, g.viewData(auth, "Access denied", nil))
			c.Abort()
		}
	}
}

// LoginPage renders the login form. /login?logout shows the signed-out
// banner and /login?next=... is carried into the form.
func (g *Gate) LoginPage(c *gin.Context) {
	q := c.Request.URL.Query()
	g.views.Render(c, http.StatusOK, ViewLogin, g.loginData(CurrentAuth(c), q.Get("next"), "", false, q.Has("logout")))
}

// LoginSubmit verifies the form credentials, replaces any existing session
// with a fresh one and redirects to the resume target.
func (g *Gate) LoginSubmit(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	next := c.PostForm("next")

	principal, err := g.auth.Authenticate(username, password)
	if err != nil {
		LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		g.logger.Info("login failed", zap.String("username", username), zap.String("remote_addr", c.ClientIP()))
		g.views.Render(c, http.StatusUnauthorized, ViewLogin, g.loginData(RequestAuth{}, next, username, true, false))
		return
	}

	ctx := c.Request.Context()
	cookie, _ := g.cookies.Get(c.Request, g.opts.CookieName)
	if old, _ := cookie.Values[sessionIDValue].(string); old != "" {
		if err := g.sessions.Destroy(ctx, SessionID(old)); err != nil {
			g.logger.Warn("failed to destroy previous session", zap.Error(err))
		}
	}

	sess, err := g.sessions.Create(ctx, principal)
	if err != nil {
		LoginsTotal.WithLabelValues("error").Inc()
		g.logger.Error("failed to create session", zap.String("username", principal.Username), zap.Error(err))
		g.renderError(c, http.StatusInternalServerError, "Could not create session")
		return
	}

	cookie.Values = map[interface{}]interface{}{sessionIDValue: string(sess.ID)}
	g.applyCookieOptions(cookie)
	if err := cookie.Save(c.Request, c.Writer); err != nil {
		_ = g.sessions.Destroy(ctx, sess.ID)
		LoginsTotal.WithLabelValues("error").Inc()
		g.logger.Error("failed to set session cookie", zap.Error(err))
		g.renderError(c, http.StatusInternalServerError, "Could not create session")
		return
	}

	LoginsTotal.WithLabelValues("success").Inc()
	g.logger.Info("login succeeded", zap.String("username", principal.Username))
	c.Redirect(http.StatusSeeOther, g.resumeTarget(next, &principal))
}

// Logout destroys the session, expires the cookie and sends the client to
// the login page. Repeating it with a stale cookie gives the same result.
func (g *Gate) Logout(c *gin.Context) {
	cookie, _ := g.cookies.Get(c.Request, g.opts.CookieName)
	if raw, _ := cookie.Values[sessionIDValue].(string); raw != "" {
		if err := g.sessions.Destroy(c.Request.Context(), SessionID(raw)); err != nil {
			g.logger.Error("failed to destroy session", zap.Error(err))
			g.renderError(c, http.StatusInternalServerError, "Could not sign out")
			return
		}
	}

	cookie.Values = map[interface{}]interface{}{}
	g.applyCookieOptions(cookie)
	cookie.Options.MaxAge = -1 // must follow applyCookieOptions
	if err := cookie.Save(c.Request, c.Writer); err != nil {
		g.logger.Warn("failed to clear session cookie", zap.Error(err))
	}

	LogoutsTotal.Inc()
	c.Redirect(http.StatusFound, g.opts.LoginPath+"?logout")
}

// resolve reads the cookie and looks the session up. Unknown, tampered or
// stale cookies yield an anonymous RequestAuth, not an error.
func (g *Gate) resolve(c *gin.Context) (RequestAuth, error) {
	cookie, err := g.cookies.Get(c.Request, g.opts.CookieName)
	if err != nil {
		g.logger.Debug("ignoring unreadable session cookie", zap.Error(err))
		return RequestAuth{}, nil
	}
	raw, _ := cookie.Values[sessionIDValue].(string)
	if raw == "" {
		return RequestAuth{}, nil
	}
	id := SessionID(raw)
	sess, err := g.sessions.Lookup(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return RequestAuth{SessionID: id}, nil
		}
		return RequestAuth{}, err
	}
	p := sess.Principal
	return RequestAuth{SessionID: id, Principal: &p}, nil
}

func (g *Gate) loginRedirect(u *url.URL) string {
	q := url.Values{"next": {u.RequestURI()}}
	return g.opts.LoginPath + "?" + q.Encode()
}

// resumeTarget returns next when it is a local path the principal may
// visit, otherwise the default landing route.
func (g *Gate) resumeTarget(next string, p *Principal) string {
	if !isLocalPath(next) {
		return g.opts.DefaultLanding
	}
	u, err := url.Parse(next)
	if err != nil {
		return g.opts.DefaultLanding
	}
	if u.Path == g.opts.LoginPath || u.Path == g.opts.LogoutPath {
		return g.opts.DefaultLanding
	}
	if g.policy.Decide(u.Path, p) != Permit {
		return g.opts.DefaultLanding
	}
	return next
}

// isLocalPath rejects anything a browser could resolve to another origin.
func isLocalPath(s string) bool {
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") || strings.ContainsAny(s, "\\\r\n") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func (g *Gate) applyCookieOptions(s *sessions.Session) {
	if s.Options == nil {
		s.Options = &sessions.Options{}
	}
	s.Options.Path = "/"
	s.Options.MaxAge = int(g.opts.SessionTTL / time.Second)
	s.Options.HttpOnly = true
	s.Options.Secure = g.opts.CookieSecure
	s.Options.SameSite = g.opts.CookieSameSite
}

func (g *Gate) viewData(auth RequestAuth, title string, extra gin.H) gin.H {
	data := gin.H{"Title": title, "Principal": auth.Principal}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func (g *Gate) loginData(auth RequestAuth, next, username string, failed, loggedOut bool) gin.H {
	return g.viewData(auth, "Sign in", gin.H{
		"Action":    g.opts.LoginPath,
		"Next":      next,
		"Username":  username,
		"Error":     failed,
		"LoggedOut": loggedOut,
	})
}

func (g *Gate) renderError(c *gin.Context, status int, message string) {
	g.views.Render(c, status, ViewError, g.viewData(CurrentAuth(c), "Error", gin.H{"Message": message}))
}
