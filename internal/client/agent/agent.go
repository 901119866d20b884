package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/NordCoder/Crabiner/internal/domain/identity"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshTimeout = 10 * time.Second
	refreshFlightKey      = "refresh"
)

// ErrNoSession is returned when a refresh is needed but no refresh secret is stored.
var ErrNoSession = errors.New("no stored session")

type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Secrets        SecretStore
	RefreshTimeout time.Duration
	Logger         *zap.Logger
}

// Agent sends requests on behalf of one signed-in client. The access token and
// identity live only in memory; the refresh secret lives in the SecretStore.
type Agent struct {
	baseURL        string
	http           *http.Client
	secrets        SecretStore
	refreshTimeout time.Duration
	log            *zap.Logger

	mu       sync.RWMutex
	access   string
	identity *identity.Summary
	// gen changes whenever the in-memory credentials change.
	gen uint64

	flight singleflight.Group

	lmu          sync.Mutex
	listeners    map[uint64]Listener
	nextListener uint64
}

func New(o Options) *Agent {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Secrets == nil {
		o.Secrets = NewMemorySecretStore("")
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = DefaultRefreshTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Agent{
		baseURL:        strings.TrimRight(o.BaseURL, "/"),
		http:           o.HTTPClient,
		secrets:        o.Secrets,
		refreshTimeout: o.RefreshTimeout,
		log:            o.Logger.With(zap.String("component", "auth.agent")),
		listeners:      make(map[uint64]Listener),
	}
}

func (a *Agent) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.access
}

func (a *Agent) Identity() *identity.Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.identity
}

func (a *Agent) snapshot() (string, uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.access, a.gen
}

// SetSession installs credentials obtained out of band, e.g. right after sign-in.
func (a *Agent) SetSession(ctx context.Context, access, refresh string, id *identity.Summary) error {
	if refresh != "" {
		if err := a.secrets.Save(ctx, refresh); err != nil {
			return err
		}
	}
	a.mu.Lock()
	a.access = access
	a.identity = id
	a.gen++
	a.mu.Unlock()
	return nil
}

// Do sends req with the current bearer token. On a 401 it refreshes once and
// replays the request; the replayed response is returned whatever its status.
// If the refresh fails the original 401 response is returned.
func (a *Agent) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	r := req.Clone(ctx)
	if err := rewindable(r); err != nil {
		return nil, err
	}
	return a.send(ctx, r, FirstAttempt)
}

func (a *Agent) send(ctx context.Context, r *http.Request, attempt Attempt) (*http.Response, error) {
	if attempt == Retry && r.GetBody != nil {
		body, err := r.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		r.Body = body
	}

	token, gen := a.snapshot()
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	} else {
		r.Header.Del("Authorization")
	}

	resp, err := a.http.Do(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || attempt == Retry {
		return resp, nil
	}

	if err := a.refreshSince(ctx, gen); err != nil {
		a.log.Debug("refresh after 401 failed", zap.String("path", r.URL.Path), zap.Error(err))
		return resp, nil
	}
	drain(resp)
	return a.send(ctx, r, Retry)
}

// EnsureFreshCredential refreshes the access token. Concurrent callers share
// one in-flight refresh.
func (a *Agent) EnsureFreshCredential(ctx context.Context) error {
	_, gen := a.snapshot()
	return a.refreshSince(ctx, gen)
}

// refreshSince joins or starts a refresh unless one already completed after gen
// was observed.
func (a *Agent) refreshSince(ctx context.Context, gen uint64) error {
	ch := a.flight.DoChan(refreshFlightKey, func() (any, error) {
		if tok, cur := a.snapshot(); cur != gen && tok != "" {
			return nil, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.refreshTimeout)
		defer cancel()
		return nil, a.refresh(fctx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sessionPayload struct {
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	User         *identity.Summary `json:"user"`
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// refresh signs the client out only when the server definitively rejects the
// secret. Transport errors, timeouts and 5xx keep local credentials for a later retry.
func (a *Agent) refresh(ctx context.Context) error {
	secret, err := a.secrets.Load(ctx)
	if err != nil {
		return fmt.Errorf("load refresh secret: %w", err)
	}
	if secret == "" {
		return a.fail(ctx, ErrNoSession)
	}

	body, _ := json.Marshal(map[string]string{"refreshToken": secret})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("refresh request: %w", err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return a.fail(ctx, decodeAuthError(resp))
	default:
		err := decodeAuthError(resp)
		a.log.Warn("refresh unavailable, keeping session", zap.Int("status", resp.StatusCode), zap.Error(err))
		return err
	}

	var p sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if p.AccessToken == "" {
		return errors.New("refresh response without access token")
	}
	if p.RefreshToken != "" {
		if err := a.secrets.Save(ctx, p.RefreshToken); err != nil {
			a.log.Warn("store rotated refresh secret", zap.Error(err))
		}
	}

	a.mu.Lock()
	a.access = p.AccessToken
	a.identity = p.User
	a.gen++
	a.mu.Unlock()

	a.log.Debug("access token refreshed")
	a.notify(Event{Kind: EventRefreshed, Identity: p.User})
	return nil
}

// fail drops every local credential and tells listeners the client is signed out.
func (a *Agent) fail(ctx context.Context, cause error) error {
	a.clear(ctx)
	a.log.Info("signed out after refresh failure", zap.Error(cause))
	a.notify(Event{Kind: EventSignedOut, Err: cause})
	return cause
}

func (a *Agent) clear(ctx context.Context) {
	a.mu.Lock()
	a.access = ""
	a.identity = nil
	a.gen++
	a.mu.Unlock()
	if err := a.secrets.Clear(ctx); err != nil {
		a.log.Warn("clear refresh secret", zap.Error(err))
	}
}

// Bootstrap restores a session from the stored refresh secret.
func (a *Agent) Bootstrap(ctx context.Context) (bool, error) {
	if err := a.EnsureFreshCredential(ctx); err != nil {
		if errors.Is(err, ErrNoSession) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Logout revokes the stored secret on the server and always clears local state.
func (a *Agent) Logout(ctx context.Context) error {
	secret, err := a.secrets.Load(ctx)
	var callErr error
	if err == nil && secret != "" {
		body, _ := json.Marshal(map[string]string{"refreshToken": secret})
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/auth/logout", bytes.NewReader(body))
		if rerr == nil {
			req.Header.Set("Content-Type", "application/json")
			var resp *http.Response
			resp, callErr = a.http.Do(req)
			if callErr == nil {
				drain(resp)
			}
		} else {
			callErr = rerr
		}
	}
	a.clear(ctx)
	a.notify(Event{Kind: EventSignedOut})
	if callErr != nil {
		a.log.Warn("logout request failed", zap.Error(callErr))
	}
	return errors.Join(err, callErr)
}

func decodeAuthError(resp *http.Response) error {
	var p errorPayload
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&p)
	kind := domainauth.ErrorKind(p.Error)
	if kind == "" {
		kind = domainauth.KindInternal
	}
	detail := p.Message
	if detail == "" {
		detail = fmt.Sprintf("refresh rejected with status %d", resp.StatusCode)
	}
	return domainauth.NewAuthError(kind, detail, nil)
}

// rewindable makes sure a request body can be sent twice.
func rewindable(r *http.Request) error {
	if r.Body == nil || r.Body == http.NoBody || r.GetBody != nil {
		return nil
	}
	buf, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	r.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(buf)), nil }
	r.Body, _ = r.GetBody()
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
