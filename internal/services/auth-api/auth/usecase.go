package auth

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/NordCoder/Crabiner/internal/domain/identity"
	"github.com/NordCoder/Crabiner/internal/obs"
	"github.com/NordCoder/Crabiner/internal/services/auth-api/refresh"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TokenCodec interface {
	Issue(subjectID string) (string, error)
	Verify(token string) (*domainauth.AccessClaims, error)
	AccessTTL() time.Duration
}

type RefreshStore interface {
	IssueAndStore(ctx context.Context, subjectID string, cc domainauth.ClientContext) (string, *domainauth.RefreshToken, error)
	Verify(ctx context.Context, plain string) (*domainauth.RefreshToken, error)
	Rotate(ctx context.Context, plain string, cc domainauth.ClientContext) (*refresh.Rotation, error)
	Revoke(ctx context.Context, plain string) (*domainauth.RefreshToken, error)
	RevokeAllForSubject(ctx context.Context, subjectID string) (int64, error)
	TTL() time.Duration
}

// Source tells where a refresh secret was read from.
type Source int

const (
	SourceCookie Source = iota
	SourceBody
)

type RefreshInput struct {
	Secret string
	Source Source
	Client domainauth.ClientContext
}

type Session struct {
	AccessToken  string
	RefreshToken string
	Identity     *identity.Identity
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

type RefreshResult struct {
	Session
	// ReturnRefreshInBody is set when the secret came in the body, so the successor goes back the same way.
	ReturnRefreshInBody bool
}

type StatusResult struct {
	Authenticated bool
	Identity      *identity.Identity
}

type Usecase struct {
	codec TokenCodec
	store RefreshStore
	ids   identity.Repo
	audit domainauth.Auditor
	log   *zap.Logger
	now   func() time.Time
}

type Deps struct {
	Codec    TokenCodec
	Store    RefreshStore
	Identity identity.Repo
	Auditor  domainauth.Auditor
	Logger   *zap.Logger
	Now      func() time.Time
}

func NewUsecase(d Deps) *Usecase {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Usecase{
		codec: d.Codec,
		store: d.Store,
		ids:   d.Identity,
		audit: d.Auditor,
		log:   d.Logger,
		now:   d.Now,
	}
}

// Issue starts a session for a subject the identity provider has already verified.
func (u *Usecase) Issue(ctx context.Context, subjectID string, cc domainauth.ClientContext) (*Session, error) {
	id, err := u.ids.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, domainauth.NewAuthError(domainauth.KindIdentityMissing, "identity not found", err)
		}
		return nil, domainauth.NewAuthError(domainauth.KindInternal, "identity lookup", err)
	}
	access, err := u.codec.Issue(subjectID)
	if err != nil {
		return nil, domainauth.NewAuthError(domainauth.KindInternal, "sign access", err)
	}
	plain, rec, err := u.store.IssueAndStore(ctx, subjectID, cc)
	if err != nil {
		return nil, domainauth.NewAuthError(domainauth.KindInternal, "store refresh", err)
	}
	issuedTotal.Inc()
	u.record(ctx, domainauth.Event{Kind: domainauth.EventIssued, SubjectID: subjectID, CredentialID: &rec.ID, Client: cc})

	return &Session{
		AccessToken:  access,
		RefreshToken: plain,
		Identity:     id,
		AccessTTL:    u.codec.AccessTTL(),
		RefreshTTL:   u.store.TTL(),
	}, nil
}

func (u *Usecase) Refresh(ctx context.Context, in RefreshInput) (*RefreshResult, error) {
	start := time.Now()
	defer func() { refreshDuration.Observe(time.Since(start).Seconds()) }()
	log := obs.WithTrace(ctx, u.log)

	if in.Secret == "" {
		refreshTotal.WithLabelValues("missing").Inc()
		return nil, domainauth.NewAuthError(domainauth.KindMissingCredential, "no refresh token", nil)
	}

	// The identity is resolved before rotating so a failed lookup leaves the
	// presented secret usable. Unusable secrets go straight to Rotate, which
	// classifies the rejection.
	var id *identity.Identity
	rec, err := u.store.Verify(ctx, in.Secret)
	switch {
	case err == nil:
		id, err = u.ids.GetByID(ctx, rec.SubjectID)
		if err != nil {
			return nil, u.lookupFailed(ctx, log, in.Secret, rec.SubjectID, err)
		}
	case !domainauth.IsRefreshNotUsable(err):
		refreshTotal.WithLabelValues("error").Inc()
		log.Error("refresh verify", zap.Error(err))
		return nil, domainauth.NewAuthError(domainauth.KindInternal, "verify", err)
	}

	rot, err := u.store.Rotate(ctx, in.Secret, in.Client)
	if err != nil {
		var rej *refresh.Rejection
		if errors.As(err, &rej) {
			u.reject(ctx, log, rej, in.Client)
			return nil, domainauth.NewAuthError(domainauth.KindRefreshNotUsable, "", err)
		}
		refreshTotal.WithLabelValues("error").Inc()
		log.Error("refresh rotate", zap.Error(err))
		return nil, domainauth.NewAuthError(domainauth.KindInternal, "rotate", err)
	}

	subject := rot.Current.SubjectID

	access, err := u.codec.Issue(subject)
	if err != nil {
		refreshTotal.WithLabelValues("error").Inc()
		return nil, domainauth.NewAuthError(domainauth.KindInternal, "sign access", err)
	}

	refreshTotal.WithLabelValues("ok").Inc()
	u.record(ctx, domainauth.Event{
		Kind:         domainauth.EventRotated,
		SubjectID:    subject,
		CredentialID: &rot.Previous.ID,
		SuccessorID:  &rot.Current.ID,
		Client:       in.Client,
	})
	log.Debug("refresh rotated", zap.String("subject", subject), zap.Stringer("id", rot.Current.ID))

	return &RefreshResult{
		Session: Session{
			AccessToken:  access,
			RefreshToken: rot.Plain,
			Identity:     id,
			AccessTTL:    u.codec.AccessTTL(),
			RefreshTTL:   u.store.TTL(),
		},
		ReturnRefreshInBody: in.Source == SourceBody,
	}, nil
}

// lookupFailed maps an identity lookup error. Only a missing identity burns the
// presented secret; any other failure leaves it usable for a retry.
func (u *Usecase) lookupFailed(ctx context.Context, log *zap.Logger, secret, subject string, err error) error {
	if !errors.Is(err, identity.ErrNotFound) {
		refreshTotal.WithLabelValues("error").Inc()
		log.Error("refresh identity lookup", zap.String("subject", subject), zap.Error(err))
		return domainauth.NewAuthError(domainauth.KindInternal, "identity lookup", err)
	}
	refreshTotal.WithLabelValues("identity_missing").Inc()
	log.Warn("refresh for missing identity", zap.String("subject", subject))
	rec, rerr := u.store.Revoke(ctx, secret)
	if rerr != nil {
		log.Error("revoke orphan refresh", zap.Error(rerr))
	}
	if rec != nil {
		u.record(ctx, domainauth.Event{
			Kind:         domainauth.EventRevoked,
			SubjectID:    rec.SubjectID,
			CredentialID: &rec.ID,
			Reason:       "identity_missing",
		})
	}
	return domainauth.NewAuthError(domainauth.KindIdentityMissing, "identity not found", err)
}

func (u *Usecase) reject(ctx context.Context, log *zap.Logger, rej *refresh.Rejection, cc domainauth.ClientContext) {
	reason := "not_found"
	switch {
	case errors.Is(rej.Err, domainauth.ErrRefreshRevoked):
		reason = "revoked"
	case errors.Is(rej.Err, domainauth.ErrRefreshExpired):
		reason = "expired"
	}

	ev := domainauth.Event{Kind: domainauth.EventRejected, Reason: reason, Client: cc}
	if rej.Record != nil {
		ev.SubjectID = rej.Record.SubjectID
		ev.CredentialID = &rej.Record.ID
	}
	if rej.ReuseDetected() {
		reason = "reuse"
		ev.Kind = domainauth.EventReuseDetected
		ev.Reason = reason
		ev.SuccessorID = rej.Record.ReplacedByID
		log.Warn("refresh reuse detected",
			zap.String("subject", rej.Record.SubjectID),
			zap.Stringer("id", rej.Record.ID),
			zap.String("ip", cc.IP))
	} else {
		log.Info("refresh rejected", zap.String("reason", reason))
	}
	refreshTotal.WithLabelValues(reason).Inc()
	u.record(ctx, ev)
}

// Logout never fails from the caller's point of view.
func (u *Usecase) Logout(ctx context.Context, secret string, cc domainauth.ClientContext) {
	if secret == "" {
		logoutTotal.WithLabelValues("false").Inc()
		return
	}
	rec, err := u.store.Revoke(ctx, secret)
	if err != nil {
		obs.WithTrace(ctx, u.log).Error("logout revoke", zap.Error(err))
	}
	if rec != nil {
		logoutTotal.WithLabelValues("true").Inc()
		u.record(ctx, domainauth.Event{
			Kind:         domainauth.EventRevoked,
			SubjectID:    rec.SubjectID,
			CredentialID: &rec.ID,
			Reason:       "logout",
			Client:       cc,
		})
		return
	}
	logoutTotal.WithLabelValues("false").Inc()
}

func (u *Usecase) LogoutEverywhere(ctx context.Context, subjectID string, cc domainauth.ClientContext) (int64, error) {
	n, err := u.store.RevokeAllForSubject(ctx, subjectID)
	if err != nil {
		return 0, domainauth.NewAuthError(domainauth.KindInternal, "revoke all", err)
	}
	u.record(ctx, domainauth.Event{Kind: domainauth.EventRevokedAll, SubjectID: subjectID, Count: n, Client: cc})
	return n, nil
}

// Status reports whether secret is usable and for whom. It never mutates state and never fails.
func (u *Usecase) Status(ctx context.Context, secret string) StatusResult {
	if secret == "" {
		return StatusResult{}
	}
	rec, err := u.store.Verify(ctx, secret)
	if err != nil {
		if !domainauth.IsRefreshNotUsable(err) {
			obs.WithTrace(ctx, u.log).Error("status verify", zap.Error(err))
		}
		return StatusResult{}
	}
	id, err := u.ids.GetByID(ctx, rec.SubjectID)
	if err != nil {
		return StatusResult{}
	}
	return StatusResult{Authenticated: true, Identity: id}
}

// Authenticate resolves a bearer access token to an identity.
func (u *Usecase) Authenticate(ctx context.Context, token string) (*identity.Identity, error) {
	if token == "" {
		return nil, domainauth.NewAuthError(domainauth.KindMissingCredential, "missing header", nil)
	}
	claims, err := u.codec.Verify(token)
	if err != nil {
		if errors.Is(err, domainauth.ErrTokenExpired) {
			return nil, domainauth.NewAuthError(domainauth.KindTokenExpired, "token expired", err)
		}
		return nil, domainauth.NewAuthError(domainauth.KindTokenInvalid, "token invalid", err)
	}
	id, err := u.ids.GetByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, domainauth.NewAuthError(domainauth.KindIdentityMissing, "identity not found", err)
		}
		return nil, domainauth.NewAuthError(domainauth.KindInternal, "identity lookup", err)
	}
	return id, nil
}

func (u *Usecase) record(ctx context.Context, ev domainauth.Event) {
	if u.audit == nil {
		return
	}
	ev.ID = uuid.New()
	ev.At = u.now()
	if err := u.audit.Record(ctx, ev); err != nil {
		obs.WithTrace(ctx, u.log).Warn("audit record", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
