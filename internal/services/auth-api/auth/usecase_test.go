package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kindOf(t *testing.T, err error) domainauth.ErrorKind {
	t.Helper()
	require.Error(t, err)
	return domainauth.AsAuthError(err).Kind
}

func TestUsecase_ExpireRefreshReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.uc.Issue(ctx, "u1", domainauth.ClientContext{})
	require.NoError(t, err)
	a1, r1 := sess.AccessToken, sess.RefreshToken

	f.clock.Advance(16 * time.Minute)
	_, err = f.uc.Authenticate(ctx, a1)
	assert.Equal(t, domainauth.KindTokenExpired, kindOf(t, err))

	res, err := f.uc.Refresh(ctx, RefreshInput{Secret: r1, Source: SourceCookie})
	require.NoError(t, err)
	assert.NotEqual(t, a1, res.AccessToken)
	assert.NotEqual(t, r1, res.RefreshToken)
	assert.False(t, res.ReturnRefreshInBody)
	assert.Equal(t, "u1", res.Identity.ID)

	id, err := f.uc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.ID)

	_, err = f.store.Verify(ctx, r1)
	require.ErrorIs(t, err, domainauth.ErrRefreshRevoked)

	_, err = f.uc.Refresh(ctx, RefreshInput{Secret: r1, Source: SourceCookie})
	assert.Equal(t, domainauth.KindRefreshNotUsable, kindOf(t, err))

	assert.Equal(t, []domainauth.EventKind{
		domainauth.EventIssued, domainauth.EventRotated, domainauth.EventReuseDetected,
	}, f.audit.kinds())
}

func TestUsecase_RefreshOutcomesCollapse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.Refresh(ctx, RefreshInput{})
	assert.Equal(t, domainauth.KindMissingCredential, kindOf(t, err))

	_, err = f.uc.Refresh(ctx, RefreshInput{Secret: "garbage"})
	assert.Equal(t, domainauth.KindRefreshNotUsable, kindOf(t, err))
	require.ErrorIs(t, err, domainauth.ErrRefreshNotFound)

	sess, err := f.uc.Issue(ctx, "u1", domainauth.ClientContext{})
	require.NoError(t, err)
	f.clock.Advance(31 * 24 * time.Hour)
	_, err = f.uc.Refresh(ctx, RefreshInput{Secret: sess.RefreshToken})
	assert.Equal(t, domainauth.KindRefreshNotUsable, kindOf(t, err))
	require.ErrorIs(t, err, domainauth.ErrRefreshExpired)
}

func TestUsecase_RefreshBodySourceReturnsSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.uc.Issue(ctx, "u1", domainauth.ClientContext{})
	require.NoError(t, err)

	res, err := f.uc.Refresh(ctx, RefreshInput{Secret: sess.RefreshToken, Source: SourceBody})
	require.NoError(t, err)
	assert.True(t, res.ReturnRefreshInBody)
	assert.NotEmpty(t, res.RefreshToken)
}

func TestUsecase_RefreshIdentityMissingRevokesCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.uc.Issue(ctx, "u1", domainauth.ClientContext{})
	require.NoError(t, err)
	f.ids.Delete("u1")

	_, err = f.uc.Refresh(ctx, RefreshInput{Secret: sess.RefreshToken})
	assert.Equal(t, domainauth.KindIdentityMissing, kindOf(t, err))

	n, err := f.store.RevokeAllForSubject(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NotContains(t, f.audit.kinds(), domainauth.EventRotated)
}

func TestUsecase_RefreshIdentityOutageKeepsSecretUsable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.uc.Issue(ctx, "u1", domainauth.ClientContext{})
	require.NoError(t, err)

	f.flaky.fails.Store(1)
	_, err = f.uc.Refresh(ctx, RefreshInput{Secret: sess.RefreshToken})
	require.ErrorIs(t, err, errIdentityDown)
	assert.Equal(t, domainauth.KindInternal, kindOf(t, err))
	assert.Equal(t, http.StatusInternalServerError, domainauth.AsAuthError(err).HTTPStatus())
	assert.True(t, f.uc.Status(ctx, sess.RefreshToken).Authenticated)

	res, err := f.uc.Refresh(ctx, RefreshInput{Secret: sess.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, sess.RefreshToken, res.RefreshToken)
	assert.NotContains(t, f.audit.kinds(), domainauth.EventReuseDetected)
}

func TestUsecase_LogoutNeverFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.uc.Logout(ctx, "", domainauth.ClientContext{})
	f.uc.Logout(ctx, "garbage", domainauth.ClientContext{})

	sess, err := f.uc.Issue(ctx, "u1", domainauth.ClientContext{})
	require.NoError(t, err)
	f.uc.Logout(ctx, sess.RefreshToken, domainauth.ClientContext{})
	f.uc.Logout(ctx, sess.RefreshToken, domainauth.ClientContext{})

	_, err = f.uc.Refresh(ctx, RefreshInput{Secret: sess.RefreshToken})
	assert.Equal(t, domainauth.KindRefreshNotUsable, kindOf(t, err))
	ev, ok := f.audit.find(domainauth.EventRevoked)
	require.True(t, ok)
	assert.Equal(t, "u1", ev.SubjectID)
	require.NotNil(t, ev.CredentialID)
	rec, err := f.store.Verify(ctx, sess.RefreshToken)
	require.ErrorIs(t, err, domainauth.ErrRefreshRevoked)
	assert.Equal(t, rec.ID, *ev.CredentialID)
}

func TestUsecase_Status(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.False(t, f.uc.Status(ctx, "").Authenticated)
	assert.False(t, f.uc.Status(ctx, "garbage").Authenticated)

	sess, err := f.uc.Issue(ctx, "u1", domainauth.ClientContext{})
	require.NoError(t, err)
	st := f.uc.Status(ctx, sess.RefreshToken)
	assert.True(t, st.Authenticated)
	assert.Equal(t, "alice@example.com", st.Identity.Email)

	// Status does not rotate.
	_, err = f.store.Verify(ctx, sess.RefreshToken)
	require.NoError(t, err)
}

func TestUsecase_LogoutEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1, err := f.uc.Issue(ctx, "u1", domainauth.ClientContext{})
	require.NoError(t, err)
	s2, err := f.uc.Issue(ctx, "u1", domainauth.ClientContext{})
	require.NoError(t, err)

	n, err := f.uc.LogoutEverywhere(ctx, "u1", domainauth.ClientContext{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, s := range []string{s1.RefreshToken, s2.RefreshToken} {
		_, err = f.uc.Refresh(ctx, RefreshInput{Secret: s})
		assert.Equal(t, domainauth.KindRefreshNotUsable, kindOf(t, err))
	}
}

func TestUsecase_Authenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.Authenticate(ctx, "")
	assert.Equal(t, domainauth.KindMissingCredential, kindOf(t, err))

	_, err = f.uc.Authenticate(ctx, "not-a-token")
	assert.Equal(t, domainauth.KindTokenInvalid, kindOf(t, err))

	ghost, err := f.codec.Issue("ghost")
	require.NoError(t, err)
	_, err = f.uc.Authenticate(ctx, ghost)
	assert.Equal(t, domainauth.KindIdentityMissing, kindOf(t, err))

	_, err = f.uc.Issue(ctx, "ghost", domainauth.ClientContext{})
	assert.Equal(t, domainauth.KindIdentityMissing, kindOf(t, err))
}
