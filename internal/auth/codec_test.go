package auth

import (
	"strings"
	"testing"
	"time"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	c, err := NewCodec(Config{Secret: testSecret, Now: clock.Now})
	require.NoError(t, err)
	return c
}

func TestCodec_IssueVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	c := newTestCodec(t, clock)

	for _, sub := range []string{"u1", "42", "3f0e2a8c-5b8d-4e0f-9a51-0c1f6e8e2b11"} {
		tok, err := c.Issue(sub)
		require.NoError(t, err)

		claims, err := c.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, sub, claims.SubjectID)
		assert.Equal(t, DefaultIssuer, claims.Issuer)
		assert.Equal(t, DefaultAudience, claims.Audience)
		assert.Equal(t, clock.t, claims.IssuedAt)
		assert.Equal(t, clock.t.Add(15*time.Minute), claims.ExpiresAt)
	}
}

func TestCodec_ExpiredIsNeverInvalid(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	c := newTestCodec(t, clock)

	tok, err := c.Issue("u1")
	require.NoError(t, err)

	for _, d := range []time.Duration{15*time.Minute + time.Second, time.Hour, 30 * 24 * time.Hour} {
		clock.t = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(d)
		_, err = c.Verify(tok)
		require.ErrorIs(t, err, domainauth.ErrTokenExpired)
		assert.NotErrorIs(t, err, domainauth.ErrTokenInvalid)
	}
}

func TestCodec_WrongSecret(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now().UTC()}
	c := newTestCodec(t, clock)
	other, err := NewCodec(Config{Secret: []byte(strings.Repeat("z", 40)), Now: clock.Now})
	require.NoError(t, err)

	tok, err := other.Issue("u1")
	require.NoError(t, err)

	_, err = c.Verify(tok)
	require.ErrorIs(t, err, domainauth.ErrTokenInvalid)
}

func TestCodec_IssuerAndAudienceMustMatch(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now().UTC()}
	c := newTestCodec(t, clock)

	otherIss, err := NewCodec(Config{Secret: testSecret, Issuer: "someone-else", Now: clock.Now})
	require.NoError(t, err)
	otherAud, err := NewCodec(Config{Secret: testSecret, Audience: "other-api", Now: clock.Now})
	require.NoError(t, err)

	tok, err := otherIss.Issue("u1")
	require.NoError(t, err)
	_, err = c.Verify(tok)
	require.ErrorIs(t, err, domainauth.ErrTokenInvalid)

	tok, err = otherAud.Issue("u1")
	require.NoError(t, err)
	_, err = c.Verify(tok)
	require.ErrorIs(t, err, domainauth.ErrTokenInvalid)
}

func TestCodec_RejectsOtherSigningMethods(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now().UTC()}
	c := newTestCodec(t, clock)

	claims := jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    DefaultIssuer,
		Audience:  jwt.ClaimStrings{DefaultAudience},
		ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Minute)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.Verify(tok)
	require.ErrorIs(t, err, domainauth.ErrTokenInvalid)
}

func TestCodec_Malformed(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, &fakeClock{t: time.Now().UTC()})
	for _, tok := range []string{"", "not.a.jwt", "abc", "a.b.c.d"} {
		_, err := c.Verify(tok)
		require.ErrorIs(t, err, domainauth.ErrTokenInvalid, "token %q", tok)
	}
}

func TestNewCodec_ShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewCodec(Config{Secret: []byte("short")})
	require.Error(t, err)
}

func TestSecret_GenerateAndHash(t *testing.T) {
	t.Parallel()

	a, err := GenerateSecret(RefreshSecretBytes)
	require.NoError(t, err)
	b, err := GenerateSecret(RefreshSecretBytes)
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, HashSecret(a), HashSecret(a))
	assert.NotEqual(t, HashSecret(a), HashSecret(b))
	assert.NotContains(t, HashSecret(a), a)
}
