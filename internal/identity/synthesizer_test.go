package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/habitat-network/chrome-devproxy/internal/devtoken"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testToken(t *testing.T, p devtoken.Params) string {
	token, err := devtoken.Mint([]byte("test-signing-key"), p)
	require.NoError(t, err)
	return token
}

func transformed(t *testing.T, s *Synthesizer, in *http.Request, opts Options) *http.Request {
	out := httptest.NewRequest(http.MethodGet, "http://upstream/api", nil)
	s.Transform(out, in, opts)
	return out
}

func TestTransformFromCookie(t *testing.T) {
	token := testToken(t, devtoken.Params{Username: "alice", Email: "a@x.com"})
	in := httptest.NewRequest(http.MethodGet, "/api/foo", nil)
	in.Header.Set("Cookie", "foo=bar; id_jwt="+token+"; other=1")

	out := transformed(t, NewSynthesizer(Options{}), in, Options{})
	header := out.Header.Get(Header)
	require.NotEmpty(t, header)

	env, err := Decode(header)
	require.NoError(t, err)
	assert.Equal(t, "alice", env.Identity.OrgID)
	assert.Equal(t, "alice", env.Identity.User.Username)
	assert.Equal(t, "alice", env.Identity.User.UserID)
	assert.Equal(t, "alice", env.Identity.Internal.OrgID)
	assert.Equal(t, "a@x.com", env.Identity.User.Email)
	assert.Equal(t, "User", env.Identity.Type)
	assert.Equal(t, "basic-auth", env.Identity.AuthType)
	assert.True(t, env.Identity.User.IsActive)
	assert.True(t, env.Identity.User.IsOrgAdmin)
	assert.False(t, env.Identity.User.IsInternal)
	assert.Nil(t, env.Identity.Internal.AuthTime)
}

func TestTransformFromBearer(t *testing.T) {
	token := testToken(t, devtoken.Params{Username: "bob"})
	in := httptest.NewRequest(http.MethodGet, "/api/foo", nil)
	in.Header.Set("Authorization", "Bearer "+token)

	out := transformed(t, NewSynthesizer(Options{}), in, Options{})
	env, err := Decode(out.Header.Get(Header))
	require.NoError(t, err)
	assert.Equal(t, "bob", env.Identity.User.Username)
}

func TestCookieTakesPrecedence(t *testing.T) {
	in := httptest.NewRequest(http.MethodGet, "/", nil)
	in.Header.Set("Cookie", "id_jwt="+testToken(t, devtoken.Params{Username: "cookie"}))
	in.Header.Set("Authorization", "Bearer "+testToken(t, devtoken.Params{Username: "bearer"}))

	out := transformed(t, NewSynthesizer(Options{}), in, Options{})
	env, err := Decode(out.Header.Get(Header))
	require.NoError(t, err)
	assert.Equal(t, "cookie", env.Identity.OrgID)
}

func TestTransformWithoutCredential(t *testing.T) {
	in := httptest.NewRequest(http.MethodGet, "/", nil)
	out := transformed(t, NewSynthesizer(Options{}), in, Options{})
	_, ok := out.Header[http.CanonicalHeaderKey(Header)]
	assert.False(t, ok)
}

func TestTransformWithMalformedToken(t *testing.T) {
	in := httptest.NewRequest(http.MethodGet, "/", nil)
	in.Header.Set("Authorization", "Bearer not-a-token")
	out := transformed(t, NewSynthesizer(Options{}), in, Options{})
	assert.Empty(t, out.Header.Get(Header))
}

func TestOverridesBeatClaims(t *testing.T) {
	token := testToken(t, devtoken.Params{Username: "alice", Email: "a@x.com", Locale: "en_US"})
	in := httptest.NewRequest(http.MethodGet, "/", nil)
	in.Header.Set("Cookie", "id_jwt="+token)

	email := "override@x.com"
	locale := "de_DE"
	orgID := "12345"
	internal := true
	defaults := Options{
		User: &UserOverride{Email: &email},
	}
	routeOpts := Options{
		User:     &UserOverride{Locale: &locale, IsInternal: &internal},
		Identity: &IdentityOverride{OrgID: &orgID},
	}

	out := transformed(t, NewSynthesizer(defaults), in, routeOpts)
	env, err := Decode(out.Header.Get(Header))
	require.NoError(t, err)
	assert.Equal(t, "override@x.com", env.Identity.User.Email)
	assert.Equal(t, "de_DE", env.Identity.User.Locale)
	assert.True(t, env.Identity.User.IsInternal)
	assert.Equal(t, "12345", env.Identity.OrgID)
	// internal.org_id is only changed by an internal override
	assert.Equal(t, "alice", env.Identity.Internal.OrgID)
}

func TestBuildLaterOptionsWin(t *testing.T) {
	a, b := "a@x.com", "b@x.com"
	env := Build(Claims{PreferredUsername: "alice", Email: "claim@x.com"},
		Options{User: &UserOverride{Email: &a}},
		Options{User: &UserOverride{Email: &b}},
	)
	assert.Equal(t, "b@x.com", env.Identity.User.Email)
}

func TestExtractToken(t *testing.T) {
	h := http.Header{}
	_, ok := ExtractToken(h)
	assert.False(t, ok)

	h.Set("Authorization", "Basic Zm9vOmJhcg==")
	_, ok = ExtractToken(h)
	assert.False(t, ok)

	h.Set("Cookie", "id_jwt=abc.def.ghi")
	token, ok := ExtractToken(h)
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)
}
