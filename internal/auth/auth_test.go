package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." + enc.EncodeToString(payload) + ".sig"
}

func TestValidFormat(t *testing.T) {
	cases := map[string]bool{
		"":                  false,
		"Bearer ":           false,
		"Bearer x":          true,
		"a.b.c":             true,
		"short":             false,
		"opaque-token-1234": true,
	}
	for token, want := range cases {
		assert.Equal(t, want, ValidFormat(token), token)
	}
}

func TestClaims(t *testing.T) {
	tok := makeJWT(t, map[string]any{"sub": "svc@example.iam", "aud": "https://toolbox.run.app"})

	claims, err := Claims(tok)
	require.NoError(t, err)
	assert.Equal(t, "svc@example.iam", claims["sub"])

	claims, err = Claims("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "https://toolbox.run.app", claims["aud"])

	_, err = Claims("not-a-jwt")
	assert.Error(t, err)
	_, err = Claims("a.!!!.c")
	assert.Error(t, err)
}

func TestExpired(t *testing.T) {
	past := makeJWT(t, map[string]any{"exp": time.Now().Add(-time.Hour).Unix()})
	future := makeJWT(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix()})
	noExp := makeJWT(t, map[string]any{"sub": "x"})

	assert.True(t, Expired(past))
	assert.False(t, Expired(future))
	assert.False(t, Expired(noExp))
	assert.True(t, Expired("garbage"))
}

func TestStatic(t *testing.T) {
	tok, err := Static("opaque-token-1234").Token()
	require.NoError(t, err)
	assert.Equal(t, "opaque-token-1234", tok.AccessToken)
	assert.True(t, tok.Expiry.IsZero())

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	jwt := makeJWT(t, map[string]any{"exp": exp.Unix()})
	tok, err = Static(jwt).Token()
	require.NoError(t, err)
	assert.True(t, exp.Equal(tok.Expiry))
}

func TestEnv(t *testing.T) {
	t.Setenv("TRACEABILITY_TEST_TOKEN", "first-token-value")
	ts := Env("TRACEABILITY_TEST_TOKEN")

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "first-token-value", tok.AccessToken)

	t.Setenv("TRACEABILITY_TEST_TOKEN", "rotated-token-value")
	tok, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "rotated-token-value", tok.AccessToken)

	t.Setenv("TRACEABILITY_TEST_TOKEN", "")
	_, err = ts.Token()
	assert.ErrorContains(t, err, "TRACEABILITY_TEST_TOKEN")
}

func TestEnvDefaultVar(t *testing.T) {
	t.Setenv(DefaultEnvVar, "default-var-token")
	tok, err := Env("").Token()
	require.NoError(t, err)
	assert.Equal(t, "default-var-token", tok.AccessToken)
}

func TestFuncCaches(t *testing.T) {
	calls := 0
	ts := Func(context.Background(), func(context.Context) (string, error) {
		calls++
		return "generated-token", nil
	})

	for range 3 {
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "generated-token", tok.AccessToken)
	}
	assert.Equal(t, 1, calls)
}

func TestFuncErrors(t *testing.T) {
	_, err := Func(context.Background(), func(context.Context) (string, error) {
		return "", errors.New("vault sealed")
	}).Token()
	assert.ErrorContains(t, err, "vault sealed")

	_, err = Func(context.Background(), func(context.Context) (string, error) {
		return "", nil
	}).Token()
	assert.Error(t, err)
}

func TestBearerHeader(t *testing.T) {
	tok, err := BearerHeader(Static("opaque-token-1234")).Token()
	require.NoError(t, err)
	assert.Equal(t, "Bearer opaque-token-1234", tok.AccessToken)

	tok, err = BearerHeader(Static("Bearer already-prefixed")).Token()
	require.NoError(t, err)
	assert.Equal(t, "Bearer already-prefixed", tok.AccessToken)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	ts, err := New(ctx, Config{})
	require.NoError(t, err)
	assert.Nil(t, ts)

	ts, err = New(ctx, Config{Type: "static", Token: "opaque-token-1234"})
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "opaque-token-1234", tok.AccessToken)

	_, err = New(ctx, Config{Type: "static"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Type: "static", Token: "short"})
	assert.ErrorContains(t, err, "invalid format")

	t.Setenv("CUSTOM_VAR", "env-token-value")
	ts, err = New(ctx, Config{Type: "ENV", EnvVar: "CUSTOM_VAR"})
	require.NoError(t, err)
	tok, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "env-token-value", tok.AccessToken)

	_, err = New(ctx, Config{Type: "kerberos"})
	assert.ErrorContains(t, err, "kerberos")
}
