package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing"

func signClaims(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTVerifier_IssueThenVerify(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token, err := v.Issue("user-1", "knit@example.com", "customer", time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, &Principal{
		UserID: "user-1",
		Email:  "knit@example.com",
		Role:   "customer",
		Token:  token,
	}, p)
}

func TestJWTVerifier_SubjectFallback(t *testing.T) {
	token := signClaims(t, testSecret, jwt.MapClaims{
		"sub": "user-456",
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	p, err := NewJWTVerifier(testSecret).Verify(token)

	require.NoError(t, err)
	assert.Equal(t, "user-456", p.UserID)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return signClaims(t, "other-secret", jwt.MapClaims{"user_id": "u", "exp": jwt.NewNumericDate(time.Now().Add(time.Hour))})
			},
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				return signClaims(t, testSecret, jwt.MapClaims{"user_id": "u", "exp": jwt.NewNumericDate(time.Now().Add(-time.Hour))})
			},
		},
		{
			name: "no user id",
			token: func(t *testing.T) string {
				return signClaims(t, testSecret, jwt.MapClaims{"email": "a@b.c", "exp": jwt.NewNumericDate(time.Now().Add(time.Hour))})
			},
		},
		{
			name: "unsigned",
			token: func(t *testing.T) string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "u"}).
					SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return s
			},
		},
		{
			name:  "garbage",
			token: func(t *testing.T) string { return "not-a-jwt" },
		},
	}

	v := NewJWTVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := v.Verify(tt.token(t))
			assert.Error(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = BearerToken("bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = BearerToken("")
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = BearerToken("Basic dXNlcg==")
	assert.Error(t, err)

	_, err = BearerToken("Bearer ")
	assert.Error(t, err)
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, Context{}.CurrentPrincipal(ctx))

	p := &Principal{UserID: "u"}
	assert.Same(t, p, Context{}.CurrentPrincipal(NewContext(ctx, p)))
}

func TestStatic(t *testing.T) {
	p := &Principal{UserID: "u"}
	assert.Same(t, p, Static{Principal: p}.CurrentPrincipal(context.Background()))
	assert.Nil(t, Static{}.CurrentPrincipal(context.Background()))
}
