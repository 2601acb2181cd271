package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("secret", time.Hour)

	tok, err := a.IssueJWT("stu-1", "student")
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", c.Sub)
	assert.Equal(t, "student", c.Role)
}

func TestParseRejects(t *testing.T) {
	a := NewAuthService("secret", time.Hour)

	t.Run("wrong key", func(t *testing.T) {
		tok, err := NewAuthService("other", time.Hour).IssueJWT("stu-1", "student")
		require.NoError(t, err)
		_, err = a.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewAuthService("secret", time.Minute)
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		tok, err := old.IssueJWT("stu-1", "student")
		require.NoError(t, err)
		_, err = a.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		tok, err := a.IssueJWT("stu-1", "ghost")
		require.NoError(t, err)
		_, err = a.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("alg none", func(t *testing.T) {
		claims := &Claims{Sub: "root", Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = a.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestJWTMiddleware(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	var got exam.Actor
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ActorFromContext(r)
		assert.Equal(t, "professor", rbac.RoleFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := a.IssueJWT("prof-1", "professor")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, exam.Actor{ID: "prof-1", Role: exam.RoleProfessor}, got)
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	a := NewAuthService("secret", time.Hour)

	post := func(cfg LoginConfig, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		LoginHandler(a, cfg, nil).ServeHTTP(rec, req)
		return rec
	}
	online := LoginConfig{AdminUser: "admin", AdminPassHash: string(hash)}
	offline := online
	offline.AllowDevLogin = true

	rec := post(online, `{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"admin"`)

	assert.Equal(t, http.StatusUnauthorized, post(online, `{"username":"admin","password":"nope"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(online, `{"username":"stu-1","password":"stu-1","role":"student"}`).Code)
	assert.Equal(t, http.StatusOK, post(offline, `{"username":"stu-1","password":"stu-1","role":"student"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(offline, `{"username":"x","password":"x","role":"admin"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(offline, `{`).Code)
}
