package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("faceattend", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("id-1", "S1", "student")
	require.NoError(t, err)

	claims, err := iss.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "id-1", claims.Subject)
	assert.Equal(t, "S1", claims.UserID)
	assert.Equal(t, "student", claims.Role)

	_, err = iss.Parse(pair.RefreshToken)
	assert.Error(t, err, "refresh tokens are not accepted as access tokens")
	_, err = iss.ParseRefresh(pair.RefreshToken)
	assert.NoError(t, err)
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("faceattend", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("id-1", "S1", "student")
	require.NoError(t, err)

	other := NewIssuer("faceattend", "other-key", time.Minute, time.Hour)
	_, err = other.Parse(pair.AccessToken)
	assert.Error(t, err)

	wrongIssuer := NewIssuer("someone-else", "secret", time.Minute, time.Hour)
	_, err = wrongIssuer.Parse(pair.AccessToken)
	assert.Error(t, err)

	later := NewIssuer("faceattend", "secret", time.Minute, time.Hour)
	later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = later.Parse(pair.AccessToken)
	assert.Error(t, err, "expired")
}

func TestMiddlewareAndRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("faceattend", "secret", time.Minute, time.Hour)
	r := gin.New()
	r.GET("/admin", Middleware(iss), RequireRole("admin"), func(c *gin.Context) {
		claims, _ := FromContext(c)
		c.String(http.StatusOK, claims.UserID)
	})

	do := func(header string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer nope").Code)

	student, err := iss.Issue("id-1", "S1", "student")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do("Bearer "+student.AccessToken).Code)

	admin, err := iss.Issue("id-2", "admin", "admin")
	require.NoError(t, err)
	w := do("bearer " + admin.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", w.Body.String())
}
