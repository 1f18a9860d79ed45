package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paud-admission-api/internal/models"
)

const (
	testSecret = "test-secret"
	testIssuer = "paud-sso"
)

func mintToken(t *testing.T, secret string, claims models.StaffClaims) string {
	t.Helper()
	if claims.Issuer == "" {
		claims.Issuer = testIssuer
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func buildProtectedRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(testSecret, testIssuer)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		claims, _ := ClaimsFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	r.GET("/institutions/:id/waitlist", handlers...)
	return r
}

func performRequest(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAcceptsValidToken(t *testing.T) {
	r := buildProtectedRouter()
	token := mintToken(t, testSecret, models.StaffClaims{UserID: "staff-1", Role: models.RoleAdmin})

	w := performRequest(r, http.MethodGet, "/institutions/inst-1/waitlist", token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"user_id":"staff-1"`)
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r := buildProtectedRouter()

	w := performRequest(r, http.MethodGet, "/institutions/inst-1/waitlist", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	r := buildProtectedRouter()
	token := mintToken(t, "other-secret", models.StaffClaims{UserID: "staff-1", Role: models.RoleAdmin})

	w := performRequest(r, http.MethodGet, "/institutions/inst-1/waitlist", token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	r := buildProtectedRouter()
	token := mintToken(t, testSecret, models.StaffClaims{
		UserID: "staff-1",
		Role:   models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	w := performRequest(r, http.MethodGet, "/institutions/inst-1/waitlist", token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRolesForbidsOutsiders(t *testing.T) {
	r := buildProtectedRouter(RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
	token := mintToken(t, testSecret, models.StaffClaims{UserID: "staff-1", Role: models.RoleStaff})

	w := performRequest(r, http.MethodGet, "/institutions/inst-1/waitlist", token)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestInstitutionScopeBlocksForeignInstitution(t *testing.T) {
	r := buildProtectedRouter(InstitutionScope("id"))
	token := mintToken(t, testSecret, models.StaffClaims{
		UserID: "staff-1", Role: models.RoleStaff, InstitutionID: "inst-2",
	})

	w := performRequest(r, http.MethodGet, "/institutions/inst-1/waitlist", token)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestInstitutionScopeAllowsSuperadminEverywhere(t *testing.T) {
	r := buildProtectedRouter(InstitutionScope("id"))
	token := mintToken(t, testSecret, models.StaffClaims{
		UserID: "root-1", Role: models.RoleSuperAdmin, InstitutionID: "inst-2",
	})

	w := performRequest(r, http.MethodGet, "/institutions/inst-1/waitlist", token)
	require.Equal(t, http.StatusOK, w.Code)
}
