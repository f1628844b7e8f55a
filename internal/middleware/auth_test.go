package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/services"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

// fakeAuthService records how the middleware drove it.
type fakeAuthService struct {
	validCtx       *types.AuthContext
	validatedWith  string
	missingKeyHits int
}

func (f *fakeAuthService) CreateKey(ctx context.Context, name string, roles, kbScopes []string, expiresInDays int) (*services.CreatedKey, error) {
	return nil, nil
}

func (f *fakeAuthService) ValidateKey(ctx context.Context, plaintext string) (*types.AuthContext, error) {
	f.validatedWith = plaintext
	return f.validCtx, nil
}

func (f *fakeAuthService) RevokeKey(ctx context.Context, keyID string) (bool, error) {
	return false, nil
}

func (f *fakeAuthService) RecordMissingKey(ctx context.Context) {
	f.missingKeyHits++
}

func (f *fakeAuthService) Authorize(authCtx *types.AuthContext, resource, action, kbID string) error {
	return nil
}

func authTestRouter(t *testing.T, svc services.AuthService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewAuthMiddleware(testLogger(t), svc).RequireAuth())
	r.GET("/secured", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRequireAuthMissingKeyIsAudited(t *testing.T) {
	svc := &fakeAuthService{}
	r := authTestRouter(t, svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secured", nil)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=%d got=%d", http.StatusUnauthorized, rec.Code)
	}
	if svc.missingKeyHits != 1 {
		t.Fatalf("missing-key audit hits: want=1 got=%d", svc.missingKeyHits)
	}
	if svc.validatedWith != "" {
		t.Fatalf("ValidateKey called with %q for a keyless request", svc.validatedWith)
	}
}

func TestRequireAuthAcceptsHeaderAndBearer(t *testing.T) {
	cases := []struct {
		name  string
		apply func(*http.Request)
	}{
		{"x-api-key header", func(req *http.Request) { req.Header.Set("X-API-Key", "kgb_abc") }},
		{"bearer token", func(req *http.Request) { req.Header.Set("Authorization", "Bearer kgb_abc") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeAuthService{validCtx: &types.AuthContext{APIKeyID: "k1"}}
			r := authTestRouter(t, svc)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/secured", nil)
			tc.apply(req)
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
			}
			if svc.validatedWith != "kgb_abc" {
				t.Fatalf("validated key: want=%q got=%q", "kgb_abc", svc.validatedWith)
			}
			if svc.missingKeyHits != 0 {
				t.Fatalf("missing-key audit hits: want=0 got=%d", svc.missingKeyHits)
			}
		})
	}
}

func TestRequireAuthRejectsInvalidKey(t *testing.T) {
	svc := &fakeAuthService{} // validCtx nil: every key is unknown
	r := authTestRouter(t, svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secured", nil)
	req.Header.Set("X-API-Key", "kgb_bogus")
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=%d got=%d", http.StatusUnauthorized, rec.Code)
	}
	if svc.missingKeyHits != 0 {
		t.Fatalf("missing-key audit hits: want=0 got=%d", svc.missingKeyHits)
	}
}
