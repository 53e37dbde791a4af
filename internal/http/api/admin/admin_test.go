package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/soldierhq/helpergate/internal/config"
	"github.com/soldierhq/helpergate/internal/db"
	"github.com/soldierhq/helpergate/internal/security"
	internalsettings "github.com/soldierhq/helpergate/internal/settings"
	"github.com/soldierhq/helpergate/internal/store"
)

const testAdminToken = "admin-secret"

func newAdminEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "admin.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	hash, errHash := security.HashAdminToken(testAdminToken)
	if errHash != nil {
		t.Fatalf("hash token: %v", errHash)
	}
	r := gin.New()
	RegisterAdminRoutes(r, conn, store.NewBillingStore(conn), config.AdminConfig{TokenHash: hash})
	t.Cleanup(func() { internalsettings.StoreDBConfig(nil) })
	return r
}

func adminRequest(r *gin.Engine, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthzIsPublic(t *testing.T) {
	r := newAdminEngine(t)
	w := adminRequest(r, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	r := newAdminEngine(t)
	if w := adminRequest(r, http.MethodGet, "/v0/admin/settings", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := adminRequest(r, http.MethodGet, "/v0/admin/settings", "", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
}

func TestAdminDisabledWithoutHash(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "admin.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	r := gin.New()
	RegisterAdminRoutes(r, conn, store.NewBillingStore(conn), config.AdminConfig{})
	if w := adminRequest(r, http.MethodGet, "/v0/admin/settings", "", testAdminToken); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRecordPurchaseAndSearchGrants(t *testing.T) {
	r := newAdminEngine(t)
	body := `{"clerkId":"user_1","planId":"lifetime","planType":"BUNDLE","amount":99,"unlockedSoldiers":["buddy","sage"]}`
	w := adminRequest(r, http.MethodPost, "/v0/admin/purchases", body, testAdminToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created map[string]any
	if errDecode := json.Unmarshal(w.Body.Bytes(), &created); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if created["interval"] != "LIFETIME" {
		t.Fatalf("expected LIFETIME interval, got %v", created["interval"])
	}

	w = adminRequest(r, http.MethodGet, "/v0/admin/grants?helper=sage", "", testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var listed struct {
		Grants []map[string]any `json:"grants"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &listed); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if len(listed.Grants) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(listed.Grants))
	}

	w = adminRequest(r, http.MethodPost, "/v0/admin/purchases", `{"planId":"starter","unlockedSoldiers":["buddy"]}`, testAdminToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without clerkId, got %d", w.Code)
	}
}

func TestUpsertAndGetUser(t *testing.T) {
	r := newAdminEngine(t)
	w := adminRequest(r, http.MethodPut, "/v0/admin/users", `{"clerkId":"user_1","name":"Ann"}`, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = adminRequest(r, http.MethodGet, "/v0/admin/users/user_1", "", testAdminToken)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Ann") {
		t.Fatalf("expected user, got %d: %s", w.Code, w.Body.String())
	}
	w = adminRequest(r, http.MethodGet, "/v0/admin/users/missing", "", testAdminToken)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSettingsUpdateRefreshesSnapshot(t *testing.T) {
	r := newAdminEngine(t)
	w := adminRequest(r, http.MethodPut, "/v0/admin/settings/"+internalsettings.RateLimitKey, `{"value":5}`, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitKey)
	if !ok || string(raw) != "5" {
		t.Fatalf("expected snapshot value 5, got %q (ok=%v)", raw, ok)
	}

	w = adminRequest(r, http.MethodPut, "/v0/admin/settings/"+internalsettings.RateLimitKey, `{"value":-1}`, testAdminToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative value, got %d", w.Code)
	}
	w = adminRequest(r, http.MethodPut, "/v0/admin/settings/UNKNOWN", `{"value":1}`, testAdminToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown key, got %d", w.Code)
	}

	w = adminRequest(r, http.MethodDelete, "/v0/admin/settings/"+internalsettings.RateLimitKey, "", testAdminToken)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if _, ok := internalsettings.DBConfigValue(internalsettings.RateLimitKey); ok {
		t.Fatalf("expected snapshot cleared after delete")
	}
}
