package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"shardscan/pkg/coordinator"
	"shardscan/pkg/mercy"
	"shardscan/pkg/store"
	"shardscan/pkg/summary"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	// allow callers to pass nil for body safely
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	appLog = newLogger()
	conf, err := loadConfig("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	jwtSecret = []byte(conf.JWTSecret)
	if err := initDB(conf); err != nil {
		t.Fatalf("db: %v", err)
	}
	dataStore = store.NewGormStore(db)

	locks := coordinator.NewKeyLock()
	retryPolicy := coordinator.DefaultRetryPolicy(appLog)
	workers = coordinator.NewWorkerPool(conf.OCR.Workers)
	scanCache = NewScanCache(conf.Cache.SizeMB, conf.Cache.TTL, appLog)
	ledger = mercy.NewLedger(dataStore, locks, retryPolicy, conf.Mercy.Baseline, appLog)
	summaries = summary.NewManager(dataStore, locks, retryPolicy, conf.Summary.PageSize, appLog)

	r := gin.Default()
	setupRoutes(r)
	return r
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)

	// 1. Register user
	regBody, _ := json.Marshal(map[string]string{"username": "user1", "password": "pass01", "discord_id": "u-1001"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 && resp.Code != 409 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 2. Login
	loginBody, _ := json.Marshal(map[string]string{"username": "user1", "password": "pass01"})
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(loginBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}

	// 3. Record a pull batch
	pullBody, _ := json.Marshal(map[string]any{
		"group_id": "g-it", "user_id": "u-1001", "shard_type": "sacred",
		"quantity": 4, "idempotency_key": "it-pull-1",
	})
	resp = performRequest(r, http.MethodPost, "/pulls", bytes.NewBuffer(pullBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("record pulls failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 4. Mercy state readable
	resp = performRequest(r, http.MethodGet, "/mercy/u-1001", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("mercy state failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 5. Confirm a manual snapshot
	snapBody, _ := json.Marshal(map[string]any{
		"group_id": "g-it", "user_id": "u-1001", "user_name": "User One",
		"message_ref": "m-it-1", "source": "manual",
		"counts": map[string]int{"mystery": 12, "ancient": 3, "void": 1, "primal": 0, "sacred": 2},
	})
	resp = performRequest(r, http.MethodPost, "/snapshots", bytes.NewBuffer(snapBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("confirm snapshot failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 6. Summary exists for the current week after the confirm
	resp = performRequest(r, http.MethodGet, "/groups/g-it/summary", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("get summary failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 7. Explicit refresh is an edit, not a second artifact
	resp = performRequest(r, http.MethodPost, "/groups/g-it/summary/refresh", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("refresh summary failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var refreshResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &refreshResp)
	if created, _ := refreshResp["created"].(bool); created {
		t.Fatalf("refresh within the same week must edit in place, got a new artifact")
	}

	// 8. Mercy override requires staff
	setBody, _ := json.Marshal(map[string]any{"user_id": "u-1001", "shard_type": "sacred", "value": 10})
	resp = performRequest(r, http.MethodPost, "/mercy/set", bytes.NewBuffer(setBody), token, "application/json")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-staff mercy override, got %d", resp.Code)
	}

	// 9. Staff account can override
	adminLogin, _ := json.Marshal(map[string]string{"username": "admin", "password": "admin123"})
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(adminLogin), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("admin login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var adminResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &adminResp)
	adminToken, _ := adminResp["token"].(string)
	resp = performRequest(r, http.MethodPost, "/mercy/set", bytes.NewBuffer(setBody), adminToken, "application/json")
	if resp.Code != 200 {
		t.Fatalf("staff mercy override failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 10. Unauthorized access to protected endpoint should be 401
	unauth := performRequest(r, http.MethodGet, "/mercy/u-1001", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized mercy read, got %d", unauth.Code)
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	appLog = newLogger()
	conf, err := loadConfig("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := initDB(conf); err != nil {
		t.Fatalf("db: %v", err)
	}
}
