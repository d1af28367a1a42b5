package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"approline/internal/config"
	"approline/internal/db"
	"approline/internal/engine"
	"approline/internal/migrate"
)

const testJWTSecret = "test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("uc-ppp"))
	e.Now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine: e,
		Auth:   AuthConfig{JWTSecret: testJWTSecret, DevLogin: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *httptest.Server, name, role string) map[string]string {
	t.Helper()
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]string{
		"name": name,
		"role": role,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var body map[string]string
	_ = json.Unmarshal(data, &body)
	if body["token"] == "" {
		t.Fatalf("no token in %s", string(data))
	}
	return map[string]string{"Authorization": "Bearer " + body["token"]}
}

func submitProject(t *testing.T, srv *httptest.Server, headers map[string]string) string {
	t.Helper()
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title":     "Port Sec de Kasumbalesa",
		"authority": "OGEFREM",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p.ID
}

func TestAuthenticationRequired(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	// health stays open
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
}

func TestDecisionFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "Administrateur")
	sectoral := login(t, srv, "OGEFREM", "Ministère Sectoriel / AC")
	projectID := submitProject(t, srv, sectoral)

	// the gated role advances the stage
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/decisions", map[string]any{
		"action":  "FAVORABLE",
		"comment": "Dossier complet",
	}, sectoral)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("decision: %d %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	_ = json.Unmarshal(data, &p)
	if p.Stage != "p1.avis_conforme_uc" {
		t.Fatalf("stage = %s", p.Stage)
	}
	if len(p.History) != 1 {
		t.Fatalf("history = %+v", p.History)
	}

	// an ungated role gets the error envelope with 403
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/decisions", map[string]any{
		"action":  "FAVORABLE",
		"comment": "je valide",
	}, login(t, srv, "dgcmp", "DGCMP"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "decision_forbidden" {
		t.Fatalf("code = %s", envelope.Error.Code)
	}
	if envelope.Error.Details["gating_role"] != "Coordonnateur UC-PPP" {
		t.Fatalf("details = %+v", envelope.Error.Details)
	}

	// blank justification is 422
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/decisions", map[string]any{
		"action":  "FAVORABLE",
		"comment": "   ",
	}, admin)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
}

func TestRejectionAndForceStage(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "Administrateur")
	projectID := submitProject(t, srv, admin)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/decisions", map[string]any{
		"action":  "REJET",
		"comment": "Non conforme au cadre légal",
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("reject: %d %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	_ = json.Unmarshal(data, &p)
	if p.Stage != "rejete" {
		t.Fatalf("stage = %s", p.Stage)
	}

	// coordinator may force the dossier back into review
	coord := login(t, srv, "coordination", "Coordonnateur UC-PPP")
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/stage", map[string]any{
		"stage":  "p2.faisabilite",
		"reason": "reprise après recours",
	}, coord)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("force: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &p)
	if p.Stage != "p2.faisabilite" {
		t.Fatalf("stage = %s", p.Stage)
	}

	// other roles may not
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/stage", map[string]any{
		"stage":  "actif",
		"reason": "non",
	}, login(t, srv, "dgcmp", "DGCMP"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
}

func TestPhaseFilterAndCatalog(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "Administrateur")
	submitProject(t, srv, admin)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/projects?phase=identification", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var items []ProjectResponse
	_ = json.Unmarshal(data, &items)
	if len(items) != 1 {
		t.Fatalf("identification = %+v", items)
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/projects?phase=passation", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	items = nil
	_ = json.Unmarshal(data, &items)
	if len(items) != 0 {
		t.Fatalf("passation = %+v", items)
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/catalog/stages", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("catalog: %d %s", res.StatusCode, string(data))
	}
	var stages []StageResponse
	_ = json.Unmarshal(data, &stages)
	if len(stages) != 9 {
		t.Fatalf("stage count = %d", len(stages))
	}
}

func TestPublicPortalNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "Administrateur")
	projectID := submitProject(t, srv, admin)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/public/projects", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("public list: %d %s", res.StatusCode, string(data))
	}
	var items []PublicProjectResponse
	_ = json.Unmarshal(data, &items)
	if len(items) != 1 || items[0].ID != projectID {
		t.Fatalf("public items = %+v", items)
	}
	// no history leaks through the public shape
	if bytes.Contains(data, []byte("history")) {
		t.Fatalf("public payload leaks history: %s", string(data))
	}

	// summary degrades to 503 without an AI key
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/public/projects/"+projectID+"/summary", nil, nil)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "admin", "Administrateur")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"actor_name": "OGEFREM",
		"role":       "Ministère Sectoriel / AC",
		"name":       "ci",
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, string(data))
	}
	var created APIKeyResponse
	_ = json.Unmarshal(data, &created)
	if created.Key == "" {
		t.Fatalf("clear key missing: %s", string(data))
	}

	keyHeaders := map[string]string{"X-Api-Key": created.Key}
	projectID := submitProject(t, srv, keyHeaders)
	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/profiles/me", nil, keyHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me map[string]any
	_ = json.Unmarshal(data, &me)
	if me["name"] != "OGEFREM" || me["source"] != "api_key" {
		t.Fatalf("me = %+v", me)
	}

	// non-admin cannot mint keys
	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"actor_name": "x", "role": "DGCMP",
	}, login(t, srv, "dgcmp", "DGCMP"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.StatusCode)
	}
	_ = projectID
}

func TestPendingQueue(t *testing.T) {
	srv := newTestServer(t)
	sectoral := login(t, srv, "OGEFREM", "Ministère Sectoriel / AC")
	projectID := submitProject(t, srv, sectoral)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/pending", nil, sectoral)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pending: %d %s", res.StatusCode, string(data))
	}
	var items []ProjectResponse
	_ = json.Unmarshal(data, &items)
	if len(items) != 1 || items[0].ID != projectID {
		t.Fatalf("pending = %+v", items)
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/pending", nil, login(t, srv, "dgcmp", "DGCMP"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pending: %d %s", res.StatusCode, string(data))
	}
	items = nil
	_ = json.Unmarshal(data, &items)
	if len(items) != 0 {
		t.Fatalf("dgcmp pending = %+v", items)
	}
}
