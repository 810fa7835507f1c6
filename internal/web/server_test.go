package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/saltyorg/jellygate/internal/config"
	"github.com/saltyorg/jellygate/internal/credentials"
	"github.com/saltyorg/jellygate/internal/database"
	"github.com/saltyorg/jellygate/internal/jellyfin"
	"github.com/saltyorg/jellygate/internal/repository"
	"github.com/saltyorg/jellygate/internal/session"
)

type webEnv struct {
	db     *database.DB
	holder *session.Holder
	server *Server
	srv    *httptest.Server
	apiKey string
}

func newWebEnv(t *testing.T, jellyfinURL string) *webEnv {
	t.Helper()
	t.Setenv("JELLYGATE_API_KEY", "")

	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "test.db")

	db, err := database.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	if err := db.InitializeDefaults(); err != nil {
		t.Fatalf("failed to initialize defaults: %v", err)
	}

	creds, err := credentials.Open(db)
	if err != nil {
		t.Fatalf("failed to open credential store: %v", err)
	}
	holder := session.NewHolder()
	factory := jellyfin.NewFactory(jellyfin.DeviceInfo{Client: "Jellygate", Device: "testhost", DeviceID: "dev-1", Version: "0.0.0"})
	repo := repository.New(db, config.NewLoader(db), holder, creds, factory)

	if jellyfinURL != "" {
		server := &database.Server{URL: jellyfinURL, Name: "Test", Username: "amy", UserID: "user-1", AccessToken: "tok-1", LastLogin: time.Now()}
		id, err := db.UpsertServer(server)
		if err != nil {
			t.Fatalf("failed to seed server: %v", err)
		}
		if err := db.SetActiveServer(id); err != nil {
			t.Fatalf("failed to mark server active: %v", err)
		}
		holder.Replace(session.Session{ServerURL: jellyfinURL, UserID: "user-1", Username: "amy", Token: "tok-1", LoginAt: time.Now()})
	}

	s, err := NewServer(db, repo, holder, 0, "127.0.0.1", nil)
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	t.Cleanup(s.sseBroker.Stop)

	apiKey, err := db.GetSetting("api.key")
	if err != nil || apiKey == "" {
		t.Fatalf("expected a generated API key, got %q (%v)", apiKey, err)
	}

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	return &webEnv{db: db, holder: holder, server: s, srv: srv, apiKey: apiKey}
}

func (e *webEnv) do(t *testing.T, method, path string, withKey bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if withKey {
		req.Header.Set("X-API-Key", e.apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *webEnv) get(t *testing.T, path string, withKey bool) *http.Response {
	t.Helper()
	return e.do(t, "GET", path, withKey)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestHealthEndpointIsPublic(t *testing.T) {
	env := newWebEnv(t, "")

	resp := env.get(t, "/api/health", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Errorf(`body["status"] = %v, want ok`, body["status"])
	}
	if body["authenticated"] != false {
		t.Errorf(`body["authenticated"] = %v, want false`, body["authenticated"])
	}
}

func TestAPIRequiresKey(t *testing.T) {
	env := newWebEnv(t, "")

	resp := env.get(t, "/api/session", false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", resp.StatusCode)
	}

	resp = env.get(t, "/api/session", true)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status with key = %d, want 200", resp.StatusCode)
	}
}

func TestGeneratedKeyIsStable(t *testing.T) {
	env := newWebEnv(t, "")

	// A second server over the same database reuses the stored key
	again, err := ensureAPIKey(env.db)
	if err != nil {
		t.Fatalf("ensureAPIKey returned error: %v", err)
	}
	if again != env.apiKey {
		t.Errorf("key changed across restarts: %q then %q", env.apiKey, again)
	}
}

func TestSessionEndpoint(t *testing.T) {
	env := newWebEnv(t, "http://jf.local:8096")

	resp := env.get(t, "/api/session", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["authenticated"] != true {
		t.Errorf(`body["authenticated"] = %v, want true`, body["authenticated"])
	}
	if body["username"] != "amy" {
		t.Errorf(`body["username"] = %v, want amy`, body["username"])
	}
}

func TestViewsEndpoint(t *testing.T) {
	jf := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/user-1/Views" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items": [{"Id": "lib-1", "Name": "Movies"}], "TotalRecordCount": 1}`))
	}))
	defer jf.Close()

	env := newWebEnv(t, jf.URL)

	resp := env.get(t, "/api/views", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	items, ok := body["Items"].([]any)
	if !ok || len(items) != 1 {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestViewsEndpointWhenSignedOut(t *testing.T) {
	env := newWebEnv(t, "")

	resp := env.get(t, "/api/views", true)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when signed out", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["error"] == nil {
		t.Error("expected an error message")
	}
}

func TestStreamURLEndpoint(t *testing.T) {
	env := newWebEnv(t, "http://jf.local:8096")

	resp := env.get(t, "/api/items/item-1/stream-url?container=mkv", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	rawURL, _ := body["url"].(string)
	if !strings.Contains(rawURL, "/Videos/item-1/stream") {
		t.Errorf("url = %q, want a stream path", rawURL)
	}
	if !strings.Contains(rawURL, "api_key=tok-1") {
		t.Errorf("url = %q, want the session token", rawURL)
	}
	if !strings.Contains(rawURL, "Container=mkv") {
		t.Errorf("url = %q, want the requested container", rawURL)
	}
}

func TestSyncEndpointWithoutManager(t *testing.T) {
	env := newWebEnv(t, "")

	resp := env.get(t, "/api/sync", true)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without a sync manager", resp.StatusCode)
	}
}

func TestLibrariesEndpointUsesCache(t *testing.T) {
	env := newWebEnv(t, "http://jf.local:8096")

	server, err := env.db.GetActiveServer()
	if err != nil || server == nil {
		t.Fatalf("expected an active server: %v", err)
	}
	libs := []database.Library{
		{ServerID: server.ID, ViewID: "lib-1", Name: "Movies", CollectionType: "movies", ItemCount: 120, RefreshedAt: time.Now()},
	}
	if err := env.db.ReplaceLibraries(server.ID, libs); err != nil {
		t.Fatalf("ReplaceLibraries returned error: %v", err)
	}

	resp := env.get(t, "/api/libraries", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("got %d libraries, want 1", len(body))
	}
	if body[0]["name"] != "Movies" {
		t.Errorf(`name = %v, want Movies`, body[0]["name"])
	}
	if body[0]["item_count"] != float64(120) {
		t.Errorf(`item_count = %v, want 120`, body[0]["item_count"])
	}
}

func TestDeleteServerEndpoint(t *testing.T) {
	env := newWebEnv(t, "http://jf.local:8096")

	active, err := env.db.GetActiveServer()
	if err != nil || active == nil {
		t.Fatalf("expected an active server: %v", err)
	}
	otherID, err := env.db.UpsertServer(&database.Server{URL: "http://other.local:8096", Name: "Other", Username: "bob"})
	if err != nil {
		t.Fatalf("failed to seed second server: %v", err)
	}

	resp := env.do(t, "DELETE", fmt.Sprintf("/api/servers/%d", otherID), true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", resp.StatusCode)
	}
	servers, err := env.db.ListServers()
	if err != nil {
		t.Fatalf("ListServers returned error: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("got %d servers after delete, want 1", len(servers))
	}

	resp = env.do(t, "DELETE", fmt.Sprintf("/api/servers/%d", active.ID), true)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("deleting active server: status = %d, want 409", resp.StatusCode)
	}

	resp = env.do(t, "DELETE", "/api/servers/abc", true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", resp.StatusCode)
	}
}
