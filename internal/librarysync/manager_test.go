package librarysync

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/saltyorg/jellygate/internal/config"
	"github.com/saltyorg/jellygate/internal/credentials"
	"github.com/saltyorg/jellygate/internal/database"
	"github.com/saltyorg/jellygate/internal/jellyfin"
	"github.com/saltyorg/jellygate/internal/repository"
	"github.com/saltyorg/jellygate/internal/session"
)

func newTestManager(t *testing.T, serverURL string) (*Manager, *database.DB, int64) {
	t.Helper()
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

	var serverID int64
	if serverURL != "" {
		server := &database.Server{URL: serverURL, Name: "Test", Username: "amy", UserID: "user-1", AccessToken: "tok-1", LastLogin: time.Now()}
		serverID, err = db.UpsertServer(server)
		if err != nil {
			t.Fatalf("failed to seed server: %v", err)
		}
		if err := db.SetActiveServer(serverID); err != nil {
			t.Fatalf("failed to mark server active: %v", err)
		}
		holder.Replace(session.Session{ServerURL: serverURL, UserID: "user-1", Username: "amy", Token: "tok-1", LoginAt: time.Now()})
	}

	return New(db, config.NewLoader(db), repo), db, serverID
}

func waitForRefresh(t *testing.T, mgr *Manager) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for mgr.Status().IsSyncing {
		if time.Now().After(deadline) {
			t.Fatal("refresh did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRefreshCachesLibraries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/Users/user-1/Views":
			_, _ = w.Write([]byte(`{"Items": [
				{"Id": "lib-1", "Name": "Movies", "CollectionType": "movies"},
				{"Id": "lib-2", "Name": "Shows", "CollectionType": "tvshows"}
			], "TotalRecordCount": 2}`))
		case "/Users/user-1/Items":
			if r.URL.Query().Get("ParentId") == "lib-1" {
				_, _ = w.Write([]byte(`{"Items": [{"Id": "m1", "Name": "A Movie"}], "TotalRecordCount": 120}`))
				return
			}
			_, _ = w.Write([]byte(`{"Items": [{"Id": "s1", "Name": "A Show"}], "TotalRecordCount": 45}`))
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	mgr, db, serverID := newTestManager(t, srv.URL)

	mgr.TriggerRefresh("test")
	waitForRefresh(t, mgr)

	libs, err := db.ListLibraries(serverID)
	if err != nil {
		t.Fatalf("ListLibraries returned error: %v", err)
	}
	if len(libs) != 2 {
		t.Fatalf("cached %d libraries, want 2", len(libs))
	}
	// Sorted by name: Movies then Shows
	if libs[0].Name != "Movies" || libs[0].ItemCount != 120 {
		t.Errorf("unexpected first library: %+v", libs[0])
	}
	if libs[1].Name != "Shows" || libs[1].ItemCount != 45 {
		t.Errorf("unexpected second library: %+v", libs[1])
	}

	status := mgr.Status()
	if status.LastRun.IsZero() {
		t.Error("LastRun should be recorded after a refresh")
	}
	if status.LastError != "" {
		t.Errorf("LastError = %q, want empty", status.LastError)
	}
}

func TestRefreshSkipsWhenSignedOut(t *testing.T) {
	mgr, _, _ := newTestManager(t, "")

	mgr.TriggerRefresh("test")
	waitForRefresh(t, mgr)

	status := mgr.Status()
	if !status.LastRun.IsZero() {
		t.Error("a skipped refresh should not count as a run")
	}
	if status.LastError != "" {
		t.Errorf("LastError = %q, want empty", status.LastError)
	}
}

func TestRefreshRecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	mgr, _, _ := newTestManager(t, srv.URL)

	mgr.TriggerRefresh("test")
	waitForRefresh(t, mgr)

	status := mgr.Status()
	if status.LastRun.IsZero() {
		t.Error("a failed refresh should still be recorded")
	}
	if status.LastError == "" {
		t.Error("LastError should carry the failure")
	}
}

func TestStatusDefaults(t *testing.T) {
	mgr, _, _ := newTestManager(t, "")

	status := mgr.Status()
	if !status.Enabled {
		t.Error("sync should be enabled by default")
	}
	if status.Schedule != DefaultSchedule {
		t.Errorf("schedule = %q, want %q", status.Schedule, DefaultSchedule)
	}
	if status.IsSyncing {
		t.Error("new manager should not be syncing")
	}
}

func TestTriggerRefreshSkipsWhileRunning(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Users/user-1/Views" {
			<-block
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items": [], "TotalRecordCount": 0}`))
	}))
	defer srv.Close()

	mgr, _, _ := newTestManager(t, srv.URL)

	mgr.TriggerRefresh("first")
	if !mgr.Status().IsSyncing {
		t.Fatal("first refresh should be running")
	}
	// A second trigger while the first is blocked is a no-op
	mgr.TriggerRefresh("second")

	close(block)
	waitForRefresh(t, mgr)
}
