package database

import "testing"

func TestSettingRoundTrip(t *testing.T) {
	db := newTestDB(t)

	if err := db.SetSetting("sync.schedule", "@every 1h"); err != nil {
		t.Fatalf("SetSetting returned error: %v", err)
	}

	got, err := db.GetSetting("sync.schedule")
	if err != nil {
		t.Fatalf("GetSetting returned error: %v", err)
	}
	if got != "@every 1h" {
		t.Errorf("GetSetting = %q, want %q", got, "@every 1h")
	}
}

func TestSettingOverwrite(t *testing.T) {
	db := newTestDB(t)

	if err := db.SetSetting("log.level", "info"); err != nil {
		t.Fatalf("SetSetting returned error: %v", err)
	}
	if err := db.SetSetting("log.level", "debug"); err != nil {
		t.Fatalf("SetSetting returned error: %v", err)
	}

	got, err := db.GetSetting("log.level")
	if err != nil {
		t.Fatalf("GetSetting returned error: %v", err)
	}
	if got != "debug" {
		t.Errorf("GetSetting = %q, want %q", got, "debug")
	}
}

func TestGetMissingSetting(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetSetting("does.not.exist")
	if err != nil {
		t.Fatalf("GetSetting returned error: %v", err)
	}
	if got != "" {
		t.Errorf("missing setting should be empty, got %q", got)
	}
}

func TestDeleteSetting(t *testing.T) {
	db := newTestDB(t)

	if err := db.SetSetting("log.level", "debug"); err != nil {
		t.Fatalf("SetSetting returned error: %v", err)
	}
	if err := db.DeleteSetting("log.level"); err != nil {
		t.Fatalf("DeleteSetting returned error: %v", err)
	}

	got, err := db.GetSetting("log.level")
	if err != nil {
		t.Fatalf("GetSetting returned error: %v", err)
	}
	if got != "" {
		t.Errorf("deleted setting should be empty, got %q", got)
	}
}

func TestInitializeDefaults(t *testing.T) {
	db := newTestDB(t)

	// An existing value must survive; missing keys get filled in
	if err := db.SetSetting("session.validity_minutes", "15"); err != nil {
		t.Fatalf("SetSetting returned error: %v", err)
	}
	if err := db.InitializeDefaults(); err != nil {
		t.Fatalf("InitializeDefaults returned error: %v", err)
	}

	got, err := db.GetSetting("session.validity_minutes")
	if err != nil {
		t.Fatalf("GetSetting returned error: %v", err)
	}
	if got != "15" {
		t.Errorf("InitializeDefaults overwrote existing value: got %q, want 15", got)
	}

	got, err = db.GetSetting("retry.max_retries")
	if err != nil {
		t.Fatalf("GetSetting returned error: %v", err)
	}
	if got != "2" {
		t.Errorf("retry.max_retries default = %q, want 2", got)
	}

	all, err := db.GetAllSettings()
	if err != nil {
		t.Fatalf("GetAllSettings returned error: %v", err)
	}
	for key := range DefaultSettings {
		if _, ok := all[key]; !ok {
			t.Errorf("default %q was not initialized", key)
		}
	}
}
