package config

import (
	"testing"
	"time"
)

func TestDefaultPolicy_Embedded(t *testing.T) {
	p := DefaultPolicy()

	if p.Name != "threshold" {
		t.Errorf("expected default policy 'threshold', got '%s'", p.Name)
	}
	if p.Scorer != "distance" {
		t.Errorf("expected default scorer 'distance', got '%s'", p.Scorer)
	}
	if p.Threshold.LowCut != 40 || p.Threshold.HighCut != 60 {
		t.Errorf("expected threshold cuts 40/60, got %v/%v", p.Threshold.LowCut, p.Threshold.HighCut)
	}
	if p.Fuzzy.LowCut != 0.4 || p.Fuzzy.HighCut != 0.8 {
		t.Errorf("expected fuzzy cuts 0.4/0.8, got %v/%v", p.Fuzzy.LowCut, p.Fuzzy.HighCut)
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"GALLERY_SOURCE", "GALLERY_PATH", "LEDGER_BACKEND", "ATTENDANCE_DIR", "WEB_PORT", "ENCODER_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Gallery.Source != "file" {
		t.Errorf("expected gallery source 'file', got '%s'", cfg.Gallery.Source)
	}
	if cfg.Gallery.Path != "gallery.gob" {
		t.Errorf("expected gallery path 'gallery.gob', got '%s'", cfg.Gallery.Path)
	}
	if cfg.Ledger.Backend != "csv" {
		t.Errorf("expected ledger backend 'csv', got '%s'", cfg.Ledger.Backend)
	}
	if cfg.Ledger.Dir != "AttendanceFiles" {
		t.Errorf("expected ledger dir 'AttendanceFiles', got '%s'", cfg.Ledger.Dir)
	}
	if cfg.Web.Port != 5001 {
		t.Errorf("expected port 5001, got %d", cfg.Web.Port)
	}
	if cfg.Encoder.Timeout != 15*time.Second {
		t.Errorf("expected encoder timeout 15s, got %v", cfg.Encoder.Timeout)
	}
}

func TestLoad_PolicyOverrides(t *testing.T) {
	t.Setenv("POLICY", "fuzzy")
	t.Setenv("SCORER", "cosine")
	t.Setenv("POLICY_LOW_CUT", "60")
	t.Setenv("POLICY_HIGH_CUT", "85")
	t.Setenv("FUZZY_HIGH_CUT", "0.9")

	cfg := Load()

	if cfg.Policy.Name != "fuzzy" {
		t.Errorf("expected policy 'fuzzy', got '%s'", cfg.Policy.Name)
	}
	if cfg.Policy.Scorer != "cosine" {
		t.Errorf("expected scorer 'cosine', got '%s'", cfg.Policy.Scorer)
	}
	if cfg.Policy.Threshold.LowCut != 60 || cfg.Policy.Threshold.HighCut != 85 {
		t.Errorf("expected threshold cuts 60/85, got %v/%v", cfg.Policy.Threshold.LowCut, cfg.Policy.Threshold.HighCut)
	}
	if cfg.Policy.Fuzzy.HighCut != 0.9 {
		t.Errorf("expected fuzzy high cut 0.9, got %v", cfg.Policy.Fuzzy.HighCut)
	}
	// Untouched values keep the embedded default
	if cfg.Policy.Fuzzy.LowCut != 0.4 {
		t.Errorf("expected fuzzy low cut 0.4, got %v", cfg.Policy.Fuzzy.LowCut)
	}
}

func TestLoad_NegativeCutAllowed(t *testing.T) {
	t.Setenv("POLICY_LOW_CUT", "-20")

	cfg := Load()

	if cfg.Policy.Threshold.LowCut != -20 {
		t.Errorf("expected negative low cut to be accepted, got %v", cfg.Policy.Threshold.LowCut)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("POLICY_HIGH_CUT", "high")
	t.Setenv("WEB_PORT", "-1")
	t.Setenv("ENCODER_TIMEOUT", "soon")
	t.Setenv("REDIS_DB", "x")

	cfg := Load()

	if cfg.Policy.Threshold.HighCut != 60 {
		t.Errorf("expected default high cut 60 for invalid input, got %v", cfg.Policy.Threshold.HighCut)
	}
	if cfg.Web.Port != 5001 {
		t.Errorf("expected default port for negative input, got %d", cfg.Web.Port)
	}
	if cfg.Encoder.Timeout != 15*time.Second {
		t.Errorf("expected default timeout for invalid input, got %v", cfg.Encoder.Timeout)
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("expected redis db 0, got %d", cfg.Redis.DB)
	}
}

func TestLoad_BackendSelection(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "postgres")
	t.Setenv("GALLERY_SOURCE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db?sslmode=disable")
	t.Setenv("MARIADB_DSN", "u:p@tcp(localhost:3306)/attendance")

	cfg := Load()

	if cfg.Ledger.Backend != "postgres" {
		t.Errorf("expected ledger backend 'postgres', got '%s'", cfg.Ledger.Backend)
	}
	if cfg.Gallery.Source != "postgres" {
		t.Errorf("expected gallery source 'postgres', got '%s'", cfg.Gallery.Source)
	}
	if cfg.Database.URL == "" {
		t.Error("expected database URL to be set")
	}
	if cfg.MariaDB.DSN != "u:p@tcp(localhost:3306)/attendance" {
		t.Errorf("unexpected MariaDB DSN '%s'", cfg.MariaDB.DSN)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://attendance.example.edu, ,https://admin.example.edu ")

	cfg := Load()

	want := []string{"https://attendance.example.edu", "https://admin.example.edu"}
	if len(cfg.Web.AllowedOrigins) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.Web.AllowedOrigins)
	}
	for i := range want {
		if cfg.Web.AllowedOrigins[i] != want[i] {
			t.Errorf("origin %d: expected '%s', got '%s'", i, want[i], cfg.Web.AllowedOrigins[i])
		}
	}
}
