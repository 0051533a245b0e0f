package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/rollcall/internal/constants"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Gallery  GalleryConfig
	Ledger   LedgerConfig
	Policy   PolicyConfig
	Encoder  EncoderConfig
	Database DatabaseConfig
	MariaDB  MariaDBConfig
	Redis    RedisConfig
	Log      LogConfig
	Web      WebConfig
}

type GalleryConfig struct {
	Source     string // "file" (default) or "postgres"
	Path       string // gob artifact path, defaults to ./gallery.gob
	RosterPath string // students.csv, defaults to ./students.csv
}

type LedgerConfig struct {
	Backend string // csv (default), postgres, mariadb, redis
	Dir     string // root directory for CSV attendance files, defaults to ./AttendanceFiles
}

// PolicyConfig selects and parameterises the attendance decision strategy.
type PolicyConfig struct {
	Name      string          `yaml:"policy"` // threshold or fuzzy
	Scorer    string          `yaml:"scorer"` // distance or cosine
	Threshold ThresholdConfig `yaml:"threshold"`
	Fuzzy     FuzzyConfig     `yaml:"fuzzy"`
}

// ThresholdConfig holds the two cut points on the scorer's native scale.
type ThresholdConfig struct {
	LowCut  float64 `yaml:"low_cut"`
	HighCut float64 `yaml:"high_cut"`
}

// FuzzyConfig holds the cut points applied to the defuzzified score.
type FuzzyConfig struct {
	LowCut  float64 `yaml:"low_cut"`
	HighCut float64 `yaml:"high_cut"`
	Scale   float64 `yaml:"scale"` // divisor mapping native scores onto [-1, 1], 0 means derive from scorer
}

type EncoderConfig struct {
	URL          string        // embedding service, defaults to http://localhost:8000
	Timeout      time.Duration // per-call timeout for feature extraction
	MaxImageSize int           // probes are downscaled to fit this box before encoding
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type MariaDBConfig struct {
	DSN string // e.g. attendance:attendance@tcp(mariadb:3306)/smart_attendance?parseTime=true
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type LogConfig struct {
	Level string // logrus level name, defaults to info
	File  string // optional rotating log file
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS whitelist, localhost is always allowed
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float64.
// Negative values are allowed since distance scores are unbounded below zero.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("15s", "1m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// DefaultPolicy returns the policy defaults shipped in the embedded policy.yaml.
func DefaultPolicy() PolicyConfig {
	var p PolicyConfig
	if err := yaml.Unmarshal(policyYAML, &p); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}
	return p
}

func Load() *Config {
	policy := DefaultPolicy()
	policy.Name = envString("POLICY", policy.Name)
	policy.Scorer = envString("SCORER", policy.Scorer)
	policy.Threshold.LowCut = envFloat("POLICY_LOW_CUT", policy.Threshold.LowCut)
	policy.Threshold.HighCut = envFloat("POLICY_HIGH_CUT", policy.Threshold.HighCut)
	policy.Fuzzy.LowCut = envFloat("FUZZY_LOW_CUT", policy.Fuzzy.LowCut)
	policy.Fuzzy.HighCut = envFloat("FUZZY_HIGH_CUT", policy.Fuzzy.HighCut)
	policy.Fuzzy.Scale = envFloat("FUZZY_SCALE", policy.Fuzzy.Scale)

	return &Config{
		Gallery: GalleryConfig{
			Source:     envString("GALLERY_SOURCE", "file"),
			Path:       envString("GALLERY_PATH", "gallery.gob"),
			RosterPath: envString("ROSTER_PATH", "students.csv"),
		},
		Ledger: LedgerConfig{
			Backend: envString("LEDGER_BACKEND", "csv"),
			Dir:     envString("ATTENDANCE_DIR", "AttendanceFiles"),
		},
		Policy: policy,
		Encoder: EncoderConfig{
			URL:          os.Getenv("EMBEDDING_URL"),
			Timeout:      envDuration("ENCODER_TIMEOUT", 15*time.Second),
			MaxImageSize: envInt("ENCODER_MAX_IMAGE_SIZE", constants.MaxImageSize),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		MariaDB: MariaDBConfig{
			DSN: os.Getenv("MARIADB_DSN"),
		},
		Redis: RedisConfig{
			Address:  envString("REDIS_ADDRESS", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 5001),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}
