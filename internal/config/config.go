package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ModelConfig struct {
	Trigrams   string
	Quadgrams  string
	Quintgrams string
	Scale      float64
}

type SearchConfig struct {
	TempStart     float64
	TempStep      float64
	Iterations    int
	Restarts      int
	Seed          uint64 // 0 = time-based
	MaxIterations int    // 0 = unlimited
	Timeout       time.Duration
	ReportEvery   int
}

type AppConfig struct {
	CacheDir string
	LogLevel string
}

type Config struct {
	Models ModelConfig
	Search SearchConfig
	App    AppConfig
}

// ModelPath is one configured n-gram count file.
type ModelPath struct {
	Order int
	Path  string
}

// Load reads .env (when present) and PLAYCRACK_* variables. Unset or
// unparseable values fall back to the defaults.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	return &Config{
		Models: ModelConfig{
			Trigrams:   ExpandHome(getEnv("PLAYCRACK_TRIGRAMS", "")),
			Quadgrams:  ExpandHome(getEnv("PLAYCRACK_QUADGRAMS", "")),
			Quintgrams: ExpandHome(getEnv("PLAYCRACK_QUINTGRAMS", "")),
			Scale:      getEnvFloat("PLAYCRACK_SCALE", 0.08),
		},
		Search: SearchConfig{
			TempStart:     getEnvFloat("PLAYCRACK_TEMP_START", 18.0),
			TempStep:      getEnvFloat("PLAYCRACK_TEMP_STEP", 0.2),
			Iterations:    getEnvInt("PLAYCRACK_ITERATIONS", 10000),
			Restarts:      getEnvInt("PLAYCRACK_RESTARTS", 1),
			Seed:          getEnvUint64("PLAYCRACK_SEED", 0),
			MaxIterations: getEnvInt("PLAYCRACK_MAX_ITERATIONS", 0),
			Timeout:       getEnvDuration("PLAYCRACK_TIMEOUT", 0),
			ReportEvery:   getEnvInt("PLAYCRACK_REPORT_EVERY", 500),
		},
		App: AppConfig{
			CacheDir: ExpandHome(getEnv("PLAYCRACK_CACHE_DIR", "~/.cache/playcrack")),
			LogLevel: getEnv("PLAYCRACK_LOG_LEVEL", "info"),
		},
	}, nil
}

// Validate checks the configuration after flag overrides are applied.
func (c *Config) Validate() error {
	if len(c.ModelPaths()) == 0 {
		return fmt.Errorf("at least one of PLAYCRACK_TRIGRAMS, PLAYCRACK_QUADGRAMS, PLAYCRACK_QUINTGRAMS is required")
	}
	if c.Search.Restarts < 1 {
		return fmt.Errorf("PLAYCRACK_RESTARTS must be at least 1, got %d", c.Search.Restarts)
	}
	if c.Search.MaxIterations < 0 || c.Search.ReportEvery < 0 || c.Search.Timeout < 0 {
		return fmt.Errorf("iteration budget, report interval and timeout must not be negative")
	}
	if _, err := parseLevel(c.App.LogLevel); err != nil {
		return err
	}
	return nil
}

// ModelPaths returns the configured n-gram files in ascending order.
func (c *Config) ModelPaths() []ModelPath {
	var out []ModelPath
	for _, m := range []ModelPath{
		{3, c.Models.Trigrams},
		{4, c.Models.Quadgrams},
		{5, c.Models.Quintgrams},
	} {
		if m.Path != "" {
			out = append(out, m)
		}
	}
	return out
}

// RunLogDir is where per-run JSONL logs are written.
func (c *Config) RunLogDir() string { return filepath.Join(c.App.CacheDir, "runs") }

// KeyStoreDir is the LevelDB directory holding best keys.
func (c *Config) KeyStoreDir() string { return filepath.Join(c.App.CacheDir, "keys") }

// HistoryFile is the REPL history file.
func (c *Config) HistoryFile() string { return filepath.Join(c.App.CacheDir, "history") }

// SlogLevel maps LogLevel to a slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.App.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("PLAYCRACK_LOG_LEVEL %q: %w", s, err)
	}
	return l, nil
}

// ExpandHome replaces a leading "~/" or a bare "~" with the user's home directory.
//
// Expectations:
//   - Expands "~/foo" to "<home>/foo"
//   - Expands bare "~" to "<home>"
//   - Returns path unchanged when it does not start with "~"
func ExpandHome(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
