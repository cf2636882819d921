package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Extractor   ExtractorConfig
	Database    DatabaseConfig
	SIS         SISConfig
	Recognition RecognitionConfig
	Web         WebConfig
}

type ExtractorConfig struct {
	URL string // defaults to http://localhost:8000
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the duplicate-identity HNSW index (optional)
}

type SISConfig struct {
	DatabaseURL string // MariaDB DSN of the student information system (e.g., sis:sis@tcp(mariadb:3306)/sis)
}

type RecognitionConfig struct {
	Threshold float64 // minimum similarity for an AI match, 0 means per-version default
	MaxFaces  int     // per-photo detection cap (default 50)
	Versions  map[string]VersionDefaults
}

type WebConfig struct {
	APIToken string // static bearer token for API auth
}

// VersionDefaults carries the embedded per-encoding-version settings.
type VersionDefaults struct {
	Dim       int     `yaml:"dim"`
	Threshold float64 `yaml:"threshold"`
}

// recognitionDefaults matches the shape of the embedded defaults.yaml.
type recognitionDefaults struct {
	Recognition struct {
		Versions map[string]VersionDefaults `yaml:"versions"`
	} `yaml:"recognition"`
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

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or out of range.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	var defaults recognitionDefaults
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Extractor: ExtractorConfig{
			URL: os.Getenv("EXTRACTOR_URL"),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		SIS: SISConfig{
			DatabaseURL: os.Getenv("SIS_DATABASE_URL"),
		},
		Recognition: RecognitionConfig{
			Threshold: envFloat("RECOGNITION_THRESHOLD", 0),
			MaxFaces:  envInt("RECOGNITION_MAX_FACES", 50),
			Versions:  defaults.Recognition.Versions,
		},
		Web: WebConfig{
			APIToken: os.Getenv("API_TOKEN"),
		},
	}
}

// ThresholdFor returns the effective threshold for an encoding version:
// the RECOGNITION_THRESHOLD override if set, otherwise the embedded
// per-version default.
func (c *Config) ThresholdFor(version string) float64 {
	if c.Recognition.Threshold > 0 {
		return c.Recognition.Threshold
	}
	if v, ok := c.Recognition.Versions[version]; ok && v.Threshold > 0 {
		return v.Threshold
	}
	return 0.6
}
