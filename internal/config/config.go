package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var profilesYAML []byte

type Config struct {
	Data       DataConfig
	Face       FaceConfig
	Attendance AttendanceConfig
	Detector   DetectorConfig
	Embedding  EmbeddingConfig
	Database   DatabaseConfig
	Camera     CameraConfig
	Profiles   ProfilesConfig
}

type DataConfig struct {
	Dir string // base data directory, contains known_faces/, cache and backups
}

// FacesDir returns the directory holding enrollment images.
func (c *DataConfig) FacesDir() string {
	return filepath.Join(c.Dir, "known_faces")
}

// CacheFile returns the path of the persisted feature cache.
func (c *DataConfig) CacheFile() string {
	return filepath.Join(c.Dir, "face_cache.json")
}

// BackupDir returns the directory for attendance database backups.
func (c *DataConfig) BackupDir() string {
	return filepath.Join(c.Dir, "backups")
}

type FaceConfig struct {
	Tolerance    float64 // accept threshold, 0..1
	MinFaceSize  int     // minimum face side in pixels
	Profile      string  // named weight profile, overridden by explicit weights
	WEuclidean   float64
	WCosine      float64
	WCorrelation float64
}

type AttendanceConfig struct {
	AllowMultipleCheckin bool
	LateHour             int
	LateMinute           int
}

type DetectorConfig struct {
	URL string // face detector service, empty means whole-frame fallback
}

type EmbeddingConfig struct {
	URL string // embedding server enabling the remote backend, optional
	Dim int    // remote embedding dimension (default 512)
}

type DatabaseConfig struct {
	URL string // DSN: sqlite path (default), mysql DSN or postgres:// URL
}

type CameraConfig struct {
	URL        string // snapshot URL for continuous mode
	IntervalMS int    // minimum delay between frame fetches
}

type ProfilesConfig struct {
	Profiles map[string]WeightProfile `yaml:"profiles"`
}

// WeightProfile is a named set of metric weights for the similarity scorer.
type WeightProfile struct {
	Euclidean   float64 `yaml:"euclidean"`
	Cosine      float64 `yaml:"cosine"`
	Correlation float64 `yaml:"correlation"`
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

// envIntAllowZero is envInt that accepts zero (minutes can legitimately be 0).
func envIntAllowZero(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float, falling back on defaultVal.
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

// envBool reads an environment variable as a boolean ("true"/"1" are true).
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	return s == "true" || s == "1"
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var profiles ProfilesConfig
	if err := yaml.Unmarshal(profilesYAML, &profiles); err != nil {
		// Embedded file, malformed content is a build defect.
		panic("failed to unmarshal embedded profiles.yaml: " + err.Error())
	}

	cfg := &Config{
		Data: DataConfig{
			Dir: envString("DATA_DIR", "data"),
		},
		Face: FaceConfig{
			Tolerance:   envFloat("FACE_TOLERANCE", 0.6),
			MinFaceSize: envInt("MIN_FACE_SIZE", 50),
			Profile:     envString("FACE_WEIGHT_PROFILE", "balanced"),
		},
		Attendance: AttendanceConfig{
			AllowMultipleCheckin: envBool("ALLOW_MULTIPLE_CHECKIN", false),
			LateHour:             envIntAllowZero("LATE_THRESHOLD_HOUR", 10),
			LateMinute:           envIntAllowZero("LATE_THRESHOLD_MINUTE", 0),
		},
		Detector: DetectorConfig{
			URL: os.Getenv("DETECTOR_URL"),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: envInt("EMBEDDING_DIM", 512),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Camera: CameraConfig{
			URL:        os.Getenv("CAMERA_URL"),
			IntervalMS: envInt("CAMERA_INTERVAL_MS", 200),
		},
		Profiles: profiles,
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = filepath.Join(cfg.Data.Dir, "attendance.db")
	}

	p := cfg.WeightProfile(cfg.Face.Profile)
	cfg.Face.WEuclidean = envFloat("FACE_WEIGHT_EUCLIDEAN", p.Euclidean)
	cfg.Face.WCosine = envFloat("FACE_WEIGHT_COSINE", p.Cosine)
	cfg.Face.WCorrelation = envFloat("FACE_WEIGHT_CORRELATION", p.Correlation)

	return cfg
}

// WeightProfile returns the named profile, falling back to "balanced".
func (c *Config) WeightProfile(name string) WeightProfile {
	if p, ok := c.Profiles.Profiles[name]; ok {
		return p
	}
	return c.Profiles.Profiles["balanced"]
}

// Validate checks configuration constraints that would make matching misbehave.
func (c *Config) Validate() error {
	if c.Face.Tolerance < 0 || c.Face.Tolerance > 1 {
		return fmt.Errorf("FACE_TOLERANCE must be between 0 and 1, got %v", c.Face.Tolerance)
	}
	if c.Face.WEuclidean < 0 || c.Face.WCosine < 0 || c.Face.WCorrelation < 0 {
		return fmt.Errorf("metric weights must be non-negative")
	}
	sum := c.Face.WEuclidean + c.Face.WCosine + c.Face.WCorrelation
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("metric weights must sum to 1, got %v", sum)
	}
	if c.Attendance.LateHour < 0 || c.Attendance.LateHour > 23 {
		return fmt.Errorf("LATE_THRESHOLD_HOUR must be 0-23, got %d", c.Attendance.LateHour)
	}
	if c.Attendance.LateMinute < 0 || c.Attendance.LateMinute > 59 {
		return fmt.Errorf("LATE_THRESHOLD_MINUTE must be 0-59, got %d", c.Attendance.LateMinute)
	}
	return nil
}
