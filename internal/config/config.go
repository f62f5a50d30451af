package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed sessions.yaml
var sessionsYAML []byte

type Config struct {
	Matching   MatchingConfig
	Directory  DirectoryConfig
	Database   DatabaseConfig
	Attendance AttendanceConfig
	Audit      AuditConfig
	Sessions   SessionsConfig
}

// MatchingConfig holds the tunable matching constants. AcceptDistance and
// MatchThreshold are the two knobs that decide how strict identification is;
// the rest are performance parameters.
type MatchingConfig struct {
	AcceptDistance int // max Hamming distance for a descriptor pair to count as good
	MatchThreshold int // min good-pair count for a candidate to be accepted
	MaxKeypoints   int // cap on keypoints extracted per image
	MaxImageEdge   int // probe/reference rasters are downscaled to this edge length
}

type DirectoryConfig struct {
	DatabaseDSN string // MySQL/MariaDB DSN of the school-management directory (read-only)
	MediaDir    string // root directory holding candidate reference photos
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL for the attendance store
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type AttendanceConfig struct {
	Timezone           string // IANA timezone used to resolve "today" (default Local)
	AllowStatusUpgrade bool   // allow upgrading a non-present status to PRESENT
}

type AuditConfig struct {
	RedisAddr     string // empty disables the redis audit sink
	RedisPassword string
	RedisDB       int
	Queue         string // list key audit events are pushed to
}

// SessionsConfig maps a wall-clock time to the default attendance session.
type SessionsConfig struct {
	Windows []SessionWindow `yaml:"windows"`
}

type SessionWindow struct {
	Session string `yaml:"session"`
	Until   string `yaml:"until"` // "HH:MM", exclusive upper bound
}

// ResolveSession returns the session for the given local time: the first
// window whose cutoff has not passed yet, FULL_DAY once all cutoffs passed.
func (s *SessionsConfig) ResolveSession(t time.Time) string {
	minutes := t.Hour()*60 + t.Minute()
	for _, w := range s.Windows {
		var hh, mm int
		if _, err := fmt.Sscanf(w.Until, "%d:%d", &hh, &mm); err != nil {
			continue
		}
		if minutes < hh*60+mm {
			return w.Session
		}
	}
	return "FULL_DAY"
}

// Location resolves the configured serving timezone, falling back to Local.
func (c *AttendanceConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
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

// envBool reads an environment variable as a boolean, defaulting to false.
func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func Load() *Config {
	var sessions SessionsConfig
	if err := yaml.Unmarshal(sessionsYAML, &sessions); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded sessions.yaml: " + err.Error())
	}

	return &Config{
		Matching: MatchingConfig{
			AcceptDistance: envInt("MATCH_ACCEPT_DISTANCE", 50),
			MatchThreshold: envInt("MATCH_THRESHOLD", 15),
			MaxKeypoints:   envInt("MATCH_MAX_KEYPOINTS", 1000),
			MaxImageEdge:   envInt("MATCH_MAX_IMAGE_EDGE", 640),
		},
		Directory: DirectoryConfig{
			DatabaseDSN: os.Getenv("DIRECTORY_DATABASE_DSN"),
			MediaDir:    os.Getenv("DIRECTORY_MEDIA_DIR"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Attendance: AttendanceConfig{
			Timezone:           os.Getenv("ATTEND_TIMEZONE"),
			AllowStatusUpgrade: envBool("ATTEND_ALLOW_STATUS_UPGRADE"),
		},
		Audit: AuditConfig{
			RedisAddr:     os.Getenv("AUDIT_REDIS_ADDR"),
			RedisPassword: os.Getenv("AUDIT_REDIS_PASSWORD"),
			RedisDB:       envInt("AUDIT_REDIS_DB", 0),
			Queue:         envOr("AUDIT_QUEUE", "attendance:audit"),
		},
		Sessions: sessions,
	}
}

// envOr returns the environment value or a default when unset.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
