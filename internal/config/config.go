package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Line data: LinesFile wins over the database when both are set.
	DatabaseURL  string
	DatabaseName string
	LinesFile    string

	NATSURL         string
	SubjectPrefix   string
	PublishFormat   string
	LogNATSSubjects bool
	MetricsAddr     string

	Mode         string
	LineID       int
	StartStation int
	EndStation   int
	SessionID    string
	DeviceID     string

	FrameInterval   time.Duration
	SpeedMultiplier float64

	AlertDebounce    time.Duration
	CurveAngle       float64
	CurveDistance    float64
	StationDistance  float64
	DangerMargin     float64
	StationProximity float64
	MaxOffRoute      float64
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.LinesFile = os.Getenv("LINES_FILE")

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars when PGDATABASE is set
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" && os.Getenv("PGDATABASE") != "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			dsn = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	}
	cfg.DatabaseURL = dsn
	cfg.DatabaseName = os.Getenv("METRO_DATABASE")
	if cfg.LinesFile == "" && cfg.DatabaseURL == "" {
		return nil, errors.New("LINES_FILE or DATABASE_URL (or PGDATABASE) must be set")
	}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.SubjectPrefix = getenvDefault("SUBJECT_PREFIX", "metro")
	cfg.PublishFormat = strings.ToLower(getenvDefault("PUBLISH_FORMAT", "json"))
	if cfg.PublishFormat != "json" && cfg.PublishFormat != "gtfsrt" {
		return nil, fmt.Errorf("invalid PUBLISH_FORMAT: %q", cfg.PublishFormat)
	}

	cfg.Mode = strings.ToLower(getenvDefault("MODE", "simulate"))
	if cfg.Mode != "simulate" && cfg.Mode != "calibrate" {
		return nil, fmt.Errorf("invalid MODE: %q", cfg.Mode)
	}

	var err error
	if cfg.LineID, err = positiveInt("LINE_ID", 0); err != nil {
		return nil, err
	}
	if cfg.StartStation, err = positiveInt("START_STATION", 0); err != nil {
		return nil, err
	}
	if cfg.EndStation, err = positiveInt("END_STATION", 0); err != nil {
		return nil, err
	}
	if cfg.LineID == 0 || cfg.StartStation == 0 || cfg.EndStation == 0 {
		return nil, errors.New("LINE_ID, START_STATION and END_STATION must be set")
	}

	cfg.SessionID = os.Getenv("SESSION_ID")
	cfg.DeviceID = os.Getenv("DEVICE_ID")
	if cfg.Mode == "calibrate" && cfg.DeviceID == "" {
		return nil, errors.New("DEVICE_ID must be set in calibrate mode")
	}
	// ids become one NATS subject token and are routed back by that token
	for _, id := range []struct{ key, val string }{{"SESSION_ID", cfg.SessionID}, {"DEVICE_ID", cfg.DeviceID}} {
		if strings.ContainsAny(id.val, " .*>/\t") {
			return nil, fmt.Errorf("invalid %s: %q", id.key, id.val)
		}
	}

	// Frame interval
	if v := os.Getenv("FRAME_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid FRAME_INTERVAL_MS: %q", v)
		}
		cfg.FrameInterval = time.Duration(ms) * time.Millisecond
	} else {
		cfg.FrameInterval = 16 * time.Millisecond
	}

	if cfg.SpeedMultiplier, err = positiveFloat("SPEED_MULTIPLIER", 1.0); err != nil {
		return nil, err
	}

	// Alert debounce window
	if v := os.Getenv("ALERT_DEBOUNCE_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("invalid ALERT_DEBOUNCE_MS: %q", v)
		}
		cfg.AlertDebounce = time.Duration(ms) * time.Millisecond
	} else {
		cfg.AlertDebounce = 6 * time.Second
	}

	floats := []struct {
		key string
		def float64
		dst *float64
	}{
		{"CURVE_ANGLE_DEG", 30, &cfg.CurveAngle},
		{"CURVE_DISTANCE_M", 500, &cfg.CurveDistance},
		{"STATION_DISTANCE_M", 500, &cfg.StationDistance},
		{"DANGER_MARGIN_KMH", 20, &cfg.DangerMargin},
		{"STATION_PROXIMITY_M", 50, &cfg.StationProximity},
		{"MAX_OFF_ROUTE_M", 30000, &cfg.MaxOffRoute},
	}
	for _, f := range floats {
		if *f.dst, err = positiveFloat(f.key, f.def); err != nil {
			return nil, err
		}
	}

	// Debug logging for NATS publish subjects
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y", "on":
			cfg.LogNATSSubjects = true
		default:
			cfg.LogNATSSubjects = false
		}
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	return cfg, nil
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func positiveFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
