package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int
	AdditiveARatio        float64
	AdditiveBRatio        float64
	GasMaterialCode       string
	StrictStock           bool
	MetricsEnabled        bool
	OTLPEndpoint          string
	ServiceName           string
	BootstrapAdminUser    string
	BootstrapAdminPass    string
}

// Load reads configuration from the environment. Values in an optional
// dotenv file (ENV_FILE, default .env) fill in variables that are not
// already set.
func Load() Config {
	loadDotEnv()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REPORT_CACHE_TTL_SECONDS", 30)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("ADDITIVE_A_RATIO", 0.03)
	v.SetDefault("ADDITIVE_B_RATIO", 0.015)
	v.SetDefault("GAS_MATERIAL_CODE", "GAZ001")
	v.SetDefault("STRICT_STOCK", false)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("SERVICE_NAME", "filmtrack-backend")
	v.SetDefault("BOOTSTRAP_ADMIN_USERNAME", "admin")

	cfg := Config{
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		ReportCacheTTLSeconds: v.GetInt("REPORT_CACHE_TTL_SECONDS"),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: v.GetInt("ACCESS_TOKEN_TTL_MINUTES"),
		AdditiveARatio:        v.GetFloat64("ADDITIVE_A_RATIO"),
		AdditiveBRatio:        v.GetFloat64("ADDITIVE_B_RATIO"),
		GasMaterialCode:       strings.TrimSpace(v.GetString("GAS_MATERIAL_CODE")),
		StrictStock:           v.GetBool("STRICT_STOCK"),
		MetricsEnabled:        v.GetBool("METRICS_ENABLED"),
		OTLPEndpoint:          strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ServiceName:           v.GetString("SERVICE_NAME"),
		BootstrapAdminUser:    strings.TrimSpace(v.GetString("BOOTSTRAP_ADMIN_USERNAME")),
		BootstrapAdminPass:    v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
	}

	if cfg.ReportCacheTTLSeconds < 1 {
		cfg.ReportCacheTTLSeconds = 30
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.GasMaterialCode == "" {
		cfg.GasMaterialCode = "GAZ001"
	}
	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func loadDotEnv() {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := gotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] WARN: could not read %s: %v", path, err)
	}
}
