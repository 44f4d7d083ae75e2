// Package appconfig loads the delineation service's environment-derived
// settings, the same .env/.env.local layering config.go uses for the
// teacher's own service (spec.md's ambient config concern applies here
// even though the delineation core itself takes no env vars directly).
package appconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every setting the cmd/ binaries need beyond what's
// already expressed as CLI flags or batchconfig's TOML files.
type Config struct {
	DataDir       string // root of raster/flowdir_basins, shp/merit_catchments, etc.
	CacheDBPath   string
	CORSOrigins   string // comma-separated, parsed by httpapi.CORSOriginsFromEnv
	CountryDBDSN  string // optional Postgres DSN for internal/country's PostgresLookup
	HighResLimit  float64
	FillThreshold int
}

// Load reads envPath (preferring an adjacent .env.local, like the
// teacher's own LoadConfig), then applies defaults.
func Load(envPath string) (*Config, error) {
	localEnvPath := strings.TrimSuffix(envPath, ".env") + ".env.local"
	if _, err := os.Stat(localEnvPath); err == nil {
		if err := loadEnvFile(localEnvPath); err != nil {
			return nil, fmt.Errorf("appconfig: loading local env file: %w", err)
		}
	} else if _, err := os.Stat(envPath); err == nil {
		if err := loadEnvFile(envPath); err != nil {
			return nil, fmt.Errorf("appconfig: loading env file: %w", err)
		}
	}

	return &Config{
		DataDir:       getEnv("MERIT_DATA_DIR", "./data"),
		CacheDBPath:   getEnv("CACHE_DB_PATH", "./watershed_cache.db"),
		CORSOrigins:   getEnv("CORS_ORIGINS", ""),
		CountryDBDSN:  getEnv("COUNTRY_DB_DSN", ""),
		HighResLimit:  getEnvFloat("HIGH_RES_AREA_LIMIT_KM2", 10000),
		FillThreshold: getEnvInt("FILL_THRESHOLD_PIXELS", 100),
	}, nil
}

func loadEnvFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			os.Setenv(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
