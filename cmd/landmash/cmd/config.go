package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"landmash/lib/configutil"
	"landmash/services/critics"
	"landmash/services/landmark"

	"dario.cat/mergo"
)

const DefaultMarket = "Philadelphia"

type LandmarkConfig struct {
	BaseUrl        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type BreakerConfig struct {
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	OpenTimeoutSeconds  int    `json:"open_timeout_seconds"`
}

func (c BreakerConfig) options() critics.BreakerOptions {
	return critics.BreakerOptions{
		ConsecutiveFailures: c.ConsecutiveFailures,
		OpenTimeout:         time.Duration(c.OpenTimeoutSeconds) * time.Second,
	}
}

type RottenTomatoesConfig struct {
	BaseUrl      string  `json:"base_url"`
	ApiKey       string  `json:"api_key"`
	MaxPerSecond float64 `json:"max_per_second"`
	// NoScoreFloor replaces the negative score the api reports for films
	// without a critics score.
	NoScoreFloor   *float64      `json:"no_score_floor"`
	TimeoutSeconds int           `json:"timeout_seconds"`
	Breaker        BreakerConfig `json:"breaker"`
}

type PageCacheConfig struct {
	Disabled bool   `json:"disabled"`
	Dir      string `json:"dir"`
	TTLHours int    `json:"ttl_hours"`
}

type IMDbConfig struct {
	BaseUrl         string          `json:"base_url"`
	MaxPerSecond    float64         `json:"max_per_second"`
	MaxParseRetries int             `json:"max_parse_retries"`
	TimeoutSeconds  int             `json:"timeout_seconds"`
	PageCache       PageCacheConfig `json:"page_cache"`
	Breaker         BreakerConfig   `json:"breaker"`
}

type ListingsConfig struct {
	Workers        int  `json:"workers"`
	ExcludeUnrated bool `json:"exclude_unrated"`
}

type Config struct {
	// Database is a sqlite file path or a libsql url.
	Database      string   `json:"database"`
	DefaultMarket string   `json:"default_market"`
	// Markets are created at startup if they do not exist.
	Markets        []string             `json:"markets"`
	Landmark       LandmarkConfig       `json:"landmark"`
	RottenTomatoes RottenTomatoesConfig `json:"rotten_tomatoes"`
	IMDb           IMDbConfig           `json:"imdb"`
	Listings       ListingsConfig       `json:"listings"`
}

func defaultConfig() Config {
	pageCacheDir := ""
	cacheDir, err := os.UserCacheDir()
	if err == nil {
		pageCacheDir = filepath.Join(cacheDir, "landmash", "pages")
	}
	return Config{
		Database:      "landmash.db",
		DefaultMarket: DefaultMarket,
		Markets:       []string{DefaultMarket},
		Landmark: LandmarkConfig{
			BaseUrl: landmark.DefaultBaseUrl,
		},
		RottenTomatoes: RottenTomatoesConfig{
			BaseUrl: critics.DefaultRottenTomatoesUrl,
		},
		IMDb: IMDbConfig{
			BaseUrl: critics.DefaultIMDbUrl,
			PageCache: PageCacheConfig{
				Dir:      pageCacheDir,
				TTLHours: 24,
			},
		},
	}
}

// loadConfig reads the config at path over the defaults, a missing file
// leaves the defaults in place. RT_API_KEY overrides the configured key.
func loadConfig(path string) (Config, error) {
	config, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	// fill whatever the file left unset
	err = mergo.Merge(&config, defaultConfig())
	if err != nil {
		return Config{}, err
	}

	if key, ok := os.LookupEnv("RT_API_KEY"); ok {
		config.RottenTomatoes.ApiKey = key
	}
	return config, nil
}
