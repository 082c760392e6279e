// Package config loads PokeCapture settings from an optional YAML file and the
// environment. Environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Rbruno/PokeCapture/internal/models"
)

// Config holds all PokeCapture configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Lookup     LookupConfig     `yaml:"lookup"`
	Collection CollectionConfig `yaml:"collection"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port               string   `yaml:"port"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	FrontendDistPath   string   `yaml:"frontend_dist_path"`
}

// DatabaseConfig points at the local sqlite file backing the redundant store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ProvidersConfig selects and configures the card catalogs.
type ProvidersConfig struct {
	CardProvider models.ProviderKind `yaml:"card_provider"`
	PokemonTCG   PokemonTCGConfig    `yaml:"pokemontcg"`
	TCGdex       TCGdexConfig        `yaml:"tcgdex"`
}

// PokemonTCGConfig configures the keyed official API.
type PokemonTCGConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	DailyLimit        int           `yaml:"daily_limit"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// TCGdexConfig configures the community API. BaseURLs are tried in order.
type TCGdexConfig struct {
	BaseURLs         []string `yaml:"base_urls"`
	Lang             string   `yaml:"lang"`
	AssetURLTemplate string   `yaml:"asset_url_template"`
}

// CatalogConfig configures the creature catalog crawl.
type CatalogConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Limit             int     `yaml:"limit"`
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	CacheSize         int     `yaml:"cache_size"`
}

// LookupConfig tunes the first-page retry policy.
type LookupConfig struct {
	PageSize   int           `yaml:"page_size"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// CollectionConfig configures collection persistence.
type CollectionConfig struct {
	SaveFilePath     string        `yaml:"save_file_path"`
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               "8080",
			CORSAllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Path: "./pokecapture.db",
		},
		Providers: ProvidersConfig{
			CardProvider: models.ProviderTCGdex,
			PokemonTCG: PokemonTCGConfig{
				BaseURL:           "https://api.pokemontcg.io/v2",
				Timeout:           180 * time.Second,
				DailyLimit:        1000,
				RequestsPerSecond: 5,
			},
			TCGdex: TCGdexConfig{
				BaseURLs:         []string{"https://api.tcgdex.net/v2"},
				Lang:             "en",
				AssetURLTemplate: "https://assets.tcgdex.net/images/cards/{id}.png",
			},
		},
		Catalog: CatalogConfig{
			BaseURL:           "https://pokeapi.co/api/v2",
			Limit:             1000,
			Concurrency:       8,
			RequestsPerSecond: 20,
			CacheSize:         2048,
		},
		Lookup: LookupConfig{
			PageSize:   models.DefaultPageSize,
			MaxRetries: 2,
			RetryDelay: 2 * time.Second,
		},
		Collection: CollectionConfig{
			AutosaveInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path (if any) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// Optional file
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CORSAllowedOrigins = splitList(v)
	}
	if v := os.Getenv("FRONTEND_DIST_PATH"); v != "" {
		c.Server.FrontendDistPath = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("CARD_PROVIDER"); v != "" {
		c.Providers.CardProvider = models.ProviderKind(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv("POKEMON_TCG_API_KEY"); v != "" {
		c.Providers.PokemonTCG.APIKey = v
	}
	if v := os.Getenv("POKEMON_TCG_BASE_URL"); v != "" {
		c.Providers.PokemonTCG.BaseURL = v
	}
	if v := os.Getenv("POKEMON_TCG_DAILY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Providers.PokemonTCG.DailyLimit = n
		}
	}
	if v := os.Getenv("TCGDEX_BASE_URLS"); v != "" {
		c.Providers.TCGdex.BaseURLs = splitList(v)
	}
	if v := os.Getenv("TCGDEX_LANG"); v != "" {
		c.Providers.TCGdex.Lang = v
	}

	if v := os.Getenv("POKEAPI_BASE_URL"); v != "" {
		c.Catalog.BaseURL = v
	}
	if v := os.Getenv("CATALOG_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Catalog.Limit = n
		}
	}

	if v := os.Getenv("SAVE_FILE_PATH"); v != "" {
		c.Collection.SaveFilePath = v
	}
	if v := os.Getenv("AUTOSAVE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Collection.AutosaveInterval = d
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Providers.CardProvider {
	case models.ProviderPokemonTCG, models.ProviderTCGdex:
	default:
		return fmt.Errorf("unknown card provider %q (want %q or %q)",
			c.Providers.CardProvider, models.ProviderPokemonTCG, models.ProviderTCGdex)
	}
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if len(c.Providers.TCGdex.BaseURLs) == 0 {
		return errors.New("at least one tcgdex base url is required")
	}
	if c.Lookup.PageSize <= 0 {
		return fmt.Errorf("lookup page size must be positive, got %d", c.Lookup.PageSize)
	}
	if c.Lookup.MaxRetries < 0 {
		return fmt.Errorf("lookup max retries must not be negative, got %d", c.Lookup.MaxRetries)
	}
	if c.Catalog.Limit <= 0 {
		return fmt.Errorf("catalog limit must be positive, got %d", c.Catalog.Limit)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
