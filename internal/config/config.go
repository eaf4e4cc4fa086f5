package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Supabase SupabaseConfig
	Engine   EngineConfig
	Matching MatchingConfig
	Cache    CacheConfig
	GitHub   GitHubConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port       int
	MCPEnabled bool
}

type StorageConfig struct {
	// Backend is "sqlite" or "supabase".
	Backend string
	DataDir string
}

type SupabaseConfig struct {
	URL string
	Key string
}

type EngineConfig struct {
	// Provider is "openai" or "ollama".
	Provider    string
	BaseURL     string
	APIKey      string
	IntentModel string
	ReportModel string
	EmbedModel  string
}

type MatchingConfig struct {
	Threshold float64
	PeerTopK  int
	TeamTopK  int
}

type CacheConfig struct {
	ProfileTTL string
}

type GitHubConfig struct {
	BaseURL string
	Token   string
}

type LogConfig struct {
	Level string
}

const defaultOllamaURL = "http://localhost:11434"

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:       4000,
			MCPEnabled: true,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			DataDir: defaultDataDir(),
		},
		Engine: EngineConfig{
			Provider:    "openai",
			IntentModel: "gpt-4o-mini",
			ReportModel: "gpt-4o",
			EmbedModel:  "text-embedding-3-small",
		},
		Matching: MatchingConfig{
			Threshold: 0.5,
			PeerTopK:  3,
			TeamTopK:  3,
		},
		Cache: CacheConfig{
			ProfileTTL: "1m",
		},
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ProfileTTL parses Cache.ProfileTTL, returning 0 (the directory default)
// when it is empty or malformed.
func (c Config) ProfileTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.ProfileTTL)
	if err != nil {
		return 0
	}
	return d
}

// Load reads configuration from the JSON file backend, environment
// variables and the secrets file, in increasing precedence for non-secret
// keys. Secrets come from the environment first, then the secrets file at
// $XDG_DATA_HOME/colab/secrets.json under service "colab".
//
// Environment variables (COLAB_*) override file values.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), secretsFile{path: secretsFilePath()})
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySecrets fills secret keys the environment left empty.
func applySecrets(cfg *Config, secrets secretStore) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := secrets.Get(appName, secretAccount(s.key)); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

// secretAccount maps "engine.api_key" to the secrets file account "engine_api_key".
func secretAccount(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}

func (c *Config) validate() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Engine.Provider = strings.ToLower(strings.TrimSpace(c.Engine.Provider))

	switch c.Storage.Backend {
	case "sqlite":
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			return fmt.Errorf("missing required config: supabase.url and supabase.key. " +
				"Set them via COLAB_SUPABASE_URL and COLAB_SUPABASE_KEY or the secrets file %s", secretsFilePath())
		}
	default:
		return fmt.Errorf("invalid storage.backend %q: want sqlite or supabase", c.Storage.Backend)
	}

	switch c.Engine.Provider {
	case "openai":
		if c.Engine.APIKey == "" {
			return fmt.Errorf("missing required config: engine API key. " +
				"Set it via environment variable COLAB_ENGINE_API_KEY or the secrets file %s", secretsFilePath())
		}
	case "ollama":
		if c.Engine.BaseURL == "" {
			c.Engine.BaseURL = defaultOllamaURL
		}
	default:
		return fmt.Errorf("invalid engine.provider %q: want openai or ollama", c.Engine.Provider)
	}

	if c.Matching.Threshold < -1 || c.Matching.Threshold > 1 {
		return fmt.Errorf("invalid matching.threshold %v: must be within [-1, 1]", c.Matching.Threshold)
	}
	return nil
}
