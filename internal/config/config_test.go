package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend.
type memBackend map[string]any

func (m memBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	if s, ok := v.(string); ok {
		return s, true, nil
	}
	return "", true, errors.New("not a string")
}

func (m memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (m memBackend) SetString(key, val string) error  { m[key] = val; return nil }
func (m memBackend) SetInt(key string, val int) error { m[key] = val; return nil }
func (m memBackend) Delete(key string) error          { delete(m, key); return nil }

// mockSecrets is a test double for the secrets file.
type mockSecrets map[string]string

func (m mockSecrets) Get(service, account string) (string, error) {
	if service != "colab" {
		return "", errors.New("wrong service")
	}
	v, ok := m[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

// clearEnv blanks every COLAB_* variable so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("COLAB_ENGINE_API_KEY", "test-key")

	cfg, err := loadWith(memBackend{}, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if !cfg.Server.MCPEnabled {
		t.Error("Server.MCPEnabled = false, want true")
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Engine.Provider != "openai" {
		t.Errorf("Engine.Provider = %q, want openai", cfg.Engine.Provider)
	}
	if cfg.Engine.IntentModel != "gpt-4o-mini" {
		t.Errorf("Engine.IntentModel = %q, want gpt-4o-mini", cfg.Engine.IntentModel)
	}
	if cfg.Engine.ReportModel != "gpt-4o" {
		t.Errorf("Engine.ReportModel = %q, want gpt-4o", cfg.Engine.ReportModel)
	}
	if cfg.Engine.EmbedModel != "text-embedding-3-small" {
		t.Errorf("Engine.EmbedModel = %q, want text-embedding-3-small", cfg.Engine.EmbedModel)
	}
	if cfg.Matching.Threshold != 0.5 || cfg.Matching.PeerTopK != 3 || cfg.Matching.TeamTopK != 3 {
		t.Errorf("Matching = %+v, want threshold 0.5 and top-k 3/3", cfg.Matching)
	}
	if cfg.GitHub.BaseURL != "https://api.github.com" {
		t.Errorf("GitHub.BaseURL = %q", cfg.GitHub.BaseURL)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("COLAB_ENGINE_API_KEY", "env-key")
	t.Setenv("COLAB_SERVER_PORT", "9000")
	t.Setenv("COLAB_SERVER_MCP_ENABLED", "false")
	t.Setenv("COLAB_MATCHING_THRESHOLD", "0.7")

	b := memBackend{"server.port": 5000, "engine.intent_model": "file-model"}
	cfg, err := loadWith(b, mockSecrets{"engine_api_key": "file-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Engine.APIKey != "env-key" {
		t.Errorf("Engine.APIKey = %q, want env-key", cfg.Engine.APIKey)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.MCPEnabled {
		t.Error("Server.MCPEnabled = true, want false")
	}
	if cfg.Matching.Threshold != 0.7 {
		t.Errorf("Matching.Threshold = %v, want 0.7", cfg.Matching.Threshold)
	}
	if cfg.Engine.IntentModel != "file-model" {
		t.Errorf("Engine.IntentModel = %q, want file-model", cfg.Engine.IntentModel)
	}
}

func TestInvalidEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("COLAB_ENGINE_API_KEY", "k")
	t.Setenv("COLAB_MATCHING_PEER_TOP_K", "many")

	cfg, err := loadWith(memBackend{}, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Matching.PeerTopK != 3 {
		t.Errorf("PeerTopK = %d, want default 3", cfg.Matching.PeerTopK)
	}
}

func TestMissingAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(memBackend{}, mockSecrets{})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "COLAB_ENGINE_API_KEY") {
		t.Errorf("error %q should mention COLAB_ENGINE_API_KEY", err)
	}
}

func TestMissingCredentials_QuoteSecretsPathVerbatim(t *testing.T) {
	clearEnv(t)
	dataHome := filepath.Join(t.TempDir(), "100%done")
	t.Setenv("XDG_DATA_HOME", dataHome)
	want := filepath.Join(dataHome, "colab", "secrets.json")

	_, err := loadWith(memBackend{}, mockSecrets{})
	if err == nil || !strings.Contains(err.Error(), want) {
		t.Errorf("missing API key error = %v, want it to name %s", err, want)
	}

	t.Setenv("COLAB_ENGINE_API_KEY", "k")
	t.Setenv("COLAB_STORAGE_BACKEND", "supabase")
	_, err = loadWith(memBackend{}, mockSecrets{})
	if err == nil || !strings.Contains(err.Error(), want) {
		t.Errorf("missing supabase error = %v, want it to name %s", err, want)
	}
}

func TestOllamaNeedsNoAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("COLAB_ENGINE_PROVIDER", "Ollama")

	cfg, err := loadWith(memBackend{}, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Provider != "ollama" {
		t.Errorf("Provider = %q, want ollama", cfg.Engine.Provider)
	}
	if cfg.Engine.BaseURL != "http://localhost:11434" {
		t.Errorf("BaseURL = %q, want local ollama", cfg.Engine.BaseURL)
	}
}

func TestUnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("COLAB_ENGINE_PROVIDER", "llamafile")

	if _, err := loadWith(memBackend{}, mockSecrets{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestSecretsFallback(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(memBackend{}, mockSecrets{
		"engine_api_key": "secret-key",
		"github_token":   "gh-token",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.APIKey != "secret-key" {
		t.Errorf("Engine.APIKey = %q, want secret-key", cfg.Engine.APIKey)
	}
	if cfg.GitHub.Token != "gh-token" {
		t.Errorf("GitHub.Token = %q, want gh-token", cfg.GitHub.Token)
	}
}

func TestSecretsIgnoredInBackend(t *testing.T) {
	clearEnv(t)

	b := memBackend{"engine.api_key": "plain-text-key"}
	if _, err := loadWith(b, mockSecrets{}); err == nil {
		t.Fatal("API key in the config file must not be honoured")
	}
}

func TestSupabaseRequiresCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("COLAB_ENGINE_API_KEY", "k")
	t.Setenv("COLAB_STORAGE_BACKEND", "supabase")

	if _, err := loadWith(memBackend{}, mockSecrets{}); err == nil {
		t.Fatal("expected error without supabase credentials")
	}

	t.Setenv("COLAB_SUPABASE_URL", "https://x.supabase.co")
	cfg, err := loadWith(memBackend{}, mockSecrets{"supabase_key": "anon"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Supabase.Key != "anon" {
		t.Errorf("Supabase.Key = %q, want anon", cfg.Supabase.Key)
	}
}

func TestThresholdRange(t *testing.T) {
	clearEnv(t)
	t.Setenv("COLAB_ENGINE_API_KEY", "k")
	t.Setenv("COLAB_MATCHING_THRESHOLD", "1.5")

	if _, err := loadWith(memBackend{}, mockSecrets{}); err == nil {
		t.Fatal("expected error for threshold above 1")
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	clearEnv(t)
	t.Setenv("COLAB_ENGINE_API_KEY", "k")
	path := filepath.Join(t.TempDir(), "colab", "config.json")

	b := newFileBackend(path)
	for key, val := range map[string]string{
		"server.port":        "4100",
		"server.mcp_enabled": "no",
		"matching.threshold": "0.65",
		"cache.profile_ttl":  "3m",
	} {
		err := setKeyWith(b, key, val)
		if key == "server.mcp_enabled" {
			if err == nil {
				t.Errorf("setKeyWith(%s, %q) accepted an invalid bool", key, val)
			}
			continue
		}
		if err != nil {
			t.Fatalf("setKeyWith(%s): %v", key, err)
		}
	}
	if err := setKeyWith(b, "server.mcp_enabled", "false"); err != nil {
		t.Fatalf("setKeyWith(server.mcp_enabled): %v", err)
	}

	cfg, err := loadWith(newFileBackend(path), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Server.MCPEnabled {
		t.Error("Server.MCPEnabled = true, want false")
	}
	if cfg.Matching.Threshold != 0.65 {
		t.Errorf("Matching.Threshold = %v, want 0.65", cfg.Matching.Threshold)
	}
	if cfg.ProfileTTL().Minutes() != 3 {
		t.Errorf("ProfileTTL() = %v, want 3m", cfg.ProfileTTL())
	}
}

func TestSetKeyRejects(t *testing.T) {
	b := memBackend{}
	if err := setKeyWith(b, "engine.api_key", "x"); err == nil {
		t.Error("setting a secret through config should fail")
	}
	if err := setKeyWith(b, "nope.key", "x"); err == nil {
		t.Error("unknown key should fail")
	}
	if err := setKeyWith(b, "matching.team_top_k", "three"); err == nil {
		t.Error("non-integer value should fail")
	}
	if len(b) != 0 {
		t.Errorf("backend modified on rejected writes: %v", b)
	}
}

func TestSetSecret(t *testing.T) {
	f := secretsFile{path: filepath.Join(t.TempDir(), "secrets.json")}

	if err := setSecretWith(f, "github.token", "ghp_1"); err != nil {
		t.Fatalf("setSecretWith: %v", err)
	}
	if err := setSecretWith(f, "engine.api_key", "sk-1"); err != nil {
		t.Fatalf("setSecretWith: %v", err)
	}
	if err := setSecretWith(f, "server.port", "1"); err == nil {
		t.Error("non-secret key should be rejected")
	}

	got, err := f.Get("colab", "github_token")
	if err != nil || got != "ghp_1" {
		t.Errorf("Get(github_token) = %q, %v", got, err)
	}
	info, err := os.Stat(f.path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secrets file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Engine.APIKey = "sk-secret"

	for _, ki := range ShowAll(cfg) {
		if strings.Contains(ki.Value, "sk-secret") {
			t.Errorf("ShowAll leaked %s", ki.Key)
		}
		switch ki.Key {
		case "engine.api_key":
			if ki.Value != "(set)" {
				t.Errorf("engine.api_key = %q, want (set)", ki.Value)
			}
		case "github.token":
			if ki.Value != "(unset)" {
				t.Errorf("github.token = %q, want (unset)", ki.Value)
			}
		}
	}
}

func TestProfileTTLMalformed(t *testing.T) {
	cfg := defaults()
	cfg.Cache.ProfileTTL = "soon"
	if cfg.ProfileTTL() != 0 {
		t.Errorf("ProfileTTL() = %v, want 0", cfg.ProfileTTL())
	}
}

func TestValidKeysExcludeSecrets(t *testing.T) {
	secret := map[string]bool{}
	for _, k := range SecretKeys() {
		secret[k] = true
	}
	if len(secret) != 3 {
		t.Errorf("SecretKeys() = %v, want 3 keys", SecretKeys())
	}
	for _, k := range ValidKeys() {
		if secret[k] {
			t.Errorf("ValidKeys() includes secret %s", k)
		}
	}
}
