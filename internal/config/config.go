package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds the daemon configuration. Secrets come from the
// environment (optionally a .env file); the TOML file carries the rest.
type Config struct {
	ListenAddr string   `toml:"listen_addr"`
	DataDir    string   `toml:"data_dir"`
	WhatsApp   WhatsApp `toml:"whatsapp"`
}

// WhatsApp holds provider credentials and webhook settings.
type WhatsApp struct {
	AccessToken   string `toml:"access_token"`
	PhoneNumberID string `toml:"phone_number_id"`
	VerifyToken   string `toml:"verify_token"`
	AppSecret     string `toml:"app_secret"`
	APIBaseURL    string `toml:"api_base_url"` // empty = production Graph API
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		DataDir:    defaultDataDir(),
	}
}

// Load reads config from the given TOML path (missing file means
// defaults), then applies .env and environment overrides. Environment
// always wins so deployments can keep secrets out of the file.
func Load(path string) (*Config, error) {
	// Best-effort: a .env next to the binary or cwd, absent in production.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("config: listen_addr is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("config: data_dir is required")
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// DBPath returns the SQLite database path under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "warelay.db")
}

// LogPath returns the daemon log file path under the data dir.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "warelayd.log")
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"WARELAY_LISTEN_ADDR", &cfg.ListenAddr},
		{"WARELAY_DATA_DIR", &cfg.DataDir},
		{"WHATSAPP_TOKEN", &cfg.WhatsApp.AccessToken},
		{"WHATSAPP_PHONE_NUMBER_ID", &cfg.WhatsApp.PhoneNumberID},
		{"WHATSAPP_VERIFY_TOKEN", &cfg.WhatsApp.VerifyToken},
		{"WHATSAPP_APP_SECRET", &cfg.WhatsApp.AppSecret},
		{"WHATSAPP_API_BASE_URL", &cfg.WhatsApp.APIBaseURL},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warelay"
	}
	return filepath.Join(home, ".warelay")
}
