// Package config holds server configuration for codebot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server settings. Values come from an optional YAML file,
// overridden by CODEBOT_* environment variables.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// Workers is the task worker pool size. The review queue always has
	// exactly one worker; that is a correctness property, not a setting.
	Workers         int           `yaml:"workers"`
	TaskQueueSize   int           `yaml:"task_queue_size"`
	ReviewQueueSize int           `yaml:"review_queue_size"`
	TaskRetention   time.Duration `yaml:"task_retention"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`

	WebhookSecret string   `yaml:"webhook_secret"`
	APIKeys       []string `yaml:"api_keys"`

	// PollInterval enables the comment poller as a review intake for
	// deployments GitHub cannot reach with webhooks. Zero disables polling.
	PollInterval time.Duration `yaml:"poll_interval"`

	// BotLogin is the hosting account the server posts as; comments from it
	// are never enqueued. SignatureMarker is the trailer appended to every
	// reply, also used for recursion filtering.
	BotLogin        string `yaml:"bot_login"`
	SignatureMarker string `yaml:"signature_marker"`

	GitHubToken  string `yaml:"github_token"`
	WorkspaceDir string `yaml:"workspace_dir"`
	LedgerPath   string `yaml:"ledger_path"`

	AgentBin     string        `yaml:"agent_bin"`
	AgentTimeout time.Duration `yaml:"agent_timeout"`
}

// Default returns a Config with the stock settings.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ListenAddr:      "127.0.0.1:5000",
		Workers:         1,
		TaskQueueSize:   100,
		ReviewQueueSize: 100,
		TaskRetention:   24 * time.Hour,
		SweepInterval:   10 * time.Minute,
		BotLogin:        "codebot-007[bot]",
		SignatureMarker: "Automated by codebot",
		WorkspaceDir:    filepath.Join(".", "codebot_workspace"),
		LedgerPath:      filepath.Join(home, ".codebot", "codebot.db"),
		AgentBin:        "claude",
		AgentTimeout:    10 * time.Minute,
	}
}

// Load reads the config file at path (if path is empty or the file does not
// exist, defaults are used) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CODEBOT_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("CODEBOT_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv("CODEBOT_MAX_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TaskQueueSize = n
		}
	}
	if v := os.Getenv("CODEBOT_REVIEW_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ReviewQueueSize = n
		}
	}
	if v := os.Getenv("CODEBOT_TASK_RETENTION"); v != "" {
		// Plain integers are seconds, matching the original deployment knob.
		if n, err := strconv.Atoi(v); err == nil {
			c.TaskRetention = time.Duration(n) * time.Second
		} else if d, err := time.ParseDuration(v); err == nil {
			c.TaskRetention = d
		}
	}
	if v := os.Getenv("GITHUB_WEBHOOK_SECRET"); v != "" {
		c.WebhookSecret = v
	}
	if v := os.Getenv("CODEBOT_POLL_INTERVAL"); v != "" {
		// Plain integers are seconds, matching the original deployment knob.
		if n, err := strconv.Atoi(v); err == nil {
			c.PollInterval = time.Duration(n) * time.Second
		} else if d, err := time.ParseDuration(v); err == nil {
			c.PollInterval = d
		}
	}
	if v := os.Getenv("CODEBOT_API_KEYS"); v != "" {
		c.APIKeys = splitKeys(v)
	}
	if v := os.Getenv("CODEBOT_BOT_LOGIN"); v != "" {
		c.BotLogin = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHubToken = v
	}
	if v := os.Getenv("CODEBOT_WORKSPACE_BASE_DIR"); v != "" {
		c.WorkspaceDir = v
	}
	if v := os.Getenv("CODEBOT_LEDGER_PATH"); v != "" {
		c.LedgerPath = v
	}
	if v := os.Getenv("CODEBOT_AGENT_BIN"); v != "" {
		c.AgentBin = v
	}
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.TaskQueueSize < 1 {
		return fmt.Errorf("task_queue_size must be at least 1, got %d", c.TaskQueueSize)
	}
	if c.ReviewQueueSize < 1 {
		return fmt.Errorf("review_queue_size must be at least 1, got %d", c.ReviewQueueSize)
	}
	if c.TaskRetention <= 0 {
		return fmt.Errorf("task_retention must be positive, got %s", c.TaskRetention)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must not be negative, got %s", c.PollInterval)
	}
	return nil
}

// HasAPIKeys reports whether the HTTP task API is enabled.
func (c *Config) HasAPIKeys() bool {
	return len(c.APIKeys) > 0
}

// IsAPIKeyValid checks a presented API key against the configured set.
func (c *Config) IsAPIKeyValid(key string) bool {
	if key == "" {
		return false
	}
	for _, k := range c.APIKeys {
		if k == key {
			return true
		}
	}
	return false
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
