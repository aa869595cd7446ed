package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Addr         string `yaml:"addr"`
		RateLimitRPM int    `yaml:"rate_limit_rpm"`
		RateBurst    int    `yaml:"rate_burst"`
		MaxUploadMB  int    `yaml:"max_upload_mb"`
	} `yaml:"http"`
	Dev struct {
		Mode bool `yaml:"mode"`
	} `yaml:"dev"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	LLM struct {
		Provider           string        `yaml:"provider"`
		Model              string        `yaml:"model"`
		BaseURL            string        `yaml:"base_url"`
		APIKey             string        `yaml:"api_key"`
		MaxNewTokens       int           `yaml:"max_new_tokens"`
		MaxTranscriptChars int           `yaml:"max_transcript_chars"`
		PromptPath         string        `yaml:"prompt_path"`
		RequestTimeout     time.Duration `yaml:"request_timeout"`
	} `yaml:"llm"`
	Vocab struct {
		TokenizerPath string `yaml:"tokenizer_path"`
	} `yaml:"vocab"`
	Rules struct {
		Path string `yaml:"path"`
	} `yaml:"rules"`
	Metrics struct {
		GPUPollInterval time.Duration `yaml:"gpu_poll_interval"`
	} `yaml:"metrics"`
	Worker struct {
		PopTimeout time.Duration `yaml:"pop_timeout"`
	} `yaml:"worker"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8000"
	cfg.HTTP.RateLimitRPM = 120
	cfg.HTTP.RateBurst = 10
	cfg.HTTP.MaxUploadMB = 32
	cfg.Dev.Mode = true
	cfg.LLM.Provider = "noop"
	cfg.LLM.MaxNewTokens = 512
	cfg.LLM.MaxTranscriptChars = 22000
	cfg.LLM.RequestTimeout = 120 * time.Second
	cfg.Metrics.GPUPollInterval = 15 * time.Second
	cfg.Worker.PopTimeout = 5 * time.Second
	cfg.Log.Level = "info"
	return cfg
}

// Load reads path (missing files are ignored), applies CS_* overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "noop", "openai", "ollama":
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.Provider != "noop" && c.LLM.Model == "" {
		return errors.New("missing llm.model (or CS_LLM_MODEL)")
	}
	if c.LLM.MaxNewTokens <= 0 {
		return errors.New("llm.max_new_tokens must be positive")
	}
	if c.LLM.MaxTranscriptChars <= 0 {
		return errors.New("llm.max_transcript_chars must be positive")
	}
	if c.HTTP.RateLimitRPM < 0 || c.HTTP.RateBurst < 0 {
		return errors.New("http rate limits must not be negative")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CS_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("CS_RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimitRPM = n
		}
	}
	if v := os.Getenv("CS_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateBurst = n
		}
	}
	if v := os.Getenv("CS_MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.MaxUploadMB = n
		}
	}
	if v := os.Getenv("CS_DEV_MODE"); v != "" {
		cfg.Dev.Mode = parseBool(v, cfg.Dev.Mode)
	}
	if v := os.Getenv("CS_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("CS_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("CS_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("CS_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("CS_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("CS_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("CS_MAX_NEW_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxNewTokens = n
		}
	}
	if v := os.Getenv("CS_MAX_TRANSCRIPT_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxTranscriptChars = n
		}
	}
	if v := os.Getenv("CS_LLM_PROMPT_PATH"); v != "" {
		cfg.LLM.PromptPath = v
	}
	if v := os.Getenv("CS_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.RequestTimeout = d
		}
	}
	if v := os.Getenv("CS_TOKENIZER_PATH"); v != "" {
		cfg.Vocab.TokenizerPath = v
	}
	if v := os.Getenv("CS_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("CS_GPU_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Metrics.GPUPollInterval = d
		}
	}
	if v := os.Getenv("CS_WORKER_POP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.PopTimeout = d
		}
	}
	if v := os.Getenv("CS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func parseBool(input string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
