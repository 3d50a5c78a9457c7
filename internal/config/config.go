package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/ammar1510/mesh/internal/logger"
)

// DefaultPath is read when no config file is given and it exists.
const DefaultPath = "mesh.yaml"

var log = logger.New("config")

// Config is the terminal client's configuration
type Config struct {
	APIURL    string `yaml:"api_url" validate:"required,url"`
	SocketURL string `yaml:"socket_url" validate:"required,url"`
	Token     string `yaml:"token"`

	Drafts  DraftsConfig  `yaml:"drafts"`
	Log     LogConfig     `yaml:"log"`
	Chat    ChatConfig    `yaml:"chat"`
	Socket  SocketConfig  `yaml:"socket"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type DraftsConfig struct {
	Store string `yaml:"store" validate:"oneof=memory pebble postgres"`
	DSN   string `yaml:"dsn" validate:"required_unless=Store memory"`
}

type LogConfig struct {
	// Level is a default level optionally followed by per-component
	// overrides, e.g. "info,websocket=debug".
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type ChatConfig struct {
	PageSize       int    `yaml:"page_size" validate:"min=1,max=200"`
	ThreadPageSize int    `yaml:"thread_page_size" validate:"min=1,max=200"`
	TypingTimeout  string `yaml:"typing_timeout"`
	GroupWindow    string `yaml:"group_window"`
	MaxVoiceNote   string `yaml:"max_voice_note"`
}

type SocketConfig struct {
	ReconnectAttempts int    `yaml:"reconnect_attempts" validate:"min=1,max=50"`
	ReconnectDelay    string `yaml:"reconnect_delay"`
	AttemptTimeout    string `yaml:"attempt_timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used for anything left unset
func Default() *Config {
	return &Config{
		APIURL:    "http://localhost:8080",
		SocketURL: "ws://localhost:8080/ws",
		Drafts:    DraftsConfig{Store: "pebble", DSN: ".mesh/drafts"},
		Log:       LogConfig{Level: "info", File: "mesh-chat.log"},
		Chat: ChatConfig{
			PageSize:       30,
			ThreadPageSize: 20,
			TypingTimeout:  "3s",
			GroupWindow:    "5m",
			MaxVoiceNote:   "10MB",
		},
		Socket: SocketConfig{
			ReconnectAttempts: 5,
			ReconnectDelay:    "1s",
			AttemptTimeout:    "20s",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path
// (DefaultPath when empty and present), .env and MESH_* environment
// variables, in increasing precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug(".env file not found, using environment variables")
	}

	cfg := Default()
	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile writes the configuration as YAML. The token is never written.
func SaveToFile(cfg *Config, path string) error {
	out := *cfg
	out.Token = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"MESH_API_URL":      &c.APIURL,
		"MESH_SOCKET_URL":   &c.SocketURL,
		"MESH_TOKEN":        &c.Token,
		"MESH_DRAFT_STORE":  &c.Drafts.Store,
		"MESH_DRAFT_DSN":    &c.Drafts.DSN,
		"MESH_LOG_LEVEL":    &c.Log.Level,
		"MESH_LOG_FILE":     &c.Log.File,
		"MESH_METRICS_ADDR": &c.Metrics.Addr,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"MESH_PAGE_SIZE":          &c.Chat.PageSize,
		"MESH_RECONNECT_ATTEMPTS": &c.Socket.ReconnectAttempts,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks field constraints and that every duration and size
// parses.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return err
	}

	durations := map[string]string{
		"chat.typing_timeout":    c.Chat.TypingTimeout,
		"chat.group_window":      c.Chat.GroupWindow,
		"socket.reconnect_delay": c.Socket.ReconnectDelay,
		"socket.attempt_timeout": c.Socket.AttemptTimeout,
	}
	for name, raw := range durations {
		if _, err := parseDuration(raw); err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
	}
	if _, _, err := logger.ParseLevels(c.Log.Level); err != nil {
		return fmt.Errorf("invalid config: log.level: %w", err)
	}
	if _, err := c.MaxVoiceNoteBytes(); err != nil {
		return fmt.Errorf("invalid config: chat.max_voice_note: %w", err)
	}
	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", raw)
	}
	return d, nil
}

func mustDuration(raw string) time.Duration {
	d, _ := parseDuration(raw)
	return d
}

// Durations are validated by Load; zero means the package default.

func (c *Config) TypingTimeout() time.Duration  { return mustDuration(c.Chat.TypingTimeout) }
func (c *Config) GroupWindow() time.Duration    { return mustDuration(c.Chat.GroupWindow) }
func (c *Config) ReconnectDelay() time.Duration { return mustDuration(c.Socket.ReconnectDelay) }
func (c *Config) AttemptTimeout() time.Duration { return mustDuration(c.Socket.AttemptTimeout) }

// MaxVoiceNoteBytes parses the voice note limit ("10MB", "512KiB").
func (c *Config) MaxVoiceNoteBytes() (uint64, error) {
	if c.Chat.MaxVoiceNote == "" {
		return 0, nil
	}
	return humanize.ParseBytes(c.Chat.MaxVoiceNote)
}
