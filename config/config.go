package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendPassthrough = "passthrough"
	BackendCommand     = "command"
	BackendComfyUI     = "comfyui"
)

type Config struct {
	Backend          string `yaml:"backend"`
	StrictBackground bool   `yaml:"strict_background"`
	ReuseAlpha       bool   `yaml:"reuse_alpha"`
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`

	Command CommandConfig `yaml:"command"`
	ComfyUI ComfyUIConfig `yaml:"comfyui"`
	Server  ServerConfig  `yaml:"server"`
}

// CommandConfig 外部抠图命令，图片从 stdin 输入，PNG 从 stdout 输出
type CommandConfig struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
}

type ComfyUIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	WorkflowPath string        `yaml:"workflow_path"` // 为空时使用内置 BiRefNet workflow
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

func Default() *Config {
	return &Config{
		Backend:   BackendCommand,
		LogLevel:  "info",
		LogFormat: "text",
		Command: CommandConfig{
			Path: "rembg",
			Args: []string{"i", "-", "-"},
		},
		ComfyUI: ComfyUIConfig{
			BaseURL:      "http://127.0.0.1:8188/",
			PollInterval: 500 * time.Millisecond,
			Timeout:      2 * time.Minute,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 32,
		},
	}
}

// Load 读取 YAML 配置，未出现的字段保留默认值
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPassthrough, BackendCommand, BackendComfyUI:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == BackendCommand && c.Command.Path == "" {
		return errors.New("command.path is required for the command backend")
	}
	if c.Backend == BackendComfyUI {
		if c.ComfyUI.BaseURL == "" {
			return errors.New("comfyui.base_url is required for the comfyui backend")
		}
		if c.ComfyUI.PollInterval <= 0 || c.ComfyUI.Timeout <= 0 {
			return errors.New("comfyui.poll_interval and comfyui.timeout must be positive")
		}
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NewLogger 按配置构造 slog.Logger
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return level, nil
}
