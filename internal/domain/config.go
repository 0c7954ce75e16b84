package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Store        StoreConfig        `mapstructure:"store"`
	Client       ClientConfig       `mapstructure:"client"`
	Notification NotificationConfig `mapstructure:"notification"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig controls server-side extraction and segment transfer
type DownloadConfig struct {
	OutputDir      string        `mapstructure:"output_dir"`
	SourcePattern  string        `mapstructure:"source_pattern"` // regex gate on submitted URLs, empty = any http(s)
	MaxSegments    int           `mapstructure:"max_segments"`
	SegmentWorkers int           `mapstructure:"segment_workers"`
	SegmentRetries int           `mapstructure:"segment_retries"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// StoreConfig contains persistence configuration
type StoreConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// ClientConfig contains defaults for the CLI orchestration client
type ClientConfig struct {
	ServerURL    string        `mapstructure:"server_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	SaveDir      string        `mapstructure:"save_dir"`
}

// NotificationConfig contains desktop notification configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// MetricsConfig contains Prometheus exposition configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			OutputDir:      "$HOME/Downloads/streamsave",
			SourcePattern:  "",
			MaxSegments:    5000,
			SegmentWorkers: 15,
			SegmentRetries: 3,
			RequestTimeout: 15 * time.Second,
			UserAgent:      "streamsave/1.0",
		},
		Store: StoreConfig{
			DatabasePath: "$HOME/Downloads/streamsave/sessions.db",
		},
		Client: ClientConfig{
			ServerURL:    "http://localhost:8080",
			PollInterval: 500 * time.Millisecond,
			SaveDir:      "$HOME/Downloads/streamsave",
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "streamsave",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
