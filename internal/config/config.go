package config

// Config represents the main Hibiscus configuration
type Config struct {
	// Editor settings
	Editor EditorConfig `json:"editor" mapstructure:"editor"`

	// Watcher settings
	Watcher WatcherConfig `json:"watcher" mapstructure:"watcher"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// EditorConfig holds editor session settings
type EditorConfig struct {
	// Quiet period after the last edit before autosave fires, in ms.
	// Zero selects the scheduler's built-in default.
	AutosaveDelayMs int `json:"autosave_delay_ms" mapstructure:"autosave_delay_ms"`
}

// WatcherConfig holds filesystem watcher settings
type WatcherConfig struct {
	// Quiet period before a batch of change notifications flushes, in ms
	StabilityThresholdMs int `json:"stability_threshold_ms" mapstructure:"stability_threshold_ms"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Editor: EditorConfig{
			AutosaveDelayMs: 1000,
		},
		Watcher: WatcherConfig{
			StabilityThresholdMs: 300,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}
