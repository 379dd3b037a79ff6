package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hoppxi/wigo-brightness/pkg/brightness"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	BackendAuto  = "auto"
	BackendGnome = "gnome"
	BackendSysfs = "sysfs"

	envPrefix = "BRIGHTNESS"
)

type Config struct {
	Backend string      `mapstructure:"backend" yaml:"backend"`
	Sysfs   SysfsConfig `mapstructure:"sysfs" yaml:"sysfs"`
	Log     LogConfig   `mapstructure:"log" yaml:"log"`
	Watch   WatchConfig `mapstructure:"watch" yaml:"watch"`
}

type SysfsConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

type WatchConfig struct {
	Stdout bool      `mapstructure:"stdout" yaml:"stdout"`
	Notify bool      `mapstructure:"notify" yaml:"notify"`
	Eww    EwwConfig `mapstructure:"eww" yaml:"eww"`
}

// EwwConfig names the eww variables updated on every change. Empty names
// disable the update.
type EwwConfig struct {
	Variable    string `mapstructure:"variable" yaml:"variable"`
	OSDVariable string `mapstructure:"osd_variable" yaml:"osd_variable"`
	OSDSeconds  int    `mapstructure:"osd_seconds" yaml:"osd_seconds"`
}

func Defaults() Config {
	return Config{
		Backend: BackendAuto,
		Sysfs:   SysfsConfig{Path: brightness.DefaultBacklightPath},
		Log:     LogConfig{Level: "info"},
		Watch: WatchConfig{
			Stdout: true,
			Eww:    EwwConfig{OSDSeconds: 5},
		},
	}
}

func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "wigo-brightness", "config.yaml")
	}
	return filepath.Join(configDir, "wigo-brightness", "config.yaml")
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendGnome, BackendSysfs:
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend, BackendAuto, BackendGnome, BackendSysfs)
	}
	if c.Watch.Eww.OSDSeconds < 0 {
		return fmt.Errorf("watch.eww.osd_seconds must not be negative")
	}
	return nil
}

type Manager struct {
	path string
	v    *viper.Viper

	mu     sync.RWMutex
	cfg    Config
	loaded bool
}

// New returns a manager for path, or DefaultPath when path is empty.
func New(path string) *Manager {
	if path == "" {
		path = DefaultPath()
	}
	return &Manager{path: path, cfg: Defaults()}
}

func (m *Manager) Path() string {
	return m.path
}

// Load reads the config file. A missing file is not an error; defaults and
// BRIGHTNESS_* environment variables apply.
func (m *Manager) Load() (Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(m.path)
	v.SetConfigType("yaml")

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug().Str("path", m.path).Msg("config file not found, using defaults")
		fromFile = false
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}

	m.mu.Lock()
	m.v = v
	m.cfg = cfg
	m.loaded = fromFile
	m.mu.Unlock()

	return cfg, nil
}

func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Watch calls onChange with every valid reload of the config file. Invalid
// edits are logged and the previous config is kept.
func (m *Manager) Watch(onChange func(Config)) {
	m.mu.RLock()
	v, loaded := m.v, m.loaded
	m.mu.RUnlock()

	if v == nil || !loaded {
		log.Debug().Str("path", m.path).Msg("no config file to watch")
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			log.Warn().Err(err).Str("path", e.Name).Msg("ignoring invalid config")
			return
		}

		m.mu.Lock()
		m.cfg = cfg
		m.mu.Unlock()

		log.Info().Str("path", e.Name).Msg("config reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("backend", d.Backend)
	v.SetDefault("sysfs.path", d.Sysfs.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("watch.stdout", d.Watch.Stdout)
	v.SetDefault("watch.notify", d.Watch.Notify)
	v.SetDefault("watch.eww.variable", d.Watch.Eww.Variable)
	v.SetDefault("watch.eww.osd_variable", d.Watch.Eww.OSDVariable)
	v.SetDefault("watch.eww.osd_seconds", d.Watch.Eww.OSDSeconds)
}

// Generate writes cfg as YAML to path. An existing file is only replaced
// when overwrite is set.
func Generate(path string, cfg Config, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("%s already exists", path)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
