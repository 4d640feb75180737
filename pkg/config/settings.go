package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// For mocking in tests
var osUserConfigDir = os.UserConfigDir

const (
	appDirName       = "ssmfwd"
	settingsFileName = "config.yaml"
	envPrefix        = "SSMFWD"
)

// Settings is the application configuration. It is read from
// ~/.config/ssmfwd/config.yaml and SSMFWD_* environment variables.
type Settings struct {
	DataDir string      `mapstructure:"data_dir" yaml:"data_dir"`
	AWS     AWSSettings `mapstructure:"aws" yaml:"aws"`
	Log     LogSettings `mapstructure:"log" yaml:"log"`
}

// AWSSettings configures how session-manager processes are launched.
type AWSSettings struct {
	Executable  string        `mapstructure:"executable" yaml:"executable"`
	BinDir      string        `mapstructure:"bin_dir" yaml:"bin_dir"`         // Prepended to PATH for the aws cli and its plugin
	ProfileEnv  string        `mapstructure:"profile_env" yaml:"profile_env"` // Variable that receives the entry's env
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

// LogSettings configures the log file used by the interactive UI.
type LogSettings struct {
	File  string `mapstructure:"file" yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
}

// ConnectionsPath returns the path of connections.json.
func (s Settings) ConnectionsPath() string {
	return DefaultPath(s.DataDir)
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() (Settings, error) {
	dir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		DataDir: dir,
		AWS: AWSSettings{
			Executable:  defaultExecutable(),
			BinDir:      "/usr/local/bin",
			ProfileEnv:  "AWS_PROFILE",
			StopTimeout: 5 * time.Second,
		},
		Log: LogSettings{
			File:  filepath.Join(dir, "ssmfwd.log"),
			Level: "info",
		},
	}, nil
}

// DefaultSettingsPath returns the default location of config.yaml.
func DefaultSettingsPath() (string, error) {
	dir, err := defaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, settingsFileName), nil
}

// LoadSettings layers defaults, the settings file and the environment.
// A missing file is not an error. An empty path selects DefaultSettingsPath.
func LoadSettings(path string) (Settings, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultSettingsPath()
		if err != nil {
			return Settings{}, err
		}
		path = p
	}

	cfg, err := DefaultSettings()
	if err != nil {
		return Settings{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("aws.executable", cfg.AWS.Executable)
	v.SetDefault("aws.bin_dir", cfg.AWS.BinDir)
	v.SetDefault("aws.profile_env", cfg.AWS.ProfileEnv)
	v.SetDefault("aws.stop_timeout", cfg.AWS.StopTimeout)
	v.SetDefault("log.file", "")
	v.SetDefault("log.level", cfg.Log.Level)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if explicit || !missing {
			return Settings{}, fmt.Errorf("failed to read settings %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings %s: %w", path, err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.AWS.Executable = expandHome(cfg.AWS.Executable)
	// The log file follows data_dir unless set explicitly.
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.DataDir, "ssmfwd.log")
	}
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Validate checks settings that would make every session fail.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.DataDir) == "" {
		return errors.New("data_dir must not be empty")
	}
	if strings.TrimSpace(s.AWS.Executable) == "" {
		return errors.New("aws.executable must not be empty")
	}
	if strings.TrimSpace(s.AWS.ProfileEnv) == "" {
		return errors.New("aws.profile_env must not be empty")
	}
	if s.AWS.StopTimeout < 0 {
		return fmt.Errorf("aws.stop_timeout must not be negative, got %s", s.AWS.StopTimeout)
	}
	return nil
}

func defaultDataDir() (string, error) {
	base, err := osUserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

func defaultExecutable() string {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return "/opt/homebrew/bin/aws"
	}
	return "/usr/local/bin/aws"
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
