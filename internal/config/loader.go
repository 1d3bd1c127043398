package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config file locations and environment prefix.
const (
	GlobalConfigDir   = "edufocus"
	GlobalConfigFile  = "config.yaml"
	ProjectConfigDir  = ".edufocus"
	ProjectConfigFile = "config.yaml"
	EnvPrefix         = "EDUFOCUS"
)

// Load builds the configuration. Precedence (later overrides earlier):
//  1. Default() values
//  2. ~/.config/edufocus/config.yaml (global)
//  3. .edufocus/config.yaml (project)
//  4. the file named by the "config" key (--config flag or EDUFOCUS_CONFIG)
//  5. Environment variables (EDUFOCUS_SERVER_BASE_URL, ...)
//  6. CLI flags bound to v
//
// Missing global and project files are ignored.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()

	defaultMap, err := structToMap(cfg)
	if err != nil {
		return nil, err
	}
	if err := v.MergeConfigMap(defaultMap); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, path := range []string{globalConfigPath(), projectConfigPath()} {
		if path == "" {
			continue
		}
		if err := mergeFile(v, path); err != nil {
			return nil, err
		}
	}

	if explicit := v.GetString("config"); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := mergeFile(v, explicit); err != nil {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// GlobalPath returns where the global config file lives, whether or not it exists.
func GlobalPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, GlobalConfigDir, GlobalConfigFile)
}

func globalConfigPath() string {
	path := GlobalPath()
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func projectConfigPath() string {
	path := filepath.Join(ProjectConfigDir, ProjectConfigFile)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// mergeFile reads a YAML file into a scratch viper and merges its settings.
func mergeFile(v *viper.Viper, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	fileViper := viper.New()
	fileViper.SetConfigType("yaml")
	if err := fileViper.ReadConfig(file); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return v.MergeConfigMap(fileViper.AllSettings())
}

// WriteDefault writes the default configuration as YAML to path. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// structToMap converts a struct to a map for viper.MergeConfigMap.
func structToMap(cfg *Config) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "mapstructure",
		Result:     &result,
		DecodeHook: durationToStringHook(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}
	return result, nil
}

// durationToStringHook keeps durations readable once they pass through viper.
func durationToStringHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if from != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return data.(time.Duration).String(), nil
	}
}
