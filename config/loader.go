package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "sddcheck.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/sddcheck"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvFile is read from the working directory for SDDCHECK_* variables
	EnvFile = ".env"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "SDDCHECK_"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
	dir    string
	home   string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger}
	if cwd, err := os.Getwd(); err == nil {
		l.dir = cwd
	}
	if home, err := os.UserHomeDir(); err == nil {
		l.home = home
	}
	return l
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/sddcheck/config.yaml)
// 3. Project config (sddcheck.yaml in current or parent directories)
// 4. SDDCHECK_* variables from .env, then from the environment
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if userConfig, err := readFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	if projectConfigPath := l.findProjectConfig(); projectConfigPath != "" {
		projectConfig, err := readFile(projectConfigPath)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
		config.Merge(projectConfig)
	} else {
		l.logger.Debug("No project config found")
	}

	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadExplicit loads path on top of the defaults, then applies the
// environment. Used for --config.
func (l *Loader) LoadExplicit(path string) (*Config, error) {
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("Loaded config", slog.String("path", path))
	if err := l.applyEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// InitProject writes the default config to the working directory. It
// refuses to overwrite an existing file unless force is set.
func (l *Loader) InitProject(force bool) (string, error) {
	path := filepath.Join(l.dir, ProjectConfigFile)
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists", path)
	}
	if err := DefaultConfig().SaveToFile(path); err != nil {
		return "", err
	}
	l.logger.Info("Created project config", slog.String("path", path))
	return path, nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	if l.home == "" {
		return ""
	}
	return filepath.Join(l.home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for sddcheck.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	if l.dir == "" {
		return ""
	}

	dir := l.dir
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// applyEnv overrides config from SDDCHECK_* variables. Process environment
// wins over .env.
func (l *Loader) applyEnv(config *Config) error {
	dotenv := map[string]string{}
	if l.dir != "" {
		envPath := filepath.Join(l.dir, EnvFile)
		vars, err := godotenv.Read(envPath)
		switch {
		case err == nil:
			l.logger.Debug("Loaded env file", slog.String("path", envPath))
			dotenv = vars
		case !errors.Is(err, fs.ErrNotExist):
			l.logger.Warn("Failed to read env file", slog.String("path", envPath), slog.String("error", err.Error()))
		}
	}

	lookup := func(name string) (string, bool) {
		key := EnvPrefix + name
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	strs := map[string]*string{
		"TEMPLATES_DIR": &config.Templates.Dir,
		"EXAMPLES_DIR":  &config.Examples.Dir,
		"JOURNEYS_FILE": &config.Journeys.File,
		"SUITES_FILE":   &config.Suites.File,
		"REPORT_DIR":    &config.Report.Dir,
		"METRICS_FILE":  &config.Report.MetricsFile,
		"GROUP_BY":      &config.Templates.GroupBy,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	if v, ok := lookup("WORKERS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", EnvPrefix, err)
		}
		config.Workers = n
	}
	if v, ok := lookup("MIN_SCORE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sMIN_SCORE: %w", EnvPrefix, err)
		}
		config.Scoring.MinScore = f
	}
	return nil
}
