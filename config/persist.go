package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/ChicagoHAI/idea-explorer/errors"
)

// WriteDefault writes a commented starter config to the user config
// directory if none exists. Returns the path written, or the existing path.
func WriteDefault() (string, error) {
	userDir := UserConfigDir()
	if userDir == "" {
		return "", errors.New("could not determine home directory")
	}

	configPath := filepath.Join(userDir, "config.toml")
	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil // already present, leave it alone
	}

	v := GetViper()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return "", errors.Wrap(err, "failed to materialize default config")
	}

	data, err := toml.Marshal(settingsMap(&cfg))
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal default config")
	}

	if err := writeFileAtomic(configPath, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write default config")
	}
	return configPath, nil
}

// SaveTo persists a config snapshot to an explicit path as TOML.
func SaveTo(cfg *Config, path string) error {
	data, err := toml.Marshal(settingsMap(cfg))
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	return writeFileAtomic(path, data, 0o644)
}

// Render returns the config as TOML, the same layout SaveTo writes
func Render(cfg *Config) (string, error) {
	data, err := toml.Marshal(settingsMap(cfg))
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal config")
	}
	return string(data), nil
}

// settingsMap converts a Config to the nested map layout used in TOML files
func settingsMap(cfg *Config) map[string]interface{} {
	return map[string]interface{}{
		"workspace": map[string]interface{}{
			"dir":           cfg.Workspace.Dir,
			"auto_create":   cfg.Workspace.AutoCreate,
			"ideas_dir":     cfg.Workspace.IdeasDir,
			"templates_dir": cfg.Workspace.TemplatesDir,
		},
		"database": map[string]interface{}{
			"path": cfg.Database.Path,
		},
		"pipeline": map[string]interface{}{
			"poll_interval_seconds": cfg.Pipeline.PollIntervalSeconds,
			"kill_grace_seconds":    cfg.Pipeline.KillGraceSeconds,
			"max_stage_attempts":    cfg.Pipeline.MaxStageAttempts,
			"pause_after_resources": cfg.Pipeline.PauseAfterResources,
			"write_paper":           cfg.Pipeline.WritePaper,
		},
		"agent": map[string]interface{}{
			"provider":                   cfg.Agent.Provider,
			"full_permissions":           cfg.Agent.FullPermissions,
			"resource_timeout_seconds":   cfg.Agent.ResourceTimeoutSeconds,
			"experiment_timeout_seconds": cfg.Agent.ExperimentTimeoutSeconds,
			"paper_timeout_seconds":      cfg.Agent.PaperTimeoutSeconds,
			"min_available_memory_mb":    cfg.Agent.MinAvailableMemoryMB,
		},
		"github": map[string]interface{}{
			"enabled":              cfg.GitHub.Enabled,
			"org":                  cfg.GitHub.Org,
			"max_calls_per_minute": cfg.GitHub.MaxCallsPerMinute,
		},
		"log": map[string]interface{}{
			"json":    cfg.Log.JSON,
			"verbose": cfg.Log.Verbose,
		},
	}
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated config behind.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
