package config

import (
	"github.com/spf13/viper"
)

// Default directory permissions for config and workspace directories
const DefaultDirPermissions = 0o750

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Workspace defaults
	v.SetDefault("workspace.dir", "runs")
	v.SetDefault("workspace.auto_create", true)
	v.SetDefault("workspace.ideas_dir", "ideas")
	v.SetDefault("workspace.templates_dir", "templates")

	// Database defaults
	v.SetDefault("database.path", "explorer.db")

	// Pipeline defaults
	v.SetDefault("pipeline.poll_interval_seconds", 5)
	v.SetDefault("pipeline.kill_grace_seconds", 10)
	v.SetDefault("pipeline.max_stage_attempts", 1) // no automatic retry
	v.SetDefault("pipeline.pause_after_resources", false)
	v.SetDefault("pipeline.write_paper", false)

	// Agent defaults
	v.SetDefault("agent.provider", "claude")
	v.SetDefault("agent.full_permissions", true)
	v.SetDefault("agent.resource_timeout_seconds", 2700)    // 45 min
	v.SetDefault("agent.experiment_timeout_seconds", 10800) // 3 hours
	v.SetDefault("agent.paper_timeout_seconds", 3600)       // 1 hour
	v.SetDefault("agent.min_available_memory_mb", 512)

	// GitHub defaults
	v.SetDefault("github.enabled", false)
	v.SetDefault("github.org", "ChicagoHAI")
	v.SetDefault("github.max_calls_per_minute", 10)

	// Log defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.verbose", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("github.org", "IDEA_EXPLORER_GITHUB_ORG")
	v.BindEnv("database.path", "IDEA_EXPLORER_DATABASE_PATH")
	v.BindEnv("workspace.dir", "IDEA_EXPLORER_WORKSPACE_DIR")
}
