// Package config loads and persists idea-explorer configuration.
//
// Configuration is merged from, in precedence order (lowest to highest):
// system config, user config (~/.idea-explorer/config.toml), a project
// explorer.toml found by upward search, and IDEA_EXPLORER_* environment
// variables.
package config

// Config represents the core idea-explorer configuration
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Agent     AgentConfig     `mapstructure:"agent"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	Log       LogConfig       `mapstructure:"log"`
}

// WorkspaceConfig configures where run working directories live
type WorkspaceConfig struct {
	Dir        string `mapstructure:"dir"`         // parent directory for run workspaces
	AutoCreate bool   `mapstructure:"auto_create"` // create the directory if missing
	IdeasDir   string `mapstructure:"ideas_dir"`   // root directory for idea specs
	// TemplatesDir holds the per-stage agent instruction templates
	TemplatesDir string `mapstructure:"templates_dir"`
}

// DatabaseConfig configures the SQLite run index
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig configures pipeline sequencing behavior
type PipelineConfig struct {
	// How often the completion detector polls for marker files
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// Grace period between SIGTERM and SIGKILL when terminating a stage
	KillGraceSeconds int `mapstructure:"kill_grace_seconds"`
	// Maximum attempts per stage; 1 means no automatic retry
	MaxStageAttempts int `mapstructure:"max_stage_attempts"`
	// Pause for human approval after the resource-gathering stage
	PauseAfterResources bool `mapstructure:"pause_after_resources"`
	// Run the paper-writing stage after experiments succeed
	WritePaper bool `mapstructure:"write_paper"`
}

// AgentConfig configures external CLI agent invocation
type AgentConfig struct {
	Provider                string `mapstructure:"provider"`                  // claude, codex, or gemini
	FullPermissions         bool   `mapstructure:"full_permissions"`          // pass provider permission-bypass flags
	ResourceTimeoutSeconds  int    `mapstructure:"resource_timeout_seconds"`  // resource-gathering stage budget
	ExperimentTimeoutSeconds int   `mapstructure:"experiment_timeout_seconds"` // experiment-execution stage budget
	PaperTimeoutSeconds     int    `mapstructure:"paper_timeout_seconds"`     // paper-writing stage budget
	// Warn before launching a stage when available memory drops below this
	// many megabytes; 0 disables the check
	MinAvailableMemoryMB int `mapstructure:"min_available_memory_mb"`
}

// GitHubConfig configures result publishing
type GitHubConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Org     string `mapstructure:"org"`
	// Maximum gh CLI invocations per minute; keeps bulk publishing polite
	MaxCallsPerMinute int `mapstructure:"max_calls_per_minute"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON    bool `mapstructure:"json"`
	Verbose bool `mapstructure:"verbose"`
}
