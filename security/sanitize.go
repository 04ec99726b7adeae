// Package security protects credentials from leaking into agent processes
// and their log streams.
//
// Two layers:
//  1. SafeEnv strips credential environment variables before a child
//     process is spawned.
//  2. Sanitize redacts API-key patterns from text, applied line-by-line to
//     the streamed agent output before it reaches any log sink.
package security

import (
	"regexp"
	"strings"
)

// sensitiveEnvVars are environment variables that are never passed to
// spawned agent processes. Agents echo their environment into logs often
// enough that filtering at the boundary is the only reliable defense.
var sensitiveEnvVars = map[string]struct{}{
	// OpenAI
	"OPENAI_API_KEY": {},
	"OPENAI_ORG_ID":  {},
	// Anthropic
	"ANTHROPIC_API_KEY": {},
	"CLAUDE_API_KEY":    {},
	// Google/Gemini
	"GOOGLE_API_KEY":                 {},
	"GEMINI_API_KEY":                 {},
	"GOOGLE_APPLICATION_CREDENTIALS": {},
	// GitHub
	"GITHUB_TOKEN": {},
	"GH_TOKEN":     {},
	"GITHUB_PAT":   {},
	// OpenRouter
	"OPENROUTER_KEY":     {},
	"OPENROUTER_API_KEY": {},
	// AWS
	"AWS_ACCESS_KEY_ID":     {},
	"AWS_SECRET_ACCESS_KEY": {},
	"AWS_SESSION_TOKEN":     {},
	// Azure
	"AZURE_API_KEY":        {},
	"AZURE_OPENAI_API_KEY": {},
	// Other common API keys
	"HUGGINGFACE_TOKEN":   {},
	"HF_TOKEN":            {},
	"WANDB_API_KEY":       {},
	"COMET_API_KEY":       {},
	"REPLICATE_API_TOKEN": {},
}

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// Patterns are ordered from most to least specific so that e.g. project
// keys are not half-matched by the generic sk- pattern.
var redactions = []redaction{
	// OpenAI keys (various formats)
	{regexp.MustCompile(`sk-proj-[A-Za-z0-9_-]{20,}`), "[REDACTED_OPENAI_PROJECT_KEY]"},
	{regexp.MustCompile(`sk-or-v1-[A-Za-z0-9_-]{20,}`), "[REDACTED_OPENROUTER_KEY]"},
	{regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`), "[REDACTED_ANTHROPIC_KEY]"},
	{regexp.MustCompile(`sk-or-[A-Za-z0-9_-]{20,}`), "[REDACTED_OPENAI_ORG_KEY]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9]{48,}`), "[REDACTED_OPENAI_KEY]"},

	// GitHub tokens
	{regexp.MustCompile(`ghp_[A-Za-z0-9]{36,}`), "[REDACTED_GITHUB_PAT]"},
	{regexp.MustCompile(`gho_[A-Za-z0-9]{36,}`), "[REDACTED_GITHUB_OAUTH]"},
	{regexp.MustCompile(`ghs_[A-Za-z0-9]{36,}`), "[REDACTED_GITHUB_APP]"},
	{regexp.MustCompile(`ghr_[A-Za-z0-9]{36,}`), "[REDACTED_GITHUB_REFRESH]"},
	{regexp.MustCompile(`github_pat_[A-Za-z0-9_]{20,}`), "[REDACTED_GITHUB_FINE_GRAINED]"},

	// Google/Gemini API keys
	{regexp.MustCompile(`AIza[A-Za-z0-9_-]{35,}`), "[REDACTED_GOOGLE_KEY]"},

	// AWS keys
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "[REDACTED_AWS_ACCESS_KEY]"},

	// Env var assignments (catches echoed environments)
	{regexp.MustCompile(`(OPENAI_API_KEY|ANTHROPIC_API_KEY|GITHUB_TOKEN|GEMINI_API_KEY|GOOGLE_API_KEY|OPENROUTER_KEY)=[^\s"']+`), "$1=[REDACTED]"},
}

// Sanitize redacts API keys and credential assignments from text.
func Sanitize(text string) string {
	result := text
	for _, r := range redactions {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}

// SafeEnv filters credential variables out of an environment in the
// "KEY=value" form produced by os.Environ().
func SafeEnv(env []string) []string {
	safe := make([]string, 0, len(env))
	for _, kv := range env {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, sensitive := sensitiveEnvVars[strings.ToUpper(key)]; sensitive {
			continue
		}
		safe = append(safe, kv)
	}
	return safe
}
