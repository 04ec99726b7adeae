package agent

import (
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/kballard/go-shellquote"

	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/logger"
)

// Provider describes one supported agent CLI: how to invoke it headless,
// how to lift its permission sandbox, and how to ask for a machine-readable
// transcript.
type Provider struct {
	Name           string
	Binary         string
	BaseArgs       []string
	PermissionArgs []string
	TranscriptArgs []string
	// ExtraEnv is appended to the child environment, KEY=VALUE form
	ExtraEnv []string
	// MinVersion is a semver constraint checked by Preflight, empty to skip
	MinVersion string
}

var providers = map[string]Provider{
	"claude": {
		Name:           "claude",
		Binary:         "claude",
		BaseArgs:       []string{"-p"},
		PermissionArgs: []string{"--dangerously-skip-permissions"},
		TranscriptArgs: []string{"--verbose", "--output-format", "stream-json"},
		MinVersion:     ">= 1.0.0",
	},
	"codex": {
		Name:           "codex",
		Binary:         "codex",
		BaseArgs:       []string{"exec"},
		PermissionArgs: []string{"--dangerously-bypass-approvals-and-sandbox"},
		TranscriptArgs: []string{"--json"},
	},
	"gemini": {
		Name:           "gemini",
		Binary:         "gemini",
		PermissionArgs: []string{"--yolo"},
		TranscriptArgs: []string{"--output-format", "stream-json"},
		ExtraEnv:       []string{"GEMINI_CLI_IDE_DISABLE=1"},
	},
}

// LookupProvider returns the registered provider for a name
func LookupProvider(name string) (Provider, error) {
	p, ok := providers[name]
	if !ok {
		err := errors.Newf("unknown agent provider %q", name)
		return Provider{}, errors.WithHintf(err, "supported providers: %s", strings.Join(ProviderNames(), ", "))
	}
	return p, nil
}

// ProviderNames returns the supported provider names, sorted
func ProviderNames() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandLine builds the full shell-quoted invocation for this provider.
// The prompt itself travels over stdin, never argv, so its size is
// unbounded and it never leaks into process listings.
func (p Provider) CommandLine(fullPermissions, transcript bool) string {
	args := []string{p.Binary}
	args = append(args, p.BaseArgs...)
	if fullPermissions {
		args = append(args, p.PermissionArgs...)
	}
	if transcript {
		args = append(args, p.TranscriptArgs...)
	}
	return shellquote.Join(args...)
}

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

// Preflight verifies the provider binary is installed and, when the
// version output is parseable, that it satisfies MinVersion. An
// unparseable version is logged and tolerated; a missing binary is not.
func (p Provider) Preflight() error {
	out, err := exec.Command(p.Binary, "--version").CombinedOutput()
	if err != nil {
		err = errors.Wrapf(err, "agent binary %q is not runnable", p.Binary)
		return errors.WithHintf(err, "install the %s CLI and ensure it is on PATH", p.Name)
	}
	if p.MinVersion == "" {
		return nil
	}

	raw := versionPattern.FindString(string(out))
	if raw == "" {
		logger.Debugw("could not parse agent version output",
			logger.FieldProvider, p.Name, "output", strings.TrimSpace(string(out)))
		return nil
	}

	ver, err := semver.NewVersion(raw)
	if err != nil {
		logger.Debugw("unparseable agent version",
			logger.FieldProvider, p.Name, "version", raw)
		return nil
	}
	constraint, err := semver.NewConstraint(p.MinVersion)
	if err != nil {
		return errors.Wrapf(err, "invalid version constraint %q for provider %s", p.MinVersion, p.Name)
	}
	if !constraint.Check(ver) {
		err := errors.Newf("%s version %s does not satisfy %s", p.Name, ver, p.MinVersion)
		return errors.WithHintf(err, "upgrade the %s CLI", p.Name)
	}
	return nil
}
