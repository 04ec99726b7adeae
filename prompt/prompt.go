// Package prompt composes the instruction blobs piped to agent stdin:
// a research-context header built from the idea specification, followed
// by the per-stage instruction template.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/idea"
	"github.com/ChicagoHAI/idea-explorer/logger"
)

const rule = "═══════════════════════════════════════════════════════════════════════════════"

// Generator builds stage prompts from a template directory
type Generator struct {
	templateDir string
}

// NewGenerator creates a generator rooted at the template directory
func NewGenerator(templateDir string) *Generator {
	return &Generator{templateDir: templateDir}
}

// LoadTemplate reads a template file relative to the template directory
func (g *Generator) LoadTemplate(rel string) (string, error) {
	path := filepath.Join(g.templateDir, rel)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", errors.Wrapf(errors.ErrNotFound, "no template at %s", path)
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to read template")
	}
	return string(data), nil
}

// StagePrompt composes the full prompt for one stage: the research
// context header from the idea, then agents/<stage>.txt.
func (g *Generator) StagePrompt(stage string, spec *idea.Spec) (string, error) {
	template, err := g.LoadTemplate(filepath.Join("agents", stage+".txt"))
	if err != nil {
		return "", errors.Wrapf(err, "no instruction template for stage %s", stage)
	}
	return ResearchContext(spec) + "\n" + template, nil
}

// ResearchContext renders the idea specification as the header every
// stage prompt opens with.
func ResearchContext(spec *idea.Spec) string {
	id := spec.Idea
	var b strings.Builder

	b.WriteString("\n" + rule + "\n")
	b.WriteString("                         RESEARCH TOPIC SPECIFICATION\n")
	b.WriteString(rule + "\n\n")

	title := id.Title
	if title == "" {
		title = "Untitled Research"
	}
	fmt.Fprintf(&b, "RESEARCH TITLE:\n%s\n\n", title)
	fmt.Fprintf(&b, "RESEARCH HYPOTHESIS:\n%s\n\n", id.Hypothesis)

	domain := id.Domain
	if domain == "" {
		domain = "general"
	}
	fmt.Fprintf(&b, "RESEARCH DOMAIN:\n%s\n", domain)

	if bg := id.Background; bg != nil {
		b.WriteString("\nBACKGROUND INFORMATION:\n")
		if bg.Context != "" {
			fmt.Fprintf(&b, "\nContext:\n%s\n", bg.Context)
		}
		if len(bg.Papers) > 0 {
			b.WriteString("\nRelevant papers mentioned:\n")
			for _, p := range bg.Papers {
				if p.URL != "" {
					fmt.Fprintf(&b, "- %s (%s)\n", p.Title, p.URL)
				} else {
					fmt.Fprintf(&b, "- %s\n", p.Title)
				}
			}
		}
		if len(bg.Datasets) > 0 {
			b.WriteString("\nRelevant datasets mentioned:\n")
			for _, d := range bg.Datasets {
				if d.Source != "" {
					fmt.Fprintf(&b, "- %s (from: %s)\n", d.Name, d.Source)
				} else {
					fmt.Fprintf(&b, "- %s\n", d.Name)
				}
			}
		}
		if bg.RelatedWork != "" {
			fmt.Fprintf(&b, "\nRelated work:\n%s\n", bg.RelatedWork)
		}
	}

	if c := id.Constraints; c != nil {
		b.WriteString("\nCONSTRAINTS AND REQUIREMENTS:\n")
		if c.Compute != "" {
			fmt.Fprintf(&b, "Compute: %s\n", c.Compute)
		}
		if c.TimeLimit > 0 {
			fmt.Fprintf(&b, "Time limit: %d seconds\n", c.TimeLimit)
		}
		if len(c.Dependencies) > 0 {
			fmt.Fprintf(&b, "Dependencies: %s\n", strings.Join(c.Dependencies, ", "))
		}
	}

	if len(id.ExpectedOutputs) > 0 {
		b.WriteString("\nEXPECTED OUTPUTS:\n")
		for _, out := range id.ExpectedOutputs {
			fmt.Fprintf(&b, "- %s (%s)", out.Type, out.Format)
			if out.Description != "" {
				fmt.Fprintf(&b, ": %s", out.Description)
			}
			b.WriteByte('\n')
		}
	}

	b.WriteString("\n" + rule + "\n")
	return b.String()
}

// SavePrompt writes a composed prompt beside the stage logs so operators
// can see exactly what the agent was told.
func SavePrompt(workDir, stage, content string) (string, error) {
	logsDir := filepath.Join(workDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create logs directory")
	}
	path := filepath.Join(logsDir, stage+"_prompt.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrap(err, "failed to save prompt")
	}
	logger.Debugw("stage prompt saved",
		logger.FieldStage, stage,
		logger.FieldFile, path,
		"chars", len(content))
	return path, nil
}
