// Package idea manages research idea specifications: validation, unique
// ID generation, and the submitted → in_progress → completed lifecycle.
package idea

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Status is an idea's position in its lifecycle
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// IsValidStatus reports whether s names a lifecycle status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusSubmitted, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// Domains an idea may declare
var validDomains = map[string]bool{
	"machine_learning":       true,
	"data_science":           true,
	"systems":                true,
	"theory":                 true,
	"scientific_computing":   true,
	"nlp":                    true,
	"computer_vision":        true,
	"reinforcement_learning": true,
}

// Compute constraints an idea may declare
var validCompute = map[string]bool{
	"cpu_only":     true,
	"gpu_required": true,
	"multi_gpu":    true,
	"tpu":          true,
	"any":          true,
}

// Spec is the top-level YAML document for one research idea
type Spec struct {
	Idea Idea `yaml:"idea"`
}

// Idea is a research idea specification
type Idea struct {
	Title              string           `yaml:"title"`
	Domain             string           `yaml:"domain"`
	Hypothesis         string           `yaml:"hypothesis"`
	Description        string           `yaml:"description,omitempty"`
	ExpectedOutputs    []ExpectedOutput `yaml:"expected_outputs"`
	Background         *Background      `yaml:"background,omitempty"`
	Constraints        *Constraints     `yaml:"constraints,omitempty"`
	EvaluationCriteria []Criterion      `yaml:"evaluation_criteria,omitempty"`
	Metadata           *Metadata        `yaml:"metadata,omitempty"`
}

// ExpectedOutput declares one artifact the experiment must produce
type ExpectedOutput struct {
	Type        string `yaml:"type"`
	Format      string `yaml:"format"`
	Description string `yaml:"description,omitempty"`
}

// Background carries prior-work pointers the submitter already knows about
type Background struct {
	Context     string    `yaml:"context,omitempty"`
	Papers      []Paper   `yaml:"papers,omitempty"`
	Datasets    []Dataset `yaml:"datasets,omitempty"`
	RelatedWork string    `yaml:"related_work,omitempty"`
}

// Paper is a literature reference in an idea's background
type Paper struct {
	Title string `yaml:"title"`
	URL   string `yaml:"url,omitempty"`
}

// Dataset is a data reference in an idea's background
type Dataset struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source,omitempty"`
}

// Constraints bound how the experiment may run
type Constraints struct {
	Compute      string   `yaml:"compute,omitempty"`
	TimeLimit    int      `yaml:"time_limit,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
}

// Criterion is one success measure for the experiment
type Criterion struct {
	Metric string `yaml:"metric"`
	Target string `yaml:"target,omitempty"`
}

// Metadata is attached by the manager on submission
type Metadata struct {
	IdeaID    string `yaml:"idea_id"`
	Status    Status `yaml:"status"`
	CreatedAt string `yaml:"created_at"`
	UpdatedAt string `yaml:"updated_at,omitempty"`
}

// ValidationResult collects problems found in a spec. Errors block
// submission; warnings do not.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether the spec may be submitted
func (v *ValidationResult) Valid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) errorf(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *ValidationResult) warnf(format string, args ...interface{}) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks a spec against the schema rules
func Validate(spec *Spec) *ValidationResult {
	result := &ValidationResult{}
	id := spec.Idea

	if id.Title == "" {
		result.errorf("missing required field: title")
	}
	if id.Domain == "" {
		result.errorf("missing required field: domain")
	} else if !validDomains[id.Domain] {
		result.errorf("invalid domain %q", id.Domain)
	}
	if id.Hypothesis == "" {
		result.errorf("missing required field: hypothesis")
	} else if len(id.Hypothesis) < 20 {
		result.warnf("hypothesis is very short (< 20 characters)")
	}

	if len(id.ExpectedOutputs) == 0 {
		result.errorf("at least one expected output is required")
	}
	for i, out := range id.ExpectedOutputs {
		if out.Type == "" {
			result.errorf("output %d: missing type", i)
		}
		if out.Format == "" {
			result.errorf("output %d: missing format", i)
		}
	}

	if c := id.Constraints; c != nil {
		if c.Compute != "" && !validCompute[c.Compute] {
			result.errorf("invalid compute constraint %q", c.Compute)
		}
		if c.TimeLimit != 0 {
			if c.TimeLimit < 60 {
				result.warnf("time_limit is very short (< 60 seconds)")
			} else if c.TimeLimit > 86400 {
				result.warnf("time_limit is very long (> 24 hours)")
			}
		}
	}

	if id.EvaluationCriteria != nil && len(id.EvaluationCriteria) == 0 {
		result.warnf("no evaluation criteria specified")
	}

	return result
}

// GenerateID builds a unique, human-scannable idea ID from the title:
// a slug, a timestamp, and a short title hash.
func GenerateID(title string, now time.Time) string {
	if title == "" {
		title = "untitled"
	}

	sum := sha256.Sum256([]byte(title))
	hash := hex.EncodeToString(sum[:])[:8]

	return slugify(title) + "_" + now.Format("20060102_150405") + "_" + hash
}

// slugify lowercases the title and collapses runs of non-alphanumerics
// into single underscores, capped at 30 characters.
func slugify(title string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(title) {
		if b.Len() >= 30 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
