package idea

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() *Spec {
	return &Spec{Idea: Idea{
		Title:      "Gradient Noise and Generalization",
		Domain:     "machine_learning",
		Hypothesis: "Injected gradient noise improves generalization on small datasets",
		ExpectedOutputs: []ExpectedOutput{
			{Type: "metrics", Format: "json"},
			{Type: "plot", Format: "png"},
		},
	}}
}

func TestValidateAcceptsGoodSpec(t *testing.T) {
	result := Validate(validSpec())
	assert.True(t, result.Valid())
	assert.Empty(t, result.Errors)
}

func TestValidateRequiredFields(t *testing.T) {
	spec := &Spec{}
	result := Validate(spec)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors, "missing required field: title")
	assert.Contains(t, result.Errors, "missing required field: domain")
	assert.Contains(t, result.Errors, "missing required field: hypothesis")
	assert.Contains(t, result.Errors, "at least one expected output is required")
}

func TestValidateDomain(t *testing.T) {
	spec := validSpec()
	spec.Idea.Domain = "astrology"
	result := Validate(spec)
	assert.False(t, result.Valid())
	assert.Contains(t, result.Errors[0], "invalid domain")
}

func TestValidateOutputs(t *testing.T) {
	spec := validSpec()
	spec.Idea.ExpectedOutputs = []ExpectedOutput{{Type: "metrics"}}
	result := Validate(spec)
	assert.False(t, result.Valid())
	assert.Contains(t, result.Errors[0], "missing format")
}

func TestValidateConstraints(t *testing.T) {
	spec := validSpec()
	spec.Idea.Constraints = &Constraints{Compute: "quantum"}
	result := Validate(spec)
	assert.False(t, result.Valid())

	spec.Idea.Constraints = &Constraints{Compute: "gpu_required", TimeLimit: 30}
	result = Validate(spec)
	assert.True(t, result.Valid())
	assert.NotEmpty(t, result.Warnings, "too-short time limit warns")
}

func TestValidateWarnings(t *testing.T) {
	spec := validSpec()
	spec.Idea.Hypothesis = "short"
	result := Validate(spec)
	assert.True(t, result.Valid(), "warnings do not block submission")
	assert.NotEmpty(t, result.Warnings)
}

func TestGenerateID(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	id := GenerateID("Gradient Noise & Generalization!", now)
	assert.Contains(t, id, "gradient_noise_generalization")
	assert.Contains(t, id, "20260314_092653")

	again := GenerateID("Gradient Noise & Generalization!", now)
	assert.Equal(t, id, again, "same title and time yield the same ID")

	other := GenerateID("A Different Title", now)
	assert.NotEqual(t, id, other)
}

func TestGenerateIDEdgeCases(t *testing.T) {
	now := time.Now()
	assert.Contains(t, GenerateID("", now), "untitled")

	long := GenerateID("a very long title that keeps going well past the slug limit", now)
	parts := len(long)
	assert.Less(t, parts, 60, "slug is capped")
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello_world", slugify("Hello, World!"))
	assert.Equal(t, "a_b_c", slugify("a  b---c"))
	assert.Equal(t, "untitled", slugify("untitled"))
}
