package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"baton/internal/store"
)

// JobSpec describes one job to insert, before expansion. An empty harness
// leaves backend selection to the expansion policy.
type JobSpec struct {
	Type    store.JobType
	Harness store.Harness
	Context string
	Prompt  string
}

// ExpansionPolicy maps a job type to the harnesses a spec without an
// explicit harness fans out to.
type ExpansionPolicy map[store.JobType][]store.Harness

// Expand applies the policy to a batch of specs. A spec that names a
// harness passes through unchanged, as does a spec whose type has no
// configured fan-out. Expanded specs inherit context and prompt from their
// source and land in source order, one per configured harness.
func (p ExpansionPolicy) Expand(specs []JobSpec) []JobSpec {
	out := make([]JobSpec, 0, len(specs))
	for _, s := range specs {
		targets := p[s.Type]
		if s.Harness != "" || len(targets) == 0 {
			out = append(out, s)
			continue
		}
		for _, h := range targets {
			c := s
			c.Harness = h
			out = append(out, c)
		}
	}
	return out
}

// DefaultExpansionPolicy fans review out to every harness, so one review
// spec becomes three independent reviews. Other types pass through.
func DefaultExpansionPolicy() ExpansionPolicy {
	return ExpansionPolicy{
		store.JobTypeReview: {store.HarnessClaude, store.HarnessCodex, store.HarnessGemini},
	}
}

// LoadExpansionPolicy reads a YAML file of the form
//
//	expansions:
//	  review: [claude, codex, gemini]
//	  uat: [claude]
//
// Unknown job types or harnesses are rejected so a typo cannot silently
// disable fan-out.
func LoadExpansionPolicy(path string) (ExpansionPolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read expansion policy: %w", err)
	}
	var doc struct {
		Expansions map[string][]string `yaml:"expansions"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse expansion policy: %w", err)
	}

	policy := make(ExpansionPolicy, len(doc.Expansions))
	for rawType, rawHarnesses := range doc.Expansions {
		jt := store.JobType(rawType)
		if !jt.Valid() {
			return nil, fmt.Errorf("expansion policy: unknown job type %q", rawType)
		}
		if len(rawHarnesses) == 0 {
			return nil, fmt.Errorf("expansion policy: job type %q has no harnesses", rawType)
		}
		harnesses := make([]store.Harness, 0, len(rawHarnesses))
		for _, rawH := range rawHarnesses {
			h := store.Harness(rawH)
			if !h.Valid() {
				return nil, fmt.Errorf("expansion policy: unknown harness %q for job type %q", rawH, rawType)
			}
			harnesses = append(harnesses, h)
		}
		policy[jt] = harnesses
	}
	return policy, nil
}
