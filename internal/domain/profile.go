package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ProcessDistribution holds the share of each SFL process type. The four values sum to 100.
type ProcessDistribution struct {
	Material   int `json:"material"`
	Mental     int `json:"mental"`
	Relational int `json:"relational"`
	Verbal     int `json:"verbal"`
}

func (d ProcessDistribution) Sum() int {
	return d.Material + d.Mental + d.Relational + d.Verbal
}

// StyleProfile is the linguistic fingerprint derived from a persona's sources.
type StyleProfile struct {
	PersonaStyle         string              `json:"personaStyle"`
	Tone                 string              `json:"tone"`
	ExplanationTendency  string              `json:"explanationTendency"`
	DialoguePattern      string              `json:"dialoguePattern"`
	ConfidenceLevel      string              `json:"confidenceLevel"`
	HedgingFrequency     string              `json:"hedgingFrequency"`
	StatementStrength    string              `json:"statementStrength"`
	InformationPackaging string              `json:"informationPackaging"`
	TopicDevelopment     string              `json:"topicDevelopment"`
	ReferenceStyle       string              `json:"referenceStyle"`
	ProcessDistribution  ProcessDistribution `json:"processDistribution"`
	TechnicalityLevel    int                 `json:"technicalityLevel"`
	Topics               []string            `json:"topics"`
	AnalysisExplanation  string              `json:"analysisExplanation,omitempty"`
}

// SpeakingStyleSummary is the human-readable style seeded into the persona after analysis.
func (p *StyleProfile) SpeakingStyleSummary() string {
	return fmt.Sprintf("%s, %s", p.Tone, p.PersonaStyle)
}

func (p *StyleProfile) Clone() *StyleProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Topics = append([]string(nil), p.Topics...)
	return &cp
}

// RawStyleProfile mirrors the model's JSON output before validation; numbers may be fractional.
type RawStyleProfile struct {
	PersonaStyle         string                 `json:"personaStyle"`
	Tone                 string                 `json:"tone"`
	ExplanationTendency  string                 `json:"explanationTendency"`
	DialoguePattern      string                 `json:"dialoguePattern"`
	ConfidenceLevel      string                 `json:"confidenceLevel"`
	HedgingFrequency     string                 `json:"hedgingFrequency"`
	StatementStrength    string                 `json:"statementStrength"`
	InformationPackaging string                 `json:"informationPackaging"`
	TopicDevelopment     string                 `json:"topicDevelopment"`
	ReferenceStyle       string                 `json:"referenceStyle"`
	ProcessDistribution  *RawProcessDistribution `json:"processDistribution"`
	TechnicalityLevel    *float64               `json:"technicalityLevel"`
	Topics               []string               `json:"topics"`
	AnalysisExplanation  string                 `json:"analysisExplanation"`
}

type RawProcessDistribution struct {
	Material   *float64 `json:"material"`
	Mental     *float64 `json:"mental"`
	Relational *float64 `json:"relational"`
	Verbal     *float64 `json:"verbal"`
}

// distributionTolerance absorbs rounding in model output before normalisation.
const distributionTolerance = 0.5

// Validate checks every field of the raw profile and returns the normalised StyleProfile.
func (r *RawStyleProfile) Validate(maxTopics int) (*StyleProfile, error) {
	required := []struct {
		name  string
		value string
	}{
		{"personaStyle", r.PersonaStyle},
		{"tone", r.Tone},
		{"explanationTendency", r.ExplanationTendency},
		{"dialoguePattern", r.DialoguePattern},
		{"confidenceLevel", r.ConfidenceLevel},
		{"hedgingFrequency", r.HedgingFrequency},
		{"statementStrength", r.StatementStrength},
		{"informationPackaging", r.InformationPackaging},
		{"topicDevelopment", r.TopicDevelopment},
		{"referenceStyle", r.ReferenceStyle},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return nil, fmt.Errorf("field %s is missing or empty", f.name)
		}
	}

	dist, err := r.ProcessDistribution.normalize()
	if err != nil {
		return nil, err
	}

	if r.TechnicalityLevel == nil {
		return nil, fmt.Errorf("field technicalityLevel is missing")
	}
	level := *r.TechnicalityLevel
	if level != math.Trunc(level) || level < 1 || level > 10 {
		return nil, fmt.Errorf("technicalityLevel must be an integer in [1,10], got %v", level)
	}

	if r.Topics == nil {
		return nil, fmt.Errorf("field topics is missing")
	}

	return &StyleProfile{
		PersonaStyle:         strings.TrimSpace(r.PersonaStyle),
		Tone:                 strings.TrimSpace(r.Tone),
		ExplanationTendency:  strings.TrimSpace(r.ExplanationTendency),
		DialoguePattern:      strings.TrimSpace(r.DialoguePattern),
		ConfidenceLevel:      strings.TrimSpace(r.ConfidenceLevel),
		HedgingFrequency:     strings.TrimSpace(r.HedgingFrequency),
		StatementStrength:    strings.TrimSpace(r.StatementStrength),
		InformationPackaging: strings.TrimSpace(r.InformationPackaging),
		TopicDevelopment:     strings.TrimSpace(r.TopicDevelopment),
		ReferenceStyle:       strings.TrimSpace(r.ReferenceStyle),
		ProcessDistribution:  dist,
		TechnicalityLevel:    int(level),
		Topics:               UniqueTopics(r.Topics, maxTopics),
		AnalysisExplanation:  strings.TrimSpace(r.AnalysisExplanation),
	}, nil
}

func (d *RawProcessDistribution) normalize() (ProcessDistribution, error) {
	if d == nil {
		return ProcessDistribution{}, fmt.Errorf("field processDistribution is missing")
	}
	fields := []struct {
		name  string
		value *float64
	}{
		{"material", d.Material},
		{"mental", d.Mental},
		{"relational", d.Relational},
		{"verbal", d.Verbal},
	}

	values := make([]float64, len(fields))
	sum := 0.0
	for i, f := range fields {
		if f.value == nil {
			return ProcessDistribution{}, fmt.Errorf("processDistribution.%s is missing", f.name)
		}
		v := *f.value
		if math.IsNaN(v) || v < 0 || v > 100 {
			return ProcessDistribution{}, fmt.Errorf("processDistribution.%s must be in [0,100], got %v", f.name, v)
		}
		values[i] = v
		sum += v
	}
	if math.Abs(sum-100) > distributionTolerance {
		return ProcessDistribution{}, fmt.Errorf("processDistribution must sum to 100, got %v", sum)
	}

	ints := largestRemainder(values, sum, 100)
	return ProcessDistribution{
		Material:   ints[0],
		Mental:     ints[1],
		Relational: ints[2],
		Verbal:     ints[3],
	}, nil
}

// largestRemainder scales values to integers summing exactly to total.
func largestRemainder(values []float64, sum float64, total int) []int {
	out := make([]int, len(values))
	type rem struct {
		idx  int
		frac float64
	}
	rems := make([]rem, len(values))
	assigned := 0
	for i, v := range values {
		scaled := v * float64(total) / sum
		floor := math.Floor(scaled)
		out[i] = int(floor)
		assigned += out[i]
		rems[i] = rem{idx: i, frac: scaled - floor}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for i := 0; assigned < total; i++ {
		out[rems[i%len(rems)].idx]++
		assigned++
	}
	return out
}

// UniqueTopics trims, drops blanks and duplicates (case-insensitive) preserving order, capped at max.
func UniqueTopics(topics []string, max int) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// ShowContextResult is the episode-level analysis output.
type ShowContextResult struct {
	Title  string   `json:"title"`
	Intro  string   `json:"intro"`
	Topics []string `json:"topics"`
}

func (r *ShowContextResult) Validate(maxTopics int) (*ShowContextResult, error) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return nil, fmt.Errorf("field title is missing or empty")
	}
	if r.Topics == nil {
		return nil, fmt.Errorf("field topics is missing")
	}
	topics := UniqueTopics(r.Topics, maxTopics)
	if len(topics) == 0 {
		return nil, fmt.Errorf("topics must contain at least one non-empty string")
	}
	return &ShowContextResult{
		Title:  title,
		Intro:  strings.TrimSpace(r.Intro),
		Topics: topics,
	}, nil
}
