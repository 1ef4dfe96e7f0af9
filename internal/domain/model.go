package domain

import (
	"strconv"
	"strings"
)

// ModelInfo describes a selectable generation model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	HasThinking bool   `json:"hasThinking"`
	Description string `json:"description"`
}

var AvailableModels = []ModelInfo{
	{
		ID:          "gemini-2.5-flash",
		Name:        "Gemini 2.5 Flash",
		HasThinking: true,
		Description: "A fast and versatile model, adept at a wide range of tasks from analysis to creative generation.",
	},
	{
		ID:          "gemini-3-pro-preview",
		Name:        "Gemini 3 Pro (Preview)",
		HasThinking: true,
		Description: "Excellent for complex reasoning and nuanced persona emulation.",
	},
}

func LookupModel(id string) (ModelInfo, bool) {
	for _, m := range AvailableModels {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ModelSettings are the per-session, interactively supplied generation settings.
// ThinkingBudget is kept as entered; a blank or non-numeric value disables it.
type ModelSettings struct {
	Model          string  `json:"model"`
	ThinkingBudget string  `json:"thinkingBudget"`
	Temperature    float32 `json:"temperature"`
	SearchAPIKey   string  `json:"searchApiKey,omitempty"`
	SearchEngineID string  `json:"searchEngineId,omitempty"`
}

// SupportsThinking reports whether the model accepts a thinking budget. Unlisted
// models are judged by family.
func SupportsThinking(model string) bool {
	if info, ok := LookupModel(model); ok {
		return info.HasThinking
	}
	return strings.HasPrefix(model, "gemini-2.5") || strings.HasPrefix(model, "gemini-3")
}

// EffectiveThinkingBudget returns the budget to send, or nil when the model lacks
// thinking support or the entered value is not a non-negative integer.
func (m ModelSettings) EffectiveThinkingBudget() *int32 {
	if !SupportsThinking(m.Model) {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(m.ThinkingBudget), 10, 32)
	if err != nil || n < 0 {
		return nil
	}
	budget := int32(n)
	return &budget
}
