package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_THINKING_BUDGET", "")
	t.Setenv("GEMINI_TEMPERATURE", "")
	t.Setenv("MAX_UPLOAD_MB", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("GEMINI_DEFAULT_MODEL", "")
	t.Setenv("GEMINI_MEDIA_MODEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %q", cfg.Server.Addr)
	}
	if cfg.Gemini.ThinkingBudget != 100 || cfg.Gemini.ThinkingBudgetString() != "100" {
		t.Fatalf("unexpected thinking budget: %d", cfg.Gemini.ThinkingBudget)
	}
	if cfg.Gemini.Temperature != 0.7 {
		t.Fatalf("unexpected temperature: %v", cfg.Gemini.Temperature)
	}
	if cfg.Gemini.DefaultModel != "gemini-2.5-flash" || cfg.Gemini.MediaModel != "gemini-3-pro-preview" {
		t.Fatalf("media sources should route to a distinct model: default=%q media=%q",
			cfg.Gemini.DefaultModel, cfg.Gemini.MediaModel)
	}
	if cfg.Capture.MaxUploadBytes() != 25*1024*1024 {
		t.Fatalf("unexpected upload limit: %d", cfg.Capture.MaxUploadBytes())
	}
}

func TestLoadRequiresGeminiKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without GEMINI_API_KEY")
	}
}

func TestValidateRejectsTemperatureOutOfRange(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_TEMPERATURE", "2.5")
	if _, err := Load(); err == nil {
		t.Fatalf("expected temperature validation error")
	}
}

func TestNegativeThinkingBudgetDisables(t *testing.T) {
	cfg := GeminiConfig{ThinkingBudget: -1}
	if got := cfg.ThinkingBudgetString(); got != "" {
		t.Fatalf("expected empty budget string, got %q", got)
	}
}
