package constants

import "time"

var Temperatures = struct {
	PersonaAnalysis float32
	ShowContext     float32
	Session         float32
}{
	PersonaAnalysis: 0.2, // analysis stays strict
	ShowContext:     0.2, // same rubric-style extraction
	Session:         0.7, // seeds new sessions; user adjustable
}

var TemperatureRange = struct {
	Min float32
	Max float32
}{
	Min: 0.0,
	Max: 2.0,
}

var Models = struct {
	Default        string
	Media          string
	DefaultOpenAI  string
	ThinkingBudget int
}{
	Default:        "gemini-2.5-flash",
	Media:          "gemini-3-pro-preview",
	DefaultOpenAI:  "gpt-4.1-mini",
	ThinkingBudget: 100,
}

var AIInputLimits = struct {
	MaxAnalysisChars  int
	MaxInstructionLen int
	MaxTopics         int
	MaxSeededTopics   int
}{
	MaxAnalysisChars:  850000, // keeps inline text under the model token limit
	MaxInstructionLen: 2000,
	MaxTopics:         5,
	MaxSeededTopics:   5,
}

var CaptureLimits = struct {
	MaxFileBytes      int64
	MaxFilesPerUpload int
	MaxConcurrency    int
	LinkTimeout       time.Duration
	MaxLinkBytes      int64
}{
	MaxFileBytes:      25 * 1024 * 1024,
	MaxFilesPerUpload: 16,
	MaxConcurrency:    8,
	LinkTimeout:       10 * time.Second,
	MaxLinkBytes:      2 * 1024 * 1024,
}

var RetryConfig = struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Jitter:      250 * time.Millisecond,
}

var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	RateLimitTimeout    time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}{
	FailureThreshold:    3,                // 3 consecutive service failures open the circuit
	ResetTimeout:        30 * time.Second, // default wait before HALF_OPEN
	RateLimitTimeout:    5 * time.Minute,  // 429 gets a longer cool-down
	HealthCheckInterval: 2 * time.Minute,
	HealthCheckTimeout:  10 * time.Second,
}

var CacheTTL = struct {
	SearchResults time.Duration
}{
	SearchResults: 30 * time.Minute,
}

var RedisConfig = struct {
	ReadyTimeout time.Duration
}{
	ReadyTimeout: 5 * time.Second,
}

var SessionDefaults = struct {
	ShowTitle      string
	FallbackTopic  string
	PersonaPrefix  string
	ExportFallback string
	ExportSuffix   string
}{
	ShowTitle:      "Untitled Episode",
	FallbackTopic:  "Main Topic",
	PersonaPrefix:  "Speaker",
	ExportFallback: "podcast",
	ExportSuffix:   "_script.json",
}

var WebSocketConfig = struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendBuffer   int
}{
	WriteTimeout: 10 * time.Second,
	PingInterval: 30 * time.Second,
	SendBuffer:   16,
}
