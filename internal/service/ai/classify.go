package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"

	"github.com/kapu/persona-script-go/pkg/errors"
)

var (
	statusCodeRegex = regexp.MustCompile(`\b(5\d{2})\b`)
	jsonCodeRegex   = regexp.MustCompile(`"code":\s*(\d{3})`)
)

// providerStatus extracts the HTTP status from a provider error, or 0.
func providerStatus(err error) int {
	var geminiErr genai.APIError
	if stderrors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	var openaiErr *openai.Error
	if stderrors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}
	if matches := jsonCodeRegex.FindStringSubmatch(err.Error()); len(matches) > 1 {
		if code, convErr := strconv.Atoi(matches[1]); convErr == nil {
			return code
		}
	}
	return 0
}

// providerMessage returns the provider's own error text when available.
func providerMessage(err error) string {
	var geminiErr genai.APIError
	if stderrors.As(err, &geminiErr) && geminiErr.Message != "" {
		return geminiErr.Message
	}
	var openaiErr *openai.Error
	if stderrors.As(err, &openaiErr) && openaiErr.Message != "" {
		return openaiErr.Message
	}
	return err.Error()
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if providerStatus(err) == 429 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Rate limit") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "quota")
}

// isServiceFailure reports outages that count against the circuit breaker.
func isServiceFailure(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if isRateLimitError(err) {
		return true
	}
	if status := providerStatus(err); status != 0 {
		return status >= 500 && status < 600
	}
	msg := err.Error()
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "ETIMEDOUT") {
		return true
	}
	return statusCodeRegex.MatchString(msg)
}

// isTransient reports failures worth retrying. Caller cancellation never is.
func isTransient(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}
	return isServiceFailure(err)
}

func toProviderError(provider, operation string, err error) error {
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	message := fmt.Sprintf("The AI provider failed during %s: %s", operation, providerMessage(err))
	return errors.NewProviderError(provider, message, providerStatus(err), err)
}
