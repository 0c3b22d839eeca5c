package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// Finish reasons accepted as a completed response. Everything outside the
// success and hard-stop sets is a soft failure handled by failover.
var successFinishReasons = map[genai.FinishReason]bool{
	genai.FinishReasonStop:      true,
	genai.FinishReasonMaxTokens: true,
}

// Finish reasons that mean the response was rejected for policy reasons.
var blockedFinishReasons = map[genai.FinishReason]bool{
	genai.FinishReasonSafety:            true,
	genai.FinishReasonRecitation:        true,
	genai.FinishReasonBlocklist:         true,
	genai.FinishReasonProhibitedContent: true,
	genai.FinishReasonSPII:              true,
	genai.FinishReasonImageSafety:       true,
}

// Error message fragments that signal transient overload. The API is not
// consistent about status codes here, so the raw message is checked too.
var rateLimitKeywords = []string{"429", "RESOURCE_EXHAUSTED", "503", "OVERLOADED"}

// GeminiConfig holds generation parameters shared by all models.
type GeminiConfig struct {
	// Temperature controls sampling randomness.
	Temperature float32 `yaml:"temperature"`

	// EnableSearch attaches the Google Search grounding tool.
	EnableSearch bool `yaml:"enable_search"`
}

// DefaultGeminiConfig returns the stock generation parameters.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Temperature:  0.5,
		EnableSearch: true,
	}
}

// Gemini implements Generator on top of the Google GenAI API.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *slog.Logger
}

// NewGemini creates a Gemini generator.
func NewGemini(ctx context.Context, apiKey string, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: creating gemini client: %w", err)
	}
	return &Gemini{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "gemini"),
	}, nil
}

// safetySettings blocks only high-probability harmful content in every
// category, leaving normal chatter untouched.
func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryCivicIntegrity,
	}
	settings := make([]*genai.SafetySetting, len(categories))
	for i, cat := range categories {
		settings[i] = &genai.SafetySetting{
			Category:  cat,
			Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
		}
	}
	return settings
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, model, prompt, systemInstruction string) (Result, error) {
	config := &genai.GenerateContentConfig{
		Temperature:    genai.Ptr(g.cfg.Temperature),
		SafetySettings: safetySettings(),
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	if g.cfg.EnableSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return Result{}, g.classifyError(model, err)
	}
	if resp == nil {
		return Result{}, fmt.Errorf("dispatch: empty response from %s", model)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return Result{PromptBlocked: string(resp.PromptFeedback.BlockReason)}, nil
	}

	var finishReason genai.FinishReason
	if len(resp.Candidates) > 0 {
		finishReason = resp.Candidates[0].FinishReason
	}

	switch {
	case blockedFinishReasons[finishReason]:
		return Result{Finish: FinishBlocked, Reason: string(finishReason)}, nil
	case successFinishReasons[finishReason]:
		return Result{Finish: FinishSuccess, Reason: string(finishReason), Text: resp.Text()}, nil
	default:
		return Result{Finish: FinishSoft, Reason: string(finishReason)}, nil
	}
}

// classifyError maps API failures onto the dispatcher's sentinel errors:
// input-size rejections, transient overload, or fatal.
func (g *Gemini) classifyError(model string, err error) error {
	msg := strings.ToUpper(err.Error())

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg = strings.ToUpper(fmt.Sprintf("%d %s %s", apiErr.Code, apiErr.Status, apiErr.Message))
	}

	if strings.Contains(msg, "INPUT_TOKEN_COUNT") || strings.Contains(msg, "INPUT TOKEN COUNT") {
		return fmt.Errorf("%w: %s: %s", ErrInputTooLarge, model, err)
	}
	for _, keyword := range rateLimitKeywords {
		if strings.Contains(msg, keyword) {
			return fmt.Errorf("%w: %s: %s", ErrRateLimited, model, err)
		}
	}
	return err
}

// Compile-time interface verification.
var _ Generator = (*Gemini)(nil)
