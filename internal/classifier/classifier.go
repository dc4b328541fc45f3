package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.5-flash"

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Classifier turns a chat message or a receipt photo into an intent.
type Classifier interface {
	ClassifyText(ctx context.Context, text string) (domain.Intent, error)
	ExtractReceipt(ctx context.Context, image []byte, mimeType string) (domain.Intent, error)
}

// Generator sends prompt parts to a model and returns its raw text answer.
// This interface enables mocking the model in tests.
type Generator interface {
	Generate(ctx context.Context, parts []*genai.Part) (string, error)
}

// GeminiGenerator is the Generator backed by the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini client. An empty apiKey falls back to the
// GEMINI_API_KEY / GOOGLE_API_KEY environment variables read by the SDK.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	cfg := &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, parts []*genai.Part) (string, error) {
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}
	return resp.Text(), nil
}

// Options configures a GeminiClassifier.
type Options struct {
	LocalCurrency string
	Categories    []string
}

// GeminiClassifier implements Classifier on top of a Generator.
type GeminiClassifier struct {
	gen        Generator
	opts       Options
	categories *CategorySet
	log        zerolog.Logger
}

// New creates a GeminiClassifier. Empty Categories selects DefaultCategories.
func New(gen Generator, opts Options, log zerolog.Logger) *GeminiClassifier {
	if len(opts.Categories) == 0 {
		opts.Categories = DefaultCategories
	}
	return &GeminiClassifier{
		gen:        gen,
		opts:       opts,
		categories: NewCategorySet(opts.Categories),
		log:        log.With().Str("component", "classifier").Logger(),
	}
}

// ClassifyText classifies a free-text message.
func (c *GeminiClassifier) ClassifyText(ctx context.Context, text string) (domain.Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Intent{}, fmt.Errorf("ClassifyText: empty message: %w", domain.ErrInvalidInput)
	}
	parts := []*genai.Part{
		{Text: buildTextPrompt(c.opts) + "\nMessage: " + NormalizeText(text)},
	}
	intent, err := c.run(ctx, parts)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("ClassifyText: %w", err)
	}
	return intent, nil
}

// ExtractReceipt reads a receipt photo.
func (c *GeminiClassifier) ExtractReceipt(ctx context.Context, image []byte, mimeType string) (domain.Intent, error) {
	if len(image) == 0 {
		return domain.Intent{}, fmt.Errorf("ExtractReceipt: empty image: %w", domain.ErrInvalidInput)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	parts := []*genai.Part{
		{Text: buildReceiptPrompt(c.opts)},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
	}
	intent, err := c.run(ctx, parts)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("ExtractReceipt: %w", err)
	}
	return intent, nil
}

func (c *GeminiClassifier) run(ctx context.Context, parts []*genai.Part) (domain.Intent, error) {
	raw, err := c.gen.Generate(ctx, parts)
	if err != nil {
		return domain.Intent{}, err
	}
	if strings.TrimSpace(raw) == "" {
		return domain.Intent{}, ErrEmptyResponse
	}

	var m modelIntent
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &m); err != nil {
		c.log.Warn().Err(err).Str("raw", raw).Msg("model returned malformed JSON")
		return domain.Intent{}, fmt.Errorf("unmarshal JSON: %w", err)
	}

	intent, err := c.toIntent(m)
	if err != nil {
		return domain.Intent{}, err
	}
	c.log.Debug().
		Str("direction", string(intent.Direction)).
		Str("category", intent.Category).
		Str("currency", intent.Currency).
		Float64("amount", intent.Amount).
		Msg("message classified")
	return intent, nil
}

// cleanModelJSON strips Markdown fences and any text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
