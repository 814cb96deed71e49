// Package detect asks an OpenAI-compatible chat model to find the section
// markers of a chapter document and turns the answer into a pattern override
// document. Every start marker the model proposes is checked against the
// document and dropped unless it occurs there literally.
package detect

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/qsplit/internal/patterns"
)

const (
	DefaultModel    = "gpt-4o"
	DefaultMaxChars = 50000
)

var (
	// ErrNoPatterns is returned when none of the proposed markers occur in
	// the document.
	ErrNoPatterns = errors.New("no usable patterns detected")

	// ErrInvalidResponse is returned when the model's answer is not JSON of
	// the expected shape.
	ErrInvalidResponse = errors.New("invalid detection response")
)

//go:embed schemas/detection.schema.json
var schemaFS embed.FS

var (
	responseSchemaOnce sync.Once
	responseSchema     *jsonschema.Schema
	responseSchemaErr  error
)

func compiledResponseSchema() (*jsonschema.Schema, error) {
	responseSchemaOnce.Do(func() {
		raw, err := schemaFS.ReadFile("schemas/detection.schema.json")
		if err != nil {
			responseSchemaErr = fmt.Errorf("failed to read detection schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("detection.schema.json", bytes.NewReader(raw)); err != nil {
			responseSchemaErr = fmt.Errorf("failed to load detection schema: %w", err)
			return
		}
		responseSchema, responseSchemaErr = compiler.Compile("detection.schema.json")
	})
	return responseSchema, responseSchemaErr
}

// Config holds detector settings.
type Config struct {
	APIKey     string
	BaseURL    string        // Optional, for OpenAI-compatible gateways and tests
	Model      string        // DefaultModel when empty
	MaxChars   int           // Document prefix sent to the model
	MaxRetries int           // Retry attempts for SDK transport
	Timeout    time.Duration // HTTP timeout
	HTTPClient *http.Client  // Optional (tests)
	Logger     *slog.Logger
}

// Detector runs marker detection against a chat model.
type Detector struct {
	model    string
	maxChars int
	client   openai.Client
	logger   *slog.Logger
}

// New creates a detector.
func New(cfg Config) *Detector {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Detector{
		model:    cfg.Model,
		maxChars: cfg.MaxChars,
		client:   openai.NewClient(opts...),
		logger:   cfg.Logger,
	}
}

// Result is a validated detection.
type Result struct {
	// Overrides is a current-shape override document holding only markers
	// that occur in the document.
	Overrides *patterns.OverrideDocument `json:"-" yaml:"-"`

	// Patterns is the raw form of Overrides, ready to be saved as a
	// patterns file.
	Patterns   map[string]any `json:"patterns" yaml:"patterns"`
	Confidence string         `json:"confidence" yaml:"confidence"`
	Notes      string         `json:"notes,omitempty" yaml:"notes,omitempty"`

	// Dropped lists proposed start markers absent from the document.
	Dropped []string `json:"dropped,omitempty" yaml:"dropped,omitempty"`
}

// Detect sends the head of doc to the model and validates its answer.
func (d *Detector) Detect(ctx context.Context, doc string) (*Result, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, fmt.Errorf("%w: document is empty", ErrNoPatterns)
	}

	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(d.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(truncate(doc, d.maxChars))),
		},
		Temperature: openai.Float(0.1),
	})
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", mapOpenAIError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrInvalidResponse)
	}

	d.logger.Debug("detection response received",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return Parse(resp.Choices[0].Message.Content, doc)
}

// Parse validates a model answer against doc. It is separate from Detect so
// that saved answers can be re-validated.
func Parse(content, doc string) (*Result, error) {
	content = stripCodeFences(strings.TrimSpace(content))
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	schema, err := compiledResponseSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var raw response
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	res := &Result{Confidence: raw.Confidence, Notes: raw.Notes}
	if res.Confidence == "" {
		res.Confidence = "medium"
	}

	out := map[string]any{}
	views := []struct {
		key  string
		view *viewResponse
		ends bool
	}{
		{"questions", raw.Questions, true},
		{"answerKeys", raw.AnswerKeys, false},
		{"explanations", raw.Explanations, false},
	}
	for _, v := range views {
		if v.view == nil {
			continue
		}
		table := map[string]any{}
		if v.key != "questions" {
			if kept := res.keep(v.view.SectionStart, doc); len(kept) > 0 {
				table["sectionStart"] = kept
			}
		}
		for _, sec := range patterns.Sections {
			s := v.view.section(sec)
			if s == nil {
				continue
			}
			kept := res.keep(s.Start, doc)
			if len(kept) == 0 {
				continue
			}
			entry := map[string]any{"start": kept}
			if v.ends && s.End != nil {
				entry["end"] = s.End
			}
			table[string(sec)] = entry
		}
		if len(table) > 0 {
			out[v.key] = table
		}
	}
	if len(out) == 0 {
		return res, ErrNoPatterns
	}

	overrides, err := patterns.NewOverrideDocument(out)
	if err != nil {
		return nil, err
	}
	res.Overrides = overrides
	res.Patterns = overrides.Raw()
	return res, nil
}

// keep returns the markers that occur in doc, recording the rest as dropped.
func (r *Result) keep(markers []string, doc string) []string {
	var kept []string
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(doc, m) {
			kept = append(kept, m)
		} else {
			r.Dropped = append(r.Dropped, m)
		}
	}
	return kept
}

type sectionResponse struct {
	Start []string `json:"start"`
	End   []string `json:"end"`
}

type viewResponse struct {
	SectionStart []string         `json:"sectionStart"`
	Competency   *sectionResponse `json:"competency"`
	Level1       *sectionResponse `json:"level1"`
	Level2       *sectionResponse `json:"level2"`
	Achievers    *sectionResponse `json:"achievers"`
}

func (v *viewResponse) section(s patterns.Section) *sectionResponse {
	switch s {
	case patterns.SectionCompetency:
		return v.Competency
	case patterns.SectionLevel1:
		return v.Level1
	case patterns.SectionLevel2:
		return v.Level2
	case patterns.SectionAchievers:
		return v.Achievers
	}
	return nil
}

type response struct {
	Questions    *viewResponse `json:"questions"`
	AnswerKeys   *viewResponse `json:"answerKeys"`
	Explanations *viewResponse `json:"explanations"`
	Confidence   string        `json:"confidence"`
	Notes        string        `json:"notes"`
}

// truncate cuts doc to at most max bytes without splitting a UTF-8 sequence.
func truncate(doc string, max int) string {
	if len(doc) <= max {
		return doc
	}
	cut := max
	for cut > 0 && !utf8RuneStart(doc[cut]) {
		cut--
	}
	return doc[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

// stripCodeFences removes a surrounding ``` or ```json fence.
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("chat model error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("chat model error (status %d)", apiErr.StatusCode)
	}
	return err
}
