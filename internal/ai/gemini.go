// Package ai wraps the Gemini API for chat replies and identity-document
// image checks. All failures degrade to neutral fallback values; raw API
// errors are never surfaced to chat users.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"onboardbot/internal/logger"
)

const systemPrompt = `You are a helpful chat bot assistant designed to help users with their queries.

Your responsibilities:
1. Help users with their questions
2. Maintain a professional yet friendly tone
3. Keep responses concise and clear
4. Handle basic troubleshooting
5. Collect user feedback

Guidelines:
- Keep responses under 200 words
- Use emojis sparingly for better engagement
- Always be polite and patient
- If you don't know something, say so
- Never share personal or sensitive information
- Don't make promises about service availability`

const validatePrompt = `Analyze this image and determine if it appears to be a valid government-issued identity document.
Check for:
1. Standard identity document layout
2. Issuing-authority markings or logo
3. A plausible document number format
4. Demographic information fields

Respond with a JSON object of the form {"valid": true|false, "rationale": "short explanation"}.
DO NOT include any personal information from the document in your response.`

const (
	fallbackMessage = "I apologize, but I encountered an error processing your message. Please try again."
	fallbackVerdict = "Error validating the document. Please try again."
)

// Verdict is the structured outcome of a document validation call.
type Verdict struct {
	Valid     bool   `json:"valid"`
	Rationale string `json:"rationale"`
}

// Client talks to the Gemini API.
type Client struct {
	gc    *genai.Client
	model string
}

// New constructs a Gemini client. An empty API key is a configuration error.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ai: GEMINI_API_KEY is not set")
	}
	gc, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("ai: client init: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Client{gc: gc, model: model}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.gc.Close()
}

// generativeModel builds a request-scoped model handle. JSON response mode is
// opt-in so free-text calls keep their natural output.
func (c *Client) generativeModel(jsonResponse bool) *genai.GenerativeModel {
	m := c.gc.GenerativeModel(c.model)
	if jsonResponse {
		m.ResponseMIMEType = "application/json"
	}
	return m
}

// ProcessMessage generates a free-text reply to a user message. Errors are
// logged and converted to a neutral fallback response.
func (c *Client) ProcessMessage(ctx context.Context, message string) string {
	start := time.Now()
	resp, err := c.generativeModel(false).GenerateContent(ctx,
		genai.Text(systemPrompt+"\n\nUser message: "+message+"\n\nResponse:"))
	text := responseText(resp)

	level := slog.LevelDebug
	attrs := []slog.Attr{
		slog.String("event", "ai.generate"),
		slog.String("status", logger.Status(err)),
		slog.Int("bytes", len(text)),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	logger.AI.LogAttrs(ctx, level, "generate", attrs...)

	if err != nil {
		return fallbackMessage
	}
	return text
}

// AnalyzeImage uploads the file at path and asks the model about it with the
// given prompt, returning the free-text answer. The uploaded file is deleted
// afterwards.
func (c *Client) AnalyzeImage(ctx context.Context, path, prompt string) (string, error) {
	return c.analyzeImage(ctx, path, prompt, false)
}

func (c *Client) analyzeImage(ctx context.Context, path, prompt string, jsonResponse bool) (string, error) {
	start := time.Now()
	file, err := c.gc.UploadFileFromPath(ctx, path, nil)
	if err != nil {
		return "", fmt.Errorf("ai: upload: %w", err)
	}
	defer func() {
		if err := c.gc.DeleteFile(ctx, file.Name); err != nil {
			logger.AI.Warn("file cleanup failed",
				slog.String("event", "ai.cleanup"),
				slog.String("err", err.Error()),
			)
		}
	}()

	resp, err := c.generativeModel(jsonResponse).GenerateContent(ctx,
		genai.Text(prompt),
		genai.FileData{URI: file.URI, MIMEType: file.MIMEType},
	)
	if err != nil {
		return "", fmt.Errorf("ai: analyze: %w", err)
	}
	logger.AI.Debug("analyze ok",
		slog.String("event", "ai.analyze"),
		slog.String("status", "ok"),
		slog.String("path", path),
		slog.Duration("duration", logger.Took(start)),
	)
	return responseText(resp), nil
}

// ValidateDocument asks the model whether the stored image looks like a valid
// identity document. The model answers through a structured JSON contract
// rather than free text; a response that fails to parse yields an invalid
// verdict carrying the raw text as rationale.
func (c *Client) ValidateDocument(ctx context.Context, path string) (Verdict, error) {
	raw, err := c.analyzeImage(ctx, path, validatePrompt, true)
	if err != nil {
		return Verdict{Valid: false, Rationale: fallbackVerdict}, err
	}
	return ParseVerdict(raw), nil
}

// ParseVerdict decodes the structured validation response.
func ParseVerdict(raw string) Verdict {
	var v Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return Verdict{Valid: false, Rationale: strings.TrimSpace(raw)}
	}
	return v
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}
