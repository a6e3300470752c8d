// Package genai drafts new scripts from natural-language prompts. The
// model is a collaborator, not an authority: everything it returns is
// normalized through the metadata codec before it reaches the inventory,
// and a missing or malformed header is synthesized locally.
package genai

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/scriptstash/scriptstash/internal/metadata"
)

const systemPrompt = `You write small, self-contained Python command-line scripts.

Rules:
- Output ONLY the script source, no prose and no markdown fences.
- Start the file with an inline metadata block:
  # /// script
  # description = "..."
  # requires-python = ">=3.12"
  # dependencies = [...]
  # ///
- List every third-party import in dependencies; leave the list empty
  when only the standard library is used.
- Keep the script runnable as-is: argument parsing, a main guard, and
  helpful --help text.`

// Request describes one script to draft.
type Request struct {
	// Name is the script's inventory name, used for context only.
	Name string
	// Prompt is the user's description of what the script should do.
	Prompt string
	// Tags are attached to the synthesized header when the model omits one.
	Tags []string
}

// Generator drafts a script body from a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Anthropic generates scripts through the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *log.Logger
}

// NewAnthropic creates a generator. Empty model or zero maxTokens fall
// back to defaults suited to single-file scripts.
func NewAnthropic(apiKey, model string, maxTokens int, logger *log.Logger) *Anthropic {
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_0)
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[genai] ", log.LstdFlags)
	}
	return &Anthropic{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
		logger:    logger,
	}
}

// Generate drafts a script body. The returned text always carries a
// well-formed metadata header.
func (a *Anthropic) Generate(ctx context.Context, req Request) (string, error) {
	userPrompt := fmt.Sprintf("Script name: %s\n\nWrite a script that does the following:\n%s", req.Name, req.Prompt)

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("generating script '%s': %w", req.Name, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	body := StripFences(text.String())
	if body == "" {
		return "", fmt.Errorf("generating script '%s': model returned no text", req.Name)
	}

	normalized, synthesized := EnsureHeader(body, req)
	if synthesized {
		a.logger.Printf("Model omitted a metadata header for '%s', synthesized one", req.Name)
	}
	return normalized, nil
}

// StripFences removes a surrounding markdown code fence, which models
// emit despite instructions.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return ensureTrailingNewline(trimmed)
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ensureTrailingNewline(trimmed)
	}
	lines = lines[1:] // opening fence, possibly with a language tag
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return ensureTrailingNewline(strings.TrimSpace(strings.Join(lines, "\n")))
}

// EnsureHeader guarantees the body starts with a well-formed metadata
// block, synthesizing a minimal one from the request when the model's is
// missing or malformed. Reports whether synthesis happened.
func EnsureHeader(body string, req Request) (string, bool) {
	if h, _ := metadata.Decode(body); h != nil {
		return body, false
	}
	h := &metadata.Header{
		Description:     summarize(req.Prompt),
		Created:         time.Now().UTC().Format("2006-01-02"),
		RequiresRuntime: ">=3.12",
		Dependencies:    []string{},
		Tags:            req.Tags,
	}
	return metadata.Encode(h, body), true
}

// summarize reduces a prompt to a single-line description.
func summarize(prompt string) string {
	line := strings.TrimSpace(prompt)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if len(line) > 120 {
		line = line[:117] + "..."
	}
	return line
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
