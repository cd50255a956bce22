package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout bounds a single generation.
const DefaultTimeout = 30 * time.Second

var ErrNotConfigured = errors.New("narrative reports are not configured")

// Generator turns a projection into prose.
type Generator interface {
	Generate(ctx context.Context, p Projection) (string, error)
}

// Result carries either the text or a readable error; never both.
type Result struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

const systemInstruction = `You are the bookkeeper of a small trade partnership.
You receive a JSON projection of the company's figures: a company summary, one line per partner and the most recent payments and expenses.
Write a short report in Markdown for the partners: how the company is doing, how revenue and expenses are shared, and which partner balances are low or negative.
Quote amounts with two decimals. Do not invent figures that are not in the projection.
If the projection contains a question, answer it first.`

// Prompt renders the user message for a projection.
func Prompt(p Projection) (string, error) {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode projection: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("Projection:\n```json\n")
	sb.Write(b)
	sb.WriteString("\n```\n")
	return sb.String(), nil
}

// Narrate runs gen under its own timeout. Failures, including a missing
// generator, come back in Result.Error.
func Narrate(ctx context.Context, gen Generator, p Projection, timeout time.Duration) Result {
	if gen == nil {
		return Result{Error: ErrNotConfigured.Error()}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := gen.Generate(ctx, p)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (err != nil && ctx.Err() != nil):
		return Result{Error: fmt.Sprintf("report generation timed out after %s", timeout)}
	case err != nil:
		return Result{Error: err.Error()}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Error: "report generation returned no text"}
	}
	return Result{Text: text}
}
