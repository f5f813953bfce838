// Package llm turns a text-completion backend into the judgment oracle and
// caption generator used by the pipeline.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deusflow/sportsdesk/internal/news"
	"github.com/deusflow/sportsdesk/internal/ratelimit"
)

// Request is a single prompt. JSON asks the backend for a JSON-only reply
// where it supports that.
type Request struct {
	Prompt string
	JSON   bool
}

// Completer is a language model backend.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Oracle asks a Completer for classifications, uniqueness verdicts and
// captions.
type Oracle struct {
	completer Completer
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

// NewOracle wraps c. limiter may be nil.
func NewOracle(c Completer, limiter *ratelimit.Limiter, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{completer: c, limiter: limiter, logger: logger}
}

func (o *Oracle) complete(ctx context.Context, req Request) (string, error) {
	if o.limiter != nil {
		if err := o.limiter.Acquire(ctx); err != nil {
			return "", err
		}
	}
	return o.completer.Complete(ctx, req)
}

// Classify rates topical relevance, freshness and impact.
func (o *Oracle) Classify(ctx context.Context, req news.ClassifyRequest) (news.Classification, error) {
	raw, err := o.complete(ctx, Request{Prompt: classifyPrompt(req), JSON: true})
	if err != nil {
		return news.Classification{}, fmt.Errorf("classify: %w", err)
	}
	c, err := parseClassification(raw)
	if err != nil {
		o.logger.Debug("unparseable classification", "title", req.Title, "raw", truncate(raw, 300))
		return news.Classification{}, fmt.Errorf("classify: %w", err)
	}
	return c, nil
}

// Uniqueness returns 1 when title differs from everything in history.
func (o *Oracle) Uniqueness(ctx context.Context, title string, history []string) (int, error) {
	raw, err := o.complete(ctx, Request{Prompt: uniquenessPrompt(title, history), JSON: true})
	if err != nil {
		return 0, fmt.Errorf("uniqueness: %w", err)
	}
	u, err := parseUniqueness(raw)
	if err != nil {
		o.logger.Debug("unparseable uniqueness", "title", title, "raw", truncate(raw, 300))
		return 0, fmt.Errorf("uniqueness: %w", err)
	}
	return u, nil
}

// Caption writes a short social post for the article.
func (o *Oracle) Caption(ctx context.Context, title, content string) (string, error) {
	raw, err := o.complete(ctx, Request{Prompt: captionPrompt(title, content)})
	if err != nil {
		return "", fmt.Errorf("caption: %w", err)
	}
	return cleanCaption(raw), nil
}
