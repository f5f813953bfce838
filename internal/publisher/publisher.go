// Package publisher turns a selected article into a stored post and hands it
// to the configured channels.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/sportsdesk/internal/metrics"
	"github.com/deusflow/sportsdesk/internal/news"
	"github.com/deusflow/sportsdesk/internal/storage"
)

var ErrAlreadyPosted = storage.ErrAlreadyPosted

// Captioner writes the social text for an article.
type Captioner interface {
	Caption(ctx context.Context, title, content string) (string, error)
}

// Channel is one posting transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Store is the part of storage.Store the publisher writes to.
type Store interface {
	InsertPost(ctx context.Context, p news.Post) (int64, error)
	SetPostPublished(ctx context.Context, postID int64, channel string) error
	MarkPosted(ctx context.Context, articleID int64) error
}

type Publisher struct {
	store     Store
	captioner Captioner
	channels  []Channel
	now       func() time.Time
	logger    *slog.Logger
}

// New builds a publisher dispatching to channels. An empty list stores posts
// without sending them anywhere.
func New(store Store, captioner Captioner, channels []Channel, now func() time.Time, logger *slog.Logger) *Publisher {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: store, captioner: captioner, channels: channels, now: now, logger: logger}
}

// SelectChannels returns the channels named by mode, in a fixed order.
func SelectChannels(mode news.OutputMode, telegram, twitter Channel) []Channel {
	var out []Channel
	if (mode == news.OutputTelegram || mode == news.OutputBoth) && telegram != nil {
		out = append(out, telegram)
	}
	if (mode == news.OutputTwitter || mode == news.OutputBoth) && twitter != nil {
		out = append(out, twitter)
	}
	return out
}

// Publish stores a post for a and dispatches it. The store flags the article
// posted together with the post row, so channel failures never leave it
// eligible for another draw.
func (p *Publisher) Publish(ctx context.Context, a news.Article, reason news.Reason) error {
	if a.Posted {
		return ErrAlreadyPosted
	}
	log := p.logger.With("article_id", a.ID, "url", a.URL, "reason", reason)

	caption, err := p.captioner.Caption(ctx, a.Title, a.Content)
	if err != nil {
		log.Warn("caption generation failed", "error", err)
		metrics.RecordError("caption")
		caption = ""
	}
	short := ComposeShortText(caption, a.URL)

	postID, err := p.store.InsertPost(ctx, news.Post{
		ArticleID: a.ID,
		Title:     a.Title,
		Caption:   caption,
		ShortText: short,
		Reason:    reason,
		CreatedAt: p.now(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyPosted) {
			// a post row without the flag means an earlier run stopped half way
			if err := p.store.MarkPosted(ctx, a.ID); err != nil && !errors.Is(err, storage.ErrAlreadyPosted) {
				log.Error("failed to repair posted flag", "error", err)
			}
			return ErrAlreadyPosted
		}
		return fmt.Errorf("save post: %w", err)
	}
	metrics.RecordPost(string(reason))
	log.Info("posting", "title", a.Title, "post_id", postID)

	for _, ch := range p.channels {
		if err := ch.Send(ctx, short); err != nil {
			log.Error("channel send failed", "channel", ch.Name(), "error", err)
			metrics.RecordSend(ch.Name(), false)
			continue
		}
		metrics.RecordSend(ch.Name(), true)
		if err := p.store.SetPostPublished(ctx, postID, ch.Name()); err != nil {
			log.Error("failed to flag post as published", "channel", ch.Name(), "error", err)
		}
	}
	return nil
}
