package storage

import (
	"context"
	"errors"
	"time"

	"github.com/deusflow/sportsdesk/internal/news"
)

var (
	ErrNotFound      = errors.New("article not found")
	ErrAlreadyPosted = errors.New("article already posted")
	ErrUnknownChan   = errors.New("unknown channel")
	ErrReadOnly      = errors.New("store opened read-only")
)

// Channel names accepted by SetPostPublished.
const (
	ChannelTelegram = "telegram"
	ChannelTwitter  = "twitter"
)

// Store persists articles and posts. "Today" queries take any instant of
// the day and use its calendar day in its own location.
type Store interface {
	// InsertArticle stores a new article unless its URL is already known.
	// The returned article carries the stored ID either way.
	InsertArticle(ctx context.Context, a news.Article) (news.Article, bool, error)
	GetArticle(ctx context.Context, url string) (news.Article, error)
	GetArticleByID(ctx context.Context, id int64) (news.Article, error)

	UpdateContent(ctx context.Context, url, content string) error
	RecordFetchFailure(ctx context.Context, url string) error
	// UpdateScores writes all four judgment fields in one step.
	UpdateScores(ctx context.Context, url string, s news.Scores) error
	// MarkPosted flips the posted flag; ErrAlreadyPosted if it was set.
	MarkPosted(ctx context.Context, articleID int64) error

	// InsertPost stores p and sets the article's posted flag in the same
	// transaction; ErrAlreadyPosted if the article already has a post.
	InsertPost(ctx context.Context, p news.Post) (int64, error)
	SetPostPublished(ctx context.Context, postID int64, channel string) error

	TodayUnpostedScored(ctx context.Context, day time.Time) ([]news.Article, error)
	TodayPostCaptions(ctx context.Context, day time.Time) ([]string, error)
	CountTodayPosts(ctx context.Context, day time.Time) (int, error)

	Close() error
}
