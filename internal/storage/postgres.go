package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/deusflow/sportsdesk/internal/news"
	"github.com/deusflow/sportsdesk/internal/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id BIGSERIAL PRIMARY KEY,
	url TEXT UNIQUE NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	published_raw TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ,
	received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	content TEXT NOT NULL DEFAULT '',
	content_fetched BOOLEAN NOT NULL DEFAULT FALSE,
	fetch_attempts INTEGER NOT NULL DEFAULT 0,
	proximity DOUBLE PRECISION NOT NULL DEFAULT -1,
	freshness INTEGER NOT NULL DEFAULT -1,
	impact INTEGER NOT NULL DEFAULT -1,
	uniqueness INTEGER NOT NULL DEFAULT -1,
	virality INTEGER NOT NULL DEFAULT -1,
	scored_at TIMESTAMPTZ,
	posted BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_articles_received_at ON articles(received_at);

CREATE TABLE IF NOT EXISTS posts (
	id BIGSERIAL PRIMARY KEY,
	article_id BIGINT NOT NULL REFERENCES articles(id),
	title TEXT NOT NULL DEFAULT '',
	caption TEXT NOT NULL DEFAULT '',
	short_text TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL,
	telegram_published BOOLEAN NOT NULL DEFAULT FALSE,
	twitter_published BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_posts_article_id ON posts(article_id);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var articleColumns = []string{
	"id", "url", "title", "source", "published_raw", "published_at", "received_at",
	"content", "content_fetched", "fetch_attempts",
	"proximity", "freshness", "impact", "uniqueness", "virality", "scored_at", "posted",
}

// PostgresStore keeps articles and posts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects, waits for the server to answer and creates the
// schema.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = retry.WithRetry(ctx, retry.Config{MaxAttempts: 5, Delay: 2 * time.Second, Backoff: true}, func() error {
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("postgres not ready", "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Info("postgres store ready")
	return &PostgresStore{db: db}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (news.Article, error) {
	var (
		a         news.Article
		published sql.NullTime
		scoredAt  sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.URL, &a.Title, &a.Source, &a.PublishedRaw, &published, &a.ReceivedAt,
		&a.Content, &a.ContentFetched, &a.FetchAttempts,
		&a.Scores.Proximity, &a.Scores.Freshness, &a.Scores.Impact, &a.Scores.Uniqueness,
		&a.Virality, &scoredAt, &a.Posted,
	)
	if err != nil {
		return news.Article{}, err
	}
	if published.Valid {
		a.PublishedAt = published.Time
	}
	a.Scores.Scored = scoredAt.Valid
	return a, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func insertArticleQuery(a news.Article) sq.InsertBuilder {
	return psql.Insert("articles").
		Columns("url", "title", "source", "published_raw", "published_at", "received_at").
		Values(a.URL, a.Title, a.Source, a.PublishedRaw, nullTime(a.PublishedAt), a.ReceivedAt).
		Suffix("ON CONFLICT (url) DO NOTHING RETURNING id")
}

// InsertArticle implements Store.
func (s *PostgresStore) InsertArticle(ctx context.Context, a news.Article) (news.Article, bool, error) {
	query, args, err := insertArticleQuery(a).ToSql()
	if err != nil {
		return news.Article{}, false, fmt.Errorf("build insert: %w", err)
	}

	err = s.db.QueryRowContext(ctx, query, args...).Scan(&a.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing, gErr := s.GetArticle(ctx, a.URL)
		return existing, false, gErr
	case err != nil:
		return news.Article{}, false, fmt.Errorf("insert article %s: %w", a.URL, err)
	}
	return a, true, nil
}

func (s *PostgresStore) getArticle(ctx context.Context, where sq.Eq) (news.Article, error) {
	query, args, err := psql.Select(articleColumns...).From("articles").Where(where).ToSql()
	if err != nil {
		return news.Article{}, fmt.Errorf("build select: %w", err)
	}
	a, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return news.Article{}, ErrNotFound
	}
	return a, err
}

// GetArticle implements Store.
func (s *PostgresStore) GetArticle(ctx context.Context, url string) (news.Article, error) {
	return s.getArticle(ctx, sq.Eq{"url": url})
}

// GetArticleByID implements Store.
func (s *PostgresStore) GetArticleByID(ctx context.Context, id int64) (news.Article, error) {
	return s.getArticle(ctx, sq.Eq{"id": id})
}

func (s *PostgresStore) execUpdate(ctx context.Context, b sq.UpdateBuilder) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) updateByURL(ctx context.Context, url string, b sq.UpdateBuilder) error {
	n, err := s.execUpdate(ctx, b.Where(sq.Eq{"url": url}))
	if err != nil {
		return fmt.Errorf("update article %s: %w", url, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateContent implements Store.
func (s *PostgresStore) UpdateContent(ctx context.Context, url, content string) error {
	return s.updateByURL(ctx, url, psql.Update("articles").
		Set("content", content).
		Set("content_fetched", true))
}

// RecordFetchFailure implements Store.
func (s *PostgresStore) RecordFetchFailure(ctx context.Context, url string) error {
	return s.updateByURL(ctx, url, psql.Update("articles").
		Set("fetch_attempts", sq.Expr("fetch_attempts + 1")))
}

func updateScoresQuery(sc news.Scores, scoredAt time.Time) sq.UpdateBuilder {
	b := psql.Update("articles").SetMap(map[string]any{
		"proximity":  sc.Proximity,
		"freshness":  sc.Freshness,
		"impact":     sc.Impact,
		"uniqueness": sc.Uniqueness,
	})
	if sc.Scored {
		return b.Set("scored_at", scoredAt)
	}
	return b.Set("scored_at", nil)
}

// UpdateScores implements Store. All four fields go out in one statement.
func (s *PostgresStore) UpdateScores(ctx context.Context, url string, sc news.Scores) error {
	return s.updateByURL(ctx, url, updateScoresQuery(sc, time.Now()))
}

func markPostedQuery(articleID int64) sq.UpdateBuilder {
	return psql.Update("articles").
		Set("posted", true).
		Where(sq.Eq{"id": articleID})
}

// MarkPosted implements Store.
func (s *PostgresStore) MarkPosted(ctx context.Context, articleID int64) error {
	n, err := s.execUpdate(ctx, markPostedQuery(articleID).Where(sq.Eq{"posted": false}))
	if err != nil {
		return fmt.Errorf("mark posted %d: %w", articleID, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetArticleByID(ctx, articleID); err != nil {
		return err
	}
	return ErrAlreadyPosted
}

func insertPostQuery(p news.Post) sq.InsertBuilder {
	return psql.Insert("posts").
		Columns("article_id", "title", "caption", "short_text", "reason", "created_at").
		Values(p.ArticleID, p.Title, p.Caption, p.ShortText, string(p.Reason), p.CreatedAt).
		Suffix("ON CONFLICT (article_id) DO NOTHING RETURNING id")
}

// InsertPost implements Store. The posted flag and the post row commit
// together or not at all.
func (s *PostgresStore) InsertPost(ctx context.Context, p news.Post) (_ int64, err error) {
	mark, markArgs, err := markPostedQuery(p.ArticleID).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build mark: %w", err)
	}
	insert, insertArgs, err := insertPostQuery(p).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin post tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, mark, markArgs...)
	if err != nil {
		return 0, fmt.Errorf("mark posted %d: %w", p.ArticleID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n == 0 {
		return 0, ErrNotFound
	}

	var id int64
	err = tx.QueryRowContext(ctx, insert, insertArgs...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAlreadyPosted
	}
	if err != nil {
		return 0, fmt.Errorf("insert post for article %d: %w", p.ArticleID, err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit post for article %d: %w", p.ArticleID, err)
	}
	return id, nil
}

func channelColumn(channel string) (string, error) {
	switch channel {
	case ChannelTelegram:
		return "telegram_published", nil
	case ChannelTwitter:
		return "twitter_published", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownChan, channel)
}

// SetPostPublished implements Store.
func (s *PostgresStore) SetPostPublished(ctx context.Context, postID int64, channel string) error {
	column, err := channelColumn(channel)
	if err != nil {
		return err
	}
	n, err := s.execUpdate(ctx, psql.Update("posts").Set(column, true).Where(sq.Eq{"id": postID}))
	if err != nil {
		return fmt.Errorf("set %s on post %d: %w", column, postID, err)
	}
	if n == 0 {
		return fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	return nil
}

func todayUnpostedScoredQuery(day time.Time) sq.SelectBuilder {
	start, end := news.DayBounds(day)
	return psql.Select(articleColumns...).
		From("articles").
		Where(sq.And{
			sq.Eq{"posted": false},
			sq.NotEq{"scored_at": nil},
			sq.GtOrEq{"received_at": start},
			sq.Lt{"received_at": end},
		}).
		OrderBy("id")
}

// TodayUnpostedScored implements Store.
func (s *PostgresStore) TodayUnpostedScored(ctx context.Context, day time.Time) ([]news.Article, error) {
	query, args, err := todayUnpostedScoredQuery(day).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []news.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func todayPostsWhere(day time.Time) sq.And {
	start, end := news.DayBounds(day)
	return sq.And{sq.GtOrEq{"created_at": start}, sq.Lt{"created_at": end}}
}

func todayCaptionsQuery(day time.Time) sq.SelectBuilder {
	return psql.Select("COALESCE(NULLIF(caption, ''), title)").
		From("posts").
		Where(todayPostsWhere(day)).
		OrderBy("created_at", "id")
}

// TodayPostCaptions implements Store.
func (s *PostgresStore) TodayPostCaptions(ctx context.Context, day time.Time) ([]string, error) {
	query, args, err := todayCaptionsQuery(day).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query captions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var caption string
		if err := rows.Scan(&caption); err != nil {
			return nil, fmt.Errorf("scan caption: %w", err)
		}
		out = append(out, caption)
	}
	return out, rows.Err()
}

// CountTodayPosts implements Store.
func (s *PostgresStore) CountTodayPosts(ctx context.Context, day time.Time) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From("posts").Where(todayPostsWhere(day)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}
