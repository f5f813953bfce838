package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sportsdesk/internal/news"
)

func TestInsertArticleQueryIgnoresDuplicates(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := news.NewArticle("https://x/1", "Title", "feed", "", time.Time{}, now)

	query, args, err := insertArticleQuery(a).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "INSERT INTO articles")
	assert.Contains(t, query, "ON CONFLICT (url) DO NOTHING RETURNING id")
	assert.Contains(t, query, "$6")
	require.Len(t, args, 6)
	assert.Equal(t, "https://x/1", args[0])
}

func TestUpdateScoresQueryWritesAllFields(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sc := news.Scores{Scored: true, Proximity: 0.9, Freshness: 8, Impact: 7, Uniqueness: 1}

	query, args, err := updateScoresQuery(sc, at).Where("url = ?", "u").ToSql()
	require.NoError(t, err)
	for _, col := range []string{"proximity", "freshness", "impact", "uniqueness", "scored_at"} {
		assert.Contains(t, query, col+" = $")
	}
	assert.Contains(t, query, "WHERE url = $6")
	require.Len(t, args, 6)
	assert.Contains(t, args, at)
}

func TestTodayUnpostedScoredQuery(t *testing.T) {
	day := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	start, end := news.DayBounds(day)

	query, args, err := todayUnpostedScoredQuery(day).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "posted = $1")
	assert.Contains(t, query, "scored_at IS NOT NULL")
	assert.Contains(t, query, "received_at >= $2")
	assert.Contains(t, query, "received_at < $3")
	assert.Equal(t, []any{false, start, end}, args)
}

func TestTodayCaptionsFallsBackToTitle(t *testing.T) {
	query, args, err := todayCaptionsQuery(time.Now()).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "COALESCE(NULLIF(caption, ''), title)")
	assert.Contains(t, query, "created_at >= $1")
	assert.Len(t, args, 2)
}

func TestInsertPostQueryOnePerArticle(t *testing.T) {
	query, _, err := insertPostQuery(news.Post{ArticleID: 3, Reason: news.ReasonInstant}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "ON CONFLICT (article_id) DO NOTHING RETURNING id")
}

func TestMarkPostedQuery(t *testing.T) {
	query, args, err := markPostedQuery(7).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE articles SET posted = $1 WHERE id = $2", query)
	assert.Equal(t, []any{true, int64(7)}, args)
}

func TestChannelColumn(t *testing.T) {
	col, err := channelColumn(ChannelTelegram)
	require.NoError(t, err)
	assert.Equal(t, "telegram_published", col)

	col, err = channelColumn(ChannelTwitter)
	require.NoError(t, err)
	assert.Equal(t, "twitter_published", col)

	_, err = channelColumn("fax")
	assert.ErrorIs(t, err, ErrUnknownChan)
}
