package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sportsdesk/internal/news"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBadgerInsertArticleDedupsByURL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	first, inserted, err := s.InsertArticle(ctx, news.NewArticle("https://a/1", "One", "feed", "", now, now))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, first.ID)
	assert.Equal(t, news.Unscored(), first.Scores)

	again, inserted, err := s.InsertArticle(ctx, news.NewArticle("https://a/1", "Changed", "feed", "", now, now))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "One", again.Title)

	other, _, err := s.InsertArticle(ctx, news.NewArticle("https://a/2", "Two", "feed", "", now, now))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	byID, err := s.GetArticleByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://a/2", byID.URL)
}

func TestBadgerMissingArticle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetArticle(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetArticleByID(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateScores(ctx, "nope", news.Unscored()), ErrNotFound)
	assert.ErrorIs(t, s.MarkPosted(ctx, 99), ErrNotFound)
	_, err = s.InsertPost(ctx, news.Post{ArticleID: 99})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerContentAndScores(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()
	_, _, err := s.InsertArticle(ctx, news.NewArticle("u", "t", "f", "", now, now))
	require.NoError(t, err)

	require.NoError(t, s.RecordFetchFailure(ctx, "u"))
	require.NoError(t, s.RecordFetchFailure(ctx, "u"))
	require.NoError(t, s.UpdateContent(ctx, "u", "body"))

	sc := news.Scores{Scored: true, Proximity: 0.85, Freshness: 9, Impact: 6, Uniqueness: 1}
	require.NoError(t, s.UpdateScores(ctx, "u", sc))

	got, err := s.GetArticle(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "body", got.Content)
	assert.True(t, got.ContentFetched)
	assert.Equal(t, 2, got.FetchAttempts)
	assert.Equal(t, sc, got.Scores)
}

func TestBadgerOnePostPerArticle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()
	a, _, err := s.InsertArticle(ctx, news.NewArticle("u", "t", "f", "", now, now))
	require.NoError(t, err)

	postID, err := s.InsertPost(ctx, news.Post{ArticleID: a.ID, Title: "t", Reason: news.ReasonInstant, CreatedAt: now})
	require.NoError(t, err)
	assert.NotZero(t, postID)

	_, err = s.InsertPost(ctx, news.Post{ArticleID: a.ID, Title: "t", Reason: news.ReasonNonUrgent, CreatedAt: now})
	assert.ErrorIs(t, err, ErrAlreadyPosted)

	// the post insert already flipped the flag
	assert.ErrorIs(t, s.MarkPosted(ctx, a.ID), ErrAlreadyPosted)
}

func TestBadgerInsertPostMarksArticle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()
	a, _, err := s.InsertArticle(ctx, news.NewArticle("u", "t", "f", "", now, now))
	require.NoError(t, err)
	require.NoError(t, s.UpdateScores(ctx, "u", news.Scores{Scored: true, Proximity: 1, Freshness: 9, Impact: 8, Uniqueness: 1}))

	_, err = s.InsertPost(ctx, news.Post{ArticleID: a.ID, Reason: news.ReasonNonUrgent, CreatedAt: now})
	require.NoError(t, err)

	got, err := s.GetArticleByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Posted)

	candidates, err := s.TodayUnpostedScored(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	_, err = s.InsertPost(ctx, news.Post{ArticleID: a.ID + 100, Reason: news.ReasonInstant, CreatedAt: now})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerSetPostPublished(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()
	a, _, err := s.InsertArticle(ctx, news.NewArticle("u", "t", "f", "", now, now))
	require.NoError(t, err)
	postID, err := s.InsertPost(ctx, news.Post{ArticleID: a.ID, Reason: news.ReasonInstant, CreatedAt: now})
	require.NoError(t, err)

	require.NoError(t, s.SetPostPublished(ctx, postID, ChannelTwitter))
	assert.ErrorIs(t, s.SetPostPublished(ctx, postID, "fax"), ErrUnknownChan)
	assert.ErrorIs(t, s.SetPostPublished(ctx, postID+100, ChannelTelegram), ErrNotFound)
}

func TestBadgerTodayQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	today := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	yesterday := today.Add(-24 * time.Hour)
	sc := news.Scores{Scored: true, Proximity: 1, Freshness: 7, Impact: 5, Uniqueness: 1}

	insert := func(url string, received time.Time, scores *news.Scores) news.Article {
		a, _, err := s.InsertArticle(ctx, news.NewArticle(url, "title "+url, "f", "", received, received))
		require.NoError(t, err)
		if scores != nil {
			require.NoError(t, s.UpdateScores(ctx, url, *scores))
		}
		return a
	}

	fresh := insert("fresh", today, &sc)
	insert("unscored", today, nil)
	insert("old", yesterday, &sc)
	posted := insert("posted", today, &sc)
	require.NoError(t, s.MarkPosted(ctx, posted.ID))

	got, err := s.TodayUnpostedScored(ctx, today)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)

	_, err = s.InsertPost(ctx, news.Post{ArticleID: posted.ID, Title: "posted title", Caption: "", Reason: news.ReasonInstant, CreatedAt: today})
	require.NoError(t, err)
	old, err := s.GetArticle(ctx, "old")
	require.NoError(t, err)
	_, err = s.InsertPost(ctx, news.Post{ArticleID: old.ID, Title: "old", Caption: "yesterday", Reason: news.ReasonNonUrgent, CreatedAt: yesterday})
	require.NoError(t, err)
	_, err = s.InsertPost(ctx, news.Post{ArticleID: fresh.ID, Title: "fresh", Caption: "fresh caption", Reason: news.ReasonNonUrgent, CreatedAt: today.Add(time.Minute)})
	require.NoError(t, err)

	n, err := s.CountTodayPosts(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	captions, err := s.TodayPostCaptions(ctx, today)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"posted title", "fresh caption"}, captions)
}

func TestBadgerReadOnlyReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	now := time.Now()

	w, err := NewBadgerStore(dir)
	require.NoError(t, err)
	a, _, err := w.InsertArticle(ctx, news.NewArticle("u", "t", "f", "", now, now))
	require.NoError(t, err)
	_, err = w.InsertPost(ctx, news.Post{ArticleID: a.ID, Reason: news.ReasonInstant, CreatedAt: now})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenBadgerReadOnly(dir)
	require.NoError(t, err)
	defer r.Close()

	n, err := r.CountTodayPosts(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, err = r.InsertArticle(ctx, news.NewArticle("u2", "t", "f", "", now, now))
	assert.ErrorIs(t, err, ErrReadOnly)

	_, err = OpenBadgerReadOnly("")
	assert.Error(t, err)
}
