package publisher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sportsdesk/internal/cache"
	"github.com/deusflow/sportsdesk/internal/news"
	"github.com/deusflow/sportsdesk/internal/storage"
)

type fakeCaptioner struct {
	text  string
	err   error
	calls int
}

func (f *fakeCaptioner) Caption(context.Context, string, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeChannel struct {
	name string
	err  error
	sent []string
	// onSend runs before the send result is returned
	onSend func()
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, text string) error {
	if f.onSend != nil {
		f.onSend()
	}
	f.sent = append(f.sent, text)
	return f.err
}

type recordingStore struct {
	Store
	mu    sync.Mutex
	calls []string
}

func (r *recordingStore) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingStore) InsertPost(ctx context.Context, p news.Post) (int64, error) {
	r.record("insert")
	return r.Store.InsertPost(ctx, p)
}

func (r *recordingStore) MarkPosted(ctx context.Context, id int64) error {
	r.record("mark")
	return r.Store.MarkPosted(ctx, id)
}

func setup(t *testing.T) (*storage.BadgerStore, news.Article) {
	t.Helper()
	s, err := storage.NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := time.Now()
	a := news.NewArticle("https://news.example/story", "Title", "feed", "", now, now)
	a.Content = "body"
	a, _, err = s.InsertArticle(context.Background(), a)
	require.NoError(t, err)
	return s, a
}

func TestComposeShortText(t *testing.T) {
	url := "https://news.example/a"

	assert.Equal(t, "Short\n"+url, ComposeShortText("  Short ", url))

	long := strings.Repeat("goal ", 100)
	got := ComposeShortText(long, url)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxShortText)
	assert.True(t, strings.HasSuffix(got, "…\n"+url))

	// a long url gets a bigger reserve
	longURL := "https://news.example/" + strings.Repeat("x", 100)
	got = ComposeShortText(long, longURL)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxShortText)
	assert.True(t, strings.HasSuffix(got, "\n"+longURL))

	// exactly at budget is left alone
	exact := strings.Repeat("a", MaxShortText-MinURLReserve)
	assert.Equal(t, exact+"\n"+url, ComposeShortText(exact, url))

	assert.Equal(t, "\n"+url, ComposeShortText("", url))

	huge := "https://news.example/" + strings.Repeat("y", 300)
	assert.Equal(t, "\n"+huge, ComposeShortText("text", huge))
}

func TestPublishPersistsBeforeDispatch(t *testing.T) {
	s, a := setup(t)
	rec := &recordingStore{Store: s}
	tg := &fakeChannel{name: storage.ChannelTelegram}
	tg.onSend = func() { rec.record("send") }

	p := New(rec, &fakeCaptioner{text: "City win"}, []Channel{tg}, nil, nil)
	require.NoError(t, p.Publish(context.Background(), a, news.ReasonInstant))

	assert.Equal(t, []string{"insert", "send"}, rec.calls, "the insert flags the article itself")
	assert.Equal(t, []string{"City win\n" + a.URL}, tg.sent)

	stored, err := s.GetArticleByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Posted)

	captions, err := s.TodayPostCaptions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"City win"}, captions)
}

func TestPublishChannelsAreIndependent(t *testing.T) {
	s, a := setup(t)
	tg := &fakeChannel{name: storage.ChannelTelegram, err: errors.New("down")}
	tw := &fakeChannel{name: storage.ChannelTwitter}

	p := New(s, &fakeCaptioner{text: "x"}, []Channel{tg, tw}, nil, nil)
	require.NoError(t, p.Publish(context.Background(), a, news.ReasonNonUrgent))

	assert.Len(t, tg.sent, 1)
	assert.Len(t, tw.sent, 1)

	stored, err := s.GetArticleByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Posted, "posted even though one channel failed")
}

func TestPublishAllChannelsFail(t *testing.T) {
	s, a := setup(t)
	tg := &fakeChannel{name: storage.ChannelTelegram, err: errors.New("down")}

	p := New(s, &fakeCaptioner{text: "x"}, []Channel{tg}, nil, nil)
	require.NoError(t, p.Publish(context.Background(), a, news.ReasonInstant))

	n, err := s.CountTodayPosts(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPublishCaptionFailureContinues(t *testing.T) {
	s, a := setup(t)
	tg := &fakeChannel{name: storage.ChannelTelegram}

	p := New(s, &fakeCaptioner{err: errors.New("llm down")}, []Channel{tg}, nil, nil)
	require.NoError(t, p.Publish(context.Background(), a, news.ReasonInstant))

	assert.Equal(t, []string{"\n" + a.URL}, tg.sent)
	captions, err := s.TodayPostCaptions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"Title"}, captions, "history falls back to the title")
}

func TestPublishRefusesPostedArticle(t *testing.T) {
	s, a := setup(t)
	tg := &fakeChannel{name: storage.ChannelTelegram}
	p := New(s, &fakeCaptioner{text: "x"}, []Channel{tg}, nil, nil)

	require.NoError(t, p.Publish(context.Background(), a, news.ReasonInstant))

	// stale copy of the article still says unposted; the store refuses it
	err := p.Publish(context.Background(), a, news.ReasonNonUrgent)
	assert.ErrorIs(t, err, ErrAlreadyPosted)

	a.Posted = true
	assert.ErrorIs(t, p.Publish(context.Background(), a, news.ReasonNonUrgent), ErrAlreadyPosted)
	assert.Len(t, tg.sent, 1)
}

// orphanStore acts as if a post row already exists for every article while
// the posted flag was never written.
type orphanStore struct{ *recordingStore }

func (o orphanStore) InsertPost(context.Context, news.Post) (int64, error) {
	o.record("insert")
	return 0, storage.ErrAlreadyPosted
}

func TestPublishRepairsOrphanedPost(t *testing.T) {
	s, a := setup(t)
	rec := &recordingStore{Store: s}
	tg := &fakeChannel{name: storage.ChannelTelegram}

	p := New(orphanStore{rec}, &fakeCaptioner{text: "x"}, []Channel{tg}, nil, nil)
	err := p.Publish(context.Background(), a, news.ReasonNonUrgent)
	assert.ErrorIs(t, err, ErrAlreadyPosted)

	assert.Equal(t, []string{"insert", "mark"}, rec.calls)
	assert.Empty(t, tg.sent)

	stored, err := s.GetArticleByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Posted, "flag repaired so the article leaves the candidate pool")
}

func TestSelectChannels(t *testing.T) {
	tg := &fakeChannel{name: "telegram"}
	tw := &fakeChannel{name: "twitter"}

	assert.Equal(t, []Channel{tg}, SelectChannels(news.OutputTelegram, tg, tw))
	assert.Equal(t, []Channel{tw}, SelectChannels(news.OutputTwitter, tg, tw))
	assert.Equal(t, []Channel{tg, tw}, SelectChannels(news.OutputBoth, tg, tw))
	assert.Empty(t, SelectChannels(news.OutputNone, tg, tw))
	assert.Equal(t, []Channel{tg}, SelectChannels(news.OutputBoth, tg, nil))
}

type countingHits struct{ n int }

func (c *countingHits) RecordCacheHit() { c.n++ }

func TestCachingCaptioner(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory(0)
	defer mem.Close()

	inner := &fakeCaptioner{text: "cached"}
	hits := &countingHits{}
	c := NewCachingCaptioner(inner, mem, time.Hour, hits, nil)

	for i := 0; i < 3; i++ {
		got, err := c.Caption(ctx, "t", "body")
		require.NoError(t, err)
		assert.Equal(t, "cached", got)
	}
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 2, hits.n)

	_, err := c.Caption(ctx, "t", "other body")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingCaptionerSkipsEmptyAndErrors(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory(0)
	defer mem.Close()

	inner := &fakeCaptioner{err: errors.New("down")}
	c := NewCachingCaptioner(inner, mem, time.Hour, nil, nil)
	_, err := c.Caption(ctx, "t", "b")
	assert.Error(t, err)
	assert.Equal(t, 0, mem.Len())

	inner.err = nil
	_, err = c.Caption(ctx, "t", "b")
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Len())
}
