package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/sportsdesk/internal/news"
	"github.com/deusflow/sportsdesk/internal/ratelimit"
)

type fakeCompleter struct {
	replies []string
	err     error
	prompts []Request
}

func (f *fakeCompleter) Complete(_ context.Context, req Request) (string, error) {
	f.prompts = append(f.prompts, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no reply queued")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    news.Classification
		wantErr bool
	}{
		{
			name: "plain",
			raw:  `{"soccer_relevance": true, "proximity": 0.9, "freshness": 8, "impact": 7}`,
			want: news.Classification{Relevant: true, Proximity: 0.9, Freshness: 8, Impact: 7},
		},
		{
			name: "fenced with chatter",
			raw:  "Sure!\n```json\n{\"soccer_relevance\": false, \"proximity\": 0, \"freshness\": 3.0, \"impact\": 0}\n```",
			want: news.Classification{Freshness: 3},
		},
		{
			name: "relevance missing is tolerated",
			raw:  `{"proximity": 1, "freshness": 10, "impact": 10}`,
			want: news.Classification{Proximity: 1, Freshness: 10, Impact: 10},
		},
		{name: "missing impact", raw: `{"proximity": 1, "freshness": 10}`, wantErr: true},
		{name: "proximity out of range", raw: `{"proximity": 1.5, "freshness": 1, "impact": 1}`, wantErr: true},
		{name: "impact out of range", raw: `{"proximity": 1, "freshness": 1, "impact": 11}`, wantErr: true},
		{name: "fractional freshness", raw: `{"proximity": 1, "freshness": 7.5, "impact": 1}`, wantErr: true},
		{name: "not json", raw: "I cannot help with that", wantErr: true},
		{name: "wrong types", raw: `{"proximity": "high", "freshness": 1, "impact": 1}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassification(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUniqueness(t *testing.T) {
	for raw, want := range map[string]int{
		`{"uniqueness": 1}`:        1,
		`{"uniqueness": 0}`:        0,
		`{"uniqueness": true}`:     1,
		"```{\"uniqueness\":0}```": 0,
	} {
		got, err := parseUniqueness(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{`{"uniqueness": 2}`, `{}`, `nope`} {
		_, err := parseUniqueness(raw)
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestClampContent(t *testing.T) {
	short := "one  two\r\nthree"
	assert.Equal(t, "one two three", clampContent(short))

	long := strings.Repeat("word. ", 2000)
	got := clampContent(long)
	assert.True(t, strings.HasSuffix(got, "[TRUNCATED]"))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxCaptionContent+len("\n[TRUNCATED]"))
}

func TestClampContentCountsRunes(t *testing.T) {
	// two-byte runes: the last sentence break sits past 1200 bytes but
	// before 1200 characters, so the hard cut is kept
	sentence := strings.Repeat("ø", 700) + ". "
	long := sentence + strings.Repeat("å", MaxCaptionContent)
	got := clampContent(long)

	body := strings.TrimSuffix(got, "\n[TRUNCATED]")
	assert.Equal(t, MaxCaptionContent, utf8.RuneCountInString(body))

	// a break past 1200 characters still trims to the sentence end
	sentence = strings.Repeat("ø", sentenceCutFloor+10) + ". "
	got = clampContent(sentence + strings.Repeat("å", MaxCaptionContent))
	body = strings.TrimSuffix(got, "\n[TRUNCATED]")
	assert.Equal(t, sentenceCutFloor+11, utf8.RuneCountInString(body))
	assert.True(t, strings.HasSuffix(body, "ø."))
}

func TestOracleClassifyPrompt(t *testing.T) {
	fc := &fakeCompleter{replies: []string{`{"soccer_relevance": true, "proximity": 1, "freshness": 9, "impact": 8}`}}
	o := NewOracle(fc, nil, nil)

	received := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	c, err := o.Classify(context.Background(), news.ClassifyRequest{
		Title:         "Haaland scores twice",
		ContentPrefix: "City won 2-0",
		Now:           received.Add(time.Hour),
		ReceivedAt:    received,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, c.Impact)

	require.Len(t, fc.prompts, 1)
	assert.True(t, fc.prompts[0].JSON)
	assert.Contains(t, fc.prompts[0].Prompt, "Haaland scores twice")
	assert.Contains(t, fc.prompts[0].Prompt, "article_received_datetime: 2026-04-01 09:30:00")
	assert.Contains(t, fc.prompts[0].Prompt, "current_datetime: 2026-04-01 10:30:00")
}

func TestOracleUniquenessIncludesHistory(t *testing.T) {
	fc := &fakeCompleter{replies: []string{`{"uniqueness": 0}`}}
	o := NewOracle(fc, nil, nil)

	u, err := o.Uniqueness(context.Background(), "Messi signs", []string{"first post", "second post"})
	require.NoError(t, err)
	assert.Equal(t, 0, u)
	assert.Contains(t, fc.prompts[0].Prompt, "first post\nsecond post")
}

func TestOracleCaption(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"  \"Big win for City ⚽\"  "}}
	o := NewOracle(fc, nil, nil)

	got, err := o.Caption(context.Background(), "t", "c")
	require.NoError(t, err)
	assert.Equal(t, "Big win for City ⚽", got)
	assert.False(t, fc.prompts[0].JSON)
}

func TestOracleBackendError(t *testing.T) {
	o := NewOracle(&fakeCompleter{err: errors.New("timeout")}, nil, nil)
	_, err := o.Classify(context.Background(), news.ClassifyRequest{})
	assert.Error(t, err)
}

func TestOracleBudgetExhausted(t *testing.T) {
	fc := &fakeCompleter{replies: []string{`{"uniqueness": 1}`, `{"uniqueness": 1}`}}
	o := NewOracle(fc, ratelimit.New("test", 0, 1, nil), nil)

	_, err := o.Uniqueness(context.Background(), "a", nil)
	require.NoError(t, err)
	_, err = o.Uniqueness(context.Background(), "b", nil)
	assert.ErrorIs(t, err, ratelimit.ErrBudgetExhausted)
	assert.Len(t, fc.prompts, 1)
}
