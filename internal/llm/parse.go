package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/deusflow/sportsdesk/internal/news"
)

var ErrMalformed = errors.New("malformed oracle response")

// extractJSON returns the outermost {...} block of a model reply, ignoring
// markdown fences and chatter around it.
func extractJSON(raw string) ([]byte, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrMalformed, truncate(raw, 120))
	}
	return []byte(raw[start : end+1]), nil
}

type classification struct {
	Relevant  *bool    `json:"soccer_relevance"`
	Proximity *float64 `json:"proximity"`
	Freshness *float64 `json:"freshness"`
	Impact    *float64 `json:"impact"`
}

func parseClassification(raw string) (news.Classification, error) {
	data, err := extractJSON(raw)
	if err != nil {
		return news.Classification{}, err
	}
	var c classification
	if err := json.Unmarshal(data, &c); err != nil {
		return news.Classification{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if c.Proximity == nil || c.Freshness == nil || c.Impact == nil {
		return news.Classification{}, fmt.Errorf("%w: missing field in %s", ErrMalformed, data)
	}
	if *c.Proximity < 0 || *c.Proximity > 1 {
		return news.Classification{}, fmt.Errorf("%w: proximity %v out of range", ErrMalformed, *c.Proximity)
	}
	freshness, err := scale("freshness", *c.Freshness)
	if err != nil {
		return news.Classification{}, err
	}
	impact, err := scale("impact", *c.Impact)
	if err != nil {
		return news.Classification{}, err
	}

	out := news.Classification{Proximity: *c.Proximity, Freshness: freshness, Impact: impact}
	if c.Relevant != nil {
		out.Relevant = *c.Relevant
	}
	return out, nil
}

// scale accepts a whole number in [0, 10].
func scale(name string, v float64) (int, error) {
	if v != math.Trunc(v) || v < 0 || v > 10 {
		return 0, fmt.Errorf("%w: %s %v out of range", ErrMalformed, name, v)
	}
	return int(v), nil
}

func parseUniqueness(raw string) (int, error) {
	data, err := extractJSON(raw)
	if err != nil {
		return 0, err
	}
	var u struct {
		Uniqueness json.RawMessage `json:"uniqueness"`
	}
	if err := json.Unmarshal(data, &u); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch string(bytes.TrimSpace(u.Uniqueness)) {
	case "1", "1.0", "true", `"1"`:
		return 1, nil
	case "0", "0.0", "false", `"0"`:
		return 0, nil
	}
	return 0, fmt.Errorf("%w: uniqueness %s", ErrMalformed, u.Uniqueness)
}

func cleanCaption(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func truncate(s string, n int) string {
	return news.Prefix(s, n)
}
