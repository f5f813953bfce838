package llm

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/sportsdesk/internal/news"
)

const promptTimeLayout = "2006-01-02 15:04:05"

// MaxCaptionContent bounds the article body sent for caption generation.
const MaxCaptionContent = 6000

// sentenceCutFloor is how many characters must precede the last sentence
// break before a clamped body is cut back to it.
const sentenceCutFloor = 1200

func classifyPrompt(req news.ClassifyRequest) string {
	return fmt.Sprintf(`
You are a sports news classifier. Given a news article (title + content), decide whether it is about association football (soccer), not American football or any other sport.
Then rate its proximity, freshness and impact.

STEP 1: Soccer relevance
Look for soccer-specific entities:
- Clubs: Manchester United, Real Madrid, Barcelona, Bayern Munich, Juventus, PSG, Arsenal, Liverpool, Chelsea, AC Milan, Inter, Dortmund, Atletico...
- Players: Lionel Messi, Cristiano Ronaldo, Kylian Mbappe, Erling Haaland, Mohamed Salah, Harry Kane...
- Competitions: Premier League, La Liga, Serie A, Bundesliga, Ligue 1, Champions League, Europa League, World Cup, Copa America, Euro, AFCON...
- Organizations: FIFA, UEFA, CAF, CONMEBOL, CONCACAF, AFC, FA...
Basketball, American football, hockey, baseball, fantasy football or horse racing are not relevant.

STEP 2: Proximity (0.0-1.0)
1.0 directly and fully about soccer; 0.7-0.9 mostly soccer with general sports context;
0.4-0.6 mentions soccer but mostly about something else; 0.1-0.3 very weak link; 0.0 not soccer.

STEP 3: Freshness (0-10)
10 breaking (hours ago, "today"); 7-9 same day or very recent; 4-6 one or two days old; 0-3 stale or timeless analysis.

STEP 4: Impact (0-10)
If soccer_relevance is false, impact is 0. Otherwise:
10 global headline (star transfer, World Cup or Champions League final, top-level injury, major FIFA/UEFA ruling);
8-9 big European league headline or major international match, or a superstar abroad;
6-7 important but less global (Big Five high-interest matches, famous names, big derbies);
4-5 smaller leagues, secondary tournaments; 1-3 niche, local, fantasy, betting; 0 not soccer.

Title: %s
Content: %s
current_datetime: %s
article_received_datetime: %s

Respond only with a JSON object:
{"soccer_relevance": true or false, "proximity": <0.0-1.0>, "freshness": <0-10>, "impact": <0-10>}
`, req.Title, req.ContentPrefix, formatTime(req.Now), formatTime(req.ReceivedAt))
}

func uniquenessPrompt(title string, history []string) string {
	return fmt.Sprintf(`
You are helping decide whether a news item is unique compared to items already posted today.

Current news:
%q

Previously posted items:
%s

Is the current news meaningfully different from the past items, or a duplicate or rewording of one of them?

Answer only in JSON:
{"uniqueness": 0 or 1}
`, title, strings.Join(history, "\n"))
}

func captionPrompt(title, content string) string {
	return fmt.Sprintf(`
You are an expert football journalist writing for a microblog.

Write one concise, high-impact post for the article below.
- Never exceed 250 characters.
- Newsworthy but engaging tone.
- At most one football emoji, optionally one or two hashtags at the end.
- Lead with the most important detail. No "Breaking:" unless it truly is.

TITLE: %s
CONTENT: %s

Respond ONLY with the post text.
`, title, clampContent(content))
}

// clampContent collapses whitespace and cuts long bodies, preferring a
// sentence boundary.
func clampContent(content string) string {
	content = strings.ReplaceAll(content, "\r", "")
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= MaxCaptionContent {
		return content
	}
	trimmed := string([]rune(content)[:MaxCaptionContent])
	if idx := strings.LastIndex(trimmed, ". "); idx >= 0 && utf8.RuneCountInString(trimmed[:idx]) > sentenceCutFloor {
		trimmed = trimmed[:idx+1]
	}
	return trimmed + "\n[TRUNCATED]"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(promptTimeLayout)
}
