package enrichment

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

const mockSummaryRunes = 200

var (
	hashtagPattern  = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

type topicKeywords struct {
	topic    string
	keywords []string
}

// Checked in order, specific to general.
var topics = []topicKeywords{
	{"technology", []string{"software", "artificial intelligence", " ai ", "cyber", "startup", "chip", "smartphone"}},
	{"climate", []string{"climate", "emissions", "wildfire", "drought", "heatwave", "renewable"}},
	{"health", []string{"health", "hospital", "vaccine", "virus", "disease", "medical"}},
	{"science", []string{"scientist", "research", "study", "space", "nasa", "telescope"}},
	{"conflict", []string{"war", "military", "troops", "missile", "ceasefire", "attack"}},
	{"economy", []string{"economy", "inflation", "market", "trade", "bank", "gdp", "stocks"}},
	{"politics", []string{"election", "parliament", "minister", "president", "government", "vote"}},
	{"sports", []string{"match", "league", "championship", "tournament", "olympic", "goal"}},
}

// MockEnricher is a rule-based enricher used when no API key is configured.
type MockEnricher struct{}

// NewMockEnricher creates a rule-based enricher that makes no network calls.
func NewMockEnricher() *MockEnricher {
	return &MockEnricher{}
}

// Enrich summarizes with the leading sentences of the content and tags with hashtags
// plus a keyword-inferred topic.
func (m *MockEnricher) Enrich(ctx context.Context, req EnrichRequest) (Enrichment, error) {
	if err := ctx.Err(); err != nil {
		return Enrichment{}, err
	}

	text := strings.TrimSpace(req.Item.Content)
	if text == "" {
		text = strings.TrimSpace(req.Item.Title)
	}

	var tags []string
	for _, match := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tags = append(tags, strings.ToLower(match[1]))
	}
	if topic := inferTopic(req.Item.Title + " " + text); topic != "" {
		tags = append(tags, topic)
	}

	return Enrichment{Summary: leadSummary(text), Tags: tags}, nil
}

func leadSummary(text string) string {
	var b strings.Builder
	for _, sentence := range sentencePattern.FindAllString(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if b.Len() > 0 && utf8.RuneCountInString(b.String())+1+utf8.RuneCountInString(sentence) > mockSummaryRunes {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
	}

	summary := b.String()
	if summary == "" {
		summary = text
	}
	if runes := []rune(summary); len(runes) > mockSummaryRunes {
		summary = strings.TrimSpace(string(runes[:mockSummaryRunes])) + "..."
	}
	return summary
}

func inferTopic(text string) string {
	lower := " " + strings.ToLower(text) + " "
	for _, t := range topics {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t.topic
			}
		}
	}
	return ""
}
