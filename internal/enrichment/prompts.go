package enrichment

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const maxPromptContentRunes = 6000

const systemPrompt = `You are a news desk editor. You receive one news article and respond with ONLY a JSON object, no markdown, no text around it:
{
  "summary": "two or three factual sentences, at most 400 characters, in the article's language",
  "tags": ["3 to 6 short lowercase topic tags"]
}

Rules:
- Use only facts stated in the article. Do not add context from your own knowledge.
- Keep names and titles exactly as the article writes them.
- Tags are single words or short phrases such as "elections", "central banks", "climate".`

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func buildUserPrompt(req EnrichRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", req.Source.Name)
	if req.Source.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.Source.Language)
	}
	fmt.Fprintf(&b, "URL: %s\n", req.Item.URL)
	if req.Item.PublishedAt != nil {
		fmt.Fprintf(&b, "Published: %s\n", req.Item.PublishedAt.Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&b, "Title: %s\n\n", req.Item.Title)

	content := []rune(req.Item.Content)
	if len(content) > maxPromptContentRunes {
		content = content[:maxPromptContentRunes]
	}
	if len(content) == 0 {
		b.WriteString("(no article body, summarize from the title)")
	} else {
		b.WriteString(string(content))
	}
	return b.String()
}

// parseEnrichment decodes the model's JSON answer, tolerating a surrounding code fence.
func parseEnrichment(raw string) (Enrichment, error) {
	raw = strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	var out Enrichment
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Enrichment{}, fmt.Errorf("decode enrichment response: %w", err)
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" {
		return Enrichment{}, fmt.Errorf("enrichment response has no summary")
	}

	tags := out.Tags[:0]
	for _, tag := range out.Tags {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			tags = append(tags, tag)
		}
	}
	out.Tags = tags
	return out, nil
}
