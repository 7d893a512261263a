package ingestion

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/STRATINT/newsdesk/internal/models"
	"github.com/tidwall/gjson"
)

const socialTitleRunes = 120

// SocialCollector reads a Mastodon-compatible JSON timeline: an array of statuses.
type SocialCollector struct {
	fetcher *HTTPFetcher
}

func NewSocialCollector(fetcher *HTTPFetcher) *SocialCollector {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil)
	}
	return &SocialCollector{fetcher: fetcher}
}

func (c *SocialCollector) Kind() models.SourceKind {
	return models.SourceKindSocial
}

func (c *SocialCollector) Fetch(ctx context.Context, source models.Source) (*ItemStream, error) {
	header := http.Header{}
	token := source.ConfigString("bearer_token", "")
	if env := source.ConfigString("bearer_token_env", ""); token == "" && env != "" {
		token = os.Getenv(env)
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	body, err := c.fetcher.Get(ctx, source.Name, source.URL, "application/json", header)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, parseError(source.Name, errors.New("timeline is not valid JSON"))
	}
	timeline := gjson.ParseBytes(body)
	if !timeline.IsArray() {
		return nil, parseError(source.Name, errors.New("timeline is not a JSON array"))
	}

	statuses := timeline.Array()
	return NewItemStream(func(yield func(models.RawItem) bool) {
		for _, status := range statuses {
			if !yield(statusToRaw(status)) {
				return
			}
		}
	}), nil
}

func statusToRaw(status gjson.Result) models.RawItem {
	if reblog := status.Get("reblog"); reblog.IsObject() {
		status = reblog
	}

	text := CleanText(status.Get("content").String())
	title := CleanText(status.Get("card.title").String())
	if title == "" {
		title = Excerpt(text, socialTitleRunes)
	}

	author := status.Get("account.display_name").String()
	if strings.TrimSpace(author) == "" {
		author = status.Get("account.acct").String()
	}

	item := models.RawItem{
		URL:     strings.TrimSpace(status.Get("url").String()),
		Title:   title,
		Content: text,
		Author:  author,
		Metadata: map[string]any{
			"status_id": status.Get("id").String(),
		},
	}
	if item.URL == "" {
		item.URL = status.Get("uri").String()
	}

	if created := status.Get("created_at").String(); created != "" {
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			t = t.UTC()
			item.PublishedAt = &t
		}
	}

	if tags := status.Get("tags.#.name").Array(); len(tags) > 0 {
		names := make([]string, 0, len(tags))
		for _, tag := range tags {
			names = append(names, tag.String())
		}
		item.Metadata["hashtags"] = names
	}

	return item
}
