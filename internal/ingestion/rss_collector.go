package ingestion

import (
	"bytes"
	"context"
	"strings"

	"github.com/STRATINT/newsdesk/internal/models"
	"github.com/mmcdole/gofeed"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8"

// RSSCollector reads RSS, Atom and JSON feeds.
type RSSCollector struct {
	fetcher *HTTPFetcher
}

// NewRSSCollector creates a feed collector that downloads through fetcher.
func NewRSSCollector(fetcher *HTTPFetcher) *RSSCollector {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil)
	}
	return &RSSCollector{fetcher: fetcher}
}

func (c *RSSCollector) Kind() models.SourceKind {
	return models.SourceKindRSS
}

func (c *RSSCollector) Fetch(ctx context.Context, source models.Source) (*ItemStream, error) {
	body, err := c.fetcher.Get(ctx, source.Name, source.URL, feedAccept, nil)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, parseError(source.Name, err)
	}

	return NewItemStream(func(yield func(models.RawItem) bool) {
		for _, entry := range feed.Items {
			if entry == nil {
				continue
			}
			if !yield(feedItemToRaw(entry)) {
				return
			}
		}
	}), nil
}

func feedItemToRaw(entry *gofeed.Item) models.RawItem {
	content := entry.Content
	if strings.TrimSpace(content) == "" {
		content = entry.Description
	}

	item := models.RawItem{
		URL:      strings.TrimSpace(entry.Link),
		Title:    CleanText(entry.Title),
		Content:  CleanText(content),
		Metadata: map[string]any{},
	}

	if entry.Author != nil && entry.Author.Name != "" {
		item.Author = entry.Author.Name
	} else if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		item.Author = entry.Authors[0].Name
	}

	if entry.PublishedParsed != nil {
		t := entry.PublishedParsed.UTC()
		item.PublishedAt = &t
	} else if entry.UpdatedParsed != nil {
		t := entry.UpdatedParsed.UTC()
		item.PublishedAt = &t
	}

	if entry.GUID != "" {
		item.Metadata["guid"] = entry.GUID
	}
	if len(entry.Categories) > 0 {
		item.Metadata["categories"] = entry.Categories
	}
	if len(entry.Enclosures) > 0 {
		urls := make([]string, 0, len(entry.Enclosures))
		for _, enc := range entry.Enclosures {
			if enc != nil && enc.URL != "" {
				urls = append(urls, enc.URL)
			}
		}
		if len(urls) > 0 {
			item.Metadata["enclosures"] = urls
		}
	}

	return item
}
