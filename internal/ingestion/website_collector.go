package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/STRATINT/newsdesk/internal/models"
)

const (
	defaultItemSelector    = "article"
	defaultTitleSelector   = "h1, h2, h3"
	defaultLinkSelector    = "a[href]"
	defaultSummarySelector = "p"
)

var websiteDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// WebsiteCollector scrapes article listings from an HTML page using CSS selectors taken
// from the source config.
type WebsiteCollector struct {
	fetcher *HTTPFetcher
}

func NewWebsiteCollector(fetcher *HTTPFetcher) *WebsiteCollector {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil)
	}
	return &WebsiteCollector{fetcher: fetcher}
}

func (c *WebsiteCollector) Kind() models.SourceKind {
	return models.SourceKindWebsite
}

func (c *WebsiteCollector) Fetch(ctx context.Context, source models.Source) (*ItemStream, error) {
	base, err := url.Parse(source.URL)
	if err != nil {
		return nil, parseError(source.Name, fmt.Errorf("invalid source url: %w", err))
	}

	body, err := c.fetcher.Get(ctx, source.Name, source.URL, "text/html,application/xhtml+xml", nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, parseError(source.Name, err)
	}

	sel := websiteSelectors{
		item:    source.ConfigString("item_selector", defaultItemSelector),
		title:   source.ConfigString("title_selector", defaultTitleSelector),
		link:    source.ConfigString("link_selector", defaultLinkSelector),
		summary: source.ConfigString("summary_selector", defaultSummarySelector),
		date:    source.ConfigString("date_selector", ""),
	}

	nodes := doc.Find(sel.item)
	return NewItemStream(func(yield func(models.RawItem) bool) {
		nodes.EachWithBreak(func(_ int, node *goquery.Selection) bool {
			return yield(sel.extract(node, base))
		})
	}), nil
}

type websiteSelectors struct {
	item, title, link, summary, date string
}

func (s websiteSelectors) extract(node *goquery.Selection, base *url.URL) models.RawItem {
	item := models.RawItem{
		Title:   CleanText(node.Find(s.title).First().Text()),
		Content: CleanText(node.Find(s.summary).First().Text()),
	}

	link := node.Find(s.link).First()
	if link.Length() == 0 && goquery.NodeName(node) == "a" {
		link = node
	}
	if href, ok := link.Attr("href"); ok {
		item.URL = resolveLink(base, href)
	}
	if item.Title == "" {
		item.Title = CleanText(link.Text())
	}

	if s.date != "" {
		dateNode := node.Find(s.date).First()
		raw, ok := dateNode.Attr("datetime")
		if !ok {
			raw = dateNode.Text()
		}
		if t, ok := parseWebsiteDate(raw); ok {
			item.PublishedAt = &t
		}
	}

	return item
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func parseWebsiteDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range websiteDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
