package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/mmcdole/gofeed/rss"
)

// Fetcher retrieves a raw feed document over HTTP and normalizes it into a
// ParsedFeed. The format-specific gofeed parsers are used instead of the
// universal one because the pipeline needs link relations (hub, self,
// replies) and the RSS guid / Atom id distinction, which the flattened
// universal model discards.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

func NewFetcher(httpClient *http.Client, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Run fetches and parses the feed at url. Any transport, HTTP or parse
// failure is a fetch failure for this attempt.
func (f *Fetcher) Run(ctx context.Context, url string) (*ParsedFeed, error) {
	data, err := f.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return f.parse(data)
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func (f *Fetcher) parse(data []byte) (*ParsedFeed, error) {
	switch gofeed.DetectFeedType(bytes.NewReader(data)) {
	case gofeed.FeedTypeRSS:
		parsed, err := (&rss.Parser{}).Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse feed: %w", err)
		}
		return fromRSS(parsed), nil
	case gofeed.FeedTypeAtom:
		parsed, err := (&atom.Parser{}).Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse feed: %w", err)
		}
		return fromAtom(parsed), nil
	default:
		return nil, fmt.Errorf("unsupported feed format")
	}
}

func fromRSS(src *rss.Feed) *ParsedFeed {
	meta := Metadata{
		Title:           src.Title,
		Link:            src.Link,
		Description:     src.Description,
		Author:          src.ManagingEditor,
		Language:        src.Language,
		Published:       src.PubDate,
		Updated:         src.LastBuildDate,
		UpdatePeriod:    extensionValue(src.Extensions, "sy", "updatePeriod"),
		UpdateFrequency: extensionValue(src.Extensions, "sy", "updateFrequency"),
	}

	if src.Image != nil {
		meta.ImageURL = src.Image.URL
	}
	for _, category := range src.Categories {
		meta.Categories = append(meta.Categories, category.Value)
	}

	// WebSub hub discovery in RSS uses channel-level atom:link elements.
	for _, link := range extensionLinks(src.Extensions) {
		switch link.Rel {
		case "hub":
			if meta.PushHubURL == "" {
				meta.PushHubURL = link.Href
			}
		case "self":
			if meta.PushTopicURL == "" {
				meta.PushTopicURL = link.Href
			}
		}
	}
	meta.PushSupported = meta.PushHubURL != ""

	entries := make([]Entry, 0, len(src.Items))
	for _, item := range src.Items {
		entry := Entry{
			Link:        item.Link,
			Title:       item.Title,
			Description: item.Description,
			Author:      item.Author,
			Published:   item.PubDate,
			Content:     item.Content,
			Comments:    item.Comments,
		}
		if item.GUID != nil {
			entry.GUID = item.GUID.Value
		}
		for _, category := range item.Categories {
			entry.Categories = append(entry.Categories, category.Value)
		}
		for _, link := range extensionLinks(item.Extensions) {
			entry.Links = append(entry.Links, link)
		}
		entries = append(entries, entry)
	}

	return &ParsedFeed{
		Meta:    meta,
		Entries: entries,
		Version: "rss" + src.Version,
	}
}

func fromAtom(src *atom.Feed) *ParsedFeed {
	meta := Metadata{
		Title:       src.Title,
		Description: src.Subtitle,
		Language:    src.Language,
		ImageURL:    src.Logo,
		Updated:     src.Updated,
	}

	if len(src.Authors) > 0 && src.Authors[0] != nil {
		meta.Author = src.Authors[0].Name
	}
	for _, category := range src.Categories {
		if category != nil {
			meta.Categories = append(meta.Categories, category.Term)
		}
	}
	for _, link := range src.Links {
		if link == nil {
			continue
		}
		switch link.Rel {
		case "hub":
			if meta.PushHubURL == "" {
				meta.PushHubURL = link.Href
			}
		case "self":
			if meta.PushTopicURL == "" {
				meta.PushTopicURL = link.Href
			}
		case "alternate", "":
			if meta.Link == "" {
				meta.Link = link.Href
			}
		}
	}
	meta.PushSupported = meta.PushHubURL != ""

	entries := make([]Entry, 0, len(src.Entries))
	for _, item := range src.Entries {
		if item == nil {
			continue
		}
		entry := Entry{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Summary,
			Published:   item.Published,
			Updated:     item.Updated,
		}
		if len(item.Authors) > 0 && item.Authors[0] != nil {
			entry.Author = item.Authors[0].Name
		}
		if item.Content != nil {
			entry.Content = item.Content.Value
		}
		for _, category := range item.Categories {
			if category != nil {
				entry.Categories = append(entry.Categories, category.Term)
			}
		}
		for _, link := range item.Links {
			if link == nil {
				continue
			}
			entry.Links = append(entry.Links, EntryLink{Rel: link.Rel, Href: link.Href})
			if entry.Link == "" && (link.Rel == "alternate" || link.Rel == "") {
				entry.Link = link.Href
			}
		}
		entries = append(entries, entry)
	}

	return &ParsedFeed{
		Meta:    meta,
		Entries: entries,
		Version: "atom" + src.Version,
	}
}

// extensionValue returns the first value of a namespaced extension element,
// e.g. sy:updatePeriod.
func extensionValue(extensions ext.Extensions, space, name string) string {
	if els, ok := extensions[space][name]; ok && len(els) > 0 {
		return els[0].Value
	}
	return ""
}

// extensionLinks extracts atom:link elements embedded in an RSS document.
func extensionLinks(extensions ext.Extensions) []EntryLink {
	var links []EntryLink
	for _, el := range extensions["atom"]["link"] {
		links = append(links, EntryLink{
			Rel:  el.Attrs["rel"],
			Href: el.Attrs["href"],
		})
	}
	return links
}
