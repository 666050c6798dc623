package indexer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/parser"
)

// DefaultCategories is the sport-TV Newznab category set applied when an
// indexer has none configured. RSS fetches always apply it so unrelated
// categories never enter the release cache.
const DefaultCategories = "5060,5070"

const (
	defaultUserAgent = "Sportarr/1.0"
	maxResponseBytes = 8 * 1024 * 1024
)

// Client performs Torznab/Newznab searches and RSS fetches. Per-indexer
// request pacing is enforced here with one rate limiter per indexer id.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger

	mu     sync.Mutex
	pacers map[int64]*rate.Limiter
}

// NewClient creates an indexer client. timeout is the global per-request
// deadline (spec default 100s).
func NewClient(timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 100 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "indexer-client").Logger(),
		pacers:     make(map[int64]*rate.Limiter),
	}
}

// Search issues one t=search query against an indexer.
func (c *Client) Search(ctx context.Context, ix *store.Indexer, query string, maxResults int) ([]SearchResult, error) {
	return c.fetch(ctx, ix, query, maxResults)
}

// FetchRSS fetches the indexer's recent-release feed. The default category
// filter always applies, even when the indexer has its own configuration.
func (c *Client) FetchRSS(ctx context.Context, ix *store.Indexer, maxResults int) ([]SearchResult, error) {
	return c.fetch(ctx, ix, "", maxResults)
}

func (c *Client) fetch(ctx context.Context, ix *store.Indexer, query string, maxResults int) ([]SearchResult, error) {
	if err := c.pace(ctx, ix); err != nil {
		return nil, &Error{Kind: KindTransient, Err: err}
	}

	uri, err := c.buildURL(ix, query, maxResults)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Err: err}
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/xml,text/xml,application/rss+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{
			Kind:       KindRateLimited,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("indexer %s rate limited", ix.Name),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{
			Kind:       KindAuth,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("indexer %s rejected credentials", ix.Name),
		}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &Error{
			Kind:       KindTransient,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("indexer %s returned HTTP %d: %s", ix.Name, resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Kind: KindTransient, Err: err}
	}

	results, err := ParseResponse(payload, ix.ID, ix.Name, time.Now())
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Err: err}
	}

	c.logger.Debug().
		Str("indexer", ix.Name).
		Str("query", query).
		Int("results", len(results)).
		Msg("Indexer fetch completed")

	return results, nil
}

func (c *Client) buildURL(ix *store.Indexer, query string, maxResults int) (string, error) {
	base := strings.TrimRight(ix.BaseURL, "/") + ix.APIPath
	uri, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid indexer URL %q: %w", base, err)
	}

	params := uri.Query()
	params.Set("t", "search")
	if query != "" {
		params.Set("q", query)
	}

	categories := ix.Categories
	if categories == "" || query == "" {
		// RSS always applies the default filter.
		categories = DefaultCategories
	}
	params.Set("cat", categories)

	if ix.APIKey != "" {
		params.Set("apikey", ix.APIKey)
	}
	if maxResults > 0 {
		params.Set("limit", strconv.Itoa(maxResults))
	}
	// Some providers only include infohash/seeders/size in extended output.
	params.Set("extended", "1")

	uri.RawQuery = params.Encode()
	return uri.String(), nil
}

// pace waits for the indexer's declared minimum request interval.
func (c *Client) pace(ctx context.Context, ix *store.Indexer) error {
	if ix.RequestDelayMs <= 0 {
		return nil
	}

	c.mu.Lock()
	limiter, ok := c.pacers[ix.ID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Duration(ix.RequestDelayMs)*time.Millisecond), 1)
		c.pacers[ix.ID] = limiter
	}
	c.mu.Unlock()

	return limiter.Wait(ctx)
}

// parseRetryAfter accepts seconds or an HTTP date, per RFC 9110.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Torznab/Newznab response structures.

type torznabResponse struct {
	Channel torznabChannel `xml:"channel"`
}

type torznabChannel struct {
	Items []torznabItem `xml:"item"`
}

type torznabItem struct {
	Title     string           `xml:"title"`
	GUID      string           `xml:"guid"`
	Link      string           `xml:"link"`
	Comments  string           `xml:"comments"`
	PubDate   string           `xml:"pubDate"`
	Enclosure torznabEnclosure `xml:"enclosure"`
	Attrs     []torznabAttr    `xml:"attr"`
}

type torznabEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ParseResponse decodes an RSS-shaped indexer response. Items missing their
// required fields are skipped individually; the rest are kept.
func ParseResponse(payload []byte, indexerID int64, indexerName string, now time.Time) ([]SearchResult, error) {
	var rss torznabResponse
	if err := xml.Unmarshal(payload, &rss); err != nil {
		return nil, fmt.Errorf("invalid indexer XML: %w", err)
	}

	results := make([]SearchResult, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		r, ok := itemToResult(item, indexerID, indexerName, now)
		if !ok {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

func itemToResult(item torznabItem, indexerID int64, indexerName string, now time.Time) (SearchResult, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return SearchResult{}, false
	}

	downloadURL := item.Link
	if downloadURL == "" {
		downloadURL = item.Enclosure.URL
	}
	if downloadURL == "" {
		return SearchResult{}, false
	}

	guid := item.GUID
	if guid == "" {
		guid = downloadURL
	}

	attrs := make(map[string]string, len(item.Attrs))
	for _, attr := range item.Attrs {
		key := strings.ToLower(strings.TrimSpace(attr.Name))
		if key == "" {
			continue
		}
		if _, exists := attrs[key]; exists {
			continue
		}
		attrs[key] = strings.TrimSpace(attr.Value)
	}

	size := parseI64(attrs["size"])
	if size <= 0 && item.Enclosure.Length > 0 {
		size = item.Enclosure.Length
	}

	seeders := parseInt(attrs["seeders"])
	leechers := parseInt(attrs["leechers"])
	if leechers == 0 {
		if peers := parseInt(attrs["peers"]); peers > seeders {
			leechers = peers - seeders
		}
	}

	protocol := ProtocolTorrent
	if item.Enclosure.Type == "application/x-nzb" || strings.Contains(downloadURL, ".nzb") {
		protocol = ProtocolUsenet
	}

	publishDate := parsePubDate(item.PubDate)
	parsed := parser.ParseTitle(title)

	return SearchResult{
		GUID:        guid,
		Title:       title,
		DownloadURL: downloadURL,
		InfoURL:     item.Comments,
		Size:        size,
		PublishDate: publishDate,
		Seeders:     seeders,
		Leechers:    leechers,
		InfoHash:    strings.ToLower(attrs["infohash"]),
		Protocol:    protocol,
		IndexerID:   indexerID,
		IndexerName: indexerName,
		Score:       TransportScore(seeders, parsed.Quality.Resolution, publishDate, now),
	}, true
}

func parseInt(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return v
}

func parseI64(raw string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parsePubDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
