package indexer

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/testutil"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
  <channel>
    <title>idx</title>
    <item>
      <title>UFC.299.Main.Card.1080p.WEB-DL.H264-GRP</title>
      <guid>http://idx/details/1</guid>
      <link>http://idx/dl/1.torrent</link>
      <comments>http://idx/details/1</comments>
      <pubDate>Sat, 09 Mar 2024 23:00:00 +0000</pubDate>
      <enclosure url="http://idx/dl/1.torrent" length="1073741824" type="application/x-bittorrent"/>
      <torznab:attr name="size" value="2147483648"/>
      <torznab:attr name="seeders" value="50"/>
      <torznab:attr name="peers" value="65"/>
      <torznab:attr name="infohash" value="A94A8FE5CCB19BA61C4C0873D391E987982FBBD3"/>
    </item>
    <item>
      <title></title>
      <link>http://idx/dl/malformed.torrent</link>
    </item>
    <item>
      <title>NFL.Week.15.Pack.720p.HDTV</title>
      <link>http://idx/dl/2.nzb</link>
      <enclosure url="http://idx/dl/2.nzb" length="536870912" type="application/x-nzb"/>
    </item>
  </channel>
</rss>`

func TestParseResponse(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	results, err := ParseResponse([]byte(sampleFeed), 7, "idx1", now)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	// The malformed item (no title) is skipped; the others survive.
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	r := results[0]
	if r.Title != "UFC.299.Main.Card.1080p.WEB-DL.H264-GRP" {
		t.Errorf("title = %q", r.Title)
	}
	if r.Size != 2147483648 {
		t.Errorf("size = %d, want the torznab attr over the enclosure", r.Size)
	}
	if r.Seeders != 50 || r.Leechers != 15 {
		t.Errorf("seeders/leechers = %d/%d, want 50/15 (peers - seeders)", r.Seeders, r.Leechers)
	}
	if r.InfoHash != "a94a8fe5ccb19ba61c4c0873d391e987982fbbd3" {
		t.Errorf("infohash = %q, want lowercased", r.InfoHash)
	}
	if r.Protocol != ProtocolTorrent {
		t.Errorf("protocol = %s", r.Protocol)
	}
	if r.PublishDate.IsZero() {
		t.Error("pubDate should parse")
	}
	if r.Score <= 0 {
		t.Error("transport score should be positive for a fresh seeded 1080p release")
	}

	if results[1].Protocol != ProtocolUsenet {
		t.Errorf("nzb enclosure should infer usenet, got %s", results[1].Protocol)
	}
}

func TestSearch_BuildsTorznabQuery(t *testing.T) {
	var captured url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	client := NewClient(10*time.Second, testutil.NopLogger())
	ix := &store.Indexer{ID: 1, Name: "idx1", BaseURL: server.URL, APIPath: "/api", APIKey: "k123", Categories: "5060"}

	results, err := client.Search(t.Context(), ix, "UFC 299", 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}

	if captured.Get("t") != "search" || captured.Get("q") != "UFC 299" {
		t.Errorf("query params = %v", captured)
	}
	if captured.Get("apikey") != "k123" || captured.Get("limit") != "50" {
		t.Errorf("apikey/limit = %v", captured)
	}
	if captured.Get("cat") != "5060" {
		t.Errorf("cat = %q, want the configured category", captured.Get("cat"))
	}
	if captured.Get("extended") != "1" {
		t.Error("extended=1 should always be requested")
	}
}

func TestFetchRSS_AlwaysAppliesDefaultCategories(t *testing.T) {
	var captured url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	client := NewClient(10*time.Second, testutil.NopLogger())
	ix := &store.Indexer{ID: 1, Name: "idx1", BaseURL: server.URL, APIPath: "/api", Categories: "2000,3000"}

	if _, err := client.FetchRSS(t.Context(), ix, 100); err != nil {
		t.Fatalf("FetchRSS: %v", err)
	}
	if captured.Get("cat") != DefaultCategories {
		t.Errorf("RSS cat = %q, want forced default %q", captured.Get("cat"), DefaultCategories)
	}
	if captured.Get("q") != "" {
		t.Errorf("RSS should carry no query, got %q", captured.Get("q"))
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status     int
		retryAfter string
		wantKind   ErrorKind
	}{
		{http.StatusTooManyRequests, "300", KindRateLimited},
		{http.StatusUnauthorized, "", KindAuth},
		{http.StatusForbidden, "", KindAuth},
		{http.StatusInternalServerError, "", KindTransient},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tt.retryAfter != "" {
				w.Header().Set("Retry-After", tt.retryAfter)
			}
			w.WriteHeader(tt.status)
		}))

		client := NewClient(10*time.Second, testutil.NopLogger())
		ix := &store.Indexer{ID: 1, Name: "idx1", BaseURL: server.URL, APIPath: "/api"}

		_, err := client.Search(t.Context(), ix, "q", 10)
		ie, ok := AsError(err)
		if !ok {
			t.Fatalf("HTTP %d: expected a classified error, got %v", tt.status, err)
		}
		if ie.Kind != tt.wantKind {
			t.Errorf("HTTP %d: kind = %s, want %s", tt.status, ie.Kind, tt.wantKind)
		}
		if tt.wantKind == KindRateLimited && ie.RetryAfter != 5*time.Minute {
			t.Errorf("retryAfter = %v, want 5m", ie.RetryAfter)
		}
		server.Close()
	}
}

func TestMalformedXMLIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not xml <<<"))
	}))
	defer server.Close()

	client := NewClient(10*time.Second, testutil.NopLogger())
	ix := &store.Indexer{ID: 1, Name: "idx1", BaseURL: server.URL, APIPath: "/api"}

	_, err := client.Search(t.Context(), ix, "q", 10)
	ie, ok := AsError(err)
	if !ok || ie.Kind != KindMalformed {
		t.Errorf("expected malformed classification, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("120"); got != 2*time.Minute {
		t.Errorf("seconds form = %v, want 2m", got)
	}
	httpDate := time.Now().Add(10 * time.Minute).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(httpDate)
	if got < 9*time.Minute || got > 10*time.Minute {
		t.Errorf("HTTP-date form = %v, want ~10m", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("empty = %v, want 0", got)
	}
}

func TestZeroSeedersIncludedButScoredLower(t *testing.T) {
	now := time.Now().UTC()
	zero := TransportScore(0, 1080, now, now)
	some := TransportScore(50, 1080, now, now)
	if zero <= 0 {
		t.Error("zero-seeder releases still score on quality and recency")
	}
	if zero >= some {
		t.Errorf("zero seeders (%d) must rank below seeded (%d)", zero, some)
	}
}
