// Package indexer implements the Torznab/Newznab client and the transport
// error taxonomy consumed by the health model.
package indexer

import (
	"errors"
	"fmt"
	"time"
)

// Protocol is the transfer protocol a release uses.
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
)

// ErrorKind classifies transport failures so callers can route them to the
// health model without matching strings.
type ErrorKind string

const (
	KindTransient   ErrorKind = "transient"
	KindRateLimited ErrorKind = "rateLimited"
	KindAuth        ErrorKind = "auth"
	KindMalformed   ErrorKind = "malformed"
)

// Error is a classified indexer transport error.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration // only for KindRateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("indexer request failed (%s, HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("indexer request failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a classified indexer error.
func AsError(err error) (*Error, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsRateLimited reports whether err is an HTTP-429 style rejection.
func IsRateLimited(err error) bool {
	ie, ok := AsError(err)
	return ok && ie.Kind == KindRateLimited
}

// SearchResult is one release returned by an indexer search or RSS fetch.
type SearchResult struct {
	GUID        string
	Title       string
	DownloadURL string
	InfoURL     string
	Size        int64
	PublishDate time.Time
	Seeders     int
	Leechers    int
	InfoHash    string
	Protocol    Protocol
	IndexerID   int64
	IndexerName string
	Score       int // transport-level score: seeders + quality + recency
}

// TransportScore computes the transport-side ranking used to break matcher
// ties: seeders dominate, with smaller bonuses for resolution and freshness.
func TransportScore(seeders, resolution int, publishDate, now time.Time) int {
	score := 0

	switch {
	case seeders >= 100:
		score += 100
	case seeders >= 20:
		score += 60
	case seeders >= 5:
		score += 30
	case seeders > 0:
		score += 10
	}

	switch {
	case resolution >= 2160:
		score += 40
	case resolution >= 1080:
		score += 30
	case resolution >= 720:
		score += 20
	case resolution > 0:
		score += 5
	}

	if !publishDate.IsZero() {
		age := now.Sub(publishDate)
		switch {
		case age < 24*time.Hour:
			score += 20
		case age < 7*24*time.Hour:
			score += 10
		}
	}

	return score
}
