// Package feedsource downloads a remote GTFS static feed (a zip archive)
// before internal/feedloader parses it, grounded on Nobina-go-trafiklab's
// use of github.com/nobina/go-requester as a thin retry/timeout wrapper
// around net/http for an external API client.
package feedsource

import (
	"context"
	"fmt"

	"github.com/nobina/go-requester"
)

// Source fetches one operator's GTFS zip over HTTP.
type Source struct {
	client   *requester.Client
	operator string
	url      string
}

// New builds a Source for the given operator's feed URL. url is
// passed straight through to requester.New, which every caller in the
// pack treats as the scheme+host prefix later joined with WithPath.
func New(operator, url string) (*Source, error) {
	client, err := requester.New(url)
	if err != nil {
		return nil, fmt.Errorf("feedsource: build requester client for %q: %w", operator, err)
	}
	return &Source{client: client, operator: operator, url: url}, nil
}

// Fetch downloads the feed's zip bytes. ctx is accepted to satisfy
// feedrefresh.Fetcher and for future cancellation support, but
// go-requester's Do takes only RequestOptions (see Nobina-go-trafiklab/
// departures.go), so it is not threaded into the call itself.
func (s *Source) Fetch(ctx context.Context) ([]byte, error) {
	resp, err := s.client.Do(
		requester.WithMethod("GET"),
		requester.WithPath(""),
	)
	if err != nil {
		return nil, fmt.Errorf("feedsource: fetch %s (%s): %w", s.operator, s.url, err)
	}

	body, err := resp.Bytes()
	if err != nil {
		return nil, fmt.Errorf("feedsource: read response body for %s: %w", s.operator, err)
	}
	return body, nil
}

// Operator returns the namespacing tag feedloader.LoadFeed expects.
func (s *Source) Operator() string {
	return s.operator
}
