package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type FetchOutcome int

const (
	FetchChanged FetchOutcome = iota
	FetchUnchanged
	FetchFailed
)

// FetchResult is the tagged outcome of one conditional GET. Transport and
// protocol errors are folded into FetchFailed so the health tracker can
// account for them uniformly; Err carries the cause for logging only.
type FetchResult struct {
	Outcome      FetchOutcome
	Body         []byte
	ETag         string
	LastModified string
	Err          error
}

// feedSource is the fetching contract the registry and monitor consume.
type feedSource interface {
	Fetch(ctx context.Context, url string, etag string, lastModified string, force bool) *FetchResult
}

type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

func NewFetcher(userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// Fetch retrieves url, passing the stored validators unless force is set so
// the server can answer 304 without a body. Validators are persisted by the
// caller, never here.
func (f *Fetcher) Fetch(ctx context.Context, url string, etag string, lastModified string, force bool) *FetchResult {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &FetchResult{Outcome: FetchFailed, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if !force {
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		if lastModified != "" {
			req.Header.Set("If-Modified-Since", lastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &FetchResult{Outcome: FetchFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && !force {
		return &FetchResult{Outcome: FetchUnchanged}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchResult{Outcome: FetchFailed, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FetchResult{Outcome: FetchFailed, Err: err}
	}

	return &FetchResult{
		Outcome:      FetchChanged,
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
}
