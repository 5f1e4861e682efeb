package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var errTest = errors.New("connection refused")

func testSettings() *Settings {
	settings := DefaultSettings()
	settings.StartupDelaySeconds = 0
	settings.SendDelayMs = 0
	settings.FeedDelaySeconds = 0
	return settings
}

func newTestStore() *MemCache {
	store := &MemCache{}
	store.Reload()
	return store
}

// rssBody builds a minimal RSS document with one item per id, in the given
// (newest first) order.
func rssBody(ids ...string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Test Feed</title><link>https://example.com</link>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<item><title>Item %s</title><link>https://example.com/%s</link><guid>%s</guid></item>`, id, id, id)
	}
	b.WriteString(`</channel></rss>`)
	return []byte(b.String())
}

// fakeFetcher serves canned results per URL and records how it was called.
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]*FetchResult
	calls   map[string]int
	etags   map[string]string
	forced  map[string]bool
	block   chan struct{} // when set, Fetch waits until closed
	started chan struct{} // closed on the first Fetch
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: make(map[string]*FetchResult),
		calls:   make(map[string]int),
		etags:   make(map[string]string),
		forced:  make(map[string]bool),
	}
}

func (f *fakeFetcher) set(url string, result *FetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[url] = result
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, etag string, lastModified string, force bool) *FetchResult {
	f.mu.Lock()
	f.calls[url]++
	f.etags[url] = etag
	f.forced[url] = force
	started := f.started
	f.started = nil
	block := f.block
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if result, ok := f.results[url]; ok {
		return result
	}
	return &FetchResult{Outcome: FetchFailed, Err: errors.New("no canned response")}
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type sentMessage struct {
	chatId    int64
	itemId    string
	feedTitle string
	text      string
}

// fakeSink records deliveries and can fail or rate limit specific chats.
type fakeSink struct {
	mu        sync.Mutex
	sends     []sentMessage
	texts     []sentMessage
	notices   []sentMessage
	statuses  map[int64]DeliveryStatus
	retryOnce map[int64]time.Duration
	probes    map[int64]DeliveryStatus
	titles    map[int64]string
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		statuses:  make(map[int64]DeliveryStatus),
		retryOnce: make(map[int64]time.Duration),
		probes:    make(map[int64]DeliveryStatus),
		titles:    make(map[int64]string),
	}
}

func (s *fakeSink) SendItem(chatId int64, item *Item, feedTitle string) DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delay, ok := s.retryOnce[chatId]; ok {
		delete(s.retryOnce, chatId)
		return DeliveryResult{Status: DeliveryTransientFailure, RetryAfter: delay, Err: errors.New("rate limited")}
	}
	if status, ok := s.statuses[chatId]; ok && status != DeliveryOK {
		return DeliveryResult{Status: status, Err: errors.New("send refused")}
	}
	s.sends = append(s.sends, sentMessage{chatId: chatId, itemId: item.Id, feedTitle: feedTitle})
	return DeliveryResult{Status: DeliveryOK}
}

func (s *fakeSink) SendText(chatId int64, text string) DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.statuses[chatId]; ok && status != DeliveryOK {
		return DeliveryResult{Status: status, Err: errors.New("send refused")}
	}
	s.texts = append(s.texts, sentMessage{chatId: chatId, text: text})
	return DeliveryResult{Status: DeliveryOK}
}

func (s *fakeSink) NotifyOwner(ownerId int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, sentMessage{chatId: ownerId, text: text})
}

func (s *fakeSink) Probe(chatId int64) DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.probes[chatId]; ok && status != DeliveryOK {
		return DeliveryResult{Status: status, Err: errors.New("probe refused")}
	}
	return DeliveryResult{Status: DeliveryOK}
}

func (s *fakeSink) ChatTitle(chatId int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if title, ok := s.titles[chatId]; ok {
		return title
	}
	return fmt.Sprintf("Group %d", chatId)
}

func (s *fakeSink) sentTo() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sends))
	copy(out, s.sends)
	return out
}

func (s *fakeSink) noticeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notices)
}
