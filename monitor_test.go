package main

import (
	"testing"
	"time"
)

func newTestMonitor(store Datastore, fetcher feedSource, sink *fakeSink) *Monitor {
	settings := testSettings()
	dispatcher := NewDispatcher(sink, settings.SendDelay())
	dispatcher.sleep = func(time.Duration) {}
	health := NewHealthTracker(store, sink, settings.FailureThreshold)
	monitor := NewMonitor(store, fetcher, dispatcher, health, settings)
	monitor.sleep = func(time.Duration) {}
	return monitor
}

func savePrefs(t *testing.T, store Datastore, ownerId int64, polling, feeds, news bool) {
	t.Helper()
	err := store.SavePreferences(&Preferences{
		OwnerId:        ownerId,
		PollingEnabled: polling,
		FeedsEnabled:   feeds,
		NewsEnabled:    news,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func saveFeed(t *testing.T, store Datastore, feed *Feed) {
	t.Helper()
	if err := store.SaveFeed(feed); err != nil {
		t.Fatal(err)
	}
}

func saveCursor(t *testing.T, store Datastore, cursor *FeedCursor) {
	t.Helper()
	if err := store.SaveCursor(cursor); err != nil {
		t.Fatal(err)
	}
}

func TestCycleNoActiveSubscribersFetchesNothing(t *testing.T) {
	store := newTestStore()
	savePrefs(t, store, 1, false, true, true)
	fetcher := newFakeFetcher()
	monitor := newTestMonitor(store, fetcher, newFakeSink())

	monitor.RunCycle()

	if fetcher.total() != 0 {
		t.Errorf("fetches = %d, want 0", fetcher.total())
	}
}

func TestNewsSkippedWithoutTargets(t *testing.T) {
	store := newTestStore()
	savePrefs(t, store, 1, true, false, false)
	fetcher := newFakeFetcher()
	monitor := newTestMonitor(store, fetcher, newFakeSink())

	monitor.RunCycle()

	if n := fetcher.count(monitor.settings.NewsURL); n != 0 {
		t.Errorf("news fetches = %d, want 0 with no subscribers or groups", n)
	}
}

func TestNewsFirstRunInitializesCursorWithoutDelivery(t *testing.T) {
	store := newTestStore()
	savePrefs(t, store, 1, true, false, true)
	sink := newFakeSink()
	fetcher := newFakeFetcher()
	monitor := newTestMonitor(store, fetcher, sink)
	fetcher.set(monitor.settings.NewsURL, &FetchResult{Outcome: FetchChanged, Body: rssBody("N2", "N1")})

	monitor.RunCycle()

	cursor, err := store.GetNewsCursor()
	if err != nil || cursor == nil {
		t.Fatalf("news cursor missing: %v", err)
	}
	if cursor.LastSeenId != "N2" {
		t.Errorf("cursor = %q, want N2", cursor.LastSeenId)
	}
	if sends := sink.sentTo(); len(sends) != 0 {
		t.Errorf("sends = %v, want none on the first check", sends)
	}
}

func TestNewsBroadcastToSubscribersAndGroups(t *testing.T) {
	store := newTestStore()
	savePrefs(t, store, 1, true, false, true)
	savePrefs(t, store, 2, true, false, false) // polling but not opted into news
	group := &GroupTarget{Id: "group_1_1", OwnerId: 1, GroupId: -100, Title: "Anime Club"}
	if err := store.SaveGroup(group); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveNewsCursor(&NewsCursor{LastSeenId: "B"}); err != nil {
		t.Fatal(err)
	}

	sink := newFakeSink()
	fetcher := newFakeFetcher()
	monitor := newTestMonitor(store, fetcher, sink)
	fetcher.set(monitor.settings.NewsURL, &FetchResult{Outcome: FetchChanged, Body: rssBody("D", "C", "B", "A")})

	monitor.RunCycle()

	sends := sink.sentTo()
	if len(sends) != 4 {
		t.Fatalf("sends = %d, want C and D to subscriber and group", len(sends))
	}
	for i, want := range []sentMessage{
		{chatId: 1, itemId: "C"},
		{chatId: -100, itemId: "C"},
		{chatId: 1, itemId: "D"},
		{chatId: -100, itemId: "D"},
	} {
		if sends[i].chatId != want.chatId || sends[i].itemId != want.itemId {
			t.Errorf("send[%d] = %+v, want %+v", i, sends[i], want)
		}
	}
	for _, send := range sends {
		if send.chatId == 2 {
			t.Errorf("subscriber without the news toggle received %v", send)
		}
		if send.feedTitle != monitor.settings.NewsTitle {
			t.Errorf("feed title = %q, want %q", send.feedTitle, monitor.settings.NewsTitle)
		}
	}

	cursor, _ := store.GetNewsCursor()
	if cursor.LastSeenId != "D" {
		t.Errorf("cursor = %q, want D", cursor.LastSeenId)
	}
	stored, _ := store.GetGroup(1, -100)
	if stored == nil || stored.LastDeliveredAt.IsZero() {
		t.Error("group delivery timestamp not persisted")
	}
}

func TestNewsGroupsServedWithoutSubscribers(t *testing.T) {
	store := newTestStore()
	savePrefs(t, store, 1, true, false, false)
	group := &GroupTarget{Id: "group_1_1", OwnerId: 1, GroupId: -100}
	if err := store.SaveGroup(group); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveNewsCursor(&NewsCursor{LastSeenId: "A"}); err != nil {
		t.Fatal(err)
	}

	sink := newFakeSink()
	fetcher := newFakeFetcher()
	monitor := newTestMonitor(store, fetcher, sink)
	fetcher.set(monitor.settings.NewsURL, &FetchResult{Outcome: FetchChanged, Body: rssBody("B", "A")})

	monitor.RunCycle()

	sends := sink.sentTo()
	if len(sends) != 1 || sends[0].chatId != -100 || sends[0].itemId != "B" {
		t.Errorf("sends = %v, want only B to the group", sends)
	}
}

func TestFeedFirstCheckInitializesCursor(t *testing.T) {
	store := newTestStore()
	savePrefs(t, store, 1, true, true, false)
	feed := &Feed{Id: "feed_1_1", OwnerId: 1, URL: "https://example.com/rss", Title: "Example", Enabled: true}
	saveFeed(t, store, feed)

	sink := newFakeSink()
	fetcher := newFakeFetcher()
	fetcher.set(feed.URL, &FetchResult{Outcome: FetchChanged, Body: rssBody("B", "A"), ETag: `"v1"`})
	monitor := newTestMonitor(store, fetcher, sink)

	monitor.RunCycle()

	cursor, err := store.GetCursor(feed.Id)
	if err != nil || cursor == nil {
		t.Fatalf("cursor missing: %v", err)
	}
	if cursor.LastSeenId != "B" {
		t.Errorf("cursor = %q, want B", cursor.LastSeenId)
	}
	if cursor.ETag != `"v1"` {
		t.Errorf("etag = %q, want the response validator", cursor.ETag)
	}
	if cursor.Checks != 1 || cursor.Successes != 1 {
		t.Errorf("counters = %d/%d, want 1/1", cursor.Successes, cursor.Checks)
	}
	if sends := sink.sentTo(); len(sends) != 0 {
		t.Errorf("sends = %v, want none on the first check", sends)
	}
}

func TestFeedDeliversNewItemsOldestFirst(t *testing.T) {
	store := newTestStore()
	savePrefs(t, store, 1, true, true, false)
	feed := &Feed{Id: "feed_1_1", OwnerId: 1, URL: "https://example.com/rss", Title: "Example", Enabled: true}
	saveFeed(t, store, feed)
	saveCursor(t, store, &FeedCursor{FeedId: feed.Id, LastSeenId: "B", ETag: `"v1"`, Checks: 5, Successes: 5})

	sink := newFakeSink()
	fetcher := newFakeFetcher()
	fetcher.set(feed.URL, &FetchResult{Outcome: FetchChanged, Body: rssBody("D", "C", "B", "A"), ETag: `"v2"`})
	monitor := newTestMonitor(store, fetcher, sink)

	monitor.RunCycle()

	if got := fetcher.etags[feed.URL]; got != `"v1"` {
		t.Errorf("fetch used etag %q, want the stored validator", got)
	}

	sends := sink.sentTo()
	if len(sends) != 2 || sends[0].itemId != "C" || sends[1].itemId != "D" {
		t.Fatalf("sends = %v, want C then D", sends)
	}
	if sends[0].chatId != feed.OwnerId {
		t.Errorf("delivered to %d, want owner %d", sends[0].chatId, feed.OwnerId)
	}

	cursor, _ := store.GetCursor(feed.Id)
	if cursor.LastSeenId != "D" {
		t.Errorf("cursor = %q, want D", cursor.LastSeenId)
	}
	if cursor.ETag != `"v2"` {
		t.Errorf("etag = %q, want rotated to the new validator", cursor.ETag)
	}
	if cursor.ItemsDelivered != 2 {
		t.Errorf("items delivered = %d, want 2", cursor.ItemsDelivered)
	}
	if cursor.Checks != 6 || cursor.Successes != 6 {
		t.Errorf("counters = %d/%d, want 6/6", cursor.Successes, cursor.Checks)
	}
}

func TestFeedUnchangedKeepsCursorAndValidators(t *testing.T) {
	store := newTestStore()
	savePrefs(t, store, 1, true, true, false)
	feed := &Feed{Id: "feed_1_1", OwnerId: 1, URL: "https://example.com/rss", Title: "Example", Enabled: true}
	saveFeed(t, store, feed)
	saveCursor(t, store, &FeedCursor{FeedId: feed.Id, LastSeenId: "B", ETag: `"v1"`, ConsecutiveFailures: 2})

	sink := newFakeSink()
	fetcher := newFakeFetcher()
	fetcher.set(feed.URL, &FetchResult{Outcome: FetchUnchanged})
	monitor := newTestMonitor(store, fetcher, sink)

	monitor.RunCycle()

	cursor, _ := store.GetCursor(feed.Id)
	if cursor.LastSeenId != "B" {
		t.Errorf("cursor = %q, want untouched", cursor.LastSeenId)
	}
	if cursor.ETag != `"v1"` {
		t.Errorf("etag = %q, want untouched", cursor.ETag)
	}
	if cursor.ConsecutiveFailures != 0 {
		t.Errorf("failures = %d, want reset on success", cursor.ConsecutiveFailures)
	}
	if cursor.Checks != 1 || cursor.Successes != 1 {
		t.Errorf("counters = %d/%d, want 1/1", cursor.Successes, cursor.Checks)
	}
	if sends := sink.sentTo(); len(sends) != 0 {
		t.Errorf("sends = %v, want none", sends)
	}
}

func TestFeedBreakerDisablesAfterThreshold(t *testing.T) {
	store := newTestStore()
	savePrefs(t, store, 1, true, true, false)
	feed := &Feed{Id: "feed_1_1", OwnerId: 1, URL: "https://example.com/rss", Title: "Example", Enabled: true}
	saveFeed(t, store, feed)
	saveCursor(t, store, &FeedCursor{FeedId: feed.Id, LastSeenId: "A"})

	sink := newFakeSink()
	fetcher := newFakeFetcher()
	fetcher.set(feed.URL, &FetchResult{Outcome: FetchFailed, Err: errTest})
	monitor := newTestMonitor(store, fetcher, sink)

	for i := 0; i < 3; i++ {
		monitor.RunCycle()
	}

	stored, _ := store.GetFeed(feed.Id)
	if stored.Enabled {
		t.Fatal("feed still enabled after three failed cycles")
	}
	if sink.noticeCount() != 1 {
		t.Errorf("notices = %d, want exactly 1", sink.noticeCount())
	}
	cursor, _ := store.GetCursor(feed.Id)
	if cursor.ConsecutiveFailures != 3 {
		t.Errorf("failures = %d, want 3", cursor.ConsecutiveFailures)
	}

	// A disabled feed is not fetched anymore.
	before := fetcher.count(feed.URL)
	monitor.RunCycle()
	if after := fetcher.count(feed.URL); after != before {
		t.Errorf("disabled feed fetched again (%d -> %d)", before, after)
	}
}

func TestFeedFailureBeforeFirstSuccessLeavesNoCursor(t *testing.T) {
	store := newTestStore()
	savePrefs(t, store, 1, true, true, false)
	feed := &Feed{Id: "feed_1_1", OwnerId: 1, URL: "https://example.com/rss", Title: "Example", Enabled: true}
	saveFeed(t, store, feed)

	fetcher := newFakeFetcher()
	fetcher.set(feed.URL, &FetchResult{Outcome: FetchFailed, Err: errTest})
	monitor := newTestMonitor(store, fetcher, newFakeSink())

	monitor.RunCycle()

	cursor, err := store.GetCursor(feed.Id)
	if err != nil {
		t.Fatal(err)
	}
	if cursor != nil {
		t.Errorf("cursor = %+v, want none before the first successful check", cursor)
	}
}

func TestCycleSingleFlight(t *testing.T) {
	store := newTestStore()
	savePrefs(t, store, 1, true, false, true)

	fetcher := newFakeFetcher()
	fetcher.set(DefaultSettings().NewsURL, &FetchResult{Outcome: FetchChanged, Body: rssBody("A")})
	fetcher.block = make(chan struct{})
	fetcher.started = make(chan struct{})
	started := fetcher.started
	monitor := newTestMonitor(store, fetcher, newFakeSink())

	done := make(chan struct{})
	go func() {
		monitor.RunCycle()
		close(done)
	}()
	<-started

	// An overlapping tick is skipped, not queued.
	monitor.RunCycle()
	if fetcher.total() != 1 {
		t.Errorf("fetches = %d, want 1 while a cycle is in flight", fetcher.total())
	}

	close(fetcher.block)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("blocked cycle never finished")
	}
}

func TestStopPreventsFurtherCycles(t *testing.T) {
	store := newTestStore()
	fetcher := newFakeFetcher()
	monitor := newTestMonitor(store, fetcher, newFakeSink())

	monitor.Run()
	monitor.Stop()

	select {
	case <-monitor.quit:
	case <-time.After(time.Second):
		t.Fatal("quit channel not closed")
	}
}
