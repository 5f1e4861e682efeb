package main

import (
	"context"
	"sync/atomic"
	"time"
)

// Monitor drives the poll cycle: one repeating timer, at most one cycle in
// flight, strictly sequential feed processing inside a cycle. Sequential
// processing is the rate-limiting mechanism for both the fetch targets and
// the delivery transport.
type Monitor struct {
	store      Datastore
	fetcher    feedSource
	dispatcher *Dispatcher
	health     *HealthTracker
	settings   *Settings

	quit    chan struct{}
	cycling atomic.Bool
	sleep   func(time.Duration)
}

func NewMonitor(store Datastore, fetcher feedSource, dispatcher *Dispatcher, health *HealthTracker, settings *Settings) *Monitor {
	return &Monitor{
		store:      store,
		fetcher:    fetcher,
		dispatcher: dispatcher,
		health:     health,
		settings:   settings,
		quit:       make(chan struct{}),
		sleep:      time.Sleep,
	}
}

func (monitor *Monitor) Run() {
	go monitor.RunLoop()
}

func (monitor *Monitor) RunLoop() {
	// Let the transport loop settle before the first cycle.
	select {
	case <-monitor.quit:
		return
	case <-time.After(monitor.settings.StartupDelay()):
	}
	monitor.RunCycle()

	ticker := time.NewTicker(monitor.settings.PollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-monitor.quit:
			return
		case <-ticker.C:
			monitor.RunCycle()
		}
	}
}

// Stop tears the scheduler down. No cycle runs afterwards.
func (monitor *Monitor) Stop() {
	close(monitor.quit)
}

// RunCycle executes one full poll cycle unless one is already in flight; an
// overrunning cycle causes ticks to be skipped, never queued.
func (monitor *Monitor) RunCycle() {
	if !monitor.cycling.CompareAndSwap(false, true) {
		logger.Warnf("previous cycle still running, skipping tick")
		return
	}
	defer monitor.cycling.Store(false)

	polling, err := monitor.store.ListPollingEnabled()
	if err != nil {
		logger.Errorf("cycle aborted: %v", err)
		return
	}
	if len(polling) == 0 {
		return
	}

	logger.Infof("poll cycle started (%d subscriber(s) polling)", len(polling))
	ctx := context.Background()
	monitor.processNews(ctx, polling)
	monitor.processFeeds(ctx, polling)
	logger.Infof("poll cycle completed")
}

// processNews checks the shared news source once per cycle and broadcasts
// fresh headlines to every opted-in subscriber and registered group. With no
// targets at all, the fetch is skipped entirely.
func (monitor *Monitor) processNews(ctx context.Context, polling []*Preferences) {
	var subscribers []int64
	for _, prefs := range polling {
		if prefs.NewsEnabled {
			subscribers = append(subscribers, prefs.OwnerId)
		}
	}
	groups, err := monitor.store.ListAllGroups()
	if err != nil {
		logger.Errorf("news: list groups: %v", err)
		return
	}
	if len(subscribers) == 0 && len(groups) == 0 {
		return
	}

	result := monitor.fetcher.Fetch(ctx, monitor.settings.NewsURL, "", "", false)
	if result.Outcome != FetchChanged {
		logger.Warnf("news fetch failed: %v", result.Err)
		return
	}
	items := ParseItems(result.Body)
	if len(items) == 0 {
		logger.Warnf("news feed yielded no items")
		return
	}
	for _, item := range items {
		item.Image = stripQuery(item.Image)
	}

	cursor, err := monitor.store.GetNewsCursor()
	if err != nil {
		logger.Errorf("news cursor: %v", err)
		return
	}
	if cursor == nil {
		cursor = &NewsCursor{LastSeenId: items[0].Id, UpdatedAt: time.Now().UTC()}
		if err := monitor.store.SaveNewsCursor(cursor); err != nil {
			logger.Errorf("init news cursor: %v", err)
		}
		return
	}

	fresh, newest := NewItems(items, cursor.LastSeenId, 0)
	if len(fresh) == 0 {
		if newest != cursor.LastSeenId {
			cursor.LastSeenId = newest
			cursor.UpdatedAt = time.Now().UTC()
			if err := monitor.store.SaveNewsCursor(cursor); err != nil {
				logger.Errorf("save news cursor: %v", err)
			}
		}
		return
	}

	targets := make([]*Target, 0, len(subscribers)+len(groups))
	for _, id := range subscribers {
		targets = append(targets, &Target{ChatId: id})
	}
	for _, group := range groups {
		targets = append(targets, &Target{ChatId: group.GroupId, Group: group})
	}

	sent := monitor.dispatcher.Dispatch(oldestFirst(fresh), targets, monitor.settings.NewsTitle)

	for _, target := range targets {
		if target.Group != nil && target.Delivered {
			if err := monitor.store.SaveGroup(target.Group); err != nil {
				logger.Errorf("save group %s: %v", target.Group.Id, err)
			}
		}
	}

	cursor.LastSeenId = newest
	cursor.UpdatedAt = time.Now().UTC()
	if err := monitor.store.SaveNewsCursor(cursor); err != nil {
		logger.Errorf("save news cursor: %v", err)
	}
	logger.Infof("sent %d headline(s) to %d target(s)", sent, len(targets))
}

func (monitor *Monitor) processFeeds(ctx context.Context, polling []*Preferences) {
	for _, prefs := range polling {
		if !prefs.FeedsEnabled {
			continue
		}
		feeds, err := monitor.store.ListFeeds(prefs.OwnerId)
		if err != nil {
			logger.Errorf("list feeds for %d: %v", prefs.OwnerId, err)
			continue
		}
		for _, feed := range feeds {
			if !feed.Enabled {
				continue
			}
			monitor.processFeed(ctx, feed)
			monitor.sleep(monitor.settings.FeedDelay())
		}
	}
}

// processFeed runs one feed through fetch, delta and dispatch, then updates
// its cursor. Failures touch only the health counters; they never abort the
// cycle or reach sibling feeds.
func (monitor *Monitor) processFeed(ctx context.Context, feed *Feed) {
	cursor, err := monitor.store.GetCursor(feed.Id)
	if err != nil {
		logger.Errorf("cursor for %q: %v", feed.Title, err)
		return
	}

	var etag, lastModified string
	if cursor != nil {
		etag, lastModified = cursor.ETag, cursor.LastModified
	}

	result := monitor.fetcher.Fetch(ctx, feed.URL, etag, lastModified, false)
	now := time.Now().UTC()

	switch result.Outcome {
	case FetchFailed:
		logger.Warnf("fetch %q: %v", feed.Title, result.Err)
		if cursor == nil {
			return
		}
		cursor.Checks++
		cursor.LastCheckedAt = now
		state := monitor.health.RecordFailure(feed, cursor)
		if state == Degraded {
			logger.Infof("feed %q degraded (%d/%d failures)", feed.Title, cursor.ConsecutiveFailures, monitor.health.threshold)
		}
		if err := monitor.store.SaveCursor(cursor); err != nil {
			logger.Errorf("save cursor for %q: %v", feed.Title, err)
		}
		return

	case FetchUnchanged:
		if cursor == nil {
			return
		}
		// validators and the last-seen id stay exactly as they are
		cursor.Checks++
		cursor.Successes++
		cursor.LastCheckedAt = now
		monitor.health.RecordSuccess(cursor)
		if err := monitor.store.SaveCursor(cursor); err != nil {
			logger.Errorf("save cursor for %q: %v", feed.Title, err)
		}
		return
	}

	items := ParseItems(result.Body)

	if cursor == nil {
		// First successful check: establish the boundary, deliver nothing.
		if len(items) == 0 {
			return
		}
		cursor = &FeedCursor{
			FeedId:        feed.Id,
			LastSeenId:    items[0].Id,
			LastCheckedAt: now,
			ETag:          result.ETag,
			LastModified:  result.LastModified,
			Checks:        1,
			Successes:     1,
			CreatedAt:     now,
		}
		if err := monitor.store.SaveCursor(cursor); err != nil {
			logger.Errorf("init cursor for %q: %v", feed.Title, err)
			return
		}
		logger.Infof("cursor initialized for %q", feed.Title)
		return
	}

	cursor.Checks++
	cursor.Successes++
	cursor.LastCheckedAt = now
	cursor.ETag = result.ETag
	cursor.LastModified = result.LastModified
	monitor.health.RecordSuccess(cursor)

	fresh, newest := NewItems(items, cursor.LastSeenId, monitor.settings.MaxItemsPerCheck)
	if newest != "" {
		cursor.LastSeenId = newest
	}

	if len(fresh) > 0 {
		targets := []*Target{{ChatId: feed.OwnerId}}
		sent := monitor.dispatcher.Dispatch(oldestFirst(fresh), targets, feed.Title)
		cursor.ItemsDelivered += int64(sent)
		logger.Infof("delivered %d new item(s) from %q", sent, feed.Title)
	}

	if err := monitor.store.SaveCursor(cursor); err != nil {
		logger.Errorf("save cursor for %q: %v", feed.Title, err)
	}
}
