package main

import "fmt"

type HealthState int

const (
	Healthy HealthState = iota
	Degraded
	Disabled
)

func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Disabled:
		return "disabled"
	}
	return "unknown"
}

// Notifier delivers out-of-band notices to a feed's owner.
type Notifier interface {
	NotifyOwner(ownerId int64, text string)
}

// HealthTracker applies circuit-breaker transitions to a feed's cursor.
// Crossing the threshold is a single transition that disables the feed and
// notifies the owner exactly once; it is the only failure-path mutation of
// feed state.
type HealthTracker struct {
	store     Datastore
	notifier  Notifier
	threshold int
}

func NewHealthTracker(store Datastore, notifier Notifier, threshold int) *HealthTracker {
	return &HealthTracker{store: store, notifier: notifier, threshold: threshold}
}

func (t *HealthTracker) State(cursor *FeedCursor) HealthState {
	switch {
	case cursor.ConsecutiveFailures >= t.threshold:
		return Disabled
	case cursor.ConsecutiveFailures > 0:
		return Degraded
	}
	return Healthy
}

// RecordFailure counts one failed cycle and returns the resulting state.
// The disable-and-notify side effect fires exactly when the count reaches
// the threshold.
func (t *HealthTracker) RecordFailure(feed *Feed, cursor *FeedCursor) HealthState {
	cursor.ConsecutiveFailures++
	state := t.State(cursor)
	if state == Disabled && cursor.ConsecutiveFailures == t.threshold {
		t.trip(feed, cursor)
	}
	return state
}

// RecordSuccess resets the count on any non-failure cycle, whether or not it
// produced new items. A disabled feed stays disabled; re-enabling is an
// explicit owner action.
func (t *HealthTracker) RecordSuccess(cursor *FeedCursor) {
	cursor.ConsecutiveFailures = 0
}

func (t *HealthTracker) trip(feed *Feed, cursor *FeedCursor) {
	feed.Enabled = false
	if err := t.store.SaveFeed(feed); err != nil {
		logger.Errorf("disable feed %s: %v", feed.Id, err)
		return
	}
	logger.Warnf("feed %q auto-disabled after %d consecutive failures", feed.Title, cursor.ConsecutiveFailures)

	if t.notifier != nil {
		t.notifier.NotifyOwner(feed.OwnerId, fmt.Sprintf(
			"Feed %q has failed %d times in a row and has been disabled.\n\nCheck that the URL is still valid, then re-enable it.",
			feed.Title, cursor.ConsecutiveFailures))
	}
}
