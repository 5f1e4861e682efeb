package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProbeSink is the slice of the transport the registry needs for target
// validation and chat metadata.
type ProbeSink interface {
	Sink
	Probe(chatId int64) DeliveryResult
	ChatTitle(chatId int64) string
}

// Registry owns the durable records: feeds and their cursors, group targets
// and subscriber preferences. All UI glue goes through it; operations return
// a human-readable reason alongside the outcome.
type Registry struct {
	store    Datastore
	fetcher  feedSource
	sink     ProbeSink
	settings *Settings
}

func NewRegistry(store Datastore, fetcher feedSource, sink ProbeSink, settings *Settings) *Registry {
	return &Registry{store: store, fetcher: fetcher, sink: sink, settings: settings}
}

// Preferences returns the subscriber's toggles, creating the record with
// everything off on first access.
func (r *Registry) Preferences(ownerId int64) (*Preferences, error) {
	prefs, err := r.store.GetPreferences(ownerId)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		prefs = &Preferences{OwnerId: ownerId}
		if err := r.store.SavePreferences(prefs); err != nil {
			return nil, err
		}
	}
	return prefs, nil
}

// TogglePolling flips the master switch and returns the new state.
func (r *Registry) TogglePolling(ownerId int64) (bool, error) {
	return r.toggle(ownerId, func(prefs *Preferences) *bool { return &prefs.PollingEnabled })
}

func (r *Registry) ToggleFeeds(ownerId int64) (bool, error) {
	return r.toggle(ownerId, func(prefs *Preferences) *bool { return &prefs.FeedsEnabled })
}

func (r *Registry) ToggleNews(ownerId int64) (bool, error) {
	return r.toggle(ownerId, func(prefs *Preferences) *bool { return &prefs.NewsEnabled })
}

func (r *Registry) toggle(ownerId int64, field func(*Preferences) *bool) (bool, error) {
	prefs, err := r.Preferences(ownerId)
	if err != nil {
		return false, err
	}
	flag := field(prefs)
	*flag = !*flag
	if err := r.store.SavePreferences(prefs); err != nil {
		return false, err
	}
	return *flag, nil
}

// Feeds lists the owner's feeds sorted by title.
func (r *Registry) Feeds(ownerId int64) ([]*Feed, error) {
	feeds, err := r.store.ListFeeds(ownerId)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(feeds, func(i, j int) bool {
		return feeds[i].Title < feeds[j].Title
	})
	return feeds, nil
}

// RegisterFeed validates url with a real fetch before persisting anything.
// The cursor starts at the newest identifier so the first poll cycle
// delivers nothing.
func (r *Registry) RegisterFeed(ctx context.Context, ownerId int64, url string, title string) (bool, string) {
	if !isValidURL(url) {
		return false, "That doesn't look like a valid URL."
	}
	existing, err := r.store.FindFeed(ownerId, url)
	if err != nil {
		return false, "Storage error, try again later."
	}
	if existing != nil {
		return false, "This feed URL is already subscribed."
	}

	result := r.fetcher.Fetch(ctx, url, "", "", true)
	if result.Outcome != FetchChanged {
		return false, fetchFailureReason(result.Err)
	}
	items := ParseItems(result.Body)
	if len(items) == 0 {
		return false, "Not a valid RSS/Atom feed: no items found."
	}

	now := time.Now().UTC()
	feed := &Feed{
		Id:        fmt.Sprintf("feed_%d_%d", ownerId, now.UnixNano()),
		OwnerId:   ownerId,
		URL:       url,
		Title:     truncate(title, r.settings.MaxTitleLength),
		Enabled:   true,
		CreatedAt: now,
	}
	if err := r.store.SaveFeed(feed); err != nil {
		return false, "Storage error, try again later."
	}
	cursor := &FeedCursor{
		FeedId:        feed.Id,
		LastSeenId:    items[0].Id,
		LastCheckedAt: now,
		ETag:          result.ETag,
		LastModified:  result.LastModified,
		CreatedAt:     now,
	}
	if err := r.store.SaveCursor(cursor); err != nil {
		return false, "Storage error, try again later."
	}

	logger.Infof("feed %q registered for %d (%d items)", feed.Title, ownerId, len(items))
	return true, fmt.Sprintf("Subscribed to %s. Found %d items; only new ones will be delivered.", feed.Title, len(items))
}

// RemoveFeed deletes the feed and its cursor.
func (r *Registry) RemoveFeed(ownerId int64, feedId string) (bool, string) {
	feed, err := r.ownedFeed(ownerId, feedId)
	if err != nil {
		return false, "Feed not found."
	}
	if err := r.store.DeleteFeed(feed.Id); err != nil {
		return false, "Storage error, try again later."
	}
	if err := r.store.DeleteCursor(feed.Id); err != nil {
		logger.Errorf("delete cursor %s: %v", feed.Id, err)
	}
	logger.Infof("feed %q removed by %d", feed.Title, ownerId)
	return true, fmt.Sprintf("Feed %s removed.", feed.Title)
}

// SetFeedEnabled flips a feed on or off. Enabling also resets the
// consecutive-failure count so a previously tripped feed starts clean.
func (r *Registry) SetFeedEnabled(ownerId int64, feedId string, enabled bool) (bool, string) {
	feed, err := r.ownedFeed(ownerId, feedId)
	if err != nil {
		return false, "Feed not found."
	}
	feed.Enabled = enabled
	if err := r.store.SaveFeed(feed); err != nil {
		return false, "Storage error, try again later."
	}
	if enabled {
		cursor, err := r.store.GetCursor(feed.Id)
		if err == nil && cursor != nil && cursor.ConsecutiveFailures != 0 {
			cursor.ConsecutiveFailures = 0
			if err := r.store.SaveCursor(cursor); err != nil {
				logger.Errorf("reset failures for %s: %v", feed.Id, err)
			}
		}
	}
	word := "disabled"
	if enabled {
		word = "enabled"
	}
	logger.Infof("feed %q %s by %d", feed.Title, word, ownerId)
	return true, fmt.Sprintf("Feed %s %s.", feed.Title, word)
}

// ForceCheck fetches the feed bypassing validators and returns the single
// newest item. Nothing is persisted: cursor, validators and counters stay
// untouched.
func (r *Registry) ForceCheck(ctx context.Context, ownerId int64, feedId string) (*Item, string) {
	feed, err := r.ownedFeed(ownerId, feedId)
	if err != nil {
		return nil, "Feed not found."
	}
	result := r.fetcher.Fetch(ctx, feed.URL, "", "", true)
	if result.Outcome != FetchChanged {
		return nil, fetchFailureReason(result.Err)
	}
	item := NewestItem(ParseItems(result.Body))
	if item == nil {
		return nil, "No items found in the feed."
	}
	return item, ""
}

// FeedStats renders the cursor's counters for the owner.
func (r *Registry) FeedStats(ownerId int64, feedId string) (string, error) {
	feed, err := r.ownedFeed(ownerId, feedId)
	if err != nil {
		return "", err
	}
	cursor, err := r.store.GetCursor(feed.Id)
	if err != nil {
		return "", err
	}

	status := "disabled"
	if feed.Enabled {
		status = "enabled"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\nURL: %s\n", feed.Title, status, feed.URL)
	if cursor == nil {
		b.WriteString("Never checked.")
		return b.String(), nil
	}
	fmt.Fprintf(&b, "Items received: %d\nConsecutive failures: %d\n", cursor.ItemsDelivered, cursor.ConsecutiveFailures)
	if cursor.Checks > 0 {
		rate := float64(cursor.Successes) / float64(cursor.Checks) * 100
		fmt.Fprintf(&b, "Success rate: %.1f%% (%d/%d checks)", rate, cursor.Successes, cursor.Checks)
	}
	return b.String(), nil
}

// RegisterGroup validates the group with a non-destructive probe send before
// anything is persisted. A probe the transport classifies as permanently
// unreachable rejects the registration outright.
func (r *Registry) RegisterGroup(ownerId int64, groupId int64) (bool, string) {
	existing, err := r.store.GetGroup(ownerId, groupId)
	if err != nil {
		return false, "Storage error, try again later."
	}
	if existing != nil {
		return false, "This group is already added."
	}

	probe := r.sink.Probe(groupId)
	switch probe.Status {
	case DeliveryPermanentFailure:
		return false, "The bot can't post in that group. Add the bot to the group first."
	case DeliveryTransientFailure:
		return false, "Could not validate the group, try again later."
	}

	now := time.Now().UTC()
	group := &GroupTarget{
		Id:      fmt.Sprintf("group_%d_%d", ownerId, now.UnixNano()),
		OwnerId: ownerId,
		GroupId: groupId,
		Title:   truncate(r.sink.ChatTitle(groupId), r.settings.MaxGroupTitleLength),
		AddedAt: now,
	}
	if err := r.store.SaveGroup(group); err != nil {
		return false, "Storage error, try again later."
	}
	logger.Infof("group %d registered for %d", groupId, ownerId)
	return true, fmt.Sprintf("Group %s added.", group.Title)
}

func (r *Registry) RemoveGroup(ownerId int64, groupDocId string) (bool, string) {
	groups, err := r.store.ListGroups(ownerId)
	if err != nil {
		return false, "Storage error, try again later."
	}
	for _, group := range groups {
		if group.Id == groupDocId {
			if err := r.store.DeleteGroup(group.Id); err != nil {
				return false, "Storage error, try again later."
			}
			logger.Infof("group %d removed by %d", group.GroupId, ownerId)
			return true, fmt.Sprintf("Group %s removed.", group.Title)
		}
	}
	return false, "Group not found."
}

// Groups lists the owner's registered groups, most recently added first.
func (r *Registry) Groups(ownerId int64) ([]*GroupTarget, error) {
	groups, err := r.store.ListGroups(ownerId)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].AddedAt.After(groups[j].AddedAt)
	})
	return groups, nil
}

func (r *Registry) ownedFeed(ownerId int64, feedId string) (*Feed, error) {
	feed, err := r.store.GetFeed(feedId)
	if err != nil {
		return nil, err
	}
	if feed == nil || feed.OwnerId != ownerId {
		return nil, fmt.Errorf("feed %s not found for %d", feedId, ownerId)
	}
	return feed, nil
}

func fetchFailureReason(err error) string {
	if err == nil {
		return "Feed validation failed."
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout"):
		return "Feed took too long to respond. Check the URL or try again later."
	case strings.Contains(msg, "connect") || strings.Contains(msg, "no such host"):
		return "Cannot reach the server. Check that the URL is correct."
	default:
		return fmt.Sprintf("Feed validation failed: %v", err)
	}
}
