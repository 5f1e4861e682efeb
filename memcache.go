package main

import (
	"sort"
	"sync"
)

// MemCache is a volatile Datastore backing development runs and the test
// suite. Records are copied in and out so callers see the same
// read-modify-write behavior a real document store gives them.
type MemCache struct {
	mu      sync.RWMutex
	prefs   map[int64]*Preferences
	feeds   map[string]*Feed
	cursors map[string]*FeedCursor
	groups  map[string]*GroupTarget
	news    *NewsCursor
}

func (c *MemCache) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefs = make(map[int64]*Preferences)
	c.feeds = make(map[string]*Feed)
	c.cursors = make(map[string]*FeedCursor)
	c.groups = make(map[string]*GroupTarget)
	c.news = nil
	return nil
}

func (c *MemCache) GetPreferences(ownerId int64) (*Preferences, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	prefs, ok := c.prefs[ownerId]
	if !ok {
		return nil, nil
	}
	clone := *prefs
	return &clone, nil
}

func (c *MemCache) SavePreferences(prefs *Preferences) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *prefs
	c.prefs[prefs.OwnerId] = &clone
	return nil
}

func (c *MemCache) ListPollingEnabled() ([]*Preferences, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	polling := make([]*Preferences, 0)
	for _, prefs := range c.prefs {
		if prefs.PollingEnabled {
			clone := *prefs
			polling = append(polling, &clone)
		}
	}
	sort.Slice(polling, func(i, j int) bool {
		return polling[i].OwnerId < polling[j].OwnerId
	})
	return polling, nil
}

func (c *MemCache) GetFeed(id string) (*Feed, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	feed, ok := c.feeds[id]
	if !ok {
		return nil, nil
	}
	clone := *feed
	return &clone, nil
}

func (c *MemCache) FindFeed(ownerId int64, url string) (*Feed, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, feed := range c.feeds {
		if feed.OwnerId == ownerId && feed.URL == url {
			clone := *feed
			return &clone, nil
		}
	}
	return nil, nil
}

func (c *MemCache) ListFeeds(ownerId int64) ([]*Feed, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	feeds := make([]*Feed, 0)
	for _, feed := range c.feeds {
		if feed.OwnerId == ownerId {
			clone := *feed
			feeds = append(feeds, &clone)
		}
	}
	sort.Slice(feeds, func(i, j int) bool {
		if feeds[i].CreatedAt.Equal(feeds[j].CreatedAt) {
			return feeds[i].Id < feeds[j].Id
		}
		return feeds[i].CreatedAt.Before(feeds[j].CreatedAt)
	})
	return feeds, nil
}

func (c *MemCache) SaveFeed(feed *Feed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *feed
	c.feeds[feed.Id] = &clone
	return nil
}

func (c *MemCache) DeleteFeed(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.feeds, id)
	return nil
}

func (c *MemCache) GetCursor(feedId string) (*FeedCursor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cursor, ok := c.cursors[feedId]
	if !ok {
		return nil, nil
	}
	clone := *cursor
	return &clone, nil
}

func (c *MemCache) SaveCursor(cursor *FeedCursor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *cursor
	c.cursors[cursor.FeedId] = &clone
	return nil
}

func (c *MemCache) DeleteCursor(feedId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cursors, feedId)
	return nil
}

func (c *MemCache) GetNewsCursor() (*NewsCursor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.news == nil {
		return nil, nil
	}
	clone := *c.news
	return &clone, nil
}

func (c *MemCache) SaveNewsCursor(cursor *NewsCursor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *cursor
	c.news = &clone
	return nil
}

func (c *MemCache) GetGroup(ownerId int64, groupId int64) (*GroupTarget, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, group := range c.groups {
		if group.OwnerId == ownerId && group.GroupId == groupId {
			clone := *group
			return &clone, nil
		}
	}
	return nil, nil
}

func (c *MemCache) ListGroups(ownerId int64) ([]*GroupTarget, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	groups := make([]*GroupTarget, 0)
	for _, group := range c.groups {
		if group.OwnerId == ownerId {
			clone := *group
			groups = append(groups, &clone)
		}
	}
	sortGroups(groups)
	return groups, nil
}

func (c *MemCache) ListAllGroups() ([]*GroupTarget, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	groups := make([]*GroupTarget, 0, len(c.groups))
	for _, group := range c.groups {
		clone := *group
		groups = append(groups, &clone)
	}
	sortGroups(groups)
	return groups, nil
}

func (c *MemCache) SaveGroup(group *GroupTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *group
	c.groups[group.Id] = &clone
	return nil
}

func (c *MemCache) DeleteGroup(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, id)
	return nil
}

func sortGroups(groups []*GroupTarget) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].AddedAt.Equal(groups[j].AddedAt) {
			return groups[i].Id < groups[j].Id
		}
		return groups[i].AddedAt.Before(groups[j].AddedAt)
	})
}
