package main

// NewItems returns the prefix of items (newest first, as fetched) that
// appear before the first occurrence of lastSeen, plus the cursor value for
// the next cycle. The cursor always advances to the newest fetched
// identifier, even when nothing is judged new.
//
// An empty lastSeen means this is the first ever check: nothing is
// delivered, the cursor is simply initialized so only future items go out.
// When the same identifier occurs twice before the boundary, the first
// occurrence wins.
func NewItems(items []*Item, lastSeen string, limit int) (fresh []*Item, newest string) {
	if len(items) == 0 {
		return nil, lastSeen
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	newest = items[0].Id

	if lastSeen == "" {
		return nil, newest
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.Id == lastSeen {
			break
		}
		if item.Id != "" && seen[item.Id] {
			continue
		}
		seen[item.Id] = true
		fresh = append(fresh, item)
	}
	return fresh, newest
}

// NewestItem returns only the single newest item, regardless of cursor
// state. Manual checks use it for previews.
func NewestItem(items []*Item) *Item {
	if len(items) == 0 {
		return nil
	}
	return items[0]
}

// oldestFirst reverses a newest-first list so delivery preserves
// chronological order.
func oldestFirst(items []*Item) []*Item {
	out := make([]*Item, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return out
}
