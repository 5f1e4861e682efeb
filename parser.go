package main

import (
	"bytes"
	"strings"

	"github.com/mmcdole/gofeed"
)

// ParseItems normalizes both RSS items and Atom entries into Items, ordered
// as the source orders them (newest first). A malformed document yields an
// empty list, not an error: absence of items is never a failure signal.
func ParseItems(body []byte) []*Item {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil || feed == nil {
		return nil
	}

	items := make([]*Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		item := &Item{
			Id:    itemId(entry),
			Title: strings.TrimSpace(entry.Title),
			Link:  strings.TrimSpace(entry.Link),
			Image: itemImage(entry),
		}
		if guid := strings.TrimSpace(entry.GUID); strings.HasPrefix(guid, "http") {
			item.Source = guid
		}
		items = append(items, item)
	}
	return items
}

// itemId prefers the explicit unique id and falls back to the canonical
// link. gofeed maps an Atom entry's <id> into GUID, so one policy covers
// both shapes.
func itemId(entry *gofeed.Item) string {
	if guid := strings.TrimSpace(entry.GUID); guid != "" {
		return guid
	}
	return strings.TrimSpace(entry.Link)
}

// itemImage prefers an image-typed enclosure, then a media:content or
// media:thumbnail reference.
func itemImage(entry *gofeed.Item) string {
	for _, enclosure := range entry.Enclosures {
		if enclosure == nil || enclosure.URL == "" {
			continue
		}
		kind := strings.ToLower(enclosure.Type)
		if strings.Contains(kind, "image") || strings.Contains(kind, "jpg") || strings.Contains(kind, "png") {
			return enclosure.URL
		}
	}
	if media, ok := entry.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, extension := range media[name] {
				if url := extension.Attrs["url"]; url != "" {
					return url
				}
			}
		}
	}
	return ""
}
