package main

// Datastore is the document store behind the registry and the monitor.
// Lookups return (nil, nil) when the record does not exist.
type Datastore interface {
	Reload() error

	GetPreferences(ownerId int64) (*Preferences, error)
	SavePreferences(prefs *Preferences) error
	ListPollingEnabled() ([]*Preferences, error)

	GetFeed(id string) (*Feed, error)
	FindFeed(ownerId int64, url string) (*Feed, error)
	ListFeeds(ownerId int64) ([]*Feed, error)
	SaveFeed(feed *Feed) error
	DeleteFeed(id string) error

	GetCursor(feedId string) (*FeedCursor, error)
	SaveCursor(cursor *FeedCursor) error
	DeleteCursor(feedId string) error

	GetNewsCursor() (*NewsCursor, error)
	SaveNewsCursor(cursor *NewsCursor) error

	GetGroup(ownerId int64, groupId int64) (*GroupTarget, error)
	ListGroups(ownerId int64) ([]*GroupTarget, error)
	ListAllGroups() ([]*GroupTarget, error)
	SaveGroup(group *GroupTarget) error
	DeleteGroup(id string) error
}
