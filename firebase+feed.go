package main

import (
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (fb *Firebase) GetFeed(id string) (*Feed, error) {
	doc, err := fb.firestore.Collection(collectionFeeds).Doc(id).Get(fb.ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}

	var feed Feed
	if err := doc.DataTo(&feed); err != nil {
		return nil, err
	}
	return &feed, nil
}

func (fb *Firebase) FindFeed(ownerId int64, url string) (*Feed, error) {
	iter := fb.firestore.Collection(collectionFeeds).
		Where("owner_id", "==", ownerId).
		Where("url", "==", url).
		Documents(fb.ctx)

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var feed Feed
	err = doc.DataTo(&feed)
	return &feed, err
}

func (fb *Firebase) ListFeeds(ownerId int64) ([]*Feed, error) {
	feeds := make([]*Feed, 0)

	iter := fb.firestore.Collection(collectionFeeds).Where("owner_id", "==", ownerId).Documents(fb.ctx)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var feed Feed
		if err := doc.DataTo(&feed); err != nil {
			return nil, err
		}
		feeds = append(feeds, &feed)
	}

	return feeds, nil
}

func (fb *Firebase) SaveFeed(feed *Feed) error {
	_, err := fb.firestore.Collection(collectionFeeds).Doc(feed.Id).Set(fb.ctx, feed)
	return err
}

func (fb *Firebase) DeleteFeed(id string) error {
	_, err := fb.firestore.Collection(collectionFeeds).Doc(id).Delete(fb.ctx)
	return err
}

func (fb *Firebase) GetCursor(feedId string) (*FeedCursor, error) {
	doc, err := fb.firestore.Collection(collectionCursors).Doc(feedId).Get(fb.ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}

	var cursor FeedCursor
	if err := doc.DataTo(&cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

func (fb *Firebase) SaveCursor(cursor *FeedCursor) error {
	_, err := fb.firestore.Collection(collectionCursors).Doc(cursor.FeedId).Set(fb.ctx, cursor)
	return err
}

func (fb *Firebase) DeleteCursor(feedId string) error {
	_, err := fb.firestore.Collection(collectionCursors).Doc(feedId).Delete(fb.ctx)
	return err
}
