package main

import (
	"strconv"
	"time"

	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (fb *Firebase) GetPreferences(ownerId int64) (*Preferences, error) {
	id := strconv.FormatInt(ownerId, 10)

	doc, err := fb.firestore.Collection(collectionPrefs).Doc(id).Get(fb.ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}

	var prefs Preferences
	if err := doc.DataTo(&prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (fb *Firebase) SavePreferences(prefs *Preferences) error {
	id := strconv.FormatInt(prefs.OwnerId, 10)

	_, err := fb.firestore.Collection(collectionPrefs).Doc(id).Set(fb.ctx, prefs)
	return err
}

func (fb *Firebase) ListPollingEnabled() ([]*Preferences, error) {
	polling := make([]*Preferences, 0)

	iter := fb.firestore.Collection(collectionPrefs).Where("polling_enabled", "==", true).Documents(fb.ctx)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var prefs Preferences
		if err := doc.DataTo(&prefs); err != nil {
			return nil, err
		}
		polling = append(polling, &prefs)
	}

	return polling, nil
}

func (fb *Firebase) GetNewsCursor() (*NewsCursor, error) {
	doc, err := fb.firestore.Collection(collectionNews).Doc("latest").Get(fb.ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}

	var cursor NewsCursor
	if err := doc.DataTo(&cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

func (fb *Firebase) SaveNewsCursor(cursor *NewsCursor) error {
	if cursor.UpdatedAt.IsZero() {
		cursor.UpdatedAt = time.Now().UTC()
	}
	_, err := fb.firestore.Collection(collectionNews).Doc("latest").Set(fb.ctx, cursor)
	return err
}
