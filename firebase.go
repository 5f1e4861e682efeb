package main

import (
	"context"

	firebase "firebase.google.com/go"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

const (
	collectionFeeds   = "feeds"
	collectionCursors = "feed_cursors"
	collectionPrefs   = "subscriber_prefs"
	collectionGroups  = "group_targets"
	collectionNews    = "news_cursor"
)

// Firebase is the durable Datastore backed by Cloud Firestore.
type Firebase struct {
	app       *firebase.App
	firestore *firestore.Client
	ctx       context.Context
	opt       option.ClientOption
}

func NewFirebase(credentials []byte) *Firebase {
	return &Firebase{opt: option.WithCredentialsJSON(credentials)}
}

func (fb *Firebase) Reload() error {
	fb.ctx = context.Background()

	app, err := firebase.NewApp(fb.ctx, nil, fb.opt)
	if err != nil {
		return err
	}
	fb.app = app

	client, err := app.Firestore(fb.ctx)
	if err != nil {
		return err
	}
	fb.firestore = client
	return nil
}
