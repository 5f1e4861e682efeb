package main

import (
	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

func (fb *Firebase) GetGroup(ownerId int64, groupId int64) (*GroupTarget, error) {
	iter := fb.firestore.Collection(collectionGroups).
		Where("owner_id", "==", ownerId).
		Where("group_id", "==", groupId).
		Documents(fb.ctx)

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var group GroupTarget
	err = doc.DataTo(&group)
	return &group, err
}

func (fb *Firebase) ListGroups(ownerId int64) ([]*GroupTarget, error) {
	return fb.listGroups(fb.firestore.Collection(collectionGroups).Where("owner_id", "==", ownerId).Documents(fb.ctx))
}

func (fb *Firebase) ListAllGroups() ([]*GroupTarget, error) {
	return fb.listGroups(fb.firestore.Collection(collectionGroups).Documents(fb.ctx))
}

func (fb *Firebase) listGroups(iter *firestore.DocumentIterator) ([]*GroupTarget, error) {
	groups := make([]*GroupTarget, 0)

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var group GroupTarget
		if err := doc.DataTo(&group); err != nil {
			return nil, err
		}
		groups = append(groups, &group)
	}

	return groups, nil
}

func (fb *Firebase) SaveGroup(group *GroupTarget) error {
	_, err := fb.firestore.Collection(collectionGroups).Doc(group.Id).Set(fb.ctx, group)
	return err
}

func (fb *Firebase) DeleteGroup(id string) error {
	_, err := fb.firestore.Collection(collectionGroups).Doc(id).Delete(fb.ctx)
	return err
}
