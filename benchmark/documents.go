// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package benchmark

import (
	"fmt"
	"sync"
	"time"

	"github.com/ikmak/docwire/bson"
	"github.com/ikmak/docwire/x/bsonx"
)

// flatRecord mirrors flatDocument field for field.
type flatRecord struct {
	ID        bson.ObjectID `bson:"_id"`
	Name      string        `bson:"name"`
	Email     string        `bson:"email"`
	Age       int32         `bson:"age"`
	Visits    int64         `bson:"visits"`
	Balance   float64       `bson:"balance"`
	Active    bool          `bson:"active"`
	CreatedAt time.Time     `bson:"createdAt"`
	Tags      []string      `bson:"tags"`
	Scores    []int32       `bson:"scores"`
	Notes     *string       `bson:"notes"`
	Avatar    []byte        `bson:"avatar"`
}

var (
	fixtureOnce sync.Once
	flatSize    int
	deepSize    int
)

var fixtureEpoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func fixtureID(seed int) bson.ObjectID {
	var oid bson.ObjectID
	for i := range oid {
		oid[i] = byte(seed >> (8 * (i % 4)))
	}
	oid[11] = byte(seed)
	return oid
}

func newFlatRecord(seed int) flatRecord {
	return flatRecord{
		ID:        fixtureID(seed),
		Name:      fmt.Sprintf("user-%06d", seed),
		Email:     fmt.Sprintf("user-%06d@example.com", seed),
		Age:       int32(18 + seed%60),
		Visits:    int64(seed) * 7919,
		Balance:   float64(seed) * 3.25,
		Active:    seed%2 == 0,
		CreatedAt: fixtureEpoch.Add(time.Duration(seed) * time.Minute),
		Tags:      []string{"alpha", "beta", fmt.Sprint("t", seed%10)},
		Scores:    []int32{int32(seed % 100), int32(seed % 37), int32(seed % 11)},
		Avatar:    []byte("0123456789abcdef0123456789abcdef"),
	}
}

// flatDocument builds the value tree form of newFlatRecord(seed).
func flatDocument(seed int) bsonx.Doc {
	r := newFlatRecord(seed)
	tags := make(bsonx.Arr, 0, len(r.Tags))
	for _, t := range r.Tags {
		tags = append(tags, bsonx.String(t))
	}
	scores := make(bsonx.Arr, 0, len(r.Scores))
	for _, s := range r.Scores {
		scores = append(scores, bsonx.Int32(s))
	}
	return bsonx.Doc{
		{Key: "_id", Value: bsonx.ObjectID(r.ID)},
		{Key: "name", Value: bsonx.String(r.Name)},
		{Key: "email", Value: bsonx.String(r.Email)},
		{Key: "age", Value: bsonx.Int32(r.Age)},
		{Key: "visits", Value: bsonx.Int64(r.Visits)},
		{Key: "balance", Value: bsonx.Double(r.Balance)},
		{Key: "active", Value: bsonx.Boolean(r.Active)},
		{Key: "createdAt", Value: bsonx.Time(r.CreatedAt)},
		{Key: "tags", Value: bsonx.Array(tags)},
		{Key: "scores", Value: bsonx.Array(scores)},
		{Key: "notes", Value: bsonx.Null()},
		{Key: "avatar", Value: bsonx.Binary(0x00, r.Avatar)},
	}
}

// deepDocument nests depth documents, each level carrying a few scalars.
func deepDocument(depth int) bsonx.Doc {
	doc := bsonx.Doc{{Key: "leaf", Value: bsonx.String("bottom")}}
	for i := depth; i > 0; i-- {
		doc = bsonx.Doc{
			{Key: "level", Value: bsonx.Int32(int32(i))},
			{Key: "label", Value: bsonx.String(fmt.Sprint("level-", i))},
			{Key: "child", Value: bsonx.Document(doc)},
		}
	}
	return doc
}

func loadFixtureSizes() {
	fixtureOnce.Do(func() {
		if b, err := flatDocument(0).MarshalBSON(); err == nil {
			flatSize = len(b)
		}
		if b, err := deepDocument(32).MarshalBSON(); err == nil {
			deepSize = len(b)
		}
	})
}

func flatDocumentSize() int {
	loadFixtureSizes()
	return flatSize
}

func deepDocumentSize() int {
	loadFixtureSizes()
	return deepSize
}

func flatRecords(n int) []interface{} {
	docs := make([]interface{}, n)
	for i := range docs {
		docs[i] = newFlatRecord(i)
	}
	return docs
}
