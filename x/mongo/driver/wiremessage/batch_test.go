// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/ikmak/docwire/bson"
	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocs(n int, pad func(i int) int) []interface{} {
	docs := make([]interface{}, n)
	for i := range docs {
		docs[i] = bson.D{{Key: "_id", Value: int32(i)}, {Key: "pad", Value: strings.Repeat("x", pad(i))}}
	}
	return docs
}

func idsOf(t *testing.T, docs []bsoncore.Document) []int32 {
	t.Helper()
	ids := make([]int32, 0, len(docs))
	for _, d := range docs {
		var out struct {
			ID int32 `bson:"_id"`
		}
		require.NoError(t, bson.Unmarshal(d, &out), spew.Sdump(d))
		ids = append(ids, out.ID)
	}
	return ids
}

func drainInserts(t *testing.T, enc *InsertEncoder, bp *BatchProgress) [][]int32 {
	t.Helper()
	var batches [][]int32
	for reqID := int32(1); !bp.Done(); reqID++ {
		batch, err := enc.Encode(reqID, bp)
		require.NoError(t, err)

		var ins Insert
		require.NoError(t, ins.UnmarshalWireMessage(batch.Message))
		require.NoError(t, ins.ValidateWireMessage())
		assert.Equal(t, reqID, ins.MsgHeader.RequestID)
		assert.Len(t, ins.Documents, len(batch.Documents))
		if enc.Limits.MaxBatchCount > 0 {
			assert.LessOrEqual(t, len(ins.Documents), enc.Limits.MaxBatchCount)
		}
		if enc.Limits.MaxMessageSize > 0 {
			assert.LessOrEqual(t, len(batch.Message), enc.Limits.MaxMessageSize)
		}
		batches = append(batches, idsOf(t, ins.Documents))
	}
	return batches
}

func TestInsertEncoderSingleDocumentBatches(t *testing.T) {
	enc := &InsertEncoder{
		FullCollectionName: "db.coll",
		Limits:             BatchLimits{MaxBatchCount: 1, MaxMessageSize: 48000000},
	}
	bp := NewBatchProgress(testDocs(3, func(int) int { return 8 }), true)

	batches := drainInserts(t, enc, bp)
	assert.Equal(t, [][]int32{{0}, {1}, {2}}, batches)
	assert.Equal(t, 3, bp.Batches)
	assert.Equal(t, 3, bp.Written)

	_, err := enc.Encode(4, bp)
	assert.Equal(t, ErrBatchExhausted, err)
}

func TestBatchSplitConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 25; trial++ {
		n := rng.Intn(40) + 1
		maxCount := rng.Intn(8) + 1
		maxSize := 200 + rng.Intn(600)
		sizes := make([]int, n)
		for i := range sizes {
			sizes[i] = rng.Intn(120)
		}

		t.Run(fmt.Sprintf("n=%d/count=%d/size=%d", n, maxCount, maxSize), func(t *testing.T) {
			enc := &InsertEncoder{
				FullCollectionName: "db.coll",
				Limits:             BatchLimits{MaxBatchCount: maxCount, MaxMessageSize: maxSize},
			}
			bp := NewBatchProgress(testDocs(n, func(i int) int { return sizes[i] }), true)

			var got []int32
			for _, b := range drainInserts(t, enc, bp) {
				got = append(got, b...)
			}
			want := make([]int32, n)
			for i := range want {
				want[i] = int32(i)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("documents across batches differ (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInsertEncoderOversizeDocument(t *testing.T) {
	enc := &InsertEncoder{
		FullCollectionName: "db.coll",
		Limits:             BatchLimits{MaxBatchCount: 10, MaxMessageSize: 100},
	}

	t.Run("first document", func(t *testing.T) {
		bp := NewBatchProgress(testDocs(2, func(i int) int { return 200 }), true)
		_, err := enc.Encode(1, bp)
		var boe *BatchOverflowError
		require.True(t, errors.As(err, &boe), "expected BatchOverflowError, got %v", err)
		assert.Equal(t, 0, boe.Index)
		assert.Equal(t, ReasonMaxMessageSize, boe.Reason)
	})
	t.Run("later document", func(t *testing.T) {
		bp := NewBatchProgress(testDocs(2, func(i int) int { return []int{4, 200}[i] }), true)
		batch, err := enc.Encode(1, bp)
		require.NoError(t, err)
		assert.Len(t, batch.Documents, 1)

		_, err = enc.Encode(2, bp)
		var boe *BatchOverflowError
		require.True(t, errors.As(err, &boe), "expected BatchOverflowError, got %v", err)
		assert.Equal(t, 1, boe.Index)
	})
	t.Run("max document size", func(t *testing.T) {
		enc := &InsertEncoder{
			FullCollectionName: "db.coll",
			Limits:             BatchLimits{MaxMessageSize: 1000, MaxDocumentSize: 50},
		}
		bp := NewBatchProgress(testDocs(1, func(int) int { return 60 }), true)
		_, err := enc.Encode(1, bp)
		var boe *BatchOverflowError
		require.True(t, errors.As(err, &boe))
		assert.Equal(t, ReasonMaxDocumentSize, boe.Reason)
	})
}

func TestBatchOverflowIndexAfterFailure(t *testing.T) {
	enc := &InsertEncoder{
		FullCollectionName: "db.coll",
		Limits:             BatchLimits{MaxMessageSize: 1000, MaxDocumentSize: 50},
	}
	testCases := []struct {
		name    string
		pads    []int
		indices []int
		written int
	}{
		{"two oversize documents", []int{60, 60}, []int{0, 1}, 2},
		{"oversize then small", []int{60, 1}, []int{0, -1}, 2},
		{"small then two oversize", []int{1, 60, 60}, []int{1, 2}, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bp := NewBatchProgress(testDocs(len(tc.pads), func(i int) int { return tc.pads[i] }), true)
			for i, want := range tc.indices {
				_, err := enc.Encode(int32(i+1), bp)
				if want < 0 {
					require.NoError(t, err)
					continue
				}
				var boe *BatchOverflowError
				require.True(t, errors.As(err, &boe), "expected BatchOverflowError, got %v", err)
				assert.Equal(t, want, boe.Index)
				assert.Equal(t, ReasonMaxDocumentSize, boe.Reason)
			}
			assert.Equal(t, tc.written, bp.Written)
			assert.True(t, bp.Done())
		})
	}
}

func TestBatchCannotBeSplit(t *testing.T) {
	enc := &InsertEncoder{
		FullCollectionName: "db.coll",
		Limits:             BatchLimits{MaxBatchCount: 2, MaxMessageSize: 48000000},
	}
	bp := NewBatchProgress(testDocs(3, func(int) int { return 1 }), false)
	_, err := enc.Encode(1, bp)
	var boe *BatchOverflowError
	require.True(t, errors.As(err, &boe), "expected BatchOverflowError, got %v", err)
	assert.Equal(t, ReasonMaxBatchCount, boe.Reason)

	bp = NewBatchProgress(testDocs(2, func(int) int { return 1 }), false)
	batch, err := enc.Encode(1, bp)
	require.NoError(t, err)
	assert.Len(t, batch.Documents, 2)
	assert.True(t, bp.Done())
}

func TestBatchProgressPendingCarriesOver(t *testing.T) {
	enc := &InsertEncoder{FullCollectionName: "db.coll", Limits: BatchLimits{MaxBatchCount: 2}}
	bp := NewBatchProgress(testDocs(3, func(int) int { return 1 }), true)

	_, err := enc.Encode(1, bp)
	require.NoError(t, err)
	require.True(t, bp.hasPending)
	require.NotNil(t, bp.pendingBytes)

	batch, err := enc.Encode(2, bp)
	require.NoError(t, err)
	assert.Len(t, batch.Documents, 1)
	assert.False(t, bp.hasPending)
	assert.Nil(t, bp.pendingBytes)
}

func TestCommandBatchEncoder(t *testing.T) {
	t.Run("insert", func(t *testing.T) {
		enc := NewInsertCommand("db", "coll", true)
		enc.Limits.MaxBatchCount = 2
		bp := NewBatchProgress(testDocs(5, func(int) int { return 3 }), true)

		var got []int32
		for reqID := int32(1); !bp.Done(); reqID++ {
			batch, err := enc.Encode(reqID, bp)
			require.NoError(t, err)

			wm, err := Decode(batch.Message)
			require.NoError(t, err)
			msg := wm.(Msg)
			assert.Equal(t, "insert", msg.CommandName())

			var cmd struct {
				Insert  string `bson:"insert"`
				Ordered bool   `bson:"ordered"`
				DB      string `bson:"$db"`
			}
			require.NoError(t, bson.Unmarshal(msg.Body(), &cmd))
			assert.Equal(t, "coll", cmd.Insert)
			assert.True(t, cmd.Ordered)
			assert.Equal(t, "db", cmd.DB)

			docs, ok := msg.DocumentSequence("documents")
			require.True(t, ok)
			assert.LessOrEqual(t, len(docs), 2)
			got = append(got, idsOf(t, docs)...)
		}
		assert.Equal(t, []int32{0, 1, 2, 3, 4}, got)
	})

	t.Run("checksum", func(t *testing.T) {
		enc := NewInsertCommand("db", "coll", false)
		enc.FlagBits = ChecksumPresent
		bp := NewBatchProgress(testDocs(2, func(int) int { return 3 }), true)
		batch, err := enc.Encode(1, bp)
		require.NoError(t, err)

		var msg Msg
		require.NoError(t, msg.UnmarshalWireMessage(batch.Message))
		assert.NotZero(t, msg.Checksum)
	})

	t.Run("update statements", func(t *testing.T) {
		enc := NewUpdateCommand("db", "coll", true)
		bp := NewBatchProgress([]interface{}{
			UpdateRequest{
				Filter: bson.D{{Key: "a", Value: int32(1)}},
				Update: bson.D{{Key: "$set", Value: bson.D{{Key: "b", Value: int32(2)}}}},
				Upsert: true,
			},
		}, true)
		batch, err := enc.Encode(1, bp)
		require.NoError(t, err)

		wm, err := Decode(batch.Message)
		require.NoError(t, err)
		docs, ok := wm.(Msg).DocumentSequence("updates")
		require.True(t, ok)
		require.Len(t, docs, 1)

		var stmt bson.D
		require.NoError(t, bson.Unmarshal(docs[0], &stmt))
		keys := make([]string, 0, len(stmt))
		for _, e := range stmt {
			keys = append(keys, e.Key)
		}
		assert.Equal(t, []string{"q", "u", "upsert"}, keys)
	})

	t.Run("delete statements", func(t *testing.T) {
		enc := NewDeleteCommand("db", "coll", true)
		bp := NewBatchProgress([]interface{}{
			DeleteRequest{Filter: bson.D{{Key: "a", Value: int32(1)}}, Limit: 1},
		}, true)
		batch, err := enc.Encode(1, bp)
		require.NoError(t, err)

		wm, err := Decode(batch.Message)
		require.NoError(t, err)
		docs, ok := wm.(Msg).DocumentSequence("deletes")
		require.True(t, ok)

		var stmt struct {
			Q     bson.D `bson:"q"`
			Limit int32  `bson:"limit"`
		}
		require.NoError(t, bson.Unmarshal(docs[0], &stmt))
		assert.Equal(t, int32(1), stmt.Limit)
		assert.Equal(t, bson.D{{Key: "a", Value: int32(1)}}, stmt.Q)
	})
}

func TestBatchProgressRawDocuments(t *testing.T) {
	enc := &InsertEncoder{FullCollectionName: "db.coll", Limits: DefaultBatchLimits}
	raw := int32Doc(t, "_id", 7)
	bp := NewBatchProgress([]interface{}{raw}, true)
	batch, err := enc.Encode(1, bp)
	require.NoError(t, err)

	var ins Insert
	require.NoError(t, ins.UnmarshalWireMessage(batch.Message))
	assert.Equal(t, []bsoncore.Document{raw}, ins.Documents)
}
