// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"fmt"
	"hash/crc32"

	"github.com/ikmak/docwire/bson"
	"github.com/ikmak/docwire/internal/logger"
	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/pkg/errors"
)

// ErrBatchExhausted is returned when encoding a batch from a BatchProgress with no documents left.
var ErrBatchExhausted = errors.New("no documents left to encode")

// Reasons reported by BatchOverflowError and batch split logs.
const (
	ReasonMaxBatchCount   = "maxBatchCount"
	ReasonMaxMessageSize  = "maxMessageSize"
	ReasonMaxDocumentSize = "maxDocumentSize"
)

// BatchOverflowError is returned when a document or a batch that cannot be split does not fit the
// limits of a single message.
type BatchOverflowError struct {
	// Index is the position of the offending document in the source sequence.
	Index  int
	Size   int
	Limit  int
	Reason string
}

// Error implements the error interface.
func (e *BatchOverflowError) Error() string {
	return fmt.Sprintf("batch overflow at document %d: size %d exceeds %s of %d", e.Index, e.Size, e.Reason, e.Limit)
}

// BatchLimits are the negotiated limits a batch must satisfy. A zero limit is not enforced.
type BatchLimits struct {
	MaxBatchCount   int
	MaxMessageSize  int
	MaxDocumentSize int
}

// DefaultBatchLimits are the limits used until a server reports its own.
var DefaultBatchLimits = BatchLimits{
	MaxBatchCount:   100000,
	MaxMessageSize:  48000000,
	MaxDocumentSize: 16777216,
}

// DocumentIterator yields the documents of a batch in order.
type DocumentIterator interface {
	Next() (doc interface{}, ok bool)
}

type sliceIterator struct {
	docs []interface{}
	pos  int
}

func (si *sliceIterator) Next() (interface{}, bool) {
	if si.pos >= len(si.docs) {
		return nil, false
	}
	doc := si.docs[si.pos]
	si.docs[si.pos] = nil
	si.pos++
	return doc, true
}

// BatchProgress is the continuation handed from one batch encoding to the next. It owns the
// source iterator and the document that overflowed the previous batch, together with its encoded
// bytes. A BatchProgress must only be used by one encoder call at a time.
type BatchProgress struct {
	// CanBeSplit reports whether the documents may be spread over several messages.
	CanBeSplit bool

	// Batches is the number of batches encoded so far.
	Batches int

	// Written is the number of documents placed in batches so far.
	Written int

	iter         DocumentIterator
	exhausted    bool
	hasPending   bool
	pending      interface{}
	pendingBytes []byte
}

// NewBatchProgress returns a BatchProgress over docs.
func NewBatchProgress(docs []interface{}, canBeSplit bool) *BatchProgress {
	cp := make([]interface{}, len(docs))
	copy(cp, docs)
	return NewBatchProgressFromIterator(&sliceIterator{docs: cp}, canBeSplit)
}

// NewBatchProgressFromIterator returns a BatchProgress over the documents yielded by it.
func NewBatchProgressFromIterator(it DocumentIterator, canBeSplit bool) *BatchProgress {
	return &BatchProgress{CanBeSplit: canBeSplit, iter: it}
}

// Done reports whether every document has been placed in a batch.
func (bp *BatchProgress) Done() bool {
	if bp.hasPending {
		return false
	}
	if bp.exhausted {
		return true
	}
	doc, ok := bp.iter.Next()
	if !ok {
		bp.exhausted = true
		return true
	}
	bp.pending, bp.pendingBytes, bp.hasPending = doc, nil, true
	return false
}

func (bp *BatchProgress) next(ec bson.EncodeContext) (interface{}, []byte, bool, error) {
	var doc interface{}
	var raw []byte
	switch {
	case bp.hasPending:
		doc, raw = bp.pending, bp.pendingBytes
		bp.pending, bp.pendingBytes, bp.hasPending = nil, nil, false
	case bp.exhausted:
		return nil, nil, false, nil
	default:
		var ok bool
		if doc, ok = bp.iter.Next(); !ok {
			bp.exhausted = true
			return nil, nil, false, nil
		}
	}
	if raw == nil {
		if d, ok := doc.(bsoncore.Document); ok {
			if err := d.Validate(); err != nil {
				return nil, nil, false, err
			}
			return doc, d, true, nil
		}
		var err error
		if raw, err = bson.MarshalWithContext(ec, doc); err != nil {
			return nil, nil, false, err
		}
	}
	return doc, raw, true, nil
}

func (bp *BatchProgress) setPending(doc interface{}, raw []byte) {
	bp.pending, bp.pendingBytes, bp.hasPending = doc, raw, true
}

// Batch is one encoded message produced from a BatchProgress.
type Batch struct {
	Message   []byte
	Documents []interface{}
}

// fill appends documents to dst until the progress is exhausted or a limit is reached. The
// message being built starts at msgStart and overhead bytes will be added after dst.
//
// A document that pushes the batch over a limit is removed again and kept as pending, but only
// when it is not the only document of the batch. A lone document that overflows stays and the
// batch fails once filling stops.
//
// On error every document taken from the iterator by this call, the failing one included, is
// counted in Written so later errors keep reporting source indices.
func (bp *BatchProgress) fill(
	ec bson.EncodeContext,
	dst []byte,
	msgStart, overhead int,
	lim BatchLimits,
	log *logger.Logger,
) (_ []byte, _ []interface{}, err error) {
	var docs []interface{}
	taken := 0
	defer func() {
		if err != nil && err != ErrBatchExhausted {
			bp.Written += taken
		}
	}()
	for {
		doc, raw, ok, err := bp.next(ec)
		if err != nil {
			taken++
			return dst, docs, errors.Wrapf(err, "encoding document %d", bp.Written+len(docs))
		}
		if !ok {
			break
		}
		taken = len(docs) + 1
		index := bp.Written + len(docs)
		if lim.MaxDocumentSize > 0 && len(raw) > lim.MaxDocumentSize {
			return dst, docs, &BatchOverflowError{
				Index: index, Size: len(raw), Limit: lim.MaxDocumentSize, Reason: ReasonMaxDocumentSize,
			}
		}

		mark := len(dst)
		dst = append(dst, raw...)
		docs = append(docs, doc)

		var reason string
		var size, limit int
		switch {
		case lim.MaxBatchCount > 0 && len(docs) > lim.MaxBatchCount:
			reason, size, limit = ReasonMaxBatchCount, len(docs), lim.MaxBatchCount
		case lim.MaxMessageSize > 0 && len(dst)-msgStart+overhead > lim.MaxMessageSize:
			reason, size, limit = ReasonMaxMessageSize, len(dst)-msgStart+overhead, lim.MaxMessageSize
		}
		if reason == "" {
			continue
		}
		if !bp.CanBeSplit {
			return dst, docs, &BatchOverflowError{Index: index, Size: size, Limit: limit, Reason: reason}
		}
		if len(docs) > 1 {
			dst = dst[:mark]
			docs = docs[:len(docs)-1]
			bp.setPending(doc, raw)
			log.Print(logger.DebugLevel, logger.ComponentWireMessage, "batch split",
				"count", len(docs), "bytes", len(dst)-msgStart+overhead, "reason", reason)
		}
		break
	}

	if len(docs) == 0 {
		return dst, nil, ErrBatchExhausted
	}
	if size := len(dst) - msgStart + overhead; lim.MaxMessageSize > 0 && size > lim.MaxMessageSize {
		return dst, docs, &BatchOverflowError{
			Index: bp.Written, Size: size, Limit: lim.MaxMessageSize, Reason: ReasonMaxMessageSize,
		}
	}
	return dst, docs, nil
}

func encodeContext(ec bson.EncodeContext) bson.EncodeContext {
	if ec.Registry == nil {
		ec.Registry = bson.DefaultRegistry
	}
	return ec
}

// InsertEncoder encodes documents into OP_INSERT messages, splitting them into as many messages as
// the limits require.
type InsertEncoder struct {
	FullCollectionName string
	Flags              InsertFlag
	Limits             BatchLimits

	// Context is used to encode the documents. A nil registry means bson.DefaultRegistry.
	Context bson.EncodeContext
	Logger  *logger.Logger
}

// Encode encodes the next batch of bp into an OP_INSERT message with the given request id.
func (e *InsertEncoder) Encode(requestID int32, bp *BatchProgress) (*Batch, error) {
	if err := validateNamespace(e.FullCollectionName); err != nil {
		return nil, err
	}
	if bp.Done() {
		return nil, ErrBatchExhausted
	}

	idx, dst := AppendHeaderStart(nil, requestID, 0, OpInsert)
	dst = appendInt32(dst, int32(e.Flags))
	dst = appendCString(dst, e.FullCollectionName)

	dst, docs, err := bp.fill(encodeContext(e.Context), dst, int(idx), 0, e.Limits, e.Logger)
	if err != nil {
		return nil, err
	}
	dst = UpdateLength(dst, idx)

	bp.Batches++
	bp.Written += len(docs)
	return &Batch{Message: dst, Documents: docs}, nil
}

// CommandBatchEncoder encodes a command and its documents into OP_MSG messages. The command is
// the body section and the documents form a document sequence named Identifier.
type CommandBatchEncoder struct {
	// Command is the command document, for example bson.D{{"insert", "coll"}}.
	Command interface{}

	// Database is appended to the command as "$db" when not empty.
	Database   string
	Identifier string
	FlagBits   MsgFlag
	Limits     BatchLimits

	// Context is used to encode the command and the documents. A nil registry means
	// bson.DefaultRegistry.
	Context bson.EncodeContext
	Logger  *logger.Logger
}

// NewInsertCommand returns an encoder for the insert command.
func NewInsertCommand(database, collection string, ordered bool) *CommandBatchEncoder {
	return &CommandBatchEncoder{
		Command:    bson.D{{Key: "insert", Value: collection}, {Key: "ordered", Value: ordered}},
		Database:   database,
		Identifier: "documents",
		Limits:     DefaultBatchLimits,
	}
}

// NewUpdateCommand returns an encoder for the update command. Its documents are UpdateRequest
// values.
func NewUpdateCommand(database, collection string, ordered bool) *CommandBatchEncoder {
	return &CommandBatchEncoder{
		Command:    bson.D{{Key: "update", Value: collection}, {Key: "ordered", Value: ordered}},
		Database:   database,
		Identifier: "updates",
		Limits:     DefaultBatchLimits,
	}
}

// NewDeleteCommand returns an encoder for the delete command. Its documents are DeleteRequest
// values.
func NewDeleteCommand(database, collection string, ordered bool) *CommandBatchEncoder {
	return &CommandBatchEncoder{
		Command:    bson.D{{Key: "delete", Value: collection}, {Key: "ordered", Value: ordered}},
		Database:   database,
		Identifier: "deletes",
		Limits:     DefaultBatchLimits,
	}
}

// UpdateRequest is one statement of an update command.
type UpdateRequest struct {
	Filter       interface{}   `bson:"q"`
	Update       interface{}   `bson:"u"`
	Upsert       bool          `bson:"upsert,omitempty"`
	Multi        bool          `bson:"multi,omitempty"`
	ArrayFilters []interface{} `bson:"arrayFilters,omitempty"`
	Hint         interface{}   `bson:"hint,omitempty"`
}

// DeleteRequest is one statement of a delete command. A Limit of 0 removes every matching
// document, 1 removes a single one.
type DeleteRequest struct {
	Filter interface{} `bson:"q"`
	Limit  int32       `bson:"limit"`
	Hint   interface{} `bson:"hint,omitempty"`
}

func (e *CommandBatchEncoder) commandDocument(ec bson.EncodeContext) (bsoncore.Document, error) {
	cmd, err := bson.MarshalWithContext(ec, e.Command)
	if err != nil {
		return nil, errors.Wrap(err, "encoding command")
	}
	if e.Database == "" {
		return cmd, nil
	}
	cmd = bsoncore.AppendStringElement(cmd[:len(cmd)-1], "$db", e.Database)
	cmd = append(cmd, 0x00)
	return bsoncore.UpdateLength(cmd, 0, int32(len(cmd))), nil
}

// Encode encodes the next batch of bp into an OP_MSG message with the given request id.
func (e *CommandBatchEncoder) Encode(requestID int32, bp *BatchProgress) (*Batch, error) {
	if e.Identifier == "" {
		return nil, errors.New("a document sequence identifier is required")
	}
	if bp.Done() {
		return nil, ErrBatchExhausted
	}

	ec := encodeContext(e.Context)
	cmd, err := e.commandDocument(ec)
	if err != nil {
		return nil, err
	}

	var overhead int
	if e.FlagBits&ChecksumPresent == ChecksumPresent {
		overhead = 4
	}

	idx, dst := AppendHeaderStart(nil, requestID, 0, OpMsg)
	dst = appendUint32(dst, uint32(e.FlagBits))
	dst = SectionBody{Document: cmd}.AppendSection(dst)
	dst = append(dst, byte(DocumentSequence))
	sidx, dst := bsoncore.ReserveLength(dst)
	dst = appendCString(dst, e.Identifier)

	dst, docs, err := bp.fill(ec, dst, int(idx), overhead, e.Limits, e.Logger)
	if err != nil {
		return nil, err
	}
	dst = bsoncore.UpdateLength(dst, sidx, int32(len(dst))-sidx)

	if overhead > 0 {
		dst = append(dst, 0, 0, 0, 0)
		dst = UpdateLength(dst, idx)
		sum := crc32.Checksum(dst[idx:len(dst)-4], castagnoli)
		dst = appendUint32(dst[:len(dst)-4], sum)
	} else {
		dst = UpdateLength(dst, idx)
	}

	bp.Batches++
	bp.Written += len(docs)
	return &Batch{Message: dst, Documents: docs}, nil
}
