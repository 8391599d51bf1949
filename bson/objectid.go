// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidHex indicates that a hex string cannot be converted to an ObjectID.
var ErrInvalidHex = errors.New("the provided hex string is not a valid ObjectID")

// ObjectID is the BSON ObjectID type: a 4-byte big-endian timestamp, a 5-byte process unique
// value and a 3-byte big-endian counter.
type ObjectID [12]byte

// NilObjectID is the zero value for ObjectID.
var NilObjectID ObjectID

var (
	objectIDSeed    = randomBytes(9)
	objectIDCounter = binary.LittleEndian.Uint32(objectIDSeed[5:9])
)

// NewObjectID generates a new ObjectID. IDs generated by one process are unique and, within the
// same second, increasing.
func NewObjectID() ObjectID {
	return NewObjectIDFromTimestamp(time.Now())
}

// NewObjectIDFromTimestamp generates a new ObjectID based on the given time.
func NewObjectIDFromTimestamp(timestamp time.Time) ObjectID {
	var oid ObjectID
	binary.BigEndian.PutUint32(oid[0:4], uint32(timestamp.Unix()))
	copy(oid[4:9], objectIDSeed[:5])

	n := atomic.AddUint32(&objectIDCounter, 1)
	oid[9], oid[10], oid[11] = byte(n>>16), byte(n>>8), byte(n)
	return oid
}

// Timestamp returns the creation time stored in id, in UTC.
func (id ObjectID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[0:4])), 0).UTC()
}

// Hex returns the 24 character hex encoding of id.
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id ObjectID) String() string {
	return `ObjectID("` + id.Hex() + `")`
}

// IsZero reports whether id is NilObjectID.
func (id ObjectID) IsZero() bool {
	return id == NilObjectID
}

// ObjectIDFromHex parses the 24 character hex encoding of an ObjectID.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var oid ObjectID
	if len(s) != 2*len(oid) {
		return NilObjectID, ErrInvalidHex
	}
	if _, err := hex.Decode(oid[:], []byte(s)); err != nil {
		return NilObjectID, errors.Wrap(ErrInvalidHex, err.Error())
	}
	return oid, nil
}

// MarshalText implements encoding.TextMarshaler, so ObjectIDs can be map keys.
func (id ObjectID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input leaves id unchanged.
func (id *ObjectID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	oid, err := ObjectIDFromHex(string(b))
	if err != nil {
		return err
	}
	*id = oid
	return nil
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(errors.Wrap(err, "cannot seed ObjectID generation from crypto/rand"))
	}
	return b
}
