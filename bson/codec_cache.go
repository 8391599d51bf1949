// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"reflect"
	"sync"
)

// Runtime check that the kind encoder and decoder caches can store any Kind.
func init() {
	if s := reflect.Kind(len(kindEncoderCache{}.entries)).String(); s != "kind27" {
		panic("The capacity of kindEncoderCache is too small.\n" +
			"This is due to a new type being added to reflect.Kind.")
	}
}

// statically assert array size
var _ = (kindEncoderCache{}).entries[reflect.UnsafePointer]
var _ = (kindDecoderCache{}).entries[reflect.UnsafePointer]

// noEncoder is stored in the cache to remember that a type has no encoder.
type noEncoder struct{}

func (noEncoder) EncodeValue(EncodeContext, ValueWriter, reflect.Value) error { return nil }

type noDecoder struct{}

func (noDecoder) DecodeValue(DecodeContext, ValueReader, reflect.Value) error { return nil }

type typeEncoderCache struct {
	cache sync.Map // map[reflect.Type]ValueEncoder
}

func (c *typeEncoderCache) Store(rt reflect.Type, enc ValueEncoder) {
	c.cache.Store(rt, enc)
}

func (c *typeEncoderCache) Load(rt reflect.Type) (ValueEncoder, bool) {
	if v, _ := c.cache.Load(rt); v != nil {
		return v.(ValueEncoder), true
	}
	return nil, false
}

func (c *typeEncoderCache) LoadOrStore(rt reflect.Type, enc ValueEncoder) ValueEncoder {
	if v, loaded := c.cache.LoadOrStore(rt, enc); loaded {
		enc = v.(ValueEncoder)
	}
	return enc
}

// Clear removes every memoised entry. It is called when a registration could change the result of
// an earlier lookup.
func (c *typeEncoderCache) Clear() {
	c.cache.Range(func(k, _ interface{}) bool {
		c.cache.Delete(k)
		return true
	})
}

type typeDecoderCache struct {
	cache sync.Map // map[reflect.Type]ValueDecoder
}

func (c *typeDecoderCache) Store(rt reflect.Type, dec ValueDecoder) {
	c.cache.Store(rt, dec)
}

func (c *typeDecoderCache) Load(rt reflect.Type) (ValueDecoder, bool) {
	if v, _ := c.cache.Load(rt); v != nil {
		return v.(ValueDecoder), true
	}
	return nil, false
}

func (c *typeDecoderCache) LoadOrStore(rt reflect.Type, dec ValueDecoder) ValueDecoder {
	if v, loaded := c.cache.LoadOrStore(rt, dec); loaded {
		dec = v.(ValueDecoder)
	}
	return dec
}

func (c *typeDecoderCache) Clear() {
	c.cache.Range(func(k, _ interface{}) bool {
		c.cache.Delete(k)
		return true
	})
}

type kindEncoderCacheEntry struct {
	enc ValueEncoder
}

type kindEncoderCache struct {
	mu      sync.RWMutex
	entries [reflect.UnsafePointer + 1]*kindEncoderCacheEntry
}

func (c *kindEncoderCache) Store(rt reflect.Kind, enc ValueEncoder) {
	if enc != nil && rt < reflect.Kind(len(c.entries)) {
		c.mu.Lock()
		c.entries[rt] = &kindEncoderCacheEntry{enc: enc}
		c.mu.Unlock()
	}
}

func (c *kindEncoderCache) Load(rt reflect.Kind) (ValueEncoder, bool) {
	if rt < reflect.Kind(len(c.entries)) {
		c.mu.RLock()
		ent := c.entries[rt]
		c.mu.RUnlock()
		if ent != nil {
			return ent.enc, ent.enc != nil
		}
	}
	return nil, false
}

type kindDecoderCacheEntry struct {
	dec ValueDecoder
}

type kindDecoderCache struct {
	mu      sync.RWMutex
	entries [reflect.UnsafePointer + 1]*kindDecoderCacheEntry
}

func (c *kindDecoderCache) Store(rt reflect.Kind, dec ValueDecoder) {
	if dec != nil && rt < reflect.Kind(len(c.entries)) {
		c.mu.Lock()
		c.entries[rt] = &kindDecoderCacheEntry{dec: dec}
		c.mu.Unlock()
	}
}

func (c *kindDecoderCache) Load(rt reflect.Kind) (ValueDecoder, bool) {
	if rt < reflect.Kind(len(c.entries)) {
		c.mu.RLock()
		ent := c.entries[rt]
		c.mu.RUnlock()
		if ent != nil {
			return ent.dec, ent.dec != nil
		}
	}
	return nil, false
}
