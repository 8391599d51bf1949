// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"github.com/ikmak/docwire/bson"
)

// BSONOptions are options used to configure how values are encoded and decoded.
type BSONOptions struct {
	// MinSize causes int, int64 and uint values to be written as int32 when they fit.
	MinSize *bool

	// NilMapAsEmpty causes nil maps to be written as empty documents instead of null.
	NilMapAsEmpty *bool

	// NilSliceAsEmpty causes nil slices to be written as empty arrays instead of null.
	NilSliceAsEmpty *bool

	// OmitZeroStruct causes struct members tagged omitempty to be skipped when the struct is its
	// zero value.
	OmitZeroStruct *bool

	// DefaultDocumentM causes documents decoded into an empty interface to become bson.M.
	DefaultDocumentM *bool

	// AllowTruncatingDoubles allows doubles to be decoded into integers when precision is lost.
	AllowTruncatingDoubles *bool

	// AllowOverflow allows integers to be decoded into types that are too narrow for them.
	AllowOverflow *bool
}

// BSON returns a pointer to a new BSONOptions
func BSON() *BSONOptions {
	return &BSONOptions{}
}

// SetMinSize specifies whether integers are written as int32 when they fit.
func (bo *BSONOptions) SetMinSize(b bool) *BSONOptions {
	bo.MinSize = &b
	return bo
}

// SetNilMapAsEmpty specifies whether nil maps are written as empty documents.
func (bo *BSONOptions) SetNilMapAsEmpty(b bool) *BSONOptions {
	bo.NilMapAsEmpty = &b
	return bo
}

// SetNilSliceAsEmpty specifies whether nil slices are written as empty arrays.
func (bo *BSONOptions) SetNilSliceAsEmpty(b bool) *BSONOptions {
	bo.NilSliceAsEmpty = &b
	return bo
}

// SetOmitZeroStruct specifies whether zero structs tagged omitempty are skipped.
func (bo *BSONOptions) SetOmitZeroStruct(b bool) *BSONOptions {
	bo.OmitZeroStruct = &b
	return bo
}

// SetDefaultDocumentM specifies whether documents decode into bson.M inside an empty interface.
func (bo *BSONOptions) SetDefaultDocumentM(b bool) *BSONOptions {
	bo.DefaultDocumentM = &b
	return bo
}

// SetAllowTruncatingDoubles specifies whether lossy double conversions are allowed.
func (bo *BSONOptions) SetAllowTruncatingDoubles(b bool) *BSONOptions {
	bo.AllowTruncatingDoubles = &b
	return bo
}

// SetAllowOverflow specifies whether integer overflow on decode is allowed.
func (bo *BSONOptions) SetAllowOverflow(b bool) *BSONOptions {
	bo.AllowOverflow = &b
	return bo
}

// MergeBSONOptions combines the given BSONOptions into a single BSONOptions in a last-one-wins
// fashion.
func MergeBSONOptions(opts ...*BSONOptions) *BSONOptions {
	bo := BSON()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if opt.MinSize != nil {
			bo.MinSize = opt.MinSize
		}
		if opt.NilMapAsEmpty != nil {
			bo.NilMapAsEmpty = opt.NilMapAsEmpty
		}
		if opt.NilSliceAsEmpty != nil {
			bo.NilSliceAsEmpty = opt.NilSliceAsEmpty
		}
		if opt.OmitZeroStruct != nil {
			bo.OmitZeroStruct = opt.OmitZeroStruct
		}
		if opt.DefaultDocumentM != nil {
			bo.DefaultDocumentM = opt.DefaultDocumentM
		}
		if opt.AllowTruncatingDoubles != nil {
			bo.AllowTruncatingDoubles = opt.AllowTruncatingDoubles
		}
		if opt.AllowOverflow != nil {
			bo.AllowOverflow = opt.AllowOverflow
		}
	}

	return bo
}

// EncodeContext returns an encode context for r carrying these options. A nil registry selects
// bson.DefaultRegistry.
func (bo *BSONOptions) EncodeContext(r *bson.Registry) bson.EncodeContext {
	if r == nil {
		r = bson.DefaultRegistry
	}
	return bson.EncodeContext{
		Registry:        r,
		MinSize:         isTrue(bo.MinSize),
		NilMapAsEmpty:   isTrue(bo.NilMapAsEmpty),
		NilSliceAsEmpty: isTrue(bo.NilSliceAsEmpty),
		OmitZeroStruct:  isTrue(bo.OmitZeroStruct),
	}
}

// DecodeContext returns a decode context for r carrying these options. A nil registry selects
// bson.DefaultRegistry.
func (bo *BSONOptions) DecodeContext(r *bson.Registry) bson.DecodeContext {
	if r == nil {
		r = bson.DefaultRegistry
	}
	return bson.DecodeContext{
		Registry:         r,
		Truncate:         isTrue(bo.AllowTruncatingDoubles),
		AllowOverflow:    isTrue(bo.AllowOverflow),
		DefaultDocumentM: isTrue(bo.DefaultDocumentM),
	}
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
