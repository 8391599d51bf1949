// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"github.com/ikmak/docwire/x/mongo/driver/wiremessage"
	"github.com/pkg/errors"
)

// WireOptions represents the options used to encode, split and compress wire messages.
type WireOptions struct {
	MaxBatchCount   *int32   // The maximum number of documents in one batch
	MaxMessageSize  *int32   // The maximum size in bytes of one encoded message
	MaxDocumentSize *int32   // The maximum size in bytes of one document
	Compressors     []string // Compressor names in order of preference: "snappy", "zlib", "zstd" or "noop"
	ZlibLevel       *int     // The zlib compression level, -1 to 9
	ZstdLevel       *int     // The zstd compression level, 1 to 20
	Logger          *LoggerOptions
}

// Wire returns a pointer to a new WireOptions
func Wire() *WireOptions {
	return &WireOptions{}
}

// SetMaxBatchCount sets the maximum number of documents per batch.
func (wo *WireOptions) SetMaxBatchCount(n int32) *WireOptions {
	wo.MaxBatchCount = &n
	return wo
}

// SetMaxMessageSize sets the maximum size of one message.
func (wo *WireOptions) SetMaxMessageSize(n int32) *WireOptions {
	wo.MaxMessageSize = &n
	return wo
}

// SetMaxDocumentSize sets the maximum size of one document.
func (wo *WireOptions) SetMaxDocumentSize(n int32) *WireOptions {
	wo.MaxDocumentSize = &n
	return wo
}

// SetCompressors sets the compressors to use, in order of preference.
func (wo *WireOptions) SetCompressors(names []string) *WireOptions {
	wo.Compressors = names
	return wo
}

// SetZlibLevel sets the level for zlib compression
func (wo *WireOptions) SetZlibLevel(level int) *WireOptions {
	wo.ZlibLevel = &level
	return wo
}

// SetZstdLevel sets the level for zstd compression
func (wo *WireOptions) SetZstdLevel(level int) *WireOptions {
	wo.ZstdLevel = &level
	return wo
}

// SetLogger sets the logger options.
func (wo *WireOptions) SetLogger(lo *LoggerOptions) *WireOptions {
	wo.Logger = lo
	return wo
}

// MergeWireOptions combines the given WireOptions into a single WireOptions in a last-one-wins
// fashion. Nil options are skipped.
func MergeWireOptions(opts ...*WireOptions) *WireOptions {
	wo := Wire()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if opt.MaxBatchCount != nil {
			wo.MaxBatchCount = opt.MaxBatchCount
		}
		if opt.MaxMessageSize != nil {
			wo.MaxMessageSize = opt.MaxMessageSize
		}
		if opt.MaxDocumentSize != nil {
			wo.MaxDocumentSize = opt.MaxDocumentSize
		}
		if opt.Compressors != nil {
			wo.Compressors = opt.Compressors
		}
		if opt.ZlibLevel != nil {
			wo.ZlibLevel = opt.ZlibLevel
		}
		if opt.ZstdLevel != nil {
			wo.ZstdLevel = opt.ZstdLevel
		}
		if opt.Logger != nil {
			wo.Logger = opt.Logger
		}
	}

	return wo
}

// Validate reports limits that are not positive, levels outside the compressors' ranges and
// unknown compressor names.
func (wo *WireOptions) Validate() error {
	for name, v := range map[string]*int32{
		"max batch count":   wo.MaxBatchCount,
		"max message size":  wo.MaxMessageSize,
		"max document size": wo.MaxDocumentSize,
	} {
		if v != nil && *v <= 0 {
			return errors.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if wo.ZlibLevel != nil && (*wo.ZlibLevel < -1 || *wo.ZlibLevel > 9) {
		return errors.Errorf("invalid zlib compression level: %d", *wo.ZlibLevel)
	}
	if wo.ZstdLevel != nil && (*wo.ZstdLevel < 1 || *wo.ZstdLevel > 20) {
		return errors.Errorf("invalid zstd compression level: %d", *wo.ZstdLevel)
	}
	for _, name := range wo.Compressors {
		if _, err := wiremessage.CompressorFromName(name); err != nil {
			return err
		}
	}
	return nil
}

// BatchLimits returns the batch limits, using wiremessage.DefaultBatchLimits for unset values.
func (wo *WireOptions) BatchLimits() wiremessage.BatchLimits {
	limits := wiremessage.DefaultBatchLimits
	if wo.MaxBatchCount != nil {
		limits.MaxBatchCount = int(*wo.MaxBatchCount)
	}
	if wo.MaxMessageSize != nil {
		limits.MaxMessageSize = int(*wo.MaxMessageSize)
	}
	if wo.MaxDocumentSize != nil {
		limits.MaxDocumentSize = int(*wo.MaxDocumentSize)
	}
	return limits
}

// CompressionOpts returns the settings for the first configured compressor. Without compressors
// the noop compressor is used.
func (wo *WireOptions) CompressionOpts() (wiremessage.CompressionOpts, error) {
	opts := wiremessage.CompressionOpts{
		Compressor: wiremessage.CompressorNoOp,
		ZlibLevel:  wiremessage.DefaultZlibLevel,
		ZstdLevel:  wiremessage.DefaultZstdLevel,
	}
	if wo.ZlibLevel != nil {
		opts.ZlibLevel = *wo.ZlibLevel
	}
	if wo.ZstdLevel != nil {
		opts.ZstdLevel = *wo.ZstdLevel
	}
	if len(wo.Compressors) > 0 {
		id, err := wiremessage.CompressorFromName(wo.Compressors[0])
		if err != nil {
			return opts, err
		}
		opts.Compressor = id
	}
	return opts, nil
}
