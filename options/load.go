// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"io"
	"io/ioutil"

	"github.com/ikmak/docwire/internal/logger"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// wireFile is the TOML layout read by LoadWireOptions.
//
//	max_batch_count = 1000
//	compressors = ["zstd", "snappy"]
//	zstd_level = 3
//
//	[log]
//	serialization = "debug"
//	wire = "info"
type wireFile struct {
	MaxBatchCount   *int32            `toml:"max_batch_count"`
	MaxMessageSize  *int32            `toml:"max_message_size"`
	MaxDocumentSize *int32            `toml:"max_document_size"`
	Compressors     []string          `toml:"compressors"`
	ZlibLevel       *int              `toml:"zlib_level"`
	ZstdLevel       *int              `toml:"zstd_level"`
	Log             map[string]string `toml:"log"`
}

// LoadWireOptions reads WireOptions from a TOML document. Keys that are absent stay unset so the
// result can be merged over defaults with MergeWireOptions. The loaded options are validated.
func LoadWireOptions(r io.Reader) (*WireOptions, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading wire options")
	}

	var f wireFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parsing wire options")
	}

	wo := &WireOptions{
		MaxBatchCount:   f.MaxBatchCount,
		MaxMessageSize:  f.MaxMessageSize,
		MaxDocumentSize: f.MaxDocumentSize,
		Compressors:     f.Compressors,
		ZlibLevel:       f.ZlibLevel,
		ZstdLevel:       f.ZstdLevel,
	}
	if len(f.Log) > 0 {
		lo := Logger()
		for name, level := range f.Log {
			component := logger.ComponentLiteral(name).Component()
			if name != string(logger.ComponentLiteralAll) && component == logger.ComponentAll {
				return nil, errors.Errorf("unknown log component %q", name)
			}
			lo.SetComponentLevel(LogComponent(component), LogLevel(logger.ParseLevel(level)))
		}
		wo.Logger = lo
	}

	if err := wo.Validate(); err != nil {
		return nil, err
	}
	return wo, nil
}
