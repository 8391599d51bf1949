// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Command wiredump prints the wire messages captured in a file, or read from stdin when the file
// is "-" or missing. Compressed messages are unwrapped before printing.
//
//	wiredump [-docs] [-verbose] [-max-size n] [-config wire.toml] [file]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ikmak/docwire/options"
)

func main() {
	err := mainReal()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainReal() error {
	var cfg dumpConfig
	var configFile string
	var debug bool
	flag.IntVar(&cfg.MaxSize, "max-size", 0, "maximum message size in bytes; 0 uses the configured or default limit")
	flag.BoolVar(&cfg.Documents, "docs", false, "print every document of a message as indented JSON")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "print the decoded message structure")
	flag.StringVar(&configFile, "config", "", "TOML file with wire options")
	flag.BoolVar(&debug, "debug", false, "log frame and compression details")
	flag.Parse()

	wo := options.Wire()
	if configFile != "" {
		f, err := os.Open(configFile)
		if err != nil {
			return fmt.Errorf("cannot open config (%s) because: %s", configFile, err)
		}
		loaded, err := options.LoadWireOptions(f)
		f.Close()
		if err != nil {
			return err
		}
		wo = options.MergeWireOptions(wo, loaded)
	}
	if debug {
		lo := wo.Logger
		if lo == nil {
			lo = options.Logger()
		}
		wo.SetLogger(lo.SetComponentLevel(options.LogComponentWireMessage, options.LogLevelDebug))
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = wo.BatchLimits().MaxMessageSize
	}
	cfg.Logger = wo.Logger.NewLogger()

	fileName := "-"
	if flag.NArg() > 0 {
		fileName = flag.Arg(0)
	}

	in := os.Stdin
	if fileName != "-" {
		file, err := os.Open(fileName)
		if err != nil {
			return fmt.Errorf("cannot open file (%s) because: %s", fileName, err)
		}
		defer file.Close()
		in = file
	}

	n, err := dump(os.Stdout, in, cfg)
	if err != nil {
		return fmt.Errorf("message %d: %s", n+1, err)
	}
	return nil
}
