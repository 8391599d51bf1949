// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"fmt"
	"io"

	"github.com/ikmak/docwire/internal/logger"
	"github.com/ikmak/docwire/x/bsonx"
	"github.com/ikmak/docwire/x/bsonx/bsoncore"
	"github.com/ikmak/docwire/x/mongo/driver/wiremessage"
	"github.com/kr/pretty"
	"github.com/pkg/errors"
)

type dumpConfig struct {
	MaxSize   int
	Documents bool
	Verbose   bool
	Logger    *logger.Logger
}

// dump prints every message read from r and returns how many were printed. Reading stops
// cleanly at the end of the stream between messages.
func dump(w io.Writer, r io.Reader, cfg dumpConfig) (int, error) {
	rd := wiremessage.NewReader(r, int32(cfg.MaxSize), cfg.Logger)
	var n int
	for {
		wm, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := printMessage(w, n, wm, cfg); err != nil {
			return n, err
		}
		n++
	}
}

func printMessage(w io.Writer, index int, wm wiremessage.WireMessage, cfg dumpConfig) error {
	fmt.Fprintf(w, "#%d %s (%d bytes)\n", index, wm.OpCode(), wm.Len())
	if cfg.Verbose {
		fmt.Fprintf(w, "%# v\n", pretty.Formatter(wm))
	} else {
		fmt.Fprintln(w, wm.String())
	}
	if !cfg.Documents {
		return nil
	}
	for _, nd := range documents(wm) {
		doc, err := bsonx.ReadDoc(nd.doc)
		if err != nil {
			return errors.Wrapf(err, "reading %s", nd.name)
		}
		fmt.Fprintf(w, "%s:\n%s", nd.name, doc.Pretty())
	}
	return nil
}

type namedDocument struct {
	name string
	doc  bsoncore.Document
}

// documents lists the documents carried by wm in wire order.
func documents(wm wiremessage.WireMessage) []namedDocument {
	var out []namedDocument
	add := func(name string, docs ...bsoncore.Document) {
		for i, d := range docs {
			if len(d) == 0 {
				continue
			}
			if len(docs) > 1 {
				out = append(out, namedDocument{fmt.Sprintf("%s[%d]", name, i), d})
			} else {
				out = append(out, namedDocument{name, d})
			}
		}
	}

	switch m := wm.(type) {
	case wiremessage.Msg:
		for _, s := range m.Sections {
			switch sec := s.(type) {
			case wiremessage.SectionBody:
				add("body", sec.Document)
			case wiremessage.SectionDocumentSequence:
				add(sec.Identifier, sec.Documents...)
			}
		}
	case wiremessage.Insert:
		add("documents", m.Documents...)
	case wiremessage.Query:
		add("query", m.Query)
		add("returnFieldsSelector", m.ReturnFieldsSelector)
	case wiremessage.Reply:
		add("documents", m.Documents...)
	case wiremessage.Update:
		add("selector", m.Selector)
		add("update", m.Update)
	case wiremessage.Delete:
		add("selector", m.Selector)
	}
	return out
}
