// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"reflect"
	"strings"
)

// structTags represents the struct tag fields that AutoMap applies on top of the active
// conventions. A tag always wins over a convention.
//
// The properties are defined below:
//
//	inline     Inline the field, which must be a struct or a map. The fields of a struct are
//	           processed as if they were part of the outer struct. A map becomes the extra
//	           elements member of the class map.
//
//	omitempty  Ignore the member when it holds its default value.
//
//	omitnull   Ignore the member when it is a nil pointer, interface, map or slice.
//
//	minsize    Write int64, int and uint values as int32 when they fit.
//
//	truncate   Allow lossy conversions of floating point values when decoding.
//
//	required   Fail decoding when the element is missing.
//
//	skip       This struct field should be skipped. This is denoted by a "-" name.
type structTags struct {
	Name      string
	Inline    bool
	MinSize   bool
	OmitEmpty bool
	OmitNull  bool
	Required  bool
	Skip      bool
	Truncate  bool
}

// parseStructTags handles the bson struct tag. An empty Name means the tag does not set the
// element name.
//
// The tag formats accepted are:
//
//	"[<key>][,<flag1>[,<flag2>]]"
//
//	`(...) bson:"[<key>][,<flag1>[,<flag2>]]" (...)`
//
// An example:
//
//	type T struct {
//	    A bool
//	    B int    "myb"
//	    C string "myc,omitempty"
//	    D string `bson:",omitempty" json:"jsonkey"`
//	    E int64  ",minsize"
//	    F int64  "myf,omitempty,minsize"
//	}
func parseStructTags(sf reflect.StructField) structTags {
	tag, ok := sf.Tag.Lookup("bson")
	if !ok && !strings.Contains(string(sf.Tag), ":") && len(sf.Tag) > 0 {
		tag = string(sf.Tag)
	}
	return parseTags(tag)
}

func parseTags(tag string) structTags {
	var st structTags
	if tag == "-" {
		st.Skip = true
		return st
	}

	for idx, str := range strings.Split(tag, ",") {
		if idx == 0 {
			st.Name = str
			continue
		}
		switch str {
		case "inline":
			st.Inline = true
		case "minsize":
			st.MinSize = true
		case "omitempty":
			st.OmitEmpty = true
		case "omitnull":
			st.OmitNull = true
		case "required":
			st.Required = true
		case "truncate":
			st.Truncate = true
		}
	}

	return st
}
