// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"strings"
)

// mode is the state of a value reader or writer frame.
type mode int

const (
	_ mode = iota
	mTopLevel
	mDocument
	mArray
	mValue
	mElement
	mCodeWithScope
)

var modeNames = [...]string{
	mTopLevel:      "TopLevel",
	mDocument:      "DocumentMode",
	mArray:         "ArrayMode",
	mValue:         "ValueMode",
	mElement:       "ElementMode",
	mCodeWithScope: "CodeWithScopeMode",
}

func (m mode) String() string {
	if m > 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "UnknownMode"
}

// TransitionError is returned when a ValueReader or ValueWriter method is called in a state that
// does not allow it, such as reading an element while positioned on an array.
type TransitionError struct {
	name        string
	parent      mode
	current     mode
	destination mode
	modes       []mode
	action      string
}

func (te TransitionError) Error() string {
	var sb strings.Builder
	sb.WriteString(te.name + " can only " + te.action)
	if te.destination != 0 {
		sb.WriteString(" a " + te.destination.String())
	}
	sb.WriteString(" while positioned on a")
	for i, m := range te.modes {
		if i > 0 && len(te.modes) > 2 {
			sb.WriteByte(',')
		}
		if i == len(te.modes)-1 && len(te.modes) > 1 {
			sb.WriteString(" or")
		}
		sb.WriteString(" " + m.String())
	}
	sb.WriteString(" but is positioned on a " + te.current.String())
	if te.parent != 0 {
		sb.WriteString(" with parent " + te.parent.String())
	}
	return sb.String()
}
