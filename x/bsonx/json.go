// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsonx

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"

	"github.com/ikmak/docwire/bson"
)

const rfc3339Milli = "2006-01-02T15:04:05.999Z07:00"

func appendJSONString(dst []byte, s string) []byte {
	b, _ := json.Marshal(s)
	return append(dst, b...)
}

func appendDocJSON(dst []byte, d Doc) []byte {
	dst = append(dst, '{')
	for i, e := range d {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendJSONString(dst, e.Key)
		dst = append(dst, ':')
		dst = e.Value.appendJSON(dst)
	}
	return append(dst, '}')
}

func appendArrJSON(dst []byte, a Arr) []byte {
	dst = append(dst, '[')
	for i, v := range a {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = v.appendJSON(dst)
	}
	return append(dst, ']')
}

func appendWrapped(dst []byte, key string, fn func([]byte) []byte) []byte {
	dst = append(dst, '{')
	dst = appendJSONString(dst, key)
	dst = append(dst, ':')
	dst = fn(dst)
	return append(dst, '}')
}

func appendQuoted(s string) func([]byte) []byte {
	return func(dst []byte) []byte { return appendJSONString(dst, s) }
}

func appendDouble(dst []byte, f float64) []byte {
	switch {
	case math.IsNaN(f):
		return appendWrapped(dst, "$numberDouble", appendQuoted("NaN"))
	case math.IsInf(f, 1):
		return appendWrapped(dst, "$numberDouble", appendQuoted("Infinity"))
	case math.IsInf(f, -1):
		return appendWrapped(dst, "$numberDouble", appendQuoted("-Infinity"))
	}
	s := strconv.FormatFloat(f, 'G', -1, 64)
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		s = strconv.FormatFloat(f, 'f', 1, 64)
	}
	return append(dst, s...)
}

func (v Val) appendJSON(dst []byte) []byte {
	switch v.t {
	case bson.TypeDouble:
		return appendDouble(dst, v.primitive.(float64))
	case bson.TypeString:
		return appendJSONString(dst, v.primitive.(string))
	case bson.TypeEmbeddedDocument:
		return appendDocJSON(dst, v.primitive.(Doc))
	case bson.TypeArray:
		return appendArrJSON(dst, v.primitive.(Arr))
	case bson.TypeBinary:
		b := v.primitive.(binary)
		return appendWrapped(dst, "$binary", func(dst []byte) []byte {
			dst = append(dst, `{"base64":`...)
			dst = appendJSONString(dst, base64.StdEncoding.EncodeToString(b.data))
			dst = append(dst, `,"subType":"`...)
			dst = append(dst, hex.EncodeToString([]byte{b.subtype})...)
			return append(dst, `"}`...)
		})
	case bson.TypeUndefined:
		return append(dst, `{"$undefined":true}`...)
	case bson.TypeObjectID:
		return appendWrapped(dst, "$oid", appendQuoted(v.primitive.(bson.ObjectID).Hex()))
	case bson.TypeBoolean:
		return strconv.AppendBool(dst, v.primitive.(bool))
	case bson.TypeDateTime:
		ms := v.primitive.(int64)
		t := bson.DateTime(ms).Time().UTC()
		if t.Year() < 1970 || t.Year() > 9999 {
			return appendWrapped(dst, "$date", func(dst []byte) []byte {
				return appendWrapped(dst, "$numberLong", appendQuoted(strconv.FormatInt(ms, 10)))
			})
		}
		return appendWrapped(dst, "$date", appendQuoted(t.Format(rfc3339Milli)))
	case bson.TypeNull:
		return append(dst, "null"...)
	case bson.TypeRegex:
		r := v.primitive.(regex)
		return appendWrapped(dst, "$regularExpression", func(dst []byte) []byte {
			dst = append(dst, `{"pattern":`...)
			dst = appendJSONString(dst, r.pattern)
			dst = append(dst, `,"options":`...)
			dst = appendJSONString(dst, r.options)
			return append(dst, '}')
		})
	case bson.TypeDBPointer:
		p := v.primitive.(dbPointer)
		return appendWrapped(dst, "$dbPointer", func(dst []byte) []byte {
			dst = append(dst, `{"$ref":`...)
			dst = appendJSONString(dst, p.ns)
			dst = append(dst, `,"$id":`...)
			dst = appendWrapped(dst, "$oid", appendQuoted(p.oid.Hex()))
			return append(dst, '}')
		})
	case bson.TypeJavaScript:
		return appendWrapped(dst, "$code", appendQuoted(v.primitive.(string)))
	case bson.TypeSymbol:
		return appendWrapped(dst, "$symbol", appendQuoted(v.primitive.(string)))
	case bson.TypeCodeWithScope:
		c := v.primitive.(codeWithScope)
		dst = append(dst, `{"$code":`...)
		dst = appendJSONString(dst, c.code)
		dst = append(dst, `,"$scope":`...)
		dst = appendDocJSON(dst, c.scope)
		return append(dst, '}')
	case bson.TypeInt32:
		return strconv.AppendInt(dst, int64(v.primitive.(int32)), 10)
	case bson.TypeTimestamp:
		ts := v.primitive.(timestamp)
		dst = append(dst, `{"$timestamp":{"t":`...)
		dst = strconv.AppendUint(dst, uint64(ts.t), 10)
		dst = append(dst, `,"i":`...)
		dst = strconv.AppendUint(dst, uint64(ts.i), 10)
		return append(dst, "}}"...)
	case bson.TypeInt64:
		return strconv.AppendInt(dst, v.primitive.(int64), 10)
	case bson.TypeDecimal128:
		return appendWrapped(dst, "$numberDecimal", appendQuoted(v.primitive.(bson.Decimal128).String()))
	case bson.TypeMinKey:
		return append(dst, `{"$minKey":1}`...)
	case bson.TypeMaxKey:
		return append(dst, `{"$maxKey":1}`...)
	default:
		return append(dst, "null"...)
	}
}
