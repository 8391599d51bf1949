// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/ikmak/docwire/x/bsonx/bsoncore"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Msg represents the OP_MSG message of the wire protocol. A Msg carries exactly one body section
// holding the command document and any number of document sequence sections.
type Msg struct {
	MsgHeader Header
	FlagBits  MsgFlag
	Sections  []Section

	// Checksum is the CRC-32C of the message. It is computed by AppendWireMessage and verified by
	// UnmarshalWireMessage when ChecksumPresent is set.
	Checksum uint32
}

var _ WireMessage = Msg{}

// Section represents a section of an OP_MSG message.
type Section interface {
	Kind() SectionType
	Len() int
	AppendSection([]byte) []byte
}

// SectionBody is the single type 0 section of an OP_MSG.
type SectionBody struct {
	Document bsoncore.Document
}

// Kind implements the Section interface.
func (sb SectionBody) Kind() SectionType { return SingleDocument }

// Len implements the Section interface.
func (sb SectionBody) Len() int { return 1 + len(sb.Document) }

// AppendSection implements the Section interface.
func (sb SectionBody) AppendSection(dest []byte) []byte {
	dest = append(dest, byte(SingleDocument))
	return append(dest, sb.Document...)
}

// SectionDocumentSequence is a type 1 section of an OP_MSG, a named sequence of documents.
type SectionDocumentSequence struct {
	Identifier string
	Documents  []bsoncore.Document
}

// Kind implements the Section interface.
func (sds SectionDocumentSequence) Kind() SectionType { return DocumentSequence }

// PayloadLen returns the length of the section after its kind byte.
func (sds SectionDocumentSequence) PayloadLen() int {
	// 4 bytes for size field, len identifier (including \0), and total docs len
	l := 4 + len(sds.Identifier) + 1
	for _, d := range sds.Documents {
		l += len(d)
	}
	return l
}

// Len implements the Section interface.
func (sds SectionDocumentSequence) Len() int { return 1 + sds.PayloadLen() }

// AppendSection implements the Section interface.
func (sds SectionDocumentSequence) AppendSection(dest []byte) []byte {
	dest = append(dest, byte(DocumentSequence))
	dest = appendInt32(dest, int32(sds.PayloadLen()))
	dest = appendCString(dest, sds.Identifier)
	for _, doc := range sds.Documents {
		dest = append(dest, doc...)
	}
	return dest
}

// OpCode implements the WireMessage interface.
func (m Msg) OpCode() OpCode { return OpMsg }

// MarshalWireMessage implements the Marshaler and WireMessage interfaces.
func (m Msg) MarshalWireMessage() ([]byte, error) {
	b := make([]byte, 0, m.Len())
	return m.AppendWireMessage(b)
}

// ValidateWireMessage implements the Validator and WireMessage interfaces.
func (m Msg) ValidateWireMessage() error {
	if int(m.MsgHeader.MessageLength) != m.Len() {
		return newError(OpMsg, 0, "incorrect header: message length is not correct")
	}
	if m.MsgHeader.OpCode != OpMsg {
		return newError(OpMsg, 12, "incorrect header: op code is not OpMsg")
	}
	return m.validateSections()
}

func (m Msg) validateSections() error {
	bodies := 0
	pos := 20
	for _, s := range m.Sections {
		switch sec := s.(type) {
		case SectionBody:
			bodies++
			if err := validateDocument("body", sec.Document); err != nil {
				return newError(OpMsg, pos, "%v", err)
			}
		case SectionDocumentSequence:
			if strings.IndexByte(sec.Identifier, 0x00) >= 0 {
				return newError(OpMsg, pos, "identifier %q contains a null byte", sec.Identifier)
			}
			for i, doc := range sec.Documents {
				if err := validateDocument(sec.Identifier, doc); err != nil {
					return newError(OpMsg, pos, "document %d: %v", i, err)
				}
			}
		default:
			return newError(OpMsg, pos, "unknown section type %T", s)
		}
		pos += s.Len()
	}
	if bodies != 1 {
		return newError(OpMsg, 20, "exactly one body section is required, found %d", bodies)
	}
	return nil
}

// AppendWireMessage implements the Appender and WireMessage interfaces.
//
// AppendWireMessage will set the MessageLength property of the MsgHeader if it is zero. It will
// also set the OpCode to OpMsg if the OpCode is zero. When ChecksumPresent is set, the CRC-32C of
// the message is appended.
func (m Msg) AppendWireMessage(b []byte) ([]byte, error) {
	err := m.MsgHeader.SetDefaults(m.Len(), OpMsg)

	start := len(b)
	b = m.MsgHeader.AppendHeader(b)
	b = appendUint32(b, uint32(m.FlagBits))
	for _, section := range m.Sections {
		b = section.AppendSection(b)
	}
	if m.FlagBits&ChecksumPresent == ChecksumPresent {
		b = appendUint32(b, crc32.Checksum(b[start:], castagnoli))
	}
	return b, err
}

// String implements the fmt.Stringer interface.
func (m Msg) String() string {
	strs := make([]string, 0, len(m.Sections))
	for _, s := range m.Sections {
		switch sec := s.(type) {
		case SectionBody:
			strs = append(strs, fmt.Sprintf("Body(%s)", sec.Document))
		case SectionDocumentSequence:
			strs = append(strs, fmt.Sprintf("Sequence(%s: %s)", sec.Identifier, documentsString(sec.Documents)))
		}
	}
	return fmt.Sprintf(
		`OP_MSG{MsgHeader: %s, FlagBits: %s, Sections: [%s], Checksum: %d}`,
		m.MsgHeader, m.FlagBits, strings.Join(strs, ", "), m.Checksum,
	)
}

// Len implements the WireMessage interface.
func (m Msg) Len() int {
	// Header + Flags + len of each section + optional checksum
	l := 16 + 4
	for _, section := range m.Sections {
		l += section.Len()
	}
	if m.FlagBits&ChecksumPresent == ChecksumPresent {
		l += 4
	}
	return l
}

// UnmarshalWireMessage implements the Unmarshaler interface.
func (m *Msg) UnmarshalWireMessage(b []byte) error {
	hdr, err := checkLength(b, OpMsg)
	if err != nil {
		return err
	}
	if len(b) < 20 {
		return newError(OpMsg, len(b), "message too short")
	}
	m.MsgHeader = hdr
	m.FlagBits = MsgFlag(readUint32(b, 16))

	end := int32(len(b))
	m.Checksum = 0
	if m.FlagBits&ChecksumPresent == ChecksumPresent {
		if end < 24 {
			return newError(OpMsg, len(b), "message too short for a checksum")
		}
		end -= 4
		m.Checksum = readUint32(b, end)
		if sum := crc32.Checksum(b[:end], castagnoli); sum != m.Checksum {
			return newError(OpMsg, int(end), "checksum mismatch: computed %d, message carries %d", sum, m.Checksum)
		}
	}

	m.Sections = m.Sections[:0]
	pos := int32(20)
	for pos < end {
		kind := SectionType(b[pos])
		pos++
		switch kind {
		case SingleDocument:
			var doc bsoncore.Document
			doc, pos, err = readDocument(b[:end], pos)
			if err != nil {
				return newError(OpMsg, int(pos), "%v", err)
			}
			m.Sections = append(m.Sections, SectionBody{Document: doc})
		case DocumentSequence:
			if pos+4 > end {
				return newError(OpMsg, int(pos), "document sequence is missing its size")
			}
			size := readInt32(b, pos)
			if size < 5 || pos+size > end {
				return newError(OpMsg, int(pos), "document sequence size %d is out of range", size)
			}
			seqEnd := pos + size
			ident, next, ok := readCString(b[:seqEnd], pos+4)
			if !ok {
				return newError(OpMsg, int(pos+4), "document sequence identifier is not null terminated")
			}
			docs, err := readDocuments(b, next, seqEnd)
			if err != nil {
				return newError(OpMsg, int(next), "%v", err)
			}
			m.Sections = append(m.Sections, SectionDocumentSequence{Identifier: ident, Documents: docs})
			pos = seqEnd
		default:
			return newError(OpMsg, int(pos-1), "unknown section type %d", kind)
		}
	}
	return m.validateSections()
}

// Body returns the document of the body section, or nil if there is none.
func (m Msg) Body() bsoncore.Document {
	for _, s := range m.Sections {
		if sb, ok := s.(SectionBody); ok {
			return sb.Document
		}
	}
	return nil
}

// DocumentSequence returns the documents of the sequence with the given identifier.
func (m Msg) DocumentSequence(identifier string) ([]bsoncore.Document, bool) {
	for _, s := range m.Sections {
		if sds, ok := s.(SectionDocumentSequence); ok && sds.Identifier == identifier {
			return sds.Documents, true
		}
	}
	return nil, false
}

// CommandName returns the first key of the body document.
func (m Msg) CommandName() string {
	return firstKey(m.Body())
}
