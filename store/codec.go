// codec.go: serializer capability consumed by the store
//
// The store never marshals bytes itself beyond the fixed 20-byte record
// header; key and value (de)serialization is delegated to a Marshaller,
// modeled as an object passed in at construction time rather than a
// package-level global, mirroring the teacher's TimeProvider/Logger
// capability-interface style (see interfaces.go in agilira-balios).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

import (
	"bytes"
	"encoding/gob"
)

// Marshaller converts between arbitrary key/value payloads and the opaque
// byte buffers written into the data file.
type Marshaller interface {
	ObjectToByteBuffer(v any) ([]byte, error)
	ObjectFromByteBuffer(b []byte, off, length int) (any, error)
}

// gobMarshaller is the default Marshaller, built on encoding/gob. No
// retrieved example repo ships a generic any-keyed serializer that fits
// this role (the pack's KV stores all serialize concrete, caller-defined
// record types rather than an arbitrary any), so this one concern is
// implemented directly on the standard library;
// see DESIGN.md.
type gobMarshaller struct{}

// NewGobMarshaller returns a Marshaller backed by encoding/gob. Values are
// encoded as interface values, so every concrete type other than gob's
// predeclared basic types (string, int, ...) must be registered with
// gob.Register, in the writing and in the reading process, and its fields
// must be exported.
func NewGobMarshaller() Marshaller {
	return gobMarshaller{}
}

func (gobMarshaller) ObjectToByteBuffer(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, NewErrStoreSerialization("encode", err)
	}
	return buf.Bytes(), nil
}

func (gobMarshaller) ObjectFromByteBuffer(b []byte, off, length int) (any, error) {
	var v any
	r := bytes.NewReader(b[off : off+length])
	if err := gob.NewDecoder(r).Decode(&v); err != nil {
		return nil, NewErrStoreSerialization("decode", err)
	}
	return v, nil
}
