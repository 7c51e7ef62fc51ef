// errors.go: structured error handling for the on-disk store
//
// Mirrors the teacher's own error design (github.com/agilira/go-errors
// based, one error code per failure cause, Is* predicate helpers) but for
// the cause set this persistent store defines: Io, DirectoryCannotBeCreated,
// Serialization, LegacyUpgrade, Unsupported, and Corrupted.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

import (
	goerrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for Store operations.
const (
	ErrCodeStoreIO                   errors.ErrorCode = "BALIOS_STORE_IO"
	ErrCodeStoreDirectoryUncreatable errors.ErrorCode = "BALIOS_STORE_DIR_UNCREATABLE"
	ErrCodeStoreSerialization        errors.ErrorCode = "BALIOS_STORE_SERIALIZATION"
	ErrCodeStoreLegacyUpgrade        errors.ErrorCode = "BALIOS_STORE_LEGACY_UPGRADE"
	ErrCodeStoreUnsupported          errors.ErrorCode = "BALIOS_STORE_UNSUPPORTED"
	ErrCodeStoreCorrupted            errors.ErrorCode = "BALIOS_STORE_CORRUPTED"
)

const (
	msgStoreIO           = "store: underlying file operation failed"
	msgStoreDirUncreate  = "store: data directory could not be created"
	msgStoreSerial       = "store: marshaller failed"
	msgStoreLegacy       = "store: legacy import failed"
	msgStoreUnsupported  = "store: operation is not supported"
	msgStoreCorruptedRec = "store: on-disk record is corrupted"
)

// NewErrStoreIO wraps an I/O failure from the data file.
func NewErrStoreIO(op string, cause error) error {
	return errors.Wrap(cause, ErrCodeStoreIO, msgStoreIO).
		WithContext("op", op).
		AsRetryable()
}

// NewErrStoreDirectoryUncreatable reports that the store's parent
// directory could not be created.
func NewErrStoreDirectoryUncreatable(path string, cause error) error {
	return errors.Wrap(cause, ErrCodeStoreDirectoryUncreatable, msgStoreDirUncreate).
		WithContext("path", path)
}

// NewErrStoreSerialization wraps a Marshaller failure on a key or value.
func NewErrStoreSerialization(op string, cause error) error {
	return errors.Wrap(cause, ErrCodeStoreSerialization, msgStoreSerial).
		WithContext("op", op)
}

// NewErrStoreLegacyUpgrade wraps a failure surfaced by the legacy importer.
func NewErrStoreLegacyUpgrade(cause error) error {
	return errors.Wrap(cause, ErrCodeStoreLegacyUpgrade, msgStoreLegacy)
}

// NewErrStoreUnsupported reports an operation that is declared but never
// implemented (FromStream/ToStream).
func NewErrStoreUnsupported(op string) error {
	return errors.NewWithField(ErrCodeStoreUnsupported, msgStoreUnsupported, "op", op)
}

// NewErrStoreCorrupted reports that a decoded header violates a Slot
// invariant (e.g. size < headerSize).
func NewErrStoreCorrupted(offset uint64, details string) error {
	return errors.NewWithContext(ErrCodeStoreCorrupted, msgStoreCorruptedRec, map[string]interface{}{
		"offset":  offset,
		"details": details,
	})
}

func hasCode(err error, code errors.ErrorCode) bool {
	return errors.HasCode(err, code)
}

// IsStoreIO reports whether err is (or wraps) an I/O failure.
func IsStoreIO(err error) bool { return hasCode(err, ErrCodeStoreIO) }

// IsDirectoryUncreatable reports whether err is a directory-creation failure.
func IsDirectoryUncreatable(err error) bool {
	return hasCode(err, ErrCodeStoreDirectoryUncreatable)
}

// IsStoreSerialization reports whether err is a marshaller failure.
func IsStoreSerialization(err error) bool { return hasCode(err, ErrCodeStoreSerialization) }

// IsLegacyUpgrade reports whether err came from the legacy importer.
func IsLegacyUpgrade(err error) bool { return hasCode(err, ErrCodeStoreLegacyUpgrade) }

// IsUnsupported reports whether err is the Unsupported sentinel returned
// by FromStream/ToStream.
func IsUnsupported(err error) bool { return hasCode(err, ErrCodeStoreUnsupported) }

// IsCorrupted reports whether err signals on-disk corruption.
func IsCorrupted(err error) bool { return hasCode(err, ErrCodeStoreCorrupted) }

// IsRetryable reports whether the error can be retried (transient I/O).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// ErrorCode extracts the structured error code from err, or "" if err does
// not carry one.
func ErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}
