// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind identifies one of the taxonomy members from spec §7.
type ErrorKind int

const (
	// ErrControlFileMalformed covers header parse failures, unrecognized
	// non-safe keys, invalid numerics, unsupported Z-* headers, wrong
	// SHA-1 length, missing Length/Blocksize.
	ErrControlFileMalformed ErrorKind = iota
	// ErrBlockMetaTruncated signals fewer bytes than expected in the
	// checksum table.
	ErrBlockMetaTruncated
	// ErrScratchIO covers any scratch-file read/write failure.
	ErrScratchIO
	// ErrSeedIO covers a seed-read failure; recovered locally (skip).
	ErrSeedIO
	// ErrRemoteFetch covers an HTTP collaborator failure or non-2xx
	// status; recovered locally (blacklist the URL).
	ErrRemoteFetch
	// ErrCorruptRemoteBlock signals a strong-checksum mismatch on
	// received data.
	ErrCorruptRemoteBlock
	// ErrAllURLsExhausted signals every URL failed before completion.
	ErrAllURLsExhausted
	// ErrFinalChecksumMismatch signals the post-assembly SHA-1 check
	// failed.
	ErrFinalChecksumMismatch
	// ErrNoLocationHeader signals a 3xx response with no Location header,
	// so the redirect chain cannot be followed (spec §6, §8 scenario H).
	ErrNoLocationHeader
	// ErrHTTPStatus signals a non-2xx, non-redirect HTTP response;
	// StatusCode carries the server's status code (spec §6, §8 scenario I).
	ErrHTTPStatus
)

func (k ErrorKind) String() string {
	switch k {
	case ErrControlFileMalformed:
		return "ControlFileMalformed"
	case ErrBlockMetaTruncated:
		return "BlockMetaTruncated"
	case ErrScratchIO:
		return "ScratchIoError"
	case ErrSeedIO:
		return "SeedIoError"
	case ErrRemoteFetch:
		return "RemoteFetchError"
	case ErrCorruptRemoteBlock:
		return "CorruptRemoteBlock"
	case ErrAllURLsExhausted:
		return "AllUrlsExhausted"
	case ErrFinalChecksumMismatch:
		return "FinalChecksumMismatch"
	case ErrNoLocationHeader:
		return "NoLocationHeader"
	case ErrHTTPStatus:
		return "HttpStatus"
	default:
		return "Unknown"
	}
}

// SyncError is the typed error all core operations return; callers can
// errors.As into it to branch on Kind while still getting a pkg/errors
// stack trace from the wrapped Cause.
type SyncError struct {
	Kind  ErrorKind
	msg   string
	cause error

	// StatusCode carries the HTTP status code when Kind == ErrHTTPStatus;
	// zero otherwise.
	StatusCode int
}

func (e *SyncError) Error() string {
	if e.Kind == ErrHTTPStatus {
		return fmt.Sprintf("%s(%d, %s)", e.Kind, e.StatusCode, e.msg)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *SyncError) Unwrap() error { return e.cause }

// newErr builds a SyncError with a pkg/errors stack trace attached via
// errors.WithStack when cause is non-nil, matching the teacher's
// errors.Wrapf(err, ...) style.
func newErr(kind ErrorKind, cause error, format string, args ...interface{}) *SyncError {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &SyncError{Kind: kind, msg: msg, cause: cause}
}

// newHTTPStatusErr builds an ErrHTTPStatus SyncError carrying the
// response's status code, matching spec §6's HttpStatus(code, message)
// contract.
func newHTTPStatusErr(code int, message string) *SyncError {
	return &SyncError{Kind: ErrHTTPStatus, msg: message, StatusCode: code}
}

// errWrap mirrors the teacher's errors.Wrapf for plain (non-taxonomy)
// internal failures that still deserve a stack trace.
func errWrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
