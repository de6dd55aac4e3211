package cinet

import "errors"

// Error kinds returned by Parse and its helper stages. Every one maps to a
// "drop the frame, keep the connection" disposition at the call site; see
// spec §7 for the logging level each kind is reported at.
var (
	ErrBadHeader   = errors.New("cinet: bad frame header")
	ErrBadOuterCRC = errors.New("cinet: outer CRC mismatch")
	ErrBadInnerCRC = errors.New("cinet: inner CRC mismatch (likely wrong passphrase)")
)
