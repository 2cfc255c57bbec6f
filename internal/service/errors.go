package service

import "errors"

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrUnknownProvider and ErrEmptySecret reject secret rotations
	// that could never verify a delivery.
	ErrUnknownProvider = errors.New("unknown webhook provider")
	ErrEmptySecret     = errors.New("signing secret must not be empty")
	ErrTaskNotFound      = errors.New("task not found")
	ErrPacketNotFound    = errors.New("packet not found")

	// ErrPacketNotFinalized rejects export and share on packets that
	// have not committed their event set.
	ErrPacketNotFinalized = errors.New("packet is not finalized")

	// ErrPersistence wraps storage-layer failures on the ingestion
	// path. Providers retry on it, so everything beneath it must be
	// idempotent.
	ErrPersistence = errors.New("persistence failure")
)
