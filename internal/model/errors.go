package model

import "errors"

var (
	// ErrClientClosed is returned when a frame is sent to a client whose connection is closed.
	ErrClientClosed = errors.New("client closed")

	// ErrSendBufferFull is returned when a client's outbound queue is full.
	// The client is closed when this happens.
	ErrSendBufferFull = errors.New("client send buffer full")

	// ErrPayloadTooLarge is returned when a broadcast body exceeds the configured ceiling.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInvalidJSON is returned when a broadcast body is not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON body")

	// ErrJournalDisabled is returned when the connection journal is queried but not configured.
	ErrJournalDisabled = errors.New("connection journal disabled")
)
