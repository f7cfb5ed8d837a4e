package eventlog

import "errors"

// Operation errors. Every error returned by this package wraps exactly one of
// these so callers can classify failures with errors.Is.
var (
	ErrConnection     = errors.New("eventlog: connection failed")
	ErrStreamCreate   = errors.New("eventlog: stream create failed")
	ErrStreamDelete   = errors.New("eventlog: stream delete failed")
	ErrConsumerCreate = errors.New("eventlog: consumer create failed")
	ErrPublish        = errors.New("eventlog: publish failed")
	ErrFetch          = errors.New("eventlog: fetch failed")
	ErrAck            = errors.New("eventlog: ack failed")
)

// Detail errors, wrapped alongside an operation error.
var (
	ErrStreamExists     = errors.New("stream already exists")
	ErrStreamNotFound   = errors.New("stream not found")
	ErrConsumerNotFound = errors.New("consumer not found")
	ErrInvalidName      = errors.New("invalid name")
	ErrInvalidSubject   = errors.New("invalid subject")
	ErrSubjectMismatch  = errors.New("subject not bound to stream")
	ErrFilterMismatch   = errors.New("filter subject differs from durable consumer")
	ErrStoreClosed      = errors.New("store closed")
	ErrCorruptRecord    = errors.New("corrupt record")
)
