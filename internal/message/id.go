package message

import "sync/atomic"

var idCounter uint32

// NewMessageID returns a process-unique, monotonically increasing message
// identifier. The source's equivalent is a static counter inside
// message_dispatcher.c; atomic.AddUint32 gives the same guarantee without a
// mutex.
func NewMessageID() uint32 {
	return atomic.AddUint32(&idCounter, 1)
}
