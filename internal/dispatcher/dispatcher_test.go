package dispatcher

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
)

func newTestMessage(typ message.Type) *message.Message {
	return &message.Message{
		Type:         typ,
		EndpointInfo: &message.EndpointInfo{URI: "opc.tcp://host:4840"},
	}
}

func TestSendRoutesToOnSendCallback(t *testing.T) {
	d := New(zerolog.Nop(), 2)

	var mu sync.Mutex
	var got *message.Message
	done := make(chan struct{})
	d.RegisterCallbacks(func(msg *message.Message) {
		mu.Lock()
		got = msg
		mu.Unlock()
		close(done)
	}, func(msg *message.Message) {})
	d.Start()
	defer d.Stop()

	if err := d.Send(newTestMessage(message.TypeSendRequest)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for send callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if got == nil || got.Type != message.TypeSendRequest {
		t.Fatalf("unexpected message delivered to send callback: %+v", got)
	}
}

func TestReceiveRoutesToOnRecvCallback(t *testing.T) {
	d := New(zerolog.Nop(), 2)

	done := make(chan struct{})
	d.RegisterCallbacks(func(msg *message.Message) {}, func(msg *message.Message) {
		close(done)
	})
	d.Start()
	defer d.Stop()

	if err := d.Receive(newTestMessage(message.TypeGeneralResponse)); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response callback")
	}
}

func TestSendRejectsInvalidMessage(t *testing.T) {
	d := New(zerolog.Nop(), 2)
	d.RegisterCallbacks(func(msg *message.Message) {}, func(msg *message.Message) {})
	d.Start()
	defer d.Stop()

	err := d.Send(&message.Message{Type: message.TypeSendRequest})
	if err == nil {
		t.Fatal("expected error for message missing endpoint info")
	}
}

func TestQueueDepthsStartsAtZero(t *testing.T) {
	d := New(zerolog.Nop(), 1)
	d.RegisterCallbacks(func(msg *message.Message) {}, func(msg *message.Message) {})
	d.Start()
	defer d.Stop()

	sendDepth, recvDepth := d.QueueDepths()
	if sendDepth != 0 || recvDepth != 0 {
		t.Fatalf("expected both queues empty on a fresh dispatcher, got send=%d recv=%d", sendDepth, recvDepth)
	}
}

func TestSendSideDoesNotStallOnOneSlowCallback(t *testing.T) {
	d := New(zerolog.Nop(), 4)

	block := make(chan struct{})
	var mu sync.Mutex
	var fastDelivered bool
	d.RegisterCallbacks(func(msg *message.Message) {
		if msg.EndpointInfo.URI == "opc.tcp://slow:4840" {
			<-block
			return
		}
		mu.Lock()
		fastDelivered = true
		mu.Unlock()
	}, func(msg *message.Message) {})
	d.Start()
	defer func() {
		close(block)
		d.Stop()
	}()

	slow := newTestMessage(message.TypeSendRequest)
	slow.EndpointInfo.URI = "opc.tcp://slow:4840"
	if err := d.Send(slow); err != nil {
		t.Fatalf("Send slow: %v", err)
	}
	if err := d.Send(newTestMessage(message.TypeSendRequest)); err != nil {
		t.Fatalf("Send fast: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := fastDelivered
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("fast message never delivered while slow callback was blocked")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartIsIdempotent(t *testing.T) {
	d := New(zerolog.Nop(), 1)
	d.RegisterCallbacks(func(msg *message.Message) {}, func(msg *message.Message) {})
	d.Start()
	d.Start()
	d.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	d := New(zerolog.Nop(), 1)
	d.RegisterCallbacks(func(msg *message.Message) {}, func(msg *message.Message) {})
	d.Start()
	d.Stop()
	d.Stop()
}
