package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
	"github.com/nexus-edge/opcua-edge-adapter/internal/session"
)

type fakeSessions struct{}

func (fakeSessions) Get(endpointURI string) (*session.Entry, error) {
	return nil, domain.ErrSessionNotFound
}

type fakeReceiver struct {
	received []*message.Message
}

func (f *fakeReceiver) Receive(msg *message.Message) error {
	f.received = append(f.received, msg)
	return nil
}

func newTestManager() *Manager {
	return New(zerolog.Nop(), fakeSessions{}, &fakeReceiver{})
}

func TestHandleSendRejectsMessageWithoutSubRequest(t *testing.T) {
	m := newTestManager()
	msg := &message.Message{
		Type:    message.TypeSendRequest,
		Command: message.CommandSub,
		Request: &message.Request{NodeInfo: &message.NodeInfo{ValueAlias: "a"}},
	}
	err := m.HandleSend("opc.tcp://host:4840", msg)
	if !errors.Is(err, domain.ErrParamInvalid) {
		t.Fatalf("expected ErrParamInvalid, got %v", err)
	}
}

func TestCreateRejectsNonBatchMessage(t *testing.T) {
	m := newTestManager()
	msg := &message.Message{
		Type: message.TypeSendRequest,
		Request: &message.Request{
			NodeInfo: &message.NodeInfo{ValueAlias: "a"},
			SubMsg:   &message.SubRequest{SubType: message.SubCreate},
		},
	}
	err := m.Create(context.Background(), "opc.tcp://host:4840", msg)
	if !errors.Is(err, domain.ErrRequestCancelled) {
		t.Fatalf("expected ErrRequestCancelled for non-batch create, got %v", err)
	}
}

func TestCreateRejectsMissingAlias(t *testing.T) {
	m := newTestManager()
	msg := &message.Message{
		Type: message.TypeSendRequests,
		Requests: []*message.Request{
			{NodeInfo: &message.NodeInfo{}, SubMsg: &message.SubRequest{SubType: message.SubCreate}},
		},
	}
	err := m.Create(context.Background(), "opc.tcp://host:4840", msg)
	if !errors.Is(err, domain.ErrRequestCancelled) {
		t.Fatalf("expected ErrRequestCancelled for missing alias, got %v", err)
	}
}

func TestCreateRejectsDuplicateAliasInBatch(t *testing.T) {
	m := newTestManager()
	msg := &message.Message{
		Type: message.TypeSendRequests,
		Requests: []*message.Request{
			{NodeInfo: &message.NodeInfo{ValueAlias: "a"}, SubMsg: &message.SubRequest{SubType: message.SubCreate}},
			{NodeInfo: &message.NodeInfo{ValueAlias: "a"}, SubMsg: &message.SubRequest{SubType: message.SubCreate}},
		},
	}
	err := m.Create(context.Background(), "opc.tcp://host:4840", msg)
	if !errors.Is(err, domain.ErrRequestCancelled) {
		t.Fatalf("expected ErrRequestCancelled for duplicate alias, got %v", err)
	}
}

func TestModifyUnknownEndpointReturnsErrNoSubscription(t *testing.T) {
	m := newTestManager()
	req := &message.Request{
		NodeInfo: &message.NodeInfo{ValueAlias: "a"},
		SubMsg:   &message.SubRequest{SubType: message.SubModify},
	}
	if err := m.Modify(context.Background(), "opc.tcp://host:4840", req); err != domain.ErrNoSubscription {
		t.Fatalf("expected ErrNoSubscription, got %v", err)
	}
}

func TestDeleteUnknownEndpointReturnsErrNoSubscription(t *testing.T) {
	m := newTestManager()
	if err := m.Delete("opc.tcp://host:4840", "a"); err != domain.ErrNoSubscription {
		t.Fatalf("expected ErrNoSubscription, got %v", err)
	}
}

func TestRepublishUnknownEndpointReturnsErrNoSubscription(t *testing.T) {
	m := newTestManager()
	if err := m.Republish(context.Background(), "opc.tcp://host:4840", "a"); err != domain.ErrNoSubscription {
		t.Fatalf("expected ErrNoSubscription, got %v", err)
	}
}

func TestStopWithNoSubscriptionsIsSafe(t *testing.T) {
	m := newTestManager()
	m.Stop()
}

func TestHandleSendUnknownSubTypeIsRejected(t *testing.T) {
	m := newTestManager()
	msg := &message.Message{
		Type:    message.TypeSendRequest,
		Command: message.CommandSub,
		Request: &message.Request{
			NodeInfo: &message.NodeInfo{ValueAlias: "a"},
			SubMsg:   &message.SubRequest{SubType: message.SubType(99)},
		},
	}
	err := m.HandleSend("opc.tcp://host:4840", msg)
	if !errors.Is(err, domain.ErrParamInvalid) {
		t.Fatalf("expected ErrParamInvalid for unknown sub type, got %v", err)
	}
}
