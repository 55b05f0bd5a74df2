// Package executor implements the per-command service calls the
// dispatcher's send callback routes to: Read, ReadSamplingInterval, Write,
// Method, Browse/BrowseView, and Sub (delegated to internal/subscription).
// Grounded on original_source/src/command/read.c, write.c and method.c,
// generalized with internal/message.TypeTable per spec §9's redesign
// instruction.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
	"github.com/nexus-edge/opcua-edge-adapter/internal/session"
)

// Receiver accepts a completed response message for delivery to the
// caller-facing surface. Satisfied by *dispatcher.Dispatcher without
// executor needing to import it, avoiding the session/executor/dispatcher
// import cycle.
type Receiver interface {
	Receive(msg *message.Message) error
}

// Sessions is the narrow view of internal/session.Registry the executor
// needs: resolving an endpoint to its connected client.
type Sessions interface {
	Get(endpointURI string) (*session.Entry, error)
}

// Executor runs the synchronous OPC-UA service calls for Read, Write,
// Method and Browse commands, and hands the resulting response message to
// a Receiver for delivery back through the receive queue.
type Executor struct {
	logger   zerolog.Logger
	sessions Sessions
	recv     Receiver
	now      func() time.Time
}

// New constructs an Executor.
func New(logger zerolog.Logger, sessions Sessions, recv Receiver) *Executor {
	return &Executor{
		logger:   logger.With().Str("component", "executor").Logger(),
		sessions: sessions,
		recv:     recv,
		now:      time.Now,
	}
}

// HandleSend is the dispatcher.SendCallback entry point: it routes msg by
// message.Command to the matching executor method, matching the source's
// per-command dispatch inside the send callback registered with
// registerMQCallback.
func (e *Executor) HandleSend(msg *message.Message) {
	ctx := context.Background()
	var err error
	switch msg.Command {
	case message.CommandRead:
		err = e.Read(ctx, msg)
	case message.CommandReadSamplingInterval:
		err = e.ReadSamplingInterval(ctx, msg)
	case message.CommandWrite:
		err = e.Write(ctx, msg)
	case message.CommandMethod:
		err = e.Method(ctx, msg)
	case message.CommandBrowse, message.CommandBrowseView:
		err = e.Browse(ctx, msg)
	default:
		err = fmt.Errorf("%w: command %d has no executor", domain.ErrNotSupport, msg.Command)
	}
	if err != nil {
		e.sendError(msg, err)
	}
}

func (e *Executor) client(endpointURI string) (*session.Entry, error) {
	entry, err := e.sessions.Get(endpointURI)
	if err != nil {
		return nil, err
	}
	if entry.Client == nil || !entry.Client.IsConnected() {
		return nil, domain.ErrConnectionClosed
	}
	return entry, nil
}

// sendError builds a single-response Error message, matching
// sendErrorResponse's exactly-one-response-slot allocation (spec §9: the
// source's per-element loop over an uninitialized size is NOT emulated).
func (e *Executor) sendError(msg *message.Message, cause error) {
	resp := &message.Message{
		Type:         message.TypeError,
		EndpointInfo: msg.EndpointInfo,
		MessageID:    msg.MessageID,
		Result:       &message.Result{Code: domain.StatusInternalError},
		Responses: []*message.Response{
			{ErrorMessage: cause.Error()},
		},
	}
	if e.recv != nil {
		if err := e.recv.Receive(resp); err != nil {
			e.logger.Error().Err(err).Msg("failed to deliver error response")
		}
	}
}

func requestsOf(msg *message.Message) []*message.Request {
	if msg.Request != nil {
		return []*message.Request{msg.Request}
	}
	return msg.Requests
}

// nodeIDFrom builds a ua.NodeID from a message.NodeId, matching the
// identifier-type dispatch edge_utils.c performs when converting
// EdgeNodeId to UA_NodeId.
func nodeIDFrom(n message.NodeId) (*ua.NodeID, error) {
	switch n.IdentifierType {
	case message.IdentifierNumeric:
		id, ok := n.Identifier.(uint32)
		if !ok {
			return nil, fmt.Errorf("%w: numeric identifier has wrong Go type", domain.ErrParamInvalid)
		}
		return ua.NewNumericNodeID(n.Namespace, id), nil
	case message.IdentifierString:
		id, ok := n.Identifier.(string)
		if !ok {
			return nil, fmt.Errorf("%w: string identifier has wrong Go type", domain.ErrParamInvalid)
		}
		return ua.NewStringNodeID(n.Namespace, id), nil
	case message.IdentifierByteString:
		id, ok := n.Identifier.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: bytestring identifier has wrong Go type", domain.ErrParamInvalid)
		}
		return ua.NewByteArrayNodeID(n.Namespace, id), nil
	case message.IdentifierGUID:
		id, ok := n.Identifier.(string)
		if !ok {
			return nil, fmt.Errorf("%w: guid identifier has wrong Go type", domain.ErrParamInvalid)
		}
		return ua.NewGUIDNodeID(n.Namespace, id), nil
	default:
		return nil, fmt.Errorf("%w: unknown identifier type %d", domain.ErrParamInvalid, n.IdentifierType)
	}
}
