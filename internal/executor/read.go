package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/nexus-edge/opcua-edge-adapter/internal/codec"
	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
	"github.com/nexus-edge/opcua-edge-adapter/internal/validation"
)

// readMaxAgeMs is the bit-exact maxAge spec §6 fixes for the Read path.
// checkMaxAge is evaluated against the server timestamp with double this
// value, per read.c's "now - serverTimestamp > 2*maxAge" rejection rule
// (spec §4.4.1 step 3).
const readMaxAgeMs = 2000

// Read performs a batch Read service call and delivers the successful
// elements in one GeneralResponse plus one Error message per failed
// element (spec §4.4.1's PerElementFailure policy), enforcing the
// maxAge/timestamp-sanity rules ported from read.c's
// checkMaxAge/checkInvalidTime.
func (e *Executor) Read(ctx context.Context, msg *message.Message) error {
	return e.read(ctx, msg, ua.AttributeIDValue)
}

// ReadSamplingInterval mirrors Read but targets the
// MinimumSamplingInterval attribute instead of Value, matching the
// source's "ReadSamplingInterval" command variant (spec §4.4.1).
func (e *Executor) ReadSamplingInterval(ctx context.Context, msg *message.Message) error {
	return e.read(ctx, msg, ua.AttributeIDMinimumSamplingInterval)
}

func (e *Executor) read(ctx context.Context, msg *message.Message, attrID uint32) error {
	entry, err := e.client(msg.EndpointInfo.URI)
	if err != nil {
		return err
	}

	reqs := requestsOf(msg)
	readValueIDs := make([]*ua.ReadValueID, 0, len(reqs))
	for _, r := range reqs {
		nodeID, err := nodeIDFrom(r.NodeInfo.NodeID)
		if err != nil {
			return err
		}
		readValueIDs = append(readValueIDs, &ua.ReadValueID{
			NodeID:      nodeID,
			AttributeID: attrID,
		})
	}

	resp, err := entry.Client.Read(ctx, &ua.ReadRequest{
		NodesToRead:        readValueIDs,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	})
	if err != nil {
		return fmt.Errorf("%w: read: %v", domain.ErrServiceResultBad, err)
	}
	if len(resp.Results) != len(reqs) {
		return fmt.Errorf("%w: read returned %d results for %d requests", domain.ErrServiceResultBad, len(resp.Results), len(reqs))
	}

	now := e.now()
	responses := make([]*message.Response, 0, len(reqs))
	for i, dv := range resp.Results {
		r := reqs[i]
		if fail := validateReadElement(dv, now); fail != "" {
			e.sendElementError(msg, r, fail)
			continue
		}

		v, err := codec.VariantToVersatility(dv.Value)
		if err != nil {
			e.sendElementError(msg, r, err.Error())
			continue
		}
		if v.IsArray && v.ArrayLength < 1 {
			e.sendElementError(msg, r, "array value with arrayLength < 1")
			continue
		}

		responses = append(responses, &message.Response{
			NodeInfo:  r.NodeInfo.Clone(),
			Type:      v.Type,
			IsArray:   v.IsArray,
			Value:     v,
			RequestID: r.RequestID,
		})
	}

	if len(responses) == 0 {
		return nil
	}
	return e.recv.Receive(&message.Message{
		Type:         message.TypeGeneralResponse,
		EndpointInfo: msg.EndpointInfo,
		MessageID:    msg.MessageID,
		Responses:    responses,
	})
}

// validateReadElement applies the status/maxAge/timestamp-sanity checks of
// spec §4.4.1 steps 1-4 (timestampsToReturn fixed to Both, as the source
// does) and returns a non-empty failure description when the element
// should be rejected.
func validateReadElement(dv *ua.DataValue, now time.Time) string {
	if dv.Status != ua.StatusOK {
		return dv.Status.Error()
	}
	if !validation.CheckInvalidTime(dv.ServerTimestamp, dv.SourceTimestamp, now, validation.TimestampsBoth) {
		return "timestamp outside validity window"
	}
	if !validation.CheckMaxAge(dv.ServerTimestamp, now, readMaxAgeMs*2) {
		return "value exceeds max age"
	}
	return ""
}

// sendElementError pushes one Error message carrying msg's batch
// message_id for a single failed batch element, matching the spec's
// PerElementFailure policy: "one Error message with description 'Error in
// read response', continue processing the batch" (spec §4.4.1).
func (e *Executor) sendElementError(msg *message.Message, r *message.Request, reason string) {
	errMsg := &message.Message{
		Type:         message.TypeError,
		EndpointInfo: msg.EndpointInfo,
		MessageID:    msg.MessageID,
		Result:       &message.Result{Code: domain.StatusServiceResultBad},
		Responses: []*message.Response{
			{NodeInfo: r.NodeInfo.Clone(), RequestID: r.RequestID, ErrorMessage: fmt.Sprintf("Error in read response: %s", reason)},
		},
	}
	if err := e.recv.Receive(errMsg); err != nil {
		e.logger.Error().Err(err).Msg("failed to deliver per-element read error")
	}
}
