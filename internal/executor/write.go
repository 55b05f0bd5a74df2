package executor

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua/ua"

	"github.com/nexus-edge/opcua-edge-adapter/internal/codec"
	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
)

// Write performs a batch Write service call. Successful elements are
// delivered as one GeneralResponse whose Versatility.Value is the textual
// status name "Good" (spec §4.4.2); each failed element produces its own
// Error message carrying the batch's message_id, mirroring write.c's
// sendErrorResponse fix of always allocating exactly one response slot per
// failure rather than an uninitialized-size array (spec §9).
func (e *Executor) Write(ctx context.Context, msg *message.Message) error {
	entry, err := e.client(msg.EndpointInfo.URI)
	if err != nil {
		return err
	}

	reqs := requestsOf(msg)
	writeValues := make([]*ua.WriteValue, 0, len(reqs))
	for _, r := range reqs {
		nodeID, err := nodeIDFrom(r.NodeInfo.NodeID)
		if err != nil {
			return err
		}
		variant, err := codec.VersatilityToVariant(r.Value)
		if err != nil {
			return err
		}
		writeValues = append(writeValues, &ua.WriteValue{
			NodeID:      nodeID,
			AttributeID: ua.AttributeIDValue,
			Value: &ua.DataValue{
				EncodingMask: ua.DataValueValue,
				Value:        variant,
			},
		})
	}

	resp, err := entry.Client.Write(ctx, &ua.WriteRequest{NodesToWrite: writeValues})
	if err != nil {
		return fmt.Errorf("%w: write: %v", domain.ErrServiceResultBad, err)
	}
	if len(resp.Results) != len(reqs) {
		return fmt.Errorf("%w: Error in write operation", domain.ErrServiceResultBad)
	}

	responses := make([]*message.Response, 0, len(reqs))
	for i, status := range resp.Results {
		r := reqs[i]
		if status != ua.StatusOK {
			e.sendWriteElementError(msg, r, status.Error())
			continue
		}
		responses = append(responses, &message.Response{
			NodeInfo:  r.NodeInfo.Clone(),
			RequestID: r.RequestID,
			Value:     &message.Versatility{Type: message.TypeString, Value: "Good"},
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

func (e *Executor) sendWriteElementError(msg *message.Message, r *message.Request, reason string) {
	errMsg := &message.Message{
		Type:         message.TypeError,
		EndpointInfo: msg.EndpointInfo,
		MessageID:    msg.MessageID,
		Result:       &message.Result{Code: domain.StatusServiceResultBad},
		Responses: []*message.Response{
			{NodeInfo: r.NodeInfo.Clone(), RequestID: r.RequestID, ErrorMessage: fmt.Sprintf("Error in write Response: %s", reason)},
		},
	}
	if err := e.recv.Receive(errMsg); err != nil {
		e.logger.Error().Err(err).Msg("failed to deliver per-element write error")
	}
}
