package executor

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua/ua"

	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
	"github.com/nexus-edge/opcua-edge-adapter/internal/session"
)

// Browse performs a Browse service call (and BrowseNext when the caller
// supplies a continuation point) and delivers a BrowseResponse message.
// Kept deliberately thin per the spec: reference decoding and
// continuation-point pagination beyond a single round-trip are out of
// scope (spec §4.4.4 Non-goals).
func (e *Executor) Browse(ctx context.Context, msg *message.Message) error {
	entry, err := e.client(msg.EndpointInfo.URI)
	if err != nil {
		return err
	}

	if len(msg.ContinuationPoints) > 0 {
		return e.browseNext(ctx, entry, msg)
	}

	reqs := requestsOf(msg)
	descs := make([]*ua.BrowseDescription, 0, len(reqs))
	maxRefs := uint32(0)
	direction := ua.BrowseDirectionForward
	if msg.BrowseParam != nil {
		direction = browseDirection(msg.BrowseParam.Direction)
		maxRefs = msg.BrowseParam.MaxReferencesPerNode
	}
	for _, r := range reqs {
		nodeID, err := nodeIDFrom(r.NodeInfo.NodeID)
		if err != nil {
			return err
		}
		descs = append(descs, &ua.BrowseDescription{
			NodeID:          nodeID,
			BrowseDirection: direction,
			ReferenceTypeID: ua.NewNumericNodeID(0, 33), // HierarchicalReferences
			IncludeSubtypes: true,
			ResultMask:      uint32(ua.BrowseResultMaskAll),
		})
	}

	resp, err := entry.Client.Browse(ctx, &ua.BrowseRequest{
		View:                        &ua.ViewDescription{},
		RequestedMaxReferencesPerNode: maxRefs,
		NodesToBrowse:               descs,
	})
	if err != nil {
		return fmt.Errorf("%w: browse: %v", domain.ErrServiceResultBad, err)
	}

	results := make([]*message.BrowseResult, 0)
	continuations := make([][]byte, 0, len(resp.Results))
	for _, br := range resp.Results {
		continuations = append(continuations, br.ContinuationPoint)
		if br.StatusCode != ua.StatusOK {
			continue
		}
		for _, ref := range br.References {
			results = append(results, &message.BrowseResult{
				StatusCode:          uint32(br.StatusCode),
				ContinuationPoint:   br.ContinuationPoint,
				ReferenceBrowseName: ref.BrowseName.Name,
				IsForward:           ref.IsForward,
				NodeClass:           uint32(ref.NodeClass),
			})
		}
	}

	return e.recv.Receive(&message.Message{
		Type:               message.TypeBrowseResponse,
		EndpointInfo:       msg.EndpointInfo,
		MessageID:          msg.MessageID,
		BrowseResultList:   results,
		ContinuationPoints: continuations,
	})
}

func (e *Executor) browseNext(ctx context.Context, entry *session.Entry, msg *message.Message) error {
	reqs := make([]*ua.BrowseNextRequest, 0, 1)
	reqs = append(reqs, &ua.BrowseNextRequest{
		ReleaseContinuationPoints: false,
		ContinuationPoints:        msg.ContinuationPoints,
	})

	resp, err := entry.Client.BrowseNext(ctx, reqs[0])
	if err != nil {
		return fmt.Errorf("%w: browse next: %v", domain.ErrServiceResultBad, err)
	}

	results := make([]*message.BrowseResult, 0)
	continuations := make([][]byte, 0, len(resp.Results))
	for _, br := range resp.Results {
		continuations = append(continuations, br.ContinuationPoint)
		if br.StatusCode != ua.StatusOK {
			continue
		}
		for _, ref := range br.References {
			results = append(results, &message.BrowseResult{
				StatusCode:          uint32(br.StatusCode),
				ContinuationPoint:   br.ContinuationPoint,
				ReferenceBrowseName: ref.BrowseName.Name,
				IsForward:           ref.IsForward,
				NodeClass:           uint32(ref.NodeClass),
			})
		}
	}

	return e.recv.Receive(&message.Message{
		Type:               message.TypeBrowseResponse,
		EndpointInfo:       msg.EndpointInfo,
		MessageID:          msg.MessageID,
		BrowseResultList:   results,
		ContinuationPoints: continuations,
	})
}

func browseDirection(d message.BrowseDirection) ua.BrowseDirection {
	switch d {
	case message.BrowseInverse:
		return ua.BrowseDirectionInverse
	case message.BrowseBoth:
		return ua.BrowseDirectionBoth
	default:
		return ua.BrowseDirectionForward
	}
}
