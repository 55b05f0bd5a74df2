package executor

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua/ua"

	"github.com/nexus-edge/opcua-edge-adapter/internal/codec"
	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
)

// Method performs a Call service call for each requested method node,
// marshaling input arguments through message.TypeTable and unmarshaling
// output arguments the same way, grounded on method.c's argument-array
// construction.
func (e *Executor) Method(ctx context.Context, msg *message.Message) error {
	entry, err := e.client(msg.EndpointInfo.URI)
	if err != nil {
		return err
	}

	reqs := requestsOf(msg)
	responses := make([]*message.Response, 0, len(reqs))
	for _, r := range reqs {
		objectID, err := nodeIDFrom(r.NodeInfo.NodeID)
		if err != nil {
			return err
		}

		inputs := make([]*ua.Variant, 0, len(r.MethodParams.InputArgs))
		for _, arg := range r.MethodParams.InputArgs {
			v, err := codec.VersatilityToVariant(&message.Versatility{Type: arg.ArgType, Value: arg.Value, IsArray: arg.ValType == message.ArgArray1D})
			if err != nil {
				return err
			}
			inputs = append(inputs, v)
		}

		methodID, err := ua.ParseNodeID(r.NodeInfo.MethodName)
		if err != nil {
			// MethodName carries a literal NodeId string (e.g. "ns=2;s=Square");
			// a bare browse name is not resolvable without a Browse round-trip,
			// which the spec explicitly keeps out of Method's scope.
			return fmt.Errorf("%w: method name %q is not a parseable NodeId: %v", domain.ErrParamInvalid, r.NodeInfo.MethodName, err)
		}

		result, err := entry.Client.Call(ctx, &ua.CallMethodRequest{
			ObjectID:       objectID,
			MethodID:       methodID,
			InputArguments: inputs,
		})
		out := &message.Response{NodeInfo: r.NodeInfo.Clone(), RequestID: r.RequestID}
		if err != nil {
			out.ErrorMessage = fmt.Sprintf("Error in executing METHOD OPERATION.: %v", err)
			responses = append(responses, out)
			continue
		}
		if result.StatusCode != ua.StatusOK {
			out.ErrorMessage = fmt.Sprintf("Error in executing METHOD OPERATION.: %v", result.StatusCode)
			responses = append(responses, out)
			continue
		}

		outArgs := make([]message.Arg, 0, len(result.OutputArguments))
		for _, v := range result.OutputArguments {
			vers, err := codec.VariantToVersatility(v)
			if err != nil {
				out.ErrorMessage = err.Error()
				break
			}
			valType := message.ArgScalar
			if vers.IsArray {
				valType = message.ArgArray1D
			}
			outArgs = append(outArgs, message.Arg{ArgType: vers.Type, ValType: valType, Value: vers.Value})
		}
		out.MethodResult = &message.MethodParams{OutputArgs: outArgs}
		responses = append(responses, out)
	}

	return e.recv.Receive(&message.Message{
		Type:         message.TypeGeneralResponse,
		EndpointInfo: msg.EndpointInfo,
		MessageID:    msg.MessageID,
		Responses:    responses,
	})
}
