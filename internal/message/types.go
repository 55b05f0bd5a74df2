// Package message defines the canonical request/response record that
// crosses the queue boundary (spec §3), and the deep-copy discipline that
// makes that crossing safe between the caller's goroutine and the worker
// pool (spec §4.7, §9).
package message

import "github.com/nexus-edge/opcua-edge-adapter/internal/domain"

// ApplicationType identifies the kind of OPC-UA application an endpoint
// belongs to. The numeric values line up with domain.ApplicationTypeMask so
// a single value can be tested against the supported-types bitmask.
type ApplicationType uint8

const (
	AppTypeServer          ApplicationType = ApplicationType(domain.AppTypeServer)
	AppTypeClient          ApplicationType = ApplicationType(domain.AppTypeClient)
	AppTypeClientAndServer ApplicationType = ApplicationType(domain.AppTypeClientAndServer)
	AppTypeDiscoveryServer ApplicationType = ApplicationType(domain.AppTypeDiscoveryServer)
)

// SecurityMode mirrors the OPC-UA MessageSecurityMode enumeration closely
// enough for the validation rules in spec §4.6.1 without depending on the
// wire codec package directly.
type SecurityMode uint32

const (
	SecurityModeInvalid SecurityMode = iota
	SecurityModeNone
	SecurityModeSign
	SecurityModeSignAndEncrypt
)

// AppConfig is the identity of an OPC-UA application (spec §3).
type AppConfig struct {
	ApplicationURI      string
	ProductURI          string
	ApplicationName     string
	GatewayServerURI    string
	DiscoveryProfileURI string
	ApplicationType     ApplicationType
	DiscoveryURLs       []string
	Locale              string
}

// EndpointConfig carries endpoint-local tuning that the wire codec needs but
// the core treats opaquely.
type EndpointConfig struct {
	BindAddress    string
	BindPort       uint16
	ServerName     string
	RequestTimeout uint32
}

// EndpointInfo is an addressable OPC-UA endpoint (spec §3).
type EndpointInfo struct {
	URI                 string
	SecurityMode        SecurityMode
	SecurityPolicyURI   string
	TransportProfileURI string
	SecurityLevel       uint8
	EndpointConfig      *EndpointConfig
	AppConfig           *AppConfig
}

// IdentifierType is the NodeId discriminant (spec §3).
type IdentifierType uint8

const (
	IdentifierNumeric IdentifierType = iota
	IdentifierString
	IdentifierGUID
	IdentifierByteString
)

// NodeId identifies a node in a server's address space (spec §3).
type NodeId struct {
	Namespace      uint16
	IdentifierType IdentifierType
	Identifier     interface{} // uint32 | string | string (GUID text form) | []byte, per IdentifierType
}

// NodeInfo references a remote node from the client side (spec §3).
type NodeInfo struct {
	NodeID     NodeId
	ValueAlias string
	MethodName string
}

// Clone returns a deep copy of n, or nil if n is nil.
func (n *NodeInfo) Clone() *NodeInfo {
	if n == nil {
		return nil
	}
	out := *n
	if b, ok := n.NodeID.Identifier.([]byte); ok {
		out.NodeID.Identifier = append([]byte(nil), b...)
	}
	return &out
}

// ScalarType tags the wire type carried by a Versatility (spec §3).
type ScalarType uint8

const (
	TypeUnknown ScalarType = iota
	TypeBoolean
	TypeSByte
	TypeByte
	TypeInt16
	TypeUInt16
	TypeInt32
	TypeUInt32
	TypeInt64
	TypeUInt64
	TypeFloat
	TypeDouble
	TypeString
	TypeDateTime
	TypeGUID
	TypeByteString
	TypeStatusCode
)

// Versatility is a typed payload (spec §3). Value holds a Go-native
// representation: a scalar of the matching kind when IsArray is false, or a
// slice of that kind when IsArray is true.
type Versatility struct {
	Type        ScalarType
	IsArray     bool
	ArrayLength int
	Value       interface{}
}

// Clone deep-copies v. []byte, [][]byte, []string, []bool and slices of the
// fixed-width integer and float kinds are copied so the clone shares no
// backing storage with the original (spec §3 "owned heap objects"); a value
// of any other slice type is shared with the original.
func (v *Versatility) Clone() *Versatility {
	if v == nil {
		return nil
	}
	out := &Versatility{Type: v.Type, IsArray: v.IsArray, ArrayLength: v.ArrayLength}
	out.Value = cloneScalarValue(v.Value)
	return out
}

func cloneScalarValue(val interface{}) interface{} {
	switch vv := val.(type) {
	case []byte:
		cp := make([]byte, len(vv))
		copy(cp, vv)
		return cp
	case []string:
		cp := make([]string, len(vv))
		copy(cp, vv)
		return cp
	case [][]byte:
		cp := make([][]byte, len(vv))
		for i, b := range vv {
			bb := make([]byte, len(b))
			copy(bb, b)
			cp[i] = bb
		}
		return cp
	case []int32:
		cp := make([]int32, len(vv))
		copy(cp, vv)
		return cp
	case []uint32:
		cp := make([]uint32, len(vv))
		copy(cp, vv)
		return cp
	case []int16:
		cp := make([]int16, len(vv))
		copy(cp, vv)
		return cp
	case []uint16:
		cp := make([]uint16, len(vv))
		copy(cp, vv)
		return cp
	case []int64:
		cp := make([]int64, len(vv))
		copy(cp, vv)
		return cp
	case []uint64:
		cp := make([]uint64, len(vv))
		copy(cp, vv)
		return cp
	case []float32:
		cp := make([]float32, len(vv))
		copy(cp, vv)
		return cp
	case []float64:
		cp := make([]float64, len(vv))
		copy(cp, vv)
		return cp
	case []bool:
		cp := make([]bool, len(vv))
		copy(cp, vv)
		return cp
	default:
		// Scalars (string, numeric kinds, bool) are copy-by-value in Go.
		return val
	}
}

// SubType enumerates the subscription intents of a SubRequest (spec §3).
type SubType uint8

const (
	SubCreate SubType = iota
	SubModify
	SubDelete
	SubRepublish
)

// SubRequest is the intent to create/modify/delete/republish a subscription
// on one node (spec §3).
type SubRequest struct {
	SubType                    SubType
	SamplingInterval           float64
	PublishingInterval         float64
	MaxKeepAliveCount          uint32
	LifetimeCount              uint32
	MaxNotificationsPerPublish uint32
	PublishingEnabled          bool
	Priority                   byte
	QueueSize                  uint32
}

// Clone deep-copies s.
func (s *SubRequest) Clone() *SubRequest {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// ArgValueType distinguishes scalar from 1-D array method arguments.
type ArgValueType uint8

const (
	ArgScalar ArgValueType = iota
	ArgArray1D
)

// Arg is one input or output argument of a Method call (spec §3).
type Arg struct {
	ArgType ScalarType
	ValType ArgValueType
	Value   interface{}
}

func (a Arg) clone() Arg {
	out := a
	out.Value = cloneScalarValue(a.Value)
	return out
}

// MethodParams carries Call inputs/outputs (spec §3).
type MethodParams struct {
	InputArgs  []Arg
	OutputArgs []Arg
}

// Clone deep-copies m.
func (m *MethodParams) Clone() *MethodParams {
	if m == nil {
		return nil
	}
	out := &MethodParams{
		InputArgs:  make([]Arg, len(m.InputArgs)),
		OutputArgs: make([]Arg, len(m.OutputArgs)),
	}
	for i, a := range m.InputArgs {
		out.InputArgs[i] = a.clone()
	}
	for i, a := range m.OutputArgs {
		out.OutputArgs[i] = a.clone()
	}
	return out
}

// Request is one element in a batch operation (spec §3). Depending on the
// command, at most one of {Value, SubMsg, MethodParams} is used; Read and
// Browse use none of them.
type Request struct {
	NodeInfo     *NodeInfo
	Value        *Versatility
	SubMsg       *SubRequest
	MethodParams *MethodParams
	RequestID    uint32
}

// Clone deep-copies r.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	return &Request{
		NodeInfo:     r.NodeInfo.Clone(),
		Value:        r.Value.Clone(),
		SubMsg:       r.SubMsg.Clone(),
		MethodParams: r.MethodParams.Clone(),
		RequestID:    r.RequestID,
	}
}

// Type is the transport-unit discriminant (spec §3).
type Type uint8

const (
	TypeSendRequest Type = iota
	TypeSendRequests
	TypeGeneralResponse
	TypeBrowseResponse
	TypeReport
	TypeError
)

// Command identifies which executor a SendRequest(s) message routes to
// (spec §4.2).
type Command uint8

const (
	CommandStartServer Command = iota
	CommandStopServer
	CommandStartClient
	CommandStopClient
	CommandRead
	CommandReadSamplingInterval
	CommandWrite
	CommandMethod
	CommandSub
	CommandBrowse
	CommandBrowseView
)

// BrowseDirection mirrors the OPC-UA browse direction enumeration.
type BrowseDirection uint8

const (
	BrowseForward BrowseDirection = iota
	BrowseInverse
	BrowseBoth
)

// BrowseParam carries the Browse/BrowseView request parameters (spec §4.4.4).
type BrowseParam struct {
	Direction            BrowseDirection
	MaxReferencesPerNode uint32
}

func (b *BrowseParam) clone() *BrowseParam {
	if b == nil {
		return nil
	}
	out := *b
	return &out
}

// BrowseResult is one element of a Browse response (kept opaque: the wire
// codec owns reference decoding, spec §4.4.4).
type BrowseResult struct {
	StatusCode         uint32
	ContinuationPoint  []byte
	ReferenceBrowseName string
	ReferenceNodeID    NodeId
	IsForward          bool
	NodeClass          uint32
}

func cloneBrowseResults(in []*BrowseResult) []*BrowseResult {
	if in == nil {
		return nil
	}
	out := make([]*BrowseResult, len(in))
	for i, r := range in {
		if r == nil {
			continue
		}
		cp := *r
		cp.ContinuationPoint = append([]byte(nil), r.ContinuationPoint...)
		out[i] = &cp
	}
	return out
}

func cloneContinuationPoints(in [][]byte) [][]byte {
	if in == nil {
		return nil
	}
	out := make([][]byte, len(in))
	for i, cp := range in {
		out[i] = append([]byte(nil), cp...)
	}
	return out
}

// DiagnosticInfo carries per-response diagnostics (spec §4.4.1).
type DiagnosticInfo struct {
	SymbolicID     int32
	LocalizedText  int32
	Locale         int32
	AdditionalInfo string
	Inner          *DiagnosticInfo
	Msg            string
}

func (d *DiagnosticInfo) clone() *DiagnosticInfo {
	if d == nil {
		return nil
	}
	out := *d
	out.Inner = d.Inner.clone()
	return &out
}

// Response is one element of a GeneralResponse, BrowseResponse or Report
// message (spec §4.4.1, §4.5).
type Response struct {
	NodeInfo     *NodeInfo
	Type         ScalarType
	IsArray      bool
	Value        *Versatility
	MethodResult *MethodParams
	Diagnostics  *DiagnosticInfo
	RequestID    uint32
	ErrorMessage string
}

func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		NodeInfo:     r.NodeInfo.Clone(),
		Type:         r.Type,
		IsArray:      r.IsArray,
		Value:        r.Value.Clone(),
		MethodResult: r.MethodResult.Clone(),
		Diagnostics:  r.Diagnostics.clone(),
		RequestID:    r.RequestID,
		ErrorMessage: r.ErrorMessage,
	}
}

// Result is the EdgeResult attached to Error messages and returned by
// synchronous operations (spec §3, §6).
type Result struct {
	Code domain.StatusCode
}

// Message is the transport unit crossing the queue boundary (spec §3).
type Message struct {
	Type               Type
	Command            Command
	EndpointInfo       *EndpointInfo
	Request            *Request
	Requests           []*Request
	Responses          []*Response
	BrowseParam        *BrowseParam
	BrowseResultList   []*BrowseResult
	ContinuationPoints [][]byte
	Result             *Result
	MessageID          uint32
}

func (e *EndpointInfo) clone() *EndpointInfo {
	if e == nil {
		return nil
	}
	out := *e
	if e.EndpointConfig != nil {
		cfg := *e.EndpointConfig
		out.EndpointConfig = &cfg
	}
	if e.AppConfig != nil {
		ac := *e.AppConfig
		ac.DiscoveryURLs = append([]string(nil), e.AppConfig.DiscoveryURLs...)
		out.AppConfig = &ac
	}
	return &out
}

// Clone returns a deep copy of m, safe to hand across a queue boundary
// without sharing storage with the original (spec §3, §9).
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := &Message{
		Type:               m.Type,
		Command:            m.Command,
		EndpointInfo:       m.EndpointInfo.clone(),
		Request:            m.Request.Clone(),
		BrowseParam:        m.BrowseParam.clone(),
		BrowseResultList:   cloneBrowseResults(m.BrowseResultList),
		ContinuationPoints: cloneContinuationPoints(m.ContinuationPoints),
		MessageID:          m.MessageID,
	}
	if m.Requests != nil {
		out.Requests = make([]*Request, len(m.Requests))
		for i, r := range m.Requests {
			out.Requests[i] = r.Clone()
		}
	}
	if m.Responses != nil {
		out.Responses = make([]*Response, len(m.Responses))
		for i, r := range m.Responses {
			out.Responses[i] = r.clone()
		}
	}
	if m.Result != nil {
		res := *m.Result
		out.Result = &res
	}
	return out
}
