// Package subscription implements Create/Modify/Delete/Republish
// subscription operations and the per-session notification handler that
// turns OPC-UA data-change notifications into Report messages (spec
// §4.4.5, §4.5). Adapted from the teacher's
// internal/adapter/opcua/subscription.go SubscriptionManager, generalized
// from its per-device/tag grouping to the spec's per-endpoint/alias model,
// and grounded on original_source/src/command/subscription.c for the
// Create/Modify/Delete/Republish verb set. The source's dedicated 100ms
// publish-thread poll loop (spec §4.5) is replaced by gopcua's own
// push-driven publish loop feeding notifyCh, which the handler goroutine
// below drains — equivalent delivery semantics without hand-rolled
// polling.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-edge-adapter/internal/codec"
	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
	"github.com/nexus-edge/opcua-edge-adapter/internal/session"
)

// Client is the narrow collaborator the manager needs from
// internal/adapter/opcua.Client, kept as a package-local interface so this
// package never imports the concrete adapter type. ModifySubscription,
// SetPublishingMode and Republish operate on a subscriptionId directly, so
// they are wired through the session's Client rather than the
// opcua.Subscription handle (spec §4.4.5).
type Client interface {
	Subscribe(ctx context.Context, params *opcua.SubscriptionParameters, notifyCh chan<- *opcua.PublishNotificationData) (*opcua.Subscription, error)
	ModifySubscription(ctx context.Context, req *ua.ModifySubscriptionRequest) (*ua.ModifySubscriptionResponse, error)
	SetPublishingMode(ctx context.Context, req *ua.SetPublishingModeRequest) (*ua.SetPublishingModeResponse, error)
	Republish(ctx context.Context, req *ua.RepublishRequest) (*ua.RepublishResponse, error)
}

// Sessions is the narrow view of internal/session.Registry the manager
// needs: resolving an endpoint to its connected client, matching
// internal/executor.Sessions.
type Sessions interface {
	Get(endpointURI string) (*session.Entry, error)
}

// Receiver accepts a Report message for delivery through the receive
// queue, matching internal/executor.Receiver's role for this package.
type Receiver interface {
	Receive(msg *message.Message) error
}

// SubscriptionInfo is the per-monitored-item bookkeeping the notification
// handler uses to map a ClientHandle back to a caller-facing alias
// (spec §3).
type SubscriptionInfo struct {
	Alias             string
	ClientHandle      uint32
	MonitoredItemID   uint32
	SamplingInterval  float64
	QueueSize         uint32
	PublishingEnabled bool
}

// ClientSubscription is the per-session subscription state described in
// spec §3: the live server-side subscription plus the alias->item table
// guarding duplicate Create/unknown Modify-Delete-Republish.
type ClientSubscription struct {
	SubscriptionID uint32

	sub      *opcua.Subscription
	notifyCh chan *opcua.PublishNotificationData
	cancel   context.CancelFunc

	mu         sync.Mutex
	items      map[string]*SubscriptionInfo // keyed by valueAlias
	byHandle   map[uint32]string            // ClientHandle -> alias, for notification lookup
	nextHandle uint32
}

// Manager owns one ClientSubscription per connected session and the
// goroutine that drains each one's notification channel (spec §4.5).
type Manager struct {
	logger   zerolog.Logger
	sessions Sessions
	recv     Receiver

	mu   sync.Mutex
	subs map[string]*ClientSubscription // keyed by endpointURI
}

// New constructs a Manager that resolves each endpoint's Client through
// sessions on demand, so one Manager serves every connected session
// (spec §4.3's per-endpoint session table, reused here).
func New(logger zerolog.Logger, sessions Sessions, recv Receiver) *Manager {
	return &Manager{
		logger:   logger.With().Str("component", "subscription.Manager").Logger(),
		sessions: sessions,
		recv:     recv,
		subs:     make(map[string]*ClientSubscription),
	}
}

func (m *Manager) client(endpointURI string) (Client, error) {
	entry, err := m.sessions.Get(endpointURI)
	if err != nil {
		return nil, err
	}
	if entry.Client == nil || !entry.Client.IsConnected() {
		return nil, domain.ErrConnectionClosed
	}
	return entry.Client, nil
}

// HandleSend is the dispatcher.SendCallback entry point for
// message.CommandSub, routing by message.SubType to Create/Modify/Delete/
// Republish (spec §4.4.5).
func (m *Manager) HandleSend(endpointURI string, msg *message.Message) error {
	reqs := requestsOf(msg)
	if len(reqs) == 0 || reqs[0].SubMsg == nil {
		return fmt.Errorf("%w: subscription message with no sub request", domain.ErrParamInvalid)
	}
	switch reqs[0].SubMsg.SubType {
	case message.SubCreate:
		return m.Create(context.Background(), endpointURI, msg)
	case message.SubModify:
		return m.Modify(context.Background(), endpointURI, reqs[0])
	case message.SubDelete:
		return m.Delete(endpointURI, aliasOf(reqs[0]))
	case message.SubRepublish:
		return m.Republish(context.Background(), endpointURI, aliasOf(reqs[0]))
	default:
		return fmt.Errorf("%w: unknown sub type", domain.ErrParamInvalid)
	}
}

func requestsOf(msg *message.Message) []*message.Request {
	if msg.Request != nil {
		return []*message.Request{msg.Request}
	}
	return msg.Requests
}

func aliasOf(r *message.Request) string {
	if r == nil || r.NodeInfo == nil {
		return ""
	}
	return r.NodeInfo.ValueAlias
}

// getOrCreateSession returns the endpoint's ClientSubscription, creating an
// empty one (with its own server-side Subscription already established) on
// first use.
func (m *Manager) getOrCreateSession(ctx context.Context, endpointURI string, sr *message.SubRequest) (*ClientSubscription, error) {
	m.mu.Lock()
	if cs, ok := m.subs[endpointURI]; ok {
		m.mu.Unlock()
		return cs, nil
	}
	m.mu.Unlock()

	client, err := m.client(endpointURI)
	if err != nil {
		return nil, err
	}

	notifyCh := make(chan *opcua.PublishNotificationData, 100)
	params := &opcua.SubscriptionParameters{
		Interval:                   time.Duration(sr.PublishingInterval) * time.Millisecond,
		LifetimeCount:              sr.LifetimeCount,
		MaxKeepAliveCount:          sr.MaxKeepAliveCount,
		MaxNotificationsPerPublish: sr.MaxNotificationsPerPublish,
		Priority:                   sr.Priority,
	}
	sub, err := client.Subscribe(ctx, params, notifyCh)
	if err != nil {
		return nil, fmt.Errorf("%w: create subscription: %v", domain.ErrServiceResultBad, err)
	}
	if sub.SubscriptionID == 0 {
		return nil, fmt.Errorf("%w: server returned subscriptionId 0", domain.ErrServiceResultBad)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	cs := &ClientSubscription{
		SubscriptionID: sub.SubscriptionID,
		sub:            sub,
		notifyCh:       notifyCh,
		cancel:         cancel,
		items:          make(map[string]*SubscriptionInfo),
		byHandle:       make(map[uint32]string),
	}

	m.mu.Lock()
	if existing, ok := m.subs[endpointURI]; ok {
		// Lost a race against a concurrent Create; keep the winner, tear
		// down the subscription we just opened (spec §4.4.5: a duplicate
		// subscriptionId for this session is defensive and should not
		// happen, but the rewrite must not leak the loser's handle).
		m.mu.Unlock()
		cancel()
		if err := sub.Cancel(ctx); err != nil {
			m.logger.Warn().Err(err).Str("endpoint", endpointURI).Msg("remove duplicate subscription failed")
		}
		return existing, nil
	}
	m.subs[endpointURI] = cs
	m.mu.Unlock()

	go m.handleNotifications(subCtx, endpointURI, cs)
	return cs, nil
}

// Create establishes (lazily, on first alias) the session's subscription
// and adds one MonitoredItem per request, rejecting the whole batch with
// an OPC-UA-BadRequestCancelledByClient-equivalent error if it is not a
// batch or carries a duplicate or already-subscribed alias (spec §4.4.5).
func (m *Manager) Create(ctx context.Context, endpointURI string, msg *message.Message) error {
	if msg.Type != message.TypeSendRequests {
		return fmt.Errorf("%w: subscription create requires a batch", domain.ErrRequestCancelled)
	}
	reqs := requestsOf(msg)
	seen := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		alias := aliasOf(r)
		if alias == "" {
			return fmt.Errorf("%w: request missing valueAlias", domain.ErrRequestCancelled)
		}
		if _, dup := seen[alias]; dup {
			return fmt.Errorf("%w: duplicate alias %q in batch", domain.ErrRequestCancelled, alias)
		}
		seen[alias] = struct{}{}
	}

	cs, err := m.getOrCreateSession(ctx, endpointURI, reqs[0].SubMsg)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	for alias := range seen {
		if _, exists := cs.items[alias]; exists {
			cs.mu.Unlock()
			return fmt.Errorf("%w: alias %q already subscribed", domain.ErrRequestCancelled, alias)
		}
	}

	items := make([]*ua.MonitoredItemCreateRequest, 0, len(reqs))
	handleForReq := make([]uint32, len(reqs))
	for i, r := range reqs {
		cs.nextHandle++
		handle := cs.nextHandle
		handleForReq[i] = handle
		items = append(items, &ua.MonitoredItemCreateRequest{
			ItemToMonitor: &ua.ReadValueID{
				AttributeID: ua.AttributeIDValue,
			},
			MonitoringMode: ua.MonitoringModeReporting,
			RequestedParameters: &ua.MonitoringParameters{
				ClientHandle:     handle,
				SamplingInterval: r.SubMsg.SamplingInterval,
				QueueSize:        1,
				DiscardOldest:    true,
			},
		})
	}
	cs.mu.Unlock()

	resp, err := cs.sub.Monitor(ua.TimestampsToReturnBoth, items...)
	if err != nil {
		return fmt.Errorf("%w: add monitored items: %v", domain.ErrServiceResultBad, err)
	}
	if len(resp.Results) != len(reqs) {
		return fmt.Errorf("%w: add monitored items returned %d results for %d requests", domain.ErrServiceResultBad, len(resp.Results), len(reqs))
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	for i, res := range resp.Results {
		alias := aliasOf(reqs[i])
		if res.MonitoredItemID == 0 {
			return fmt.Errorf("%w: monitoredItemId 0 for alias %q", domain.ErrMonitoredItemInvalid, alias)
		}
		if _, exists := cs.items[alias]; exists {
			m.logger.Warn().Str("endpoint", endpointURI).Str("alias", alias).Msg("monitored item already exists, skipping")
			continue
		}
		if res.StatusCode != ua.StatusOK {
			return fmt.Errorf("%w: %v", domain.ErrServiceResultBad, res.StatusCode)
		}
		info := &SubscriptionInfo{
			Alias:             alias,
			ClientHandle:      handleForReq[i],
			MonitoredItemID:   res.MonitoredItemID,
			SamplingInterval:  reqs[i].SubMsg.SamplingInterval,
			QueueSize:         reqs[i].SubMsg.QueueSize,
			PublishingEnabled: reqs[i].SubMsg.PublishingEnabled,
		}
		cs.items[alias] = info
		cs.byHandle[handleForReq[i]] = alias
	}

	m.logger.Info().Str("endpoint", endpointURI).Uint32("subscriptionId", cs.SubscriptionID).Int("items", len(reqs)).Msg("subscription created")
	return nil
}

// Modify pushes r's publishing/sampling parameters to the server for one
// alias's monitored item and returns domain.ErrNoSubscription if the alias
// is unknown. Per spec §4.4.5 it issues, in order: ModifySubscription
// (publishing interval/lifetime/keep-alive/notifications-per-publish/
// priority), ModifyMonitoredItems ({samplingInterval, queueSize,
// discardOldest=true, clientHandle=1}) for the target item,
// SetMonitoringMode(Reporting), and SetPublishingMode(publishingEnabled).
// Any non-Good result from these calls is returned as an error; in-memory
// bookkeeping is only updated once every call has succeeded.
func (m *Manager) Modify(ctx context.Context, endpointURI string, r *message.Request) error {
	alias := aliasOf(r)
	if r.SubMsg == nil {
		return fmt.Errorf("%w: modify request missing subMsg", domain.ErrParamInvalid)
	}

	m.mu.Lock()
	cs, ok := m.subs[endpointURI]
	m.mu.Unlock()
	if !ok {
		return domain.ErrNoSubscription
	}

	cs.mu.Lock()
	info, ok := cs.items[alias]
	cs.mu.Unlock()
	if !ok {
		return domain.ErrNoSubscription
	}

	client, err := m.client(endpointURI)
	if err != nil {
		return err
	}

	sr := r.SubMsg
	modResp, err := client.ModifySubscription(ctx, &ua.ModifySubscriptionRequest{
		SubscriptionID:              cs.SubscriptionID,
		RequestedPublishingInterval: sr.PublishingInterval,
		RequestedLifetimeCount:      sr.LifetimeCount,
		RequestedMaxKeepAliveCount:  sr.MaxKeepAliveCount,
		MaxNotificationsPerPublish:  sr.MaxNotificationsPerPublish,
		Priority:                    sr.Priority,
	})
	if err != nil {
		return fmt.Errorf("%w: modify subscription: %v", domain.ErrServiceResultBad, err)
	}
	m.logger.Debug().Str("endpoint", endpointURI).Float64("revisedPublishingInterval", modResp.RevisedPublishingInterval).Msg("subscription parameters revised")

	miResp, err := cs.sub.ModifyMonitoredItems(ctx, ua.TimestampsToReturnBoth, &ua.MonitoredItemModifyRequest{
		MonitoredItemID: info.MonitoredItemID,
		RequestedParameters: &ua.MonitoringParameters{
			ClientHandle:     1,
			SamplingInterval: sr.SamplingInterval,
			QueueSize:        sr.QueueSize,
			DiscardOldest:    true,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: modify monitored items: %v", domain.ErrServiceResultBad, err)
	}
	if len(miResp.Results) != 1 {
		return fmt.Errorf("%w: modify monitored items returned %d results for 1 request", domain.ErrServiceResultBad, len(miResp.Results))
	}
	if miResp.Results[0].StatusCode != ua.StatusOK {
		return fmt.Errorf("%w: %v", domain.ErrServiceResultBad, miResp.Results[0].StatusCode)
	}

	mmResp, err := cs.sub.SetMonitoringMode(ctx, ua.MonitoringModeReporting, info.MonitoredItemID)
	if err != nil {
		return fmt.Errorf("%w: set monitoring mode: %v", domain.ErrServiceResultBad, err)
	}
	if len(mmResp.Results) != 1 || mmResp.Results[0] != ua.StatusOK {
		return fmt.Errorf("%w: set monitoring mode failed", domain.ErrServiceResultBad)
	}

	pubResp, err := client.SetPublishingMode(ctx, &ua.SetPublishingModeRequest{
		PublishingEnabled: sr.PublishingEnabled,
		SubscriptionIDs:   []uint32{cs.SubscriptionID},
	})
	if err != nil {
		return fmt.Errorf("%w: set publishing mode: %v", domain.ErrServiceResultBad, err)
	}
	if len(pubResp.Results) != 1 || pubResp.Results[0] != ua.StatusOK {
		return fmt.Errorf("%w: set publishing mode failed", domain.ErrServiceResultBad)
	}

	cs.mu.Lock()
	info.SamplingInterval = sr.SamplingInterval
	info.QueueSize = sr.QueueSize
	info.PublishingEnabled = sr.PublishingEnabled
	cs.mu.Unlock()

	m.logger.Info().Str("endpoint", endpointURI).Str("alias", alias).Msg("subscription modified")
	return nil
}

// Delete removes alias's monitored item; when it was the session's last
// item, the server-side subscription is torn down and its notification
// handler stopped (spec §4.4.5).
func (m *Manager) Delete(endpointURI, alias string) error {
	m.mu.Lock()
	cs, ok := m.subs[endpointURI]
	m.mu.Unlock()
	if !ok {
		return domain.ErrNoSubscription
	}

	cs.mu.Lock()
	info, ok := cs.items[alias]
	if !ok {
		cs.mu.Unlock()
		return domain.ErrNoSubscription
	}
	delete(cs.items, alias)
	delete(cs.byHandle, info.ClientHandle)
	empty := len(cs.items) == 0
	cs.mu.Unlock()

	if _, err := cs.sub.Unmonitor(context.Background(), info.MonitoredItemID); err != nil {
		m.logger.Warn().Err(err).Str("endpoint", endpointURI).Str("alias", alias).Msg("remove monitored item failed")
	}

	if empty {
		m.mu.Lock()
		delete(m.subs, endpointURI)
		m.mu.Unlock()
		cs.cancel()
		if err := cs.sub.Cancel(context.Background()); err != nil {
			m.logger.Warn().Err(err).Str("endpoint", endpointURI).Msg("remove subscription failed")
		}
	}

	m.logger.Info().Str("endpoint", endpointURI).Str("alias", alias).Msg("subscription deleted")
	return nil
}

// Republish issues a Republish service call requesting retransmission of
// the notification message with sequence number 2 on alias's subscription
// (retransmitSequenceNumber=2, spec §4.4.5). BadMessageNotAvailable is a
// normal outcome when nothing is queued for retransmission and is logged
// rather than returned; any other non-Good result is returned as an error.
// When the response carries notification data its sequence number is
// logged.
func (m *Manager) Republish(ctx context.Context, endpointURI, alias string) error {
	m.mu.Lock()
	cs, ok := m.subs[endpointURI]
	m.mu.Unlock()
	if !ok {
		return domain.ErrNoSubscription
	}

	cs.mu.Lock()
	_, ok = cs.items[alias]
	cs.mu.Unlock()
	if !ok {
		return domain.ErrNoSubscription
	}

	client, err := m.client(endpointURI)
	if err != nil {
		return err
	}

	resp, err := client.Republish(ctx, &ua.RepublishRequest{
		SubscriptionID:           cs.SubscriptionID,
		RetransmitSequenceNumber: 2,
	})
	if err != nil {
		if isStatus(err, ua.StatusBadMessageNotAvailable) {
			m.logger.Debug().Str("endpoint", endpointURI).Str("alias", alias).Msg("republish: no message available for retransmission")
			return nil
		}
		return fmt.Errorf("%w: republish: %v", domain.ErrServiceResultBad, err)
	}

	if resp.NotificationMessage != nil && len(resp.NotificationMessage.NotificationData) > 0 {
		m.logger.Debug().Str("endpoint", endpointURI).Str("alias", alias).Uint32("sequenceNumber", resp.NotificationMessage.SequenceNumber).Msg("republish delivered notification")
	}

	m.logger.Debug().Str("endpoint", endpointURI).Str("alias", alias).Msg("republish requested")
	return nil
}

// isStatus reports whether err is (or wraps) the given OPC-UA status code.
func isStatus(err error, code ua.StatusCode) bool {
	var sc ua.StatusCode
	if errors.As(err, &sc) {
		return sc == code
	}
	return false
}

// handleNotifications drains cs's notification channel and turns each
// DataChangeNotification into a Report message (spec §4.5). It replaces
// the source's dedicated 100ms publish thread: gopcua's Subscription
// already issues the periodic Publish calls and feeds results here.
func (m *Manager) handleNotifications(ctx context.Context, endpointURI string, cs *ClientSubscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-cs.notifyCh:
			if !ok {
				return
			}
			m.deliverNotification(endpointURI, cs, notif)
		}
	}
}

func (m *Manager) deliverNotification(endpointURI string, cs *ClientSubscription, notif *opcua.PublishNotificationData) {
	if notif == nil || notif.Error != nil {
		return
	}
	dcn, ok := notif.Value.(*ua.DataChangeNotification)
	if !ok {
		return
	}

	for _, item := range dcn.MonitoredItems {
		if item.Value == nil || item.Value.Status != ua.StatusOK {
			continue
		}
		if item.Value.Value == nil {
			continue
		}

		cs.mu.Lock()
		alias, known := cs.byHandle[item.ClientHandle]
		cs.mu.Unlock()
		if !known {
			continue
		}

		v, err := codec.VariantToVersatility(item.Value.Value)
		if err != nil {
			m.logger.Warn().Err(err).Str("endpoint", endpointURI).Str("alias", alias).Msg("dropping notification with undecodable value")
			continue
		}

		report := &message.Message{
			Type:         message.TypeReport,
			EndpointInfo: &message.EndpointInfo{URI: endpointURI},
			Responses: []*message.Response{
				{
					NodeInfo: &message.NodeInfo{ValueAlias: alias},
					Type:     v.Type,
					IsArray:  v.IsArray,
					Value:    v,
				},
			},
		}
		if err := m.recv.Receive(report); err != nil {
			m.logger.Error().Err(err).Str("endpoint", endpointURI).Str("alias", alias).Msg("failed to deliver report")
		}
	}
}

// Stop stops the notification handler of every tracked subscription and
// drops the manager's bookkeeping for them, used during shutdown. It does
// not cancel the server-side subscriptions.
func (m *Manager) Stop() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]*ClientSubscription)
	m.mu.Unlock()

	for uri, cs := range subs {
		cs.cancel()
		m.logger.Debug().Str("endpoint", uri).Msg("subscription stopped")
	}
}
