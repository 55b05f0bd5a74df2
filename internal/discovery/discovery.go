// Package discovery implements the GetEndpoints and FindServers lookups
// used to locate and qualify OPC-UA servers before a session is opened
// (spec §4.6). Grounded on edge_discovery_common.c and edge_find_servers.c
// via original_source/, and on the teacher's internal/adapter/opcua
// connection helpers for how a transient, session-less client call is
// shaped.
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/validation"
)

// EndpointsFunc abstracts the transport-level GetEndpoints call so this
// package can be tested without a live server.
type EndpointsFunc func(ctx context.Context, endpoint string) ([]*ua.EndpointDescription, error)

// ServersFunc abstracts the transport-level FindServers call.
type ServersFunc func(ctx context.Context, discoveryEndpoint string) ([]*ua.ApplicationDescription, error)

// Endpoint is the caller-facing view of one endpoint description returned
// by GetEndpoints (spec §4.6.1), trimmed to the fields the rest of the
// core needs.
type Endpoint struct {
	URI                 string
	SecurityPolicyURI   string
	SecurityMode        ua.MessageSecurityMode
	SecurityLevel       byte
	TransportProfileURI string
}

// Server is the caller-facing view of one ApplicationDescription returned
// by FindServers (spec §4.6.2).
type Server struct {
	ApplicationURI   string
	ProductURI       string
	ApplicationName  string
	ApplicationType  ua.ApplicationType
	GatewayServerURI string
	DiscoveryURLs    []string
}

// Service performs endpoint and server discovery against a given
// discovery URL, reusing validation.ParseEndpointURI so the same
// normalization rules govern discovery and session connect (spec §4.7).
type Service struct {
	logger       zerolog.Logger
	getEndpoints EndpointsFunc
	findServers  ServersFunc
}

// New constructs a Service. getEndpoints/findServers are normally
// opcua.GetEndpoints/opcua.FindServers; tests supply fakes.
func New(logger zerolog.Logger, getEndpoints EndpointsFunc, findServers ServersFunc) *Service {
	return &Service{
		logger:       logger.With().Str("component", "discovery.Service").Logger(),
		getEndpoints: getEndpoints,
		findServers:  findServers,
	}
}

const (
	securityPolicyURIPrefix   = "http://opcfoundation.org/UA/SecurityPolicy#"
	transportProfileURIPrefix = "http://opcfoundation.org/UA-Profile/Transport/"
)

// GetEndpoints retrieves and filters the endpoints advertised at
// discoveryURL, rejecting malformed URIs up front the same way
// edge_discovery_common.c validates before dialing, then applying the full
// predicate list of spec §4.6.1 (Q7). supportedTypes is the configured
// application-type policy; zero means no restriction.
func (s *Service) GetEndpoints(ctx context.Context, discoveryURL string, supportedTypes domain.ApplicationTypeMask) ([]Endpoint, error) {
	normalized, err := validation.ParseEndpointURI(discoveryURL)
	if err != nil {
		return nil, err
	}

	descs, err := s.getEndpoints(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: get endpoints: %v", domain.ErrServiceResultBad, err)
	}

	out := make([]Endpoint, 0, len(descs))
	for _, d := range descs {
		if !endpointPassesFilters(d, supportedTypes) {
			continue
		}
		out = append(out, Endpoint{
			URI:                 d.EndpointURL,
			SecurityPolicyURI:   d.SecurityPolicyURI,
			SecurityMode:        d.SecurityMode,
			SecurityLevel:       d.SecurityLevel,
			TransportProfileURI: d.TransportProfileURI,
		})
	}
	s.logger.Debug().Str("discoveryUrl", normalized).Int("count", len(out)).Msg("endpoints discovered")
	return out, nil
}

// endpointPassesFilters applies the spec §4.6.1 filter predicate list to one
// EndpointDescription; any failing check skips the endpoint.
func endpointPassesFilters(d *ua.EndpointDescription, supportedTypes domain.ApplicationTypeMask) bool {
	if d == nil || d.EndpointURL == "" {
		return false
	}
	if d.SecurityMode == ua.MessageSecurityModeInvalid {
		return false
	}
	if d.SecurityPolicyURI == "" || !strings.HasPrefix(d.SecurityPolicyURI, securityPolicyURIPrefix) {
		return false
	}
	if d.TransportProfileURI == "" || !strings.HasPrefix(d.TransportProfileURI, transportProfileURIPrefix) {
		return false
	}
	if d.Server == nil {
		// A zero-valued application description carries no ApplicationURI.
		return false
	}
	if d.Server.ApplicationURI == "" {
		return false
	}
	if d.Server.ApplicationType == ua.ApplicationTypeClient {
		if d.Server.GatewayServerURI != "" || d.Server.DiscoveryProfileURI != "" || len(d.Server.DiscoveryURLs) != 0 {
			return false
		}
	}
	for _, tok := range d.UserIdentityTokens {
		if tok == nil {
			continue
		}
		if tok.TokenType == ua.UserTokenTypeIssuedToken && tok.IssuedTokenType == "" {
			return false
		}
	}
	return applicationTypeSupported(d.Server.ApplicationType, supportedTypes)
}

// applicationTypeSupported reports whether t is allowed by the
// supportedTypes bitmask (spec §4.6.1/§4.6.2's "applicationType must be in
// the configured supported-types bitmask"). A zero mask allows every type.
func applicationTypeSupported(t ua.ApplicationType, supportedTypes domain.ApplicationTypeMask) bool {
	if supportedTypes == 0 {
		return true
	}
	var bit domain.ApplicationTypeMask
	switch t {
	case ua.ApplicationTypeServer:
		bit = domain.AppTypeServer
	case ua.ApplicationTypeClient:
		bit = domain.AppTypeClient
	case ua.ApplicationTypeClientAndServer:
		bit = domain.AppTypeClientAndServer
	case ua.ApplicationTypeDiscoveryServer:
		bit = domain.AppTypeDiscoveryServer
	default:
		return false
	}
	return supportedTypes&bit != 0
}

// FindServers retrieves the servers discoveryURL's discovery server knows
// about and applies the full per-server validation of spec §4.6.2 (Q8).
// serverUris and localeIds are containment filters applied only when
// non-empty: a server survives only if its applicationUri is present in
// serverUris (and, separately, its applicationName's locale is present in
// localeIds). supportedTypes restricts results to the configured
// application-type policy; zero means no restriction.
func (s *Service) FindServers(ctx context.Context, discoveryURL string, serverUris, localeIds []string, supportedTypes domain.ApplicationTypeMask) ([]Server, error) {
	normalized, err := validation.ParseEndpointURI(discoveryURL)
	if err != nil {
		return nil, err
	}

	descs, err := s.findServers(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: find servers: %v", domain.ErrServiceResultBad, err)
	}

	serverURISet := toSet(serverUris)
	localeSet := toSet(localeIds)

	out := make([]Server, 0, len(descs))
	for _, d := range descs {
		if !serverPassesFilters(d, supportedTypes, serverURISet, localeSet) {
			continue
		}

		gateway := d.GatewayServerURI
		if gateway == normalized {
			// Cycle-breaking: a discovery server must not list itself as
			// its own gateway (spec §4.6.2, Q8).
			gateway = ""
		}

		out = append(out, Server{
			ApplicationURI:   d.ApplicationURI,
			ProductURI:       d.ProductURI,
			ApplicationName:  localizedText(d.ApplicationName),
			ApplicationType:  d.ApplicationType,
			GatewayServerURI: gateway,
			DiscoveryURLs:    append([]string(nil), d.DiscoveryURLs...),
		})
	}
	s.logger.Debug().Str("discoveryUrl", normalized).Int("count", len(out)).Msg("servers discovered")
	return out, nil
}

func serverPassesFilters(d *ua.ApplicationDescription, supportedTypes domain.ApplicationTypeMask, serverURISet, localeSet map[string]struct{}) bool {
	if d == nil {
		return false
	}
	if !applicationTypeSupported(d.ApplicationType, supportedTypes) {
		return false
	}
	if len(d.ApplicationURI) < 5 {
		return false
	}
	if !hasValidHost(d.ApplicationURI) {
		return false
	}
	if len(serverURISet) > 0 {
		if _, ok := serverURISet[d.ApplicationURI]; !ok {
			return false
		}
	}
	if len(localeSet) > 0 {
		locale := localizedLocale(d.ApplicationName)
		if locale == "" {
			return false
		}
		if _, ok := localeSet[locale]; !ok {
			return false
		}
	}
	return true
}

// hasValidHost implements spec §4.6.2's per-server host check: a urn:
// applicationUri is exempt; anything else is re-parsed as an endpoint URL
// and its host must be non-empty, and if that host looks like an IPv4
// address it must pass the well-formedness check.
func hasValidHost(applicationURI string) bool {
	if strings.HasPrefix(applicationURI, "urn:") {
		return true
	}
	host := hostOf(applicationURI)
	if host == "" {
		return false
	}
	if !looksLikeIPv4(host) {
		return true
	}
	return validation.IsWellFormedIPv4(host)
}

// hostOf extracts the host component from a URI that may or may not carry
// an explicit scheme, tolerating bare "host:port" forms.
func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		if host, _, err := net.SplitHostPort(u.Host); err == nil {
			return host
		}
		return u.Host
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		return host
	}
	return raw
}

// looksLikeIPv4 mirrors the source's cheap pre-check: a host whose first
// character is '1' or '2' and is not an IPv6 literal is treated as a
// candidate dotted-quad and must pass full validation.
func looksLikeIPv4(host string) bool {
	if host == "" || host[0] == '[' {
		return false
	}
	return host[0] == '1' || host[0] == '2'
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func localizedText(t *ua.LocalizedText) string {
	if t == nil {
		return ""
	}
	return t.Text
}

func localizedLocale(t *ua.LocalizedText) string {
	if t == nil {
		return ""
	}
	return t.Locale
}
