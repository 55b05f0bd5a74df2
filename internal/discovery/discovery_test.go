package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
)

func validEndpointDescription(uri string) *ua.EndpointDescription {
	return &ua.EndpointDescription{
		EndpointURL:          uri,
		SecurityMode:         ua.MessageSecurityModeSignAndEncrypt,
		SecurityPolicyURI:    "http://opcfoundation.org/UA/SecurityPolicy#Basic256Sha256",
		TransportProfileURI:  "http://opcfoundation.org/UA-Profile/Transport/uatcp-uasc-uabinary",
		Server: &ua.ApplicationDescription{
			ApplicationURI: "urn:test-server",
			ApplicationType: ua.ApplicationTypeServer,
		},
	}
}

func TestGetEndpointsRejectsMalformedURI(t *testing.T) {
	svc := New(zerolog.Nop(), func(ctx context.Context, endpoint string) ([]*ua.EndpointDescription, error) {
		t.Fatal("getEndpoints should not be called for a malformed uri")
		return nil, nil
	}, nil)

	_, err := svc.GetEndpoints(context.Background(), "http://bad", 0)
	if !errors.Is(err, domain.ErrParamInvalid) {
		t.Fatalf("expected ErrParamInvalid, got %v", err)
	}
}

func TestGetEndpointsFiltersNilAndEmptyURLEntries(t *testing.T) {
	svc := New(zerolog.Nop(), func(ctx context.Context, endpoint string) ([]*ua.EndpointDescription, error) {
		if endpoint != "opc.tcp://10.0.0.1:4840" {
			t.Fatalf("expected normalized endpoint, got %q", endpoint)
		}
		return []*ua.EndpointDescription{
			nil,
			{EndpointURL: ""},
			{EndpointURL: "opc.tcp://10.0.0.1:4840", SecurityPolicyURI: "None"},
			validEndpointDescription("opc.tcp://10.0.0.1:4840"),
		}, nil
	}, nil)

	eps, err := svc.GetEndpoints(context.Background(), "opc.tcp://10.0.0.1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eps) != 1 {
		t.Fatalf("expected 1 endpoint after filtering, got %d: %+v", len(eps), eps)
	}
	if eps[0].SecurityPolicyURI != "http://opcfoundation.org/UA/SecurityPolicy#Basic256Sha256" {
		t.Fatalf("unexpected endpoint: %+v", eps[0])
	}
}

func TestGetEndpointsRejectsUnsupportedApplicationType(t *testing.T) {
	svc := New(zerolog.Nop(), func(ctx context.Context, endpoint string) ([]*ua.EndpointDescription, error) {
		return []*ua.EndpointDescription{validEndpointDescription("opc.tcp://10.0.0.1:4840")}, nil
	}, nil)

	eps, err := svc.GetEndpoints(context.Background(), "opc.tcp://10.0.0.1", domain.AppTypeClient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eps) != 0 {
		t.Fatalf("expected the server-type endpoint to be filtered out, got %+v", eps)
	}
}

func TestGetEndpointsRejectsClientWithGatewayURI(t *testing.T) {
	d := validEndpointDescription("opc.tcp://10.0.0.1:4840")
	d.Server.ApplicationType = ua.ApplicationTypeClient
	d.Server.GatewayServerURI = "opc.tcp://gateway:4840"

	svc := New(zerolog.Nop(), func(ctx context.Context, endpoint string) ([]*ua.EndpointDescription, error) {
		return []*ua.EndpointDescription{d}, nil
	}, nil)

	eps, err := svc.GetEndpoints(context.Background(), "opc.tcp://10.0.0.1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eps) != 0 {
		t.Fatalf("expected client endpoint with non-empty gatewayServerUri to be filtered, got %+v", eps)
	}
}

func TestGetEndpointsRejectsIssuedTokenWithoutTokenType(t *testing.T) {
	d := validEndpointDescription("opc.tcp://10.0.0.1:4840")
	d.UserIdentityTokens = []*ua.UserTokenPolicy{{TokenType: ua.UserTokenTypeIssuedToken}}

	svc := New(zerolog.Nop(), func(ctx context.Context, endpoint string) ([]*ua.EndpointDescription, error) {
		return []*ua.EndpointDescription{d}, nil
	}, nil)

	eps, err := svc.GetEndpoints(context.Background(), "opc.tcp://10.0.0.1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eps) != 0 {
		t.Fatalf("expected endpoint with empty issuedTokenType to be filtered, got %+v", eps)
	}
}

func TestGetEndpointsPropagatesTransportError(t *testing.T) {
	svc := New(zerolog.Nop(), func(ctx context.Context, endpoint string) ([]*ua.EndpointDescription, error) {
		return nil, errors.New("dial failed")
	}, nil)

	_, err := svc.GetEndpoints(context.Background(), "opc.tcp://10.0.0.1", 0)
	if !errors.Is(err, domain.ErrServiceResultBad) {
		t.Fatalf("expected ErrServiceResultBad, got %v", err)
	}
}

func TestFindServersAcceptsHostnameDiscoveryEndpoint(t *testing.T) {
	// The IPv4 check applies per-returned-server, not to the discovery
	// endpoint itself (spec §4.6.2).
	svc := New(zerolog.Nop(), nil, func(ctx context.Context, discoveryEndpoint string) ([]*ua.ApplicationDescription, error) {
		return []*ua.ApplicationDescription{
			{ApplicationURI: "urn:server", ApplicationType: ua.ApplicationTypeServer},
		}, nil
	})

	servers, err := svc.FindServers(context.Background(), "opc.tcp://my-server.local", nil, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(servers))
	}
}

func TestFindServersScenario5ServerUriFilter(t *testing.T) {
	svc := New(zerolog.Nop(), nil, func(ctx context.Context, discoveryEndpoint string) ([]*ua.ApplicationDescription, error) {
		return []*ua.ApplicationDescription{
			{ApplicationURI: "urn:A", ApplicationType: ua.ApplicationTypeServer},
			{ApplicationURI: "urn:B", ApplicationType: ua.ApplicationTypeServer},
			{ApplicationURI: "urn:A", ApplicationType: ua.ApplicationTypeServer},
		}, nil
	})

	servers, err := svc.FindServers(context.Background(), "opc.tcp://host:4840", []string{"urn:A"}, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers matching urn:A, got %d: %+v", len(servers), servers)
	}
	for _, s := range servers {
		if s.ApplicationURI != "urn:A" {
			t.Fatalf("unexpected server in results: %+v", s)
		}
	}
}

func TestFindServersRejectsShortApplicationURI(t *testing.T) {
	svc := New(zerolog.Nop(), nil, func(ctx context.Context, discoveryEndpoint string) ([]*ua.ApplicationDescription, error) {
		return []*ua.ApplicationDescription{
			{ApplicationURI: "abcd", ApplicationType: ua.ApplicationTypeServer},
		}, nil
	})

	servers, err := svc.FindServers(context.Background(), "opc.tcp://host:4840", nil, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("expected applicationUri shorter than 5 chars to be rejected, got %+v", servers)
	}
}

func TestFindServersRejectsMalformedIPv4Host(t *testing.T) {
	svc := New(zerolog.Nop(), nil, func(ctx context.Context, discoveryEndpoint string) ([]*ua.ApplicationDescription, error) {
		return []*ua.ApplicationDescription{
			{ApplicationURI: "opc.tcp://256.0.0.1:4840", ApplicationType: ua.ApplicationTypeServer},
			{ApplicationURI: "opc.tcp://10.0.0.1:4840", ApplicationType: ua.ApplicationTypeServer},
		}, nil
	})

	servers, err := svc.FindServers(context.Background(), "opc.tcp://host:4840", nil, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 1 || servers[0].ApplicationURI != "opc.tcp://10.0.0.1:4840" {
		t.Fatalf("expected only the well-formed IPv4 host to survive, got %+v", servers)
	}
}

func TestFindServersNullsSelfReferencingGatewayURI(t *testing.T) {
	svc := New(zerolog.Nop(), nil, func(ctx context.Context, discoveryEndpoint string) ([]*ua.ApplicationDescription, error) {
		return []*ua.ApplicationDescription{
			{ApplicationURI: "urn:server", ApplicationType: ua.ApplicationTypeServer, GatewayServerURI: discoveryEndpoint},
		}, nil
	})

	servers, err := svc.FindServers(context.Background(), "opc.tcp://host:4840", nil, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(servers))
	}
	if servers[0].GatewayServerURI != "" {
		t.Fatalf("expected self-referencing gatewayServerUri to be nulled, got %q", servers[0].GatewayServerURI)
	}
}

func TestFindServersFiltersByApplicationTypeBitmask(t *testing.T) {
	svc := New(zerolog.Nop(), nil, func(ctx context.Context, discoveryEndpoint string) ([]*ua.ApplicationDescription, error) {
		return []*ua.ApplicationDescription{
			{ApplicationURI: "urn:server", ApplicationType: ua.ApplicationTypeServer},
			{ApplicationURI: "urn:client", ApplicationType: ua.ApplicationTypeClient},
			{ApplicationURI: "urn:both", ApplicationType: ua.ApplicationTypeClientAndServer},
		}, nil
	})

	servers, err := svc.FindServers(context.Background(), "opc.tcp://10.0.0.1", nil, nil, domain.AppTypeServer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("expected exactly 1 server matching the supported-types mask, got %d: %+v", len(servers), servers)
	}
	if servers[0].ApplicationURI != "urn:server" {
		t.Fatalf("unexpected server: %+v", servers[0])
	}
}

func TestFindServersWithoutTypeMaskReturnsAll(t *testing.T) {
	svc := New(zerolog.Nop(), nil, func(ctx context.Context, discoveryEndpoint string) ([]*ua.ApplicationDescription, error) {
		return []*ua.ApplicationDescription{
			{ApplicationURI: "urn:server", ApplicationType: ua.ApplicationTypeServer},
			{ApplicationURI: "urn:client", ApplicationType: ua.ApplicationTypeClient},
		}, nil
	})

	servers, err := svc.FindServers(context.Background(), "opc.tcp://10.0.0.1", nil, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected all servers with no type mask configured, got %d", len(servers))
	}
}

func TestFindServersLocaleFilter(t *testing.T) {
	svc := New(zerolog.Nop(), nil, func(ctx context.Context, discoveryEndpoint string) ([]*ua.ApplicationDescription, error) {
		return []*ua.ApplicationDescription{
			{ApplicationURI: "urn:en-server", ApplicationType: ua.ApplicationTypeServer, ApplicationName: &ua.LocalizedText{Locale: "en-US", Text: "Server A"}},
			{ApplicationURI: "urn:de-server", ApplicationType: ua.ApplicationTypeServer, ApplicationName: &ua.LocalizedText{Locale: "de-DE", Text: "Server B"}},
		}, nil
	})

	servers, err := svc.FindServers(context.Background(), "opc.tcp://10.0.0.1", nil, []string{"en-US"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 1 || servers[0].ApplicationURI != "urn:en-server" {
		t.Fatalf("expected only the en-US server, got %+v", servers)
	}
}
