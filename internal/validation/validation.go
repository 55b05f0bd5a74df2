// Package validation normalizes endpoint URIs and validates inbound
// requests before they reach the dispatcher, consolidating the checks that
// the source spread across edge_discovery_common.c, read.c, write.c and
// message_dispatcher.c into one shared location (spec §4.7).
package validation

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
)

const defaultOPCUAPort = "4840"

// ParseEndpointURI validates and normalizes an "opc.tcp://host[:port][/path]"
// endpoint URI, appending the default OPC-UA port when one is not supplied.
// Grounded on edge_discovery_common.c's shared endpoint-parsing helper,
// consolidated here per SPEC_FULL.md's SUPPLEMENTED FEATURES so discovery and
// sendRequest normalization share one implementation instead of three.
func ParseEndpointURI(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty endpoint uri", domain.ErrParamInvalid)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed endpoint uri %q: %v", domain.ErrParamInvalid, raw, err)
	}
	if u.Scheme != "opc.tcp" {
		return "", fmt.Errorf("%w: unsupported scheme %q", domain.ErrParamInvalid, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in endpoint uri %q", domain.ErrParamInvalid, raw)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		// No port supplied: SplitHostPort fails on a bare host.
		host = u.Host
		port = defaultOPCUAPort
	}
	if port == "" {
		port = defaultOPCUAPort
	}
	if host == "" {
		return "", fmt.Errorf("%w: empty host in endpoint uri %q", domain.ErrParamInvalid, raw)
	}

	u.Host = net.JoinHostPort(host, port)
	return u.String(), nil
}

// IsWellFormedIPv4 reports whether host is a syntactically valid IPv4
// address (dotted-quad, each octet 0-255). Used by FindServers filtering
// (spec §4.6.2), ported from edge_find_servers.c's host-format check.
func IsWellFormedIPv4(host string) bool {
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
		if len(p) > 1 && p[0] == '0' {
			return false
		}
	}
	return true
}

// CheckParameterValid implements the per-command rejection rules from
// spec §4.7: nil endpoint info, empty request batches, duplicate aliases
// within one batch, and command/payload shape mismatches.
func CheckParameterValid(msg *message.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", domain.ErrParamInvalid)
	}
	if msg.EndpointInfo == nil {
		return fmt.Errorf("%w: missing endpoint info", domain.ErrParamInvalid)
	}
	if msg.EndpointInfo.URI == "" {
		return fmt.Errorf("%w: missing endpoint uri", domain.ErrParamInvalid)
	}

	switch msg.Type {
	case message.TypeSendRequest:
		if msg.Request == nil {
			switch msg.Command {
			case message.CommandRead, message.CommandReadSamplingInterval, message.CommandWrite,
				message.CommandBrowse, message.CommandMethod, message.CommandSub:
				return fmt.Errorf("%w: send request missing request payload", domain.ErrParamInvalid)
			}
			return nil
		}
		return checkRequestShape(msg.Command, msg.Request)
	case message.TypeSendRequests:
		if len(msg.Requests) == 0 {
			return fmt.Errorf("%w: send requests with empty batch", domain.ErrParamInvalid)
		}
		seen := make(map[string]struct{}, len(msg.Requests))
		for _, r := range msg.Requests {
			if err := checkRequestShape(msg.Command, r); err != nil {
				return err
			}
			alias := r.NodeInfo.ValueAlias
			if alias == "" {
				continue
			}
			if _, dup := seen[alias]; dup {
				return fmt.Errorf("%w: alias %q", domain.ErrDuplicateAlias, alias)
			}
			seen[alias] = struct{}{}
		}
	}
	return nil
}

func checkRequestShape(cmd message.Command, r *message.Request) error {
	if r == nil {
		return fmt.Errorf("%w: nil request", domain.ErrParamInvalid)
	}
	if r.NodeInfo == nil {
		return fmt.Errorf("%w: missing node info", domain.ErrParamInvalid)
	}
	switch cmd {
	case message.CommandWrite:
		if r.Value == nil {
			return fmt.Errorf("%w: write request missing value", domain.ErrParamInvalid)
		}
	case message.CommandMethod:
		if r.MethodParams == nil {
			return fmt.Errorf("%w: method request missing params", domain.ErrParamInvalid)
		}
		if r.NodeInfo.MethodName == "" {
			return fmt.Errorf("%w: method request missing method name", domain.ErrParamInvalid)
		}
	case message.CommandSub:
		if r.SubMsg == nil {
			return fmt.Errorf("%w: subscription request missing sub message", domain.ErrParamInvalid)
		}
	}
	return nil
}
