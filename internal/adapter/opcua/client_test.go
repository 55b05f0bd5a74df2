package opcua

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewClientStartsDisconnected(t *testing.T) {
	c := New(Config{Endpoint: "opc.tcp://10.0.0.1:4840"}, zerolog.Nop())
	if c.IsConnected() {
		t.Fatal("expected a freshly constructed client to report disconnected")
	}
}

func TestCloseOnUnconnectedClientIsNoop(t *testing.T) {
	c := New(Config{Endpoint: "opc.tcp://10.0.0.1:4840"}, zerolog.Nop())
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("expected Close on an unconnected client to be a no-op, got %v", err)
	}
}

func TestServiceCallsFailWhenNotConnected(t *testing.T) {
	c := New(Config{Endpoint: "opc.tcp://10.0.0.1:4840"}, zerolog.Nop())

	if _, err := c.Read(context.Background(), nil); err == nil {
		t.Fatal("expected Read to fail on an unconnected client")
	}
	if _, err := c.Write(context.Background(), nil); err == nil {
		t.Fatal("expected Write to fail on an unconnected client")
	}
	if _, err := c.Call(context.Background(), nil); err == nil {
		t.Fatal("expected Call to fail on an unconnected client")
	}
	if _, err := c.Browse(context.Background(), nil); err == nil {
		t.Fatal("expected Browse to fail on an unconnected client")
	}
	if _, err := c.BrowseNext(context.Background(), nil); err == nil {
		t.Fatal("expected BrowseNext to fail on an unconnected client")
	}
	if _, err := c.Subscribe(context.Background(), nil, nil); err == nil {
		t.Fatal("expected Subscribe to fail on an unconnected client")
	}
}

func TestOptionsIncludesUsernameOnlyWhenConfigured(t *testing.T) {
	withoutAuth := New(Config{Endpoint: "opc.tcp://10.0.0.1:4840"}, zerolog.Nop())
	if got := len(withoutAuth.options()); got != 2 {
		t.Fatalf("expected 2 base options with no auth/cert/timeouts configured, got %d", got)
	}

	withAuth := New(Config{Endpoint: "opc.tcp://10.0.0.1:4840", Username: "u", Password: "p"}, zerolog.Nop())
	if got := len(withAuth.options()); got != 3 {
		t.Fatalf("expected 3 options with username configured, got %d", got)
	}
}
