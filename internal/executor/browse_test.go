package executor

import (
	"testing"

	"github.com/gopcua/opcua/ua"

	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
)

func TestBrowseDirectionMapsAllCases(t *testing.T) {
	cases := []struct {
		in   message.BrowseDirection
		want ua.BrowseDirection
	}{
		{message.BrowseForward, ua.BrowseDirectionForward},
		{message.BrowseInverse, ua.BrowseDirectionInverse},
		{message.BrowseBoth, ua.BrowseDirectionBoth},
	}
	for _, tc := range cases {
		if got := browseDirection(tc.in); got != tc.want {
			t.Fatalf("browseDirection(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestBrowseDirectionDefaultsToForwardForUnknown(t *testing.T) {
	if got := browseDirection(message.BrowseDirection(99)); got != ua.BrowseDirectionForward {
		t.Fatalf("expected default to BrowseDirectionForward, got %v", got)
	}
}
