package probe

import (
	"testing"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"
)

func TestNearest(t *testing.T) {
	t.Parallel()
	servers := []*st.Server{
		{Sponsor: "far", Distance: 900},
		nil,
		{Sponsor: "near", Distance: 10},
		{Sponsor: "mid", Distance: 120},
	}
	got := nearest(servers, 2)
	if len(got) != 2 || got[0].Sponsor != "near" || got[1].Sponsor != "mid" {
		t.Fatalf("unexpected order: %v", sponsors(got))
	}
}

func TestLowestLatency(t *testing.T) {
	t.Parallel()
	servers := []*st.Server{
		{Sponsor: "unreachable", Distance: 1},
		{Sponsor: "slow", Distance: 5, Latency: 80 * time.Millisecond},
		{Sponsor: "fast-far", Distance: 50, Latency: 20 * time.Millisecond},
		{Sponsor: "fast-near", Distance: 30, Latency: 20 * time.Millisecond},
	}
	if got := lowestLatency(servers); got == nil || got.Sponsor != "fast-near" {
		t.Fatalf("best = %v", got)
	}
	if got := lowestLatency([]*st.Server{{Sponsor: "dead"}}); got != nil {
		t.Fatalf("expected nil, got %v", got.Sponsor)
	}
}

func sponsors(ss []*st.Server) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.Sponsor)
	}
	return out
}
