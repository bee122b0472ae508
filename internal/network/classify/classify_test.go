package classify

import "testing"

func TestThroughputBoundaries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mbps float64
		want Level
	}{
		{100, Excellent},
		{25.01, Excellent},
		{25, Good},
		{10.5, Good},
		{10, Fair},
		{2.01, Fair},
		{2, Poor},
		{0, Poor},
		{-1, Poor},
	}
	for _, tt := range tests {
		if got := Throughput(tt.mbps); got != tt.want {
			t.Errorf("Throughput(%v) = %s, want %s", tt.mbps, got, tt.want)
		}
	}
}

func TestThroughputMonotonic(t *testing.T) {
	t.Parallel()
	prev := Throughput(1000)
	for s := 1000.0; s >= 0; s -= 0.25 {
		cur := Throughput(s)
		if cur.Rank() > prev.Rank() {
			t.Fatalf("quality increased from %s to %s as speed dropped to %v", prev, cur, s)
		}
		prev = cur
	}
}

func TestLatencyBoundaries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ms   int64
		want Level
	}{
		{0, Excellent},
		{49, Excellent},
		{50, Good},
		{99, Good},
		{100, Fair},
		{199, Fair},
		{200, Poor},
		{5000, Poor},
	}
	for _, tt := range tests {
		if got := Latency(tt.ms); got != tt.want {
			t.Errorf("Latency(%d) = %s, want %s", tt.ms, got, tt.want)
		}
	}
}

func TestLatencyMonotonic(t *testing.T) {
	t.Parallel()
	prev := Latency(0)
	for ms := int64(0); ms <= 1000; ms++ {
		cur := Latency(ms)
		if cur.Rank() > prev.Rank() {
			t.Fatalf("quality increased from %s to %s as latency grew to %d", prev, cur, ms)
		}
		prev = cur
	}
}

func TestSignal(t *testing.T) {
	t.Parallel()
	v := func(i int) *int { return &i }
	tests := []struct {
		name string
		in   *int
		want Level
	}{
		{"nil", nil, Unknown},
		{"strong", v(-50), Excellent},
		{"edge excellent", v(-70), Excellent},
		{"good", v(-71), Good},
		{"edge good", v(-85), Good},
		{"edge fair", v(-100), Fair},
		{"poor", v(-101), Poor},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Signal(tt.in); got != tt.want {
				t.Fatalf("Signal = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOptionalHelpers(t *testing.T) {
	t.Parallel()
	if got := ThroughputOf(nil); got != Unknown {
		t.Fatalf("ThroughputOf(nil) = %s", got)
	}
	if got := LatencyOf(nil); got != Unknown {
		t.Fatalf("LatencyOf(nil) = %s", got)
	}
	zero := 0.0
	if got := ThroughputOf(&zero); got != Poor {
		t.Fatalf("measured zero should be poor, got %s", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if l, err := ParseLevel(" Good "); err != nil || l != Good {
		t.Fatalf("ParseLevel = %s, %v", l, err)
	}
	if _, err := ParseLevel("stellar"); err == nil {
		t.Fatal("expected error")
	}
	if Level("").String() != "unknown" {
		t.Fatal("empty level should print as unknown")
	}
}
