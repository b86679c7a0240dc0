package stats

import "testing"

func TestCounterIdentityAndValue(t *testing.T) {
	store := NewStore("janus", nil)

	c := store.Counter("cluster.backend.update_success")
	c.Inc()
	c.Add(2)

	if got := store.Counter("cluster.backend.update_success").Value(); got != 3 {
		t.Fatalf("counter value = %d, want 3", got)
	}
}

func TestGaugeMovesBothWays(t *testing.T) {
	store := NewStore("janus", nil)

	g := store.Gauge("cluster.backend.max_host_weight")
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Dec()

	if got := g.Value(); got != 4 {
		t.Fatalf("gauge value = %d, want 4", got)
	}
}

func TestSanitizedNameCollisionKeepsLocalValues(t *testing.T) {
	store := NewStore("janus", nil)

	a := store.Counter("cluster.a-b.total")
	b := store.Counter("cluster.a.b.total") // sanitizes identically
	a.Inc()
	b.Add(5)

	if a == b {
		t.Fatal("distinct canonical names must yield distinct counters")
	}
	if a.Value() != 1 || b.Value() != 5 {
		t.Fatalf("values = %d, %d; want 1, 5", a.Value(), b.Value())
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"cluster.backend.update_attempt", "cluster_backend_update_attempt"},
		{"cluster.10-net.rq_active", "cluster_10_net_rq_active"},
		{"9starts_with_digit", "_9starts_with_digit"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
