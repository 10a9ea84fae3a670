package health

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMonitor_UpdateStampsStatus(t *testing.T) {
	monitor := NewMonitor()

	monitor.Update("store", Status{Status: "healthy", Message: "database reachable"})

	got, ok := monitor.Get("store")
	if !ok {
		t.Fatal("store status missing after Update")
	}
	if got.Component != "store" {
		t.Errorf("Component = %q, want %q", got.Component, "store")
	}
	if got.Timestamp.IsZero() {
		t.Error("Update did not stamp a zero timestamp")
	}
}

func TestMonitor_UpdateKeepsProvidedTimestamp(t *testing.T) {
	monitor := NewMonitor()
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	monitor.Update("nats", Status{Status: "unhealthy", Timestamp: stamp})

	got, _ := monitor.Get("nats")
	if !got.Timestamp.Equal(stamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, stamp)
	}
}

func TestMonitor_UpdateHelpers(t *testing.T) {
	monitor := NewMonitor()

	monitor.UpdateHealthy("store", "database reachable")
	monitor.UpdateDegraded("ratelimit", "redis unreachable")
	monitor.UpdateUnhealthy("nats", "connection lost")

	tests := []struct {
		component string
		want      string
	}{
		{"store", "healthy"},
		{"ratelimit", "degraded"},
		{"nats", "unhealthy"},
	}
	for _, tt := range tests {
		got, ok := monitor.Get(tt.component)
		if !ok {
			t.Fatalf("%s status missing", tt.component)
		}
		if got.Status != tt.want {
			t.Errorf("%s status = %q, want %q", tt.component, got.Status, tt.want)
		}
	}
}

func TestMonitor_GetUnknownComponent(t *testing.T) {
	monitor := NewMonitor()

	if _, ok := monitor.Get("breaker:users"); ok {
		t.Error("Get reported a component that was never updated")
	}
}

func TestMonitor_UpdateReplacesStatus(t *testing.T) {
	monitor := NewMonitor()

	monitor.UpdateUnhealthy("nats", "connection lost")
	monitor.UpdateHealthy("nats", "connected")

	got, _ := monitor.Get("nats")
	if !got.IsHealthy() {
		t.Errorf("status = %q after recovery update, want healthy", got.Status)
	}
}

func TestMonitor_AggregateHealth(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Monitor)
		want  string
	}{
		{
			name:  "no components",
			setup: func(*Monitor) {},
			want:  "healthy",
		},
		{
			name: "all healthy",
			setup: func(m *Monitor) {
				m.UpdateHealthy("store", "database reachable")
				m.UpdateHealthy("nats", "connected")
			},
			want: "healthy",
		},
		{
			name: "degraded limiter",
			setup: func(m *Monitor) {
				m.UpdateHealthy("store", "database reachable")
				m.UpdateDegraded("ratelimit", "redis unreachable")
			},
			want: "degraded",
		},
		{
			name: "unhealthy wins over degraded",
			setup: func(m *Monitor) {
				m.UpdateDegraded("ratelimit", "redis unreachable")
				m.UpdateUnhealthy("store", "database gone")
			},
			want: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := NewMonitor()
			tt.setup(monitor)

			got := monitor.AggregateHealth("api-gateway")
			if got.Status != tt.want {
				t.Errorf("aggregate status = %q, want %q", got.Status, tt.want)
			}
			if got.Component != "api-gateway" {
				t.Errorf("aggregate component = %q, want api-gateway", got.Component)
			}
		})
	}
}

func TestMonitor_AggregateOrdersComponents(t *testing.T) {
	monitor := NewMonitor()
	monitor.UpdateHealthy("store", "ok")
	monitor.UpdateHealthy("nats", "ok")
	monitor.UpdateHealthy("ratelimit", "ok")

	got := monitor.AggregateHealth("api-gateway")

	want := []string{"nats", "ratelimit", "store"}
	if len(got.SubStatuses) != len(want) {
		t.Fatalf("sub-status count = %d, want %d", len(got.SubStatuses), len(want))
	}
	for i, name := range want {
		if got.SubStatuses[i].Component != name {
			t.Errorf("sub-status[%d] = %q, want %q", i, got.SubStatuses[i].Component, name)
		}
	}
}

func TestMonitor_StatusCallback(t *testing.T) {
	type update struct {
		name    string
		healthy bool
	}
	var got []update
	monitor := NewMonitor(WithStatusCallback(func(name string, healthy bool) {
		got = append(got, update{name, healthy})
	}))

	monitor.UpdateHealthy("store", "database reachable")
	monitor.UpdateDegraded("ratelimit", "redis unreachable")
	monitor.UpdateUnhealthy("nats", "connection lost")

	want := []update{
		{"store", true},
		{"ratelimit", false},
		{"nats", false},
	}
	if len(got) != len(want) {
		t.Fatalf("callback ran %d times, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("callback[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	monitor := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("breaker:svc-%d", n)
			for j := 0; j < 100; j++ {
				if j%2 == 0 {
					monitor.UpdateHealthy(name, "closed")
				} else {
					monitor.UpdateUnhealthy(name, "open")
				}
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				monitor.AggregateHealth("api-gateway")
			}
		}()
	}
	wg.Wait()

	got := monitor.AggregateHealth("api-gateway")
	if len(got.SubStatuses) != 8 {
		t.Errorf("component count = %d, want 8", len(got.SubStatuses))
	}
}
