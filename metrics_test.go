package sessionkit

import (
	"context"
	"sync"
	"testing"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricChallengeFailure)

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("expected 2 login successes, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricChallengeFailure] != 1 {
		t.Fatalf("expected 1 challenge failure, got %d", snap.Counters[MetricChallengeFailure])
	}
	if snap.Counters[MetricSignOutAll] != 0 {
		t.Fatal("untouched counter must read zero")
	}
}

func TestMetricsDisabledIsNil(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: false})
	if m != nil {
		t.Fatal("disabled metrics must construct nothing")
	}
	m.Inc(MetricLoginSuccess) // nil receiver must be safe
	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 0 {
		t.Fatal("nil metrics snapshot reads zero")
	}
}

func TestMetricsIncOutOfRange(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true})
	m.Inc(metricCount)     // must not panic
	m.Inc(metricCount + 7) // must not panic
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricTokenCheckValid)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Counters[MetricTokenCheckValid]; got != workers*perWorker {
		t.Fatalf("expected %d, got %d", workers*perWorker, got)
	}
}

func TestControllerRecordsSessionMetrics(t *testing.T) {
	fake := newFakeIdentity()
	fake.validTokens["t2"] = true
	c := newTestController(t, fake, testConfig(), nil)
	ctx := context.Background()

	mustLogin(t, c, Account{ID: "1", Username: "ana", Token: "t1"})
	if err := c.store.Upsert(ctx, Account{ID: "2", Username: "bo", Token: "t2"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := c.SwitchAccount(ctx, "2"); err != nil {
		t.Fatalf("SwitchAccount failed: %v", err)
	}

	snap := c.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] == 0 {
		t.Fatal("expected login success recorded")
	}
	if snap.Counters[MetricSwitchSuccess] != 1 {
		t.Fatalf("expected 1 switch success, got %d", snap.Counters[MetricSwitchSuccess])
	}
	if snap.Counters[MetricTokenCheckValid] != 1 {
		t.Fatalf("expected 1 valid token check, got %d", snap.Counters[MetricTokenCheckValid])
	}
}
