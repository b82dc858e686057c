package sessionkit

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts established sessions.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected primary-credential logins.
	MetricLoginFailure
	// MetricSignupSuccess counts created accounts.
	MetricSignupSuccess
	// MetricChallengeStarted counts second-factor challenges opened.
	MetricChallengeStarted
	// MetricChallengeSuccess counts challenges ending in Succeeded.
	MetricChallengeSuccess
	// MetricChallengeFailure counts failed verification attempts.
	MetricChallengeFailure
	// MetricChallengeAttemptsExceeded counts challenges killed by the cap.
	MetricChallengeAttemptsExceeded
	// MetricWebAuthnUnsupported counts platforms without an authenticator.
	MetricWebAuthnUnsupported
	// MetricResolverFastPath counts fast-path token replays.
	MetricResolverFastPath
	// MetricResolverLegacy counts legacy credential replays.
	MetricResolverLegacy
	// MetricResolverLastActive counts last-active-account restorations.
	MetricResolverLastActive
	// MetricResolverUnauthenticated counts resolver runs ending signed out.
	MetricResolverUnauthenticated
	// MetricSignOutSingle counts confirmed single-account sign-outs.
	MetricSignOutSingle
	// MetricSignOutAll counts confirmed full sign-outs.
	MetricSignOutAll
	// MetricSwitchSuccess counts successful account switches.
	MetricSwitchSuccess
	// MetricSwitchFailure counts switches rejected by token validation.
	MetricSwitchFailure
	// MetricTokenCheckValid counts positive token verifications.
	MetricTokenCheckValid
	// MetricTokenCheckInvalid counts negative token verifications.
	MetricTokenCheckInvalid
	// MetricAccountRemoved counts local account removals.
	MetricAccountRemoved
	// MetricAccountDeleted counts confirmed server-side deletions.
	MetricAccountDeleted

	metricCount
)

// Metrics is a fixed-size set of atomic counters. Incrementing is lock-free;
// Snapshot copies the current values.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{}
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
