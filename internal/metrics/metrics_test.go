package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"geoattend/internal/attendance"
	"geoattend/internal/authenticator"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveTransition("CS001", "CS101", attendance.NotStarted, attendance.LocationPending)
	c.ObserveTransition("CS001", "CS101", attendance.BiometricPending, attendance.Decided)
	c.ObserveCeremony(authenticator.OpRegister, authenticator.StateAwaitingPlatform, nil)
	c.ObserveCeremony(authenticator.OpRegister, authenticator.StateSucceeded, nil)
	c.ObserveCeremony(authenticator.OpAuthenticate, authenticator.StateFailed, authenticator.ErrCredentialMismatch)
	c.ObserveDistance("CS101", 42)
	c.ObserveOutcome(attendance.Outcome{Status: attendance.Absent})

	if got := testutil.ToFloat64(c.Transitions.WithLabelValues("decided")); got != 1 {
		t.Errorf("expected 1 decided transition, got %v", got)
	}
	if got := testutil.ToFloat64(c.Ceremonies.WithLabelValues("register", "success")); got != 1 {
		t.Errorf("expected 1 successful registration, got %v", got)
	}
	if got := testutil.ToFloat64(c.Ceremonies.WithLabelValues("authenticate", "credential_mismatch")); got != 1 {
		t.Errorf("expected 1 mismatch, got %v", got)
	}
	if got := testutil.ToFloat64(c.Outcomes.WithLabelValues("absent")); got != 1 {
		t.Errorf("expected 1 absent outcome, got %v", got)
	}
	if n := testutil.CollectAndCount(c.Distance); n != 1 {
		t.Errorf("expected distance histogram to be collected, got %d", n)
	}
}
