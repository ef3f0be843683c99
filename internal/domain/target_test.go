package domain

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func validTarget() Target {
	return Target{
		Name:              "checkout",
		Kind:              KindAvailability,
		Objective:         99.9,
		WarningThreshold:  0.1,
		CriticalThreshold: 0.5,
		Window:            time.Hour,
		Impact:            ImpactHigh,
	}
}

func TestTarget_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Target)
		field  string
	}{
		{"empty name", func(t *Target) { t.Name = "" }, "name"},
		{"unknown type", func(t *Target) { t.Kind = "saturation" }, "type"},
		{"target 100", func(t *Target) { t.Objective = 100 }, "target"},
		{"target 0", func(t *Target) { t.Objective = 0 }, "target"},
		{"negative warning", func(t *Target) { t.WarningThreshold = -1 }, "warning_threshold"},
		{"critical tighter than warning", func(t *Target) { t.CriticalThreshold = 0.05 }, "critical_threshold"},
		{"breach below zero", func(t *Target) { t.Objective = 5; t.CriticalThreshold = 10 }, "critical_threshold"},
		{"zero window", func(t *Target) { t.Window = 0 }, "window"},
		{"unknown impact", func(t *Target) { t.Impact = "huge" }, "business_impact"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tg := validTarget()
			c.mutate(&tg)

			var cfgErr *ConfigurationError
			if err := tg.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != c.field {
				t.Fatalf("Validate() = %v, want ConfigurationError on %s", err, c.field)
			}
		})
	}

	if err := validTarget().Validate(); err != nil {
		t.Fatalf("valid target rejected: %v", err)
	}
	noImpact := validTarget()
	noImpact.Impact = ""
	if err := noImpact.Validate(); err != nil || noImpact.Normalize().Impact != ImpactMedium {
		t.Fatalf("impact must be optional and default to medium: %v", err)
	}
}

func TestValidateTargets(t *testing.T) {
	if err := ValidateTargets(nil); err == nil {
		t.Fatal("empty catalog must be rejected")
	}
	err := ValidateTargets([]Target{validTarget(), validTarget()})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("duplicate names must be rejected, got %v", err)
	}
}

func TestCounters(t *testing.T) {
	c := Counters{Total: 100, Success: 90, Error: 8, Slow: 15}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := (Counters{Total: 10, Success: 6, Error: 5}).Validate(); !errors.Is(err, ErrInvalidCounters) {
		t.Fatalf("success+error over total = %v", err)
	}

	want := map[Kind]uint64{KindAvailability: 90, KindErrorRate: 92, KindLatency: 85, KindThroughput: 90}
	for kind, good := range want {
		got, err := c.Good(kind)
		if err != nil || got != good {
			t.Errorf("Good(%s) = %d, %v; want %d", kind, got, err, good)
		}
	}
	var cfgErr *ConfigurationError
	if _, err := c.Good("saturation"); !errors.As(err, &cfgErr) {
		t.Errorf("unknown kind = %v, want ConfigurationError", err)
	}
}

func TestCounters_Overflow(t *testing.T) {
	// success+error в uint64 заворачивается в 0
	huge := Counters{Total: math.MaxUint64, Success: math.MaxUint64, Error: 1}
	if err := huge.Validate(); !errors.Is(err, ErrInvalidCounters) {
		t.Fatalf("wrapped success+error accepted: %v", err)
	}
	if err := (Counters{Total: math.MaxUint64, Success: math.MaxUint64 - 1, Error: 1}).Validate(); err != nil {
		t.Fatalf("exact fit rejected: %v", err)
	}

	if _, err := (Counters{Total: math.MaxUint64}).Add(Counters{Total: 1, Success: 1}); !errors.Is(err, ErrInvalidCounters) {
		t.Fatalf("Add must reject total overflow, got %v", err)
	}
	sum, err := (Counters{Total: 3, Success: 2, Error: 1}).Add(Counters{Total: 4, Success: 4, Slow: 2})
	if err != nil || sum != (Counters{Total: 7, Success: 6, Error: 1, Slow: 2}) {
		t.Fatalf("Add = %+v, %v", sum, err)
	}
}

func TestAlert_PriorityAndMessage(t *testing.T) {
	a := Alert{Series: "checkout", Level: LevelCritical, Impact: ImpactCritical, Value: 98.5, FirstSeen: time.Unix(0, 0)}
	if a.Priority() != 8 {
		t.Fatalf("priority = %d, want 8", a.Priority())
	}
	if low := (Alert{Level: LevelWarning, Impact: ImpactLow}); low.Priority() != 1 {
		t.Fatalf("priority = %d, want 1", low.Priority())
	}

	fired := Notification{Event: EventFired, Alert: a, Target: 99.9}.Message()
	if !strings.HasPrefix(fired, "[CRITICAL] checkout") {
		t.Errorf("fired message = %q", fired)
	}
	resolved := Notification{Event: EventResolved, Reason: ReasonSuperseded, Alert: a}.Message()
	if !strings.Contains(resolved, "RESOLVED") || !strings.Contains(resolved, "superseded") {
		t.Errorf("resolved message = %q", resolved)
	}
}
