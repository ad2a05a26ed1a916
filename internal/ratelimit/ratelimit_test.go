package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestDeniesOverBudget(t *testing.T) {
	l := New()
	l.Register("met_norway", Policy{Requests: 3, Window: time.Second})

	for i := 0; i < 3; i++ {
		if err := l.Acquire("met_norway"); err != nil {
			t.Fatalf("grant %d unexpectedly denied: %v", i+1, err)
		}
	}

	err := l.Acquire("met_norway")
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("4th acquire in a 3-request window must be denied, got %v", err)
	}
	if denied.RetryAfter <= 0 {
		t.Errorf("retry_after must be positive, got %s", denied.RetryAfter)
	}
}

func TestWindowRollover(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New()
	l.SetClock(func() time.Time { return now })
	l.Register("nasa_power", Policy{Requests: 1, Window: time.Second})

	if err := l.Acquire("nasa_power"); err != nil {
		t.Fatalf("first acquire denied: %v", err)
	}
	if err := l.Acquire("nasa_power"); err == nil {
		t.Fatal("second acquire within window must be denied")
	}

	now = now.Add(time.Second)
	if err := l.Acquire("nasa_power"); err != nil {
		t.Fatalf("acquire after window rollover denied: %v", err)
	}

	st, ok := l.StateOf("nasa_power")
	if !ok {
		t.Fatal("state missing for registered source")
	}
	if st.RequestCount != 1 {
		t.Errorf("request count after rollover = %d, want 1", st.RequestCount)
	}
}

func TestFixedRetryAfterPolicy(t *testing.T) {
	l := New()
	l.Register("nws_forecast", Policy{Requests: 1, Window: time.Second, FixedRetryAfter: 5 * time.Second})

	if err := l.Acquire("nws_forecast"); err != nil {
		t.Fatalf("first acquire denied: %v", err)
	}
	err := l.Acquire("nws_forecast")
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denial, got %v", err)
	}
	if denied.RetryAfter != 5*time.Second {
		t.Errorf("retry_after = %s, want fixed 5s", denied.RetryAfter)
	}
}

func TestExponentialDenialGrowth(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New()
	l.SetClock(func() time.Time { return now })
	l.Register("openmeteo_forecast", Policy{Requests: 1, Window: time.Second, MaxBackoff: 8 * time.Second})

	if err := l.Acquire("openmeteo_forecast"); err != nil {
		t.Fatalf("first acquire denied: %v", err)
	}

	var prev time.Duration
	for i := 0; i < 5; i++ {
		err := l.Acquire("openmeteo_forecast")
		var denied *DeniedError
		if !errors.As(err, &denied) {
			t.Fatalf("denial %d: got %v", i, err)
		}
		if denied.RetryAfter < prev {
			t.Errorf("denial %d retry_after %s shrank below %s", i, denied.RetryAfter, prev)
		}
		if denied.RetryAfter > 8*time.Second {
			t.Errorf("denial %d retry_after %s exceeds cap", i, denied.RetryAfter)
		}
		prev = denied.RetryAfter
	}
}

func TestReportThrottledSpendsWindow(t *testing.T) {
	l := New()
	l.Register("openmeteo_archive", Policy{Requests: 10, Window: time.Second})

	if err := l.Acquire("openmeteo_archive"); err != nil {
		t.Fatalf("acquire denied: %v", err)
	}
	l.ReportThrottled("openmeteo_archive")

	if err := l.Acquire("openmeteo_archive"); err == nil {
		t.Fatal("acquire after server 429 must be denied for the rest of the window")
	}
	st, _ := l.StateOf("openmeteo_archive")
	if st.Last429At.IsZero() {
		t.Error("Last429At not recorded")
	}
}

func TestUnregisteredSourceUnlimited(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		if err := l.Acquire("unknown"); err != nil {
			t.Fatalf("unregistered source must not be limited: %v", err)
		}
	}
}
