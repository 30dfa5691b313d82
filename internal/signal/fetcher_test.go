package signal

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubGasProvider struct {
	snapshot *GasSnapshot
	err      error
	delay    time.Duration
}

func (p *stubGasProvider) Fetch(ctx context.Context) (*GasSnapshot, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.snapshot, p.err
}

type stubTelemetryProvider struct {
	snapshot *TelemetrySnapshot
	err      error
}

func (p *stubTelemetryProvider) Fetch(context.Context) (*TelemetrySnapshot, error) {
	return p.snapshot, p.err
}

func TestFetchAllMergesSnapshots(t *testing.T) {
	t.Parallel()

	// Saturday 12:00 UTC.
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f := NewFetcher(
		WithClock(func() time.Time { return fixed }),
		WithGasProvider(&stubGasProvider{snapshot: &GasSnapshot{StandardGwei: 21}}),
		WithTelemetryProvider(&stubTelemetryProvider{snapshot: &TelemetrySnapshot{RecentExecutions: 4}}),
	)

	set := f.FetchAll(context.Background())
	if set.Clock == nil || set.Clock.Hour != 12 || !set.Clock.IsWeekend {
		t.Fatalf("unexpected clock snapshot: %+v", set.Clock)
	}
	if !set.Gas.Available() || set.Gas.StandardGwei != 21 {
		t.Fatalf("unexpected gas snapshot: %+v", set.Gas)
	}
	if !set.Telemetry.Available() || set.Telemetry.RecentExecutions != 4 {
		t.Fatalf("unexpected telemetry snapshot: %+v", set.Telemetry)
	}
}

func TestFetchAllKeepsClockWithoutProviders(t *testing.T) {
	t.Parallel()

	set := NewFetcher().FetchAll(context.Background())
	if set.Clock == nil {
		t.Fatal("clock snapshot should always be present")
	}
	if set.Gas != nil || set.Telemetry != nil {
		t.Fatalf("unconfigured providers should yield nil snapshots: %+v", set)
	}
}

func TestFetchAllMarksFailedProviderUnavailable(t *testing.T) {
	t.Parallel()

	f := NewFetcher(
		WithGasProvider(&stubGasProvider{err: errors.New("rpc unreachable")}),
		WithTelemetryProvider(&stubTelemetryProvider{err: errors.New("indexer down")}),
	)

	set := f.FetchAll(context.Background())
	if set.Gas.Available() {
		t.Fatalf("gas snapshot should carry the fetch error, got %+v", set.Gas)
	}
	if set.Gas.Err != "rpc unreachable" {
		t.Fatalf("expected provider error to surface, got %q", set.Gas.Err)
	}
	if set.Telemetry.Available() {
		t.Fatalf("telemetry snapshot should carry the fetch error, got %+v", set.Telemetry)
	}
}

func TestFetchAllEnforcesTimeout(t *testing.T) {
	t.Parallel()

	f := NewFetcher(
		WithFetchTimeout(20*time.Millisecond),
		WithGasProvider(&stubGasProvider{delay: time.Second, snapshot: &GasSnapshot{StandardGwei: 9}}),
	)

	start := time.Now()
	set := f.FetchAll(context.Background())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("fetch should be bounded by the timeout, took %v", elapsed)
	}
	if set.Gas.Available() {
		t.Fatalf("timed-out provider must be unavailable, got %+v", set.Gas)
	}
}
