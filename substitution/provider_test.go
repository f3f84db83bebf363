package substitution

import (
	"context"
	"errors"
	"testing"
)

type mockSwapSource struct {
	swaps []RawSwapFact
	err   error
	calls int
}

func (m *mockSwapSource) Swaps(context.Context) ([]RawSwapFact, error) {
	m.calls++
	return m.swaps, m.err
}

type mockFreshness struct {
	marker int64
}

func (m *mockFreshness) FreshnessMarker(context.Context) (int64, error) {
	return m.marker, nil
}

func newTestProvider() (*Provider, *mockSwapSource, *mockFreshness) {
	swaps := &mockSwapSource{swaps: acebutololSwaps()}
	freshness := &mockFreshness{marker: 1}
	prescribed := func() map[string]struct{} {
		return map[string]struct{}{"0204000C0AAAAAA": {}, "0204000C0BBAAAA": {}}
	}
	return NewProvider(swaps, freshness, prescribed), swaps, freshness
}

func TestProviderCachesUntilMarkerChanges(t *testing.T) {
	provider, swaps, freshness := newTestProvider()
	ctx := context.Background()

	first, err := provider.Sets(ctx)
	if err != nil {
		t.Fatalf("Sets failed: %v", err)
	}
	second, _ := provider.Sets(ctx)
	if first != second || swaps.calls != 1 {
		t.Errorf("expected cached collection, swap query ran %d times", swaps.calls)
	}

	freshness.marker = 2
	third, _ := provider.Sets(ctx)
	if third == first || swaps.calls != 2 {
		t.Errorf("expected rebuild after marker change, swap query ran %d times", swaps.calls)
	}

	provider.Invalidate()
	provider.Sets(ctx)
	if swaps.calls != 3 {
		t.Errorf("expected rebuild after Invalidate, swap query ran %d times", swaps.calls)
	}
}

func TestProviderSetsByPresentation(t *testing.T) {
	provider, swaps, _ := newTestProvider()

	index, err := provider.SetsByPresentation(context.Background())
	if err != nil {
		t.Fatalf("SetsByPresentation failed: %v", err)
	}
	set, ok := index["0204000C0BBAAAA"]
	if !ok || set.ID != "0204000C0AAAAAA" {
		t.Errorf("unexpected index entry %+v", set)
	}

	provider.SetsByPresentation(context.Background())
	if swaps.calls != 1 {
		t.Errorf("index and sets should share one build, got %d", swaps.calls)
	}
}

func TestProviderPropagatesSourceErrors(t *testing.T) {
	provider, swaps, _ := newTestProvider()
	sentinel := errors.New("relation does not exist")
	swaps.err = sentinel

	if _, err := provider.Sets(context.Background()); !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped source error, got %v", err)
	}

	// A failed build is not cached
	swaps.err = nil
	if _, err := provider.Sets(context.Background()); err != nil {
		t.Errorf("expected recovery, got %v", err)
	}
}

func TestProviderDropsBuildOverlappingReload(t *testing.T) {
	swaps := &mockSwapSource{swaps: acebutololSwaps()}
	var provider *Provider
	reloads := 0
	prescribed := func() map[string]struct{} {
		if reloads == 0 {
			// Prescribing is replaced while this build reads the old codes
			reloads++
			provider.Invalidate()
			return map[string]struct{}{}
		}
		return map[string]struct{}{"0204000C0AAAAAA": {}, "0204000C0BBAAAA": {}}
	}
	provider = NewProvider(swaps, &mockFreshness{marker: 1}, prescribed)
	ctx := context.Background()

	stale, err := provider.Sets(ctx)
	if err != nil {
		t.Fatalf("Sets failed: %v", err)
	}
	if stale.Len() != 0 {
		t.Fatalf("first build saw no prescribing, got %d sets", stale.Len())
	}

	current, _ := provider.Sets(ctx)
	if current.Len() != 1 || swaps.calls != 2 {
		t.Errorf("expected a rebuild from the new prescribing, got %d sets after %d builds", current.Len(), swaps.calls)
	}
}
