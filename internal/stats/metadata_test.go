package stats

import "testing"

func TestEffectiveIntervalFromPolicies(t *testing.T) {
	m := Metadata{Policies: []Policy{{Interval: 30}, {Interval: 10}, {Interval: 20}}}
	if got := m.EffectiveInterval(); got != 10 {
		t.Fatalf("EffectiveInterval() = %v, want 10 (min of policies)", got)
	}
}

func TestEffectiveIntervalFromDefaultCacheTime(t *testing.T) {
	cache := 5.0
	m := Metadata{DefaultCacheTime: &cache}
	if got := m.EffectiveInterval(); got != 6.0 {
		t.Fatalf("EffectiveInterval() = %v, want 6.0 (default+1)", got)
	}
}

func TestEffectiveIntervalContinuouslyUpdated(t *testing.T) {
	m := Metadata{}
	if got := m.EffectiveInterval(); got != continuouslyUpdatedInterval {
		t.Fatalf("EffectiveInterval() = %v, want %v", got, continuouslyUpdatedInterval)
	}
}
