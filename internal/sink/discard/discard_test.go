package discard

import (
	"testing"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

func TestSinkProcessStatAlwaysSucceeds(t *testing.T) {
	s := New()
	err := s.ProcessStat("cluster1", stats.RawStat{Key: "a", Value: 1.0})
	if err != nil {
		t.Fatalf("ProcessStat error: %v", err)
	}
}
