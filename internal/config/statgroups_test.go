package config

import (
	"log/slog"
	"testing"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestParseUpdateIntvlMultiplier(t *testing.T) {
	spec := parseUpdateIntvl(discardLogger(), "*2.5", 30)
	if spec.multiplier != 2.5 || spec.absTime != 0 {
		t.Fatalf("parseUpdateIntvl(*2.5) = %+v", spec)
	}
}

func TestParseUpdateIntvlBareStarDefaultsTo1x(t *testing.T) {
	spec := parseUpdateIntvl(discardLogger(), "*", 30)
	if spec.multiplier != 1.0 {
		t.Fatalf("parseUpdateIntvl(*) = %+v, want multiplier 1.0", spec)
	}
}

func TestParseUpdateIntvlUnparsableMultiplierDefaults(t *testing.T) {
	spec := parseUpdateIntvl(discardLogger(), "*bogus", 30)
	if spec.multiplier != 1.0 {
		t.Fatalf("parseUpdateIntvl(*bogus) = %+v, want fallback multiplier 1.0", spec)
	}
}

func TestParseUpdateIntvlAbsoluteValue(t *testing.T) {
	spec := parseUpdateIntvl(discardLogger(), "60", 30)
	if spec.absTime != 60 {
		t.Fatalf("parseUpdateIntvl(60) = %+v, want absTime 60", spec)
	}
}

func TestParseUpdateIntvlClampsBelowMinimum(t *testing.T) {
	spec := parseUpdateIntvl(discardLogger(), "5", 30)
	if spec.absTime != 30 {
		t.Fatalf("parseUpdateIntvl(5) with min 30 = %+v, want clamped to 30", spec)
	}
}

func TestParseUpdateIntvlUnparsableAbsoluteDefaults(t *testing.T) {
	spec := parseUpdateIntvl(discardLogger(), "not-a-number", 30)
	if spec.multiplier != 1.0 || spec.absTime != 0 {
		t.Fatalf("parseUpdateIntvl(bogus) = %+v, want fallback 1x multiplier", spec)
	}
}

func TestParseInputBareName(t *testing.T) {
	in := parseInput("node.ifs.ops.in")
	if in.Name != "node.ifs.ops.in" || len(in.Path) != 0 {
		t.Fatalf("parseInput(bare) = %+v", in)
	}
}

func TestParseInputWithPath(t *testing.T) {
	in := parseInput("node.disk.iosched#in.avg")
	if in.Name != "node.disk.iosched" {
		t.Fatalf("parseInput Name = %q", in.Name)
	}
	if len(in.Path) != 2 || in.Path[0] != "in" || in.Path[1] != "avg" {
		t.Fatalf("parseInput Path = %+v, want [in avg]", in.Path)
	}
}

func TestBuildStatsConfigsDetectsCrossGroupDuplicateStats(t *testing.T) {
	f := &File{
		StatGroups: []StatGroupEntry{
			{Name: "g1", UpdateIntvl: "30", Stats: []string{"a"}},
			{Name: "g2", UpdateIntvl: "30", Stats: []string{"a"}},
		},
	}
	clusters := []stats.ClusterConfig{{Address: "10.0.0.1"}}
	_, err := BuildStatsConfigs(discardLogger(), f, clusters)
	if err == nil {
		t.Fatalf("expected error for a stat named in two active groups")
	}
}

func TestBuildStatsConfigsDefaultsToAllGroupsWhenActiveListEmpty(t *testing.T) {
	f := &File{
		StatGroups: []StatGroupEntry{
			{Name: "g1", UpdateIntvl: "30", Stats: []string{"a"}},
			{Name: "g2", UpdateIntvl: "60", Stats: []string{"b"}},
		},
	}
	clusters := []stats.ClusterConfig{{Address: "10.0.0.1"}}
	cfgs, err := BuildStatsConfigs(discardLogger(), f, clusters)
	if err != nil {
		t.Fatalf("BuildStatsConfigs error: %v", err)
	}
	if len(cfgs) != 2 {
		t.Fatalf("len(cfgs) = %d, want 2", len(cfgs))
	}
}

func TestBuildStatsConfigsSkipsInactiveGroups(t *testing.T) {
	f := &File{
		Global: GlobalConfig{ActiveStatGroups: []string{"g1"}},
		StatGroups: []StatGroupEntry{
			{Name: "g1", UpdateIntvl: "30", Stats: []string{"a"}},
			{Name: "g2", UpdateIntvl: "60", Stats: []string{"a"}},
		},
	}
	clusters := []stats.ClusterConfig{{Address: "10.0.0.1"}}
	cfgs, err := BuildStatsConfigs(discardLogger(), f, clusters)
	if err != nil {
		t.Fatalf("BuildStatsConfigs error: %v", err)
	}
	if len(cfgs) != 1 {
		t.Fatalf("len(cfgs) = %d, want 1 (only g1 active)", len(cfgs))
	}
}

func TestBuildStatsConfigsConvertsDerivedSpecs(t *testing.T) {
	f := &File{
		StatGroups: []StatGroupEntry{{
			Name:        "g1",
			UpdateIntvl: "30",
			Stats:       []string{"node.a"},
			Composites:  []CompositeEntry{{Input: "node.a", Output: "cluster.a.avg", Op: "avg"}},
			Equations:   []EquationEntry{{Inputs: []string{"node.a"}, Output: "eq.out", Expr: "a * 2"}},
		}},
	}
	clusters := []stats.ClusterConfig{{Address: "10.0.0.1"}}
	cfgs, err := BuildStatsConfigs(discardLogger(), f, clusters)
	if err != nil {
		t.Fatalf("BuildStatsConfigs error: %v", err)
	}
	if len(cfgs[0].Composites) != 1 || cfgs[0].Composites[0].Op != stats.AggAvg {
		t.Fatalf("Composites = %+v", cfgs[0].Composites)
	}
	if len(cfgs[0].Equations) != 1 || cfgs[0].Equations[0].Expr != "a * 2" {
		t.Fatalf("Equations = %+v", cfgs[0].Equations)
	}
}

func TestBuildStatsConfigsRejectsCompositeOnUnknownStat(t *testing.T) {
	f := &File{
		StatGroups: []StatGroupEntry{{
			Name:        "g1",
			UpdateIntvl: "30",
			Stats:       []string{"node.a"},
			Composites:  []CompositeEntry{{Input: "node.never.configured", Output: "cluster.a.avg", Op: "avg"}},
		}},
	}
	clusters := []stats.ClusterConfig{{Address: "10.0.0.1"}}
	if _, err := BuildStatsConfigs(discardLogger(), f, clusters); err == nil {
		t.Fatalf("expected error for a composite referencing a stat outside the group")
	}
}

func TestBuildStatsConfigsRejectsEquationOnUnknownStat(t *testing.T) {
	f := &File{
		StatGroups: []StatGroupEntry{{
			Name:        "g1",
			UpdateIntvl: "30",
			Stats:       []string{"node.a"},
			Equations:   []EquationEntry{{Inputs: []string{"node.b"}, Output: "eq.out", Expr: "a * 2"}},
		}},
	}
	clusters := []stats.ClusterConfig{{Address: "10.0.0.1"}}
	if _, err := BuildStatsConfigs(discardLogger(), f, clusters); err == nil {
		t.Fatalf("expected error for an equation referencing a stat outside the group")
	}
}

func TestBuildStatsConfigsAllowsEquationOnCompositeOutput(t *testing.T) {
	f := &File{
		StatGroups: []StatGroupEntry{{
			Name:        "g1",
			UpdateIntvl: "30",
			Stats:       []string{"node.a"},
			Composites:  []CompositeEntry{{Input: "node.a", Output: "cluster.a.avg", Op: "avg"}},
			Equations:   []EquationEntry{{Inputs: []string{"cluster.a.avg"}, Output: "eq.out", Expr: "a * 2"}},
		}},
	}
	clusters := []stats.ClusterConfig{{Address: "10.0.0.1"}}
	if _, err := BuildStatsConfigs(discardLogger(), f, clusters); err != nil {
		t.Fatalf("equation referencing an upstream composite output should be allowed: %v", err)
	}
}

func TestBuildStatsConfigsUnknownCompositeOpErrors(t *testing.T) {
	f := &File{
		StatGroups: []StatGroupEntry{{
			Name:        "g1",
			UpdateIntvl: "30",
			Stats:       []string{"node.a"},
			Composites:  []CompositeEntry{{Input: "node.a", Output: "out", Op: "bogus"}},
		}},
	}
	clusters := []stats.ClusterConfig{{Address: "10.0.0.1"}}
	if _, err := BuildStatsConfigs(discardLogger(), f, clusters); err == nil {
		t.Fatalf("expected error for unknown composite op")
	}
}
