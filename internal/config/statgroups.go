package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

// intervalSpec is the parsed form of a statgroup's update_interval string:
// either an absolute time in seconds, or a multiplier of each stat's own
// native cache time, never both.
type intervalSpec struct {
	multiplier float64
	absTime    float64
}

// parseUpdateIntvl parses a statgroup's update_interval string. Valid
// forms: "*<multiplier>" (e.g. "*2.5"), bare "*" (1x, no effect), or a
// plain number of seconds, clamped up to minIntvl. An unparseable string
// falls back to a 1x multiplier, logged at warning.
func parseUpdateIntvl(logger *slog.Logger, interval string, minIntvl int) intervalSpec {
	def := intervalSpec{multiplier: 1.0}
	if strings.HasPrefix(interval, "*") {
		if interval == "*" {
			return def
		}
		m, err := strconv.ParseFloat(interval[1:], 64)
		if err != nil {
			logger.Warn("unable to parse interval multiplier, defaulting to 1x", "interval", interval)
			return def
		}
		return intervalSpec{multiplier: m}
	}
	abs, err := strconv.ParseFloat(interval, 64)
	if err != nil {
		logger.Warn("unable to parse interval value, defaulting to 1x multiplier", "interval", interval)
		return def
	}
	if abs < float64(minIntvl) {
		logger.Warn("absolute update interval below minimum, clamping", "requested", abs, "minimum", minIntvl)
		abs = float64(minIntvl)
	}
	return intervalSpec{absTime: abs}
}

// parseInput turns "name" or "name#field.path" into a stats.Input.
func parseInput(s string) stats.Input {
	name, path, hasPath := strings.Cut(s, "#")
	if !hasPath || path == "" {
		return stats.NewInput(name)
	}
	return stats.NewPathInput(name, strings.Split(path, ".")...)
}

// BuildStatsConfigs turns every active statgroup into a stats.StatsConfig
// bound to every connected, enabled cluster: every active group applies
// uniformly to every enabled cluster. A stat named in more than one
// active group is a configuration error.
func BuildStatsConfigs(logger *slog.Logger, f *File, clusters []stats.ClusterConfig) ([]*stats.StatsConfig, error) {
	byName := make(map[string]StatGroupEntry, len(f.StatGroups))
	for _, sg := range f.StatGroups {
		byName[sg.Name] = sg
	}

	active := f.Global.ActiveStatGroups
	if len(active) == 0 {
		active = make([]string, 0, len(f.StatGroups))
		for _, sg := range f.StatGroups {
			active = append(active, sg.Name)
		}
	}

	seen := make(map[string]string) // stat name -> group that claimed it
	var configs []*stats.StatsConfig
	for _, name := range active {
		sg, ok := byName[name]
		if !ok {
			logger.Warn("active stat group not found, skipping", "group", name)
			continue
		}
		for _, stat := range sg.Stats {
			if owner, dup := seen[stat]; dup {
				return nil, fmt.Errorf("stat %q appears in multiple active stat groups (%q and %q)", stat, owner, name)
			}
			seen[stat] = name
		}

		interval := parseUpdateIntvl(logger, sg.UpdateIntvl, f.Global.MinUpdateIntvl)
		cfg := stats.NewStatsConfig(clusters, sg.Stats, interval.absTime)
		if interval.absTime == 0 {
			m := interval.multiplier
			cfg.Multiplier = &m
		}

		// known tracks every name a derived-stat input is allowed to
		// reference: the group's own base stats, plus each derived
		// spec's output as it is declared, so a tier can only select
		// a stat it actually produces or an upstream tier's output -
		// never a stat nobody in this group ever computes.
		known := mapset.NewSet[string](sg.Stats...)

		for _, c := range sg.Composites {
			op, ok := stats.ParseAggOp(c.Op)
			if !ok {
				return nil, fmt.Errorf("stat group %q: unknown composite op %q", name, c.Op)
			}
			if !known.Contains(c.Input) {
				return nil, fmt.Errorf("stat group %q: composite %q references unknown stat %q", name, c.Output, c.Input)
			}
			cfg.Composites = append(cfg.Composites, stats.CompositeSpec{Input: c.Input, Output: c.Output, Op: op})
			known.Add(c.Output)
		}
		for _, e := range sg.Equations {
			inputs := parseInputs(e.Inputs)
			for _, in := range inputs {
				if !known.Contains(in.Name) {
					return nil, fmt.Errorf("stat group %q: equation %q references unknown stat %q", name, e.Output, in.Name)
				}
			}
			cfg.Equations = append(cfg.Equations, stats.EquationSpec{Inputs: inputs, Output: e.Output, Expr: e.Expr})
			known.Add(e.Output)
		}
		for _, p := range sg.PercentChanges {
			in := parseInput(p.Input)
			if !known.Contains(in.Name) {
				return nil, fmt.Errorf("stat group %q: percent_change %q references unknown stat %q", name, p.Output, in.Name)
			}
			cfg.PercentChanges = append(cfg.PercentChanges, stats.PercentChangeSpec{Input: in, Output: p.Output})
			known.Add(p.Output)
		}
		for _, e := range sg.FinalEquations {
			inputs := parseInputs(e.Inputs)
			for _, in := range inputs {
				if !known.Contains(in.Name) {
					return nil, fmt.Errorf("stat group %q: final_equation %q references unknown stat %q", name, e.Output, in.Name)
				}
			}
			cfg.FinalEquations = append(cfg.FinalEquations, stats.FinalEquationSpec{Inputs: inputs, Output: e.Output, Expr: e.Expr})
			known.Add(e.Output)
		}

		configs = append(configs, cfg)
	}
	return configs, nil
}

func parseInputs(ss []string) []stats.Input {
	out := make([]stats.Input, len(ss))
	for i, s := range ss {
		out[i] = parseInput(s)
	}
	return out
}
