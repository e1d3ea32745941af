// Package sink holds the shared point-decoding logic every concrete
// backend (discard, influxdb, influxdbv2, prometheus) builds on, plus the
// sub-packages implementing each one.
package sink

import (
	"fmt"
	"log/slog"
	"maps"
	"strconv"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

// Fields maps one measurement instance's field names to their values.
type Fields map[string]any

// Tags maps one measurement instance's tag names to their values.
type Tags map[string]string

// Point is a single named measurement at a given time. A stat whose value
// unwraps into several distinct tag sets (e.g. per-protocol breakdowns)
// decodes into several field/tag pairs sharing one Point.
type Point struct {
	Name   string
	Time   int64
	Fields []Fields
	Tags   []Tags
}

// Decode turns one stat into a Point, flattening its value the way the
// OneFS statistics API's nested per-protocol/per-class breakdowns require.
func Decode(logger *slog.Logger, cluster string, s stats.Stat) (Point, error) {
	base := Tags{"cluster": cluster}
	if s.StatDevid() != 0 {
		base["devid"] = strconv.Itoa(s.StatDevid())
	}
	fa, ta, err := decodeValue(logger, s.StatKey(), "value", s.StatValue(), base, 0)
	if err != nil {
		return Point{}, err
	}
	return Point{Name: s.StatKey(), Time: s.StatTime(), Fields: fa, Tags: ta}, nil
}

// decodeValue recursively flattens a raw value into field/tag arrays. A
// directly nested array never occurs; primitive scalars only occur at
// depth 0 or as a named field within a map.
func decodeValue(logger *slog.Logger, statName, fieldName string, v any, baseTags Tags, depth int) ([]Fields, []Tags, error) {
	var fa []Fields
	var ta []Tags

	switch val := v.(type) {
	case float64, int64, int:
		if fieldName == "" {
			return nil, nil, fmt.Errorf("stat %s: unexpected primitive value with no field name", statName)
		}
		fa = append(fa, Fields{fieldName: val})
		ta = append(ta, baseTags)
	case bool:
		if fieldName == "" {
			return nil, nil, fmt.Errorf("stat %s: unexpected primitive value with no field name", statName)
		}
		fa = append(fa, Fields{fieldName: val})
		ta = append(ta, baseTags)
	case string:
		if depth == 0 {
			return nil, nil, fmt.Errorf("stat %s: only a single unusable string value", statName)
		}
		tags := maps.Clone(baseTags)
		tags[fieldName] = val
		ta = append(ta, tags)
	case []any:
		for _, elem := range val {
			nfa, nta, err := decodeValue(logger, statName, "", elem, baseTags, depth+1)
			if err != nil {
				return nil, nil, err
			}
			fa = append(fa, nfa...)
			ta = append(ta, nta...)
		}
		return fa, ta, nil
	case map[string]any:
		fields := make(Fields)
		tags := maps.Clone(baseTags)
		var subFields []Fields
		var subTags []Tags
		simple := true
		for key, sub := range val {
			_, isArray := sub.([]any)
			nfa, nta, err := decodeValue(logger, statName, key, sub, baseTags, depth+1)
			if err != nil {
				return nil, nil, err
			}
			switch {
			case len(nfa) == 0 && len(nta) > 0:
				maps.Copy(tags, nta[0])
			case len(nfa) == 1 && !isArray:
				maps.Copy(fields, nfa[0])
			case isArray:
				simple = false
				subFields = append(subFields, nfa...)
				subTags = append(subTags, nta...)
			default:
				return nil, nil, fmt.Errorf("stat %s: unexpected multiple field values for key %s", statName, key)
			}
		}
		if simple {
			if isInvalidStat(tags) {
				if logger != nil {
					logger.Debug("dropping unreliable stat instance", "stat", statName, "cluster", baseTags["cluster"])
				}
			} else {
				fa = append(fa, fields)
				ta = append(ta, tags)
			}
			return fa, ta, nil
		}
		for i := range subFields {
			f := maps.Clone(fields)
			t := maps.Clone(tags)
			maps.Copy(f, subFields[i])
			maps.Copy(t, subTags[i])
			if isInvalidStat(t) {
				continue
			}
			fa = append(fa, f)
			ta = append(ta, t)
		}
	default:
		return nil, nil, fmt.Errorf("stat %s: unhandled value type %T", statName, val)
	}
	return fa, ta, nil
}

// isInvalidStat drops SMB change-notify breakdowns, whose latency
// semantics produce misleadingly large values.
func isInvalidStat(tags Tags) bool {
	op := tags["op_name"]
	return op == "change_notify" || op == "read_directory_change"
}
