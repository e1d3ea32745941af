package stats

// Input is a (name, optional field path) pair used by the derived-stat
// computers to pick which stats they care about and to extract a scalar
// out of a possibly-nested raw value.
type Input struct {
	Name  string
	Path  []string // optional nested field path, e.g. ["in", "avg"]
}

// NewInput builds an Input with no field path.
func NewInput(name string) Input {
	return Input{Name: name}
}

// NewPathInput builds an Input that extracts a nested field.
func NewPathInput(name string, path ...string) Input {
	return Input{Name: name, Path: path}
}

// IsClusterScoped reports whether this input's name names a cluster-level
// stat (devid 0 regardless of which node the caller is computing for), per
// the Equation/FinalEquation "cluster.*" lookup rule.
func (in Input) IsClusterScoped() bool {
	return len(in.Name) >= 8 && in.Name[:8] == "cluster."
}

// GetValue resolves in.Path against value, auto-unwrapping a single-element
// sequence at any level (the round-trip property that
// GetValue(x) where x is a single-element sequence equals GetValue(x[0])).
// A missing path element yields (nil, false) - treated as "missing" by
// callers, never coerced to zero until the null-coalescing step in Equation.
func (in Input) GetValue(value any) (any, bool) {
	v, ok := unwrapSingle(value)
	if !ok {
		return nil, false
	}
	for _, elem := range in.Path {
		v, ok = unwrapSingle(v)
		if !ok {
			return nil, false
		}
		m, isMap := v.(map[string]any)
		if !isMap {
			return nil, false
		}
		v, ok = m[elem]
		if !ok {
			return nil, false
		}
	}
	return unwrapSingle(v)
}

// unwrapSingle repeatedly collapses a single-element slice down to its sole
// element. An empty slice is not resolvable; a slice with more than one
// element is returned unchanged and reported as resolvable.
func unwrapSingle(v any) (any, bool) {
	for {
		switch sl := v.(type) {
		case []any:
			if len(sl) != 1 {
				if len(sl) == 0 {
					return nil, false
				}
				return v, true
			}
			v = sl[0]
			continue
		default:
			return v, true
		}
	}
}
