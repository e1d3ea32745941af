package stats

// AggOp is the aggregation operator for a Composite derived stat.
type AggOp int

const (
	AggAvg AggOp = iota
	AggMin
	AggMax
	AggSum
)

// ParseAggOp parses a composite operator name from configuration.
func ParseAggOp(s string) (AggOp, bool) {
	switch s {
	case "avg":
		return AggAvg, true
	case "min":
		return AggMin, true
	case "max":
		return AggMax, true
	case "sum":
		return AggSum, true
	default:
		return 0, false
	}
}

func (op AggOp) String() string {
	switch op {
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggSum:
		return "sum"
	default:
		return "unknown"
	}
}

// CompositeSpec configures a cluster-level aggregate over all node values
// of one base stat ("Composite").
type CompositeSpec struct {
	Input  string // base stat name
	Output string // derived stat key, conventionally "cluster." + Input + "." + Op
	Op     AggOp
}

// EquationSpec configures an algebraic expression over a fixed, positional
// set of base-stat (or upstream-tier) inputs ("Equation").
type EquationSpec struct {
	Inputs []Input
	Output string
	Expr   string // arithmetic expression over Inputs by position letter (a = Inputs[0], b = Inputs[1], ...), e.g. "a + b"
}

// PercentChangeSpec configures a percent-change-over-previous-interval
// derived stat ("PercentChange").
type PercentChangeSpec struct {
	Input  Input
	Output string
}

// FinalEquationSpec is mechanically identical to EquationSpec; it exists as
// a distinct type so equations can be ordered in a later pipeline tier that
// may reference PercentChange outputs ("FinalEquation").
type FinalEquationSpec struct {
	Inputs []Input
	Output string
	Expr   string
}
