package derive

import (
	"sort"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

// Computer is the shared begin/select/compute/end contract every
// derived-stat kind implements.
type Computer interface {
	Begin(cluster string)
	Select(s stats.Stat)
	Compute() []stats.DerivedStat
	End(cluster string)
}

// equationCore implements the shared Equation/FinalEquation mechanics: each
// tick it collects, per input, the value seen at every node (and at the
// cluster scope, for cluster.* inputs), then evaluates the compiled
// expression once per node that has at least one non-null input.
type equationCore struct {
	inputs []stats.Input
	output string
	ast    exprNode

	cluster string
	values  []map[int]any
	times   []map[int]int64
}

func newEquationCore(inputs []stats.Input, output, expr string) (*equationCore, error) {
	ast, err := compileExpr(expr)
	if err != nil {
		return nil, err
	}
	return &equationCore{inputs: inputs, output: output, ast: ast}, nil
}

func (e *equationCore) Begin(cluster string) {
	e.cluster = cluster
	e.values = make([]map[int]any, len(e.inputs))
	e.times = make([]map[int]int64, len(e.inputs))
	for i := range e.inputs {
		e.values[i] = make(map[int]any)
		e.times[i] = make(map[int]int64)
	}
}

func (e *equationCore) Select(s stats.Stat) {
	if s.StatErr() != nil {
		return
	}
	for i, in := range e.inputs {
		if in.Name != s.StatKey() {
			continue
		}
		v, ok := in.GetValue(s.StatValue())
		devid := s.StatDevid()
		if ok {
			e.values[i][devid] = v
			e.times[i][devid] = s.StatTime()
		}
	}
}

func (e *equationCore) Compute() []stats.DerivedStat {
	nodes := map[int]bool{}
	anyPerNode := false
	for i, in := range e.inputs {
		if in.IsClusterScoped() {
			continue
		}
		anyPerNode = true
		for devid := range e.values[i] {
			nodes[devid] = true
		}
	}
	if !anyPerNode {
		nodes[0] = true
	}

	ordered := make([]int, 0, len(nodes))
	for devid := range nodes {
		ordered = append(ordered, devid)
	}
	sort.Ints(ordered)

	var out []stats.DerivedStat
	for _, devid := range ordered {
		args := make([]any, len(e.inputs))
		nullCount := 0
		var sample any
		var ts []int64
		for i, in := range e.inputs {
			lookup := devid
			if in.IsClusterScoped() {
				lookup = 0
			}
			v, ok := e.values[i][lookup]
			if !ok {
				args[i] = nil
				nullCount++
				continue
			}
			args[i] = v
			sample = v
			ts = append(ts, e.times[i][lookup])
		}
		if nullCount == len(args) {
			continue
		}

		nums := make([]number, len(args))
		ok := true
		for i, a := range args {
			if a == nil {
				sampleNum, sok := numberFrom(sample)
				if !sok {
					ok = false
					break
				}
				nums[i] = zeroLike(sampleNum)
				continue
			}
			n, nok := numberFrom(a)
			if !nok {
				ok = false
				break
			}
			nums[i] = n
		}
		if !ok {
			out = append(out, stats.ErrorStat(e.output, devid, errNonNumericInput))
			continue
		}

		result, err := e.ast.eval(nums)
		if err != nil {
			out = append(out, stats.ErrorStat(e.output, devid, err))
			continue
		}
		t, _ := meanTime(ts)
		out = append(out, stats.DerivedStat{Key: e.output, Devid: devid, Time: t, Value: result.toAny()})
	}
	return out
}

func (e *equationCore) End(string) {}

var errNonNumericInput = errNonNumericInputErr{}

type errNonNumericInputErr struct{}

func (errNonNumericInputErr) Error() string { return "equation input is not numeric" }

// Equation computes spec.EquationSpec entries, ordered in the pipeline's
// first derived-stat tier.
type Equation struct{ core *equationCore }

// NewEquation compiles spec.Expr and returns a ready Computer.
func NewEquation(spec stats.EquationSpec) (*Equation, error) {
	core, err := newEquationCore(spec.Inputs, spec.Output, spec.Expr)
	if err != nil {
		return nil, err
	}
	return &Equation{core: core}, nil
}

func (e *Equation) Begin(cluster string)          { e.core.Begin(cluster) }
func (e *Equation) Select(s stats.Stat)            { e.core.Select(s) }
func (e *Equation) Compute() []stats.DerivedStat   { return e.core.Compute() }
func (e *Equation) End(cluster string)             { e.core.End(cluster) }

// FinalEquation is mechanically identical to Equation; it is a distinct
// type so the pipeline can order it in the last tier, after PercentChange
// outputs are available to reference.
type FinalEquation struct{ core *equationCore }

// NewFinalEquation compiles spec.Expr and returns a ready Computer.
func NewFinalEquation(spec stats.FinalEquationSpec) (*FinalEquation, error) {
	core, err := newEquationCore(spec.Inputs, spec.Output, spec.Expr)
	if err != nil {
		return nil, err
	}
	return &FinalEquation{core: core}, nil
}

func (e *FinalEquation) Begin(cluster string)        { e.core.Begin(cluster) }
func (e *FinalEquation) Select(s stats.Stat)          { e.core.Select(s) }
func (e *FinalEquation) Compute() []stats.DerivedStat { return e.core.Compute() }
func (e *FinalEquation) End(cluster string)           { e.core.End(cluster) }
