// Package stats defines the collector's core data model: the raw and
// derived statistic types, cluster/stat-group configuration, and the
// per-update-interval work sets the scheduler operates on.
package stats

// Stat is the shared view RawStat and DerivedStat both present to the
// derived-stat computers and the processor adapter. The two concrete types
// are duck-compatible in the original Python daemon; here that is modeled
// as a small interface instead of relying on structural typing.
type Stat interface {
	StatKey() string
	StatDevid() int
	StatTime() int64
	StatValue() any
	StatErr() error
}

// RawStat is the unit returned by a cluster query. Exactly one of Value and
// Err is meaningful; callers must skip stats with Err set.
type RawStat struct {
	Key   string // dotted name, e.g. node.ifs.ops.in
	Devid int    // 0 = cluster-level, >0 = node number
	Time  int64  // unix seconds
	Value any    // scalar, ordered sequence, or map[string]any
	Err   error
}

func (s RawStat) StatKey() string   { return s.Key }
func (s RawStat) StatDevid() int    { return s.Devid }
func (s RawStat) StatTime() int64   { return s.Time }
func (s RawStat) StatValue() any    { return s.Value }
func (s RawStat) StatErr() error    { return s.Err }

// DerivedStat is produced by the derived-stat pipeline. It has the same
// shape as RawStat (a tagged union of raw and derived values) so it can
// flow through the same processor entry points.
type DerivedStat struct {
	Key   string
	Devid int
	Time  int64
	Value any
	Err   error
}

func (s DerivedStat) StatKey() string { return s.Key }
func (s DerivedStat) StatDevid() int  { return s.Devid }
func (s DerivedStat) StatTime() int64 { return s.Time }
func (s DerivedStat) StatValue() any  { return s.Value }
func (s DerivedStat) StatErr() error  { return s.Err }

// ErrorStat builds a DerivedStat carrying only an error, for the "emit an
// error derived-stat" cases in the computer contracts.
func ErrorStat(key string, devid int, err error) DerivedStat {
	return DerivedStat{Key: key, Devid: devid, Err: err}
}
