// Package diag carries the non-fatal findings of a walk over target
// memory, and the options that decide whether a finding aborts the walk.
package diag

import (
	"fmt"
	"sort"
)

// Kind classifies a finding.
type Kind string

const (
	KindUnmapped  Kind = "unmapped"   // address not backed by any region
	KindWrongType Kind = "wrong_type" // accessor does not match the field
	KindUnknown   Kind = "unknown"    // name or type missing from the database
	KindCorrupt   Kind = "corrupt"    // structure breaks an invariant
	KindClamped   Kind = "clamped"    // walk stopped at the step cap
	KindNoCodec   Kind = "no_codec"   // narrow reference compiled without a codec
)

// Diag is one finding, anchored at the target address it concerns.
type Diag struct {
	Addr uint64 `json:"addr"`
	Kind Kind   `json:"kind"`
	Msg  string `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Addr, d.Msg)
}

// Diags collects findings in the order they were made. The zero value is
// ready to use.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(addr uint64, kind Kind, msg string) {
	d.items = append(d.items, Diag{Addr: addr, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(addr uint64, kind Kind, format string, args ...any) {
	d.Add(addr, kind, fmt.Sprintf(format, args...))
}

// Merge appends findings made elsewhere.
func (d *Diags) Merge(ds []Diag) { d.items = append(d.items, ds...) }

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// KindCount is the number of findings of one kind.
type KindCount struct {
	Kind  Kind `json:"kind"`
	Count int  `json:"count"`
}

// Summarize counts ds by kind, most frequent first, ties by name.
func Summarize(ds []Diag) []KindCount {
	counts := make(map[Kind]int)
	for _, d := range ds {
		counts[d.Kind]++
	}
	out := make([]KindCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, KindCount{Kind: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Mode decides what a walk does with a finding.
type Mode int

const (
	ModeStrict     Mode = iota // the first finding is returned as an error
	ModeBestEffort             // skip the item and keep the finding
)

// Options controls walks across packages.
type Options struct {
	Mode     Mode
	MaxSteps int // loop cap per walk; 0 = DefaultMaxSteps
}

// DefaultMaxSteps bounds every pointer-chasing loop.
const DefaultMaxSteps = 10_000_000

func (o Options) EffectiveMaxSteps() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return DefaultMaxSteps
}

// Strict reports whether o asks for fail-fast behavior.
func (o Options) Strict() bool { return o.Mode == ModeStrict }

// Check returns the first of ds as an error in strict mode, nil otherwise.
func (o Options) Check(ds []Diag) error {
	if !o.Strict() || len(ds) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %s", ds[0].Kind, ds[0].Msg)
}
