package lib

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownFilter = errors.New("unknown filter")

// levels is the table length for 8-bit frames.
const levels = 256

// Filter transforms src into dst. The two frames must have the same shape and
// may be the same frame.
type Filter interface {
	Apply(src *Frame, dst *Frame) error
}

// CurveFilter applies one curve to every channel.
type CurveFilter struct {
	table *LookupTable
}

func NewCurveFilter(points []CurvePoint) *CurveFilter {
	return &CurveFilter{table: NewLookupTable(NewCurveFunc(points), levels)}
}

func (f *CurveFilter) Table() *LookupTable {
	return f.table
}

func (f *CurveFilter) Apply(src *Frame, dst *Frame) error {
	if err := checkFrames(src, dst); err != nil {
		return err
	}
	return ApplyLookup(f.table, src.Bytes, dst.Bytes)
}

// ChannelCurves is a set of control points for a ChannelFilter. Value is
// applied to every channel first, then the channel's own curve is applied to
// the result. Any list may be empty.
type ChannelCurves struct {
	Value []CurvePoint `yaml:"value,omitempty"`
	Blue  []CurvePoint `yaml:"blue,omitempty"`
	Green []CurvePoint `yaml:"green,omitempty"`
	Red   []CurvePoint `yaml:"red,omitempty"`
}

func (c ChannelCurves) Validate() error {
	for name, points := range map[string][]CurvePoint{
		"value": c.Value,
		"blue":  c.Blue,
		"green": c.Green,
		"red":   c.Red,
	} {
		if err := ValidateCurvePoints(points); err != nil {
			return fmt.Errorf("%s curve: %w", name, err)
		}
	}
	return nil
}

// ChannelFilter bakes one lookup table per B, G, R channel.
type ChannelFilter struct {
	value  *LookupTable
	tables [3]*LookupTable
}

func NewChannelFilter(curves ChannelCurves) *ChannelFilter {
	value := NewCurveFunc(curves.Value)
	f := &ChannelFilter{value: NewLookupTable(value, levels)}
	for c, points := range [][]CurvePoint{curves.Blue, curves.Green, curves.Red} {
		f.tables[c] = NewLookupTable(ComposeCurves(NewCurveFunc(points), value), levels)
	}
	return f
}

// Tables returns the blue, green and red tables. A nil entry is the identity.
func (f *ChannelFilter) Tables() [3]*LookupTable {
	return f.tables
}

func (f *ChannelFilter) Apply(src *Frame, dst *Frame) error {
	if err := checkFrames(src, dst); err != nil {
		return err
	}
	if src.Channels == 1 {
		return ApplyLookup(f.value, src.Bytes, dst.Bytes)
	}

	planes := src.Split()
	for c, plane := range planes {
		if err := ApplyLookup(f.tables[c], plane, plane); err != nil {
			return fmt.Errorf("channel %d: %w", c, err)
		}
	}
	return dst.Merge(planes)
}

// Film emulation presets.
var (
	PortraCurves = ChannelCurves{
		Value: []CurvePoint{{0, 0}, {23, 20}, {157, 173}, {255, 255}},
		Blue:  []CurvePoint{{0, 0}, {41, 46}, {231, 228}, {255, 255}},
		Green: []CurvePoint{{0, 0}, {52, 47}, {189, 196}, {255, 255}},
		Red:   []CurvePoint{{0, 0}, {69, 69}, {213, 218}, {255, 255}},
	}
	ProviaCurves = ChannelCurves{
		Blue:  []CurvePoint{{0, 0}, {35, 25}, {205, 227}, {255, 255}},
		Green: []CurvePoint{{0, 0}, {27, 21}, {196, 207}, {255, 255}},
		Red:   []CurvePoint{{0, 0}, {59, 54}, {202, 210}, {255, 255}},
	}
	VelviaCurves = ChannelCurves{
		Value: []CurvePoint{{0, 0}, {128, 118}, {221, 215}, {255, 255}},
		Blue:  []CurvePoint{{0, 0}, {25, 21}, {122, 153}, {255, 255}},
		Green: []CurvePoint{{0, 0}, {25, 21}, {95, 102}, {255, 255}},
		Red:   []CurvePoint{{0, 0}, {41, 28}, {183, 209}, {255, 255}},
	}
	CrossProcessCurves = ChannelCurves{
		Blue:  []CurvePoint{{0, 20}, {255, 235}},
		Green: []CurvePoint{{0, 0}, {56, 39}, {208, 226}, {255, 255}},
		Red:   []CurvePoint{{0, 0}, {56, 22}, {211, 255}, {255, 255}},
	}
)

func NewPortraFilter() *ChannelFilter       { return NewChannelFilter(PortraCurves) }
func NewProviaFilter() *ChannelFilter       { return NewChannelFilter(ProviaCurves) }
func NewVelviaFilter() *ChannelFilter       { return NewChannelFilter(VelviaCurves) }
func NewCrossProcessFilter() *ChannelFilter { return NewChannelFilter(CrossProcessCurves) }

// FilterChain applies its filters in order. The first filter reads src and
// every later one works in place on dst.
type FilterChain []Filter

func (chain FilterChain) Apply(src *Frame, dst *Frame) error {
	if len(chain) == 0 {
		return src.CopyInto(dst)
	}
	in := src
	for i, f := range chain {
		if err := f.Apply(in, dst); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
		in = dst
	}
	return nil
}

var namedFilters = map[string]func() Filter{
	"portra":       func() Filter { return NewPortraFilter() },
	"provia":       func() Filter { return NewProviaFilter() },
	"velvia":       func() Filter { return NewVelviaFilter() },
	"crossprocess": func() Filter { return NewCrossProcessFilter() },
	"sharpen":      func() Filter { return NewSharpenFilter() },
	"blur":         func() Filter { return NewBlurFilter() },
	"emboss":       func() Filter { return NewEmbossFilter() },
	"edges":        func() Filter { return NewFindEdgesFilter() },
	"strokeedges":  func() Filter { return NewStrokeEdgesFilter(7, 5) },
}

// NewNamedFilter builds one of the preset filters by name.
func NewNamedFilter(name string) (Filter, error) {
	fn, ok := namedFilters[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return fn(), nil
}

func FilterNames() []string {
	var names []string
	for name := range namedFilters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
