package visualize

import (
	"cmp"
	"slices"
	"strings"

	"github.com/kailas-cloud/hvacsearch/internal/domain/chart"
)

var unknownLabels = map[string]bool{
	"":               true,
	"unknown":        true,
	"unknown vendor": true,
	"n/a":            true,
	"na":             true,
	"none":           true,
	"null":           true,
	"-":              true,
}

func isUnknown(label string) bool {
	return unknownLabels[strings.ToLower(strings.TrimSpace(label))]
}

// accumulator is one histogram or series built in the scan over results.
type accumulator struct {
	typ       chart.Type
	title     string
	xLabel    string
	yLabel    string
	maxPoints int  // 0 keeps every category
	ordered   bool // keep labels sorted instead of by value
	minPoints int

	values map[string]float64
	labels []string // first-seen order, deduplicated
}

func newAccumulator(typ chart.Type, title, xLabel, yLabel string) *accumulator {
	return &accumulator{
		typ:       typ,
		title:     title,
		xLabel:    xLabel,
		yLabel:    yLabel,
		minPoints: 2,
		values:    make(map[string]float64),
	}
}

// add records v under label. Unknown labels and negative values are ignored.
func (a *accumulator) add(label string, v float64) {
	label = strings.TrimSpace(label)
	if isUnknown(label) || v < 0 {
		return
	}
	if _, ok := a.values[label]; !ok {
		a.labels = append(a.labels, label)
	}
	a.values[label] += v
}

// descriptor returns the chart, or false when it carries too few categories.
func (a *accumulator) descriptor() (chart.Descriptor, bool) {
	if len(a.labels) < a.minPoints {
		return chart.Descriptor{}, false
	}

	points := make([]chart.Point, 0, len(a.labels))
	for _, l := range a.labels {
		points = append(points, chart.Point{Label: l, Value: a.values[l]})
	}

	if a.ordered {
		slices.SortFunc(points, func(x, y chart.Point) int { return cmp.Compare(x.Label, y.Label) })
	} else {
		slices.SortStableFunc(points, func(x, y chart.Point) int {
			if c := cmp.Compare(y.Value, x.Value); c != 0 {
				return c
			}
			return cmp.Compare(x.Label, y.Label)
		})
	}
	if a.maxPoints > 0 && len(points) > a.maxPoints {
		points = points[:a.maxPoints]
	}

	return chart.Descriptor{
		Type:   a.typ,
		Title:  a.title,
		Data:   points,
		XLabel: a.xLabel,
		YLabel: a.yLabel,
	}, true
}
