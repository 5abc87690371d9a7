package chart

// Type is the rendering hint for a chart.
type Type string

// Chart types.
const (
	Bar  Type = "bar"
	Pie  Type = "pie"
	Line Type = "line"
	Map  Type = "map"
)

// Priority ranks chart types when the chart count must be truncated. Higher wins.
func (t Type) Priority() int {
	switch t {
	case Map:
		return 4
	case Pie:
		return 3
	case Bar:
		return 2
	case Line:
		return 1
	default:
		return 0
	}
}

// Point is one (label, value) pair. Values are never negative.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Descriptor is a chart-library-agnostic chart.
type Descriptor struct {
	Type   Type    `json:"type"`
	Title  string  `json:"title"`
	Data   []Point `json:"data"`
	XLabel string  `json:"x_label,omitempty"`
	YLabel string  `json:"y_label,omitempty"`
}

// Visualization is the set of charts attached to a response.
type Visualization struct {
	Charts []Descriptor `json:"charts"`
}
