package types

import (
	"errors"
	"fmt"
	"slices"
)

var ErrUnknownDrawingType = errors.New("unknown drawing type")
var ErrInvalidDrawing = errors.New("invalid drawing")

type DrawingType string

const (
	DrawingTrendLine DrawingType = "TrendLine"
	DrawingVertLine  DrawingType = "VertLine"
)

type Point struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
}

type Options struct {
	Color                string `json:"color"`
	Width                int    `json:"width"`
	LabelText            string `json:"labelText,omitempty"`
	LabelBackgroundColor string `json:"labelBackgroundColor,omitempty"`
	LabelTextColor       string `json:"labelTextColor,omitempty"`
	ShowLabel            bool   `json:"showLabel,omitempty"`
}

// Drawing is the serialized form of an annotation and the unit of collaborative editing.
// IsDeleted is a tombstone; see engine.MergeDrawings.
type Drawing struct {
	ID        string      `json:"id"`
	Type      DrawingType `json:"type"`
	Points    []Point     `json:"points"`
	Options   Options     `json:"options"`
	IsDeleted bool        `json:"isDeleted"`
}

type drawingKind struct {
	arity int
	build func(id string, points []Point) Drawing
}

// drawingKinds is the closed set of drawing types.
var drawingKinds = map[DrawingType]drawingKind{
	DrawingTrendLine: {arity: 2, build: newTrendLine},
	DrawingVertLine:  {arity: 1, build: newVertLine},
}

func newTrendLine(id string, points []Point) Drawing {
	return Drawing{
		ID:     id,
		Type:   DrawingTrendLine,
		Points: points,
		Options: Options{
			Color:                "#2962FF",
			Width:                2,
			LabelBackgroundColor: "#2962FF",
			LabelTextColor:       "#FFFFFF",
		},
	}
}

func newVertLine(id string, points []Point) Drawing {
	return Drawing{
		ID:      id,
		Type:    DrawingVertLine,
		Points:  points,
		Options: Options{Color: "#B2B5BE", Width: 1},
	}
}

// Arity returns how many points a drawing of type t is made of.
func Arity(t DrawingType) (int, error) {
	k, ok := drawingKinds[t]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDrawingType, t)
	}
	return k.arity, nil
}

// NewDrawing constructs a drawing of type t with default options.
func NewDrawing(t DrawingType, id string, points []Point) (Drawing, error) {
	k, ok := drawingKinds[t]
	if !ok {
		return Drawing{}, fmt.Errorf("%w: %q", ErrUnknownDrawingType, t)
	}
	if len(points) != k.arity {
		return Drawing{}, fmt.Errorf("%w: %s needs %d points, got %d", ErrInvalidDrawing, t, k.arity, len(points))
	}
	if id == "" {
		return Drawing{}, fmt.Errorf("%w: empty id", ErrInvalidDrawing)
	}
	return k.build(id, slices.Clone(points)), nil
}

func (d Drawing) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDrawing)
	}
	n, err := Arity(d.Type)
	if err != nil {
		return err
	}
	if len(d.Points) != n {
		return fmt.Errorf("%w: %s needs %d points, got %d", ErrInvalidDrawing, d.Type, n, len(d.Points))
	}
	return nil
}

// Clone returns a copy that shares no backing arrays with d.
func (d Drawing) Clone() Drawing {
	d.Points = slices.Clone(d.Points)
	return d
}
