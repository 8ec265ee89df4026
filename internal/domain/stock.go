package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// StockType tags the raw stock variant a part is machined from.
type StockType string

const (
	StockRoundBar  StockType = "round_bar"
	StockTube      StockType = "tube"
	StockPlate     StockType = "plate"
	StockSquareBar StockType = "square_bar"
	StockHexBar    StockType = "hex_bar"
)

// Stock is a closed set of raw stock shapes. Dimensions are in millimetres.
type Stock interface {
	Type() StockType
	isStock()
}

type RoundBar struct {
	Radius float64 `json:"radius"`
	Length float64 `json:"length"`
}

type Tube struct {
	OuterRadius float64 `json:"outer_radius"`
	InnerRadius float64 `json:"inner_radius"`
	Length      float64 `json:"length"`
}

type Plate struct {
	Width     float64 `json:"width"`
	Thickness float64 `json:"thickness"`
	Length    float64 `json:"length"`
}

type SquareBar struct {
	Side   float64 `json:"side"`
	Length float64 `json:"length"`
}

type HexBar struct {
	AcrossFlats float64 `json:"across_flats"`
	Length      float64 `json:"length"`
}

func (RoundBar) Type() StockType  { return StockRoundBar }
func (Tube) Type() StockType      { return StockTube }
func (Plate) Type() StockType     { return StockPlate }
func (SquareBar) Type() StockType { return StockSquareBar }
func (HexBar) Type() StockType    { return StockHexBar }

func (RoundBar) isStock()  {}
func (Tube) isStock()      {}
func (Plate) isStock()     {}
func (SquareBar) isStock() {}
func (HexBar) isStock()    {}

// Volume returns the stock volume in mm³. Impossible shapes are rejected with
// a GeometryError, never reported as zero.
func Volume(s Stock) (float64, error) {
	switch v := s.(type) {
	case RoundBar:
		if err := positive(StockRoundBar, dim{"radius", v.Radius}, dim{"length", v.Length}); err != nil {
			return 0, err
		}
		return finite(StockRoundBar, math.Pi*v.Radius*v.Radius*v.Length)
	case Tube:
		if err := positive(StockTube, dim{"outer_radius", v.OuterRadius}, dim{"inner_radius", v.InnerRadius}, dim{"length", v.Length}); err != nil {
			return 0, err
		}
		if v.InnerRadius >= v.OuterRadius {
			return 0, &GeometryError{
				Stock:  StockTube,
				Reason: fmt.Sprintf("inner_radius %g must be smaller than outer_radius %g", v.InnerRadius, v.OuterRadius),
			}
		}
		return finite(StockTube, math.Pi*(v.OuterRadius*v.OuterRadius-v.InnerRadius*v.InnerRadius)*v.Length)
	case Plate:
		if err := positive(StockPlate, dim{"width", v.Width}, dim{"thickness", v.Thickness}, dim{"length", v.Length}); err != nil {
			return 0, err
		}
		return finite(StockPlate, v.Width*v.Thickness*v.Length)
	case SquareBar:
		if err := positive(StockSquareBar, dim{"side", v.Side}, dim{"length", v.Length}); err != nil {
			return 0, err
		}
		return finite(StockSquareBar, v.Side*v.Side*v.Length)
	case HexBar:
		if err := positive(StockHexBar, dim{"across_flats", v.AcrossFlats}, dim{"length", v.Length}); err != nil {
			return 0, err
		}
		return finite(StockHexBar, math.Sqrt(3)/2*v.AcrossFlats*v.AcrossFlats*v.Length)
	case nil:
		return 0, &GeometryError{Reason: "stock is not defined"}
	default:
		return 0, &GeometryError{Stock: s.Type(), Reason: "unknown stock type"}
	}
}

type dim struct {
	name  string
	value float64
}

func positive(stock StockType, dims ...dim) error {
	for _, d := range dims {
		if !(d.value > 0) || math.IsInf(d.value, 0) {
			return &GeometryError{Stock: stock, Reason: fmt.Sprintf("%s must be a positive finite number, got %g", d.name, d.value)}
		}
	}
	return nil
}

// finite rejects dimensions whose product overflows float64.
func finite(stock StockType, volume float64) (float64, error) {
	if math.IsInf(volume, 0) || math.IsNaN(volume) {
		return 0, &GeometryError{Stock: stock, Reason: "dimensions are too large, volume overflows"}
	}
	return volume, nil
}

// EncodeStock serializes the dimensions of s for storage next to its type tag.
func EncodeStock(s Stock) (StockType, []byte, error) {
	if s == nil {
		return "", nil, &GeometryError{Reason: "stock is not defined"}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s stock: %w", s.Type(), err)
	}
	return s.Type(), raw, nil
}

// DecodeStock rebuilds a Stock value from its type tag and stored dimensions.
func DecodeStock(t StockType, raw []byte) (Stock, error) {
	var (
		s   Stock
		err error
	)
	switch t {
	case StockRoundBar:
		var v RoundBar
		err = json.Unmarshal(raw, &v)
		s = v
	case StockTube:
		var v Tube
		err = json.Unmarshal(raw, &v)
		s = v
	case StockPlate:
		var v Plate
		err = json.Unmarshal(raw, &v)
		s = v
	case StockSquareBar:
		var v SquareBar
		err = json.Unmarshal(raw, &v)
		s = v
	case StockHexBar:
		var v HexBar
		err = json.Unmarshal(raw, &v)
		s = v
	default:
		return nil, &GeometryError{Stock: t, Reason: "unknown stock type"}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s stock: %w", t, err)
	}
	return s, nil
}
