package metriful

import (
	"fmt"
	"time"
)

// UnitValue is one decoded reading: the native value, its unit metadata
// and the capture time.
type UnitValue[T any] struct {
	Value T         `json:"value"`
	Unit  UnitInfo  `json:"unit"`
	Time  time.Time `json:"time"`
}

// String renders "value symbol", or the bare value for unitless readings.
func (v UnitValue[T]) String() string {
	if v.Unit.Symbol == "" {
		return fmt.Sprint(v.Value)
	}
	return fmt.Sprintf("%v %s", v.Value, v.Unit.Symbol)
}

func (v UnitValue[T]) UnitInfo() UnitInfo   { return v.Unit }
func (v UnitValue[T]) Timestamp() time.Time { return v.Time }
func (v UnitValue[T]) Any() any             { return v.Value }

// Reading is the type-erased view of a UnitValue for callers that select
// metrics at runtime.
type Reading interface {
	fmt.Stringer
	UnitInfo() UnitInfo
	Timestamp() time.Time
	Any() any
}

var _ Reading = UnitValue[float64]{}
