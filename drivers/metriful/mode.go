package metriful

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CyclePeriod is one of the autonomous measurement periods built in to the MS430.
type CyclePeriod uint8

const (
	Period3s   CyclePeriod = 0
	Period100s CyclePeriod = 1
	Period300s CyclePeriod = 2
)

// CyclePeriods lists every supported period in register order.
var CyclePeriods = []CyclePeriod{Period3s, Period100s, Period300s}

// CyclePeriodFromValue maps a regCyclePeriod byte to a CyclePeriod.
func CyclePeriodFromValue(v byte) (CyclePeriod, error) {
	switch v {
	case 0, 1, 2:
		return CyclePeriod(v), nil
	}
	return 0, &DecodeError{Field: FieldCyclePeriod, Value: v}
}

// ParseCyclePeriod accepts the register value or the duration ("0" or "3s",
// "1" or "100s", "2" or "300s").
func ParseCyclePeriod(s string) (CyclePeriod, error) {
	switch s {
	case "0", "3s":
		return Period3s, nil
	case "1", "100s":
		return Period100s, nil
	case "2", "300s":
		return Period300s, nil
	}
	return 0, fmt.Errorf("metriful: invalid cycle period %q", s)
}

// Value returns the register value, one of 0, 1 or 2.
func (p CyclePeriod) Value() byte { return byte(p) }

func (p CyclePeriod) Duration() time.Duration {
	switch p {
	case Period100s:
		return 100 * time.Second
	case Period300s:
		return 300 * time.Second
	default:
		return 3 * time.Second
	}
}

func (p CyclePeriod) String() string {
	return fmt.Sprintf("%ds", int(p.Duration()/time.Second))
}

func (p CyclePeriod) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *CyclePeriod) UnmarshalText(b []byte) error {
	v, err := ParseCyclePeriod(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// OperationalMode is Standby or Cycle(period). The zero value is Standby.
// Modes compare with ==, period included.
type OperationalMode struct {
	cycle  bool
	period CyclePeriod
}

// Standby is the on-demand measurement mode.
var Standby = OperationalMode{}

// Cycle returns the autonomous mode for period p.
func Cycle(p CyclePeriod) OperationalMode { return OperationalMode{cycle: true, period: p} }

func (m OperationalMode) IsStandby() bool { return !m.cycle }
func (m OperationalMode) IsCycle() bool   { return m.cycle }

// Period returns the cycle period; ok is false in Standby.
func (m OperationalMode) Period() (p CyclePeriod, ok bool) { return m.period, m.cycle }

// CanSwitchFrom reports whether a direct transition from `from` to m is
// legal: only Standby<->Cycle. Cycle(a)->Cycle(b) must pass through Standby.
func (m OperationalMode) CanSwitchFrom(from OperationalMode) bool {
	return m.cycle != from.cycle
}

// ReadyLatency is the worst-case time until READY after switching into m
// from the opposite mode.
func (m OperationalMode) ReadyLatency() time.Duration {
	switch {
	case !m.cycle:
		return 11 * time.Millisecond
	case m.period == Period3s:
		return 600 * time.Millisecond
	default:
		return 2600 * time.Millisecond
	}
}

func (m OperationalMode) String() string {
	if !m.cycle {
		return "standby"
	}
	return "cycle(" + m.period.String() + ")"
}

// ParseOperationalMode accepts "standby" or "cycle:<period>".
func ParseOperationalMode(s string) (OperationalMode, error) {
	if s == "standby" {
		return Standby, nil
	}
	if ps, ok := strings.CutPrefix(s, "cycle:"); ok {
		p, err := ParseCyclePeriod(ps)
		if err != nil {
			return Standby, err
		}
		return Cycle(p), nil
	}
	return Standby, fmt.Errorf("metriful: invalid mode %q (want standby or cycle:<period>)", s)
}

type modeJSON struct {
	Mode   string       `json:"mode"`
	Period *CyclePeriod `json:"period,omitempty"`
}

func (m OperationalMode) MarshalJSON() ([]byte, error) {
	j := modeJSON{Mode: "standby"}
	if m.cycle {
		p := m.period
		j.Mode, j.Period = "cycle", &p
	}
	return json.Marshal(j)
}

func (m *OperationalMode) UnmarshalJSON(b []byte) error {
	var j modeJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	switch {
	case j.Mode == "standby":
		*m = Standby
	case j.Mode == "cycle" && j.Period != nil:
		*m = Cycle(*j.Period)
	default:
		return fmt.Errorf("metriful: invalid mode %q", j.Mode)
	}
	return nil
}

func decodeOperationalMode(mode, period byte) (OperationalMode, error) {
	switch mode {
	case 0:
		return Standby, nil
	case 1:
		p, err := CyclePeriodFromValue(period)
		if err != nil {
			return Standby, err
		}
		return Cycle(p), nil
	}
	return Standby, &DecodeError{Field: FieldOperationalMode, Value: mode}
}
