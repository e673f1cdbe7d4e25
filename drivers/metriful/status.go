package metriful

import (
	"fmt"
	"strings"
)

// ParticleSensorMode reflects the external particle sensor the MS430 is
// configured for. It is read-only here.
type ParticleSensorMode uint8

const (
	ParticleSensorDisabled ParticleSensorMode = iota
	ParticleSensorPPD42
	ParticleSensorSDS011
)

func particleSensorFromValue(v byte) (ParticleSensorMode, error) {
	if v > byte(ParticleSensorSDS011) {
		return 0, &DecodeError{Field: FieldParticleSensorMode, Value: v}
	}
	return ParticleSensorMode(v), nil
}

func (m ParticleSensorMode) String() string {
	switch m {
	case ParticleSensorPPD42:
		return "ppd42"
	case ParticleSensorSDS011:
		return "sds011"
	default:
		return "disabled"
	}
}

func (m ParticleSensorMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// InterruptMode selects latch (held until cleared) or comparator behaviour.
type InterruptMode uint8

const (
	InterruptLatch InterruptMode = iota
	InterruptComparator
)

func (m InterruptMode) String() string {
	if m == InterruptComparator {
		return "comparator"
	}
	return "latch"
}

func (m InterruptMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// InterruptPolarity is the comparison direction of the light interrupt.
type InterruptPolarity uint8

const (
	PolarityPositive InterruptPolarity = iota // triggers when n > threshold
	PolarityNegative                          // triggers when n < threshold
)

func (p InterruptPolarity) String() string {
	if p == PolarityNegative {
		return "negative"
	}
	return "positive"
}

func (p InterruptPolarity) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// LightInterrupt is the enabled light interrupt configuration.
type LightInterrupt struct {
	Mode      InterruptMode     `json:"mode"`
	Polarity  InterruptPolarity `json:"polarity"`
	Threshold float64           `json:"threshold"` // lx
}

// SoundInterrupt is the enabled sound interrupt configuration.
// The MS430 documents no polarity for it.
type SoundInterrupt struct {
	Mode      InterruptMode `json:"mode"`
	Threshold uint16        `json:"threshold"` // mPa
}

// DeviceStatus is a snapshot of the device configuration. A nil interrupt
// means it is disabled.
type DeviceStatus struct {
	ParticleSensor ParticleSensorMode `json:"particle_sensor"`
	LightInterrupt *LightInterrupt    `json:"light_interrupt"`
	SoundInterrupt *SoundInterrupt    `json:"sound_interrupt"`
	Mode           OperationalMode    `json:"mode"`
}

func (st DeviceStatus) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode: %s\n", st.Mode)
	fmt.Fprintf(&b, "particle sensor: %s\n", st.ParticleSensor)
	if li := st.LightInterrupt; li != nil {
		fmt.Fprintf(&b, "light interrupt: %s, %s, threshold %g lx\n", li.Mode, li.Polarity, li.Threshold)
	} else {
		b.WriteString("light interrupt: disabled\n")
	}
	if si := st.SoundInterrupt; si != nil {
		fmt.Fprintf(&b, "sound interrupt: %s, threshold %d mPa", si.Mode, si.Threshold)
	} else {
		b.WriteString("sound interrupt: disabled")
	}
	return b.String()
}

func interruptMode(v byte) InterruptMode {
	if v == 0 {
		return InterruptLatch
	}
	return InterruptComparator
}

// readStatus issues the status register sequence.
func (s *Session) readStatus() (DeviceStatus, error) {
	var st DeviceStatus

	v, err := s.readByte(regParticleSensor)
	if err != nil {
		return st, err
	}
	if st.ParticleSensor, err = particleSensorFromValue(v); err != nil {
		return st, err
	}

	if v, err = s.readByte(regLightIntEnable); err != nil {
		return st, err
	}
	if v != 0 {
		li := &LightInterrupt{}
		if v, err = s.readByte(regLightIntType); err != nil {
			return st, err
		}
		li.Mode = interruptMode(v)
		if v, err = s.readByte(regLightIntPolarity); err != nil {
			return st, err
		}
		if v != 0 {
			li.Polarity = PolarityNegative
		}
		b, err := s.readBlock(regLightIntThresh, 3)
		if err != nil {
			return st, err
		}
		li.Threshold = fixed16(b)
		st.LightInterrupt = li
	}

	if v, err = s.readByte(regSoundIntEnable); err != nil {
		return st, err
	}
	if v != 0 {
		si := &SoundInterrupt{}
		if v, err = s.readByte(regSoundIntType); err != nil {
			return st, err
		}
		si.Mode = interruptMode(v)
		b, err := s.readBlock(regSoundIntThresh, 2)
		if err != nil {
			return st, err
		}
		si.Threshold = le16(b)
		st.SoundInterrupt = si
	}

	mode, err := s.readByte(regOpMode)
	if err != nil {
		return st, err
	}
	var period byte
	if mode == 1 {
		if period, err = s.readByte(regCyclePeriod); err != nil {
			return st, err
		}
	}
	st.Mode, err = decodeOperationalMode(mode, period)
	return st, err
}
