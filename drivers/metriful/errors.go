package metriful

import (
	"fmt"

	"metriful-go/errcode"
)

// Errors returned by the driver. Each is an errcode.Code, so callers may
// match them with errors.Is regardless of wrapping.
var (
	ErrReadyTimeout  = errcode.ReadyTimeout
	ErrNotReady      = errcode.NotReady
	ErrStatusMissing = errcode.StatusMissing
	ErrClosed        = errcode.Closed
	ErrMoved         = errcode.Moved
)

// InvalidModeError reports a command issued in the wrong operational mode.
type InvalidModeError struct {
	Current  OperationalMode
	Required OperationalMode
}

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("metriful: invalid mode %s, requires %s", e.Current, e.Required)
}

func (e *InvalidModeError) Code() errcode.Code { return errcode.InvalidMode }

func (e *InvalidModeError) Is(target error) bool { return target == errcode.InvalidMode }

// Field names a closed enumerant decoded from a device byte.
type Field string

const (
	FieldCyclePeriod        Field = "cycle period"
	FieldOperationalMode    Field = "operational mode"
	FieldParticleSensorMode Field = "particle sensor mode"
	FieldAQIAccuracy        Field = "aqi accuracy"
	FieldSoundStability     Field = "sound stability"
	FieldParticleValidity   Field = "particle validity"
)

// DecodeError reports a device byte outside the known set for its field.
type DecodeError struct {
	Field Field
	Value byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("metriful: invalid %s 0x%02X", e.Field, e.Value)
}

func (e *DecodeError) Code() errcode.Code { return errcode.InvalidValue }

func (e *DecodeError) Is(target error) bool { return target == errcode.InvalidValue }

// LengthError reports a block whose size differs from the codec's declared length.
type LengthError struct {
	Unit string
	Want int
	Got  int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("metriful: %s needs %d bytes, got %d", e.Unit, e.Want, e.Got)
}

func (e *LengthError) Code() errcode.Code { return errcode.InvalidLength }

func (e *LengthError) Is(target error) bool { return target == errcode.InvalidLength }

func transportErr(op string, reg byte, err error) error {
	return errcode.Wrap(errcode.Transport, fmt.Sprintf("%s 0x%02X", op, reg), err)
}
