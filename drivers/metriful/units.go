package metriful

import "fmt"

// AQIAccuracy is the self-assessed accuracy of the air quality values.
// Invalid means the gas sensor is still initialising.
type AQIAccuracy uint8

const (
	AQIInvalid AQIAccuracy = iota
	AQILow
	AQIMedium
	AQIHigh
)

func (a AQIAccuracy) String() string {
	switch a {
	case AQIInvalid:
		return "invalid"
	case AQILow:
		return "low"
	case AQIMedium:
		return "medium"
	case AQIHigh:
		return "high"
	}
	return fmt.Sprintf("AQIAccuracy(%d)", uint8(a))
}

func (a AQIAccuracy) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// SoundStability reports whether microphone initialisation has finished.
type SoundStability uint8

const (
	SoundUnstable SoundStability = iota
	SoundStable
)

func (s SoundStability) String() string {
	if s == SoundStable {
		return "stable"
	}
	return "unstable"
}

func (s SoundStability) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParticleValidity reports whether the attached particle sensor has
// produced valid data yet.
type ParticleValidity uint8

const (
	ParticleInitialising ParticleValidity = iota
	ParticleValid
)

func (p ParticleValidity) String() string {
	if p == ParticleValid {
		return "valid"
	}
	return "initialising"
}

func (p ParticleValidity) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// SoundBandLevels holds the SPL in dB of each band in SoundBandCentres.
type SoundBandLevels [SoundBands]float64

// Scalar units.
var (
	UnitCelsius     = fixedUnit("Temperature", "°C", 2, plain(signedFixed8))
	UnitPascals     = fixedUnit("Pressure", "Pa", 4, plain(le32))
	UnitHumidity    = fixedUnit("Relative humidity", "%RH", 2, plain(fixed8))
	UnitOhms        = fixedUnit("Gas sensor resistance", "Ω", 4, plain(le32))
	UnitAQI         = fixedUnit("Air quality index", "", 3, plain(fixed16))
	UnitPPM         = fixedUnit("Concentration", "ppm", 3, plain(fixed16))
	UnitAQIAccuracy = fixedUnit("AQI accuracy", "", 1, enumByte(FieldAQIAccuracy, AQIHigh))

	UnitLux        = fixedUnit("Illuminance", "lx", 3, plain(fixed16))
	UnitWhiteLevel = fixedUnit("White light level", "", 2, plain(le16))

	UnitDBA            = fixedUnit("A-weighted sound pressure level", "dBA", 2, plain(fixed8))
	UnitSoundBands     = fixedUnit("Sound pressure level by band", "dB", 2*SoundBands, plain(decodeBands))
	UnitMillipascals   = fixedUnit("Peak sound amplitude", "mPa", 3, plain(fixed16))
	UnitSoundStability = fixedUnit("Sound measurement stability", "", 1, enumByte(FieldSoundStability, SoundStable))

	UnitPercent          = fixedUnit("Particle sensor duty cycle", "%", 2, plain(fixed8))
	UnitParticleDensity  = fixedUnit("Particle concentration", "", 3, plain(fixed16))
	UnitParticleValidity = fixedUnit("Particle data validity", "", 1, enumByte(FieldParticleValidity, ParticleValid))
)

// decodeBands reads six integer parts followed by six tenths bytes.
func decodeBands(b []byte) SoundBandLevels {
	var out SoundBandLevels
	for i := range out {
		out[i] = fixed(uint32(b[i]), b[SoundBands+i])
	}
	return out
}

func (l SoundBandLevels) String() string {
	s := ""
	for i, v := range l {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%dHz:%g", SoundBandCentres[i], v)
	}
	return s
}
