package metriful

import (
	"fmt"
	"slices"
)

// Metric binds a register to the Unit that decodes it. Metrics are
// stateless and safe to share.
type Metric[T any] struct {
	Name     string
	Register byte
	Unit     *Unit[T]
}

// Read reads m from a ready device and stamps it with the current time.
func Read[T any](s *Session, m Metric[T]) (UnitValue[T], error) {
	var out UnitValue[T]
	if err := s.requireReady("read " + m.Name); err != nil {
		return out, err
	}
	v, err := m.Unit.readFrom(s, m.Register)
	if err != nil {
		return out, err
	}
	return UnitValue[T]{Value: v, Unit: m.Unit.UnitInfo, Time: s.clock.Now()}, nil
}

// ReadFunc reads one item from a ready Session.
type ReadFunc[T any] func(s *Session) (T, error)

// Reader returns m as a ReadFunc for the read strategies.
func (m Metric[T]) Reader() ReadFunc[UnitValue[T]] {
	return func(s *Session) (UnitValue[T], error) { return Read(s, m) }
}

// Erased returns a ReadFunc yielding the type-erased Reading.
func (m Metric[T]) Erased() ReadFunc[Reading] {
	return func(s *Session) (Reading, error) {
		v, err := Read(s, m)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func (m Metric[T]) String() string { return fmt.Sprintf("%s (0x%02X)", m.Name, m.Register) }

// Individual values.
var (
	Temperature   = Metric[float64]{"temperature", regTemperature, UnitCelsius}
	Pressure      = Metric[uint32]{"pressure", regPressure, UnitPascals}
	Humidity      = Metric[float64]{"humidity", regHumidity, UnitHumidity}
	GasResistance = Metric[uint32]{"gas_resistance", regGasResistance, UnitOhms}

	// Air quality values are only defined in cycle mode.
	AQI                = Metric[float64]{"aqi", regAQI, UnitAQI}
	EstCO2             = Metric[float64]{"co2e", regCO2e, UnitPPM}
	BVOC               = Metric[float64]{"bvoc", regBVOC, UnitPPM}
	AirQualityAccuracy = Metric[AQIAccuracy]{"aqi_accuracy", regAQIAccuracy, UnitAQIAccuracy}

	Illuminance = Metric[float64]{"illuminance", regIlluminance, UnitLux}
	WhiteLevel  = Metric[uint16]{"white_level", regWhiteLevel, UnitWhiteLevel}

	SoundLevel     = Metric[float64]{"sound_level", regSPLAWeighted, UnitDBA}
	SoundBandLevel = Metric[SoundBandLevels]{"sound_bands", regSPLBands, UnitSoundBands}
	// PeakSoundAmplitude is the peak since the previous read.
	PeakSoundAmplitude        = Metric[float64]{"peak_amplitude", regPeakAmplitude, UnitMillipascals}
	SoundMeasurementStability = Metric[SoundStability]{"sound_stability", regSoundStable, UnitSoundStability}

	ParticleDutyCycle     = Metric[float64]{"particle_duty_cycle", regDutyCycle, UnitPercent}
	ParticleConcentration = Metric[float64]{"particle_concentration", regConcentration, UnitParticleDensity}
	ParticleDataValid     = Metric[ParticleValidity]{"particle_validity", regParticleValid, UnitParticleValidity}
)

// Combined groups.
var (
	CombinedAir        = Metric[AirData]{"combined_air", regAirData, UnitAirData}
	CombinedAirQuality = Metric[AirQualityData]{"combined_air_quality", regAirQualityData, UnitAirQualityData}
	CombinedLight      = Metric[LightData]{"combined_light", regLightData, UnitLightData}
	CombinedSound      = Metric[SoundData]{"combined_sound", regSoundData, UnitSoundData}
	CombinedParticle   = Metric[ParticleData]{"combined_particle", regParticleData, UnitParticleData}
	// CombinedAll issues five transfers; Register is unused.
	CombinedAll = Metric[CombinedData]{"combined_all", 0, UnitCombinedData}
)

// Descriptor is a type-erased registry entry.
type Descriptor struct {
	Name     string
	Register byte
	Unit     UnitInfo
	Read     ReadFunc[Reading]
}

func describe[T any](m Metric[T]) Descriptor {
	return Descriptor{Name: m.Name, Register: m.Register, Unit: m.Unit.UnitInfo, Read: m.Erased()}
}

var registry = []Descriptor{
	describe(Temperature), describe(Pressure), describe(Humidity), describe(GasResistance),
	describe(AQI), describe(EstCO2), describe(BVOC), describe(AirQualityAccuracy),
	describe(Illuminance), describe(WhiteLevel),
	describe(SoundLevel), describe(SoundBandLevel), describe(PeakSoundAmplitude), describe(SoundMeasurementStability),
	describe(ParticleDutyCycle), describe(ParticleConcentration), describe(ParticleDataValid),
	describe(CombinedAir), describe(CombinedAirQuality), describe(CombinedLight),
	describe(CombinedSound), describe(CombinedParticle), describe(CombinedAll),
}

// Descriptors lists every known metric, individual values first.
func Descriptors() []Descriptor { return slices.Clone(registry) }

// Lookup finds a metric by name.
func Lookup(name string) (Descriptor, bool) {
	i := slices.IndexFunc(registry, func(d Descriptor) bool { return d.Name == name })
	if i < 0 {
		return Descriptor{}, false
	}
	return registry[i], true
}
