package metriful

import "fmt"

// AirData is the combined read of register 0x10.
type AirData struct {
	Temperature   float64 `json:"temperature"`    // °C
	Pressure      uint32  `json:"pressure"`       // Pa
	Humidity      float64 `json:"humidity"`       // %RH
	GasResistance uint32  `json:"gas_resistance"` // Ω
}

func decodeAirData(b []byte) (AirData, error) {
	p := splitAt(b, 2, 4, 2, 4)
	return AirData{
		Temperature:   signedFixed8(p[0]),
		Pressure:      le32(p[1]),
		Humidity:      fixed8(p[2]),
		GasResistance: le32(p[3]),
	}, nil
}

func (a AirData) String() string {
	return fmt.Sprintf("temperature %g %s, pressure %d %s, humidity %g %s, gas resistance %d %s",
		a.Temperature, UnitCelsius.Symbol, a.Pressure, UnitPascals.Symbol,
		a.Humidity, UnitHumidity.Symbol, a.GasResistance, UnitOhms.Symbol)
}

// AirQualityData is the combined read of register 0x11. Values are only
// meaningful in cycle mode; a standby read returns whatever the device holds.
type AirQualityData struct {
	AQI      float64     `json:"aqi"`
	CO2e     float64     `json:"co2e"` // estimated CO2, ppm
	BVOC     float64     `json:"bvoc"` // equivalent breath VOC, ppm
	Accuracy AQIAccuracy `json:"accuracy"`
}

func decodeAirQualityData(b []byte) (AirQualityData, error) {
	p := splitAt(b, 3, 3, 3, 1)
	acc, err := UnitAQIAccuracy.decode(p[3])
	if err != nil {
		return AirQualityData{}, err
	}
	return AirQualityData{
		AQI:      fixed16(p[0]),
		CO2e:     fixed16(p[1]),
		BVOC:     fixed16(p[2]),
		Accuracy: acc,
	}, nil
}

func (a AirQualityData) String() string {
	return fmt.Sprintf("aqi %g, co2e %g ppm, bvoc %g ppm, accuracy %s", a.AQI, a.CO2e, a.BVOC, a.Accuracy)
}

// LightData is the combined read of register 0x12.
type LightData struct {
	Illuminance float64 `json:"illuminance"` // lx
	WhiteLevel  uint16  `json:"white_level"`
}

func decodeLightData(b []byte) (LightData, error) {
	p := splitAt(b, 3, 2)
	return LightData{Illuminance: fixed16(p[0]), WhiteLevel: le16(p[1])}, nil
}

func (l LightData) String() string {
	return fmt.Sprintf("illuminance %g lx, white level %d", l.Illuminance, l.WhiteLevel)
}

// SoundData is the combined read of register 0x13.
type SoundData struct {
	AWeighted     float64         `json:"a_weighted"` // dBA
	Bands         SoundBandLevels `json:"bands"`      // dB
	PeakAmplitude float64         `json:"peak_amplitude"`
	Stability     SoundStability  `json:"stability"`
}

func decodeSoundData(b []byte) (SoundData, error) {
	p := splitAt(b, 2, 2*SoundBands, 3, 1)
	st, err := UnitSoundStability.decode(p[3])
	if err != nil {
		return SoundData{}, err
	}
	return SoundData{
		AWeighted:     fixed8(p[0]),
		Bands:         decodeBands(p[1]),
		PeakAmplitude: fixed16(p[2]),
		Stability:     st,
	}, nil
}

func (s SoundData) String() string {
	return fmt.Sprintf("spl %g dBA, bands [%s], peak %g mPa, %s", s.AWeighted, s.Bands, s.PeakAmplitude, s.Stability)
}

// ParticleData is the combined read of register 0x14. Concentration is in
// ppL for a PPD42 and µg/m³ for an SDS011.
type ParticleData struct {
	DutyCycle     float64          `json:"duty_cycle"` // %
	Concentration float64          `json:"concentration"`
	Validity      ParticleValidity `json:"validity"`
}

func decodeParticleData(b []byte) (ParticleData, error) {
	p := splitAt(b, 2, 3, 1)
	v, err := UnitParticleValidity.decode(p[2])
	if err != nil {
		return ParticleData{}, err
	}
	return ParticleData{DutyCycle: fixed8(p[0]), Concentration: fixed16(p[1]), Validity: v}, nil
}

func (p ParticleData) String() string {
	return fmt.Sprintf("duty cycle %g %%, concentration %g, %s", p.DutyCycle, p.Concentration, p.Validity)
}

// CombinedData aggregates every data group. It is assembled from five
// separate transfers and never decoded from a single block.
type CombinedData struct {
	Air        AirData        `json:"air"`
	AirQuality AirQualityData `json:"air_quality"`
	Light      LightData      `json:"light"`
	Sound      SoundData      `json:"sound"`
	Particle   ParticleData   `json:"particle"`
}

func readCombined(s *Session) (CombinedData, error) {
	var c CombinedData
	var err error
	if c.Air, err = UnitAirData.readFrom(s, regAirData); err != nil {
		return c, err
	}
	if c.AirQuality, err = UnitAirQualityData.readFrom(s, regAirQualityData); err != nil {
		return c, err
	}
	if c.Light, err = UnitLightData.readFrom(s, regLightData); err != nil {
		return c, err
	}
	if c.Sound, err = UnitSoundData.readFrom(s, regSoundData); err != nil {
		return c, err
	}
	if c.Particle, err = UnitParticleData.readFrom(s, regParticleData); err != nil {
		return c, err
	}
	return c, nil
}

func (c CombinedData) String() string {
	return fmt.Sprintf("air: %s\nair quality: %s\nlight: %s\nsound: %s\nparticle: %s",
		c.Air, c.AirQuality, c.Light, c.Sound, c.Particle)
}

// Composite units.
var (
	UnitAirData        = fixedUnit("Air data", "", lenAirData, decodeAirData)
	UnitAirQualityData = fixedUnit("Air quality data", "", lenAirQualityData, decodeAirQualityData)
	UnitLightData      = fixedUnit("Light data", "", lenLightData, decodeLightData)
	UnitSoundData      = fixedUnit("Sound data", "", lenSoundData, decodeSoundData)
	UnitParticleData   = fixedUnit("Particle data", "", lenParticleData, decodeParticleData)
	UnitCombinedData   = &Unit[CombinedData]{UnitInfo: UnitInfo{Name: "Combined data"}, read: readCombined}
)
