// Register addresses, commands and timing constants for the MS430.

package metriful

import "time"

const (
	// 7-bit I2C address; 0x70 when the address solder bridge is closed.
	AddressDefault   = 0x71
	AddressAlternate = 0x70

	// --- Commands (single byte, no payload) ---
	cmdOnDemandMeasure = 0xE1 // standby mode only
	cmdReset           = 0xE2
	cmdCycleMode       = 0xE4 // write regCyclePeriod first
	cmdStandbyMode     = 0xE5
	cmdClearLightInt   = 0xE6
	cmdClearSoundInt   = 0xE7

	// --- Settings and status ---
	regParticleSensor   = 0x07 // R
	regLightIntEnable   = 0x81 // R/W
	regLightIntThresh   = 0x82 // R/W, 3 bytes
	regLightIntType     = 0x83 // R/W
	regLightIntPolarity = 0x84 // R/W
	regSoundIntEnable   = 0x86 // R/W
	regSoundIntThresh   = 0x86 // R/W, 2 bytes
	regSoundIntType     = 0x87 // R/W
	regCyclePeriod      = 0x89 // R/W
	regOpMode           = 0x8A // R

	// --- Combined data groups ---
	regAirData        = 0x10
	regAirQualityData = 0x11
	regLightData      = 0x12
	regSoundData      = 0x13
	regParticleData   = 0x14

	// --- Individual values ---
	regTemperature   = 0x21
	regPressure      = 0x22
	regHumidity      = 0x23
	regGasResistance = 0x24
	regAQI           = 0x25
	regCO2e          = 0x26
	regBVOC          = 0x27
	regAQIAccuracy   = 0x28
	regIlluminance   = 0x31
	regWhiteLevel    = 0x32
	regSPLAWeighted  = 0x41
	regSPLBands      = 0x42
	regPeakAmplitude = 0x43
	regSoundStable   = 0x44
	regDutyCycle     = 0x51
	regConcentration = 0x52
	regParticleValid = 0x53
)

// Datasheet timings.
const (
	SettleTime       = 6 * time.Millisecond  // minimum gap after a dependent write
	ReadyPollCadence = 10 * time.Millisecond // READY line poll interval
	// Acquisition is the typical on-demand measurement time.
	Acquisition = 550 * time.Millisecond
)

// Block lengths.
const (
	lenAirData        = 12
	lenAirQualityData = 10
	lenLightData      = 5
	lenSoundData      = 18
	lenParticleData   = 6

	// SoundBands is the number of SPL frequency bands.
	SoundBands = 6
)

// SoundBandCentres are the band mid-frequencies in Hz.
var SoundBandCentres = [SoundBands]uint16{125, 250, 500, 1000, 2000, 4000}
