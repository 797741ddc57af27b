package config

// Default returns a profile with the stock Cyton-style settings: 250 Hz,
// 1-40 Hz bandpass, 50 Hz notch, 2 s windows advanced every 0.5 s. Callers
// adjust fields and re-validate; synthetic mode works out of the box.
func Default() *Config {
	return &Config{
		Mode:           ModeSynthetic,
		SampleRate:     250,
		Channels:       map[string]int{"C3": 0, "C4": 1, "Cz": 2, "Oz": 3},
		BandpassLow:    1,
		BandpassHigh:   40,
		Notch:          50,
		WindowSec:      2.0,
		HopSec:         0.5,
		EwmaAlpha:      0.3,
		DeadBand:       0.05,
		Gains:          map[string]float64{"yaw": 1, "altitude": 1, "pitch": 1, "throttle": 1},
		CalibrationSec: 10,
		UDPHost:        "127.0.0.1",
		UDPPort:        5005,
	}
}
