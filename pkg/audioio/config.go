// Package audioio plays synthesized speech on a local output device.
//
// A Sink is opened once per reply and yields a Stream that accepts PCM16
// chunks incrementally. Closing the Stream marks the end of the utterance
// and waits for the device to drain. Backends:
//   - aplay - ALSA playback through an aplay subprocess fed on stdin
//   - mock  - records everything written, for tests
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAPlay pipes raw PCM into an aplay subprocess.
	BackendAPlay Backend = "aplay"
	// BackendMock records audio in memory.
	BackendMock Backend = "mock"
)

// Config holds audio output configuration.
type Config struct {
	// Backend selects the playback implementation.
	// Default: "aplay"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the device sample rate in Hz. Audio at other rates is
	// resampled before it is written.
	// Default: 24000
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of device channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// Device is the ALSA device identifier, e.g. "default" or "plughw:1,0".
	Device string `yaml:"device" json:"device"`

	// Command is the player binary. Default: "aplay".
	Command string `yaml:"command" json:"command"`

	// Args replaces the generated player arguments when set.
	Args []string `yaml:"args" json:"args"`

	// DrainTimeout bounds how long Close waits for the player to finish.
	// Default: 30s
	DrainTimeout time.Duration `yaml:"drain_timeout" json:"drain_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:      BackendAPlay,
		SampleRate:   24000,
		Channels:     1,
		Device:       "default",
		Command:      "aplay",
		DrainTimeout: 30 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.DrainTimeout <= 0 {
		return fmt.Errorf("drain_timeout must be positive, got %v", c.DrainTimeout)
	}
	return nil
}

// PlayerArgs returns the player command line arguments for raw S16_LE input.
func (c *Config) PlayerArgs() []string {
	if len(c.Args) > 0 {
		return c.Args
	}
	args := []string{"-q"}
	if c.Device != "" {
		args = append(args, "-D", c.Device)
	}
	return append(args,
		"-t", "raw",
		"-f", "S16_LE",
		"-r", fmt.Sprint(c.SampleRate),
		"-c", fmt.Sprint(c.Channels),
	)
}
