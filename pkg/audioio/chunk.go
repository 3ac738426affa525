package audioio

import "time"

// AudioChunk represents a chunk of PCM16 audio.
type AudioChunk struct {
	// Samples contains interleaved PCM16 samples.
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// ChunkFromBytes builds a chunk from little-endian PCM16 bytes.
func ChunkFromBytes(data []byte, sampleRate, channels int) AudioChunk {
	return AudioChunk{
		Samples:    BytesToSamples(data),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Bytes returns the raw little-endian bytes of the chunk.
func (c AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Duration returns the playback duration of the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Convert returns the chunk at the given rate and channel count.
// Channel conversion supports mono and stereo only.
func (c AudioChunk) Convert(sampleRate, channels int) AudioChunk {
	samples := c.Samples
	switch {
	case c.Channels == 1 && channels == 2:
		samples = MonoToStereo(samples)
	case c.Channels == 2 && channels == 1:
		samples = StereoToMono(samples)
	}
	if c.SampleRate != sampleRate && c.SampleRate > 0 {
		if channels == 2 {
			left, right := deinterleave(samples)
			samples = interleave(Resample(left, c.SampleRate, sampleRate), Resample(right, c.SampleRate, sampleRate))
		} else {
			samples = Resample(samples, c.SampleRate, sampleRate)
		}
	}
	return AudioChunk{Samples: samples, SampleRate: sampleRate, Channels: channels}
}

func deinterleave(samples []int16) (left, right []int16) {
	n := len(samples) / 2
	left, right = make([]int16, n), make([]int16, n)
	for i := 0; i < n; i++ {
		left[i], right[i] = samples[2*i], samples[2*i+1]
	}
	return left, right
}

func interleave(left, right []int16) []int16 {
	n := min(len(left), len(right))
	out := make([]int16, 2*n)
	for i := 0; i < n; i++ {
		out[2*i], out[2*i+1] = left[i], right[i]
	}
	return out
}
