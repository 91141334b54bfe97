// Package audio holds PCM format math shared by the capture gate, the
// playback scheduler, and the model transport. All audio in the system is
// 16-bit signed little-endian PCM; capture runs at 16 kHz mono and synthesis
// arrives at 24 kHz mono.
package audio

import "math"

// Config specifies the PCM format of one audio direction.
type Config struct {
	SampleRateHz  int `json:"sample_rate_hz"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bits_per_sample"`
}

// CaptureConfig returns the contracted microphone format.
func CaptureConfig() Config {
	return Config{SampleRateHz: 16000, Channels: 1, BitsPerSample: 16}
}

// PlaybackConfig returns the contracted synthesis format.
func PlaybackConfig() Config {
	return Config{SampleRateHz: 24000, Channels: 1, BitsPerSample: 16}
}

// BytesPerSecond returns the byte rate of the format.
func (c Config) BytesPerSecond() int {
	return c.SampleRateHz * c.Channels * (c.BitsPerSample / 8)
}

// DurationMS returns the play time in milliseconds of a buffer of the given
// byte length.
func (c Config) DurationMS(bytes int) int {
	bps := c.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return (bytes * 1000) / bps
}

// BytesForDuration returns the byte length of the given play time.
func (c Config) BytesForDuration(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}

// FrameBytes returns the byte length of a frame of the given sample count.
func (c Config) FrameBytes(samples int) int {
	return samples * c.Channels * (c.BitsPerSample / 8)
}

// FrameDurationMS returns the play time of a frame of the given sample count.
func (c Config) FrameDurationMS(samples int) int {
	if c.SampleRateHz == 0 {
		return 0
	}
	return samples * 1000 / c.SampleRateHz
}

// RMSEnergy computes the root-mean-square energy of 16-bit little-endian PCM,
// normalized to 0.0..1.0.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// PeakAmplitude returns the maximum absolute sample amplitude, normalized to
// 0.0..1.0.
func PeakAmplitude(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		// float64 to avoid overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}

	return maxAbs / 32768.0
}
