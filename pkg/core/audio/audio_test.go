package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcmFromSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestRMSEnergy(t *testing.T) {
	if got := RMSEnergy(nil); got != 0 {
		t.Fatalf("empty RMS=%v, want 0", got)
	}

	silence := pcmFromSamples(make([]int16, 512))
	if got := RMSEnergy(silence); got != 0 {
		t.Fatalf("silence RMS=%v, want 0", got)
	}

	// A constant full-scale signal has RMS 1.0 (within normalization rounding).
	full := make([]int16, 512)
	for i := range full {
		full[i] = 32767
	}
	if got := RMSEnergy(pcmFromSamples(full)); math.Abs(got-1.0) > 0.001 {
		t.Fatalf("full-scale RMS=%v, want ~1.0", got)
	}

	// A half-scale square wave has RMS 0.5.
	half := make([]int16, 512)
	for i := range half {
		if i%2 == 0 {
			half[i] = 16384
		} else {
			half[i] = -16384
		}
	}
	if got := RMSEnergy(pcmFromSamples(half)); math.Abs(got-0.5) > 0.001 {
		t.Fatalf("half-scale RMS=%v, want ~0.5", got)
	}
}

func TestPeakAmplitude(t *testing.T) {
	pcm := pcmFromSamples([]int16{0, 100, -32768, 50})
	if got := PeakAmplitude(pcm); got != 1.0 {
		t.Fatalf("peak=%v, want 1.0", got)
	}
	if got := PeakAmplitude(nil); got != 0 {
		t.Fatalf("empty peak=%v, want 0", got)
	}
}

func TestConfigMath(t *testing.T) {
	in := CaptureConfig()
	if got := in.BytesPerSecond(); got != 32000 {
		t.Fatalf("capture BytesPerSecond=%d, want 32000", got)
	}
	if got := in.FrameBytes(512); got != 1024 {
		t.Fatalf("FrameBytes(512)=%d, want 1024", got)
	}
	if got := in.FrameDurationMS(512); got != 32 {
		t.Fatalf("FrameDurationMS(512)=%d, want 32", got)
	}

	out := PlaybackConfig()
	if got := out.DurationMS(48000); got != 1000 {
		t.Fatalf("playback DurationMS(48000)=%d, want 1000", got)
	}
	if got := out.BytesForDuration(250); got != 12000 {
		t.Fatalf("playback BytesForDuration(250)=%d, want 12000", got)
	}

	var zero Config
	if got := zero.DurationMS(100); got != 0 {
		t.Fatalf("zero-config DurationMS=%d, want 0", got)
	}
}
