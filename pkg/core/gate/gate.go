// Package gate decides, frame by frame, whether captured microphone audio is
// forwarded to the generative model. It runs two independent detectors over
// the same stream: a raw-energy interruption detector used for barge-in while
// the assistant is speaking, and an utterance gate that forwards speech plus
// a short trailing buffer and emits a turn-complete signal after sustained
// silence.
package gate

import (
	"time"

	"github.com/tablevox/tablevox/pkg/core/audio"
)

// Config tunes the gate. All thresholds are configuration, not code.
type Config struct {
	// Audio is the capture PCM format frames arrive in.
	Audio audio.Config

	// FrameSamples is the contracted capture frame size.
	FrameSamples int

	// SpeechThreshold is the RMS level at or above which a frame counts as
	// speech when the client supplies no classifier flag.
	SpeechThreshold float64

	// InterruptThreshold is the RMS level that raises the interrupt signal.
	// It is evaluated on every frame, independent of the utterance
	// classifier, so barge-in latency never waits on classification.
	InterruptThreshold float64

	// SilenceDuration is how much contiguous silence ends an utterance.
	SilenceDuration time.Duration

	// PostSpeechFrames is how many trailing silence frames are still
	// forwarded after speech stops, so trailing syllables are not clipped.
	PostSpeechFrames int

	// Disabled fails open: every frame is forwarded and no utterance events
	// are produced. The interrupt signal stays live.
	Disabled bool
}

// DefaultConfig returns the production tuning: 512-sample frames at 16 kHz
// (32 ms), an 800 ms silence window, and a 10-frame (~320 ms) trailing buffer.
func DefaultConfig() Config {
	return Config{
		Audio:              audio.CaptureConfig(),
		FrameSamples:       512,
		SpeechThreshold:    0.02,
		InterruptThreshold: 0.05,
		SilenceDuration:    800 * time.Millisecond,
		PostSpeechFrames:   10,
	}
}

// Decision is the gate's verdict for one frame.
type Decision struct {
	// Forward reports whether the frame should be sent to the model.
	Forward bool

	// SpeechStart is set on the first speech frame of a new utterance.
	SpeechStart bool

	// TurnComplete is set once the silence window elapses after speech.
	// Nothing is forwarded after it until speech resumes.
	TurnComplete bool

	// Interrupt is set when frame energy crosses the interrupt threshold.
	// The caller decides whether playback is active and barge-in applies.
	Interrupt bool

	// RMS is the measured frame energy, for logging and tuning.
	RMS float64
}

// Gate is a synchronous per-session state machine. It is not safe for
// concurrent use; the session loop owns it.
type Gate struct {
	cfg Config

	inUtterance bool
	silenceMS   int
	silenceRun  int
}

func New(cfg Config) *Gate {
	if cfg.Audio.BytesPerSecond() == 0 {
		cfg.Audio = audio.CaptureConfig()
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = 512
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = 800 * time.Millisecond
	}
	if cfg.PostSpeechFrames < 0 {
		cfg.PostSpeechFrames = 0
	}
	return &Gate{cfg: cfg}
}

// Config returns the effective tuning after defaulting.
func (g *Gate) Config() Config {
	return g.cfg
}

// Feed classifies one capture frame. speechFlag carries the client-side
// classifier verdict when the client runs one; nil falls back to the energy
// classifier.
func (g *Gate) Feed(pcm []byte, speechFlag *bool) Decision {
	rms := audio.RMSEnergy(pcm)
	d := Decision{
		RMS:       rms,
		Interrupt: rms >= g.cfg.InterruptThreshold,
	}

	if g.cfg.Disabled {
		d.Forward = true
		return d
	}

	speech := rms >= g.cfg.SpeechThreshold
	if speechFlag != nil {
		speech = *speechFlag
	}

	if speech {
		if !g.inUtterance {
			g.inUtterance = true
			d.SpeechStart = true
		}
		g.silenceMS = 0
		g.silenceRun = 0
		d.Forward = true
		return d
	}

	if !g.inUtterance {
		return d
	}

	g.silenceRun++
	g.silenceMS += g.cfg.Audio.DurationMS(len(pcm))
	if g.silenceRun <= g.cfg.PostSpeechFrames {
		d.Forward = true
	}
	if g.silenceMS >= int(g.cfg.SilenceDuration/time.Millisecond) {
		d.TurnComplete = true
		g.inUtterance = false
		g.silenceMS = 0
		g.silenceRun = 0
	}
	return d
}

// Active reports whether an utterance is in progress.
func (g *Gate) Active() bool {
	return g.inUtterance
}
