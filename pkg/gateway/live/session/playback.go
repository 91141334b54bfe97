package session

import (
	"sync"
	"time"

	"github.com/tablevox/tablevox/pkg/core/audio"
)

// playbackCursor is the server-authoritative model of what the caller is
// hearing. Scheduling a synthesized chunk advances the cursor by the chunk's
// play time; the assistant counts as speaking while the cursor is ahead of
// the wall clock. Clients do not send playback acks.
type playbackCursor struct {
	format audio.Config
	now    func() time.Time

	mu  sync.Mutex
	end time.Time // when the last scheduled chunk finishes playing
}

func newPlaybackCursor(format audio.Config, now func() time.Time) *playbackCursor {
	if format.BytesPerSecond() == 0 {
		format = audio.PlaybackConfig()
	}
	if now == nil {
		now = time.Now
	}
	return &playbackCursor{format: format, now: now}
}

// Schedule accounts one synthesized chunk and returns its play time. Chunks
// queue behind whatever is already scheduled, never behind the clock.
func (p *playbackCursor) Schedule(pcm []byte) time.Duration {
	d := p.chunkDuration(len(pcm))
	if d <= 0 {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if p.end.Before(now) {
		p.end = now
	}
	p.end = p.end.Add(d)
	return d
}

// Speaking reports whether scheduled audio is still playing out.
func (p *playbackCursor) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.end.After(p.now())
}

// Remaining returns how much scheduled audio has not yet played out.
func (p *playbackCursor) Remaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	left := p.end.Sub(p.now())
	if left < 0 {
		return 0
	}
	return left
}

// Reset drops everything scheduled and returns the unplayed play time, which
// the interruption event reports to the client.
func (p *playbackCursor) Reset() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	left := p.end.Sub(p.now())
	p.end = time.Time{}
	if left < 0 {
		return 0
	}
	return left
}

func (p *playbackCursor) chunkDuration(bytes int) time.Duration {
	bps := p.format.BytesPerSecond()
	if bps <= 0 || bytes <= 0 {
		return 0
	}
	return time.Duration(bytes) * time.Second / time.Duration(bps)
}
