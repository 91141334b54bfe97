package session

import "time"

// tokenBucket is a single-rate budget with whole-token refill math. A zero
// rate disables the bucket.
type tokenBucket struct {
	rate   int64 // tokens per second
	max    int64
	tokens int64
}

func (b *tokenBucket) refill(elapsed time.Duration) {
	if b.rate <= 0 {
		return
	}
	add := (elapsed.Nanoseconds() * b.rate) / int64(time.Second)
	if add <= 0 {
		return
	}
	b.tokens += add
	if b.tokens > b.max {
		b.tokens = b.max
	}
}

func (b *tokenBucket) has(n int64) bool {
	return b.rate <= 0 || b.tokens >= n
}

func (b *tokenBucket) take(n int64) {
	if b.rate > 0 {
		b.tokens -= n
	}
}

// inboundAudioLimiter enforces the per-session frame and byte rates on
// caller audio. A nil limiter allows everything.
type inboundAudioLimiter struct {
	now        func() time.Time
	frames     tokenBucket
	bytes      tokenBucket
	lastRefill time.Time
}

func newInboundAudioLimiter(now func() time.Time, fps int, bps int64, burstSeconds int) *inboundAudioLimiter {
	if fps <= 0 && bps <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	if burstSeconds <= 0 {
		burstSeconds = 1
	}

	l := &inboundAudioLimiter{now: now, lastRefill: now()}
	if fps > 0 {
		l.frames = tokenBucket{rate: int64(fps), max: int64(fps) * int64(burstSeconds)}
		l.frames.tokens = l.frames.max
	}
	if bps > 0 {
		l.bytes = tokenBucket{rate: bps, max: bps * int64(burstSeconds)}
		l.bytes.tokens = l.bytes.max
	}
	return l
}

// Allow reports whether one frame of the given size fits in the budget and,
// if it does, spends it.
func (l *inboundAudioLimiter) Allow(frameBytes int) bool {
	if l == nil {
		return true
	}
	l.refill()

	if frameBytes < 0 {
		frameBytes = 0
	}
	if !l.frames.has(1) || !l.bytes.has(int64(frameBytes)) {
		return false
	}
	l.frames.take(1)
	l.bytes.take(int64(frameBytes))
	return true
}

func (l *inboundAudioLimiter) refill() {
	now := l.now()
	if l.lastRefill.IsZero() {
		l.lastRefill = now
		return
	}
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.frames.refill(elapsed)
	l.bytes.refill(elapsed)
	l.lastRefill = now
}
