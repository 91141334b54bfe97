package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedWrite struct {
	messageType int
	data        string
}

type fakeWSWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, data []byte, deadline time.Time) error {
	_ = deadline
	return f.WriteMessage(messageType, data)
}

func (f *fakeWSWriter) Close() error { return nil }

func (f *fakeWSWriter) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func TestOutboundWriter_PriorityBeatsNormal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)

	normal <- outboundFrame{
		audioGeneration: 1,
		payload:         []byte(`{"type":"audio_chunk","audio_b64":"AAAA","duration_ms":32}`),
	}
	priority <- outboundFrame{
		payload: []byte(`{"type":"playback_reset","reason":"barge_in"}`),
	}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) == 0 {
		t.Fatalf("expected at least one write")
	}
	if !strings.Contains(writes[0].data, `"type":"playback_reset"`) {
		t.Fatalf("first write was not playback_reset: %q", writes[0].data)
	}
}

func TestOutboundWriter_StaleAudioDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{audioGeneration: 1, payload: []byte(`{"type":"audio_chunk","audio_b64":"AAAA","duration_ms":32}`)}
	normal <- outboundFrame{audioGeneration: 1, payload: []byte(`{"type":"audio_chunk","audio_b64":"BBBB","duration_ms":32}`)}
	normal <- outboundFrame{audioGeneration: 1, payload: []byte(`{"type":"audio_chunk","audio_b64":"CCCC","duration_ms":32}`)}

	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
		staleAudio: func(generation int64) bool {
			return generation <= 1
		},
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if writes := ws.snapshot(); len(writes) != 0 {
		t.Fatalf("expected zero writes, got %d: %+v", len(writes), writes)
	}
}

func TestOutboundWriter_FreshAudioSurvivesWatermark(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{audioGeneration: 1, payload: []byte(`{"type":"audio_chunk","audio_b64":"AAAA","duration_ms":32}`)}
	normal <- outboundFrame{audioGeneration: 2, payload: []byte(`{"type":"audio_chunk","audio_b64":"BBBB","duration_ms":32}`)}

	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
		staleAudio: func(generation int64) bool {
			return generation <= 1
		},
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	writes := ws.snapshot()
	if len(writes) != 1 {
		t.Fatalf("expected 1 write, got %d: %+v", len(writes), writes)
	}
	if !strings.Contains(writes[0].data, "BBBB") {
		t.Fatalf("surviving write should be the fresh chunk: %q", writes[0].data)
	}
}

func TestOutboundWriter_NonAudioUnaffectedByWatermark(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{payload: []byte(`{"type":"warning","code":"x","message":"y"}`)}
	normal <- outboundFrame{payload: []byte(`{"type":"display","event":"transcription","data":{"speaker":"caller","text":"hello"}}`)}

	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
		staleAudio: func(int64) bool {
			return true
		},
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	writes := ws.snapshot()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d: %+v", len(writes), writes)
	}
}

func TestOutboundWriter_FlushesPriorityOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)

	priority <- outboundFrame{payload: []byte(`{"type":"playback_reset","reason":"barge_in"}`)}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}

	cancel()
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) == 0 || !strings.Contains(writes[0].data, `"type":"playback_reset"`) {
		t.Fatalf("expected playback_reset to flush on shutdown, writes=%+v", writes)
	}
}
