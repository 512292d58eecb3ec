package tts

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/audio"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// defaultSampleRate is the PCM rate Lokutor's voice models render at.
const defaultSampleRate = 24000

// LokutorTTS streams sentence synthesis over a persistent websocket
// connection, reconnecting lazily after any read/write failure.
type LokutorTTS struct {
	apiKey string
	host   string
	scheme string
	voice  task.Voice
	lang   task.Language

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewLokutorTTS builds a LokutorTTS for the given voice/language. Swapping
// voice or language happens by constructing a new engine and installing it
// in place of the old one.
func NewLokutorTTS(apiKey string, voice task.Voice, lang task.Language) *LokutorTTS {
	return &LokutorTTS{
		apiKey: apiKey,
		host:   "api.lokutor.com",
		scheme: "wss",
		voice:  voice,
		lang:   lang,
	}
}

func (t *LokutorTTS) Name() string { return "lokutor" }

func (t *LokutorTTS) Setup(ctx context.Context) error {
	_, err := t.getConn(ctx)
	return err
}

func (t *LokutorTTS) Warmup(ctx context.Context) error {
	_, _, err := t.Synthesize(ctx, "ok")
	return err
}

func (t *LokutorTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: t.scheme, Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: lokutor dial: %v", task.ErrEngine, err)
	}

	t.conn = conn
	return conn, nil
}

// Synthesize renders text to float32 PCM at defaultSampleRate.
func (t *LokutorTTS) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	var pcm []byte
	err := t.streamSynthesize(ctx, text, func(chunk []byte) error {
		pcm = append(pcm, chunk...)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return audio.Float32FromPCM16(pcm), defaultSampleRate, nil
}

func (t *LokutorTTS) streamSynthesize(ctx context.Context, text string, onChunk func([]byte) error) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	// t.mu is not held across the read loop so that Abort can close conn
	// and unblock it; a failed conn is only forgotten if still current.
	dropConn := func() {
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
	}

	req := map[string]interface{}{
		"text":    text,
		"voice":   string(t.voice),
		"lang":    string(t.lang),
		"speed":   1.05,
		"steps":   5,
		"version": "versa-1.0",
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		dropConn()
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("%w: lokutor send: %v", task.ErrEngine, err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			dropConn()
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("%w: lokutor read: %v", task.ErrEngine, err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("%w: lokutor: %s", task.ErrEngine, msg)
			}
		}
	}
}

// Abort drops the current connection, unblocking any in-flight read/write
// and forcing a fresh dial on the next Synthesize call.
func (t *LokutorTTS) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "aborted")
		t.conn = nil
		return err
	}
	return nil
}
