package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// Player drives a malgo playback-only device, blocking Play calls until the
// clip has fully drained through the device callback.
type Player struct {
	suppressor *EchoSuppressor

	mu      sync.Mutex
	buf     []byte
	done    chan struct{}
	stopped atomic.Bool

	ready atomic.Bool
}

// NewPlayer builds a Player. suppressor may be nil if the Capture strategy
// in use does not perform echo cancellation.
func NewPlayer(suppressor *EchoSuppressor) *Player {
	return &Player{suppressor: suppressor}
}

func (p *Player) IsReady() bool { return p.ready.Load() }

// Stop suppresses future Play calls without tearing down the device or
// cutting off a clip already in progress; the caller (the Playback stage)
// checks IsStopped before each Play so preemption only ever takes effect at
// a clip boundary, never mid-clip.
func (p *Player) Stop() { p.stopped.Store(true) }

// Resume re-enables playback after Stop.
func (p *Player) Resume() { p.stopped.Store(false) }

// IsStopped reports whether Stop has been called without a matching Resume.
func (p *Player) IsStopped() bool { return p.stopped.Load() }

func (p *Player) Run(ctx context.Context) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: playback device context: %v", task.ErrDevice, err)
	}
	defer mctx.Uninit()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = CaptureSampleRate
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(pOutput, _ []byte, _ uint32) {
		if len(pOutput) == 0 {
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()

		n := copy(pOutput, p.buf)
		p.buf = p.buf[n:]
		if n < len(pOutput) {
			clear(pOutput[n:])
		}
		if len(p.buf) == 0 && p.done != nil {
			close(p.done)
			p.done = nil
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return fmt.Errorf("%w: playback device init: %v", task.ErrDevice, err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("%w: playback device start: %v", task.ErrDevice, err)
	}
	defer device.Stop()

	p.ready.Store(true)
	<-ctx.Done()
	return nil
}

// Play blocks until the samples have been fully written to the device. If
// ctx is cancelled first, Play returns ctx.Err() without clearing the
// in-flight buffer, which keeps draining through the device (Stop does not
// cut it short either; it only affects later Play calls).
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	pcm := PCM16FromFloat32(samples)
	if p.suppressor != nil {
		p.suppressor.RecordPlayed(samples)
	}

	p.mu.Lock()
	done := make(chan struct{})
	p.buf = pcm
	p.done = done
	p.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
