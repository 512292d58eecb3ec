package audio

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// CaptureSampleRate is the fixed capture rate the rest of the pipeline
// assumes (Monitor, ASR).
const CaptureSampleRate = 16000

// CaptureStrategy turns one device callback's raw PCM16 bytes into a
// task.Frame, optionally tagging VoiceActive from its own signal. An
// untagged frame counts as silence in the Monitor.
type CaptureStrategy interface {
	Process(pcm []byte) task.Frame
	Name() string
}

// PlainCapture forwards frames with no VoiceActive opinion. The Monitor
// treats such an untagged frame as silence; no VAD runs on it.
type PlainCapture struct{}

func (PlainCapture) Process(pcm []byte) task.Frame {
	return task.Frame{Samples: Float32FromPCM16(pcm)}
}

func (PlainCapture) Name() string { return "plain" }

// EchoCancelledCapture runs an RMS gate against the microphone signal and
// suppresses frames that correlate with recently played-back audio, so the
// assistant does not interrupt itself.
type EchoCancelledCapture struct {
	suppressor *EchoSuppressor
	threshold  float64
}

// NewEchoCancelledCapture builds a strategy sharing suppressor with the
// Playback stage, which calls RecordPlayed as it plays audio out.
func NewEchoCancelledCapture(suppressor *EchoSuppressor, threshold float64) *EchoCancelledCapture {
	return &EchoCancelledCapture{suppressor: suppressor, threshold: threshold}
}

func (c *EchoCancelledCapture) Process(pcm []byte) task.Frame {
	samples := Float32FromPCM16(pcm)
	active := rmsAboveThreshold(samples, c.threshold) && !c.suppressor.IsEcho(samples)
	return task.Frame{Samples: samples, VoiceActive: &active}
}

func (c *EchoCancelledCapture) Name() string { return "echo-cancelled" }

func rmsAboveThreshold(samples []float32, threshold float64) bool {
	if len(samples) == 0 {
		return false
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	rms := sum / float64(len(samples))
	return rms > threshold*threshold
}

// Capture drives a malgo capture-only device and pushes decoded frames onto
// its output channel. Pause keeps reading the device (to avoid driver underruns) but
// drops frames instead of enqueuing them.
type Capture struct {
	strategy CaptureStrategy
	out      chan<- task.Frame

	ready  atomic.Bool
	paused atomic.Bool
}

// NewCapture builds a Capture service for the given strategy and output
// channel. The malgo device is created in Run, not here, so construction
// never touches hardware.
func NewCapture(strategy CaptureStrategy, out chan<- task.Frame) *Capture {
	return &Capture{strategy: strategy, out: out}
}

func (c *Capture) IsReady() bool { return c.ready.Load() }

func (c *Capture) Pause()  { c.paused.Store(true) }
func (c *Capture) Resume() { c.paused.Store(false) }

// Run opens the capture device, reads until ctx is cancelled, then tears
// the device down. Satisfies service.Service.
func (c *Capture) Run(ctx context.Context) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: capture device context: %v", task.ErrDevice, err)
	}
	defer mctx.Uninit()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = CaptureSampleRate
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(_, pInput []byte, _ uint32) {
		if len(pInput) == 0 {
			return
		}
		frame := c.strategy.Process(pInput)
		if c.paused.Load() {
			return
		}
		select {
		case c.out <- frame:
		default:
			log.Printf("audio: capture queue full, dropping frame")
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return fmt.Errorf("%w: capture device init: %v", task.ErrDevice, err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("%w: capture device start: %v", task.ErrDevice, err)
	}
	defer device.Stop()

	log.Printf("audio: capture started using %s strategy", c.strategy.Name())
	c.ready.Store(true)

	<-ctx.Done()
	return nil
}
