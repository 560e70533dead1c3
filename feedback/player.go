package feedback

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Player plays cues through the default output device.
type Player struct {
	malgoCtx *malgo.AllocatedContext

	mu sync.Mutex
}

// NewPlayer initializes the audio backend.
func NewPlayer() (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	return &Player{malgoCtx: ctx}, nil
}

// Play blocks until the cue has been written to the device. Cues never
// overlap.
func (p *Player) Play(c Cue, volume float64) error {
	data := pcmBytes(Samples(c, volume))
	if len(data) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.malgoCtx == nil {
		return fmt.Errorf("player closed")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	var (
		pos      int
		done     = make(chan struct{})
		doneOnce sync.Once
	)
	onData := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		n := copy(pOutputSample, data[pos:])
		pos += n
		clear(pOutputSample[n:])
		if pos >= len(data) {
			doneOnce.Do(func() { close(done) })
		}
	}

	device, err := malgo.InitDevice(p.malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onData,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	// Samples plus slack for the device buffer.
	timeout := time.Duration(len(data)/2)*time.Second/sampleRate + 500*time.Millisecond
	select {
	case <-done:
		// Let the last period drain.
		time.Sleep(50 * time.Millisecond)
	case <-time.After(timeout):
	}
	device.Stop()
	return nil
}

// Close releases the audio backend.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.malgoCtx != nil {
		_ = p.malgoCtx.Uninit()
		p.malgoCtx.Free()
		p.malgoCtx = nil
	}
	return nil
}
