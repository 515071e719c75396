// Package audiometer meters the operator microphone: it owns the capture
// stream and derives a smoothed volume level and a fixed-length waveform,
// refreshed continuously while listening. Metering is independent of the
// call phase; it runs before, during and after calls and is only torn down
// on explicit surface teardown.
package audiometer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"github.com/code-100-precent/EchoDesk/pkg/metrics"
	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

var (
	// ErrMicUnavailable means the host exposes no usable capture device.
	// Retrying on the next readiness check is acceptable.
	ErrMicUnavailable = errors.New("microphone capture is unavailable")
	// ErrPermissionDenied means microphone access was refused. The caller
	// must not retry automatically, to avoid a permission prompt loop.
	ErrPermissionDenied = errors.New("microphone permission denied")
)

const (
	// sampleWindow is the number of recent samples the level math reads.
	sampleWindow = 2048
	// tickInterval approximates one iteration per display refresh.
	tickInterval = 16 * time.Millisecond
)

// Config 音量表配置
type Config struct {
	SampleRate     uint32 // 默认 48000
	WaveformPoints int    // 默认 50
}

// DefaultConfig 返回默认音量表配置
func DefaultConfig() Config {
	return Config{
		SampleRate:     48000,
		WaveformPoints: DefaultWaveformPoints,
	}
}

// captureHandle is the running capture stream; closed on Stop.
type captureHandle interface {
	close()
}

// openCaptureFunc opens a capture stream that feeds PCM frames to onFrames.
// Injected so tests can run without audio hardware.
type openCaptureFunc func(cfg Config, onFrames func(pcm []byte)) (captureHandle, error)

// Meter owns the microphone stream and the sampling loop deriving
// AudioMeterState from it.
type Meter struct {
	mu       sync.RWMutex
	cfg      Config
	open     openCaptureFunc
	capture  captureHandle
	task     *periodicTask
	running  bool
	denied   bool
	ring     []float64
	ringPos  int
	ringFull bool
	volume   float64
	waveform []float64
}

// NewMeter 创建新的音量表
func NewMeter(cfg Config) *Meter {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.WaveformPoints == 0 {
		cfg.WaveformPoints = DefaultWaveformPoints
	}
	return &Meter{
		cfg:      cfg,
		open:     openMalgoCapture,
		ring:     make([]float64, sampleWindow),
		waveform: make([]float64, cfg.WaveformPoints),
	}
}

// Start requests microphone access and begins the sampling loop. Starting
// an already-running meter is a no-op. After a permission denial Start
// keeps failing with ErrPermissionDenied so callers cannot loop the prompt.
func (m *Meter) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.denied {
		return ErrPermissionDenied
	}
	if m.running {
		return nil
	}

	capture, err := m.open(m.cfg, m.ingest)
	if err != nil {
		err = classifyCaptureError(err)
		if errors.Is(err, ErrPermissionDenied) {
			m.denied = true
		}
		return err
	}

	m.capture = capture
	m.task = startPeriodic(tickInterval, m.sample)
	m.running = true
	return nil
}

// ingest appends decoded samples to the ring buffer. Called from the
// capture device's data callback.
func (m *Meter) ingest(pcm []byte) {
	samples := DecodeS16(pcm)
	m.mu.Lock()
	for _, s := range samples {
		m.ring[m.ringPos] = s
		m.ringPos++
		if m.ringPos == len(m.ring) {
			m.ringPos = 0
			m.ringFull = true
		}
	}
	m.mu.Unlock()
}

// sample runs one metering iteration: RMS over the recent window, the
// smoothed volume level, and the downsampled waveform. Pure local
// computation, never blocks on I/O.
func (m *Meter) sample() {
	m.mu.Lock()
	window := m.windowLocked()
	level := Smooth(m.volume, VolumeFromRMS(RMS(window)))
	m.volume = level
	m.waveform = Downsample(window, m.cfg.WaveformPoints)
	m.mu.Unlock()

	metrics.MeterVolume.Set(level)
}

// windowLocked returns the ring contents in capture order.
func (m *Meter) windowLocked() []float64 {
	if !m.ringFull {
		out := make([]float64, m.ringPos)
		copy(out, m.ring[:m.ringPos])
		return out
	}
	out := make([]float64, len(m.ring))
	n := copy(out, m.ring[m.ringPos:])
	copy(out[n:], m.ring[:m.ringPos])
	return out
}

// VolumeLevel returns the current smoothed level in [0, 1].
func (m *Meter) VolumeLevel() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volume
}

// Waveform returns a copy of the current fixed-length waveform.
func (m *Meter) Waveform() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]float64, len(m.waveform))
	copy(out, m.waveform)
	return out
}

// Running reports whether the sampling loop is active.
func (m *Meter) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Denied reports whether a permission denial has latched.
func (m *Meter) Denied() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.denied
}

// Stop cancels the sampling loop and releases the capture stream. Safe to
// call repeatedly, and from a teardown path even if Start never completed.
func (m *Meter) Stop() {
	m.mu.Lock()
	task := m.task
	capture := m.capture
	m.task = nil
	m.capture = nil
	m.running = false
	m.volume = 0
	m.mu.Unlock()

	if task != nil {
		task.cancel()
	}
	if capture != nil {
		capture.close()
	}
}

// classifyCaptureError maps backend init failures onto the meter taxonomy.
func classifyCaptureError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied") || strings.Contains(msg, "permission"):
		return ErrPermissionDenied
	case strings.Contains(msg, "no device") || strings.Contains(msg, "device type not supported") ||
		strings.Contains(msg, "no backend"):
		return ErrMicUnavailable
	default:
		return fmt.Errorf("open capture device: %w", err)
	}
}

// malgoCapture bundles the allocated context and capture device.
type malgoCapture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// openMalgoCapture opens a mono S16 capture device with the platform's
// echo cancellation and noise suppression left to the OS capture path.
func openMalgoCapture(cfg Config, onFrames func(pcm []byte)) (captureHandle, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = cfg.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, frameCount uint32) {
			onFrames(inputSamples)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, err
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, err
	}

	return &malgoCapture{ctx: ctx, device: device}, nil
}

// close stops and releases the device and audio context, best effort.
func (c *malgoCapture) close() {
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			logger.Warn("audio context uninit failed", zap.Error(err))
		}
		c.ctx.Free()
		c.ctx = nil
	}
}
