//go:build whisper

package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	vad "github.com/maxhawkins/go-webrtcvad"
	"github.com/sirupsen/logrus"

	"voicecap/internal/audio"
)

// Mic records from a PortAudio input device.
type Mic struct {
	cfg    Config
	logger *logrus.Logger

	mu      sync.Mutex
	session *session
}

type session struct {
	stop    chan struct{}
	done    chan struct{}
	pcm     []int16
	gate    speechGate
	err     error
	stream  *portaudio.Stream
	started time.Time
}

// New initializes PortAudio. Close releases it.
func New(cfg Config, logger *logrus.Logger) (*Mic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &Mic{cfg: cfg, logger: logger}, nil
}

// Close terminates PortAudio.
func (m *Mic) Close() error {
	m.Cancel()
	return portaudio.Terminate()
}

// Start opens the device and begins reading frames.
func (m *Mic) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return nil
	}
	dev, err := selectDevice(m.cfg.DeviceName)
	if err != nil {
		return err
	}
	frame := m.cfg.FrameSamples()
	buf := make([]int16, frame*m.cfg.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: m.cfg.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(m.cfg.SampleRate),
		FramesPerBuffer: frame,
	}, &buf)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}

	var detector *vad.VAD
	if m.cfg.VAD {
		detector, err = vad.New()
		if err != nil {
			stream.Stop()
			stream.Close()
			return fmt.Errorf("vad init: %w", err)
		}
		if err := detector.SetMode(m.cfg.Aggressiveness); err != nil {
			stream.Stop()
			stream.Close()
			return fmt.Errorf("vad mode: %w", err)
		}
	}

	s := &session{
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		gate:    speechGate{frame: time.Duration(m.cfg.FrameMS) * time.Millisecond},
		stream:  stream,
		started: time.Now(),
	}
	m.session = s
	m.logger.Infof("recording from %s @ %d Hz", dev.Name, m.cfg.SampleRate)
	go m.readLoop(s, buf, detector)
	return nil
}

func (m *Mic) readLoop(s *session, buf []int16, detector *vad.VAD) {
	defer close(s.done)
	var monoBuf []int16
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				m.logger.Warn("input overflow")
				continue
			}
			s.err = fmt.Errorf("stream read: %w", err)
			return
		}
		s.pcm = append(s.pcm, buf...)
		if detector != nil {
			monoBuf = mono16(buf, m.cfg.Channels, monoBuf)
			voice, err := detector.Process(m.cfg.SampleRate, int16Bytes(monoBuf))
			if err != nil {
				m.logger.Debugf("vad: %v", err)
				continue
			}
			s.gate.observe(voice)
		}
	}
}

func (m *Mic) finish() (*session, error) {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()
	if s == nil {
		return nil, ErrNotRecording
	}
	close(s.stop)
	<-s.done
	if err := s.stream.Stop(); err != nil {
		m.logger.Debugf("stop stream: %v", err)
	}
	if err := s.stream.Close(); err != nil {
		m.logger.Debugf("close stream: %v", err)
	}
	return s, nil
}

// Stop implements Recorder.
func (m *Mic) Stop() (audio.Buffer, error) {
	s, err := m.finish()
	if err != nil {
		return audio.Buffer{}, err
	}
	if s.err != nil {
		return audio.Buffer{}, s.err
	}
	buf := pcmToBuffer(s.pcm, m.cfg.SampleRate, m.cfg.Channels)
	m.logger.Infof("captured %.2fs", buf.Seconds())
	if m.cfg.VAD {
		if err := s.gate.check(m.cfg.MinSpeech); err != nil {
			return audio.Buffer{}, err
		}
	}
	return buf, nil
}

// Cancel implements Recorder.
func (m *Mic) Cancel() {
	if _, err := m.finish(); err == nil {
		m.logger.Info("recording cancelled")
	}
}

// Devices lists input devices. PortAudio must not be initialized by the caller.
func Devices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()
	out := []Device{}
	for i, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			Index:     i,
			Name:      d.Name,
			Channels:  d.MaxInputChannels,
			LatencyMs: d.DefaultLowInputLatency.Seconds() * 1000,
			Default:   def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}

func selectDevice(preferred string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if preferred != "" {
		for _, d := range devs {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(preferred)) {
				return d, nil
			}
		}
	}
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def, nil
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input devices found")
}

func int16Bytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

var _ Recorder = (*Mic)(nil)
