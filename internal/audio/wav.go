package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	pcmBitDepth = 16
	pcmFormat   = 1 // WAVE_FORMAT_PCM
	pcmScale    = 32767.0
)

// ErrInvalidWAV is returned when data is not a readable PCM WAV stream.
var ErrInvalidWAV = errors.New("audio: invalid wav data")

// WriteWAV encodes b as 16-bit PCM into w.
func WriteWAV(w io.WriteSeeker, b Buffer) error {
	if err := b.Validate(); err != nil {
		return err
	}
	enc := wav.NewEncoder(w, b.SampleRate, pcmBitDepth, b.Channels, pcmFormat)
	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = toPCM16(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: b.Channels, SampleRate: b.SampleRate},
		Data:           data,
		SourceBitDepth: pcmBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return fmt.Errorf("wav write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav close: %w", err)
	}
	return nil
}

// EncodeWAV returns b as an in-memory 16-bit PCM WAV file.
func EncodeWAV(b Buffer) ([]byte, error) {
	ws := &seekBuffer{}
	if err := WriteWAV(ws, b); err != nil {
		return nil, err
	}
	return ws.Bytes(), nil
}

// ReadWAV decodes a PCM WAV stream, keeping its rate and channel layout.
func ReadWAV(r io.ReadSeeker) (Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Buffer{}, ErrInvalidWAV
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if pcm == nil || pcm.Format == nil || pcm.Format.NumChannels <= 0 || pcm.Format.SampleRate <= 0 {
		return Buffer{}, ErrInvalidWAV
	}
	depth := pcm.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	scale := pcmScale
	if depth > 0 && depth != pcmBitDepth {
		scale = math.Pow(2, float64(depth-1)) - 1
	}
	channels := pcm.Format.NumChannels
	n := len(pcm.Data) - len(pcm.Data)%channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(float64(pcm.Data[i]) / scale)
	}
	b := Buffer{Samples: out, SampleRate: pcm.Format.SampleRate, Channels: channels}
	if err := b.Validate(); err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	return b, nil
}

// DecodeWAV decodes an in-memory WAV file.
func DecodeWAV(data []byte) (Buffer, error) {
	return ReadWAV(bytes.NewReader(data))
}

func toPCM16(s float32) int {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(math.Round(v * pcmScale))
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		if end > cap(s.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, s.buf)
			s.buf = grown
		} else {
			s.buf = s.buf[:end]
		}
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("seek: negative position %d", abs)
	}
	s.pos = int(abs)
	return abs, nil
}

func (s *seekBuffer) Bytes() []byte {
	return s.buf
}
