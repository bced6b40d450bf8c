package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// EncodeWAV encodes mono float32 PCM samples as a 16-bit WAV byte slice at
// the given sample rate.
func EncodeWAV(samples []float32, rate int) ([]byte, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", rate)
	}

	// wav.NewEncoder needs an io.WriteSeeker: it patches the RIFF sizes in
	// the header on Close.
	var sw seekableBytes

	enc := wav.NewEncoder(&sw, rate, 16, 1, 1) // 1 = PCM

	pcmBuf := &goaudio.Float32Buffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: rate, NumChannels: 1},
		SourceBitDepth: 16,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("writing PCM: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}

	return sw.data, nil
}

// seekableBytes is an in-memory io.WriteSeeker.
type seekableBytes struct {
	data []byte
	pos  int
}

func (s *seekableBytes) Write(p []byte) (int, error) {
	if grow := s.pos + len(p) - len(s.data); grow > 0 {
		s.data = append(s.data, make([]byte, grow)...)
	}
	n := copy(s.data[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *seekableBytes) Seek(offset int64, whence int) (int64, error) {
	var pos int
	switch whence {
	case io.SeekStart:
		pos = int(offset)
	case io.SeekCurrent:
		pos = s.pos + int(offset)
	case io.SeekEnd:
		pos = len(s.data) + int(offset)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.New("seek before start of buffer")
	}
	s.pos = pos
	return int64(pos), nil
}
