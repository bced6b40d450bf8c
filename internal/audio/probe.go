package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cwbudde/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// Format identifies an audio container.
type Format string

const (
	FormatMP3     Format = "mp3"
	FormatWAV     Format = "wav"
	FormatUnknown Format = ""
)

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMP3:
		return ".mp3"
	case FormatWAV:
		return ".wav"
	default:
		return ""
	}
}

// ErrUnknownFormat is returned when audio bytes match no supported container.
var ErrUnknownFormat = errors.New("unrecognized audio format")

// Info describes a decoded audio clip.
type Info struct {
	Format      Format
	SampleRate  int
	NumChannels int
	Duration    time.Duration
}

// DetectFormat sniffs the container format from the first bytes of data.
func DetectFormat(data []byte) Format {
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return FormatWAV
	}
	if len(data) >= 3 && bytes.Equal(data[:3], []byte("ID3")) {
		return FormatMP3
	}
	// MPEG frame sync: 11 set bits.
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return FormatMP3
	}
	return FormatUnknown
}

// Probe reads the file at path and returns its format, sample rate, channel
// count, and duration.
func Probe(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("reading audio file: %w", err)
	}
	return ProbeBytes(data)
}

// ProbeBytes inspects encoded audio bytes and returns format, sample rate,
// channel count, and duration.
func ProbeBytes(data []byte) (Info, error) {
	switch DetectFormat(data) {
	case FormatMP3:
		return probeMP3(data)
	case FormatWAV:
		return probeWAV(data)
	default:
		return Info{}, ErrUnknownFormat
	}
}

// probeMP3 decodes the stream headers and computes the duration from the
// decoded PCM length. go-mp3 always emits 16-bit stereo, 4 bytes per frame.
func probeMP3(data []byte) (Info, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("decoding mp3: %w", err)
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		return Info{}, fmt.Errorf("decoding mp3: invalid sample rate %d", rate)
	}

	pcmBytes := dec.Length()
	if pcmBytes < 0 {
		n, err := io.Copy(io.Discard, dec)
		if err != nil {
			return Info{}, fmt.Errorf("decoding mp3 stream: %w", err)
		}
		pcmBytes = n
	}

	frames := pcmBytes / 4
	return Info{
		Format:      FormatMP3,
		SampleRate:  rate,
		NumChannels: 2,
		Duration:    framesToDuration(frames, rate),
	}, nil
}

func probeWAV(data []byte) (Info, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Info{}, errors.New("invalid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Info{}, fmt.Errorf("reading PCM data: %w", err)
	}

	rate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	if rate <= 0 || channels <= 0 {
		return Info{}, fmt.Errorf("invalid WAV header: rate %d, channels %d", rate, channels)
	}

	frames := int64(len(buf.Data) / channels)
	return Info{
		Format:      FormatWAV,
		SampleRate:  rate,
		NumChannels: channels,
		Duration:    framesToDuration(frames, rate),
	}, nil
}

func framesToDuration(frames int64, rate int) time.Duration {
	return time.Duration(float64(frames) / float64(rate) * float64(time.Second))
}
