package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// DecodeWAV decodes WAV bytes into mono float32 samples in [-1, 1] and the
// sample rate. Multi-channel input is mixed down by averaging.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) == 0 {
		return nil, 0, errors.New("empty WAV input")
	}

	r := bytes.NewReader(data)
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}

	rate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	if rate <= 0 || channels <= 0 {
		return nil, 0, fmt.Errorf("invalid WAV header: rate %d, channels %d", rate, channels)
	}

	if channels == 1 {
		return buf.Data, rate, nil
	}

	frames := len(buf.Data) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}

	return mono, rate, nil
}

// DecodeMP3 decodes MP3 bytes into mono float32 samples in [-1, 1] and the
// sample rate. go-mp3 emits 16-bit little-endian stereo; the two channels
// are averaged.
func DecodeMP3(data []byte) ([]float32, int, error) {
	if len(data) == 0 {
		return nil, 0, errors.New("empty MP3 input")
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("decoding mp3: %w", err)
	}

	rate := dec.SampleRate()

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}

	const bytesPerFrame = 4 // 2 channels x 16-bit
	pcm = pcm[:len(pcm)/bytesPerFrame*bytesPerFrame]

	frames := len(pcm) / bytesPerFrame
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		off := i * bytesPerFrame
		left := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
		right := int16(binary.LittleEndian.Uint16(pcm[off+2 : off+4]))
		mono[i] = (float32(left) + float32(right)) / 2.0 / 32768.0
	}

	return mono, rate, nil
}

// DecodePCM16 converts raw signed 16-bit little-endian mono samples to
// float32 in [-1, 1]. Trailing odd bytes are dropped.
func DecodePCM16(data []byte) []float32 {
	data = data[:len(data)/2*2]
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:i*2+2]))) / 32768.0
	}
	return out
}

// Decode sniffs the container format and decodes to mono float32 samples.
func Decode(data []byte) ([]float32, int, error) {
	switch DetectFormat(data) {
	case FormatMP3:
		return DecodeMP3(data)
	case FormatWAV:
		return DecodeWAV(data)
	default:
		return nil, 0, ErrUnknownFormat
	}
}
