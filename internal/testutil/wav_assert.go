package testutil

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/voiceoverkit/go-voiceover/internal/audio"
)

// AssertValidWAV checks that the file at path is a mono 16-bit PCM WAV with
// at least one sample.
func AssertValidWAV(tb testing.TB, path string) {
	tb.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("WAV: reading %s: %v", path, err)
	}

	if len(data) < 44 {
		tb.Fatalf("WAV data too short: %d bytes", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		tb.Fatalf("WAV: missing RIFF header (got %q)", string(data[0:4]))
	}

	if string(data[8:12]) != "WAVE" {
		tb.Fatalf("WAV: missing WAVE marker (got %q)", string(data[8:12]))
	}

	if string(data[12:16]) != "fmt " {
		tb.Fatalf("WAV: missing fmt chunk (got %q)", string(data[12:16]))
	}

	// fmt chunk fields (little-endian).
	audioFmt := binary.LittleEndian.Uint16(data[20:22])
	if audioFmt != 1 {
		tb.Fatalf("WAV: expected PCM format (1), got %d", audioFmt)
	}

	channels := binary.LittleEndian.Uint16(data[22:24])
	if channels != 1 {
		tb.Fatalf("WAV: expected mono (1 channel), got %d", channels)
	}

	bitDepth := binary.LittleEndian.Uint16(data[34:36])
	if bitDepth != 16 {
		tb.Fatalf("WAV: expected 16-bit depth, got %d", bitDepth)
	}

	// Locate data chunk and verify non-zero sample count.
	dataSize, err := findDataChunkSize(data)
	if err != nil {
		tb.Fatalf("WAV: %v", err)
	}

	sampleCount := dataSize / 2 // 16-bit = 2 bytes per sample
	if sampleCount == 0 {
		tb.Fatal("WAV: data chunk contains zero samples")
	}
}

// AssertWAVDuration asserts that the decoded duration of the WAV at path is
// within tol of want.
func AssertWAVDuration(tb testing.TB, path string, want, tol time.Duration) {
	tb.Helper()

	info, err := audio.Probe(path)
	if err != nil {
		tb.Fatalf("WAV duration check: %v", err)
	}
	if info.Format != audio.FormatWAV {
		tb.Fatalf("WAV duration check: %s probed as %q", path, info.Format)
	}

	diff := info.Duration - want
	if diff < 0 {
		diff = -diff
	}
	if diff > tol {
		tb.Fatalf("WAV duration %v, want %v (±%v)", info.Duration, want, tol)
	}
}

// WriteTestWAV writes a mono 440 Hz sine clip of the given length to path.
func WriteTestWAV(tb testing.TB, path string, seconds float64, rate int) {
	tb.Helper()

	n := int(seconds * float64(rate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.25 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}

	data, err := audio.EncodeWAV(samples, rate)
	if err != nil {
		tb.Fatalf("encoding test WAV: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("writing test WAV: %v", err)
	}
}

// findDataChunkSize walks the WAV chunk list to locate the "data" sub-chunk
// and returns its size in bytes.
func findDataChunkSize(data []byte) (uint32, error) {
	// Start after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])

		size := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		if id == "data" {
			return size, nil
		}

		offset += 8 + int(size)
		// Pad to even boundary.
		if size%2 != 0 {
			offset++
		}
	}

	return 0, errors.New("data chunk not found in WAV")
}
