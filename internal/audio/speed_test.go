package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResample(t *testing.T) {
	tests := []struct {
		name    string
		in      []float32
		ratio   float64
		wantLen int
	}{
		{
			name:    "identity",
			in:      []float32{0, 0.5, 1, 0.5},
			ratio:   1.0,
			wantLen: 4,
		},
		{
			name:    "halve",
			in:      make([]float32, 1000),
			ratio:   0.5,
			wantLen: 500,
		},
		{
			name:    "stretch",
			in:      make([]float32, 1000),
			ratio:   2.0,
			wantLen: 2000,
		},
		{
			name:    "empty input",
			in:      nil,
			ratio:   0.5,
			wantLen: 0,
		},
		{
			name:    "non-positive ratio",
			in:      []float32{1, 2},
			ratio:   0,
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resample(tt.in, tt.ratio)
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestResample_preservesEndpoints(t *testing.T) {
	in := []float32{-1, -0.5, 0, 0.5, 1}

	out := Resample(in, 2.0)
	if out[0] != in[0] {
		t.Errorf("first sample = %v, want %v", out[0], in[0])
	}
	if out[len(out)-1] != in[len(in)-1] {
		t.Errorf("last sample = %v, want %v", out[len(out)-1], in[len(in)-1])
	}
}

func TestAdjustSpeed(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.wav")
	dst := filepath.Join(dir, "clip_adjusted.wav")

	if err := os.WriteFile(src, sineWAV(t, 2.0, 22050), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := AdjustSpeed(src, dst, 2.0)
	if err != nil {
		t.Fatalf("AdjustSpeed: %v", err)
	}

	want := time.Second
	if diff := got - want; diff < -10*time.Millisecond || diff > 10*time.Millisecond {
		t.Errorf("adjusted duration = %v, want ~%v", got, want)
	}

	info, err := Probe(dst)
	if err != nil {
		t.Fatalf("Probe adjusted clip: %v", err)
	}
	if info.Format != FormatWAV {
		t.Errorf("adjusted format = %q, want wav", info.Format)
	}
	if info.SampleRate != 22050 {
		t.Errorf("adjusted rate = %d, want 22050 (rate must not change)", info.SampleRate)
	}
	if diff := info.Duration - want; diff < -10*time.Millisecond || diff > 10*time.Millisecond {
		t.Errorf("probed duration = %v, want ~%v", info.Duration, want)
	}
}

func TestAdjustSpeed_invalidSpeed(t *testing.T) {
	if _, err := AdjustSpeed("in.wav", "out.wav", 0); err == nil {
		t.Error("expected error for zero speed")
	}
	if _, err := AdjustSpeed("in.wav", "out.wav", -1); err == nil {
		t.Error("expected error for negative speed")
	}
}
