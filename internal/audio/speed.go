package audio

import (
	"fmt"
	"os"
	"time"
)

// Resample linearly interpolates samples to a new length of
// round(len(in) * ratio). A ratio below 1 shortens the clip, above 1
// stretches it. The sample rate is unchanged by this operation; callers
// decide how to interpret the result.
func Resample(in []float32, ratio float64) []float32 {
	if len(in) == 0 || ratio <= 0 {
		return nil
	}

	outLen := int(float64(len(in))*ratio + 0.5)
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float32, outLen)
	if outLen == 1 {
		out[0] = in[0]
		return out
	}

	step := float64(len(in)-1) / float64(outLen-1)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}

	return out
}

// AdjustSpeed rewrites the clip at srcPath played back at the given speed
// multiple and writes the result to dstPath as 16-bit mono WAV. Speed 2.0
// halves the duration. The source may be MP3 or WAV. Returns the duration
// of the adjusted clip.
func AdjustSpeed(srcPath, dstPath string, speed float64) (time.Duration, error) {
	if speed <= 0 {
		return 0, fmt.Errorf("invalid speed %v", speed)
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return 0, fmt.Errorf("reading source clip: %w", err)
	}

	samples, rate, err := Decode(data)
	if err != nil {
		return 0, fmt.Errorf("decoding source clip: %w", err)
	}

	adjusted := Resample(samples, 1/speed)

	encoded, err := EncodeWAV(adjusted, rate)
	if err != nil {
		return 0, fmt.Errorf("encoding adjusted clip: %w", err)
	}

	if err := os.WriteFile(dstPath, encoded, 0o644); err != nil {
		return 0, fmt.Errorf("writing adjusted clip: %w", err)
	}

	return framesToDuration(int64(len(adjusted)), rate), nil
}
