package audiometer

import (
	"encoding/binary"
	"math"
)

// DefaultWaveformPoints is the number of evenly spaced samples kept for the
// waveform view.
const DefaultWaveformPoints = 50

// DecodeS16 converts little-endian signed 16-bit PCM into samples in
// [-1, 1]. A trailing odd byte is discarded.
func DecodeS16(data []byte) []float64 {
	n := len(data) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float64(v) / 32768.0
	}
	return samples
}

// RMS computes the root mean square of the samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// VolumeFromRMS maps an RMS value to a display level, boosted so normal
// speech fills the scale, clamped to 1.
func VolumeFromRMS(rms float64) float64 {
	return math.Min(1, rms*3)
}

// Smooth applies exponential smoothing so the level indicator decays
// instead of flickering.
func Smooth(old, sample float64) float64 {
	return old*0.8 + sample*0.2
}

// Downsample reduces the buffer to a fixed number of evenly spaced points.
// Fewer input samples than points yields a zero-padded tail.
func Downsample(samples []float64, points int) []float64 {
	if points <= 0 {
		return nil
	}
	out := make([]float64, points)
	if len(samples) == 0 {
		return out
	}
	step := float64(len(samples)) / float64(points)
	if step < 1 {
		copy(out, samples)
		return out
	}
	for i := 0; i < points; i++ {
		out[i] = samples[int(float64(i)*step)]
	}
	return out
}
