package audio

import (
	"fmt"
	"math"

	"github.com/zaf/g711"
)

// Encoding names accepted for incoming microphone audio.
const (
	EncodingPCM16 = "pcm16" // 16-bit signed little-endian
	EncodingMulaw = "mulaw" // G.711 PCMU
)

// ToPCM16 decodes microphone audio in the given encoding and resamples it to
// outputRate, returning 16-bit little-endian PCM.
func ToPCM16(data []byte, encoding string, inputRate, outputRate int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var pcm []byte
	switch encoding {
	case EncodingPCM16, "":
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
		}
		pcm = data
	case EncodingMulaw:
		pcm = g711.DecodeUlaw(data)
	default:
		return nil, fmt.Errorf("unsupported audio encoding %q", encoding)
	}

	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 {
		return pcm, nil
	}
	return SamplesToBytes(Resample(BytesToSamples(pcm), inputRate, outputRate)), nil
}

// BytesToSamples converts 16-bit little-endian PCM to samples. A trailing odd byte is ignored.
func BytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts samples to 16-bit little-endian PCM.
func SamplesToBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return pcm
}

// Resample performs linear interpolation resampling.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	output := make([]int16, int(float64(len(samples))*ratio))

	for i := range output {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		if idx0 >= len(samples) {
			idx0 = len(samples) - 1
		}
		idx1 := min(idx0+1, len(samples)-1)

		fraction := srcPos - float64(idx0)
		output[i] = int16(math.Round(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction))
	}

	return output
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
