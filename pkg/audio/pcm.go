package audio

import (
	"encoding/binary"
	"math"
)

// Helpers on 16-bit signed little-endian PCM, the sample format used
// everywhere between capture, VAD and upload.

func samples16(pcm []byte) []int16 {
	s := make([]int16, len(pcm)/2)
	for i := range s {
		s[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return s
}

func bytes16(s []int16) []byte {
	pcm := make([]byte, 2*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(v))
	}
	return pcm
}

// FloatToPCM16 quantizes samples in [-1, 1], clamping anything outside.
func FloatToPCM16(samples []float32) []byte {
	s := make([]int16, len(samples))
	for i, f := range samples {
		f = max(-1, min(1, f))
		if f < 0 {
			s[i] = int16(f * 32768)
		} else {
			s[i] = int16(f * 32767)
		}
	}
	return bytes16(s)
}

// PCM16ToFloat scales samples into [-1, 1). A dangling odd byte is dropped.
func PCM16ToFloat(pcm []byte) []float32 {
	s := samples16(pcm)
	f := make([]float32, len(s))
	for i, v := range s {
		f[i] = float32(v) / 32768
	}
	return f
}

// DownmixMono16 averages interleaved channels into one. channels <= 1
// returns pcm itself.
func DownmixMono16(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	in := samples16(pcm)
	mono := make([]int16, len(in)/channels)
	for i := range mono {
		var sum int32
		for _, v := range in[i*channels : (i+1)*channels] {
			sum += int32(v)
		}
		mono[i] = int16(sum / int32(channels))
	}
	return bytes16(mono)
}

// ResampleMono16 converts mono PCM from srcRate to dstRate by linear
// interpolation. Equal or invalid rates return pcm itself.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	in := samples16(pcm)
	n := int(int64(len(in)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	step := float64(srcRate) / float64(dstRate)
	last := len(in) - 1
	out := make([]int16, n)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		a, b := float64(in[j]), float64(in[min(j+1, last)])
		frac := pos - float64(j)
		out[i] = int16(a + (b-a)*frac)
	}
	return bytes16(out)
}

// ToMono16 downmixes then resamples to dstRate, the shape VAD and upload
// expect.
func ToMono16(pcm []byte, srcRate, channels, dstRate int) []byte {
	return ResampleMono16(DownmixMono16(pcm, channels), srcRate, dstRate)
}

// RMS is the root-mean-square level of samples, 0 for none.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
