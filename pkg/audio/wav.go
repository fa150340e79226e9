package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavHeaderSize is the size of the canonical 44-byte RIFF/WAVE header.
const wavHeaderSize = 44

// wavFormatPCM is the fmt chunk tag of integer PCM, the only encoding that
// the decoder reads as samples and encodeWAV writes.
const wavFormatPCM = 1

// WAVInfo describes the sample format of a decoded WAV clip.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM in a canonical RIFF/WAVE
// container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	return encodeWAV(pcm, sampleRate, channels, 16)
}

// EncodeFloatWAV converts float samples in [-1, 1] to 16-bit PCM and wraps
// them in a mono WAV container. This is the upload format produced by the
// capture state machine.
func EncodeFloatWAV(samples []float32, sampleRate int) []byte {
	return EncodeWAV(FloatToPCM16(samples), sampleRate, 1)
}

func encodeWAV(pcm []byte, sampleRate, channels, bitDepth int) []byte {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitDepth))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// decodeWAV decodes an integer PCM WAV clip into its sample buffer. Other
// encodings, such as IEEE float, are rejected.
func decodeWAV(data []byte) (*goaudio.IntBuffer, WAVInfo, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, WAVInfo{}, fmt.Errorf("%w: invalid wav", ErrDecode)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, WAVInfo{}, fmt.Errorf("%w: unsupported wav format tag %d", ErrDecode, dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, WAVInfo{}, fmt.Errorf("%w: wav: %v", ErrDecode, err)
	}
	if buf == nil || buf.Format == nil {
		return nil, WAVInfo{}, fmt.Errorf("%w: empty wav", ErrDecode)
	}
	info := WAVInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if info.Channels <= 0 || info.SampleRate <= 0 {
		return nil, WAVInfo{}, fmt.Errorf("%w: wav has no format", ErrDecode)
	}
	return buf, info, nil
}

// ReadWAV decodes a WAV clip of any supported bit depth and returns its audio
// as 16-bit signed little-endian PCM together with the source format.
func ReadWAV(data []byte) ([]byte, WAVInfo, error) {
	buf, info, err := decodeWAV(data)
	if err != nil {
		return nil, WAVInfo{}, err
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		s := toInt16(v, info.BitDepth)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm, info, nil
}

// WAVFrames returns the number of sample frames in a WAV clip.
func WAVFrames(data []byte) (int, error) {
	buf, info, err := decodeWAV(data)
	if err != nil {
		return 0, err
	}
	return len(buf.Data) / info.Channels, nil
}

func toInt16(v, bitDepth int) int16 {
	switch bitDepth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

// packSamples writes integer samples back into little-endian PCM at the
// given bit depth.
func packSamples(samples []int, bitDepth int) ([]byte, error) {
	width := bitDepth / 8
	if width < 1 || width > 4 || bitDepth%8 != 0 {
		return nil, errors.New("audio: unsupported bit depth")
	}
	out := make([]byte, len(samples)*width)
	for i, v := range samples {
		p := out[i*width:]
		switch width {
		case 1:
			p[0] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(p, uint16(int16(v)))
		case 3:
			p[0] = byte(v)
			p[1] = byte(v >> 8)
			p[2] = byte(v >> 16)
		case 4:
			binary.LittleEndian.PutUint32(p, uint32(int32(v)))
		}
	}
	return out, nil
}
