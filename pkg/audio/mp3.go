package audio

import (
	"bytes"
	"fmt"

	"github.com/hajimehoshi/go-mp3"
)

// Layer III bitrate tables in kbit/s, indexed by the 4-bit bitrate index.
var (
	mpeg1L3Bitrates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, -1}
	mpeg2L3Bitrates = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1}
)

// Sample rates in Hz indexed by [version][sample rate index].
var mpegSampleRates = map[int][3]int{
	mpegV1:  {44100, 48000, 32000},
	mpegV2:  {22050, 24000, 16000},
	mpegV25: {11025, 12000, 8000},
}

const (
	mpegV25 = 0
	mpegV2  = 2
	mpegV1  = 3
)

// mp3Frame describes a single MPEG audio frame header.
type mp3Frame struct {
	version    int
	sampleRate int
	length     int
}

// parseMP3Header decodes the 4-byte frame header at the start of b. Only
// Layer III, the layer every supported TTS backend emits, is accepted.
func parseMP3Header(b []byte) (mp3Frame, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return mp3Frame{}, false
	}
	version := int(b[1]>>3) & 0x03
	layer := int(b[1]>>1) & 0x03
	if version == 1 || layer != 1 {
		return mp3Frame{}, false
	}
	brIdx := int(b[2] >> 4)
	srIdx := int(b[2]>>2) & 0x03
	padding := int(b[2]>>1) & 0x01
	if brIdx == 0 || brIdx == 15 || srIdx == 3 {
		return mp3Frame{}, false
	}

	rate := mpegSampleRates[version][srIdx]
	var length int
	if version == mpegV1 {
		length = 144*mpeg1L3Bitrates[brIdx]*1000/rate + padding
	} else {
		length = 72*mpeg2L3Bitrates[brIdx]*1000/rate + padding
	}
	return mp3Frame{version: version, sampleRate: rate, length: length}, true
}

// stripID3 removes a leading ID3v2 tag and a trailing ID3v1 tag from data.
func stripID3(data []byte) []byte {
	if len(data) >= 10 && string(data[0:3]) == "ID3" {
		size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
		end := 10 + size
		if data[5]&0x10 != 0 {
			end += 10 // footer present
		}
		if end > len(data) {
			end = len(data)
		}
		data = data[end:]
	}
	if len(data) >= 128 && string(data[len(data)-128:len(data)-125]) == "TAG" {
		data = data[:len(data)-128]
	}
	return data
}

// scanMP3 strips ID3 tags from data and walks its frame headers. It returns
// the frame count, the sample rate of the first frame and the tag-free frame
// bytes. A truncated trailing frame is dropped.
func scanMP3(data []byte) (frames, sampleRate int, body []byte, err error) {
	body = stripID3(data)
	pos := 0
	for pos+4 <= len(body) {
		hdr, ok := parseMP3Header(body[pos:])
		if !ok || hdr.length <= 4 {
			break
		}
		if pos+hdr.length > len(body) {
			break
		}
		if frames == 0 {
			sampleRate = hdr.sampleRate
		}
		frames++
		pos += hdr.length
	}
	if frames == 0 {
		return 0, 0, nil, fmt.Errorf("%w: no mpeg frames", ErrDecode)
	}
	return frames, sampleRate, body[:pos], nil
}

// MP3Frames returns the number of MPEG audio frames in an MP3 clip.
func MP3Frames(data []byte) (int, error) {
	n, _, _, err := scanMP3(data)
	return n, err
}

// validateMP3 checks that go-mp3 can open the clip for decoding.
func validateMP3(data []byte) error {
	if _, err := mp3.NewDecoder(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: mp3: %v", ErrDecode, err)
	}
	return nil
}
