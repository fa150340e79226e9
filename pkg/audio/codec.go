// Package audio holds the audio plumbing shared by the server and the client:
// container detection, WAV encoding for uploads, base64 transport encoding,
// PCM conversion helpers, and the [Stitcher] that joins synthesized clips.
package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrDecode is returned when a payload is not valid base64 or not a
// recognisable audio container.
var ErrDecode = errors.New("audio: decode failed")

// Container identifies the file format of an encoded audio clip.
type Container int

const (
	// ContainerUnknown is returned for payloads that match no known signature.
	ContainerUnknown Container = iota

	// ContainerWAV is a RIFF/WAVE file.
	ContainerWAV

	// ContainerMP3 is an MPEG audio stream, optionally preceded by an ID3v2 tag.
	ContainerMP3
)

// String returns the conventional file extension for the container.
func (c Container) String() string {
	switch c {
	case ContainerWAV:
		return "wav"
	case ContainerMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// MIMEType returns the media type used when uploading or serving the clip.
func (c Container) MIMEType() string {
	switch c {
	case ContainerWAV:
		return "audio/wav"
	case ContainerMP3:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// DetectFormat sniffs the container of data from its leading bytes.
func DetectFormat(data []byte) Container {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return ContainerWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return ContainerMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ContainerMP3
	default:
		return ContainerUnknown
	}
}

// EncodeBase64 returns the standard base64 encoding of data.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a base64 audio payload. A leading data URI prefix
// ("data:audio/mpeg;base64,") is accepted and stripped.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return data, nil
}

// Duration returns the playback length of an encoded WAV or MP3 clip.
func Duration(data []byte) (time.Duration, error) {
	switch DetectFormat(data) {
	case ContainerWAV:
		dec := wav.NewDecoder(bytes.NewReader(data))
		if !dec.IsValidFile() {
			return 0, fmt.Errorf("%w: invalid wav", ErrDecode)
		}
		d, err := dec.Duration()
		if err != nil {
			return 0, fmt.Errorf("%w: wav duration: %v", ErrDecode, err)
		}
		return d, nil
	case ContainerMP3:
		dec, err := mp3.NewDecoder(bytes.NewReader(data))
		if err != nil {
			return 0, fmt.Errorf("%w: mp3: %v", ErrDecode, err)
		}
		rate := dec.SampleRate()
		length := dec.Length()
		if rate <= 0 || length < 0 {
			return 0, fmt.Errorf("%w: mp3 length unknown", ErrDecode)
		}
		// go-mp3 always emits 16-bit stereo.
		frames := length / 4
		return time.Duration(frames) * time.Second / time.Duration(rate), nil
	default:
		return 0, fmt.Errorf("%w: unknown container", ErrDecode)
	}
}
