package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/portalvoice/pkg/audio"
)

func wavChunk(t *testing.T, frames, rate, channels int) string {
	t.Helper()
	samples := make([]int16, frames*channels)
	for i := range samples {
		samples[i] = int16(i % 512)
	}
	return audio.EncodeBase64(audio.EncodeWAV(samplesToBytes(samples), rate, channels))
}

func TestStitcher_Empty(t *testing.T) {
	t.Parallel()

	var s audio.Stitcher
	if _, err := s.Combine(nil); !errors.Is(err, audio.ErrNoChunks) {
		t.Errorf("error = %v, want ErrNoChunks", err)
	}
}

func TestStitcher_SingleChunkUnchanged(t *testing.T) {
	t.Parallel()

	var s audio.Stitcher
	in := "not even decoded"
	got, err := s.Combine([]string{in})
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if got != in {
		t.Errorf("got %q, want input unchanged", got)
	}
}

func TestStitcher_WAVFramesSum(t *testing.T) {
	t.Parallel()

	var s audio.Stitcher
	chunks := []string{
		wavChunk(t, 100, 16000, 1),
		wavChunk(t, 250, 16000, 1),
		wavChunk(t, 50, 16000, 1),
	}
	out, err := s.Combine(chunks)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	data, err := audio.DecodeBase64(out)
	if err != nil {
		t.Fatalf("DecodeBase64: %v", err)
	}
	n, err := audio.WAVFrames(data)
	if err != nil {
		t.Fatalf("WAVFrames: %v", err)
	}
	if n != 400 {
		t.Errorf("frames = %d, want 400", n)
	}
}

func TestStitcher_WAVPreservesOrder(t *testing.T) {
	t.Parallel()

	a := samplesToBytes([]int16{1, 2, 3})
	b := samplesToBytes([]int16{4, 5})
	var s audio.Stitcher
	out, err := s.Combine([]string{
		audio.EncodeBase64(audio.EncodeWAV(a, 8000, 1)),
		audio.EncodeBase64(audio.EncodeWAV(b, 8000, 1)),
	})
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	data, _ := audio.DecodeBase64(out)
	pcm, info, err := audio.ReadWAV(data)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if info.SampleRate != 8000 || info.Channels != 1 {
		t.Errorf("info = %+v", info)
	}
	got := bytesToSamples(pcm)
	want := []int16{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStitcher_BadChunkReportsIndex(t *testing.T) {
	t.Parallel()

	var s audio.Stitcher
	_, err := s.Combine([]string{
		wavChunk(t, 10, 16000, 1),
		wavChunk(t, 10, 16000, 1),
		"%%%not-base64%%%",
	})
	var ce *audio.ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *ChunkError", err)
	}
	if ce.Index != 2 {
		t.Errorf("Index = %d, want 2", ce.Index)
	}
	if !errors.Is(err, audio.ErrDecode) {
		t.Errorf("error should wrap ErrDecode: %v", err)
	}
}

func TestStitcher_FormatMismatch(t *testing.T) {
	t.Parallel()

	var s audio.Stitcher

	_, err := s.Combine([]string{
		wavChunk(t, 10, 16000, 1),
		wavChunk(t, 10, 22050, 1),
	})
	if !errors.Is(err, audio.ErrFormatMismatch) {
		t.Errorf("sample rate mismatch: error = %v, want ErrFormatMismatch", err)
	}

	_, err = s.Combine([]string{
		wavChunk(t, 10, 16000, 1),
		audio.EncodeBase64([]byte{0xFF, 0xFB, 0x90, 0xC0}),
	})
	if !errors.Is(err, audio.ErrFormatMismatch) {
		t.Errorf("container mismatch: error = %v, want ErrFormatMismatch", err)
	}
}

// floatWAVChunk returns a 32-bit IEEE float WAV (format tag 3) of frames
// mono frames.
func floatWAVChunk(frames, rate int) []byte {
	data := audio.EncodeWAV(make([]byte, frames*4), rate, 1)
	binary.LittleEndian.PutUint16(data[20:22], 3)
	binary.LittleEndian.PutUint32(data[28:32], uint32(rate*4))
	binary.LittleEndian.PutUint16(data[32:34], 4)
	binary.LittleEndian.PutUint16(data[34:36], 32)
	return data
}

func TestStitcher_RejectsFloatWAV(t *testing.T) {
	t.Parallel()

	var s audio.Stitcher
	_, err := s.Combine([]string{
		wavChunk(t, 10, 16000, 1),
		audio.EncodeBase64(floatWAVChunk(10, 16000)),
	})
	var ce *audio.ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *ChunkError", err)
	}
	if ce.Index != 1 {
		t.Errorf("Index = %d, want 1", ce.Index)
	}
	if !errors.Is(err, audio.ErrDecode) {
		t.Errorf("error should wrap ErrDecode: %v", err)
	}

	if _, _, err := audio.ReadWAV(floatWAVChunk(10, 16000)); !errors.Is(err, audio.ErrDecode) {
		t.Errorf("ReadWAV float: error = %v, want ErrDecode", err)
	}
}
