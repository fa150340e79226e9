// Command portalvoice-client talks to a portalvoice server the way the portal
// widget does: it segments a recording into utterances, submits them one at a
// time and plays each reply before listening again.
//
// Usage:
//
//	portalvoice-client --input question.wav
//	portalvoice-client --text "buka pendaftaran perkara" --voice google_tts --out replies/
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/MrWong99/portalvoice/internal/client"
	"github.com/MrWong99/portalvoice/internal/config"
	"github.com/MrWong99/portalvoice/pkg/audio"
	"github.com/MrWong99/portalvoice/pkg/provider/vad"
	"github.com/MrWong99/portalvoice/pkg/provider/vad/energy"
	"github.com/MrWong99/portalvoice/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	serverURL := flag.StringP("server", "s", "", "portalvoice base URL (default $PORTALVOICE_URL or http://localhost:8080)")
	input := flag.StringP("input", "i", "", "WAV recording to segment and submit")
	text := flag.StringP("text", "t", "", "typed message to submit instead of audio")
	voice := flag.String("voice", "", "voice channel; empty selects the server default")
	out := flag.StringP("out", "o", "", "write reply clips to this directory instead of playing them")
	player := flag.String("player", "ffplay", `"ffplay", "silent" (wait for the clip length) or any command reading audio on stdin`)
	timeout := flag.Duration("timeout", client.DefaultSubmitTimeout, "per-submission timeout")
	vadName := flag.String("vad", "energy", "voice activity detector")
	vadLevel := flag.Float64("vad-level", energy.DefaultReference, "RMS level (full scale 1.0) the energy detector scores as certain speech")
	verbose := flag.BoolP("verbose", "v", false, "debug logging")
	flag.Parse()

	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if (*input == "") == (*text == "") {
		fmt.Fprintln(os.Stderr, "portalvoice-client: exactly one of --input or --text is required")
		flag.Usage()
		return 2
	}

	base := *serverURL
	if base == "" {
		base = os.Getenv("PORTALVOICE_URL")
	}
	if base == "" {
		base = "http://localhost:8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := vadEngine(*vadName, *vadLevel)
	if err != nil {
		log.Error("failed to create detector", "err", err)
		return 2
	}
	listener, err := client.NewVADListener(engine, client.DefaultListenerConfig())
	if err != nil {
		log.Error("failed to create listener", "err", err)
		return 1
	}
	defer listener.Close()

	seq := client.NewSequencer(newPlayer(*out, *player), log)
	submitter := client.NewHTTPSubmitter(base,
		client.WithVoice(*voice),
		client.WithHTTPClient(&http.Client{Timeout: *timeout}),
	)

	var failures atomic.Int32
	var capture *client.Capture
	capture, err = client.NewCapture(client.CaptureConfig{
		Detector:  listener,
		Submitter: submitter,
		OnResponse: func(resp *types.VoiceResponse) {
			printResponse(resp)
			if err := seq.Handle(ctx, resp, capture.Complete); err != nil {
				log.Warn("playback incomplete", "err", err)
			}
		},
		OnError: func(err error) {
			failures.Add(1)
			var se *client.StatusError
			if errors.As(err, &se) {
				fmt.Fprintf(os.Stderr, "server rejected submission (%d): %s\n", se.StatusCode, se.Message)
				return
			}
			fmt.Fprintf(os.Stderr, "submission failed: %v\n", err)
		},
		OnFeedback: func(f client.Feedback) {
			log.Debug("status", "feedback", f.String())
		},
		Logger: log,
	})
	if err != nil {
		log.Error("failed to create capture", "err", err)
		return 1
	}
	defer capture.Close()
	listener.SetHandler(capture)

	if err := capture.Start(); err != nil {
		log.Error("failed to start capture", "err", err)
		return 1
	}

	if *text != "" {
		if err := capture.SubmitText(*text); err != nil {
			log.Error("submit text", "err", err)
			return 1
		}
		capture.Wait()
		return exitCode(failures.Load())
	}

	pcm, err := loadRecording(*input)
	if err != nil {
		log.Error("failed to load recording", "err", err)
		return 1
	}
	log.Info("submitting recording", "file", *input, "seconds", float64(len(pcm))/float64(2*client.SampleRate))

	// Frames are only pulled once the previous reply has been played, so
	// utterances later in the file are not discarded while one is in flight.
	if err := listener.Run(ctx, &settledReader{r: bytes.NewReader(pcm), capture: capture}); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("listener stopped", "err", err)
		return 1
	}
	capture.Wait()
	if n := listener.Misfires(); n > 0 {
		log.Info("short noises ignored", "count", n)
	}
	return exitCode(failures.Load())
}

// loadRecording reads a WAV file as 16 kHz mono 16-bit PCM.
func loadRecording(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pcm, info, err := audio.ReadWAV(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return audio.ToMono16(pcm, info.SampleRate, info.Channels, client.SampleRate), nil
}

// settledReader blocks each read until the capture has no submission in
// flight.
type settledReader struct {
	r       io.Reader
	capture *client.Capture
}

func (s *settledReader) Read(p []byte) (int, error) {
	s.capture.Wait()
	return s.r.Read(p)
}

func newPlayer(out, name string) client.Player {
	switch {
	case out != "":
		return &client.FilePlayer{Dir: out}
	case name == "silent":
		return &client.DurationPlayer{}
	}
	fields := strings.Fields(name)
	if len(fields) == 0 || name == "ffplay" {
		return client.DefaultCommandPlayer()
	}
	return &client.CommandPlayer{Name: fields[0], Args: fields[1:]}
}

func printResponse(resp *types.VoiceResponse) {
	if resp.IsAction() {
		fmt.Printf("[%s] %s\n", resp.Action, resp.URL)
		return
	}
	fmt.Println(resp.ResponseText)
}

func exitCode(failures int32) int {
	if failures > 0 {
		return 1
	}
	return 0
}

// vadEngine resolves the detector named on the command line.
func vadEngine(name string, level float64) (vad.Engine, error) {
	reg := config.NewRegistry()
	reg.RegisterVAD("energy", func(e config.ProviderEntry) (vad.Engine, error) {
		ref, _ := e.Options["reference"].(float64)
		return energy.New(energy.WithReference(ref)), nil
	})
	return reg.CreateVAD(config.ProviderEntry{Name: name, Options: map[string]any{"reference": level}})
}
