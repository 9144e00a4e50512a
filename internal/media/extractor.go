// Package media wraps the ffmpeg/ffprobe subprocesses that turn an
// uploaded video into the canonical 16 kHz mono PCM WAV artifact the
// rest of the orchestrator consumes. Grounded on
// original_source/src/services/video_extractor.py's is_video_file and
// extract_audio, translated from Python's subprocess.run(timeout=...)
// to exec.CommandContext with an explicit terminate-then-kill grace
// period.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

// ErrorKind classifies why extraction failed, mapping directly onto
// the HTTP status codes in spec §7.
type ErrorKind string

const (
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindTooLarge          ErrorKind = "too_large"
	KindDecoderError      ErrorKind = "decoder_error"
	KindDecoderTimeout    ErrorKind = "decoder_timeout"
)

// Error wraps a classified extraction failure.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

var allowedVideoExt = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".wmv": true,
	".flv": true, ".webm": true, ".m4v": true, ".3gp": true, ".mpg": true,
	".mpeg": true,
}

// IsSupportedVideo reports whether filename's extension is in the
// fixed video allow-list (spec §4.2).
func IsSupportedVideo(filename string) bool {
	return allowedVideoExt[strings.ToLower(filepath.Ext(filename))]
}

// Extractor invokes ffmpeg to produce a canonical WAV and, on success,
// ffprobe to verify the result actually matches the contract.
type Extractor struct {
	Timeout      time.Duration
	GracePeriod  time.Duration
	FFmpegPath   string
	FFprobePath  string
	SkipVerify   bool // set in tests that don't have real binaries on PATH
}

// New returns an Extractor with the given wall-clock ceiling.
func New(timeout time.Duration) *Extractor {
	return &Extractor{
		Timeout:     timeout,
		GracePeriod: 5 * time.Second,
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
	}
}

// Extract runs ffmpeg against videoPath, producing a 16kHz mono
// PCM s16le WAV at outputPath. It does not delete videoPath; cleanup
// on success is the caller's (Ingestor's) responsibility.
func (e *Extractor) Extract(ctx context.Context, videoPath, outputPath string) error {
	if !IsSupportedVideo(videoPath) {
		return &Error{Kind: KindUnsupportedFormat, Msg: filepath.Ext(videoPath)}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return &Error{Kind: KindDecoderError, Msg: err.Error()}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	args := []string{
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y",
		outputPath,
	}
	// Not CommandContext: that would kill the process the moment the
	// deadline fires, leaving runWithGrace no grace period to apply.
	cmd := exec.Command(e.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := e.runWithGrace(timeoutCtx, cmd); err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return &Error{Kind: KindDecoderTimeout, Msg: fmt.Sprintf("ffmpeg exceeded %s", e.Timeout)}
		}
		return &Error{Kind: KindDecoderError, Msg: strings.TrimSpace(stderr.String())}
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return &Error{Kind: KindDecoderError, Msg: "output file missing or empty"}
	}

	if !e.SkipVerify {
		if err := e.verify(ctx, outputPath); err != nil {
			return err
		}
	}
	return nil
}

// runWithGrace starts cmd and, if the context deadline fires first,
// signals the process to terminate and force-kills it after
// GracePeriod if it hasn't exited.
func (e *Extractor) runWithGrace(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case <-done:
		case <-time.After(e.GracePeriod):
			_ = cmd.Process.Kill()
			<-done
		}
		return ctx.Err()
	}
}

// verify shells out to ffprobe and checks the produced WAV really is
// 16kHz mono PCM, closing the gap between "ffmpeg exited 0" and "the
// artifact satisfies the contract" (SPEC_FULL §4.11).
func (e *Extractor) verify(ctx context.Context, wavPath string) error {
	cmd := exec.CommandContext(ctx, e.FFprobePath,
		"-v", "quiet",
		"-print_format", "xml",
		"-show_streams",
		wavPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return &Error{Kind: KindDecoderError, Msg: fmt.Sprintf("ffprobe: %v", err)}
	}

	doc, err := xmlquery.Parse(bytes.NewReader(out))
	if err != nil {
		return &Error{Kind: KindDecoderError, Msg: fmt.Sprintf("ffprobe xml parse: %v", err)}
	}

	stream := xmlquery.FindOne(doc, "//stream[@codec_type='audio']")
	if stream == nil {
		return &Error{Kind: KindDecoderError, Msg: "ffprobe reported no audio stream"}
	}

	sampleRate := stream.SelectAttr("sample_rate")
	channels := stream.SelectAttr("channels")
	codec := stream.SelectAttr("codec_name")

	if sampleRate != "16000" {
		return &Error{Kind: KindDecoderError, Msg: fmt.Sprintf("unexpected sample_rate %q", sampleRate)}
	}
	if channels != "1" {
		return &Error{Kind: KindDecoderError, Msg: fmt.Sprintf("unexpected channels %q", channels)}
	}
	if !strings.HasPrefix(codec, "pcm_s16le") {
		return &Error{Kind: KindDecoderError, Msg: fmt.Sprintf("unexpected codec %q", codec)}
	}
	return nil
}
