// Package ffprobe opens audio sources with the ffprobe binary. It serves as
// the media tier of the existence prober when no playback element exists.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	lplog "github.com/ManuGH/listenpath/internal/log"
)

// ErrNoAudio is returned when ffprobe reports no decodable audio stream.
var ErrNoAudio = errors.New("ffprobe: no audio stream")

const stderrLimit = 4096

// Info describes the first audio stream of a source.
type Info struct {
	Codec    string
	Format   string
	Duration float64
}

// runFunc executes a command and returns stdout, stderr and the exit error.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

// Opener runs ffprobe. The zero value uses "ffprobe" from PATH.
type Opener struct {
	Binary string
	run    runFunc
}

// NewOpener returns an opener for binary.
func NewOpener(binary string) *Opener {
	return &Opener{Binary: binary}
}

// Open implements probe.MediaOpener. The caller bounds it with ctx.
func (o *Opener) Open(ctx context.Context, url, _ string) error {
	_, err := o.Probe(ctx, url)
	return err
}

// Probe inspects url and returns its audio stream.
func (o *Opener) Probe(ctx context.Context, url string) (Info, error) {
	bin := o.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	run := o.run
	if run == nil {
		run = execRun
	}

	stdout, stderr, err := run(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "a",
		url,
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Info{}, ctxErr
	}

	info, parseErr := parse(stdout)
	if parseErr == nil {
		if err != nil {
			logger := lplog.WithComponentFromContext(ctx, "ffprobe")
			logger.Debug().Err(err).
				Str(lplog.FieldURL, url).
				Str("stderr", truncate(stderr)).
				Msg("ffprobe non-zero exit but output accepted")
		}
		return info, nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err, truncate(stderr))
	}
	return Info{}, parseErr
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	// #nosec G204 -- binary is operator configuration; the URL is a single argument
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	return out, stderr.Bytes(), err
}

type probeData struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Duration  string `json:"duration,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

func parse(out []byte) (Info, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return Info{}, fmt.Errorf("ffprobe: decode output: %w", err)
	}

	var info Info
	for _, s := range data.Streams {
		if s.CodecType == "audio" && s.CodecName != "" {
			info.Codec = s.CodecName
			info.Duration = parseSeconds(s.Duration)
			break
		}
	}
	if info.Codec == "" {
		return Info{}, ErrNoAudio
	}
	if info.Duration == 0 {
		info.Duration = parseSeconds(data.Format.Duration)
	}
	format, _, _ := strings.Cut(data.Format.FormatName, ",")
	info.Format = strings.TrimSpace(format)
	return info, nil
}

func parseSeconds(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func truncate(b []byte) string {
	if len(b) > stderrLimit {
		return string(b[:stderrLimit]) + "..."
	}
	return string(b)
}
