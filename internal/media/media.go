package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// IProber reports the total duration of a remote or local audio file.
type IProber interface {
	Duration(ctx context.Context, url string) (float64, error)
}

// ISlicer cuts a time range out of an audio file without re-encoding.
type ISlicer interface {
	Slice(ctx context.Context, srcURL string, startSec, durationSec float64, dstPath string) error
}

// FFmpeg implements both interfaces by shelling out to ffprobe/ffmpeg.
type FFmpeg struct{}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{}
}

func (f *FFmpeg) Duration(ctx context.Context, url string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		url,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return duration, nil
}

// Slice stream-copies the range, so it is IO bound rather than CPU bound
// and safe to run many at a time.
func (f *FFmpeg) Slice(ctx context.Context, srcURL string, startSec, durationSec float64, dstPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-ss", formatSeconds(startSec),
		"-t", formatSeconds(durationSec),
		"-i", srcURL,
		"-c", "copy",
		"-y", dstPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg slice: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
