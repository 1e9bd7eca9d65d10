package merger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/guiyumin/biliget/internal/core/media"
)

// ErrIncompleteStreamSet means the downloaded files are neither one combined
// file nor one video plus one audio file
var ErrIncompleteStreamSet = errors.New("incomplete stream set")

// Merger muxes a video-only and an audio-only file into one container
type Merger interface {
	Merge(ctx context.Context, videoPath, audioPath, outputPath string) error
}

// FFmpeg implements Merger with the ffmpeg command line tool
type FFmpeg struct {
	Path string
}

// NewFFmpeg returns an FFmpeg merger. An empty path looks up "ffmpeg" in PATH.
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

// Available checks if ffmpeg is executable
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

// Merge stream-copies both inputs into outputPath, overwriting it
func (f *FFmpeg) Merge(ctx context.Context, videoPath, audioPath, outputPath string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-c", "copy",
		"-y", outputPath,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Path, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg merge failed: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg merge failed: %w", err)
	}
	return nil
}

// Outcome says how Coordinate produced the output
type Outcome string

const (
	OutcomeMerged  Outcome = "merged"
	OutcomeRenamed Outcome = "renamed"
)

// Coordinate turns a part's downloaded files into outputPath. One video plus one
// audio file are merged and the inputs removed; a single combined file is
// renamed. Any other set is left untouched and ErrIncompleteStreamSet returned.
func Coordinate(ctx context.Context, m Merger, files []media.DownloadedFile, outputPath string) (Outcome, error) {
	log := zap.S().Named("merger")

	byKind := make(map[media.Kind][]media.DownloadedFile)
	for _, f := range files {
		byKind[f.Kind] = append(byKind[f.Kind], f)
	}

	video, audio, combined := byKind[media.KindVideo], byKind[media.KindAudio], byKind[media.KindCombined]

	switch {
	case len(files) == 2 && len(video) == 1 && len(audio) == 1:
		if err := m.Merge(ctx, video[0].Path, audio[0].Path, outputPath); err != nil {
			return "", err
		}
		for _, in := range []string{video[0].Path, audio[0].Path} {
			if err := os.Remove(in); err != nil {
				log.Warnw("failed to remove merged input", "path", in, "error", err)
			}
		}
		return OutcomeMerged, nil

	case len(files) == 1 && len(combined) == 1:
		if err := os.Rename(combined[0].Path, outputPath); err != nil {
			return "", fmt.Errorf("failed to move %s: %w", combined[0].Path, err)
		}
		return OutcomeRenamed, nil
	}

	return "", fmt.Errorf("%w: have %s", ErrIncompleteStreamSet, describe(byKind))
}

func describe(byKind map[media.Kind][]media.DownloadedFile) string {
	if len(byKind) == 0 {
		return "no files"
	}
	parts := make([]string, 0, len(byKind))
	for kind, fs := range byKind {
		parts = append(parts, fmt.Sprintf("%d %s", len(fs), kind))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
