// Package media downloads sniffed streams and combines split audio/video
// with an external muxer.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/use-agent/retriever/models"
)

// maxDiagnostic bounds how much muxer stderr is kept in the error.
const maxDiagnostic = 2000

// Downloader streams a URL into w. scraper.Fetcher implements it.
type Downloader interface {
	Download(ctx context.Context, url string, headers map[string]string, w io.Writer) (int64, error)
}

// Fetch downloads url into a new file at path. A partial file is removed
// on failure.
func Fetch(ctx context.Context, d Downloader, url, path string, headers map[string]string) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, models.NewRetrievalError(models.ErrCodeStorage, "create download file", err)
	}

	n, err := d.Download(ctx, url, headers, f)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return n, models.NewRetrievalError(models.ErrCodeFetchFailed, "stream download failed", err)
	}
	slog.Debug("stream downloaded", "path", path, "bytes", n)
	return n, nil
}

// Muxer combines a video-only and an audio-only stream by invoking an
// external tool (ffmpeg by default) with file paths.
type Muxer struct {
	Bin string
}

// NewMuxer creates a Muxer; an empty bin means "ffmpeg" on PATH.
func NewMuxer(bin string) *Muxer {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Muxer{Bin: bin}
}

// Mux writes out from videoPath and audioPath with stream copy. When
// audioPath is empty the video already carries audio and is moved to out.
// Tool failures are MUXING_FAILURE carrying the tool's stderr.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, out string) error {
	if audioPath == "" {
		if err := os.Rename(videoPath, out); err != nil {
			return models.NewRetrievalError(models.ErrCodeStorage, "move video stream", err)
		}
		return nil
	}

	cmd := exec.CommandContext(ctx, m.Bin,
		"-y", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-c", "copy",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(out)
		if ctx.Err() != nil {
			return models.NewRetrievalError(models.ErrCodeCanceled, "muxing canceled", ctx.Err())
		}
		return models.NewRetrievalError(
			models.ErrCodeMuxing,
			fmt.Sprintf("%s failed: %s", m.Bin, diagnostic(stderr.String())),
			err,
		)
	}
	return nil
}

func diagnostic(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "no diagnostic output"
	}
	if len(s) > maxDiagnostic {
		s = "..." + s[len(s)-maxDiagnostic:]
	}
	return s
}
