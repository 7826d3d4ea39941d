// Package store writes retrieved items to deterministic, write-once paths.
//
// Layout:
//
//	<articles>/<date>/<category>/<title>.md
//	<articles>/<date>/translated/<title>_cn.md
//	<articles>/<date>/eval/<title>.yaml
//	<videos>/<date>/<id>.mp4 (+ <id>.txt holding the page title)
//	<videos>/tmp/
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/models"
)

// Store resolves output paths and commits files without ever replacing an
// existing one.
type Store struct {
	articlesDir string
	videosDir   string
}

// New creates a Store rooted at the configured directories.
func New(cfg config.OutputConfig) *Store {
	return &Store{articlesDir: cfg.ArticlesDir, videosDir: cfg.VideosDir}
}

// ArticlesDir returns the article root.
func (s *Store) ArticlesDir() string { return s.articlesDir }

// PathFor returns the idempotence key of a task: its final output path.
func (s *Store) PathFor(task *models.RetrievalTask) string {
	if task.Kind == models.KindVideo {
		return filepath.Join(s.videosDir, DateDir(task.Date), VideoID(task.URL)+".mp4")
	}
	return filepath.Join(
		s.articlesDir,
		DateDir(task.Date),
		SanitizeFilename(task.Category),
		SanitizeFilename(task.Title)+".md",
	)
}

// TranslatedPath returns where the translation of the article file named
// name (without extension) is written.
func (s *Store) TranslatedPath(date time.Time, name string) string {
	return filepath.Join(s.articlesDir, DateDir(date), "translated", name+"_cn.md")
}

// EvalPath returns where the evaluation report for title is written.
func (s *Store) EvalPath(date time.Time, title string) string {
	return filepath.Join(s.articlesDir, DateDir(date), "eval", SanitizeSlug(title)+".yaml")
}

// ArticleFiles lists the retrieved article files of one day, skipping the
// translated and eval outputs.
func (s *Store) ArticleFiles(date time.Time) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.articlesDir, DateDir(date), "*", "*.md"))
	if err != nil {
		return nil, storageErr("list articles", err)
	}
	files := matches[:0]
	for _, m := range matches {
		switch filepath.Base(filepath.Dir(m)) {
		case "translated", "eval":
			continue
		}
		files = append(files, m)
	}
	return files, nil
}

// TranslatedFiles lists the translations of one day.
func (s *Store) TranslatedFiles(date time.Time) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.articlesDir, DateDir(date), "translated", "*_cn.md"))
	if err != nil {
		return nil, storageErr("list translations", err)
	}
	return matches, nil
}

// TempDir returns (and creates) the scratch directory for media downloads.
func (s *Store) TempDir() (string, error) {
	dir := filepath.Join(s.videosDir, "tmp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", storageErr("create temp dir", err)
	}
	return dir, nil
}

// Exists reports whether path already holds output.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteOnce writes data to path unless it already exists. written is false
// when an existing file won; that is not an error.
func WriteOnce(path string, data []byte) (written bool, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, storageErr("create output dir", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return false, storageErr("create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, storageErr("write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return false, storageErr("close temp file", err)
	}
	return Commit(tmpName, path)
}

// Commit publishes a fully written file at path. The link fails when path
// exists, so a concurrent or earlier writer always wins. src is left in
// place for the caller to remove.
func Commit(src, path string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, storageErr("create output dir", err)
	}
	err := os.Link(src, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	}

	// Filesystems without hard links: fall back to an exclusive create.
	data, readErr := os.ReadFile(src)
	if readErr != nil {
		return false, storageErr("read temp file", readErr)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("create output file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return false, storageErr("write output file", err)
	}
	if err := f.Close(); err != nil {
		return false, storageErr("close output file", err)
	}
	return true, nil
}

// Header is the metadata block written above every article body.
type Header struct {
	Title     string
	SourceURL string
	Feed      string
	Category  string
	Strategy  string
	Date      time.Time
}

// Render formats the header; the body follows the trailing "---".
func (h Header) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", h.Title)
	fmt.Fprintf(&b, "**Source URL**: %s\n", h.SourceURL)
	if h.Feed != "" {
		fmt.Fprintf(&b, "**Feed**: %s\n", h.Feed)
	}
	fmt.Fprintf(&b, "**Category**: %s\n", h.Category)
	fmt.Fprintf(&b, "**Fetch Source**: %s\n", h.Strategy)
	fmt.Fprintf(&b, "**Date**: %s\n\n", h.Date.Format(time.RFC3339))
	b.WriteString("---\n\n")
	return b.String()
}

// ArticleDocument joins header and body.
func ArticleDocument(h Header, body string) []byte {
	return []byte(h.Render() + strings.TrimSpace(body) + "\n")
}

func storageErr(msg string, err error) *models.RetrievalError {
	return models.NewRetrievalError(models.ErrCodeStorage, msg, err)
}
