package cleaner

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"github.com/use-agent/retriever/models"
)

// Extraction modes accepted by Cleaner.Markdown.
const (
	ModeReadability = "readability"
	ModePruning     = "pruning"
	ModeAuto        = "auto"
)

// Document is a cleaned article body plus the metadata used to name it.
type Document struct {
	Title    string
	Byline   string
	SiteName string
	Markdown string
}

// Cleaner turns rendered or fetched HTML into article markdown:
//
//	StripNoise → readability / pruning → html-to-markdown → CleanLines
//
// The converter is created once and shared by all goroutines.
type Cleaner struct {
	mdConverter *converter.Converter
	mode        string
}

// NewCleaner creates a Cleaner whose default mode is ModeAuto.
func NewCleaner() *Cleaner {
	return &Cleaner{mdConverter: newMarkdownConverter(), mode: ModeAuto}
}

// NewCleanerWithMode creates a Cleaner with the given default mode. An
// empty mode means ModeAuto.
func NewCleanerWithMode(mode string) (*Cleaner, error) {
	switch mode {
	case "":
		mode = ModeAuto
	case ModeAuto, ModeReadability, ModePruning:
	default:
		return nil, fmt.Errorf("unknown clean mode %q (want auto, readability or pruning)", mode)
	}
	c := NewCleaner()
	c.mode = mode
	return c, nil
}

// Markdown runs the pipeline on rawHTML. An empty mode means the
// cleaner's default mode.
func (c *Cleaner) Markdown(rawHTML, sourceURL, mode string) (*Document, error) {
	if mode == "" {
		mode = c.mode
	}
	// ── 1. Noise removal ────────────────────────────────────────────
	stripped := StripNoise(rawHTML)

	// ── 2. Main-content extraction ──────────────────────────────────
	var article readability.Article
	switch mode {
	case ModeReadability:
		article, _ = ExtractContent(stripped, sourceURL)
	case ModePruning:
		article = pruneArticle(stripped, sourceURL)
	default:
		article = autoExtract(stripped, sourceURL)
	}

	// ── 3. Conversion ───────────────────────────────────────────────
	md, err := ToMarkdown(c.mdConverter, article.Content, sourceURL)
	if err != nil {
		return nil, models.NewRetrievalError(models.ErrCodeInternal, "markdown conversion failed", err)
	}

	// ── 4. Line-level noise ─────────────────────────────────────────
	doc := &Document{
		Title:    strings.TrimSpace(article.Title),
		Byline:   article.Byline,
		SiteName: article.SiteName,
		Markdown: CleanLines(md),
	}
	if doc.Title == "" {
		doc.Title = ExtractMeta(rawHTML).Title
	}
	return doc, nil
}

// Clean applies only the line-level cleaner; used for content that is
// already markdown, such as reader-proxy output.
func (c *Cleaner) Clean(markdown string) string {
	return CleanLines(markdown)
}

func pruneArticle(rawHTML, sourceURL string) readability.Article {
	pruned, err := PruneContent(rawHTML)
	if err != nil {
		slog.Debug("pruning failed, using raw HTML", "url", sourceURL, "error", err)
		pruned = rawHTML
	}
	meta, _ := ExtractContent(rawHTML, sourceURL)
	return readability.Article{
		Title:       meta.Title,
		Byline:      meta.Byline,
		SiteName:    meta.SiteName,
		Content:     pruned,
		TextContent: TextOf(pruned),
	}
}

// autoExtract runs readability and pruning concurrently and keeps the one
// with more text, unless it is ten times longer than a still-usable
// alternative (then it probably swallowed chrome).
func autoExtract(rawHTML, sourceURL string) readability.Article {
	var (
		read     readability.Article
		readOK   bool
		pruned   string
		pruneErr error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		read, readOK = ExtractContent(rawHTML, sourceURL)
	}()
	go func() {
		defer wg.Done()
		pruned, pruneErr = PruneContent(rawHTML)
	}()
	wg.Wait()

	if pruneErr != nil {
		return read
	}

	prunedText := TextOf(pruned)
	readText := strings.TrimSpace(read.TextContent)

	useRead := readOK && len(readText) >= len(prunedText)
	switch {
	case useRead && len(prunedText) > minContentLength && len(readText) > 10*len(prunedText):
		useRead = false
	case !useRead && readOK && len(readText) > minContentLength && len(prunedText) > 10*len(readText):
		useRead = true
	}

	if useRead {
		return read
	}
	return readability.Article{
		Title:       read.Title,
		Byline:      read.Byline,
		SiteName:    read.SiteName,
		Content:     pruned,
		TextContent: prunedText,
	}
}
