package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/use-agent/retriever/llm"
	"github.com/use-agent/retriever/models"
	"github.com/use-agent/retriever/store"
)

// DefaultChunkSize bounds one translation request, in characters.
const DefaultChunkSize = 20000

const headerSeparator = "\n---\n"

const translatePrompt = `目标：将以下 Markdown 内容翻译为专业、流畅的中文，并清理排版。

内容：
%s

要求：
1. 清洗与排版：
   - 去除噪音：识别并去除原文中混入的网页 UI 元素文本（如 "Listen", "Share", "Follow", "Just now", "min read", "Press enter to view" 等）。
   - 格式规范：修复多余的空行，确保段落之间只有一行空行。
2. 准确翻译：
   - 准确传达原意，行文流畅，符合中文技术阅读习惯。
   - 术语保留：专业术语、特有概念或不确定的表达，采用 "中文翻译 (Original English Phrase)" 的格式，例如 "提示工程 (Prompt Engineering)"。
3. 结构保持：保持原文的 Markdown 结构（标题、代码块、列表）。
4. 输出：仅返回翻译后的 Markdown 内容，不要包含任何额外的解释。`

// Translator writes a Chinese translation of each article to
// <articles>/<date>/translated/<name>_cn.md.
type Translator struct {
	chat      Chatter
	store     *store.Store
	chunkSize int

	// Date selects the output day directory; zero means today.
	Date time.Time
}

// NewTranslator creates a Translator with the default chunk size.
func NewTranslator(chat Chatter, s *store.Store) *Translator {
	return &Translator{chat: chat, store: s, chunkSize: DefaultChunkSize}
}

// Run translates files with at most concurrency requests in flight.
func (t *Translator) Run(ctx context.Context, files []string, concurrency int) []FileResult {
	return runFiles(ctx, "translate", files, concurrency, t.TranslateFile)
}

// TranslateFile translates one article. The metadata header above the first
// "---" line is kept verbatim; only the body is sent to the model.
func (t *Translator) TranslateFile(ctx context.Context, path string) FileResult {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.HasSuffix(name, "_cn") {
		return FileResult{Input: path, Status: models.StatusSkipped}
	}

	out := t.store.TranslatedPath(t.date(), name)
	if store.Exists(out) {
		slog.Info("translation exists, skipping", "input", path, "output", out)
		return FileResult{Input: path, Output: out, Status: models.StatusSkipped}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return failedResult(path, out, models.NewRetrievalError(models.ErrCodeInvalidInput, "read article", err))
	}

	header, body := splitHeader(string(data))
	translated, err := t.translateBody(ctx, body)
	if err != nil {
		return failedResult(path, out, err)
	}

	written, err := store.WriteOnce(out, []byte(header+translated))
	if err != nil {
		return failedResult(path, out, err)
	}
	if !written {
		return FileResult{Input: path, Output: out, Status: models.StatusSkipped}
	}
	return FileResult{Input: path, Output: out, Status: models.StatusSucceeded}
}

// translateBody translates chunk by chunk. A failed chunk is replaced by a
// marker so one bad request does not lose the rest of the article; only
// cancellation aborts the file.
func (t *Translator) translateBody(ctx context.Context, body string) (string, error) {
	chunks := splitChunks(body, t.chunkSize)
	if len(chunks) > 1 {
		slog.Info("article split for translation", "chunks", len(chunks), "chars", utf8.RuneCountInString(body))
	}

	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", models.NewRetrievalError(models.ErrCodeCanceled, "translation canceled", err)
		}
		res, err := t.chat.Chat(ctx, []llm.Message{llm.User(fmt.Sprintf(translatePrompt, chunk))}, llm.ChatOptions{Temperature: 0.3})
		switch {
		case err != nil && ctx.Err() != nil:
			return "", models.NewRetrievalError(models.ErrCodeCanceled, "translation canceled", ctx.Err())
		case err != nil:
			slog.Error("chunk translation failed", "chunk", i+1, "error", err)
			parts = append(parts, fmt.Sprintf("\n[Translation Error for Chunk %d]\n", i+1))
		case strings.TrimSpace(res.Content) == "":
			slog.Warn("chunk translation empty", "chunk", i+1)
			parts = append(parts, fmt.Sprintf("\n[Translation Failed for Chunk %d]\n%s\n", i+1, chunk))
		default:
			parts = append(parts, res.Content)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func (t *Translator) date() time.Time {
	if t.Date.IsZero() {
		return time.Now()
	}
	return t.Date
}

// splitHeader separates the article header (kept with its separator line)
// from the body. Files without a header are all body.
func splitHeader(content string) (header, body string) {
	i := strings.Index(content, headerSeparator)
	if i < 0 {
		return "", content
	}
	return content[:i] + headerSeparator, content[i+len(headerSeparator):]
}

// splitChunks groups paragraphs into chunks of at most limit characters,
// counting the blank line that joins them. A single oversized paragraph
// becomes its own chunk.
func splitChunks(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current []string
		size    int
	)
	for _, p := range strings.Split(text, "\n\n") {
		n := utf8.RuneCountInString(p) + 2
		if size+n > limit && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current, size = nil, 0
		}
		current = append(current, p)
		size += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}
	return chunks
}
