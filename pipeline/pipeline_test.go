package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/llm"
	"github.com/use-agent/retriever/models"
	"github.com/use-agent/retriever/store"
)

// scriptedChat answers each call with the next reply; a nil reply slot
// returns err instead.
type scriptedChat struct {
	mu      sync.Mutex
	replies []string
	errs    map[int]error
	calls   [][]llm.Message
}

func (c *scriptedChat) Chat(_ context.Context, messages []llm.Message, _ llm.ChatOptions) (*llm.ChatResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.calls)
	c.calls = append(c.calls, messages)
	if err := c.errs[n]; err != nil {
		return nil, err
	}
	if n >= len(c.replies) {
		return &llm.ChatResult{Content: "translated"}, nil
	}
	return &llm.ChatResult{Content: c.replies[n]}, nil
}

func (c *scriptedChat) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

var testDate = time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	root := t.TempDir()
	return store.New(config.OutputConfig{ArticlesDir: root, VideosDir: filepath.Join(root, "videos")}), root
}

func writeArticle(t *testing.T, root, category, name, content string) string {
	t.Helper()
	p := filepath.Join(root, store.DateDir(testDate), category, name+".md")
	_, err := store.WriteOnce(p, []byte(content))
	require.NoError(t, err)
	return p
}

func TestSplitHeader(t *testing.T) {
	header, body := splitHeader("# T\n\n**Source URL**: u\n\n---\n\nbody\n---\nmore")
	assert.Equal(t, "# T\n\n**Source URL**: u\n\n---\n", header)
	assert.Equal(t, "\nbody\n---\nmore", body)

	header, body = splitHeader("no header here")
	assert.Empty(t, header)
	assert.Equal(t, "no header here", body)
}

func TestSplitChunks(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitChunks("short", 100))

	p := strings.Repeat("a", 40)
	text := strings.Join([]string{p, p, p, p}, "\n\n")
	chunks := splitChunks(text, 90)
	require.Len(t, chunks, 2)
	assert.Equal(t, p+"\n\n"+p, chunks[0])
	assert.Equal(t, p+"\n\n"+p, chunks[1])
	assert.Equal(t, text, strings.Join(chunks, "\n\n"))

	huge := strings.Repeat("b", 200)
	chunks = splitChunks(p+"\n\n"+huge, 90)
	assert.Equal(t, []string{p, huge}, chunks)
}

func TestTranslator_WritesTranslationWithHeader(t *testing.T) {
	s, root := newStore(t)
	in := writeArticle(t, root, "tag_golang", "Go_Tips", "# Go Tips\n\n**Category**: tag_golang\n\n---\n\nHello world.")

	chat := &scriptedChat{replies: []string{"你好，世界。"}}
	tr := NewTranslator(chat, s)
	tr.Date = testDate

	res := tr.TranslateFile(context.Background(), in)
	require.Equal(t, models.StatusSucceeded, res.Status, res.Error)
	assert.Equal(t, s.TranslatedPath(testDate, "Go_Tips"), res.Output)

	data, err := os.ReadFile(res.Output)
	require.NoError(t, err)
	assert.Equal(t, "# Go Tips\n\n**Category**: tag_golang\n\n---\n你好，世界。", string(data))

	require.Equal(t, 1, chat.count())
	prompt := chat.calls[0][0].Content
	assert.Contains(t, prompt, "Hello world.")
	assert.NotContains(t, prompt, "**Category**", "the header is not sent to the model")
}

func TestTranslator_SkipsExistingAndTranslatedInputs(t *testing.T) {
	s, root := newStore(t)
	in := writeArticle(t, root, "tag_golang", "Go_Tips", "body")
	_, err := store.WriteOnce(s.TranslatedPath(testDate, "Go_Tips"), []byte("已有"))
	require.NoError(t, err)

	chat := &scriptedChat{}
	tr := NewTranslator(chat, s)
	tr.Date = testDate

	assert.Equal(t, models.StatusSkipped, tr.TranslateFile(context.Background(), in).Status)
	assert.Equal(t, models.StatusSkipped, tr.TranslateFile(context.Background(), s.TranslatedPath(testDate, "Go_Tips")).Status)
	assert.Zero(t, chat.count())
}

func TestTranslator_FailedChunksAreMarked(t *testing.T) {
	s, root := newStore(t)
	p := strings.Repeat("x", 30)
	in := writeArticle(t, root, "c", "long", strings.Join([]string{p, p, p}, "\n\n"))

	chat := &scriptedChat{
		replies: []string{"", "", "third"},
		errs:    map[int]error{1: errors.New("upstream 500")},
	}
	tr := NewTranslator(chat, s)
	tr.Date = testDate
	tr.chunkSize = 40

	res := tr.TranslateFile(context.Background(), in)
	require.Equal(t, models.StatusSucceeded, res.Status)
	data, err := os.ReadFile(res.Output)
	require.NoError(t, err)

	want := "\n[Translation Failed for Chunk 1]\n" + p + "\n" +
		"\n\n" + "\n[Translation Error for Chunk 2]\n" +
		"\n\n" + "third"
	assert.Equal(t, want, string(data))
}

func TestTranslator_CanceledWritesNothing(t *testing.T) {
	s, root := newStore(t)
	in := writeArticle(t, root, "c", "post", "body")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := NewTranslator(&scriptedChat{}, s)
	tr.Date = testDate

	res := tr.TranslateFile(ctx, in)
	assert.True(t, res.Failed())
	assert.Equal(t, models.ErrCodeCanceled, res.Error.Code)
	assert.False(t, store.Exists(s.TranslatedPath(testDate, "post")))
}

func TestTranslator_Run(t *testing.T) {
	s, root := newStore(t)
	files := []string{
		writeArticle(t, root, "a", "one", "1"),
		writeArticle(t, root, "a", "two", "2"),
		filepath.Join(root, "missing.md"),
	}

	tr := NewTranslator(&scriptedChat{}, s)
	tr.Date = testDate
	results := tr.Run(context.Background(), files, 2)

	require.Len(t, results, 3)
	assert.Equal(t, models.StatusSucceeded, results[0].Status)
	assert.Equal(t, models.StatusSucceeded, results[1].Status)
	assert.Equal(t, models.StatusFailed, results[2].Status)
	assert.Equal(t, models.ErrCodeInvalidInput, results[2].Error.Code)
}

const goodReport = `score: 82
analysis:
  problem:
    evaluation: "具体"
    quotes: ["we had p99 spikes"]
  scenario:
    evaluation: "清楚"
    quotes: []
  solution:
    evaluation: "有代码"
    quotes: []
  metrics:
    evaluation: "有数据"
    quotes: []
reasoning_summary: "好"
overall_summary: "不错"`

func TestExtractYAML(t *testing.T) {
	assert.Equal(t, "score: 1", extractYAML("here:\n```yaml\nscore: 1\n```\nbye"))
	assert.Equal(t, "score: 2", extractYAML("```\nscore: 2\n```"))
	assert.Equal(t, "score: 3", extractYAML("  score: 3\n"))
}

func TestEvaluator_WritesReport(t *testing.T) {
	s, root := newStore(t)
	in := writeArticle(t, root, "translated", "Go Tips — Part 1_cn", "内容")

	chat := &scriptedChat{replies: []string{"```yaml\n" + goodReport + "\n```"}}
	ev := NewEvaluator(chat, s)
	ev.Date = testDate

	res := ev.EvaluateFile(context.Background(), in)
	require.Equal(t, models.StatusSucceeded, res.Status, res.Error)
	assert.Equal(t, filepath.Join(root, "2025-03-09", "eval", "Go_Tips_Part_1_cn.yaml"), res.Output)

	data, err := os.ReadFile(res.Output)
	require.NoError(t, err)
	assert.Equal(t, goodReport+"\n", string(data))

	require.Equal(t, 1, chat.count())
	assert.Equal(t, "system", chat.calls[0][0].Role)
	assert.Equal(t, "内容", chat.calls[0][1].Content)
}

func TestEvaluator_RetriesOnceOnFormatError(t *testing.T) {
	s, _ := newStore(t)
	chat := &scriptedChat{replies: []string{"This article is great!", goodReport}}
	ev := NewEvaluator(chat, s)

	text, report, err := ev.Evaluate(context.Background(), "t", "content")
	require.NoError(t, err)
	assert.Equal(t, goodReport, text)
	assert.Equal(t, 82, report.Score)
	assert.Equal(t, []string{"we had p99 spikes"}, report.Analysis.Problem.Quotes)

	require.Equal(t, 2, chat.count())
	retry := chat.calls[1]
	require.Len(t, retry, 4)
	assert.Equal(t, "assistant", retry[2].Role)
	assert.Equal(t, "This article is great!", retry[2].Content)
	assert.Equal(t, evalFormatRetry, retry[3].Content)
}

func TestEvaluator_GivesUpAfterOneRetry(t *testing.T) {
	s, root := newStore(t)
	in := writeArticle(t, root, "translated", "bad_cn", "内容")
	chat := &scriptedChat{replies: []string{"nope", "overall: fine"}}
	ev := NewEvaluator(chat, s)
	ev.Date = testDate

	res := ev.EvaluateFile(context.Background(), in)
	assert.True(t, res.Failed())
	assert.Equal(t, models.ErrCodeBadEvalFormat, res.Error.Code)
	assert.Equal(t, 2, chat.count())
	assert.False(t, store.Exists(res.Output))
}

func TestEvaluator_SkipsExisting(t *testing.T) {
	s, root := newStore(t)
	in := writeArticle(t, root, "translated", "done_cn", "内容")
	_, err := store.WriteOnce(s.EvalPath(testDate, "done_cn"), []byte("score: 1\n"))
	require.NoError(t, err)

	chat := &scriptedChat{}
	ev := NewEvaluator(chat, s)
	ev.Date = testDate

	assert.Equal(t, models.StatusSkipped, ev.EvaluateFile(context.Background(), in).Status)
	assert.Zero(t, chat.count())
}

func TestEvaluator_ChatErrorFails(t *testing.T) {
	s, _ := newStore(t)
	chat := &scriptedChat{errs: map[int]error{0: models.NewRetrievalError(models.ErrCodeLLMAuth, "bad key", nil)}}

	_, _, err := NewEvaluator(chat, s).Evaluate(context.Background(), "t", "c")
	assert.Equal(t, models.ErrCodeLLMAuth, models.CodeOf(err))
}
