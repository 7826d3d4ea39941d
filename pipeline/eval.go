package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/use-agent/retriever/llm"
	"github.com/use-agent/retriever/models"
	"github.com/use-agent/retriever/store"
)

const evalSystemPrompt = `你是一位严格的技术文章评审专家。请根据以下四个维度对给定的技术文章进行打分（0-100分）。

评分维度（各占25分）：
1. 问题具体性 (Specific Problem)：文章是否提出了具体的问题和应用场景？
2. 场景描述 (Scenario Detail)：是否对具体场景进行了详细描述和说明？
3. 解决方案 (Concrete Solution)：是否给出了针对该场景和问题的具体解决方案（代码/Prompt/步骤）？
4. 可验证性 (Verifiable Metrics)：是否提供了可验证、可度量的指标或评测结果？

关键指令：
- 必须且只能返回一段 YAML 格式的文本。
- 严禁包含 Markdown 标记。
- 严禁包含任何前言、后语或解释性文字。
- 如果找不到原文引用，quotes 必须为空 []。

YAML 输出模板：
score: <0-100的整数>
analysis:
  problem:
    evaluation: "<评价内容>"
    quotes:
      - "<原文引用>"
  scenario:
    evaluation: "<评价内容>"
    quotes: []
  solution:
    evaluation: "<评价内容>"
    quotes: []
  metrics:
    evaluation: "<评价内容>"
    quotes: []
reasoning_summary: "<评分理由>"
overall_summary: "<一句话综述>"`

const evalFormatRetry = `输出格式错误。请仅输出标准的 YAML 格式，包含 score, analysis, reasoning_summary, overall_summary 字段。
不要输出 Markdown 标题或其他文本。`

var (
	yamlFenceRe = regexp.MustCompile("(?s)```yaml\\s*(.*?)\\s*```")
	anyFenceRe  = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
)

// Dimension is one scored aspect of an evaluation.
type Dimension struct {
	Evaluation string   `yaml:"evaluation"`
	Quotes     []string `yaml:"quotes"`
}

// Report is the evaluation the model returns for one article.
type Report struct {
	Score    int `yaml:"score"`
	Analysis struct {
		Problem  Dimension `yaml:"problem"`
		Scenario Dimension `yaml:"scenario"`
		Solution Dimension `yaml:"solution"`
		Metrics  Dimension `yaml:"metrics"`
	} `yaml:"analysis"`
	ReasoningSummary string `yaml:"reasoning_summary"`
	OverallSummary   string `yaml:"overall_summary"`
}

// Evaluator scores articles and writes the YAML report to
// <articles>/<date>/eval/<title>.yaml.
type Evaluator struct {
	chat  Chatter
	store *store.Store

	// Date selects the output day directory; zero means today.
	Date time.Time
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(chat Chatter, s *store.Store) *Evaluator {
	return &Evaluator{chat: chat, store: s}
}

// Run evaluates files with at most concurrency requests in flight.
func (e *Evaluator) Run(ctx context.Context, files []string, concurrency int) []FileResult {
	return runFiles(ctx, "eval", files, concurrency, e.EvaluateFile)
}

// EvaluateFile scores one article file.
func (e *Evaluator) EvaluateFile(ctx context.Context, path string) FileResult {
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	date := e.Date
	if date.IsZero() {
		date = time.Now()
	}

	out := e.store.EvalPath(date, title)
	if store.Exists(out) {
		slog.Info("evaluation exists, skipping", "input", path, "output", out)
		return FileResult{Input: path, Output: out, Status: models.StatusSkipped}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return failedResult(path, out, models.NewRetrievalError(models.ErrCodeInvalidInput, "read article", err))
	}

	text, report, err := e.Evaluate(ctx, title, string(data))
	if err != nil {
		return failedResult(path, out, err)
	}

	written, err := store.WriteOnce(out, []byte(text+"\n"))
	if err != nil {
		return failedResult(path, out, err)
	}
	if !written {
		return FileResult{Input: path, Output: out, Status: models.StatusSkipped}
	}
	slog.Info("evaluation saved", "title", title, "score", report.Score, "output", out)
	return FileResult{Input: path, Output: out, Status: models.StatusSucceeded}
}

// Evaluate asks the model for a report on content. A reply that is not a
// YAML mapping with a score is answered once with a format correction.
// It returns the cleaned YAML text together with its decoded form.
func (e *Evaluator) Evaluate(ctx context.Context, title, content string) (string, *Report, error) {
	messages := []llm.Message{llm.System(evalSystemPrompt), llm.User(content)}

	res, err := e.chat.Chat(ctx, messages, llm.ChatOptions{Temperature: 0.2})
	if err != nil {
		return "", nil, err
	}
	if text, report, ok := parseReport(res.Content); ok {
		return text, report, nil
	}

	slog.Warn("evaluation reply malformed, retrying", "title", title)
	messages = append(messages,
		llm.Message{Role: "assistant", Content: res.Content},
		llm.User(evalFormatRetry),
	)
	res, err = e.chat.Chat(ctx, messages, llm.ChatOptions{Temperature: 0.2})
	if err != nil {
		return "", nil, err
	}
	if text, report, ok := parseReport(res.Content); ok {
		return text, report, nil
	}
	return "", nil, models.NewRetrievalError(models.ErrCodeBadEvalFormat, "reply is not a YAML report with a score", nil)
}

// extractYAML returns the body of a ```yaml (or bare ```) fence, or the
// trimmed reply when it carries none.
func extractYAML(reply string) string {
	if m := yamlFenceRe.FindStringSubmatch(reply); m != nil {
		return m[1]
	}
	if m := anyFenceRe.FindStringSubmatch(reply); m != nil {
		return m[1]
	}
	return strings.TrimSpace(reply)
}

func parseReport(reply string) (string, *Report, bool) {
	text := extractYAML(reply)

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return "", nil, false
	}
	if _, ok := raw["score"]; !ok {
		return "", nil, false
	}

	// Reports with loosely typed fields are still kept as written.
	var report Report
	_ = yaml.Unmarshal([]byte(text), &report)
	return text, &report, true
}
