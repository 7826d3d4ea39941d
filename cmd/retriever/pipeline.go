package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/retriever/llm"
	"github.com/use-agent/retriever/models"
	"github.com/use-agent/retriever/pipeline"
	"github.com/use-agent/retriever/store"
)

var pipelineDate string

var translateCmd = &cobra.Command{
	Use:   "translate [file.md]...",
	Short: "Translate retrieved articles to Chinese",
	Long:  `Translates the given article files, or every article retrieved on --date when none are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, st, date, err := pipelineDeps()
		if err != nil {
			return err
		}
		files := args
		if len(files) == 0 {
			if files, err = st.ArticleFiles(date); err != nil {
				return err
			}
		}

		t := pipeline.NewTranslator(client, st)
		t.Date = date
		return reportFiles(t.Run(cmd.Context(), files, cfg.Scheduler.Concurrency))
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval [file.md]...",
	Short: "Score articles and write YAML evaluation reports",
	Long:  `Evaluates the given files, or every translation written on --date when none are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, st, date, err := pipelineDeps()
		if err != nil {
			return err
		}
		files := args
		if len(files) == 0 {
			if files, err = st.TranslatedFiles(date); err != nil {
				return err
			}
		}

		e := pipeline.NewEvaluator(client, st)
		e.Date = date
		return reportFiles(e.Run(cmd.Context(), files, cfg.Scheduler.Concurrency))
	},
}

func init() {
	for _, c := range []*cobra.Command{translateCmd, evalCmd} {
		c.Flags().StringVar(&pipelineDate, "date", "", "Day directory to read and write (YYYY-MM-DD, default today)")
	}
}

func pipelineDeps() (*llm.Client, *store.Store, time.Time, error) {
	if cfg.LLM.APIKey == "" {
		return nil, nil, time.Time{}, fmt.Errorf("RETRIEVER_LLM_API_KEY is required")
	}
	date := time.Now()
	if pipelineDate != "" {
		d, err := time.ParseInLocation(store.DateLayout, pipelineDate, time.Local)
		if err != nil {
			return nil, nil, time.Time{}, fmt.Errorf("invalid --date: %w", err)
		}
		date = d
	}
	return llm.NewClient(cfg.LLM, nil), store.New(cfg.Output), date, nil
}

func reportFiles(results []pipeline.FileResult) error {
	statuses := make([]models.TaskStatus, len(results))
	for i, r := range results {
		statuses[i] = models.TaskStatus{URL: r.Input, Status: r.Status, OutputPath: r.Output, Error: r.Error}
	}
	summary := models.Summarize(statuses)
	printReport(struct {
		Summary models.BatchSummary   `json:"summary"`
		Results []pipeline.FileResult `json:"results"`
	}{summary, results})
	return exitFor(summary)
}
