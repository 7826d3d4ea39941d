package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/retriever/feeds"
	"github.com/use-agent/retriever/models"
)

var articleCmd = &cobra.Command{
	Use:   "article <url>...",
	Short: "Fetch articles by URL",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return retrieve(cmd, models.KindArticle, feeds.SingleItems(args, category))
	},
}

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Fetch the articles listed in a YAML items file (or a directory of them)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if itemsPath == "" {
			return fmt.Errorf("--items is required")
		}
		f, err := loadItems(itemsPath)
		if err != nil {
			return err
		}
		for feed, cat := range f.Categories() {
			slog.Debug("feed category", "feed", feed, "category", cat)
		}
		items := f.Resolve(category)
		if len(items) == 0 {
			return fmt.Errorf("no items in %s", itemsPath)
		}
		return retrieve(cmd, models.KindArticle, items)
	},
}

var videoCmd = &cobra.Command{
	Use:   "video <url>...",
	Short: "Sniff, download and mux platform videos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return retrieve(cmd, models.KindVideo, feeds.SingleItems(args, ""))
	},
}

func init() {
	articleCmd.Flags().StringVar(&category, "category", "", "Output category directory (default single_url_fetch)")
	articlesCmd.Flags().StringVar(&category, "category", "", "Category for items without feed or category")
	articlesCmd.Flags().StringVar(&itemsPath, "items", "", "YAML items file or directory of *.yaml files")
}

func retrieve(cmd *cobra.Command, kind models.TaskKind, items []models.BatchItem) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.runBatch(cmd.Context(), kind, items)
}

func loadItems(path string) (*feeds.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return feeds.LoadDir(path)
	}
	return feeds.Load(path)
}
