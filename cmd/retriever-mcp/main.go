package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("RETRIEVER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("RETRIEVER_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "RETRIEVER_API_KEY is required")
		os.Exit(1)
	}

	c := newAPIClient(apiURL, apiKey)

	s := server.NewMCPServer(
		"retriever",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("retrieve_articles",
		mcp.WithDescription("Fetch web articles through the shared browser and save them as markdown. Falls back to reader, cache and archive copies when the page itself is blocked. Waits for the batch and returns one status line per URL."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("Article URLs to fetch (at most 100)"),
		),
		mcp.WithString("category",
			mcp.Description("Output category directory (default: single_url_fetch)"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the batch to finish (default: true). When false, returns the batch id for batch_status."),
		),
	), handleRetrieve(c, "article"))

	s.AddTool(mcp.NewTool("retrieve_videos",
		mcp.WithDescription("Play platform video pages (Douyin, Toutiao and others) in the shared browser, capture the media streams and save a muxed mp4 per URL."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("Video page URLs"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the batch to finish (default: true)"),
		),
	), handleRetrieve(c, "video"))

	s.AddTool(mcp.NewTool("batch_status",
		mcp.WithDescription("Report progress and per-URL results of a retrieval batch."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Batch id returned by retrieve_articles or retrieve_videos"),
		),
	), handleBatchStatus(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
