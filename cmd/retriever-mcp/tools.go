package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/retriever/models"
)

// apiClient talks to the retriever HTTP API.
type apiClient struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	pollStep time.Duration
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		pollStep: 2 * time.Second,
	}
}

// do sends a request and decodes a 2xx body into out. Error bodies are
// surfaced with their code.
func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var er models.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != nil {
			return fmt.Errorf("[%s] %s", er.Error.Code, er.Error.Message)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *apiClient) submit(ctx context.Context, req models.BatchRequest) (*models.BatchResponse, error) {
	var resp models.BatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) status(ctx context.Context, id string) (*models.BatchStatusResponse, error) {
	var resp models.BatchStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/batch/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// wait polls a batch until it leaves the processing state.
func (c *apiClient) wait(ctx context.Context, id string) (*models.BatchStatusResponse, error) {
	ticker := time.NewTicker(c.pollStep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			st, err := c.status(ctx, id)
			if err != nil {
				return nil, err
			}
			if st.Status != models.BatchProcessing {
				return st, nil
			}
		}
	}
}

func handleRetrieve(c *apiClient, kind string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil || len(urls) == 0 {
			return mcp.NewToolResultError("urls is required and must be a non-empty array of strings"), nil
		}

		accepted, err := c.submit(ctx, models.BatchRequest{
			Kind:     kind,
			URLs:     urls,
			Category: request.GetString("category", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}

		if !request.GetBool("wait", true) {
			return mcp.NewToolResultText(fmt.Sprintf("Batch %s accepted: %d %s URLs. Use batch_status to follow it.", accepted.ID, accepted.Total, kind)), nil
		}

		st, err := c.wait(ctx, accepted.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch %s failed: %v", accepted.ID, err)), nil
		}
		return mcp.NewToolResultText(formatStatus(st)), nil
	}
}

func handleBatchStatus(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		st, err := c.status(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch status failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatStatus(st)), nil
	}
}

func formatStatus(st *models.BatchStatusResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s (%s): %s, %d/%d done\n", st.ID, st.Kind, st.Status, st.Completed, st.Total)
	if s := st.Summary; s != nil {
		fmt.Fprintf(&sb, "succeeded %d, skipped %d, failed %d\n", s.Succeeded, s.Skipped, s.Failed)
	}
	sb.WriteString("\n")

	for i, r := range st.Results {
		switch r.Status {
		case "":
			fmt.Fprintf(&sb, "[%d] pending\n", i+1)
		case models.StatusFailed:
			msg := "unknown error"
			if r.Error != nil {
				msg = fmt.Sprintf("[%s] %s", r.Error.Code, r.Error.Message)
			}
			fmt.Fprintf(&sb, "[%d] FAILED %s: %s (tried %s)\n", i+1, r.URL, msg, strings.Join(r.Tried, ", "))
		default:
			fmt.Fprintf(&sb, "[%d] %s %s -> %s", i+1, strings.ToUpper(r.Status), r.URL, r.OutputPath)
			if r.Strategy != "" {
				fmt.Fprintf(&sb, " via %s", r.Strategy)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
