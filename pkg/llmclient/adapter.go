package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// InvokeRequest is the wire request sent to the LLM adapter service's
// model-call-and-tool-loop endpoint.
type InvokeRequest struct {
	RunID           string                     `json:"run_id"`
	AgentID         string                     `json:"agent_id"`
	Model           string                     `json:"model"`
	Prompt          string                     `json:"prompt"`
	UserDirective   string                     `json:"user_directive"`
	InputData       map[string]json.RawMessage `json:"input_data"`
	ParentSignature *string                    `json:"parent_signature"`
	CachedContentID *string                    `json:"cached_content_id"`
	ThinkingLevel   *int                       `json:"thinking_level"`
	FilePaths       []string                   `json:"file_paths"`
	Tools           []string                   `json:"tools"`
	AllowDelegation bool                       `json:"allow_delegation"`
	GraphView       string                     `json:"graph_view"`
}

// InvokeOutput is the adapter's reported work product for a
// successful or partially-successful invocation.
type InvokeOutput struct {
	Result         string   `json:"result,omitempty"`
	FilesGenerated []string `json:"files_generated,omitempty"`
	ArtifactStored bool     `json:"artifact_stored,omitempty"`
}

// Delegation describes a privileged agent's request to mutate the
// graph, carried on a successful response.
type Delegation struct {
	Reason   string                     `json:"reason"`
	Strategy string                     `json:"strategy"`
	NewNodes []map[string]json.RawMessage `json:"new_nodes"`
}

// InvokeResponse is the wire response from the LLM adapter.
type InvokeResponse struct {
	AgentID          string        `json:"agent_id"`
	Success          bool          `json:"success"`
	Output           *InvokeOutput `json:"output"`
	Error            *string       `json:"error"`
	TokensUsed       int           `json:"tokens_used"`
	InputTokens      int           `json:"input_tokens"`
	OutputTokens     int           `json:"output_tokens"`
	CacheHit         bool          `json:"cache_hit"`
	CachedContentID  *string       `json:"cached_content_id"`
	LatencyMS        int           `json:"latency_ms"`
	ThoughtSignature *string       `json:"thought_signature"`
	ExecutedTools    []string      `json:"executed_tools"`
	Delegation       *Delegation   `json:"delegation"`
}

// AdapterClient dispatches invocations to, and cleans up after, the
// external LLM adapter HTTP service.
type AdapterClient struct {
	httpClient *Client
	baseURL    string
}

// NewAdapterClient wraps the retrying Client with the adapter's base
// URL (e.g. "http://localhost:9100").
func NewAdapterClient(baseURL string, opts ...Option) *AdapterClient {
	return &AdapterClient{
		httpClient: New(opts...),
		baseURL:    baseURL,
	}
}

// Invoke POSTs req to the adapter's invocation endpoint and decodes
// its response. Transport and non-2xx errors are returned as-is for
// the scheduler to classify as a transport failure (§7).
func (a *AdapterClient) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llmclient: marshal invoke request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/runtime/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llmclient: build invoke request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llmclient: invoke transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("llmclient: invoke returned status %d", resp.StatusCode)
	}

	var out InvokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("llmclient: decode invoke response: %w", err)
	}
	return &out, nil
}

// Cleanup fires DELETE /runtime/{run_id}/cleanup so the adapter can
// release per-run sandbox resources once a run reaches a terminal
// status. The request goes through the same retrying Client as
// Invoke, so retryable status codes (429, 5xx) are retried before an
// error is returned; the caller only logs that error.
func (a *AdapterClient) Cleanup(ctx context.Context, runID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/runtime/%s/cleanup", a.baseURL, runID), nil)
	if err != nil {
		return fmt.Errorf("llmclient: build cleanup request: %w", err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("llmclient: cleanup transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("llmclient: cleanup returned status %d", resp.StatusCode)
	}
	return nil
}
