package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OracleClient talks to the text-generation service used for free-text grant
// search. The core's responsibility stops at building the candidate list and
// context string; ranking quality is the oracle's problem.
type OracleClient struct {
	BaseURL string
	Model   string
	client  *http.Client
}

func NewOracleClient(baseURL, model string) *OracleClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2:latest"
	}
	return &OracleClient{
		BaseURL: baseURL,
		Model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// RankedGrant is one entry in the oracle's ranked answer.
type RankedGrant struct {
	GrantID string `json:"grantId"`
	Score   int    `json:"score"`
	Reason  string `json:"reason"`
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// RankFreeText asks the oracle to rank pre-filtered candidates against a
// free-text query plus the organisation context. Only grant IDs we sent are
// kept; anything hallucinated is dropped.
func (c *OracleClient) RankFreeText(ctx context.Context, query, orgContext string, candidates []CandidateGrant) ([]RankedGrant, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	candidateJSON, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding candidates: %w", err)
	}

	prompt := fmt.Sprintf(`You are a grant funding advisor for UK voluntary sector organisations.

ORGANISATION:
%s

SEARCH QUERY: %s

CANDIDATE GRANTS (JSON):
%s

Rank the candidates by how well they answer the query for this organisation.
Return ONLY a JSON object of this shape, best match first:
{"results": [{"grantId": "string", "score": 0-100, "reason": "one short sentence"}]}
Only use grantId values from the candidate list.`, orgContext, query, string(candidateJSON))

	reqBody := generateRequest{Model: c.Model, Prompt: prompt, Format: "json", Stream: false}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding oracle response: %w", err)
	}

	return parseRanking(parsed.Response, candidates)
}

// parseRanking decodes the oracle's JSON and filters it to known IDs with
// sane scores. Accepts either the documented object shape or a bare array.
func parseRanking(raw string, candidates []CandidateGrant) ([]RankedGrant, error) {
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.GrantID] = true
	}

	var wrapped struct {
		Results []RankedGrant `json:"results"`
	}
	var results []RankedGrant
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil {
		results = wrapped.Results
	} else if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, fmt.Errorf("oracle answer is not valid ranking JSON: %w", err)
	}

	var valid []RankedGrant
	for _, r := range results {
		if !known[r.GrantID] {
			continue
		}
		if r.Score < 0 {
			r.Score = 0
		}
		if r.Score > 100 {
			r.Score = 100
		}
		valid = append(valid, r)
	}
	return valid, nil
}
