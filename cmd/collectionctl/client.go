package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vitaliisemenov/collectionengine/pkg/transport"
)

type wireChange struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data Note   `json:"data"`
}

type wireRequest struct {
	Scope   *string      `json:"scope,omitempty"`
	Query   *NoteQuery   `json:"query,omitempty"`
	Changes []wireChange `json:"changes,omitempty"`
}

type wireResponse struct {
	Results         []Note          `json:"results,omitempty"`
	SyncResults     json.RawMessage `json:"syncResults,omitempty"`
	ServerTimeStamp *time.Time      `json:"serverTimeStamp,omitempty"`
}

// httpHandler builds a transport.Handler that POSTs each collection request
// as JSON to baseURL's single endpoint, matching pkg/transport/httptransport's
// wire shape on the other end.
func httpHandler(httpClient *http.Client, baseURL string) transport.Handler[Note, NoteQuery] {
	return func(ctx context.Context, req transport.Request[Note, NoteQuery]) (transport.Response[Note], error) {
		wireReq := wireRequest{Scope: req.Scope, Query: req.Query}
		for _, c := range req.Changes {
			wireReq.Changes = append(wireReq.Changes, wireChange{ID: c.ID, Type: string(c.Type), Data: c.Data})
		}

		body, err := json.Marshal(wireReq)
		if err != nil {
			return transport.Response[Note]{}, fmt.Errorf("collectionctl: encode request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(body))
		if err != nil {
			return transport.Response[Note]{}, fmt.Errorf("collectionctl: build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(httpReq)
		if err != nil {
			return transport.Response[Note]{}, fmt.Errorf("collectionctl: request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return transport.Response[Note]{}, fmt.Errorf("collectionctl: server returned %s", resp.Status)
		}

		var wireResp wireResponse
		if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
			return transport.Response[Note]{}, fmt.Errorf("collectionctl: decode response: %w", err)
		}

		syncResults, err := transport.ParseSyncResults(wireResp.SyncResults)
		if err != nil {
			return transport.Response[Note]{}, fmt.Errorf("collectionctl: decode sync results: %w", err)
		}

		return transport.Response[Note]{
			Results:         wireResp.Results,
			SyncResults:     syncResults,
			ServerTimeStamp: wireResp.ServerTimeStamp,
		}, nil
	}
}
