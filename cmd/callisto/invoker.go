package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"veridian-hq/callisto/pkg/config"
	"veridian-hq/callisto/pkg/dispatch"
)

// httpInvoker forwards tier calls to the upstream endpoint configured for
// each tier. The payload is posted as JSON. A 429 from the upstream maps
// to the dispatcher's rate-limit sentinel so the call is retried with
// backoff; any other non-2xx status is terminal.
type httpInvoker struct {
	endpoints map[dispatch.Tier]string
	client    *http.Client
}

func newHTTPInvoker(tiers map[string]config.TierConfig) *httpInvoker {
	endpoints := make(map[dispatch.Tier]string, len(tiers))
	for name, tier := range tiers {
		if tier.Endpoint != "" {
			endpoints[dispatch.Tier(name)] = tier.Endpoint
		}
	}
	return &httpInvoker{
		endpoints: endpoints,
		client:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (i *httpInvoker) Invoke(ctx context.Context, tier dispatch.Tier, payload any, estimatedTokens int) (*dispatch.TierResult, error) {
	endpoint, ok := i.endpoints[tier]
	if !ok {
		return nil, fmt.Errorf("tier %s has no endpoint configured", tier)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Estimated-Tokens", strconv.Itoa(estimatedTokens))

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("tier %s: %w", tier, dispatch.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("tier %s returned status %d", tier, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading tier %s response: %w", tier, err)
	}

	result := &dispatch.TierResult{Value: json.RawMessage(data), ActualCost: -1}
	if v := resp.Header.Get("X-Tokens-Used"); v != "" {
		if tokens, err := strconv.Atoi(v); err == nil {
			result.ActualTokens = tokens
		}
	}
	return result, nil
}
