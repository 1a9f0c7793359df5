// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var _ Backend = (*RESTBackend)(nil)

// RESTBackend talks to a PostgREST-compatible row API (one HTTP resource
// per table, filters as query parameters). Every request carries a bearer
// token obtained from the Token hook, so the backend itself stays
// identity-agnostic.
type RESTBackend struct {
	BaseURL string
	Token   func(ctx context.Context) (string, error)
	HTTP    *http.Client
	logger  *slog.Logger
}

// NewRESTBackend creates an HTTP backend. The request timeout guards
// against hung connections stalling a whole push cycle.
func NewRESTBackend(baseURL string, token func(ctx context.Context) (string, error)) *RESTBackend {
	return &RESTBackend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
}

func (b *RESTBackend) Upsert(ctx context.Context, table string, row Row) error {
	if !knownTable(table) {
		return fmt.Errorf("unknown remote table %q", table)
	}
	body, err := json.Marshal([]Row{row})
	if err != nil {
		return fmt.Errorf("failed to encode row for %s: %w", table, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/"+table, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Merge on primary-key conflict so retries never duplicate rows.
	req.Header.Set("Prefer", "resolution=merge-duplicates")
	if err := b.authorize(ctx, req); err != nil {
		return err
	}
	return b.do(req, nil)
}

func (b *RESTBackend) Delete(ctx context.Context, table string, id string) error {
	if !knownTable(table) {
		return fmt.Errorf("unknown remote table %q", table)
	}
	u := fmt.Sprintf("%s/%s?id=eq.%s", b.BaseURL, table, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	if err := b.authorize(ctx, req); err != nil {
		return err
	}
	return b.do(req, nil)
}

func (b *RESTBackend) Select(ctx context.Context, table, column, value string, updatedAfter *time.Time) ([]Row, error) {
	filter := column + "=eq." + url.QueryEscape(value)
	return b.selectWhere(ctx, table, filter, updatedAfter)
}

func (b *RESTBackend) SelectIn(ctx context.Context, table, column string, values []string, updatedAfter *time.Time) ([]Row, error) {
	if len(values) == 0 {
		return nil, nil
	}
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = url.QueryEscape(v)
	}
	filter := column + "=in.(" + strings.Join(escaped, ",") + ")"
	return b.selectWhere(ctx, table, filter, updatedAfter)
}

func (b *RESTBackend) selectWhere(ctx context.Context, table, filter string, updatedAfter *time.Time) ([]Row, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("unknown remote table %q", table)
	}
	u := b.BaseURL + "/" + table + "?" + filter
	if updatedAfter != nil {
		u += "&updated_at=gt." + url.QueryEscape(updatedAfter.UTC().Format(time.RFC3339Nano))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create select request: %w", err)
	}
	if err := b.authorize(ctx, req); err != nil {
		return nil, err
	}
	var rows []Row
	if err := b.do(req, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (b *RESTBackend) authorize(ctx context.Context, req *http.Request) error {
	if b.Token == nil {
		return nil
	}
	token, err := b.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// do executes the request and decodes a JSON body into out when non-nil.
func (b *RESTBackend) do(req *http.Request, out any) error {
	resp, err := b.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
