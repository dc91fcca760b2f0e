package mint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the upstream API surface the sync core needs. Implementations do
// not retry; a failed call surfaces immediately to the caller.
type Client interface {
	// FetchTransactionPage returns one page of raw records. An empty page
	// means the window is exhausted.
	FetchTransactionPage(ctx context.Context, offset, limit int, start, end time.Time) ([]RawRecord, error)
	// SubmitTransactionUpdate PUTs an edit (or POSTs a creation) for txnID.
	SubmitTransactionUpdate(ctx context.Context, txnID string, payload *UpdatePayload, isCreate bool) (UpdateResult, error)
	// FetchTransactionsByID fetches the current upstream state of one
	// transaction, expanded to its split children if it has any.
	FetchTransactionsByID(ctx context.Context, id string) ([]RawRecord, error)
	// FetchCategories, FetchTags and FetchAccounts load the lookup tables.
	FetchCategories(ctx context.Context) ([]Category, error)
	FetchTags(ctx context.Context) ([]Tag, error)
	FetchAccounts(ctx context.Context) ([]Account, error)
}

// HeaderSource supplies session headers for each request. Session
// acquisition is out of scope here; callers own it.
type HeaderSource func() (map[string]string, error)

// HTTPClient talks to the /pfm/v1 API.
type HTTPClient struct {
	BaseURL string
	Headers HeaderSource
	HTTP    *http.Client
}

// NewHTTPClient builds a client with a 30s request timeout.
func NewHTTPClient(baseURL string, headers HeaderSource) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		Headers: headers,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, int, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Headers != nil {
		hdrs, err := c.Headers()
		if err != nil {
			return nil, 0, fmt.Errorf("session headers: %w", err)
		}
		for k, v := range hdrs {
			req.Header.Set(k, v)
		}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

// listEnvelope matches the API's list responses, which wrap the array in a
// field named after the entity type.
type listEnvelope struct {
	Transaction []RawRecord `json:"Transaction"`
	Category    []Category  `json:"Category"`
	Tag         []Tag       `json:"Tag"`
	Account     []Account   `json:"Account"`
}

func (c *HTTPClient) FetchTransactionPage(ctx context.Context, offset, limit int, start, end time.Time) ([]RawRecord, error) {
	q := url.Values{}
	q.Set("offset", fmt.Sprint(offset))
	q.Set("limit", fmt.Sprint(limit))
	q.Set("fromDate", start.Format(time.DateOnly))
	q.Set("toDate", end.Format(time.DateOnly))
	body, status, err := c.do(ctx, http.MethodGet, "/pfm/v1/transactions", q, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch transactions: status %d: %s", status, body)
	}
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("fetch transactions: decode: %w", err)
	}
	return env.Transaction, nil
}

func (c *HTTPClient) SubmitTransactionUpdate(ctx context.Context, txnID string, payload *UpdatePayload, isCreate bool) (UpdateResult, error) {
	method := http.MethodPut
	if isCreate {
		method = http.MethodPost
	}
	body, status, err := c.do(ctx, method, "/pfm/v1/transactions/"+txnID, nil, payload)
	if err != nil {
		return UpdateResult{}, err
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return UpdateResult{Success: true, ResponseBody: body}, nil
	}
	return UpdateResult{ResponseBody: body}, fmt.Errorf("update transaction %s: status %d: %s", txnID, status, body)
}

func (c *HTTPClient) FetchTransactionsByID(ctx context.Context, id string) ([]RawRecord, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/pfm/v1/transactions/"+id, nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch transaction %s: status %d: %s", id, status, body)
	}
	// The endpoint returns either a single record or an array of them.
	var one RawRecord
	if err := json.Unmarshal(body, &one); err == nil && one.ID != "" {
		return []RawRecord{one}, nil
	}
	var many []RawRecord
	if err := json.Unmarshal(body, &many); err != nil {
		return nil, fmt.Errorf("fetch transaction %s: decode: %w", id, err)
	}
	return many, nil
}

func (c *HTTPClient) fetchList(ctx context.Context, path string, limit int) (listEnvelope, error) {
	q := url.Values{}
	q.Set("offset", "0")
	q.Set("limit", fmt.Sprint(limit))
	body, status, err := c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return listEnvelope{}, err
	}
	if status != http.StatusOK {
		return listEnvelope{}, fmt.Errorf("fetch %s: status %d: %s", path, status, body)
	}
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return listEnvelope{}, fmt.Errorf("fetch %s: decode: %w", path, err)
	}
	return env, nil
}

func (c *HTTPClient) FetchCategories(ctx context.Context) ([]Category, error) {
	env, err := c.fetchList(ctx, "/pfm/v1/categories", 500)
	return env.Category, err
}

func (c *HTTPClient) FetchTags(ctx context.Context) ([]Tag, error) {
	env, err := c.fetchList(ctx, "/pfm/v1/tags", 500)
	return env.Tag, err
}

func (c *HTTPClient) FetchAccounts(ctx context.Context) ([]Account, error) {
	env, err := c.fetchList(ctx, "/pfm/v1/accounts", 1000)
	return env.Account, err
}
