package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainletter/chainletter/errors"
)

// CursorLatest asks for the newest operations an account has
const CursorLatest int64 = -1

// Client reads ordered account history from the ledger.
// cursor = CursorLatest means "latest"; a positive cursor means "operations at
// or before this sequence id". Results are returned newest-first.
type Client interface {
	AccountHistory(ctx context.Context, account string, cursor int64, filter *Filter, limit int) ([]Operation, error)
}

// RPCClient implements Client against an ordered list of interchangeable
// read endpoints. On any failure it rotates to the next endpoint and retries
// with exponential backoff, bounded by the retry policy, before surfacing
// ErrEndpointsExhausted.
type RPCClient struct {
	endpoints []string
	retry     RetryPolicy
	http      *http.Client
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	current int // index of the endpoint that served the last success
}

// NewRPCClient creates a ledger read client. endpoints must be non-empty.
func NewRPCClient(endpoints []string, retry RetryPolicy, timeout time.Duration, logger *zap.SugaredLogger) (*RPCClient, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("no ledger endpoints configured")
	}
	return &RPCClient{
		endpoints: endpoints,
		retry:     retry,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}, nil
}

type historyRequest struct {
	Method string        `json:"method"`
	Params historyParams `json:"params"`
}

type historyParams struct {
	Account string `json:"account"`
	Start   int64  `json:"start"`
	Limit   int    `json:"limit"`
}

type historyResponse struct {
	History []rawOperation `json:"history"`
	Error   *rpcError      `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AccountHistory fetches one page of history, newest-first. Malformed
// individual operations are skipped and logged; a single bad operation never
// aborts the page. Filtering happens client-side after parsing.
func (c *RPCClient) AccountHistory(ctx context.Context, account string, cursor int64, filter *Filter, limit int) ([]Operation, error) {
	if account == "" {
		return nil, errors.New("account is required")
	}
	if limit <= 0 {
		return nil, errors.Newf("invalid history limit %d", limit)
	}
	if cursor != CursorLatest && cursor < 0 {
		return nil, errors.Wrapf(errors.ErrInvalidCursor, "cursor %d", cursor)
	}

	body, err := json.Marshal(historyRequest{
		Method: "get_account_history",
		Params: historyParams{Account: account, Start: cursor, Limit: limit},
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal history request")
	}

	c.mu.Lock()
	start := c.current
	c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		idx := (start + attempt) % len(c.endpoints)
		endpoint := c.endpoints[idx]

		raw, err := c.post(ctx, endpoint, body)
		if err == nil {
			c.mu.Lock()
			c.current = idx
			c.mu.Unlock()
			return c.parsePage(account, raw, filter), nil
		}
		lastErr = err

		if c.logger != nil {
			c.logger.Warnw("Ledger endpoint failed, rotating",
				"endpoint", endpoint,
				"attempt", attempt+1,
				"error", err)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < c.retry.MaxAttempts-1 {
			if err := c.retry.Sleep(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	return nil, errors.Wrapf(errors.ErrEndpointsExhausted, "last error: %v", lastErr)
}

func (c *RPCClient) post(ctx context.Context, endpoint string, body []byte) ([]rawOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http post")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf("endpoint returned HTTP %d", resp.StatusCode)
	}

	var decoded historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "decode history response")
	}
	if decoded.Error != nil {
		return nil, errors.Newf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	return decoded.History, nil
}

// parsePage converts raw entries to typed operations, dropping malformed and
// unsupported entries.
func (c *RPCClient) parsePage(account string, raws []rawOperation, filter *Filter) []Operation {
	ops := make([]Operation, 0, len(raws))
	for _, raw := range raws {
		op, err := parseOperation(raw)
		if err != nil {
			if !errors.Is(err, errUnsupportedKind) && c.logger != nil {
				c.logger.Warnw("Skipping malformed operation",
					"account", account,
					"seq", raw.Seq,
					"error", err)
			}
			continue
		}
		if !filter.Matches(op.Kind) {
			continue
		}
		ops = append(ops, op)
	}
	return ops
}
