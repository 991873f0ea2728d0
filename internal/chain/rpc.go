package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

var (
	ErrNoEndpoints   = errors.New("no RPC endpoints configured")
	ErrBlockNotFound = errors.New("block not found")
)

// Reader executes read-only contract calls. A nil block reads the latest state.
type Reader interface {
	Call(ctx context.Context, to string, data []byte, block *big.Int) ([]byte, error)
}

// BlockSource exposes block headers.
type BlockSource interface {
	LatestBlock(ctx context.Context) (types.Block, error)
	BlockByNumber(ctx context.Context, number uint64) (types.Block, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	URLs           []string      // first is primary, the rest are fallbacks
	Timeout        time.Duration // per HTTP request
	RequestsPerSec float64       // 0 disables rate limiting
}

// Client is a minimal Ethereum JSON-RPC client for eth_call and block lookups.
// Each endpoint sits behind its own circuit breaker; a shared limiter caps the request rate.
type Client struct {
	urls       []string
	breakers   []*gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	httpClient *http.Client
	requestID  atomic.Int64
	logger     zerolog.Logger
}

// NewClient creates a new RPC client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if len(cfg.URLs) == 0 {
		return nil, ErrNoEndpoints
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		urls:       cfg.URLs,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.GetForComponent("rpc_client"),
	}
	if cfg.RequestsPerSec > 0 {
		burst := int(cfg.RequestsPerSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}

	for _, url := range cfg.URLs {
		endpoint := url
		c.breakers = append(c.breakers, gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    endpoint,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// A contract revert is an answer, not an unhealthy node.
			IsSuccessful: func(err error) bool {
				var rpcErr *RPCError
				return err == nil || errors.As(err, &rpcErr)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn().Str("endpoint", name).Str("from", from.String()).Str("to", to.String()).Msg("RPC circuit breaker changed state")
			},
		}))
	}
	return c, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error answered by the node, e.g. an execution revert.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// BlockTag renders a block number as a JSON-RPC block parameter.
func BlockTag(block *big.Int) string {
	if block == nil {
		return "latest"
	}
	return "0x" + block.Text(16)
}

// Call executes a read-only contract call (eth_call) and returns the raw result bytes.
func (c *Client) Call(ctx context.Context, to string, data []byte, block *big.Int) ([]byte, error) {
	params := []interface{}{
		map[string]string{
			"to":   to,
			"data": "0x" + hex.EncodeToString(data),
		},
		BlockTag(block),
	}

	raw, err := c.do(ctx, "eth_call", params)
	if err != nil {
		return nil, err
	}

	var hexResult string
	if err := json.Unmarshal(raw, &hexResult); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return hex.DecodeString(strings.TrimPrefix(hexResult, "0x"))
}

type rpcBlock struct {
	Number    string `json:"number"`
	Timestamp string `json:"timestamp"`
}

// LatestBlock returns the head of the chain.
func (c *Client) LatestBlock(ctx context.Context) (types.Block, error) {
	return c.blockByTag(ctx, "latest")
}

// BlockByNumber returns the header of a historical block.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (types.Block, error) {
	return c.blockByTag(ctx, "0x"+strconv.FormatUint(number, 16))
}

func (c *Client) blockByTag(ctx context.Context, tag string) (types.Block, error) {
	raw, err := c.do(ctx, "eth_getBlockByNumber", []interface{}{tag, false})
	if err != nil {
		return types.Block{}, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return types.Block{}, fmt.Errorf("%w: %s", ErrBlockNotFound, tag)
	}

	var b rpcBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return types.Block{}, fmt.Errorf("unmarshal block: %w", err)
	}
	number, err := strconv.ParseUint(strings.TrimPrefix(b.Number, "0x"), 16, 64)
	if err != nil {
		return types.Block{}, fmt.Errorf("parse block number %q: %w", b.Number, err)
	}
	timestamp, err := strconv.ParseInt(strings.TrimPrefix(b.Timestamp, "0x"), 16, 64)
	if err != nil {
		return types.Block{}, fmt.Errorf("parse block timestamp %q: %w", b.Timestamp, err)
	}
	return types.Block{Number: number, Timestamp: timestamp}, nil
}

// do sends the request to each endpoint in turn until one answers.
// Node errors are returned as is, without trying the fallbacks.
func (c *Client) do(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for i, url := range c.urls {
		result, err := c.breakers[i].Execute(func() (interface{}, error) {
			return c.doRequest(ctx, url, req)
		})
		if err == nil {
			return result.(json.RawMessage), nil
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, err
		}
		c.logger.Debug().Err(err).Str("endpoint", url).Str("method", method).Msg("RPC endpoint failed, trying next")
		lastErr = err
	}
	return nil, fmt.Errorf("all RPC endpoints failed: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, url string, req rpcRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}
