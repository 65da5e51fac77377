// Package kaspa implements the ledger query service over the public Kaspa
// REST API. Requests are rate limited per endpoint, retried with backoff on
// transient failures and guarded by a circuit breaker.
package kaspa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/chain"
	"github.com/mrz1836/sompi/internal/keys"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

const (
	// defaultTimeout is the HTTP client timeout; per-call deadlines from the
	// caller's context are normally shorter.
	defaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 16 << 20

	// maxRetryAfterWait caps how long a 429 Retry-After is honored.
	maxRetryAfterWait = 5 * time.Second
)

// Endpoint keys used for rate limiting and logging.
const (
	endpointHealth   = "/info/health"
	endpointBalance  = "/addresses/balance"
	endpointBalances = "/addresses/balances"
	endpointUTXOs    = "/addresses/utxos"
)

// DefaultBaseURL returns the public REST endpoint for a network.
func DefaultBaseURL(net keys.Network) string {
	switch net {
	case keys.Testnet:
		return "https://api-tn10.kaspa.org"
	case keys.Mainnet, keys.Devnet, keys.Simnet:
		return "https://api.kaspa.org"
	default:
		return "https://api.kaspa.org"
	}
}

// ClientOptions contains optional configuration for the Kaspa client.
type ClientOptions struct {
	// BaseURL overrides the network's default REST endpoint.
	BaseURL string

	// Network selects the address prefix used for validation.
	Network keys.Network

	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client

	// RateLimiter overrides the default per-endpoint limiter.
	RateLimiter *chain.RateLimiter

	// Retry overrides the default retry configuration.
	Retry *chain.RetryConfig

	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32

	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration

	Logger zerolog.Logger
}

// Client implements balance.QueryService against the Kaspa REST API.
type Client struct {
	baseURL    string
	network    keys.Network
	httpClient *http.Client
	limiter    *chain.RateLimiter
	retry      chain.RetryConfig
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

var _ balance.QueryService = (*Client)(nil)

// NewClient creates a new Kaspa REST client.
func NewClient(opts *ClientOptions) *Client {
	if opts == nil {
		opts = &ClientOptions{}
	}

	net := opts.Network
	if !net.IsValid() {
		net = keys.Mainnet
	}

	c := &Client{
		baseURL:    DefaultBaseURL(net),
		network:    net,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    chain.DefaultRateLimiter(),
		retry:      chain.DefaultRetryConfig(),
		log:        opts.Logger.With().Str("component", "kaspa-client").Logger(),
	}

	if opts.BaseURL != "" {
		c.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		c.httpClient = opts.HTTPClient
	}
	if opts.RateLimiter != nil {
		c.limiter = opts.RateLimiter
	}
	if opts.Retry != nil {
		c.retry = *opts.Retry
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "kaspa-rest",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				c.log.Warn().Str("breaker", name).Msg("ledger API seems down, stop allowing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				c.log.Info().Str("breaker", name).Msg("checking ledger API status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				c.log.Info().Str("breaker", name).Msg("ledger API seems ok, allowing requests")
			}
		},
	})

	return c
}

// Network returns the network addresses are validated against.
func (c *Client) Network() keys.Network {
	return c.network
}

// Connect checks that the REST API is reachable and healthy.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, endpointHealth, endpointHealth, nil)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// Disconnect releases idle keep-alive connections.
func (c *Client) Disconnect() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// balanceResponse is the REST balance shape.
type balanceResponse struct {
	Address string `json:"address"`
	Balance amount `json:"balance"`
}

// GetBalance returns the aggregate balance of one address.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	if err := keys.ValidateAddress(address, c.network); err != nil {
		return 0, err
	}

	path := "/addresses/" + url.PathEscape(address) + "/balance"
	body, err := c.do(ctx, http.MethodGet, path, endpointBalance, nil)
	if err != nil {
		return 0, err
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: decoding balance response: %w", sompierr.ErrNetworkUnavailable, err)
	}
	return uint64(resp.Balance), nil
}

type addressesRequest struct {
	Addresses []string `json:"addresses"`
}

// GetBalances returns balances aligned positionally with addresses.
func (c *Client) GetBalances(ctx context.Context, addresses []string) ([]uint64, error) {
	if err := c.validateAll(addresses); err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return []uint64{}, nil
	}

	body, err := c.do(ctx, http.MethodPost, endpointBalances, endpointBalances, addressesRequest{Addresses: addresses})
	if err != nil {
		return nil, err
	}

	var resp []balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding balances response: %w", sompierr.ErrNetworkUnavailable, err)
	}

	byAddress := make(map[string]uint64, len(resp))
	for _, r := range resp {
		byAddress[r.Address] = uint64(r.Balance)
	}

	out := make([]uint64, len(addresses))
	for i, addr := range addresses {
		bal, ok := byAddress[addr]
		if !ok {
			return nil, fmt.Errorf("%w: balances response is missing %s", sompierr.ErrNetworkUnavailable, addr)
		}
		out[i] = bal
	}
	return out, nil
}

// utxoResponse is the REST UTXO shape.
type utxoResponse struct {
	Address  string `json:"address"`
	Outpoint struct {
		TransactionID string `json:"transactionId"`
		Index         uint32 `json:"index"`
	} `json:"outpoint"`
	UTXOEntry struct {
		Amount          amount `json:"amount"`
		ScriptPublicKey struct {
			ScriptPublicKey string `json:"scriptPublicKey"`
		} `json:"scriptPublicKey"`
		BlockDAAScore amount `json:"blockDaaScore"`
		IsCoinbase    bool   `json:"isCoinbase"`
	} `json:"utxoEntry"`
}

// GetUTXOs returns the unspent outputs of each address.
func (c *Client) GetUTXOs(ctx context.Context, addresses []string) (map[string][]balance.UTXO, error) {
	if err := c.validateAll(addresses); err != nil {
		return nil, err
	}
	out := make(map[string][]balance.UTXO, len(addresses))
	if len(addresses) == 0 {
		return out, nil
	}

	body, err := c.do(ctx, http.MethodPost, endpointUTXOs, endpointUTXOs, addressesRequest{Addresses: addresses})
	if err != nil {
		return nil, err
	}

	var resp []utxoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding utxo response: %w", sompierr.ErrNetworkUnavailable, err)
	}

	for _, r := range resp {
		out[r.Address] = append(out[r.Address], balance.UTXO{
			Address:         r.Address,
			TransactionID:   r.Outpoint.TransactionID,
			OutputIndex:     r.Outpoint.Index,
			Amount:          uint64(r.UTXOEntry.Amount),
			ScriptPublicKey: r.UTXOEntry.ScriptPublicKey.ScriptPublicKey,
			BlockDAAScore:   uint64(r.UTXOEntry.BlockDAAScore),
			IsCoinbase:      r.UTXOEntry.IsCoinbase,
		})
	}
	return out, nil
}

func (c *Client) validateAll(addresses []string) error {
	for _, addr := range addresses {
		if err := keys.ValidateAddress(addr, c.network); err != nil {
			return err
		}
	}
	return nil
}

// do performs one logical request with rate limiting, retries and the
// circuit breaker, returning the body of a 200 response.
func (c *Client) do(ctx context.Context, method, path, endpoint string, payload any) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
	}

	return chain.RetryWithConfig(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return nil, err
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.roundTrip(ctx, method, path, encoded)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", sompierr.ErrNetworkUnavailable, err)
		}
		if err != nil {
			return nil, err
		}

		resp, _ := result.(*response)
		if resp.status != http.StatusOK {
			return nil, fmt.Errorf("%w: %s %s: status %d: %s",
				sompierr.ErrNetworkUnavailable, method, endpoint, resp.status, snippet(resp.body))
		}
		return resp.body, nil
	})
}

type response struct {
	status int
	body   []byte
}

// roundTrip executes one HTTP exchange. Transport failures, 5xx and 429
// count against the breaker and are retryable; other statuses are returned
// as a response for the caller to classify.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, chain.WrapRetryable(fmt.Errorf("%w: %w", sompierr.ErrNetworkUnavailable, err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, chain.WrapRetryable(fmt.Errorf("%w: reading response: %w", sompierr.ErrNetworkUnavailable, err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait := chain.ParseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			c.log.Debug().Dur("retry_after", wait).Str("path", path).Msg("rate limited by server")
			sleep(ctx, min(wait, maxRetryAfterWait))
		}
		return nil, fmt.Errorf("%w: %w: status 429", chain.ErrRateLimited, sompierr.ErrNetworkUnavailable)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, chain.WrapRetryable(fmt.Errorf("%w: status %d: %s",
			sompierr.ErrNetworkUnavailable, resp.StatusCode, snippet(data)))
	}

	return &response{status: resp.StatusCode, body: data}, nil
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}

// amount decodes sompi values the API sends either as JSON numbers or as
// decimal strings.
type amount uint64

func (a *amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*a = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid sompi amount %q: %w", s, err)
	}
	*a = amount(v)
	return nil
}
