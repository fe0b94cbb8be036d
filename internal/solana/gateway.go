package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/solswarm/guardian/internal/metrics"
)

// Circuit breaker thresholds for RPC endpoints
const (
	endpointMinRequests  = 5
	endpointFailureRatio = 0.6
	endpointOpenTimeout  = 30 * time.Second
	endpointCountWindow  = 10 * time.Second
)

const defaultHealthCheckInterval = 30 * time.Second

// GatewayConfig configures the RPC gateway
type GatewayConfig struct {
	PrimaryURL        string
	BackupURLs        []string
	Network           string
	Commitment        string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond int
	BaseBackoff       time.Duration
	PriorityFee       uint64 // micro-lamports per compute unit
	Simulation        bool
}

// Gateway exposes a narrow, typed surface over the chain's JSON-RPC while
// absorbing transient failures. All operations are safe for concurrent use.
type Gateway struct {
	cfg       GatewayConfig
	endpoints []*endpoint
	wallet    *Wallet
	limiter   *rate.Limiter
	log       zerolog.Logger

	// Lazy 1-second request window, reset on the first acquisition after the
	// window has elapsed.
	windowMu    sync.Mutex
	windowStart time.Time
	windowCount int

	healthMu        sync.Mutex
	healthy         bool
	lastHealthCheck time.Time
	healthInterval  time.Duration
}

type endpoint struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker
}

// NewGateway constructs one client per endpoint URL, primary first, and loads
// the wallet. Startup fails when no wallet can be loaded outside simulation.
func NewGateway(cfg GatewayConfig, log zerolog.Logger) (*Gateway, error) {
	if cfg.PrimaryURL == "" {
		return nil, fmt.Errorf("primary RPC URL is required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = CommitmentConfirmed
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}

	urls := append([]string{cfg.PrimaryURL}, cfg.BackupURLs...)
	endpoints := make([]*endpoint, 0, len(urls))
	for _, url := range urls {
		endpoints = append(endpoints, &endpoint{
			client: NewClient(url, cfg.Commitment, cfg.Timeout),
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:     url,
				Interval: endpointCountWindow,
				Timeout:  endpointOpenTimeout,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					ratio := float64(counts.TotalFailures) / float64(counts.Requests)
					return counts.Requests >= endpointMinRequests && ratio >= endpointFailureRatio
				},
			}),
		})
	}

	return &Gateway{
		cfg:       cfg,
		endpoints: endpoints,
		// Burst equals the sustained rate per the gateway contract.
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond),
		log:            log.With().Str("component", "rpc_gateway").Logger(),
		healthInterval: defaultHealthCheckInterval,
	}, nil
}

// SetWallet attaches the signing keypair. Required before any signed write.
func (g *Gateway) SetWallet(w *Wallet) { g.wallet = w }

// Wallet returns the attached keypair, or nil
func (g *Gateway) Wallet() *Wallet { return g.wallet }

// acquire blocks until a rate-limit token is available or ctx is done
func (g *Gateway) acquire(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	g.windowMu.Lock()
	now := time.Now()
	if now.Sub(g.windowStart) >= time.Second {
		g.windowStart = now
		g.windowCount = 0
	}
	g.windowCount++
	g.windowMu.Unlock()
	return nil
}

// invoke runs fn against each endpoint with retries, backoff and failover.
// Definitive RPC errors abort immediately on non-idempotent operations and
// fall through to the next endpoint on idempotent ones.
func (g *Gateway) invoke(ctx context.Context, method string, idempotent bool, fn func(context.Context, *Client) error) error {
	start := time.Now()
	defer func() {
		metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		for i, ep := range g.endpoints {
			if err := g.acquire(ctx); err != nil {
				if lastErr != nil {
					return &AllAttemptsFailedError{Attempts: attempt + 1, Last: lastErr}
				}
				return err
			}
			if i > 0 {
				metrics.RPCFailovers.Inc()
				g.log.Warn().Str("method", method).Int("backup", i).Msg("Using backup RPC endpoint")
			}

			callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
			_, err := ep.breaker.Execute(func() (interface{}, error) {
				return nil, fn(callCtx, ep.client)
			})
			cancel()

			if err == nil {
				metrics.RPCRequests.WithLabelValues(method, ep.client.URL(), "success").Inc()
				return nil
			}
			metrics.RPCRequests.WithLabelValues(method, ep.client.URL(), "error").Inc()
			lastErr = err

			var rpcErr *RPCError
			switch {
			case errors.As(err, &rpcErr):
				if !idempotent {
					// Definitive remote rejection of a signed write: never
					// retry across clients.
					return err
				}
			case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
				// Endpoint quarantined; move on without burning the timeout.
			case ctx.Err() != nil:
				return &AllAttemptsFailedError{Attempts: attempt + 1, Last: lastErr}
			}

			g.log.Debug().Err(err).Str("method", method).Str("endpoint", ep.client.URL()).Msg("RPC attempt failed")
		}

		if attempt < g.cfg.MaxRetries {
			backoff := g.cfg.BaseBackoff * (1 << attempt)
			select {
			case <-ctx.Done():
				return &AllAttemptsFailedError{Attempts: attempt + 1, Last: lastErr}
			case <-time.After(backoff):
			}
		}
	}
	return &AllAttemptsFailedError{Attempts: g.cfg.MaxRetries + 1, Last: lastErr}
}

// GetBalance returns the native balance in whole SOL. An empty address means
// the gateway wallet.
func (g *Gateway) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if address == "" {
		if g.wallet == nil {
			return decimal.Zero, ErrNoWallet
		}
		address = g.wallet.Address()
	}

	var lamports uint64
	err := g.invoke(ctx, "getBalance", true, func(ctx context.Context, c *Client) error {
		v, err := c.GetBalance(ctx, address)
		if err != nil {
			return err
		}
		lamports = v
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromUint64(lamports).Shift(-9), nil
}

// GetTokenBalance returns the SPL balance for mint, summed across the owner's
// token accounts. A missing account yields zero, not an error.
func (g *Gateway) GetTokenBalance(ctx context.Context, mint, owner string) (decimal.Decimal, error) {
	if owner == "" {
		if g.wallet == nil {
			return decimal.Zero, ErrNoWallet
		}
		owner = g.wallet.Address()
	}

	total := decimal.Zero
	err := g.invoke(ctx, "getTokenAccountsByOwner", true, func(ctx context.Context, c *Client) error {
		accounts, err := c.GetTokenAccountsByOwner(ctx, owner, mint)
		if err != nil {
			return err
		}
		sum := decimal.Zero
		for _, acc := range accounts {
			amt := acc.Account.Data.Parsed.Info.TokenAmount
			raw, err := decimal.NewFromString(amt.Amount)
			if err != nil {
				return &transportError{url: c.URL(), err: fmt.Errorf("malformed token amount %q", amt.Amount)}
			}
			sum = sum.Add(raw.Shift(-amt.Decimals))
		}
		total = sum
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// GetAccountInfo returns nil when the account is absent
func (g *Gateway) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	var info *AccountInfo
	err := g.invoke(ctx, "getAccountInfo", true, func(ctx context.Context, c *Client) error {
		v, err := c.GetAccountInfo(ctx, address)
		if err != nil {
			return err
		}
		info = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// GetNetworkStats gathers slot, epoch, supply and TPS concurrently
func (g *Gateway) GetNetworkStats(ctx context.Context) (*NetworkStats, error) {
	stats := &NetworkStats{Network: g.cfg.Network}
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return g.invoke(egCtx, "getSlot", true, func(ctx context.Context, c *Client) error {
			slot, err := c.GetSlot(ctx)
			if err != nil {
				return err
			}
			stats.Slot = slot
			return nil
		})
	})
	eg.Go(func() error {
		return g.invoke(egCtx, "getEpochInfo", true, func(ctx context.Context, c *Client) error {
			info, err := c.GetEpochInfo(ctx)
			if err != nil {
				return err
			}
			stats.Epoch = info.Epoch
			stats.SlotIndex = info.SlotIndex
			stats.SlotsInEpoch = info.SlotsInEpoch
			return nil
		})
	})
	eg.Go(func() error {
		return g.invoke(egCtx, "getSupply", true, func(ctx context.Context, c *Client) error {
			supply, err := c.GetSupply(ctx)
			if err != nil {
				return err
			}
			stats.TotalSupply = decimal.NewFromUint64(supply.Total).Shift(-9)
			stats.CirculatingSupply = decimal.NewFromUint64(supply.Circulating).Shift(-9)
			return nil
		})
	})
	eg.Go(func() error {
		return g.invoke(egCtx, "getRecentPerformanceSamples", true, func(ctx context.Context, c *Client) error {
			samples, err := c.GetRecentPerformanceSamples(ctx, 1)
			if err != nil {
				return err
			}
			if len(samples) > 0 && samples[0].SamplePeriodSecs > 0 {
				stats.TPS = float64(samples[0].NumTransactions) / float64(samples[0].SamplePeriodSecs)
			}
			return nil
		})
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// Transfer sends amount SOL to recipient and returns the transaction
// signature. Pre-send steps (blockhash fetch, signing) are retryable; the
// submission itself is issued at most once.
func (g *Gateway) Transfer(ctx context.Context, recipient string, amount decimal.Decimal) (string, error) {
	if g.wallet == nil {
		return "", ErrNoWallet
	}
	if amount.Sign() <= 0 {
		return "", fmt.Errorf("transfer amount must be positive")
	}
	lamports := amount.Shift(9)
	if !lamports.IsInteger() {
		lamports = lamports.Floor()
	}

	var blockhash string
	err := g.invoke(ctx, "getLatestBlockhash", true, func(ctx context.Context, c *Client) error {
		bh, err := c.GetLatestBlockhash(ctx)
		if err != nil {
			return err
		}
		blockhash = bh
		return nil
	})
	if err != nil {
		return "", err
	}

	tx, err := BuildTransfer(g.wallet, recipient, uint64(lamports.IntPart()), blockhash, g.cfg.PriorityFee)
	if err != nil {
		return "", err
	}

	return g.submit(ctx, tx)
}

// SubmitSignedTransaction submits an externally signed wire transaction
func (g *Gateway) SubmitSignedTransaction(ctx context.Context, tx *Transaction) (string, error) {
	return g.submit(ctx, tx)
}

// submit transmits a signed transaction exactly once. In simulation mode the
// write is suppressed and the local signature is returned as a synthesized
// success.
func (g *Gateway) submit(ctx context.Context, tx *Transaction) (string, error) {
	if g.cfg.Simulation {
		g.log.Info().Str("signature", tx.Signature).Msg("Simulation mode: transaction not submitted")
		return tx.Signature, nil
	}

	encoded := base64.StdEncoding.EncodeToString(tx.Wire)

	var lastErr error
	for _, ep := range g.endpoints {
		if ep.breaker.State() == gobreaker.StateOpen {
			lastErr = gobreaker.ErrOpenState
			continue
		}
		if err := g.acquire(ctx); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		sig, err := ep.client.SendTransaction(callCtx, encoded)
		cancel()
		if err == nil {
			metrics.RPCRequests.WithLabelValues("sendTransaction", ep.client.URL(), "success").Inc()
			return sig, nil
		}
		metrics.RPCRequests.WithLabelValues("sendTransaction", ep.client.URL(), "error").Inc()

		if isInsufficientFunds(err) {
			return "", fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		// Any response from the remote, definitive or not, means the payload
		// may have landed: stop here rather than risk a duplicate send.
		return "", err
	}
	return "", &AllAttemptsFailedError{Attempts: 1, Last: lastErr}
}

// HealthCheck reports endpoint health, cached for the health-check interval
func (g *Gateway) HealthCheck(ctx context.Context) bool {
	g.healthMu.Lock()
	defer g.healthMu.Unlock()

	if time.Since(g.lastHealthCheck) < g.healthInterval {
		return g.healthy
	}

	healthy := false
	err := g.invoke(ctx, "getHealth", true, func(ctx context.Context, c *Client) error {
		ok, err := c.GetHealth(ctx)
		if err != nil {
			return err
		}
		healthy = ok
		return nil
	})
	if err != nil {
		healthy = false
	}

	g.healthy = healthy
	g.lastHealthCheck = time.Now()
	return g.healthy
}

// RequestWindow returns the request count inside the current 1-second window.
// Exposed for rate-limit observability.
func (g *Gateway) RequestWindow() int {
	g.windowMu.Lock()
	defer g.windowMu.Unlock()
	if time.Since(g.windowStart) >= time.Second {
		return 0
	}
	return g.windowCount
}
