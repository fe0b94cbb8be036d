// Package solana implements the RPC gateway: an authenticated, rate-limited,
// failing-over client to the Solana JSON-RPC endpoints.
package solana

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Commitment levels supported by the chain, ordered by freshness guarantee.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// SystemProgramID is the native system program used for lamport transfers.
const SystemProgramID = "11111111111111111111111111111111"

// ComputeBudgetProgramID sets per-transaction priority fees.
const ComputeBudgetProgramID = "ComputeBudget111111111111111111111111111111"

// LamportsPerSOL converts base units to whole SOL.
const LamportsPerSOL = 1_000_000_000

// AccountInfo describes an on-chain account. A nil *AccountInfo means the
// account does not exist; that is not an error.
type AccountInfo struct {
	Executable bool     `json:"executable"`
	Owner      string   `json:"owner"`
	Lamports   uint64   `json:"lamports"`
	RentEpoch  uint64   `json:"rentEpoch"`
	Data       []string `json:"data"`
}

// NetworkStats aggregates the chain-level health queries.
type NetworkStats struct {
	Slot              uint64          `json:"slot"`
	Epoch             uint64          `json:"epoch"`
	SlotIndex         uint64          `json:"slot_index"`
	SlotsInEpoch      uint64          `json:"slots_in_epoch"`
	TPS               float64         `json:"tps"`
	TotalSupply       decimal.Decimal `json:"total_supply"`
	CirculatingSupply decimal.Decimal `json:"circulating_supply"`
	Network           string          `json:"network"`
}

// RPCError is a definitive error returned by the remote node. Idempotent
// operations may try an alternate endpoint on it; signed writes must not.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrInsufficientFunds is surfaced when a signed write is rejected for lack of
// balance. It is never retried.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrNoWallet is returned at startup when no wallet is configured and
// simulation mode is off.
var ErrNoWallet = errors.New("no wallet configured")

// AllAttemptsFailedError reports that every retry cycle across every endpoint
// was exhausted. Last carries the final underlying error.
type AllAttemptsFailedError struct {
	Attempts int
	Last     error
}

func (e *AllAttemptsFailedError) Error() string {
	return fmt.Sprintf("all attempts failed after %d cycles: %v", e.Attempts, e.Last)
}

func (e *AllAttemptsFailedError) Unwrap() error { return e.Last }

// rateLimitedError marks an HTTP 429 from an endpoint.
type rateLimitedError struct {
	url string
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by %s", e.url)
}

// transportError marks DNS/TCP/TLS failures and 5xx responses.
type transportError struct {
	url string
	err error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.url, e.err)
}

func (e *transportError) Unwrap() error { return e.err }

func isInsufficientFunds(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return strings.Contains(strings.ToLower(rpcErr.Message), "insufficient")
}
