package market

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultLlamaURL = "https://api.llama.fi"

// DexStatsClient fetches venue-level aggregates (TVL, volume, fees) from the
// DefiLlama protocol API.
type DexStatsClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDexStatsClient creates a DEX stats client
func NewDexStatsClient(baseURL string, timeout time.Duration) *DexStatsClient {
	if baseURL == "" {
		baseURL = defaultLlamaURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DexStatsClient{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

type llamaProtocol struct {
	Name      string          `json:"name"`
	TVL       decimal.Decimal `json:"tvl"`
	Volume24h decimal.Decimal `json:"volume24h"`
	Volume7d  decimal.Decimal `json:"volume7d"`
	Fees24h   decimal.Decimal `json:"fees24h"`
	Pools     int             `json:"poolCount"`
}

// Fetch returns the snapshot for one DEX by its protocol slug
func (c *DexStatsClient) Fetch(ctx context.Context, name string) (*DexSnapshot, error) {
	slug := strings.ToLower(name)
	var out llamaProtocol
	if err := httpGetJSON(ctx, c.httpClient, c.baseURL+"/protocol/"+slug, &out); err != nil {
		return nil, err
	}

	display := out.Name
	if display == "" {
		display = name
	}
	return &DexSnapshot{
		Name:       display,
		TVL:        out.TVL,
		Volume24h:  out.Volume24h,
		Volume7d:   out.Volume7d,
		Fees24h:    out.Fees24h,
		PoolsCount: out.Pools,
		Timestamp:  time.Now(),
		Source:     "defillama",
	}, nil
}
