package market

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const defaultCoinbaseURL = "https://api.coinbase.com/v2"

// CoinbaseSource fetches spot prices from the Coinbase public API. It carries
// no volume or change data, so records get a lower confidence.
type CoinbaseSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinbaseSource creates a Coinbase source
func NewCoinbaseSource(baseURL string, timeout time.Duration) *CoinbaseSource {
	if baseURL == "" {
		baseURL = defaultCoinbaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CoinbaseSource{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// Name implements Source
func (s *CoinbaseSource) Name() SourceName { return SourceCoinbase }

type coinbaseResponse struct {
	Data struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	} `json:"data"`
}

// Fetch implements Source
func (s *CoinbaseSource) Fetch(ctx context.Context, symbol string) (*PriceRecord, error) {
	var out coinbaseResponse
	url := fmt.Sprintf("%s/prices/%s-USD/spot", s.baseURL, symbol)
	if err := httpGetJSON(ctx, s.httpClient, url, &out); err != nil {
		return nil, err
	}

	return &PriceRecord{
		Symbol:      symbol,
		MintAddress: MintAddresses[symbol],
		Price:       out.Data.Amount,
		Timestamp:   time.Now(),
		Source:      SourceCoinbase,
		Confidence:  0.8,
	}, nil
}
