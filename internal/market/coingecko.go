package market

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const defaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// CoinGeckoSource fetches coin details from the CoinGecko REST API
type CoinGeckoSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGeckoSource creates a CoinGecko source. An empty URL selects the
// public API.
func NewCoinGeckoSource(baseURL string, timeout time.Duration) *CoinGeckoSource {
	if baseURL == "" {
		baseURL = defaultCoinGeckoURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CoinGeckoSource{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// Name implements Source
func (s *CoinGeckoSource) Name() SourceName { return SourceCoinGecko }

type coinGeckoResponse struct {
	MarketData struct {
		CurrentPrice struct {
			USD decimal.Decimal `json:"usd"`
		} `json:"current_price"`
		TotalVolume struct {
			USD decimal.Decimal `json:"usd"`
		} `json:"total_volume"`
		PriceChangePercentage24h decimal.Decimal `json:"price_change_percentage_24h"`
		MarketCap                struct {
			USD decimal.Decimal `json:"usd"`
		} `json:"market_cap"`
	} `json:"market_data"`
}

// Fetch implements Source
func (s *CoinGeckoSource) Fetch(ctx context.Context, symbol string) (*PriceRecord, error) {
	id, ok := coinGeckoIDs[symbol]
	if !ok {
		return nil, fmt.Errorf("no coingecko id known for %s", symbol)
	}

	var out coinGeckoResponse
	url := s.baseURL + "/coins/" + id + "?localization=false&tickers=false&community_data=false&developer_data=false"
	if err := httpGetJSON(ctx, s.httpClient, url, &out); err != nil {
		return nil, err
	}

	marketCap := out.MarketData.MarketCap.USD
	record := &PriceRecord{
		Symbol:      symbol,
		MintAddress: MintAddresses[symbol],
		Price:       out.MarketData.CurrentPrice.USD,
		Volume24h:   out.MarketData.TotalVolume.USD,
		Change24h:   out.MarketData.PriceChangePercentage24h,
		Timestamp:   time.Now(),
		Source:      SourceCoinGecko,
		Confidence:  0.9,
	}
	if marketCap.Sign() > 0 {
		record.MarketCap = &marketCap
	}
	return record, nil
}
