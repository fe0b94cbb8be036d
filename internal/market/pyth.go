package market

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const defaultPythURL = "https://hermes.pyth.network/api/latest_price_feeds"

// PythSource fetches oracle prices from the Pyth Hermes API. Feeds deliver a
// fixed-point (price, expo) pair; the real price is price x 10^expo.
type PythSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewPythSource creates a Pyth source
func NewPythSource(baseURL string, timeout time.Duration) *PythSource {
	if baseURL == "" {
		baseURL = defaultPythURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PythSource{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// Name implements Source
func (s *PythSource) Name() SourceName { return SourcePyth }

type pythFeed struct {
	Price struct {
		Price       string `json:"price"`
		Expo        int32  `json:"expo"`
		PublishTime int64  `json:"publish_time"`
	} `json:"price"`
}

// Fetch implements Source
func (s *PythSource) Fetch(ctx context.Context, symbol string) (*PriceRecord, error) {
	feed, ok := pythFeedIDs[symbol]
	if !ok {
		return nil, fmt.Errorf("no pyth feed known for %s", symbol)
	}

	var out []pythFeed
	if err := httpGetJSON(ctx, s.httpClient, s.baseURL+"?ids[]="+feed, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pyth returned no feed for %s", symbol)
	}

	raw, err := decimal.NewFromString(out[0].Price.Price)
	if err != nil {
		return nil, fmt.Errorf("malformed pyth price %q: %w", out[0].Price.Price, err)
	}
	price := raw.Shift(out[0].Price.Expo)

	record := &PriceRecord{
		Symbol:      symbol,
		MintAddress: MintAddresses[symbol],
		Price:       price,
		Timestamp:   time.Now(),
		Source:      SourcePyth,
		Confidence:  0.95,
	}
	if out[0].Price.PublishTime > 0 {
		record.PublishTime = time.Unix(out[0].Price.PublishTime, 0)
	}
	return record, nil
}
