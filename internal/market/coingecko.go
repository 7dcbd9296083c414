package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CoinGecko is the fallback quote source, queried by contract address.
type CoinGecko struct {
	httpClient *http.Client
	baseURL    string
}

func NewCoinGecko() *CoinGecko {
	return &CoinGecko{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    "https://api.coingecko.com/api/v3",
	}
}

func (c *CoinGecko) Name() string { return "coingecko" }

// platformID maps the provider's chain tags to CoinGecko platform ids.
func platformID(chain string) string {
	switch chain {
	case "", "ethereum":
		return "ethereum"
	case "binance-smart-chain", "bsc":
		return "binance-smart-chain"
	case "polygon":
		return "polygon-pos"
	case "arbitrum":
		return "arbitrum-one"
	case "base":
		return "base"
	default:
		return chain
	}
}

func (c *CoinGecko) Price(ctx context.Context, contract, chain string) (*PriceQuote, error) {
	url := fmt.Sprintf(
		"%s/simple/token_price/%s?contract_addresses=%s&vs_currencies=usd",
		c.baseURL, platformID(chain), strings.ToLower(contract),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko returned %d", resp.StatusCode)
	}

	var parsed map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode coingecko: %w", err)
	}

	entry, ok := parsed[strings.ToLower(contract)]
	if !ok || entry.USD <= 0 {
		return nil, nil
	}

	return &PriceQuote{
		Contract: contract,
		Chain:    chain,
		Price:    entry.USD,
		Source:   c.Name(),
		AsOf:     time.Now(),
	}, nil
}
