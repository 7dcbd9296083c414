package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// DexScreener is the primary quote source. One endpoint serves price,
// market cap and liquidity; the pair with the deepest USD liquidity wins.
type DexScreener struct {
	httpClient *http.Client
	baseURL    string
}

func NewDexScreener() *DexScreener {
	return &DexScreener{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    "https://api.dexscreener.com/latest/dex",
	}
}

func (d *DexScreener) Name() string { return "dexscreener" }

type dexScreenerPair struct {
	ChainID   string `json:"chainId"`
	PriceUSD  string `json:"priceUsd"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
}

type dexScreenerResponse struct {
	Pairs []dexScreenerPair `json:"pairs"`
}

func (d *DexScreener) fetch(ctx context.Context, contract string) (*dexScreenerResponse, error) {
	url := fmt.Sprintf("%s/tokens/%s", d.baseURL, contract)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener returned %d", resp.StatusCode)
	}

	var parsed dexScreenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode dexscreener: %w", err)
	}
	return &parsed, nil
}

// bestPair picks the pair with the deepest liquidity, preferring the
// requested chain when it has any match.
func bestPair(pairs []dexScreenerPair, chain string) *dexScreenerPair {
	var best *dexScreenerPair
	for i := range pairs {
		p := &pairs[i]
		if chain != "" && p.ChainID != chain {
			continue
		}
		if best == nil || p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}
	if best == nil && chain != "" {
		return bestPair(pairs, "")
	}
	return best
}

func (d *DexScreener) Price(ctx context.Context, contract, chain string) (*PriceQuote, error) {
	parsed, err := d.fetch(ctx, contract)
	if err != nil {
		return nil, err
	}

	pair := bestPair(parsed.Pairs, chain)
	if pair == nil {
		return nil, nil
	}

	price, err := strconv.ParseFloat(pair.PriceUSD, 64)
	if err != nil || price <= 0 {
		return nil, nil
	}

	return &PriceQuote{
		Contract: contract,
		Chain:    pair.ChainID,
		Price:    price,
		Source:   d.Name(),
		AsOf:     time.Now(),
	}, nil
}

func (d *DexScreener) TokenInfo(ctx context.Context, contract, chain string) (*TokenInfo, error) {
	parsed, err := d.fetch(ctx, contract)
	if err != nil {
		return nil, err
	}

	pair := bestPair(parsed.Pairs, chain)
	if pair == nil {
		return nil, nil
	}

	price, _ := strconv.ParseFloat(pair.PriceUSD, 64)
	mcap := pair.MarketCap
	if mcap == 0 {
		mcap = pair.FDV
	}

	return &TokenInfo{
		Contract:  contract,
		Chain:     pair.ChainID,
		Symbol:    pair.BaseToken.Symbol,
		PriceUSD:  price,
		MarketCap: mcap,
		Liquidity: pair.Liquidity.USD,
	}, nil
}
