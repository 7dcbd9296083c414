package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"walletintel/internal/models"
)

// ZerionClient pulls wallet balances and transfer history from the Zerion
// REST API. Cursor pagination follows links.next; 429 responses rotate the
// key pool; transient failures retry with exponential backoff.
type ZerionClient struct {
	httpClient *http.Client
	baseURL    string
	pool       *KeyPool
	maxRetries int
	pageSize   int
}

func NewZerionClient(baseURL string, pool *KeyPool, timeout time.Duration, maxRetries, pageSize int) *ZerionClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &ZerionClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		pool:       pool,
		maxRetries: maxRetries,
		pageSize:   pageSize,
	}
}

// --- Wire types ---

type zerionQuantity struct {
	Float   float64 `json:"float"`
	Numeric string  `json:"numeric"`
}

type zerionImplementation struct {
	ChainID  string `json:"chain_id"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

type zerionFungibleInfo struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Symbol          string                 `json:"symbol"`
	Implementations []zerionImplementation `json:"implementations"`
}

type zerionPosition struct {
	Attributes struct {
		Quantity     zerionQuantity     `json:"quantity"`
		Value        *float64           `json:"value"`
		Price        float64            `json:"price"`
		FungibleInfo zerionFungibleInfo `json:"fungible_info"`
	} `json:"attributes"`
	Relationships struct {
		Fungible struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"fungible"`
	} `json:"relationships"`
}

type zerionTransferEntry struct {
	FungibleInfo zerionFungibleInfo `json:"fungible_info"`
	Direction    string             `json:"direction"`
	Quantity     zerionQuantity     `json:"quantity"`
	Value        *float64           `json:"value"`
	Price        *float64           `json:"price"`
	Sender       string             `json:"sender"`
	Recipient    string             `json:"recipient"`
}

type zerionTransaction struct {
	Attributes struct {
		OperationType string                `json:"operation_type"`
		Hash          string                `json:"hash"`
		MinedAt       time.Time             `json:"mined_at"`
		MinedAtBlock  int64                 `json:"mined_at_block"`
		Transfers     []zerionTransferEntry `json:"transfers"`
	} `json:"attributes"`
}

type zerionPage[T any] struct {
	Data  []T `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// --- Capabilities ---

func (c *ZerionClient) ListBalances(ctx context.Context, wallet string) ([]Balance, error) {
	reqURL := fmt.Sprintf(
		"%s/wallets/%s/positions/?filter[positions]=only_simple&currency=usd&filter[trash]=only_non_trash&sort=value",
		c.baseURL, url.PathEscape(wallet),
	)

	var page zerionPage[zerionPosition]
	if err := c.getJSON(ctx, reqURL, &page); err != nil {
		return nil, &IngestError{Wallet: wallet, Transient: isTransient(err), Err: err}
	}

	balances := make([]Balance, 0, len(page.Data))
	for _, p := range page.Data {
		attrs := p.Attributes
		var contract, chain string
		if len(attrs.FungibleInfo.Implementations) > 0 {
			contract = attrs.FungibleInfo.Implementations[0].Address
			chain = attrs.FungibleInfo.Implementations[0].ChainID
		}

		value := 0.0
		if attrs.Value != nil {
			value = *attrs.Value
		}

		balances = append(balances, Balance{
			FungibleID:      p.Relationships.Fungible.Data.ID,
			Symbol:          attrs.FungibleInfo.Symbol,
			ContractAddress: contract,
			Chain:           chain,
			Amount:          attrs.Quantity.Float,
			USDValue:        value,
			PricePerToken:   attrs.Price,
		})
	}
	return balances, nil
}

// FetchFullHistory walks every transaction page for (wallet, fungibleID) and
// feeds the normalized transfers of each page into fn. The cursor lives in
// links.next, so a retried call simply starts over; the replace-history
// write path makes that safe.
func (c *ZerionClient) FetchFullHistory(ctx context.Context, wallet, fungibleID string, fn func([]models.Transfer) error) error {
	reqURL := fmt.Sprintf(
		"%s/wallets/%s/transactions/?filter[fungible_ids]=%s&currency=usd&page[size]=%d",
		c.baseURL, url.PathEscape(wallet), url.QueryEscape(fungibleID), c.pageSize,
	)

	for reqURL != "" {
		var page zerionPage[zerionTransaction]
		if err := c.getJSON(ctx, reqURL, &page); err != nil {
			return &IngestError{Wallet: wallet, Token: fungibleID, Transient: isTransient(err), Err: err}
		}

		batch := make([]models.Transfer, 0, len(page.Data))
		for _, tx := range page.Data {
			if t, ok := normalizeTransaction(wallet, fungibleID, tx); ok {
				batch = append(batch, t)
			}
		}
		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}

		reqURL = page.Links.Next
	}
	return nil
}

func (c *ZerionClient) FetchRecentSends(ctx context.Context, wallet string, since time.Duration) ([]Send, error) {
	cutoff := time.Now().Add(-since)
	reqURL := fmt.Sprintf(
		"%s/wallets/%s/transactions/?filter[operation_types]=send&currency=usd&page[size]=%d",
		c.baseURL, url.PathEscape(wallet), c.pageSize,
	)

	var sends []Send
	for reqURL != "" {
		var page zerionPage[zerionTransaction]
		if err := c.getJSON(ctx, reqURL, &page); err != nil {
			return nil, &IngestError{Wallet: wallet, Transient: isTransient(err), Err: err}
		}

		done := false
		for _, tx := range page.Data {
			if tx.Attributes.MinedAt.Before(cutoff) {
				// Pages arrive newest first; everything past the
				// cutoff is older still.
				done = true
				break
			}
			for _, tr := range tx.Attributes.Transfers {
				if tr.Direction != "out" || tr.Recipient == "" {
					continue
				}
				var contract string
				if len(tr.FungibleInfo.Implementations) > 0 {
					contract = tr.FungibleInfo.Implementations[0].Address
				}
				value := 0.0
				if tr.Value != nil {
					value = *tr.Value
				}
				sends = append(sends, Send{
					Recipient:       tr.Recipient,
					Symbol:          tr.FungibleInfo.Symbol,
					FungibleID:      tr.FungibleInfo.ID,
					ContractAddress: contract,
					Quantity:        tr.Quantity.Float,
					ValueUSD:        value,
					Timestamp:       tx.Attributes.MinedAt,
				})
			}
		}
		if done {
			break
		}
		reqURL = page.Links.Next
	}
	return sends, nil
}

// --- HTTP plumbing ---

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func (c *ZerionClient) getJSON(ctx context.Context, reqURL string, out any) error {
	backoff := time.Second

	for attempt := 0; ; attempt++ {
		key, err := c.pool.Acquire(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set("authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(key+":")))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt >= c.maxRetries {
				return &transientError{fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)}
			}
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			c.pool.Rotate(key)
			if attempt >= c.maxRetries {
				return &transientError{fmt.Errorf("rate limited after %d attempts", attempt+1)}
			}
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt >= c.maxRetries {
				return &transientError{fmt.Errorf("server error %d after %d attempts", resp.StatusCode, attempt+1)}
			}
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			continue

		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
