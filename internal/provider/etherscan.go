package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EtherscanChecker answers the EOA-vs-contract question through the
// Etherscan proxy module (eth_getCode). Empty code means EOA.
type EtherscanChecker struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chainID    string
}

func NewEtherscanChecker(apiKey string, timeout time.Duration) *EtherscanChecker {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &EtherscanChecker{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://api.etherscan.io/v2/api",
		apiKey:     apiKey,
		chainID:    "1",
	}
}

type etherscanProxyResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *EtherscanChecker) IsContract(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid address %q", address)
	}

	q := url.Values{}
	q.Set("chainid", c.chainID)
	q.Set("module", "proxy")
	q.Set("action", "eth_getCode")
	q.Set("address", address)
	q.Set("tag", "latest")
	q.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("contract check %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("contract check %s: status %d", address, resp.StatusCode)
	}

	var parsed etherscanProxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("contract check %s: %w", address, err)
	}
	if parsed.Error != nil {
		return false, fmt.Errorf("contract check %s: %s", address, parsed.Error.Message)
	}

	return parsed.Result != "" && parsed.Result != "0x", nil
}
