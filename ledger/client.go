package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

const defaultPollInterval = 500 * time.Millisecond

// Client is the JSON-RPC channel to the ledger node. The underlying HTTP
// client is shared and safe for concurrent use; no caller may assume
// exclusive access to it.
type Client struct {
	rpcURL       string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       cmtlog.Logger
	requestID    atomic.Uint64
}

// NewClient creates a ledger RPC client. timeout bounds a single HTTP
// round-trip; pollInterval paces receipt polling (zero selects the default).
func NewClient(rpcURL string, timeout, pollInterval time.Duration, logger cmtlog.Logger) *Client {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Client{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pollInterval: pollInterval,
		logger:       logger,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, result any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("calling %s: unexpected HTTP status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("calling %s: %w", method, rpcResp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// Receipt confirms inclusion of a transaction on the ledger.
type Receipt struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Status      uint64 `json:"status"`
	Logs        []Log  `json:"logs"`
}

// Log is one event emitted by the contract during a transaction.
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

type rawReceipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	Status          string `json:"status"`
	Logs            []Log  `json:"logs"`
}

// NonceAt returns the pending-state transaction count for an account.
func (c *Client) NonceAt(ctx context.Context, address string) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_getTransactionCount", &result, address, "pending"); err != nil {
		return 0, err
	}
	return parseHexUint(result)
}

// SendRawTransaction submits a signed raw transaction and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	var txHash string
	if err := c.call(ctx, "eth_sendRawTransaction", &txHash, "0x"+hex.EncodeToString(raw)); err != nil {
		return "", err
	}
	return txHash, nil
}

// WaitForReceipt blocks until the ledger reports the transaction included or
// ctx expires. A timeout does not mean the transaction failed on the ledger;
// it may still confirm later, which reconciliation detects.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.transactionReceipt(ctx, txHash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// transactionReceipt returns nil without error while the transaction is
// still pending.
func (c *Client) transactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	var raw *rawReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", &raw, txHash); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	blockNumber, err := parseHexUint(raw.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("receipt block number: %w", err)
	}
	status, err := parseHexUint(raw.Status)
	if err != nil {
		return nil, fmt.Errorf("receipt status: %w", err)
	}

	return &Receipt{
		TxHash:      raw.TransactionHash,
		BlockNumber: blockNumber,
		Status:      status,
		Logs:        raw.Logs,
	}, nil
}

// CallContract executes a read-only contract call against the latest block.
func (c *Client) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	var result string
	params := map[string]string{
		"to":   to,
		"data": "0x" + hex.EncodeToString(data),
	}
	if err := c.call(ctx, "eth_call", &result, params, "latest"); err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimPrefix(result, "0x"))
}

func parseHexUint(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	v, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed hex quantity %q: %w", s, err)
	}
	return v, nil
}
