package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/clinchain/backend/repository/models"
)

// Supply chain contract surface. Selectors derive from these signatures.
const (
	sigCreateLot     = "createLot(uint256,string)"
	sigValidateLot   = "validateLot(uint256)"
	sigStockLot      = "stockLot(uint256)"
	sigAdministerLot = "administerLot(uint256)"
	sigLots          = "lots(uint256)"
)

// Topic hashes of the events the contract emits per transition, for external
// log scanning. Synchronous calls do not consume them.
var (
	TopicLotCreated      = EventTopic("LotCreated(uint256,string)")
	TopicLotValidated    = EventTopic("LotValidated(uint256,address)")
	TopicLotStocked      = EventTopic("LotStocked(uint256,address)")
	TopicLotAdministered = EventTopic("LotAdministered(uint256,address)")
)

// OperationError wraps any encoding, signing, network or contract-revert
// failure of a ledger operation. No partial state is exposed alongside it.
type OperationError struct {
	Op    string
	LotID string
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("ledger operation %s failed for lot %s: %v", e.Op, e.LotID, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// LotRecord is the ledger's own copy of a lot.
type LotRecord struct {
	LotID      string
	Name       string
	StatusCode int
	Actor      string
	Timestamp  int64
}

// GatewayConfig carries the deployment-time ledger settings.
type GatewayConfig struct {
	ContractAddress string
	ChainID         uint64
	GasPrice        *big.Int
	GasLimit        uint64
	ConfirmTimeout  time.Duration
}

// Gateway executes supply chain contract calls: it encodes the call, signs it
// with the acting role's identity, submits it, and blocks until the ledger
// confirms inclusion.
type Gateway struct {
	client      *Client
	credentials *CredentialResolver
	contract    string
	contractRaw []byte
	cfg         GatewayConfig
	logger      cmtlog.Logger
}

func NewGateway(client *Client, credentials *CredentialResolver, cfg GatewayConfig, logger cmtlog.Logger) (*Gateway, error) {
	raw, err := ParseAddress(cfg.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("contract address: %w", err)
	}
	if cfg.GasPrice == nil {
		return nil, fmt.Errorf("gas price is required")
	}
	if cfg.ConfirmTimeout <= 0 {
		return nil, fmt.Errorf("confirmation timeout is required")
	}
	return &Gateway{
		client:      client,
		credentials: credentials,
		contract:    cfg.ContractAddress,
		contractRaw: raw,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// CreateLot registers a new lot on the ledger, signed by the role's identity.
func (g *Gateway) CreateLot(ctx context.Context, lotID, medName string, role models.Role) (*Receipt, error) {
	idWord, err := EncodeLotID(lotID)
	if err != nil {
		return nil, err
	}
	data, err := EncodeCall(sigCreateLot, idWord, medName)
	if err != nil {
		return nil, g.failed("createLot", lotID, err)
	}
	return g.submit(ctx, "createLot", lotID, role, data)
}

// ValidateLot mirrors the hospital validation transition.
func (g *Gateway) ValidateLot(ctx context.Context, lotID string, role models.Role) (*Receipt, error) {
	return g.transition(ctx, "validateLot", sigValidateLot, lotID, role)
}

// StockLot mirrors the pharmacy stocking transition.
func (g *Gateway) StockLot(ctx context.Context, lotID string, role models.Role) (*Receipt, error) {
	return g.transition(ctx, "stockLot", sigStockLot, lotID, role)
}

// AdministerLot mirrors the patient administration transition.
func (g *Gateway) AdministerLot(ctx context.Context, lotID string, role models.Role) (*Receipt, error) {
	return g.transition(ctx, "administerLot", sigAdministerLot, lotID, role)
}

// GetLot reads the ledger's current record for a lot.
func (g *Gateway) GetLot(ctx context.Context, lotID string) (*LotRecord, error) {
	idWord, err := EncodeLotID(lotID)
	if err != nil {
		return nil, err
	}
	data, err := EncodeCall(sigLots, idWord)
	if err != nil {
		return nil, g.failed("lots", lotID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()

	out, err := g.client.CallContract(ctx, g.contract, data)
	if err != nil {
		return nil, g.failed("lots", lotID, err)
	}
	record, err := decodeLotTuple(out)
	if err != nil {
		return nil, g.failed("lots", lotID, err)
	}
	return record, nil
}

func (g *Gateway) transition(ctx context.Context, op, signature, lotID string, role models.Role) (*Receipt, error) {
	idWord, err := EncodeLotID(lotID)
	if err != nil {
		return nil, err
	}
	data, err := EncodeCall(signature, idWord)
	if err != nil {
		return nil, g.failed(op, lotID, err)
	}
	return g.submit(ctx, op, lotID, role, data)
}

func (g *Gateway) submit(ctx context.Context, op, lotID string, role models.Role, data []byte) (*Receipt, error) {
	identity, err := g.credentials.Resolve(role)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()

	nonce, err := g.client.NonceAt(ctx, identity.Address())
	if err != nil {
		return nil, g.failed(op, lotID, err)
	}

	raw, err := identity.SignTransaction(&Transaction{
		Nonce:    nonce,
		GasPrice: g.cfg.GasPrice,
		GasLimit: g.cfg.GasLimit,
		To:       g.contractRaw,
		Value:    new(big.Int),
		Data:     data,
	}, g.cfg.ChainID)
	if err != nil {
		return nil, g.failed(op, lotID, err)
	}

	txHash, err := g.client.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, g.failed(op, lotID, err)
	}

	receipt, err := g.client.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, g.failed(op, lotID, err)
	}
	if receipt.Status != 1 {
		return nil, g.failed(op, lotID, fmt.Errorf("transaction %s reverted", txHash))
	}

	g.logger.Info("Ledger transition confirmed",
		"op", op,
		"lot_id", lotID,
		"actor", identity.Address(),
		"tx_hash", receipt.TxHash,
		"block", receipt.BlockNumber,
	)
	return receipt, nil
}

func (g *Gateway) failed(op, lotID string, err error) error {
	g.logger.Error("Ledger operation failed", "op", op, "lot_id", lotID, "err", err)
	return &OperationError{Op: op, LotID: lotID, Err: err}
}
