package execution

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

const liquidationCallABI = `[{
	"name":"liquidationCall",
	"type":"function",
	"inputs":[
		{"name":"collateralAsset","type":"address"},
		{"name":"debtAsset","type":"address"},
		{"name":"user","type":"address"},
		{"name":"debtToCover","type":"uint256"},
		{"name":"receiveAToken","type":"bool"}
	]
}]`

var liquidationCallMethod = mustParseLiquidationCallABI()

func mustParseLiquidationCallABI() abi.Method {
	parsed, err := abi.JSON(strings.NewReader(liquidationCallABI))
	if err != nil {
		panic(err)
	}
	return parsed.Methods["liquidationCall"]
}

// EncodeLiquidationCall packs the pool's liquidationCall calldata for an
// Intent, always receiving the underlying collateral asset rather than the
// aToken.
func EncodeLiquidationCall(intent Intent) ([]byte, error) {
	debtToCover := new(big.Int)
	if intent.DebtToCover != nil {
		debtToCover = intent.DebtToCover.ToBig()
	}
	args, err := liquidationCallMethod.Inputs.Pack(
		intent.CollateralAsset,
		intent.DebtAsset,
		intent.User,
		debtToCover,
		false,
	)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, liquidationCallMethod.ID...), args...), nil
}

// TxParams carries the chain/fee parameters BuildAndSign needs beyond the
// Intent itself, sourced from chainclient.GetFeeData and the account nonce
// tracker.
type TxParams struct {
	ChainID   *big.Int
	Pool      chaintypes.Address
	Nonce     uint64
	GasLimit  uint64
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// Signer signs a dynamic-fee liquidation transaction with the bot's
// executor private key.
type Signer struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
}

// NewSigner constructs a Signer from a raw hex private key (no 0x prefix
// required).
func NewSigner(hexKey string, chainID *big.Int) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, chainID: chainID}, nil
}

// Address returns the executor address this signer signs on behalf of.
func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// BuildAndSign encodes the Intent's liquidationCall and signs a
// dynamic-fee (EIP-1559) transaction against it.
func (s *Signer) BuildAndSign(ctx context.Context, intent Intent, params TxParams) (*types.Transaction, error) {
	data, err := EncodeLiquidationCall(intent)
	if err != nil {
		return nil, err
	}

	to := common.Address(params.Pool)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     params.Nonce,
		GasTipCap: params.GasTipCap,
		GasFeeCap: params.GasFeeCap,
		Gas:       params.GasLimit,
		To:        &to,
		Data:      data,
	})

	signer := types.LatestSignerForChainID(s.chainID)
	return types.SignTx(tx, signer, s.key)
}
