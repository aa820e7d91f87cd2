package ethereum

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	coretypes "github.com/ethereum/go-ethereum/core/types"

	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/web3"
	"AskWorld-Agents/pkg/logger"
)

// MaxTxAttempts bounds the number of sends for one logical transaction.
const MaxTxAttempts = 3

// ErrorClass is the normalized classification of a send failure.
type ErrorClass string

const (
	ClassNonceTooLow ErrorClass = "nonce_too_low"
	ClassRLPEncoding ErrorClass = "rlp_encoding"
	ClassOther       ErrorClass = "other"
)

// RetryAction is what the submitter does after a classified failure.
type RetryAction int

const (
	ActionFail RetryAction = iota
	ActionIncrementNonce
	ActionResetNonce
)

// retryPolicy is the decision table for failed sends. ActionResetNonce is
// honoured once per submission.
var retryPolicy = map[ErrorClass]RetryAction{
	ClassNonceTooLow: ActionIncrementNonce,
	ClassRLPEncoding: ActionResetNonce,
	ClassOther:       ActionFail,
}

// ClassifyTxError maps a node error onto an ErrorClass.
func ClassifyTxError(err error) ErrorClass {
	if err == nil {
		return ClassOther
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonce too low"):
		return ClassNonceTooLow
	case strings.Contains(msg, "rlp"):
		return ClassRLPEncoding
	}
	return ClassOther
}

// PolicyFor returns the retry action for class.
func PolicyFor(class ErrorClass) RetryAction {
	if action, ok := retryPolicy[class]; ok {
		return action
	}
	return ActionFail
}

// ValidateAnswer signs and sends validateAnswer(questionId, answerIndex,
// isValid). The nonce is adjusted according to the retry policy and at most
// MaxTxAttempts sends are made; exactly one accepted transaction is returned.
func (c *Client) ValidateAnswer(ctx context.Context, questionID, answerIndex *big.Int, valid bool) (web3.Submission, error) {
	if !c.CanSign() {
		return web3.Submission{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置签名私钥")
	}
	data, err := c.abi.Pack("validateAnswer", questionID, answerIndex, valid)
	if err != nil {
		return web3.Submission{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 validateAnswer 参数失败")
	}

	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return web3.Submission{}, err
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return web3.Submission{}, xerrors.Wrap(web3.CodeChainFailure, err, "查询账户 nonce 失败")
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return web3.Submission{}, xerrors.Wrap(web3.CodeChainFailure, err, "查询 gas 价格失败")
	}
	signer := coretypes.LatestSignerForChainID(chainID)

	var (
		lastErr   error
		resetUsed bool
	)
	for attempt := 1; attempt <= MaxTxAttempts; attempt++ {
		tx, err := coretypes.SignNewTx(c.key, signer, &coretypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      c.gasLimit,
			To:       &c.contract,
			Value:    new(big.Int),
			Data:     data,
		})
		if err != nil {
			return web3.Submission{}, xerrors.Wrap(web3.CodeChainFailure, err, "签名交易失败")
		}

		sendErr := c.backend.SendTransaction(ctx, tx)
		if sendErr == nil {
			c.metrics.RecordTxAttempt("success")
			logger.Audit().Info("transaction submitted",
				slog.String("function", "validateAnswer"),
				slog.String("tx_hash", tx.Hash().Hex()),
				slog.Uint64("nonce", nonce),
				slog.Int("attempt", attempt),
				slog.String("question_id", questionID.String()),
				slog.String("answer_index", answerIndex.String()),
				slog.Bool("valid", valid),
			)
			return web3.Submission{TxHash: tx.Hash(), Nonce: nonce, Attempts: attempt}, nil
		}

		class := ClassifyTxError(sendErr)
		c.metrics.RecordTxAttempt(string(class))
		lastErr = sendErr
		c.logger.Warn("发送交易失败",
			slog.Int("attempt", attempt),
			slog.Uint64("nonce", nonce),
			slog.String("class", string(class)),
			slog.Any("error", sendErr),
		)

		switch PolicyFor(class) {
		case ActionIncrementNonce:
			nonce++
		case ActionResetNonce:
			if resetUsed {
				return web3.Submission{}, xerrors.Wrap(web3.CodeChainFailure, sendErr, "发送交易失败")
			}
			resetUsed = true
			nonce = 0
		default:
			return web3.Submission{}, xerrors.Wrap(web3.CodeChainFailure, sendErr, "发送交易失败")
		}
	}

	logger.Audit().Warn("transaction abandoned",
		slog.String("function", "validateAnswer"),
		slog.Int("attempts", MaxTxAttempts),
		slog.Any("error", lastErr),
	)
	return web3.Submission{}, xerrors.Wrap(xerrors.CodeRetriesExhausted, lastErr,
		fmt.Sprintf("validateAnswer failed after %d attempts", MaxTxAttempts))
}
