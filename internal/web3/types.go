package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AskWorld-Agents/internal/errors"
)

// CodeChainFailure marks errors returned by the node or the contract.
const CodeChainFailure xerrors.Code = "CHAIN_FAILURE"

func init() {
	xerrors.Register(CodeChainFailure, xerrors.Attributes{
		Message:  "chain call failed",
		Severity: xerrors.SeverityWarning,
		Kind:     xerrors.KindExternal,
	})
}

// Question status values as stored by the contract.
const (
	QuestionOpen   uint8 = 0
	QuestionClosed uint8 = 1
)

// Answer status values as stored by the contract.
const (
	AnswerPending uint8 = 0
	AnswerValid   uint8 = 1
	AnswerInvalid uint8 = 2
)

// ChainSnapshot represents summarized network metadata for the connection check.
type ChainSnapshot struct {
	ChainID     *big.Int
	BlockNumber uint64
	Contract    common.Address
	Network     string
}

// Question mirrors the AskWorld.Question struct.
type Question struct {
	Id                *big.Int
	Asker             common.Address
	Prompt            string
	AnswersNeeded     *big.Int
	Bounty            *big.Int
	ValidAnswersCount *big.Int
	TotalAnswersCount *big.Int
	Status            uint8
	CreatedAt         *big.Int
	ClosedAt          *big.Int
	Exists            bool
}

// Answer mirrors the AskWorld.Answer struct.
type Answer struct {
	Provider    common.Address
	AudioHash   string
	Status      uint8
	SubmittedAt *big.Int
	ValidatedAt *big.Int
}

// UnvalidatedAnswer is the result of getNextUnvalidatedAnswer. A zero
// QuestionId means there is nothing left to validate.
type UnvalidatedAnswer struct {
	QuestionId  *big.Int
	AnswerIndex *big.Int
	Provider    common.Address
	AudioHash   string
	SubmittedAt *big.Int
}

// None reports whether the contract signalled that no answer is pending.
func (u UnvalidatedAnswer) None() bool {
	return u.QuestionId == nil || u.QuestionId.Sign() == 0
}

// ContractStats is the result of getContractStats.
type ContractStats struct {
	TotalQuestionsCount    *big.Int
	TotalAnswersCount      *big.Int
	TotalValidAnswersCount *big.Int
	OpenQuestionsCount     *big.Int
	ClosedQuestionsCount   *big.Int
}

// QuestionStats is the result of getQuestionStats.
type QuestionStats struct {
	ValidCount  *big.Int
	TotalCount  *big.Int
	NeededCount *big.Int
	IsComplete  bool
}

// Submission describes a transaction accepted by the node.
type Submission struct {
	TxHash   common.Hash
	Nonce    uint64
	Attempts int
}

// Client defines the contract operations the AskWorld workflow relies on.
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	ReadFunction(ctx context.Context, name string, args []any) (string, error)
	OpenQuestions(ctx context.Context) ([]*big.Int, error)
	NextUnvalidatedAnswer(ctx context.Context) (UnvalidatedAnswer, error)
	Question(ctx context.Context, id *big.Int) (Question, error)
	QuestionAnswers(ctx context.Context, id *big.Int) ([]Answer, error)
	ValidateAnswer(ctx context.Context, questionID, answerIndex *big.Int, valid bool) (Submission, error)
	CanSign() bool
	Close()
}

// ReadFunctions lists the view functions that may be called by name.
var ReadFunctions = []string{
	"owner",
	"totalQuestions",
	"totalAnswers",
	"totalValidAnswers",
	"getContractStats",
	"getOpenQuestions",
	"getQuestion",
	"getQuestionAnswers",
	"getQuestionStats",
	"getNextUnvalidatedAnswer",
}

// IsReadable reports whether name is in ReadFunctions.
func IsReadable(name string) bool {
	for _, fn := range ReadFunctions {
		if fn == name {
			return true
		}
	}
	return false
}
