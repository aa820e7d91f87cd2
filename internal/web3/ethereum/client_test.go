package ethereum

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/testutil"

	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/observability/metrics"
	"AskWorld-Agents/internal/web3"
)

const testContract = "0x5549A2E7a5b6eE6B556C0EE5eF5256B7c4eD46D6"

type fakeBackend struct {
	abi      abi.ABI
	results  map[string][]any
	reverts  map[string]error
	sendErrs []error
	sent     []*coretypes.Transaction
	nonce    uint64
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(askWorldABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return &fakeBackend{abi: parsed, results: map[string][]any{}, reverts: map[string]error{}, nonce: 5}
}

func (f *fakeBackend) CallContract(_ context.Context, msg gethcore.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	if err := f.reverts[method.Name]; err != nil {
		return nil, err
	}
	return method.Outputs.Pack(f.results[method.Name]...)
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(480), nil }
func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return 1234, nil
}
func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}
func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *coretypes.Transaction) error {
	f.sent = append(f.sent, tx)
	if i := len(f.sent) - 1; i < len(f.sendErrs) {
		return f.sendErrs[i]
	}
	return nil
}

func newTestClient(t *testing.T, backend Backend, key string, m *metrics.Metrics) *Client {
	t.Helper()
	client, err := NewWithBackend(backend, Config{Contract: testContract, PrivateKey: key, Metrics: m})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewWithBackendValidation(t *testing.T) {
	backend := newFakeBackend(t)
	if _, err := NewWithBackend(backend, Config{Contract: "not-an-address"}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := NewWithBackend(backend, Config{Contract: testContract, PrivateKey: "zz"}); err == nil {
		t.Fatalf("expected key parse error")
	}
	if _, err := NewWithBackend(nil, Config{Contract: testContract}); err == nil {
		t.Fatalf("expected error for nil backend")
	}
}

func TestFetchChainSnapshot(t *testing.T) {
	client := newTestClient(t, newFakeBackend(t), "", nil)
	snapshot, err := client.FetchChainSnapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.ChainID.Int64() != 480 || snapshot.BlockNumber != 1234 || snapshot.Contract != common.HexToAddress(testContract) {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestReadFunctionScalars(t *testing.T) {
	backend := newFakeBackend(t)
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	backend.results["totalQuestions"] = []any{big.NewInt(7)}
	backend.results["owner"] = []any{owner}
	client := newTestClient(t, backend, "", nil)

	got, err := client.ReadFunction(context.Background(), "totalQuestions", nil)
	if err != nil || got != "✅ totalQuestions() = 7" {
		t.Fatalf("unexpected result: %q %v", got, err)
	}
	got, err = client.ReadFunction(context.Background(), "owner", nil)
	if err != nil || got != "✅ owner() = "+owner.Hex() {
		t.Fatalf("unexpected result: %q %v", got, err)
	}
}

func TestReadFunctionNotReadable(t *testing.T) {
	client := newTestClient(t, newFakeBackend(t), "", nil)
	_, err := client.ReadFunction(context.Background(), "validateAnswer", []any{big.NewInt(1), big.NewInt(0), "true"})
	if xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReadFunctionStructs(t *testing.T) {
	backend := newFakeBackend(t)
	asker := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	backend.results["getQuestion"] = []any{web3.Question{
		Id: big.NewInt(1), Asker: asker, Prompt: "Best pizza?", AnswersNeeded: big.NewInt(3),
		Bounty: big.NewInt(100), ValidAnswersCount: big.NewInt(1), TotalAnswersCount: big.NewInt(2),
		Status: web3.QuestionOpen, CreatedAt: big.NewInt(10), ClosedAt: big.NewInt(0), Exists: true,
	}}
	backend.results["getQuestionAnswers"] = []any{[]web3.Answer{
		{Provider: asker, AudioHash: "blob-1", Status: web3.AnswerValid, SubmittedAt: big.NewInt(11), ValidatedAt: big.NewInt(12)},
		{Provider: asker, AudioHash: "blob-2", Status: 9, SubmittedAt: big.NewInt(13), ValidatedAt: big.NewInt(0)},
	}}
	backend.results["getContractStats"] = []any{big.NewInt(4), big.NewInt(8), big.NewInt(2), big.NewInt(3), big.NewInt(1)}
	backend.results["getQuestionStats"] = []any{big.NewInt(1), big.NewInt(2), big.NewInt(3), false}
	backend.results["getOpenQuestions"] = []any{[]*big.Int{big.NewInt(1), big.NewInt(4)}}
	client := newTestClient(t, backend, "", nil)
	ctx := context.Background()

	got, err := client.ReadFunction(ctx, "getQuestion", []any{"1"})
	if err != nil {
		t.Fatalf("getQuestion: %v", err)
	}
	for _, want := range []string{"✅ Question 1:", "❓ Prompt: Best pizza?", "💰 Bounty: 100 wei", "📈 Status: Open", "📋 Exists: true"} {
		if !strings.Contains(got, want) {
			t.Fatalf("%q missing from %q", want, got)
		}
	}

	got, err = client.ReadFunction(ctx, "getQuestionAnswers", []any{big.NewInt(1)})
	if err != nil {
		t.Fatalf("getQuestionAnswers: %v", err)
	}
	if !strings.Contains(got, "Answer 0:") || !strings.Contains(got, "📊 Status: Valid") || !strings.Contains(got, "📊 Status: Unknown") {
		t.Fatalf("unexpected answers: %q", got)
	}

	got, err = client.ReadFunction(ctx, "getContractStats", nil)
	if err != nil || !strings.Contains(got, "🔓 Open Questions: 3") {
		t.Fatalf("unexpected stats: %q %v", got, err)
	}
	got, err = client.ReadFunction(ctx, "getQuestionStats", []any{big.NewInt(1)})
	if err != nil || !strings.HasSuffix(got, "🎯 Complete: false") {
		t.Fatalf("unexpected question stats: %q %v", got, err)
	}
	got, err = client.ReadFunction(ctx, "getOpenQuestions", nil)
	if err != nil || got != "✅ Open Questions: 1, 4" {
		t.Fatalf("unexpected open questions: %q %v", got, err)
	}

	if _, err := client.ReadFunction(ctx, "getQuestion", nil); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("missing argument should be rejected, got %v", err)
	}
}

func TestNextUnvalidatedAnswer(t *testing.T) {
	backend := newFakeBackend(t)
	provider := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	backend.results["getNextUnvalidatedAnswer"] = []any{big.NewInt(2), big.NewInt(1), provider, "blob-9", big.NewInt(99)}
	client := newTestClient(t, backend, "", nil)

	next, err := client.NextUnvalidatedAnswer(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next.None() || next.QuestionId.Int64() != 2 || next.AudioHash != "blob-9" || next.Provider != provider {
		t.Fatalf("unexpected answer: %+v", next)
	}

	backend.reverts["getNextUnvalidatedAnswer"] = errors.New("execution reverted: No unvalidated answers found")
	next, err = client.NextUnvalidatedAnswer(context.Background())
	if err != nil || !next.None() {
		t.Fatalf("revert should map to none: %+v %v", next, err)
	}
	got, err := client.ReadFunction(context.Background(), "getNextUnvalidatedAnswer", nil)
	if err != nil || got != "✅ No unvalidated answers found" {
		t.Fatalf("unexpected result: %q %v", got, err)
	}

	backend.reverts["getNextUnvalidatedAnswer"] = errors.New("connection refused")
	if _, err := client.NextUnvalidatedAnswer(context.Background()); xerrors.CodeOf(err) != web3.CodeChainFailure {
		t.Fatalf("expected chain failure, got %v", err)
	}
}

func TestConvertArgs(t *testing.T) {
	uint256, _ := abi.NewType("uint256", "", nil)
	uint8Type, _ := abi.NewType("uint8", "", nil)
	boolType, _ := abi.NewType("bool", "", nil)
	addrType, _ := abi.NewType("address", "", nil)
	inputs := abi.Arguments{{Type: uint256}, {Type: uint8Type}, {Type: boolType}, {Type: addrType}}

	got, err := ConvertArgs(inputs, []any{"0x10", big.NewInt(2), "true", "0x00000000000000000000000000000000000000aa"})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got[0].(*big.Int).Int64() != 16 || got[1].(uint8) != 2 || got[2].(bool) != true {
		t.Fatalf("unexpected conversion: %#v", got)
	}
	if got[3].(common.Address) != common.HexToAddress("0xaa") {
		t.Fatalf("unexpected address: %v", got[3])
	}

	if _, err := ConvertArgs(inputs[:2], []any{big.NewInt(1), big.NewInt(300)}); err == nil {
		t.Fatalf("expected uint8 overflow")
	}
	if _, err := ConvertArgs(inputs[:1], []any{"abc"}); err == nil {
		t.Fatalf("expected integer parse error")
	}
	if _, err := ConvertArgs(inputs[:1], nil); err == nil {
		t.Fatalf("expected argument count error")
	}
}

func TestClassifyTxError(t *testing.T) {
	cases := map[string]ErrorClass{
		"nonce too low: next nonce 6, tx nonce 5": ClassNonceTooLow,
		"Nonce Too Low":              ClassNonceTooLow,
		"rlp: expected input list":   ClassRLPEncoding,
		"insufficient funds for gas": ClassOther,
	}
	for msg, want := range cases {
		if got := ClassifyTxError(errors.New(msg)); got != want {
			t.Fatalf("ClassifyTxError(%q) = %s, want %s", msg, got, want)
		}
	}
	if PolicyFor(ClassNonceTooLow) != ActionIncrementNonce || PolicyFor(ClassRLPEncoding) != ActionResetNonce || PolicyFor(ClassOther) != ActionFail {
		t.Fatalf("unexpected retry policy")
	}
}

func TestValidateAnswerRetryPolicy(t *testing.T) {
	nonceTooLow := errors.New("nonce too low")
	rlp := errors.New("rlp: input string too long")
	other := errors.New("insufficient funds")

	cases := []struct {
		name       string
		errs       []error
		wantSends  int
		wantNonces []uint64
		wantCode   xerrors.Code
	}{
		{name: "first try", errs: nil, wantSends: 1, wantNonces: []uint64{5}},
		{name: "nonce too low then success", errs: []error{nonceTooLow}, wantSends: 2, wantNonces: []uint64{5, 6}},
		{name: "rlp resets nonce", errs: []error{rlp}, wantSends: 2, wantNonces: []uint64{5, 0}},
		{name: "rlp twice fails", errs: []error{rlp, rlp}, wantSends: 2, wantNonces: []uint64{5, 0}, wantCode: web3.CodeChainFailure},
		{name: "other fails immediately", errs: []error{other}, wantSends: 1, wantNonces: []uint64{5}, wantCode: web3.CodeChainFailure},
		{name: "budget exhausted", errs: []error{nonceTooLow, nonceTooLow, nonceTooLow}, wantSends: 3, wantNonces: []uint64{5, 6, 7}, wantCode: xerrors.CodeRetriesExhausted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := crypto.GenerateKey()
			if err != nil {
				t.Fatalf("generate key: %v", err)
			}
			backend := newFakeBackend(t)
			backend.sendErrs = tc.errs
			m := metrics.New("test")
			client := newTestClient(t, backend, common.Bytes2Hex(crypto.FromECDSA(key)), m)

			sub, err := client.ValidateAnswer(context.Background(), big.NewInt(2), big.NewInt(1), true)
			if len(backend.sent) != tc.wantSends {
				t.Fatalf("sent %d transactions, want %d", len(backend.sent), tc.wantSends)
			}
			for i, tx := range backend.sent {
				if tx.Nonce() != tc.wantNonces[i] {
					t.Fatalf("attempt %d used nonce %d, want %d", i+1, tx.Nonce(), tc.wantNonces[i])
				}
			}
			if tc.wantCode != "" {
				if xerrors.CodeOf(err) != tc.wantCode {
					t.Fatalf("expected %s, got %v", tc.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}

			last := backend.sent[len(backend.sent)-1]
			if sub.TxHash != last.Hash() || sub.Attempts != tc.wantSends || sub.Nonce != last.Nonce() {
				t.Fatalf("unexpected submission: %+v", sub)
			}
			sender, err := coretypes.Sender(coretypes.LatestSignerForChainID(big.NewInt(480)), last)
			if err != nil || sender != crypto.PubkeyToAddress(key.PublicKey) {
				t.Fatalf("unexpected sender %s: %v", sender.Hex(), err)
			}
			if *last.To() != common.HexToAddress(testContract) {
				t.Fatalf("unexpected destination: %s", last.To().Hex())
			}
			if testutil.ToFloat64(m.TxAttemptsTotal.WithLabelValues("success")) != 1 {
				t.Fatalf("success should be counted once")
			}
		})
	}
}

func TestValidateAnswerRequiresSigner(t *testing.T) {
	client := newTestClient(t, newFakeBackend(t), "", nil)
	if client.CanSign() {
		t.Fatalf("client without key must be read-only")
	}
	if _, err := client.ValidateAnswer(context.Background(), big.NewInt(1), big.NewInt(0), false); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected initialization failure, got %v", err)
	}
}
