package askworld

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"AskWorld-Agents/internal/agent"
	"AskWorld-Agents/internal/correlate"
	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/llm"
	"AskWorld-Agents/internal/observability/alerting"
	"AskWorld-Agents/internal/protocol"
	"AskWorld-Agents/internal/storage/ledger"
	"AskWorld-Agents/internal/web3"
)

type fakeChain struct {
	snapshot    web3.ChainSnapshot
	snapshotErr error
	readResult  string
	readErr     error
	readCalls   []string
	readArgs    [][]any
	open        []*big.Int
	next        web3.UnvalidatedAnswer
	question    web3.Question
	answers     []web3.Answer
	canSign     bool
	submission  web3.Submission
	submitErr   error
	submitted   []bool
}

func (f *fakeChain) FetchChainSnapshot(context.Context) (web3.ChainSnapshot, error) {
	return f.snapshot, f.snapshotErr
}

func (f *fakeChain) ReadFunction(_ context.Context, name string, args []any) (string, error) {
	f.readCalls = append(f.readCalls, name)
	f.readArgs = append(f.readArgs, args)
	return f.readResult, f.readErr
}

func (f *fakeChain) OpenQuestions(context.Context) ([]*big.Int, error) { return f.open, nil }

func (f *fakeChain) NextUnvalidatedAnswer(context.Context) (web3.UnvalidatedAnswer, error) {
	return f.next, nil
}

func (f *fakeChain) Question(context.Context, *big.Int) (web3.Question, error) {
	return f.question, nil
}

func (f *fakeChain) QuestionAnswers(context.Context, *big.Int) ([]web3.Answer, error) {
	return f.answers, nil
}

func (f *fakeChain) ValidateAnswer(_ context.Context, _, _ *big.Int, valid bool) (web3.Submission, error) {
	f.submitted = append(f.submitted, valid)
	return f.submission, f.submitErr
}

func (f *fakeChain) CanSign() bool { return f.canSign }
func (f *fakeChain) Close()        {}

type fakeJudge struct {
	verdict   llm.Judgement
	judgeErr  error
	summary   string
	questions []string
	answers   [][]string
}

func (f *fakeJudge) JudgeAnswer(_ context.Context, question, answer string) (*llm.Judgement, error) {
	f.questions = append(f.questions, question)
	f.answers = append(f.answers, []string{answer})
	if f.judgeErr != nil {
		return nil, f.judgeErr
	}
	v := f.verdict
	return &v, nil
}

func (f *fakeJudge) Summarize(_ context.Context, question string, answers []string) (string, error) {
	f.questions = append(f.questions, question)
	f.answers = append(f.answers, answers)
	return f.summary, nil
}

type recordingAlerts struct {
	events []alerting.Event
}

func (r *recordingAlerts) Notify(_ context.Context, event alerting.Event) error {
	r.events = append(r.events, event)
	return nil
}

// blobAgent 模拟 /transcribe-blob 接口，transcripts 为 blob ID 到转写文本的映射。
func blobAgent(t *testing.T, transcripts map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.BlobTranscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.RequestID != "transcribe_"+req.BlobID {
			t.Errorf("unexpected request id: %s", req.RequestID)
		}
		resp := protocol.BlobTranscriptionResponse{BlobID: req.BlobID, RequestID: req.RequestID}
		if text, ok := transcripts[req.BlobID]; ok {
			resp.Transcript = text
			resp.Success = true
		} else {
			resp.ErrorMessage = "Blob not found"
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newService(chain web3.Client, judge Judge, blobURL string, store Recorder) *Service {
	return NewService(Config{
		Chain:      chain,
		Judge:      judge,
		Correlator: correlate.New(correlate.Config{Address: "agent.askworld"}),
		BlobAgent:  correlate.Target{Address: blobURL},
		Ledger:     store,
		Timeout:    time.Second,
	})
}

func pendingChain() *fakeChain {
	return &fakeChain{
		open: []*big.Int{big.NewInt(7)},
		next: web3.UnvalidatedAnswer{
			QuestionId:  big.NewInt(7),
			AnswerIndex: big.NewInt(2),
			Provider:    common.HexToAddress("0x00000000000000000000000000000000000000aa"),
			AudioHash:   "blob-7-2",
			SubmittedAt: big.NewInt(1700000000),
		},
		question: web3.Question{
			Id:                big.NewInt(7),
			Prompt:            "Best pizza in Naples?",
			AnswersNeeded:     big.NewInt(3),
			ValidAnswersCount: big.NewInt(1),
			TotalAnswersCount: big.NewInt(4),
			Exists:            true,
		},
	}
}

func TestParseCommand(t *testing.T) {
	cmd := ParseCommand("getQuestion(0x1f, 42, abc)")
	if cmd.Name != "getQuestion" || len(cmd.Args) != 3 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if cmd.Args[0].(*big.Int).Int64() != 31 || cmd.Args[1].(*big.Int).Int64() != 42 || cmd.Args[2] != "abc" {
		t.Fatalf("unexpected args: %#v", cmd.Args)
	}

	cmd = ParseCommand("  getQuestionStats   5 ")
	if cmd.Name != "getQuestionStats" || len(cmd.Args) != 1 || cmd.Args[0].(*big.Int).Int64() != 5 {
		t.Fatalf("unexpected command: %+v", cmd)
	}

	if cmd = ParseCommand("owner()"); cmd.Name != "owner" || len(cmd.Args) != 0 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if cmd = ParseCommand("x 0xzz"); cmd.Args[0] != "0xzz" {
		t.Fatalf("invalid hex should stay a string: %#v", cmd.Args)
	}
	if cmd = ParseCommand("   "); cmd.Name != "" {
		t.Fatalf("blank input should produce an empty command: %+v", cmd)
	}
}

func TestHandleEmpty(t *testing.T) {
	svc := newService(&fakeChain{}, nil, "", nil)
	if got := svc.Handle(context.Background(), agent.Request{Text: "  "}); got != EmptyCommandReply {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestConnectionCheck(t *testing.T) {
	chain := &fakeChain{snapshot: web3.ChainSnapshot{
		ChainID:     big.NewInt(480),
		BlockNumber: 12345,
		Contract:    common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		Network:     "worldchain",
	}}
	svc := newService(chain, nil, "", nil)
	for _, word := range []string{"connection", "connect", "Network", "status"} {
		got := svc.Execute(context.Background(), word)
		if !strings.HasPrefix(got, "✅ Connected to worldchain!") ||
			!strings.Contains(got, "📊 Latest block: 12345") ||
			!strings.Contains(got, "⛓️ Chain ID: 480") ||
			!strings.Contains(got, "🔗 Contract: "+chain.snapshot.Contract.Hex()) {
			t.Fatalf("unexpected reply for %q: %q", word, got)
		}
	}

	chain.snapshotErr = xerrors.New(web3.CodeChainFailure, "dial tcp: refused")
	if got := svc.Execute(context.Background(), "status"); got != "❌ Connection error: dial tcp: refused" {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestHelpListsFunctions(t *testing.T) {
	got := newService(&fakeChain{}, nil, "", nil).Execute(context.Background(), "help")
	if !strings.HasPrefix(got, "📋 Available read functions:\n• owner") || !strings.Contains(got, "• getNextUnvalidatedAnswer") {
		t.Fatalf("unexpected help: %q", got)
	}
}

func TestReadFunction(t *testing.T) {
	chain := &fakeChain{readResult: "✅ totalQuestions() = 3"}
	svc := newService(chain, nil, "", nil)

	if got := svc.Execute(context.Background(), "totalQuestions"); got != "✅ totalQuestions() = 3" {
		t.Fatalf("unexpected reply: %q", got)
	}
	svc.Execute(context.Background(), "getQuestion(7)")
	if chain.readCalls[1] != "getQuestion" || chain.readArgs[1][0].(*big.Int).Int64() != 7 {
		t.Fatalf("arguments not forwarded: %v %#v", chain.readCalls, chain.readArgs)
	}

	got := svc.Execute(context.Background(), "transferOwnership")
	if !strings.HasPrefix(got, "❌ Function 'transferOwnership' not found or not readable.\n📋 Available functions: owner, totalQuestions") {
		t.Fatalf("unexpected reply: %q", got)
	}
	if len(chain.readCalls) != 2 {
		t.Fatalf("disallowed function reached the chain")
	}

	chain.readErr = errors.New("execution reverted")
	if got := svc.Execute(context.Background(), "owner"); got != "❌ Error calling owner: execution reverted" {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestCall(t *testing.T) {
	chain := &fakeChain{readResult: "✅ owner() = 0xabc"}
	svc := newService(chain, nil, "", nil)

	resp := svc.Call(context.Background(), protocol.FunctionCallRequest{FunctionName: "owner"})
	if !resp.Success || resp.Result != "✅ owner() = 0xabc" || resp.FunctionName != "owner" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	resp = svc.Call(context.Background(), protocol.FunctionCallRequest{FunctionName: "selfdestruct"})
	if resp.Success || !strings.HasPrefix(resp.ErrorMessage, "❌ Function 'selfdestruct'") || resp.Result != "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestValidateNothingToDo(t *testing.T) {
	svc := newService(&fakeChain{}, nil, "", nil)
	if got := svc.Execute(context.Background(), "validate"); got != "✅ No open questions found to validate." {
		t.Fatalf("unexpected reply: %q", got)
	}

	chain := &fakeChain{open: []*big.Int{big.NewInt(1)}, next: web3.UnvalidatedAnswer{QuestionId: big.NewInt(0)}}
	svc = newService(chain, nil, "", nil)
	if got := svc.Execute(context.Background(), "validate"); got != "✅ No unvalidated answers found to validate." {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestValidateSubmitsAndRecords(t *testing.T) {
	srv := blobAgent(t, map[string]string{"blob-7-2": "Da Michele, without a doubt."})
	chain := pendingChain()
	chain.canSign = true
	chain.submission = web3.Submission{TxHash: common.HexToHash("0x01"), Nonce: 9, Attempts: 2}
	judge := &fakeJudge{verdict: llm.Judgement{Valid: true, Reason: "names a pizzeria"}}
	store, err := ledger.NewMemoryStore("")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	got := newService(chain, judge, srv.URL, store).Execute(context.Background(), "validate")

	for _, want := range []string{
		"✅ **Validation Request for Unanswered Question**",
		"❓ Question ID: 7",
		"❓ Prompt: \"Best pizza in Naples?\"",
		"📊 Progress: 1/3 valid answers needed",
		"📝 Total Answers: 4",
		"🎵 Audio Hash (Blob ID): blob-7-2",
		"📊 Answer Index: 2",
		"✅ Transcription: Da Michele, without a doubt.",
		"✅ Answer is valid\n📝 Reason: names a pizzeria",
		"✅ validateAnswer submitted",
		"🔢 Nonce: 9",
		"🔁 Attempts: 2",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}
	if judge.questions[0] != "Best pizza in Naples?" || judge.answers[0][0] != "Da Michele, without a doubt." {
		t.Fatalf("judge received %v %v", judge.questions, judge.answers)
	}
	if len(chain.submitted) != 1 || !chain.submitted[0] {
		t.Fatalf("unexpected submissions: %v", chain.submitted)
	}

	receipts, err := store.List(context.Background(), 10)
	if err != nil || len(receipts) != 1 {
		t.Fatalf("expected one receipt, got %v %v", receipts, err)
	}
	r := receipts[0]
	if r.QuestionID != "7" || r.AnswerIndex != "2" || !r.Valid || r.Nonce != 9 || r.Attempts != 2 || r.Reason != "names a pizzeria" {
		t.Fatalf("unexpected receipt: %+v", r)
	}
}

func TestValidateWithoutSigner(t *testing.T) {
	srv := blobAgent(t, map[string]string{"blob-7-2": "somewhere"})
	chain := pendingChain()
	judge := &fakeJudge{verdict: llm.Judgement{Valid: false, Reason: "too vague"}}

	got := newService(chain, judge, srv.URL, nil).Execute(context.Background(), "validate")
	if !strings.Contains(got, "🚫 Answer is invalid") || !strings.HasSuffix(got, manualNextSteps) {
		t.Fatalf("unexpected report:\n%s", got)
	}
	if len(chain.submitted) != 0 {
		t.Fatalf("transaction submitted without a signer")
	}
}

func TestValidateTranscriptionFailure(t *testing.T) {
	srv := blobAgent(t, nil)
	chain := pendingChain()
	chain.canSign = true
	judge := &fakeJudge{}

	got := newService(chain, judge, srv.URL, nil).Execute(context.Background(), "validate")
	if !strings.Contains(got, "❌ Transcription failed: Blob not found") {
		t.Fatalf("unexpected report:\n%s", got)
	}
	if len(judge.questions) != 0 || len(chain.submitted) != 0 {
		t.Fatalf("failed transcription must stop the flow")
	}
}

func TestValidateSubmissionFailure(t *testing.T) {
	srv := blobAgent(t, map[string]string{"blob-7-2": "answer"})
	chain := pendingChain()
	chain.canSign = true
	chain.submitErr = xerrors.New(xerrors.CodeRetriesExhausted, "nonce retries exhausted")
	store, _ := ledger.NewMemoryStore("")
	alerts := &recordingAlerts{}

	svc := newService(chain, &fakeJudge{verdict: llm.Judgement{Valid: true}}, srv.URL, store)
	svc.alerts = alerts
	got := svc.Execute(context.Background(), "validate")
	if !strings.Contains(got, "❌ validateAnswer failed: nonce retries exhausted") {
		t.Fatalf("unexpected report:\n%s", got)
	}
	if len(alerts.events) != 1 || alerts.events[0].Code != xerrors.CodeRetriesExhausted || alerts.events[0].Metadata["question_id"] != "7" {
		t.Fatalf("unexpected alerts: %+v", alerts.events)
	}
	if receipts, _ := store.List(context.Background(), 10); len(receipts) != 0 {
		t.Fatalf("failed submission must not be recorded")
	}
}

func TestSummarize(t *testing.T) {
	srv := blobAgent(t, map[string]string{"a": "first", "b": "second"})
	chain := pendingChain()
	chain.answers = []web3.Answer{
		{AudioHash: "a", Status: web3.AnswerValid},
		{AudioHash: "junk", Status: web3.AnswerInvalid},
		{AudioHash: "b", Status: web3.AnswerPending},
		{AudioHash: "missing", Status: web3.AnswerPending},
	}
	judge := &fakeJudge{summary: "People agree on Da Michele."}

	got := newService(chain, judge, srv.URL, nil).Execute(context.Background(), "summarize 7")
	if !strings.HasPrefix(got, "✅ Summary for question 7:") ||
		!strings.Contains(got, "📝 Answers summarized: 2") ||
		!strings.Contains(got, "People agree on Da Michele.") ||
		!strings.Contains(got, "⚠️ Skipped answers: 2") {
		t.Fatalf("unexpected summary:\n%s", got)
	}
	if strings.Join(judge.answers[0], ",") != "first,second" {
		t.Fatalf("unexpected transcripts: %v", judge.answers[0])
	}

	if got := newService(chain, judge, srv.URL, nil).Execute(context.Background(), "summarize"); got != "❌ Usage: summarize <questionId>" {
		t.Fatalf("unexpected reply: %q", got)
	}

	chain.question.Exists = false
	if got := newService(chain, judge, srv.URL, nil).Execute(context.Background(), "summarize 9"); !strings.HasPrefix(got, "❌ Error summarizing question 9: question 9 does not exist") {
		t.Fatalf("unexpected reply: %q", got)
	}
}
