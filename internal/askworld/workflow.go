package askworld

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/observability/alerting"
	"AskWorld-Agents/internal/storage/ledger"
	"AskWorld-Agents/internal/web3"
	"AskWorld-Agents/pkg/logger"
)

// Validate 取下一条待验证答案，转写音频、交由大模型评审，并在配置了签名私钥时提交 validateAnswer。
func (s *Service) Validate(ctx context.Context) string {
	report, err := s.validate(ctx)
	s.metrics.RecordOperation("validate", err == nil)
	if err != nil {
		s.logger.Warn("验证流程失败", slog.Any("error", err))
		return "❌ Error in validation process: " + xerrors.DetailOf(err)
	}
	return report
}

func (s *Service) validate(ctx context.Context) (string, error) {
	if s.chain == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "chain client not configured")
	}
	open, err := s.chain.OpenQuestions(ctx)
	if err != nil {
		return "", err
	}
	if len(open) == 0 {
		return "✅ No open questions found to validate.", nil
	}

	next, err := s.chain.NextUnvalidatedAnswer(ctx)
	if err != nil {
		return "", err
	}
	if next.None() {
		return "✅ No unvalidated answers found to validate.", nil
	}

	question, err := s.chain.Question(ctx, next.QuestionId)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ **Validation Request for Unanswered Question**\n\n")
	fmt.Fprintf(&b, "📋 **Question Details:**\n")
	fmt.Fprintf(&b, "❓ Question ID: %s\n", next.QuestionId)
	fmt.Fprintf(&b, "❓ Prompt: \"%s\"\n", question.Prompt)
	fmt.Fprintf(&b, "📊 Progress: %s/%s valid answers needed\n", bigText(question.ValidAnswersCount), bigText(question.AnswersNeeded))
	fmt.Fprintf(&b, "📝 Total Answers: %s\n\n", bigText(question.TotalAnswersCount))
	fmt.Fprintf(&b, "📝 **Answer to Validate:**\n")
	fmt.Fprintf(&b, "👤 Provider: %s\n", next.Provider.Hex())
	fmt.Fprintf(&b, "🎵 Audio Hash (Blob ID): %s\n", next.AudioHash)
	fmt.Fprintf(&b, "📊 Answer Index: %s\n", bigText(next.AnswerIndex))
	fmt.Fprintf(&b, "🕐 Submitted: %s\n\n", bigText(next.SubmittedAt))

	transcript, failure := s.transcribe(ctx, next.AudioHash)
	fmt.Fprintf(&b, "🎵 **Audio Transcription:**\n")
	if failure != "" {
		fmt.Fprintf(&b, "❌ Transcription failed: %s\n\n", failure)
		b.WriteString(manualNextSteps)
		return b.String(), nil
	}
	fmt.Fprintf(&b, "✅ Transcription: %s\n\n", transcript)

	if s.judge == nil {
		b.WriteString(manualNextSteps)
		return b.String(), nil
	}
	verdict, err := s.judge.JudgeAnswer(ctx, question.Prompt, transcript)
	if err != nil {
		s.logger.Warn("大模型评审失败", slog.Any("error", err))
		fmt.Fprintf(&b, "⚖️ **Judgement:**\n❌ Judgement failed: %s\n\n", xerrors.DetailOf(err))
		b.WriteString(manualNextSteps)
		return b.String(), nil
	}
	fmt.Fprintf(&b, "⚖️ **Judgement:**\n%s %s\n📝 Reason: %s\n\n", verdictIcon(verdict.Valid), verdictText(verdict.Valid), verdict.Reason)

	if !s.chain.CanSign() {
		b.WriteString(manualNextSteps)
		return b.String(), nil
	}

	submission, err := s.chain.ValidateAnswer(ctx, next.QuestionId, next.AnswerIndex, verdict.Valid)
	b.WriteString("⛓️ **Transaction:**\n")
	if err != nil {
		s.alert(ctx, err, next)
		fmt.Fprintf(&b, "❌ validateAnswer failed: %s", xerrors.DetailOf(err))
		return b.String(), nil
	}
	fmt.Fprintf(&b, "✅ validateAnswer submitted\n🔗 Tx Hash: %s\n🔢 Nonce: %d\n🔁 Attempts: %d",
		submission.TxHash.Hex(), submission.Nonce, submission.Attempts)

	s.record(ctx, next, verdict.Valid, verdict.Reason, submission)
	return b.String(), nil
}

const manualNextSteps = "💡 **Next Steps:**\nUse the contract's validateAnswer function to mark this answer as valid or invalid."

func (s *Service) record(ctx context.Context, next web3.UnvalidatedAnswer, valid bool, reason string, sub web3.Submission) {
	logger.Audit().Info("answer validated",
		slog.String("question_id", bigText(next.QuestionId)),
		slog.String("answer_index", bigText(next.AnswerIndex)),
		slog.Bool("valid", valid),
		slog.String("tx_hash", sub.TxHash.Hex()))
	if s.ledger == nil {
		return
	}
	err := s.ledger.Record(ctx, ledger.Receipt{
		QuestionID:  bigText(next.QuestionId),
		AnswerIndex: bigText(next.AnswerIndex),
		Valid:       valid,
		Reason:      reason,
		TxHash:      sub.TxHash.Hex(),
		Nonce:       sub.Nonce,
		Attempts:    sub.Attempts,
	})
	if err != nil {
		s.logger.Error("写入验证回执失败", slog.Any("error", err))
	}
}

// alert 上报交易提交失败。
func (s *Service) alert(ctx context.Context, err error, next web3.UnvalidatedAnswer) {
	if s.alerts == nil {
		return
	}
	event := alerting.FromError("askworld", err, map[string]string{
		"question_id":  bigText(next.QuestionId),
		"answer_index": bigText(next.AnswerIndex),
	})
	if notifyErr := s.alerts.Notify(ctx, event); notifyErr != nil {
		s.logger.Warn("发送告警失败", slog.Any("error", notifyErr))
	}
}

// Summarize 转写问题下的全部答案并交由大模型总结。
func (s *Service) Summarize(ctx context.Context, questionID *big.Int) string {
	report, err := s.summarize(ctx, questionID)
	s.metrics.RecordOperation("summarize", err == nil)
	if err != nil {
		return fmt.Sprintf("❌ Error summarizing question %s: %s", questionID, xerrors.DetailOf(err))
	}
	return report
}

func (s *Service) summarize(ctx context.Context, questionID *big.Int) (string, error) {
	if s.chain == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "chain client not configured")
	}
	if s.judge == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "language model not configured")
	}
	question, err := s.chain.Question(ctx, questionID)
	if err != nil {
		return "", err
	}
	if !question.Exists {
		return "", xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("question %s does not exist", questionID))
	}
	answers, err := s.chain.QuestionAnswers(ctx, questionID)
	if err != nil {
		return "", err
	}
	if len(answers) == 0 {
		return fmt.Sprintf("✅ Question %s has no answers to summarize.", questionID), nil
	}

	transcripts := make([]string, 0, len(answers))
	skipped := 0
	for _, answer := range answers {
		if answer.Status == web3.AnswerInvalid {
			skipped++
			continue
		}
		text, failure := s.transcribe(ctx, answer.AudioHash)
		if failure != "" {
			s.logger.Warn("答案转写失败", slog.String("audio_hash", answer.AudioHash), slog.String("reason", failure))
			skipped++
			continue
		}
		transcripts = append(transcripts, text)
	}
	if len(transcripts) == 0 {
		return "", xerrors.New(xerrors.CodeUpstreamFailure, "no answer could be transcribed")
	}

	summary, err := s.judge.Summarize(ctx, question.Prompt, transcripts)
	if err != nil {
		return "", err
	}
	out := fmt.Sprintf("✅ Summary for question %s:\n❓ Prompt: \"%s\"\n📝 Answers summarized: %d\n\n%s",
		questionID, question.Prompt, len(transcripts), strings.TrimSpace(summary))
	if skipped > 0 {
		out += fmt.Sprintf("\n\n⚠️ Skipped answers: %d", skipped)
	}
	return out, nil
}

func bigText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func verdictIcon(valid bool) string {
	if valid {
		return "✅"
	}
	return "🚫"
}

func verdictText(valid bool) string {
	if valid {
		return "Answer is valid"
	}
	return "Answer is invalid"
}
