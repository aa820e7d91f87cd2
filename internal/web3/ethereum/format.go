package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"AskWorld-Agents/internal/web3"
)

// FormatContractStats renders getContractStats.
func FormatContractStats(s web3.ContractStats) string {
	return fmt.Sprintf("✅ Contract Statistics:\n📊 Total Questions: %s\n📝 Total Answers: %s\n✅ Valid Answers: %s\n🔓 Open Questions: %s\n🔒 Closed Questions: %s",
		num(s.TotalQuestionsCount), num(s.TotalAnswersCount), num(s.TotalValidAnswersCount),
		num(s.OpenQuestionsCount), num(s.ClosedQuestionsCount))
}

// FormatQuestion renders getQuestion.
func FormatQuestion(q web3.Question) string {
	return fmt.Sprintf("✅ Question %s:\n👤 Asker: %s\n❓ Prompt: %s\n📊 Answers Needed: %s\n💰 Bounty: %s wei\n✅ Valid Answers: %s\n📝 Total Answers: %s\n📈 Status: %s\n🕐 Created: %s\n🕐 Closed: %s\n📋 Exists: %t",
		num(q.Id), q.Asker.Hex(), q.Prompt, num(q.AnswersNeeded), num(q.Bounty),
		num(q.ValidAnswersCount), num(q.TotalAnswersCount), statusName(questionStatus, q.Status),
		num(q.CreatedAt), num(q.ClosedAt), q.Exists)
}

// FormatAnswers renders getQuestionAnswers.
func FormatAnswers(answers []web3.Answer) string {
	if len(answers) == 0 {
		return "✅ No answers found for this question"
	}
	blocks := make([]string, 0, len(answers))
	for i, a := range answers {
		blocks = append(blocks, fmt.Sprintf("Answer %d:\n👤 Provider: %s\n🎵 Audio Hash: %s\n📊 Status: %s\n🕐 Submitted: %s\n🕐 Validated: %s",
			i, a.Provider.Hex(), a.AudioHash, statusName(answerStatus, a.Status), num(a.SubmittedAt), num(a.ValidatedAt)))
	}
	return "✅ Question Answers:\n" + strings.Join(blocks, "\n\n")
}

// FormatQuestionStats renders getQuestionStats.
func FormatQuestionStats(s web3.QuestionStats) string {
	return fmt.Sprintf("✅ Question Statistics:\n✅ Valid Answers: %s\n📝 Total Answers: %s\n📊 Answers Needed: %s\n🎯 Complete: %t",
		num(s.ValidCount), num(s.TotalCount), num(s.NeededCount), s.IsComplete)
}

// FormatUnvalidatedAnswer renders getNextUnvalidatedAnswer.
func FormatUnvalidatedAnswer(u web3.UnvalidatedAnswer) string {
	if u.None() {
		return "✅ No unvalidated answers found"
	}
	return fmt.Sprintf("✅ Next Unvalidated Answer:\n❓ Question ID: %s\n📝 Answer Index: %s\n👤 Provider: %s\n🎵 Audio Hash: %s\n🕐 Submitted: %s",
		num(u.QuestionId), num(u.AnswerIndex), u.Provider.Hex(), u.AudioHash, num(u.SubmittedAt))
}

// FormatOpenQuestions renders getOpenQuestions.
func FormatOpenQuestions(ids []*big.Int) string {
	if len(ids) == 0 {
		return "✅ No open questions found"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = num(id)
	}
	return "✅ Open Questions: " + strings.Join(parts, ", ")
}

// FormatScalar renders a single value returned by a view function.
func FormatScalar(name string, v any) string {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("✅ %s() = '%s'", name, val)
	case common.Address:
		return fmt.Sprintf("✅ %s() = %s", name, val.Hex())
	case *big.Int:
		return fmt.Sprintf("✅ %s() = %s", name, num(val))
	default:
		return fmt.Sprintf("✅ %s() = %v", name, val)
	}
}

func num(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func statusName(names map[uint8]string, status uint8) string {
	if name, ok := names[status]; ok {
		return name
	}
	return "Unknown"
}
