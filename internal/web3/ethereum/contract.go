package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/web3"
)

var (
	questionStatus = map[uint8]string{web3.QuestionOpen: "Open", web3.QuestionClosed: "Closed"}
	answerStatus   = map[uint8]string{web3.AnswerPending: "Pending", web3.AnswerValid: "Valid", web3.AnswerInvalid: "Invalid"}
)

// callRaw packs the arguments, executes an eth_call against the contract
// and returns the raw return data.
func (c *Client) callRaw(ctx context.Context, name string, args ...any) ([]byte, error) {
	input, err := c.abi.Pack(name, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("编码 %s 参数失败", name))
	}
	data, err := c.backend.CallContract(ctx, gethcore.CallMsg{To: &c.contract, Data: input}, nil)
	if err != nil {
		msg := fmt.Sprintf("调用 %s 失败", name)
		if reason := revertReason(err); reason != "" {
			return nil, xerrors.Wrap(web3.CodeChainFailure, err, msg, xerrors.WithMetadata("revert", reason))
		}
		return nil, xerrors.Wrap(web3.CodeChainFailure, err, msg)
	}
	return data, nil
}

func (c *Client) call(ctx context.Context, name string, args ...any) ([]any, error) {
	data, err := c.callRaw(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.abi.Unpack(name, data)
	if err != nil {
		return nil, xerrors.Wrap(web3.CodeChainFailure, err, fmt.Sprintf("解码 %s 返回值失败", name))
	}
	if len(out) == 0 {
		return nil, xerrors.New(web3.CodeChainFailure, fmt.Sprintf("%s 没有返回值", name))
	}
	return out, nil
}

func (c *Client) callInto(ctx context.Context, v any, name string, args ...any) error {
	data, err := c.callRaw(ctx, name, args...)
	if err != nil {
		return err
	}
	if err := c.abi.UnpackIntoInterface(v, name, data); err != nil {
		return xerrors.Wrap(web3.CodeChainFailure, err, fmt.Sprintf("解码 %s 返回值失败", name))
	}
	return nil
}

// OpenQuestions returns the ids of questions still accepting answers.
func (c *Client) OpenQuestions(ctx context.Context) ([]*big.Int, error) {
	out, err := c.call(ctx, "getOpenQuestions")
	if err != nil {
		return nil, err
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, xerrors.New(web3.CodeChainFailure, fmt.Sprintf("getOpenQuestions 返回了意外的类型 %T", out[0]))
	}
	return ids, nil
}

// NextUnvalidatedAnswer returns the oldest pending answer. The "none left"
// revert is reported as an empty result rather than an error.
func (c *Client) NextUnvalidatedAnswer(ctx context.Context) (web3.UnvalidatedAnswer, error) {
	var next web3.UnvalidatedAnswer
	if err := c.callInto(ctx, &next, "getNextUnvalidatedAnswer"); err != nil {
		if IsNoUnvalidatedRevert(err) {
			return web3.UnvalidatedAnswer{}, nil
		}
		return web3.UnvalidatedAnswer{}, err
	}
	return next, nil
}

// Question returns a single question record.
func (c *Client) Question(ctx context.Context, id *big.Int) (web3.Question, error) {
	out, err := c.call(ctx, "getQuestion", id)
	if err != nil {
		return web3.Question{}, err
	}
	return *abi.ConvertType(out[0], new(web3.Question)).(*web3.Question), nil
}

// QuestionAnswers returns every answer submitted for a question.
func (c *Client) QuestionAnswers(ctx context.Context, id *big.Int) ([]web3.Answer, error) {
	out, err := c.call(ctx, "getQuestionAnswers", id)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]web3.Answer)).(*[]web3.Answer), nil
}

// ReadFunction calls an allow-listed view function and renders the result
// for chat. Arguments are converted to the ABI input types.
func (c *Client) ReadFunction(ctx context.Context, name string, args []any) (string, error) {
	if !web3.IsReadable(name) {
		return "", xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("function %s is not readable", name))
	}
	method := c.abi.Methods[name]
	converted, err := ConvertArgs(method.Inputs, args)
	if err != nil {
		return "", err
	}

	switch name {
	case "getContractStats":
		var stats web3.ContractStats
		if err := c.callInto(ctx, &stats, name, converted...); err != nil {
			return "", err
		}
		return FormatContractStats(stats), nil
	case "getQuestionStats":
		var stats web3.QuestionStats
		if err := c.callInto(ctx, &stats, name, converted...); err != nil {
			return "", err
		}
		return FormatQuestionStats(stats), nil
	case "getNextUnvalidatedAnswer":
		var next web3.UnvalidatedAnswer
		if err := c.callInto(ctx, &next, name); err != nil {
			if IsNoUnvalidatedRevert(err) {
				return FormatUnvalidatedAnswer(web3.UnvalidatedAnswer{}), nil
			}
			return "", err
		}
		return FormatUnvalidatedAnswer(next), nil
	}

	out, err := c.call(ctx, name, converted...)
	if err != nil {
		return "", err
	}
	switch name {
	case "getQuestion":
		return FormatQuestion(*abi.ConvertType(out[0], new(web3.Question)).(*web3.Question)), nil
	case "getQuestionAnswers":
		return FormatAnswers(*abi.ConvertType(out[0], new([]web3.Answer)).(*[]web3.Answer)), nil
	case "getOpenQuestions":
		ids, _ := out[0].([]*big.Int)
		return FormatOpenQuestions(ids), nil
	}
	return FormatScalar(name, out[0]), nil
}

// ConvertArgs converts parsed command arguments (*big.Int or string) into
// the Go values abi.Pack expects for each input.
func ConvertArgs(inputs abi.Arguments, args []any) ([]any, error) {
	if len(args) != len(inputs) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("expected %d argument(s), got %d", len(inputs), len(args)))
	}
	converted := make([]any, len(args))
	for i, input := range inputs {
		v, err := convertArg(input.Type, args[i])
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("argument %d (%s)", i, input.Type.String()))
		}
		converted[i] = v
	}
	return converted, nil
}

func convertArg(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.UintTy, abi.IntTy:
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s for %s", n, t.String())
		}
		if t.Size > 64 {
			return n, nil
		}
		rv := reflect.New(t.GetType()).Elem()
		if t.T == abi.UintTy {
			if !n.IsUint64() || rv.OverflowUint(n.Uint64()) {
				return nil, fmt.Errorf("value %s overflows %s", n, t.String())
			}
			rv.SetUint(n.Uint64())
		} else {
			if !n.IsInt64() || rv.OverflowInt(n.Int64()) {
				return nil, fmt.Errorf("value %s overflows %s", n, t.String())
			}
			rv.SetInt(n.Int64())
		}
		return rv.Interface(), nil
	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case *big.Int:
			return b.Sign() != 0, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(b))
		}
	case abi.AddressTy:
		switch a := v.(type) {
		case common.Address:
			return a, nil
		case *big.Int:
			return common.BigToAddress(a), nil
		case string:
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("invalid address %q", a)
			}
			return common.HexToAddress(a), nil
		}
	case abi.StringTy:
		switch s := v.(type) {
		case string:
			return s, nil
		case *big.Int:
			return s.String(), nil
		}
	default:
		return nil, fmt.Errorf("unsupported argument type %s", t.String())
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, t.String())
}

func toBig(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case int64:
		return big.NewInt(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case string:
		parsed, ok := new(big.Int).SetString(strings.TrimSpace(n), 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", n)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("cannot use %T as integer", v)
}

// revertReason extracts the Error(string) reason carried by an eth_call
// revert, if any.
func revertReason(err error) string {
	var dataErr gethrpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	raw, ok := dataErr.ErrorData().(string)
	if !ok {
		return ""
	}
	data, decodeErr := hexutil.Decode(raw)
	if decodeErr != nil {
		return ""
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return ""
	}
	return reason
}

// IsNoUnvalidatedRevert reports whether err is the contract's "No
// unvalidated answers found" revert.
func IsNoUnvalidatedRevert(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := xerrors.From(err); ok {
		if reason := e.Metadata()["revert"]; strings.Contains(reason, "No unvalidated answers found") {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "No unvalidated answers found") || strings.Contains(msg, "0x08c379a0")
}
