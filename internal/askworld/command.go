package askworld

import (
	"math/big"
	"strings"
)

// Command 是解析后的用户指令：函数名加参数。
type Command struct {
	Name string
	Args []any
}

// ParseCommand 解析 `name(arg, ...)` 或 `name arg ...` 形式的指令。
// `0x` 开头的参数按十六进制整数解析，十进制数字按整数解析，其余保留为字符串。
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	if open := strings.Index(input, "("); open > 0 && strings.HasSuffix(input, ")") {
		cmd := Command{Name: strings.TrimSpace(input[:open])}
		inner := strings.TrimSpace(input[open+1 : len(input)-1])
		if inner == "" {
			return cmd
		}
		for _, raw := range strings.Split(inner, ",") {
			cmd.Args = append(cmd.Args, parseArg(raw))
		}
		return cmd
	}

	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}
	}
	cmd := Command{Name: fields[0]}
	for _, raw := range fields[1:] {
		cmd.Args = append(cmd.Args, parseArg(raw))
	}
	return cmd
}

func parseArg(raw string) any {
	arg := strings.TrimSpace(raw)
	if hex, ok := strings.CutPrefix(arg, "0x"); ok {
		if n, ok := new(big.Int).SetString(hex, 16); ok {
			return n
		}
		return arg
	}
	if n, ok := new(big.Int).SetString(arg, 10); ok {
		return n
	}
	return arg
}
