// Package errors 定义三个代理共用的失败分类。每个错误码在注册表里携带默认的
// 严重程度、类别与是否可重试，回复用户时只展示 Detail，不暴露错误码。
package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
	"sync"
)

// Code 是失败分类的错误码。
type Code string

// Severity 决定告警级别。
type Severity string

// Kind 区分输入问题、传输问题、外部服务问题与内部问题。
type Kind string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	KindInput     Kind = "input"
	KindTransport Kind = "transport"
	KindExternal  Kind = "external"
	KindInternal  Kind = "internal"
)

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeUnsupported           Code = "UNSUPPORTED"
	CodeTransportFailure      Code = "TRANSPORT_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
	CodeUpstreamFailure       Code = "UPSTREAM_FAILURE"
	CodeRetriesExhausted      Code = "RETRIES_EXHAUSTED"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
)

// Attributes 是错误码的默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Kind      Kind
	Retryable bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:               {"unknown error", SeverityCritical, KindInternal, false},
		CodeInvalidArgument:       {"invalid argument", SeverityInfo, KindInput, false},
		CodeNotFound:              {"resource not found", SeverityInfo, KindInput, false},
		CodeUnsupported:           {"unsupported content", SeverityInfo, KindInput, false},
		CodeTransportFailure:      {"transport failure", SeverityWarning, KindTransport, true},
		CodeTimeout:               {"operation timed out", SeverityWarning, KindTransport, true},
		CodeUpstreamFailure:       {"external service failure", SeverityWarning, KindExternal, false},
		CodeRetriesExhausted:      {"retries exhausted", SeverityWarning, KindExternal, false},
		CodeInitializationFailure: {"service not initialized", SeverityCritical, KindInternal, false},
		CodeStorageFailure:        {"storage failure", SeverityCritical, KindInternal, true},
	}
)

// Register 在 init 阶段登记业务包自己的错误码，重复登记会覆盖旧值。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	registry[code] = attr
	registryMu.Unlock()
}

// AttributesOf 查询错误码属性，未登记的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	attr, ok := registry[code]
	if !ok {
		attr = registry[CodeUnknown]
	}
	return attr
}

// Error 是带错误码的错误。构造时从注册表复制默认属性，选项再逐项覆盖。
type Error struct {
	code     Code
	message  string
	cause    error
	attrs    Attributes
	metadata map[string]string
}

// Option 调整单个错误实例。
type Option func(*Error)

// WithMetadata 附加一项上下文，告警时原样输出。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = map[string]string{}
		}
		e.metadata[key] = value
	}
}

func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.attrs.Retryable = retryable }
}

func WithSeverity(sev Severity) Option {
	return func(e *Error) { e.attrs.Severity = sev }
}

// New 创建错误，message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{code: code, attrs: AttributesOf(code)}
	e.message = message
	if e.message == "" {
		e.message = e.attrs.Message
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 与 New 相同，但保留底层原因供 errors.Is / errors.As 使用。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %s", e.code, e.Detail())
}

// Detail 是回复给用户的文本：描述加上原因，没有错误码前缀。
func (e *Error) Detail() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return e.message
	default:
		return e.message + ": " + e.cause.Error()
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，因此 errors.Is(err, New(CodeTimeout, "")) 可以匹配任意超时。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

func (e *Error) Retryable() bool {
	return e != nil && e.attrs.Retryable
}

func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return e.attrs.Severity
}

func (e *Error) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.attrs.Kind
}

// From 在错误链上查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误码，普通 error 视为 UNKNOWN。
func CodeOf(err error) Code {
	e, _ := From(err)
	return e.Code()
}

// KindOf 返回错误类别，普通 error 视为外部服务错误。
func KindOf(err error) Kind {
	if e, ok := From(err); ok {
		return e.Kind()
	}
	return KindExternal
}

// RetryableError 判断错误链上的统一错误是否允许重试。
func RetryableError(err error) bool {
	e, _ := From(err)
	return e.Retryable()
}

// DetailOf 返回展示给用户的描述，普通 error 直接使用 Error()。
func DetailOf(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := From(err); ok {
		return e.Detail()
	}
	return err.Error()
}
