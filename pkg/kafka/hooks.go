package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook wraps message handling. A BeforeHandle error skips the
// handler and is treated as a handling failure.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookError is returned when a hook rejects or panics.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

// HookFuncs adapts plain functions to ConsumerHook. Nil functions are no-ops.
type HookFuncs struct {
	Before func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error)
	After  func(context.Context, string, kafka.Message, []byte, error)
	Err    func(context.Context, string, kafka.Message, []byte, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if h.Before == nil {
		return ctx, km, data, nil
	}
	return h.Before(ctx, topic, km, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.After != nil {
		h.After(ctx, topic, km, data, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, data, err)
	}
}

// HookChain runs BeforeHandle in order and AfterHandle in reverse. A panicking
// hook is turned into an ERR_PANIC HookError.
type HookChain struct {
	hooks []ConsumerHook
}

func NewHookChain(hooks ...ConsumerHook) *HookChain {
	filtered := make([]ConsumerHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return &HookChain{hooks: filtered}
}

func (c *HookChain) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	for _, h := range c.hooks {
		nctx, nkm, ndata, err := safeBefore(h, ctx, topic, km, data)
		if err != nil {
			return ctx, km, data, err
		}
		ctx, km, data = nctx, nkm, ndata
	}
	return ctx, km, data, nil
}

func (c *HookChain) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		func() {
			defer func() { _ = recover() }()
			c.hooks[i].AfterHandle(ctx, topic, km, data, err)
		}()
	}
}

func (c *HookChain) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for _, h := range c.hooks {
		func() {
			defer func() { _ = recover() }()
			h.OnError(ctx, topic, km, data, err)
		}()
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, topic string, km kafka.Message, data []byte) (rctx context.Context, rkm kafka.Message, rdata []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			rctx, rkm, rdata = ctx, km, data
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("hook panic: %v", r)}
		}
	}()
	return h.BeforeHandle(ctx, topic, km, data)
}

type ctxKey string

const (
	CtxStartTime ctxKey = "kafka_hook_start_time"
	CtxTraceID   ctxKey = "kafka_hook_trace_id"
)

// TraceHook copies the trace_id header and the handling start time into the
// context.
func TraceHook() ConsumerHook {
	return HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			ctx = context.WithValue(ctx, CtxStartTime, time.Now())
			if id := ExtractTraceID(km); id != "" {
				ctx = context.WithValue(ctx, CtxTraceID, id)
			}
			return ctx, km, data, nil
		},
	}
}

// RejectEmptyHook fails empty payloads before they reach the handler.
func RejectEmptyHook() ConsumerHook {
	return HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			if len(data) == 0 {
				return ctx, km, data, &HookError{Code: "ERR_EMPTY"}
			}
			return ctx, km, data, nil
		},
	}
}

// ErrorCountHook calls count with the topic of every failed message.
func ErrorCountHook(count func(topic string)) ConsumerHook {
	return HookFuncs{
		Err: func(_ context.Context, topic string, _ kafka.Message, _ []byte, _ error) {
			count(topic)
		},
	}
}

func ExtractTraceID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "trace_id" && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return ""
}
