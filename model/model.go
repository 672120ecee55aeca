// Package model provides the models a task can chat with.
//
// Echo answers with its own input and is useful for exercising tracing.
// Process delegates to an external command speaking the ipc frame protocol.
package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/pithecene-io/workbench/codec"
	"github.com/pithecene-io/workbench/engine"
	"github.com/pithecene-io/workbench/types"
)

// Model is the engine's model contract.
type Model = engine.Model

// InputKey is the input field holding the user's text.
const InputKey = "input"

// OutputKey is the output field holding the answer message.
const OutputKey = "output"

// Register adds the model types to r.
func Register(r *codec.Registry) error {
	if err := r.Register(func() codec.Serializable { return &Echo{} }); err != nil {
		return err
	}
	return r.Register(func() codec.Serializable { return &Process{} })
}

// Input wraps text as a model input.
func Input(text string) map[string]any {
	return map[string]any{InputKey: &types.Message{Role: types.RoleUser, Content: text}}
}

// InputText extracts the text of a model input.
func InputText(input map[string]any) string {
	switch v := input[InputKey].(type) {
	case nil:
		return ""
	case string:
		return v
	case *types.Message:
		return v.Content
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Echo replies with the input text, streaming one token per word through a
// nested llm run.
type Echo struct {
	Prefix string `json:"prefix,omitempty"`
}

// IsSerializable implements codec.Serializable.
func (e *Echo) IsSerializable() bool { return true }

// TypeID implements codec.Serializable.
func (e *Echo) TypeID() []string { return []string{types.Namespace, "model", "Echo"} }

// Secrets implements codec.Serializable.
func (e *Echo) Secrets() map[string]string { return nil }

// Attributes implements codec.Serializable.
func (e *Echo) Attributes() map[string]any { return nil }

// Name implements engine.Named.
func (e *Echo) Name() string { return "Echo" }

// Invoke implements Model.
func (e *Echo) Invoke(ctx context.Context, input map[string]any, cfg engine.Config) (map[string]any, error) {
	text := e.Prefix + InputText(input)

	h, _ := engine.Start(cfg, "EchoLLM", types.RunTypeLLM, map[string]any{"prompts": []any{text}})
	for _, tok := range strings.SplitAfter(text, " ") {
		if err := ctx.Err(); err != nil {
			h.Fail(err)
			return nil, err
		}
		if tok != "" {
			h.Token(tok)
		}
	}
	h.End(map[string]any{"generations": []any{text}})

	return map[string]any{
		OutputKey: &types.Message{Role: types.RoleAssistant, Content: text},
	}, nil
}
