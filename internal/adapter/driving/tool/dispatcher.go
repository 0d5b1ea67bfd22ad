// Package tool is the tool-dispatch driving adapter. It accepts a tool name
// and a flat JSON argument object, calls the credential controller and
// returns a JSON envelope. No response ever carries a plaintext credential.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/ericfisherdev/credvault/internal/application"
)

// Request is one tool invocation.
type Request struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`
}

type handlerFunc func(ctx context.Context, args json.RawMessage) Envelope

// Dispatcher routes tool calls to the credential controller.
type Dispatcher struct {
	ctrl   *application.CredentialController
	logger *slog.Logger
	tools  map[string]handlerFunc
}

// NewDispatcher creates a Dispatcher with every tool registered.
func NewDispatcher(ctrl *application.CredentialController, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{ctrl: ctrl, logger: logger}

	d.tools = map[string]handlerFunc{
		"set_credential":         bind(ctrl.SetCredential),
		"set_project_credential": bind(ctrl.SetProjectCredential),
		"get_credential":         bind(ctrl.GetCredential),
		"delete_credential":      bind(ctrl.DeleteCredential),
		"validate_credential":    bindPure(ctrl.ValidateCredential),
		"list_credentials":       bind(ctrl.ListCredentials),
		"list_projects":          bind(ctrl.ListProjects),
		"clone_project":          bind(ctrl.CloneProject),
		"verify_credential":      bind(ctrl.VerifyCredential),
		"list_providers":         bindPure(func(struct{}) *application.ProvidersResult { return ctrl.ListProviders() }),
		"get_credential_help":    bindPure(ctrl.GetCredentialHelp),
		"get_recommendations":    bindPure(ctrl.GetRecommendations),
		"quick_setup":            bindPure(ctrl.QuickSetup),
	}
	return d
}

// Tools returns the registered tool names, sorted.
func (d *Dispatcher) Tools() []string {
	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch runs one tool. Panics in the controller are recovered and
// reported as internal errors.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (env Envelope) {
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			d.logger.Error("panic recovered", "panic", v, "tool", name)
			env = failure(CodeInternal, "internal error")
		}

		attrs := []any{"tool", name, "success", env.Success, "duration", time.Since(start).Round(time.Microsecond)}
		if env.Error != nil {
			attrs = append(attrs, "code", env.Error.Code)
		}
		d.logger.Info("tool call", attrs...)
	}()

	h, ok := d.tools[name]
	if !ok {
		return failure(CodeUnknownTool, fmt.Sprintf("unknown tool %q", name))
	}
	return h(ctx, args)
}

// Serve decodes one Request from r and dispatches it.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader) Envelope {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return failure(CodeInvalidArguments, "request must be a JSON object with \"tool\" and \"args\"")
	}
	return d.Dispatch(ctx, req.Tool, req.Args)
}

// bind adapts a controller method that may fail.
func bind[A any, R resulter](fn func(context.Context, A) (R, error)) handlerFunc {
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var args A
		if err := decodeArgs(raw, &args); err != nil {
			return failure(CodeInvalidArguments, err.Error())
		}
		res, err := fn(ctx, args)
		if err != nil {
			return fromError(err)
		}
		return fromResult(res)
	}
}

// bindPure adapts a controller method that cannot fail.
func bindPure[A any, R resulter](fn func(A) R) handlerFunc {
	return func(_ context.Context, raw json.RawMessage) Envelope {
		var args A
		if err := decodeArgs(raw, &args); err != nil {
			return failure(CodeInvalidArguments, err.Error())
		}
		return fromResult(fn(args))
	}
}

// decodeArgs strictly decodes a flat argument object. Missing or null args
// decode to the zero value; unknown fields are rejected.
func decodeArgs(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
