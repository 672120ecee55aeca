package model

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pithecene-io/workbench/engine"
	"github.com/pithecene-io/workbench/ipc"
	"github.com/pithecene-io/workbench/log"
	"github.com/pithecene-io/workbench/metrics"
	"github.com/pithecene-io/workbench/types"
)

// APIKeyEnv is the environment variable holding the process model's API
// key. It doubles as the key's secret id in serialized form.
const APIKeyEnv = "WORKBENCH_MODEL_API_KEY"

// Errors returned by Process.
var (
	ErrNoCommand = errors.New("model command not configured")
	ErrNoResult  = errors.New("model process exited without a result")
	ErrProtocol  = errors.New("model protocol violation")
)

// stderrTail bounds how much stderr is kept for error messages.
const stderrTail = 4096

// Process runs an external command once per invocation.
//
// The command receives one invoke frame on stdin and answers on stdout with
// ipc frames. Nested runs it reports are replayed into the caller's trace.
type Process struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Dir     string            `json:"dir,omitempty"`
	APIKey  string            `json:"api_key,omitempty"`

	Logger  *log.Logger        `json:"-"`
	Metrics *metrics.Collector `json:"-"`
}

// IsSerializable implements codec.Serializable.
func (p *Process) IsSerializable() bool { return true }

// TypeID implements codec.Serializable.
func (p *Process) TypeID() []string { return []string{types.Namespace, "model", "Process"} }

// Secrets implements codec.Serializable.
func (p *Process) Secrets() map[string]string {
	return map[string]string{"api_key": APIKeyEnv}
}

// Attributes implements codec.Serializable.
func (p *Process) Attributes() map[string]any { return nil }

// Name implements engine.Named.
func (p *Process) Name() string {
	if p.Command == "" {
		return "Process"
	}
	return filepath.Base(p.Command)
}

// Invoke implements Model.
func (p *Process) Invoke(ctx context.Context, input map[string]any, cfg engine.Config) (map[string]any, error) {
	if p.Command == "" {
		return nil, ErrNoCommand
	}
	logger := p.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.With(map[string]any{"model": p.Name()})

	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Dir = p.Dir
	cmd.Env = p.environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		p.Metrics.IncModelLaunchFailure()
		return nil, fmt.Errorf("failed to start model: %w", err)
	}
	p.Metrics.IncModelLaunchSuccess()

	tail := &tailBuffer{limit: stderrTail}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		drainStderr(stderr, tail, logger)
	}()

	invoke := &ipc.InvokeFrame{
		Type:     ipc.TypeInvoke,
		Input:    input,
		Tags:     cfg.Tags,
		Metadata: cfg.Metadata,
	}
	werr := ipc.NewFrameEncoder(stdin).WriteFrame(invoke)
	if cerr := stdin.Close(); werr == nil {
		werr = cerr
	}

	var (
		result *ipc.ResultFrame
		rerr   error
	)
	if werr != nil {
		rerr = fmt.Errorf("failed to write input: %w", werr)
	} else {
		result, rerr = p.replay(ipc.NewFrameDecoder(stdout), cfg, logger)
	}
	if rerr != nil {
		_ = cmd.Process.Kill()
	}
	// Unblock the process if it is still writing.
	_, _ = io.Copy(io.Discard, stdout)

	wg.Wait()
	waitErr := cmd.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rerr != nil {
		return nil, withStderr(rerr, tail)
	}
	if result == nil {
		if waitErr != nil {
			return nil, withStderr(fmt.Errorf("%w: %w", ErrNoResult, waitErr), tail)
		}
		return nil, withStderr(ErrNoResult, tail)
	}
	if result.Error != "" {
		return nil, errors.New(result.Error)
	}
	if waitErr != nil {
		logger.Warn("model exited with error after result", map[string]any{
			"error": waitErr.Error(),
		})
	}
	if result.Outputs == nil {
		return map[string]any{}, nil
	}
	return result.Outputs, nil
}

// replay reads frames until the result, reproducing nested runs under cfg.
// Runs still open when the stream ends are failed.
func (p *Process) replay(dec *ipc.FrameDecoder, cfg engine.Config, logger *log.Logger) (*ipc.ResultFrame, error) {
	handles := make(map[string]*engine.Handle)
	configs := make(map[string]engine.Config)
	var order []string

	closeOpen := func(reason error) {
		for i := len(order) - 1; i >= 0; i-- {
			if h, ok := handles[order[i]]; ok {
				h.Fail(reason)
			}
		}
	}

	lookup := func(id string) (*engine.Handle, error) {
		h, ok := handles[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown run %q", ErrProtocol, id)
		}
		return h, nil
	}

	for {
		frame, err := dec.Next()
		if err == io.EOF {
			closeOpen(ErrNoResult)
			return nil, nil
		}
		if err != nil {
			p.Metrics.IncIPCDecodeErrors()
			closeOpen(err)
			return nil, err
		}

		switch f := frame.(type) {
		case *ipc.RunStartFrame:
			if _, dup := handles[f.ID]; dup || f.ID == "" {
				err = fmt.Errorf("%w: duplicate run %q", ErrProtocol, f.ID)
				break
			}
			parent := cfg
			if f.ParentID != "" {
				c, ok := configs[f.ParentID]
				if !ok {
					err = fmt.Errorf("%w: unknown parent %q", ErrProtocol, f.ParentID)
					break
				}
				parent = c
			}
			h, child := engine.Start(parent, f.Name, f.RunType, f.Inputs)
			handles[f.ID], configs[f.ID] = h, child
			order = append(order, f.ID)
		case *ipc.TokenFrame:
			var h *engine.Handle
			if h, err = lookup(f.ID); err == nil {
				h.Token(f.Token)
			}
		case *ipc.RunEndFrame:
			var h *engine.Handle
			if h, err = lookup(f.ID); err == nil {
				h.End(f.Outputs)
				delete(handles, f.ID)
			}
		case *ipc.RunErrorFrame:
			var h *engine.Handle
			if h, err = lookup(f.ID); err == nil {
				h.Fail(errors.New(f.Error))
				delete(handles, f.ID)
			}
		case *ipc.ResultFrame:
			closeOpen(fmt.Errorf("%w: run left open", ErrProtocol))
			return f, nil
		default:
			err = fmt.Errorf("%w: unexpected %T", ErrProtocol, frame)
		}

		if err != nil {
			logger.Debug("model protocol error", map[string]any{"error": err.Error()})
			closeOpen(err)
			return nil, err
		}
	}
}

// environ returns the inherited environment plus Env and the API key.
// Later entries win.
func (p *Process) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+p.Env[k])
	}
	if p.APIKey != "" {
		env = append(env, APIKeyEnv+"="+p.APIKey)
	}
	return deduplicateEnv(env)
}

// deduplicateEnv keeps the last occurrence of each env var key.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}

func drainStderr(r io.Reader, tail *tailBuffer, logger *log.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.WriteLine(line)
		logger.Debug("model stderr", map[string]any{"line": line})
	}
	// Keep the pipe drained past an oversized line.
	_, _ = io.Copy(io.Discard, r)
}

// tailBuffer keeps the last limit bytes of written lines.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

func withStderr(err error, tail *tailBuffer) error {
	if s := tail.String(); s != "" {
		return fmt.Errorf("%w (stderr: %s)", err, s)
	}
	return err
}
