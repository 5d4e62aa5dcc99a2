// Package subproc runs official attack plugins in their own interpreter
// environments. Protocol: the child reads a config file path from argv,
// writes human progress to stderr, and emits exactly one JSON object on
// stdout at exit.
package subproc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"aipop/internal/types"
)

// ProgressSink receives stderr progress lines as they arrive.
type ProgressSink func(line string)

// stderrTailLines bounds how much stderr is kept for error reports.
const stderrTailLines = 40

// parseErrorExcerptLen bounds the stdout excerpt kept on a parse failure.
const parseErrorExcerptLen = 2000

// killGracePeriod is how long a timed-out child gets between SIGTERM and
// SIGKILL.
const killGracePeriod = 5 * time.Second

// ExecError reports a child that exited non-zero.
type ExecError struct {
	Command    string
	ExitCode   int
	StderrTail string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("plugin process failed (exit %d): %s\nstderr tail:\n%s",
		e.ExitCode, e.Command, e.StderrTail)
}

// ParseError reports a zero-exit child whose stdout was not valid result
// JSON.
type ParseError struct {
	Command string
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("plugin output is not valid JSON (%v): %s\noutput excerpt:\n%s",
		e.Err, e.Command, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Executor runs a plugin entry point as a child process.
type Executor struct {
	// Interpreter is the binary to invoke (a per-plugin venv python, or the
	// runner itself when empty).
	Interpreter string
	// Runner is the plugin's entry-point script or binary.
	Runner string
	// Timeout bounds the wall clock; zero means no limit.
	Timeout time.Duration
	// Progress, when set, receives each stderr line.
	Progress ProgressSink

	Logger *zap.Logger
}

// Run serializes cfg to a transient file, executes the runner against it,
// and parses the child's stdout into an AttackResult. The config file is
// removed on every exit path.
func (x *Executor) Run(ctx context.Context, cfg map[string]interface{}) (*types.AttackResult, error) {
	logger := x.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfgPath, err := writeConfigFile(cfg)
	if err != nil {
		return nil, err
	}
	defer os.Remove(cfgPath)

	if x.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.Timeout)
		defer cancel()
	}

	name, args := x.commandLine(cfgPath)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		// Graceful stop first; CommandContext's WaitDelay escalates to kill.
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGracePeriod

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	cmdLine := name + " " + strings.Join(args, " ")
	logger.Debug("starting plugin process", zap.String("command", cmdLine))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start plugin process: %w", err)
	}

	var (
		wg       sync.WaitGroup
		tailMu   sync.Mutex
		tail     []string
		outBuf   bytes.Buffer
		readErr  error
		scanDone = func(err error) {
			if err != nil && readErr == nil {
				readErr = err
			}
		}
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if x.Progress != nil {
				x.Progress(line)
			}
			tailMu.Lock()
			tail = append(tail, line)
			if len(tail) > stderrTailLines {
				tail = tail[1:]
			}
			tailMu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		_, err := outBuf.ReadFrom(stdout)
		scanDone(err)
	}()

	wg.Wait()
	waitErr := cmd.Wait()

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("plugin process timed out: %w", ctxErr)
		}
		exitCode := -1
		if ee, ok := waitErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		tailMu.Lock()
		tailText := strings.Join(tail, "\n")
		tailMu.Unlock()
		return nil, &ExecError{Command: cmdLine, ExitCode: exitCode, StderrTail: tailText}
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read plugin stdout: %w", readErr)
	}

	var result types.AttackResult
	raw := bytes.TrimSpace(outBuf.Bytes())
	if err := json.Unmarshal(raw, &result); err != nil {
		excerpt := string(raw)
		if len(excerpt) > parseErrorExcerptLen {
			excerpt = excerpt[:parseErrorExcerptLen] + "...(truncated)"
		}
		return nil, &ParseError{Command: cmdLine, Excerpt: excerpt, Err: err}
	}
	return &result, nil
}

func (x *Executor) commandLine(cfgPath string) (string, []string) {
	if x.Interpreter != "" {
		return x.Interpreter, []string{x.Runner, "--config", cfgPath}
	}
	return x.Runner, []string{"--config", cfgPath}
}

// writeConfigFile serializes cfg as canonical JSON into a transient file and
// returns its path.
func writeConfigFile(cfg map[string]interface{}) (string, error) {
	canonical, err := types.CanonicalJSON(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to serialize plugin config: %w", err)
	}
	f, err := os.CreateTemp("", "aipop-plugin-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err := f.Write(canonical); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close config file: %w", err)
	}
	return f.Name(), nil
}
