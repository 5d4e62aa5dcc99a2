package subproc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"aipop/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fixtures require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "runner.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestRunParsesResultJSON(t *testing.T) {
	script := writeScript(t, `
echo "iteration 1/2" >&2
echo "iteration 2/2" >&2
echo '{"success":true,"adversarial_prompts":["p1"],"scores":[9.1],"cost":0.5,"num_queries":7,"execution_time":1.5}'
`)
	var (
		mu    sync.Mutex
		lines []string
	)
	x := &Executor{
		Interpreter: "/bin/sh",
		Runner:      script,
		Progress: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	}

	res, err := x.Run(context.Background(), map[string]interface{}{"prompt": "objective"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"p1"}, res.AdversarialPrompts)
	assert.Equal(t, 7, res.NumQueries)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"iteration 1/2", "iteration 2/2"}, lines)
}

func TestRunChildReceivesConfigPath(t *testing.T) {
	script := writeScript(t, `
cat "$2" >&2
echo '{"success":false}'
`)
	var (
		mu  sync.Mutex
		got string
	)
	x := &Executor{
		Interpreter: "/bin/sh",
		Runner:      script,
		Progress: func(line string) {
			mu.Lock()
			got += line
			mu.Unlock()
		},
	}
	_, err := x.Run(context.Background(), map[string]interface{}{"b": 2, "a": 1})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, `{"a":1,"b":2}`, got, "config file carries canonical JSON")
}

func TestRunNonZeroExitIsExecError(t *testing.T) {
	script := writeScript(t, `
echo "loading model weights" >&2
echo "CUDA out of memory" >&2
exit 3
`)
	x := &Executor{Interpreter: "/bin/sh", Runner: script}
	_, err := x.Run(context.Background(), map[string]interface{}{})

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Contains(t, execErr.StderrTail, "CUDA out of memory")
	assert.Contains(t, execErr.Command, script)
}

func TestRunBadJSONIsParseError(t *testing.T) {
	script := writeScript(t, `echo "Traceback (most recent call last): not json"`)
	x := &Executor{Interpreter: "/bin/sh", Runner: script}
	_, err := x.Run(context.Background(), map[string]interface{}{})

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Excerpt, "Traceback")
}

func TestRunTimeout(t *testing.T) {
	script := writeScript(t, `sleep 30`)
	x := &Executor{Interpreter: "/bin/sh", Runner: script, Timeout: 200 * time.Millisecond}

	start := time.Now()
	_, err := x.Run(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunRemovesConfigFile(t *testing.T) {
	script := writeScript(t, `
cp "$2" "$2.copy"
echo '{"success":true}'
`)
	x := &Executor{Interpreter: "/bin/sh", Runner: script}
	_, err := x.Run(context.Background(), map[string]interface{}{"k": "v"})
	require.NoError(t, err)

	copies, err := filepath.Glob(filepath.Join(os.TempDir(), "aipop-plugin-*.json.copy"))
	require.NoError(t, err)
	for _, c := range copies {
		orig := c[:len(c)-len(".copy")]
		_, statErr := os.Stat(orig)
		assert.True(t, os.IsNotExist(statErr), "transient config %s should be deleted", orig)
		os.Remove(c)
	}
}

func TestDirectExecutor(t *testing.T) {
	d := &Direct{Fn: func(ctx context.Context, cfg map[string]interface{}) (*types.AttackResult, error) {
		if cfg["prompt"] == "" {
			return nil, errors.New("prompt required")
		}
		return &types.AttackResult{Success: true}, nil
	}}
	res, err := d.Run(context.Background(), map[string]interface{}{"prompt": "x"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
