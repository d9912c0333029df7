package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoki/data-agency/internal/dataset"
)

func testData() map[string]*dataset.Dataset {
	return map[string]*dataset.Dataset{
		"sales": dataset.New("sales", []string{"region", "amount"}, [][]string{
			{"north", "120"},
			{"south", "90"},
		}),
	}
}

// fixedRunner returns the same exchange for every docker invocation and
// records the args it saw.
type fixedRunner struct {
	stdout, stderr string
	exitCode       int
	err            error
	calls          [][]string
}

func (f *fixedRunner) run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.stdout, f.stderr, f.exitCode, f.err
}

func TestExecuteSuccessStagesRun(t *testing.T) {
	dir := t.TempDir()
	runner := &fixedRunner{stdout: "105.0\n"}
	e := NewDockerExecutor("img:test", dir, nil, withCommandRunner(runner.run))

	res, err := e.Execute(context.Background(), "print(sales['amount'].mean())", testData(), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "105.0\n", res.Stdout)

	// One run dir with staged code, prelude and dataset.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	runDir := filepath.Join(dir, entries[0].Name())
	assert.True(t, strings.HasSuffix(entries[0].Name(), "_a1"))

	code, err := os.ReadFile(filepath.Join(runDir, "inputs", "code.py"))
	require.NoError(t, err)
	assert.Contains(t, string(code), "mean()")
	_, err = os.Stat(filepath.Join(runDir, "inputs", "prelude.py"))
	assert.NoError(t, err)
	csv, err := os.ReadFile(filepath.Join(runDir, "inputs", "sales.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csv), "region,amount")

	// The docker invocation mounts inputs read-only with no network.
	require.Len(t, runner.calls, 1)
	joined := strings.Join(runner.calls[0], " ")
	assert.Contains(t, joined, "--network=none")
	assert.Contains(t, joined, "/inputs:ro")
	assert.Contains(t, joined, "/outputs:rw")
	assert.Contains(t, joined, "img:test")
}

func TestExecuteParsesCodeError(t *testing.T) {
	stderr := `Traceback (most recent call last):
  File "/inputs/code.py", line 3, in <module>
    print(sales['profit'])
KeyError: 'profit'`
	runner := &fixedRunner{stderr: stderr, exitCode: 1}
	e := NewDockerExecutor("img:test", t.TempDir(), nil, withCommandRunner(runner.run))

	res, err := e.Execute(context.Background(), "print(sales['profit'])", testData(), 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Success())
	require.NotNil(t, res.Err)
	assert.Equal(t, "KeyError", res.Err.Kind)
	assert.Equal(t, "profit", res.Err.Identifier)
	assert.Contains(t, res.Err.Traceback, "code.py")
}

func TestExecuteUnparsedFailureKeepsRaisedLine(t *testing.T) {
	// Exception classes the traceback parser does not recognize fall back to
	// a generic error whose message must still identify the failure. Two
	// different failures sharing the boilerplate first line would otherwise
	// look identical to the repair loop.
	stopIter := `Traceback (most recent call last):
  File "/inputs/code.py", line 4, in <module>
    next(it)
StopIteration`
	custom := `Traceback (most recent call last):
  File "/inputs/code.py", line 7, in <module>
    raise Foo("bad partition")
Foo: bad partition`

	var messages []string
	for _, stderr := range []string{stopIter, custom} {
		runner := &fixedRunner{stderr: stderr, exitCode: 1}
		e := NewDockerExecutor("img:test", t.TempDir(), nil, withCommandRunner(runner.run))

		res, err := e.Execute(context.Background(), "next(it)", testData(), 1, time.Minute)
		require.NoError(t, err)
		require.NotNil(t, res.Err)
		assert.Equal(t, "ExecutionError", res.Err.Kind)
		messages = append(messages, res.Err.Message)
	}

	assert.Equal(t, "StopIteration", messages[0])
	assert.Equal(t, "Foo: bad partition", messages[1])
	assert.NotEqual(t, messages[0], messages[1])
}

func TestExecuteDaemonFailureIsInfrastructure(t *testing.T) {
	runner := &fixedRunner{
		stderr:   "docker: Cannot connect to the Docker daemon at unix:///var/run/docker.sock.",
		exitCode: 125,
	}
	e := NewDockerExecutor("img:test", t.TempDir(), nil, withCommandRunner(runner.run))

	_, err := e.Execute(context.Background(), "print(1)", testData(), 1, time.Minute)
	require.ErrorIs(t, err, ErrInfrastructure)
}

func TestExecuteRunnerErrorIsInfrastructure(t *testing.T) {
	runner := &fixedRunner{err: os.ErrNotExist}
	e := NewDockerExecutor("img:test", t.TempDir(), nil, withCommandRunner(runner.run))

	_, err := e.Execute(context.Background(), "print(1)", testData(), 1, time.Minute)
	require.ErrorIs(t, err, ErrInfrastructure)
}

func TestExecuteTimeoutYieldsTimedOutResult(t *testing.T) {
	var killed [][]string
	run := func(ctx context.Context, name string, args ...string) (string, string, int, error) {
		if len(args) > 0 && args[0] == "kill" {
			killed = append(killed, args)
			return "", "", 0, nil
		}
		<-ctx.Done()
		return "partial", "", -1, ctx.Err()
	}
	e := NewDockerExecutor("img:test", t.TempDir(), nil, withCommandRunner(run))

	res, err := e.Execute(context.Background(), "while True: pass", testData(), 1, 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Success())
	assert.Equal(t, "partial", res.Stdout)
	// Teardown was attempted.
	require.Len(t, killed, 1)
	assert.Contains(t, killed[0][1], "dagency-run_")
}

func TestExecuteCancelPropagates(t *testing.T) {
	run := func(ctx context.Context, name string, args ...string) (string, string, int, error) {
		if len(args) > 0 && args[0] == "kill" {
			return "", "", 0, nil
		}
		<-ctx.Done()
		return "", "", -1, ctx.Err()
	}
	e := NewDockerExecutor("img:test", t.TempDir(), nil, withCommandRunner(run))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := e.Execute(ctx, "print(1)", testData(), 1, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExecuteCollectsArtifactsTaggedWithAttempt(t *testing.T) {
	dir := t.TempDir()
	// The runner drops a file into the run's outputs dir, like a container
	// writing a figure would.
	run := func(ctx context.Context, name string, args ...string) (string, string, int, error) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) == 0 {
			return "", "run dir missing", 1, nil
		}
		outputs := filepath.Join(dir, entries[0].Name(), "outputs")
		if err := os.WriteFile(filepath.Join(outputs, "plot.png"), []byte("png"), 0o644); err != nil {
			return "", err.Error(), 1, nil
		}
		return "", "", 0, nil
	}
	e := NewDockerExecutor("img:test", dir, nil, withCommandRunner(run))

	res, err := e.Execute(context.Background(), "plt.savefig('plot.png')", testData(), 3, time.Minute)
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, "plot.png", res.Artifacts[0].Name)
	assert.Equal(t, 3, res.Artifacts[0].Attempt)
}

func TestPruneRunsKeepsMostRecent(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"run_20250101_000001_000000_a1",
		"run_20250101_000002_000000_a1",
		"run_20250101_000003_000000_a1",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
	}
	e := NewDockerExecutor("img:test", dir, nil, WithKeepRuns(2), withCommandRunner((&fixedRunner{}).run))
	e.pruneRuns()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, ent := range entries {
		names = append(names, ent.Name())
	}
	assert.Equal(t, []string{"run_20250101_000002_000000_a1", "run_20250101_000003_000000_a1"}, names)
}
