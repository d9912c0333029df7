package sandbox

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yoki/data-agency/internal/dataset"
	"github.com/yoki/data-agency/internal/utils"
)

//go:embed prelude.py
var preludeSource string

const (
	// DefaultImage is the prebuilt runner image with pandas/numpy/matplotlib.
	DefaultImage = "dagency-runner:py313"

	defaultKeepRuns = 50
	runPrefix       = "run_"
)

// commandRunner abstracts subprocess execution so tests can run without a
// Docker daemon.
type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error)

// DockerExecutor runs code in a disposable container per attempt: datasets
// staged read-only under /inputs, artifacts collected read-write from
// /outputs, no network. Nothing is reused across attempts.
type DockerExecutor struct {
	image    string
	ioDir    string
	keepRuns int
	logger   *zap.Logger
	run      commandRunner
}

// Option configures a DockerExecutor.
type Option func(*DockerExecutor)

func WithKeepRuns(n int) Option {
	return func(e *DockerExecutor) {
		if n > 0 {
			e.keepRuns = n
		}
	}
}

func withCommandRunner(run commandRunner) Option {
	return func(e *DockerExecutor) { e.run = run }
}

// NewDockerExecutor builds an executor that stages runs under ioDir. The
// image must already exist; building it is outside this package.
func NewDockerExecutor(image, ioDir string, logger *zap.Logger, opts ...Option) *DockerExecutor {
	if image == "" {
		image = DefaultImage
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &DockerExecutor{
		image:    image,
		ioDir:    ioDir,
		keepRuns: defaultKeepRuns,
		logger:   logger,
		run:      runCommand,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute provisions a fresh run directory, stages code and datasets, and
// runs the container bounded by timeout. Infrastructure failures come back as
// errors wrapping ErrInfrastructure; code failures live in the result.
func (e *DockerExecutor) Execute(ctx context.Context, code string, datasets map[string]*dataset.Dataset, attempt int, timeout time.Duration) (*ExecutionResult, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s%s_%06d_a%d", runPrefix, now.Format("20060102_150405"), now.Nanosecond()/1000, attempt)
	runRoot := filepath.Join(e.ioDir, runID)
	inputs := filepath.Join(runRoot, "inputs")
	outputs := filepath.Join(runRoot, "outputs")
	defer e.pruneRuns()

	for _, dir := range []string{inputs, outputs} {
		if err := utils.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("%w: provision run dir: %v", ErrInfrastructure, err)
		}
	}
	if err := os.WriteFile(filepath.Join(inputs, "code.py"), []byte(code), 0o644); err != nil {
		return nil, fmt.Errorf("%w: stage code: %v", ErrInfrastructure, err)
	}
	if err := os.WriteFile(filepath.Join(inputs, "prelude.py"), []byte(preludeSource), 0o644); err != nil {
		return nil, fmt.Errorf("%w: stage prelude: %v", ErrInfrastructure, err)
	}
	for name, d := range datasets {
		f, err := os.Create(filepath.Join(inputs, name+".csv"))
		if err != nil {
			return nil, fmt.Errorf("%w: stage dataset %s: %v", ErrInfrastructure, name, err)
		}
		werr := d.WriteCSV(f)
		cerr := f.Close()
		if werr != nil {
			return nil, fmt.Errorf("%w: stage dataset %s: %v", ErrInfrastructure, name, werr)
		}
		if cerr != nil {
			return nil, fmt.Errorf("%w: stage dataset %s: %v", ErrInfrastructure, name, cerr)
		}
	}

	containerName := "dagency-" + runID
	args := []string{
		"run", "--rm",
		"--name", containerName,
		"--network=none",
		"-v", inputs + ":/inputs:ro",
		"-v", outputs + ":/outputs:rw",
		e.image,
		"python", "-u", "/inputs/prelude.py",
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	e.logger.Debug("sandbox run starting",
		zap.String("run", runID),
		zap.Int("attempt", attempt),
		zap.Int("datasets", len(datasets)))
	stdout, stderr, exitCode, runErr := e.run(runCtx, "docker", args...)
	res := &ExecutionResult{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}

	if runCtx.Err() != nil {
		// The client process was killed; make sure the container is gone too.
		e.killContainer(containerName)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.TimedOut = true
			e.logger.Warn("sandbox run timed out",
				zap.String("run", runID),
				zap.Duration("timeout", timeout))
			return res, nil
		}
		return nil, ctx.Err()
	}
	if runErr != nil {
		return nil, fmt.Errorf("%w: start docker: %v", ErrInfrastructure, runErr)
	}
	if exitCode != 0 {
		if daemonFailure(stdout, stderr) {
			return nil, fmt.Errorf("%w: %s", ErrInfrastructure, firstLine(stderr, stdout))
		}
		res.Err = parseTraceback(stderr)
		if res.Err == nil {
			// A traceback we could not parse still ends with the raised
			// exception, so the last line distinguishes failures where the
			// first ("Traceback (most recent call last):") does not.
			res.Err = &CodeError{Kind: "ExecutionError", Message: lastLine(stderr, stdout)}
		}
	}

	res.Artifacts = collectArtifacts(outputs, attempt)
	e.logger.Debug("sandbox run finished",
		zap.String("run", runID),
		zap.Int("exit", exitCode),
		zap.Int("artifacts", len(res.Artifacts)),
		zap.Duration("took", res.Duration))
	return res, nil
}

// killContainer is best-effort teardown after a cancelled or timed-out run.
func (e *DockerExecutor) killContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, _, _, _ = e.run(ctx, "docker", "kill", name)
}

// daemonFailure recognizes docker-level failures that look like non-zero
// exits but indicate the sandbox itself is unavailable.
func daemonFailure(stdout, stderr string) bool {
	combined := stdout + "\n" + stderr
	for _, marker := range []string{
		"Cannot connect to the Docker daemon",
		"Error response from daemon",
		"Unable to find image",
		"docker: command not found",
		"permission denied while trying to connect",
	} {
		if strings.Contains(combined, marker) {
			return true
		}
	}
	return false
}

func collectArtifacts(outputs string, attempt int) []Artifact {
	entries, err := os.ReadDir(outputs)
	if err != nil {
		return nil
	}
	var out []Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, Artifact{
			Name:    e.Name(),
			Path:    filepath.Join(outputs, e.Name()),
			Attempt: attempt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// pruneRuns keeps only the most recent keepRuns run directories.
func (e *DockerExecutor) pruneRuns() {
	entries, err := os.ReadDir(e.ioDir)
	if err != nil {
		return
	}
	var runs []string
	for _, ent := range entries {
		if ent.IsDir() && strings.HasPrefix(ent.Name(), runPrefix) {
			runs = append(runs, ent.Name())
		}
	}
	sort.Strings(runs) // timestamped names sort chronologically
	for len(runs) > e.keepRuns {
		oldest := runs[0]
		runs = runs[1:]
		if err := os.RemoveAll(filepath.Join(e.ioDir, oldest)); err != nil {
			e.logger.Warn("prune run dir", zap.String("run", oldest), zap.Error(err))
		}
	}
}

func firstLine(candidates ...string) string {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if i := strings.IndexByte(c, '\n'); i >= 0 {
			return c[:i]
		}
		return c
	}
	return "unknown failure"
}

// lastLine returns the final nonempty line of the first nonempty candidate.
func lastLine(candidates ...string) string {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if i := strings.LastIndexByte(c, '\n'); i >= 0 {
			return strings.TrimSpace(c[i+1:])
		}
		return c
	}
	return "unknown failure"
}

// runCommand is the default commandRunner backed by os/exec.
func runCommand(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitCode = ee.ExitCode()
			err = nil
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}
