// Package runner executes an agent subprocess against an isolated copy of a
// scenario's fixture project, streaming its stdout through the event pipeline
// and enforcing the scenario timeout with process-group cancellation.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/evalet/pkg/events"
	"github.com/jingkaihe/evalet/pkg/freeplay"
	"github.com/jingkaihe/evalet/pkg/logger"
	"github.com/jingkaihe/evalet/pkg/osutil"
	"github.com/jingkaihe/evalet/pkg/results"
	"github.com/jingkaihe/evalet/pkg/scenario"
)

// DefaultAgentCommand is the agent binary launched when none is configured.
const DefaultAgentCommand = "claude"

// Exit codes recorded when the run did not end on the agent's own terms.
const (
	TimeoutExitCode   = 124
	InterruptExitCode = 130
)

// ErrInterrupted reports that the parent context was canceled mid-run,
// typically by the user pressing ctrl-c.
var ErrInterrupted = errors.New("agent run interrupted")

// DefaultAgentArgs returns the arguments for a headless streaming run.
func DefaultAgentArgs() []string {
	return []string{
		"-p",
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
}

// Options configures a single agent run.
type Options struct {
	Scenario *scenario.Scenario
	Mode     string

	// AgentCmd and AgentArgs override the configured agent invocation.
	// Empty values fall back to DefaultAgentCommand / DefaultAgentArgs.
	AgentCmd  string
	AgentArgs []string

	// PluginDir is appended as --plugin-dir in with-plugin mode.
	PluginDir string

	// Store provides the transcript log location. Without one the
	// transcript is discarded.
	Store *results.Store

	// Handler receives stream events alongside the internal collector,
	// typically a console renderer.
	Handler events.Handler

	// Env entries are appended to the inherited environment.
	Env []string

	// WorkspaceRoot is where run workspaces are created. Defaults to the
	// system temp directory.
	WorkspaceRoot string

	// Grace is how long a canceled agent gets to exit after SIGTERM before
	// the process group is killed.
	Grace time.Duration
}

func (o Options) validate() error {
	if o.Scenario == nil {
		return errors.New("scenario is required")
	}
	if !results.ValidMode(o.Mode) {
		return errors.Errorf("invalid mode %q, want %q or %q", o.Mode, results.ModeBaseline, results.ModeWithPlugin)
	}
	if o.Mode == results.ModeWithPlugin && o.PluginDir == "" {
		return errors.New("plugin directory is required in with-plugin mode")
	}
	return nil
}

func (o Options) agentCmd() string {
	if o.AgentCmd != "" {
		return o.AgentCmd
	}
	return DefaultAgentCommand
}

func (o Options) agentArgs() []string {
	args := o.AgentArgs
	if len(args) == 0 {
		args = DefaultAgentArgs()
	}
	args = append([]string(nil), args...)
	if o.Mode == results.ModeWithPlugin {
		args = append(args, "--plugin-dir", o.PluginDir)
	}
	return args
}

// RunResult is the outcome of one agent run. A timeout or non-zero agent
// exit is recorded here rather than returned as an error, so the caller can
// still verify whatever state the agent left behind.
type RunResult struct {
	RunID     string
	Scenario  string
	Mode      string
	Workspace string
	LogPath   string
	StartTime time.Time
	EndTime   time.Time
	ExitCode  int
	TimedOut  bool
	Collector *events.Collector
}

// Duration returns the wall-clock run time.
func (r *RunResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Timing converts the run times into result-document timing.
func (r *RunResult) Timing() results.Timing {
	return results.Timing{
		StartTime:       r.StartTime.Format(freeplay.TimeLayout),
		EndTime:         r.EndTime.Format(freeplay.TimeLayout),
		DurationSeconds: int(r.Duration().Seconds()),
	}
}

// Stats converts the collected stream events into result-document stats.
func (r *RunResult) Stats() *results.Stats {
	stats := &results.Stats{ToolsUsed: r.Collector.ToolNames()}
	if res := r.Collector.FinalResult; res != nil {
		stats.NumTurns = res.NumTurns
		stats.InputTokens = res.Usage.InputTokens
		stats.OutputTokens = res.Usage.OutputTokens
		stats.TotalCostUSD = res.TotalCostUSD
	}
	return stats
}

// Annotate stamps the run metadata onto a verification document.
func (r *RunResult) Annotate(doc *results.Document) {
	doc.RunID = r.RunID
	doc.TimedOut = r.TimedOut
	exitCode := r.ExitCode
	doc.AgentExitCode = &exitCode
	doc.Stats = r.Stats()
}

// Run copies the scenario's fixture project into a fresh workspace, launches
// the agent against it with the task prompt on stdin, and pumps its output
// until the agent exits, the scenario timeout fires, or ctx is canceled.
//
// The workspace is left in place for verification; cleaning it up is the
// caller's job.
func Run(ctx context.Context, opts Options) (*RunResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	scn := opts.Scenario

	root := opts.WorkspaceRoot
	if root == "" {
		root = os.TempDir()
	}
	workspace, err := os.MkdirTemp(root, fmt.Sprintf("evalet-%s-", scn.Name))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create workspace")
	}
	if err := scenario.CopyProject(scn.ProjectDir(), workspace); err != nil {
		return nil, errors.Wrap(err, "failed to copy fixture project")
	}

	res := &RunResult{
		RunID:     uuid.NewString(),
		Scenario:  scn.Name,
		Mode:      opts.Mode,
		Workspace: workspace,
		Collector: events.NewCollector(),
	}

	transcript := io.Writer(io.Discard)
	if opts.Store != nil {
		logPath, err := opts.Store.LogPath(scn.Name, opts.Mode)
		if err != nil {
			return nil, err
		}
		logFile, err := os.Create(logPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create transcript log")
		}
		defer logFile.Close()
		res.LogPath = logPath
		transcript = logFile
	}
	// stdout and stderr pumps share the transcript.
	transcript = &syncWriter{w: transcript}

	handler := events.Handler(res.Collector)
	if opts.Handler != nil {
		handler = events.Multi(opts.Handler, res.Collector)
	}

	runCtx, cancel := context.WithTimeout(ctx, scn.Timeout())
	defer cancel()

	res.StartTime = time.Now()
	// The scoring step narrows API checks to completions logged after this
	// run began, so standalone verification after the fact sees the same
	// window the in-process path does.
	if os.Getenv("EVAL_START_TIME") == "" {
		os.Setenv("EVAL_START_TIME", res.StartTime.Format(freeplay.TimeLayout))
	}

	cmd := exec.CommandContext(runCtx, opts.agentCmd(), opts.agentArgs()...)
	cmd.Dir = workspace
	cmd.Stdin = strings.NewReader(scn.Prompt)
	cmd.Env = append(os.Environ(), "EVAL_MODE="+opts.Mode)
	cmd.Env = append(cmd.Env, opts.Env...)
	osutil.SetProcessGroup(cmd)
	osutil.SetProcessGroupTerm(cmd, opts.Grace)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open agent stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open agent stderr")
	}

	log := logger.G(ctx).WithFields(logrus.Fields{
		"run_id":   res.RunID,
		"scenario": scn.Name,
		"mode":     opts.Mode,
	})
	log.WithFields(logrus.Fields{
		"command":   opts.agentCmd(),
		"workspace": workspace,
		"timeout":   scn.Timeout(),
	}).Debug("starting agent")

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start agent %q", opts.agentCmd())
	}
	pid := cmd.Process.Pid

	pumps := new(errgroup.Group)
	pumps.Go(func() error {
		return events.Stream(io.TeeReader(stdout, transcript), handler)
	})
	pumps.Go(func() error {
		_, err := io.Copy(transcript, stderr)
		return err
	})

	// Pipes must be drained before Wait closes them.
	streamErr := pumps.Wait()
	waitErr := cmd.Wait()
	res.EndTime = time.Now()

	// Sweep anything left in the group after the agent itself is gone.
	if err := osutil.KillProcessGroup(pid); err != nil {
		log.WithError(err).Debug("process group sweep failed")
	}
	if streamErr != nil {
		log.WithError(streamErr).Debug("agent output pump ended early")
	}

	res.ExitCode = exitCode(cmd, waitErr)

	switch {
	case ctx.Err() != nil:
		res.ExitCode = InterruptExitCode
		log.Warn("agent run interrupted")
		return res, ErrInterrupted
	case runCtx.Err() == context.DeadlineExceeded:
		res.TimedOut = true
		res.ExitCode = TimeoutExitCode
		log.WithField("timeout", scn.Timeout()).Warn("agent run timed out")
	case waitErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, errors.Wrap(waitErr, "agent run failed")
		}
		log.WithField("exit_code", res.ExitCode).Warn("agent exited with non-zero status")
	}

	log.WithFields(logrus.Fields{
		"exit_code": res.ExitCode,
		"duration":  res.Duration().Round(time.Millisecond),
	}).Info("agent run finished")
	return res, nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		if cmd.ProcessState != nil {
			return cmd.ProcessState.ExitCode()
		}
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
