// Package verify scores an agent's workspace against a scenario's success
// criteria: file content checks, code execution checks, and Freeplay API
// checks. Every criterion always yields a result entry; check failures are
// recorded, never fatal to the batch.
package verify

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/evalet/pkg/freeplay"
	"github.com/jingkaihe/evalet/pkg/logger"
	"github.com/jingkaihe/evalet/pkg/results"
	"github.com/jingkaihe/evalet/pkg/scenario"
)

// SkipReasonNotConfigured is recorded on API checks when the Freeplay
// credentials are absent.
const SkipReasonNotConfigured = "FREEPLAY_API_KEY or FREEPLAY_PROJECT_ID not set"

// SkipReasonDisabled is recorded on API checks under --no-api.
const SkipReasonDisabled = "API verification disabled"

// DefaultAllowedCommands are the command globs code_runs will execute.
var DefaultAllowedCommands = []string{"python*", "node*", "npm*", "npx*", "pip*", "go*", "./**"}

// Options configures a Verifier.
type Options struct {
	// Client is the Freeplay client for api_verify checks. When nil one is
	// built from the environment; if that fails API checks are skipped.
	Client *freeplay.Client
	// SkipAPI skips api_verify checks even when credentials exist.
	SkipAPI bool
	// Since is the start of the verification window. Zero means derive it
	// from EVAL_START_TIME (or now minus the default window).
	Since time.Time
	// Timing overrides the run timing recorded in the document. Nil means
	// read the EVAL_* variables the runner exports.
	Timing *results.Timing
	// AllowedCommands overrides DefaultAllowedCommands.
	AllowedCommands []string
}

// Verifier evaluates scenario success criteria against a workspace.
type Verifier struct {
	client     *freeplay.Client
	skipReason string
	since      time.Time
	timing     *results.Timing
	allowed    []glob.Glob
}

// New builds a Verifier.
func New(opts Options) (*Verifier, error) {
	v := &Verifier{timing: opts.Timing}

	switch {
	case opts.SkipAPI:
		v.skipReason = SkipReasonDisabled
	case opts.Client != nil:
		v.client = opts.Client
	default:
		client, err := freeplay.NewFromEnv()
		if err != nil {
			if !errors.Is(err, freeplay.ErrNotConfigured) {
				return nil, err
			}
			v.skipReason = SkipReasonNotConfigured
		} else {
			v.client = client
		}
	}

	v.since = opts.Since
	if v.since.IsZero() {
		v.since = freeplay.EvalWindowStart(time.Now())
	}

	patterns := opts.AllowedCommands
	if len(patterns) == 0 {
		patterns = DefaultAllowedCommands
	}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid command pattern %q", pattern)
		}
		v.allowed = append(v.allowed, g)
	}

	return v, nil
}

// Run evaluates every success criterion and assembles the result document.
func (v *Verifier) Run(ctx context.Context, scn *scenario.Scenario, projectDir, mode string) (*results.Document, error) {
	var checks []results.CheckResult
	var checkErrs *multierror.Error

	for _, criterion := range scn.SuccessCriteria {
		result := v.evaluate(ctx, criterion, projectDir)
		result.Description = criterion.Description
		if result.Error != "" {
			checkErrs = multierror.Append(checkErrs, errors.Errorf("%s: %s", result.Check, result.Error))
		}
		checks = append(checks, result)
	}

	if err := checkErrs.ErrorOrNil(); err != nil {
		logger.G(ctx).WithError(err).Debug("some checks reported errors")
	}

	timing := timingFromEnv()
	if v.timing != nil {
		timing = *v.timing
	}

	return &results.Document{
		Scenario:   scn.Name,
		Mode:       mode,
		Timestamp:  results.Timestamp(time.Now()),
		ProjectDir: projectDir,
		Checks:     checks,
		Score:      Score(scn, checks),
		Timing:     timing,
	}, nil
}

// timingFromEnv reads the run window from the environment for standalone
// verification of an existing workspace. The runner exports EVAL_START_TIME;
// EVAL_END_TIME and EVAL_DURATION_SECS are optional caller-provided extras.
func timingFromEnv() results.Timing {
	seconds, _ := strconv.Atoi(os.Getenv("EVAL_DURATION_SECS"))
	return results.Timing{
		StartTime:       os.Getenv("EVAL_START_TIME"),
		EndTime:         os.Getenv("EVAL_END_TIME"),
		DurationSeconds: seconds,
	}
}
