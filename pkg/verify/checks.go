package verify

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/evalet/pkg/freeplay"
	"github.com/jingkaihe/evalet/pkg/logger"
	"github.com/jingkaihe/evalet/pkg/osutil"
	"github.com/jingkaihe/evalet/pkg/results"
	"github.com/jingkaihe/evalet/pkg/scenario"
)

// outputLimit caps stdout/stderr captured into a check result.
const outputLimit = 2000

const requirementsInstallTimeout = 2 * time.Minute

// errorMarkers in stderr fail a code_runs check even on exit 0: some code
// catches and suppresses its own errors.
var errorMarkers = []string{"error", "exception", "traceback", "failed"}

func (v *Verifier) evaluate(ctx context.Context, check scenario.Check, projectDir string) results.CheckResult {
	switch check.Type {
	case scenario.CheckFileContains:
		return checkFileContains(projectDir, check)
	case scenario.CheckCodeRuns:
		return v.checkCodeRuns(ctx, projectDir, check)
	case scenario.CheckAPIVerify:
		return v.checkAPIVerify(ctx, check)
	default:
		return results.CheckResult{
			Check: check.Type,
			Error: fmt.Sprintf("Unknown check type: %s", check.Type),
		}
	}
}

// checkFileContains verifies the workspace file contains every pattern,
// case-insensitively.
func checkFileContains(projectDir string, check scenario.Check) results.CheckResult {
	result := results.CheckResult{
		Check:    scenario.CheckFileContains,
		File:     check.File,
		Patterns: check.Patterns,
	}

	data, err := os.ReadFile(filepath.Join(projectDir, check.File))
	if err != nil {
		if os.IsNotExist(err) {
			result.Error = fmt.Sprintf("File not found: %s", check.File)
		} else {
			result.Error = err.Error()
		}
		return result
	}

	content := strings.ToLower(string(data))
	for _, pattern := range check.Patterns {
		if strings.Contains(content, strings.ToLower(pattern)) {
			result.Found = append(result.Found, pattern)
		} else {
			result.Missing = append(result.Missing, pattern)
		}
	}

	result.Passed = len(result.Missing) == 0
	return result
}

// checkCodeRuns executes the check command in the workspace. The command is
// split on whitespace and run without a shell; passing requires exit 0 and
// a stderr free of error markers.
func (v *Verifier) checkCodeRuns(ctx context.Context, projectDir string, check scenario.Check) results.CheckResult {
	result := results.CheckResult{
		Check:   scenario.CheckCodeRuns,
		Command: check.Command,
	}

	argv := strings.Fields(check.Command)
	if len(argv) == 0 {
		result.Error = "empty command"
		return result
	}
	if !v.commandAllowed(argv[0]) {
		result.Error = fmt.Sprintf("command not allowed: %s", argv[0])
		return result
	}

	installRequirements(ctx, projectDir)

	timeout := check.Timeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = projectDir
	cmd.Env = append(os.Environ(), "PYTHONPATH="+projectDir)
	osutil.SetProcessGroupKill(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result.Stdout = truncateOutput(stdout.String())
	result.Stderr = truncateOutput(stderr.String())

	if runCtx.Err() == context.DeadlineExceeded {
		result.Error = fmt.Sprintf("Command timed out after %ds", int(timeout.Seconds()))
		return result
	}

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			result.Error = err.Error()
			return result
		}
		code = exitErr.ExitCode()
	}
	result.ReturnCode = &code

	markerFound := stderrHasErrorMarker(stderr.String())
	result.Passed = code == 0 && !markerFound
	if markerFound && code == 0 {
		result.Warning = "Exit code 0 but stderr contains error indicators"
	}
	return result
}

func (v *Verifier) commandAllowed(token string) bool {
	base := filepath.Base(token)
	for _, g := range v.allowed {
		if g.Match(token) || g.Match(base) {
			return true
		}
	}
	return false
}

// installRequirements best-effort installs the workspace's requirements.txt
// before a code_runs check. Failures are logged, not fatal: the check
// command surfaces any real breakage.
func installRequirements(ctx context.Context, projectDir string) {
	req := filepath.Join(projectDir, "requirements.txt")
	if _, err := os.Stat(req); err != nil {
		return
	}

	installCtx, cancel := context.WithTimeout(ctx, requirementsInstallTimeout)
	defer cancel()

	cmd := exec.CommandContext(installCtx, pythonBin(), "-m", "pip", "install", "-q", "-r", req)
	cmd.Dir = projectDir
	osutil.SetProcessGroupKill(cmd)
	if out, err := cmd.CombinedOutput(); err != nil {
		logger.G(ctx).WithError(err).WithField("output", truncateOutput(string(out))).Debug("requirements install failed")
	}
}

func pythonBin() string {
	if _, err := exec.LookPath("python3"); err == nil {
		return "python3"
	}
	return "python"
}

func stderrHasErrorMarker(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func truncateOutput(s string) string {
	runes := []rune(s)
	if len(runes) <= outputLimit {
		return s
	}
	return string(runes[:outputLimit])
}

// checkAPIVerify dispatches the API verification methods. Without a
// configured client the check is skipped, not failed.
func (v *Verifier) checkAPIVerify(ctx context.Context, check scenario.Check) results.CheckResult {
	result := results.CheckResult{
		Check:  scenario.CheckAPIVerify,
		Method: check.Method,
	}

	if v.client == nil {
		result.Skipped = true
		result.Reason = v.skipReason
		return result
	}

	var err error
	switch check.Method {
	case scenario.MethodSearchCompletions:
		err = v.verifyCompletionLogged(ctx, &result)
	case scenario.MethodCheckPromptExists:
		err = v.verifyPromptExists(ctx, check.PromptName, &result)
	case scenario.MethodCheckCompletionHasPrompt:
		err = v.verifyCompletionHasPrompt(ctx, &result)
	default:
		result.Error = fmt.Sprintf("Unknown method: %s", check.Method)
	}

	if err != nil {
		applyAPIError(&result, err)
	}
	return result
}

func (v *Verifier) verifyCompletionLogged(ctx context.Context, result *results.CheckResult) error {
	res, err := v.client.SearchCompletions(ctx, v.since)
	if err != nil {
		return err
	}

	reachable := true
	count := len(res.Completions)
	result.APIReachable = &reachable
	result.CompletionCount = &count
	result.TotalReturned = &res.TotalReturned
	result.Since = v.since.Format(freeplay.TimeLayout)
	result.Passed = count > 0
	return nil
}

func (v *Verifier) verifyPromptExists(ctx context.Context, promptName string, result *results.CheckResult) error {
	names, err := v.client.ListPromptTemplates(ctx)
	if err != nil {
		return err
	}

	reachable := true
	count := len(names)
	result.APIReachable = &reachable
	result.PromptName = promptName
	result.TemplateCount = &count

	for _, name := range names {
		if name == promptName {
			result.Passed = true
			break
		}
	}
	return nil
}

func (v *Verifier) verifyCompletionHasPrompt(ctx context.Context, result *results.CheckResult) error {
	res, err := v.client.SearchCompletions(ctx, v.since)
	if err != nil {
		return err
	}

	reachable := true
	count := len(res.Completions)
	result.APIReachable = &reachable
	result.CompletionCount = &count
	result.TotalReturned = &res.TotalReturned
	result.Since = v.since.Format(freeplay.TimeLayout)

	hasPrompt := false
	for _, completion := range res.Completions {
		if tpl := freeplay.PromptTemplate(completion); tpl != "" {
			hasPrompt = true
			result.PromptTemplate = tpl
			break
		}
	}
	result.HasPrompt = &hasPrompt
	result.Passed = hasPrompt
	return nil
}

// applyAPIError records reachability from the error shape: an HTTP error
// proves the API answered; a transport error proves it did not.
func applyAPIError(result *results.CheckResult, err error) {
	var apiErr *freeplay.APIError
	var urlErr *url.Error
	switch {
	case errors.As(err, &apiErr):
		reachable := true
		result.APIReachable = &reachable
		result.StatusCode = apiErr.StatusCode
	case errors.As(err, &urlErr):
		reachable := false
		result.APIReachable = &reachable
	}
	result.Error = err.Error()
}
