package filelist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/google/shlex"
	log "github.com/sirupsen/logrus"

	"github.com/MaT-PT/forensics-project/config"
	"github.com/MaT-PT/forensics-project/vars"
)

// Status is the outcome of one (target, step) invocation.
type Status int

const (
	// StatusRan: the command executed and returned zero.
	StatusRan Status = iota
	// StatusFailed: the command executed and returned non-zero.
	StatusFailed
	// StatusDisabled: the referenced tool is disabled in the configuration.
	StatusDisabled
	// StatusFiltered: the target's entry path did not match the step filter.
	StatusFiltered
	// StatusAlreadyRun: a run-once step already executed in this pass.
	StatusAlreadyRun
)

func (s Status) String() string {
	switch s {
	case StatusRan:
		return "ran"
	case StatusFailed:
		return "failed"
	case StatusDisabled:
		return "skipped (disabled)"
	case StatusFiltered:
		return "skipped (filtered)"
	case StatusAlreadyRun:
		return "skipped (already run)"
	}
	return "unknown"
}

// RunTarget describes the resolved target a step runs against.
type RunTarget struct {
	// FilePath is where the extracted artifact was materialized.
	FilePath string
	// OutDir is the extraction root.
	OutDir string
	// EntryPath is the original path inside the source filesystem.
	EntryPath string
	// ExtraVars are caller-supplied template variables.
	ExtraVars map[string]string
	// ExtraArgs is appended to the command line after the tool arguments.
	ExtraArgs string
}

// Runner executes pipeline steps. It owns the run-once execution table,
// which is reset at the start of each partition pass; the steps themselves
// stay immutable after parse.
type Runner struct {
	cfg    *config.Config
	silent bool
	ran    map[*Tool]bool
}

// NewRunner returns a Runner bound to a tool configuration. In silent mode
// the output of commands without a redirection spec is suppressed.
func NewRunner(cfg *config.Config, silent bool) *Runner {
	return &Runner{cfg: cfg, silent: silent, ran: make(map[*Tool]bool)}
}

// Reset clears the run-once execution table. Run-once is scoped to a
// single partition pass, not to the process lifetime.
func (r *Runner) Reset() {
	r.ran = make(map[*Tool]bool)
}

// Run executes one step against one resolved target. A non-zero exit that
// is not tolerated (step allow_fail, falling back to the config tool's
// allow_fail, defaulting to intolerant) returns a ToolExecutionError and
// must abort the run; a tolerated failure is reported and returns
// StatusFailed with a nil error.
func (r *Runner) Run(t *Tool, target RunTarget) (Status, error) {
	var cfgTool *config.Tool
	if t.Name != "" {
		var err error
		cfgTool, err = r.cfg.GetTool(t.Name)
		if err != nil {
			return StatusFailed, err
		}
		if !cfgTool.Enabled {
			log.Infof("Tool %q is disabled in config", t.Name)
			return StatusDisabled, nil
		}
	}
	if t.Filter != "" && !fnmatch(t.Filter, target.EntryPath) {
		log.Debugf("Filter %q does not match %q, skipping %s", t.Filter, target.EntryPath, t)
		return StatusFiltered, nil
	}
	if t.RunOnce {
		if r.ran[t] {
			log.Debugf("Run-once %s already executed in this pass", t)
			return StatusAlreadyRun, nil
		}
		r.ran[t] = true
	}

	dict := r.varDict(target)
	cmd, err := r.buildCommand(t, cfgTool, target, dict)
	if err != nil {
		return StatusFailed, err
	}
	cmd = vars.Sub(cmd, dict)
	log.Infof("Running command: %s", cmd)

	exitCode, err := r.execute(t, cmd, dict)
	if err != nil {
		return StatusFailed, err
	}
	if exitCode == 0 {
		log.Infof("Command succeeded (returned %d)", exitCode)
		return StatusRan, nil
	}

	allowFail := false
	switch {
	case t.AllowFail != nil:
		allowFail = *t.AllowFail
	case cfgTool != nil && cfgTool.AllowFail != nil:
		allowFail = *cfgTool.AllowFail
	}
	if !allowFail {
		return StatusFailed, &ToolExecutionError{Cmd: cmd, ExitCode: exitCode}
	}
	log.Warnf("Command failed (returned %d), continuing", exitCode)
	return StatusFailed, nil
}

// varDict assembles the variable dictionary for one invocation: directory
// aliases from the configuration, caller extras, then the per-target
// variables.
func (r *Runner) varDict(target RunTarget) map[string]string {
	dict := r.cfg.DirVars()
	for k, v := range target.ExtraVars {
		dict[strings.ToUpper(k)] = v
	}
	outDir := target.OutDir
	if outDir == "" {
		outDir = "."
	}
	filePath := target.FilePath
	if filePath == "" {
		filePath = filepath.Join(outDir, filepath.FromSlash(target.EntryPath))
	}
	dict["FILE"] = filePath
	dict["OUTDIR"] = outDir
	dict["PARENT"] = filepath.Dir(filePath)
	dict["ENTRYPATH"] = target.EntryPath
	dict["FILENAME"] = filepath.Base(filePath)
	if username := vars.Username(target.EntryPath); username != "" {
		dict["USERNAME"] = username
	}
	return dict
}

// buildCommand resolves the step into a raw (unsubstituted) command line.
// Named steps start from the config tool's platform command, then its
// fixed arguments, then the flag template of each extra argument; the
// extra values themselves enter the dictionary and are substituted with
// everything else.
func (r *Runner) buildCommand(t *Tool, cfgTool *config.Tool, target RunTarget, dict map[string]string) (string, error) {
	var cmd string
	if cfgTool != nil {
		var err error
		cmd, err = cfgTool.Cmd.Command()
		if err != nil {
			return "", fmt.Errorf("tool %q: %w", cfgTool.Name, err)
		}
		if cfgTool.Args != "" {
			cmd += " " + cfgTool.Args
		}
		names := make([]string, 0, len(t.Extra))
		for name := range t.Extra {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			flagTemplate, ok := cfgTool.ArgsExtra[name]
			if !ok {
				return "", fmt.Errorf("extra argument %q not found in tool %q", name, t.Name)
			}
			cmd += " " + flagTemplate
			dict[strings.ToUpper(name)] = t.Extra[name]
		}
	} else {
		cmd = t.Cmd
	}
	if target.ExtraArgs != "" {
		if _, err := shlex.Split(target.ExtraArgs); err != nil {
			return "", fmt.Errorf("invalid extra arguments %q: %w", target.ExtraArgs, err)
		}
		cmd += " " + target.ExtraArgs
	}
	return cmd, nil
}

// runShell invokes a command line through the platform shell. Replaced in
// tests.
var runShell = func(cmd string, stdout, stderr io.Writer) (int, error) {
	var proc *exec.Cmd
	if runtime.GOOS == "windows" {
		proc = exec.Command("cmd", "/C", cmd)
	} else {
		proc = exec.Command("sh", "-c", cmd)
	}
	proc.Stdout = stdout
	proc.Stderr = stderr
	if err := proc.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, err
	}
	return 0, nil
}

// execute runs the resolved command, wiring its output per the step's
// redirection spec (or the runner's silent mode).
func (r *Runner) execute(t *Tool, cmd string, dict map[string]string) (int, error) {
	if t.Output == nil {
		stdout := io.Writer(os.Stdout)
		if r.silent {
			log.Debug("Silent mode: command STDOUT will be suppressed")
			stdout = io.Discard
		}
		return runShell(cmd, stdout, os.Stderr)
	}

	outPath := vars.Sub(t.Output.Path, dict)
	log.Debugf("Writing output to file: %q (append=%t, stderr=%t)",
		outPath, t.Output.Append, t.Output.Stderr)
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	flags := os.O_CREATE | os.O_WRONLY
	if t.Output.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	outFile, err := os.OpenFile(outPath, flags, 0o644)
	if err != nil {
		return 0, err
	}
	defer outFile.Close()

	stderr := io.Writer(os.Stderr)
	if t.Output.Stderr {
		stderr = outFile
	}
	exitCode, err := runShell(cmd, outFile, stderr)
	if err == nil && exitCode == 0 && t.Output.Append {
		_, _ = outFile.WriteString("\n")
	}
	return exitCode, err
}

// fnmatch matches a path against a glob pattern where wildcards also cross
// path separators, the way the step filters are written.
func fnmatch(pattern, name string) bool {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, c := range pattern {
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(name)
}
