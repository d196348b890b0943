package filelist

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaT-PT/forensics-project/config"
)

// fakeShell replaces runShell, recording every command line and writing
// canned output. The exit code is taken from *exitCode on each call.
func fakeShell(t *testing.T, exitCode *int, output string) *[]string {
	t.Helper()
	var commands []string
	old := runShell
	runShell = func(cmd string, stdout, stderr io.Writer) (int, error) {
		commands = append(commands, cmd)
		if output != "" {
			fmt.Fprint(stdout, output)
		}
		code := 0
		if exitCode != nil {
			code = *exitCode
		}
		return code, nil
	}
	t.Cleanup(func() { runShell = old })
	return &commands
}

func runnerConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
tools:
  - name: regripper
    cmd: rip.pl
    args: -r $FILE
    args_extra:
      profile: -p $PROFILE
  - name: tolerant
    cmd: flaky.sh
    allow_fail: true
  - name: legacy
    cmd: legacy.sh
    disabled: true
directories:
  reports: $OUTDIR/reports
`))
	require.NoError(t, err)
	return cfg
}

func TestRunnerRun(t *testing.T) {
	target := RunTarget{
		FilePath:  "/out/Users/Alice/NTUSER.DAT",
		OutDir:    "/out",
		EntryPath: "Users/Alice/NTUSER.DAT",
	}

	t.Run("inline command with variables", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		status, err := r.Run(&Tool{Cmd: "sha1sum $FILE"}, target)
		require.NoError(t, err)
		assert.Equal(t, StatusRan, status)
		require.Len(t, *commands, 1)
		assert.Equal(t, "sha1sum /out/Users/Alice/NTUSER.DAT", (*commands)[0])
	})

	t.Run("named tool with extra arguments", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		status, err := r.Run(&Tool{
			Name:  "regripper",
			Extra: map[string]string{"profile": "ntuser"},
		}, target)
		require.NoError(t, err)
		assert.Equal(t, StatusRan, status)
		require.Len(t, *commands, 1)
		assert.Equal(t, "rip.pl -r /out/Users/Alice/NTUSER.DAT -p ntuser", (*commands)[0])
	})

	t.Run("unknown extra argument", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		_, err := r.Run(&Tool{
			Name:  "regripper",
			Extra: map[string]string{"nonexistent": "x"},
		}, target)
		assert.Error(t, err)
		assert.Empty(t, *commands)
	})

	t.Run("unknown tool name", func(t *testing.T) {
		fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		_, err := r.Run(&Tool{Name: "nonexistent"}, target)
		assert.Error(t, err)
	})

	t.Run("directory variables resolve", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		status, err := r.Run(&Tool{Cmd: "mkdir -p $DIR_REPORTS"}, target)
		require.NoError(t, err)
		assert.Equal(t, StatusRan, status)
		assert.Equal(t, "mkdir -p /out/reports", (*commands)[0])
	})

	t.Run("username variable", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		_, err := r.Run(&Tool{Cmd: "echo $USERNAME"}, target)
		require.NoError(t, err)
		assert.Equal(t, "echo Alice", (*commands)[0])
	})

	t.Run("extra args are appended", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		tgt := target
		tgt.ExtraArgs = "--fast -n 1"
		_, err := r.Run(&Tool{Cmd: "scan $FILE"}, tgt)
		require.NoError(t, err)
		assert.Equal(t, "scan /out/Users/Alice/NTUSER.DAT --fast -n 1", (*commands)[0])
	})

	t.Run("malformed extra args", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		tgt := target
		tgt.ExtraArgs = `--broken "quote`
		_, err := r.Run(&Tool{Cmd: "scan $FILE"}, tgt)
		assert.Error(t, err)
		assert.Empty(t, *commands)
	})
}

func TestRunnerSkips(t *testing.T) {
	target := RunTarget{
		FilePath:  "/out/Users/Alice/NTUSER.DAT",
		OutDir:    "/out",
		EntryPath: "Users/Alice/NTUSER.DAT",
	}

	t.Run("disabled tool", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		status, err := r.Run(&Tool{Name: "legacy"}, target)
		require.NoError(t, err)
		assert.Equal(t, StatusDisabled, status)
		assert.Empty(t, *commands)
	})

	t.Run("filter mismatch", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		status, err := r.Run(&Tool{Cmd: "echo", Filter: "*/SYSTEM"}, target)
		require.NoError(t, err)
		assert.Equal(t, StatusFiltered, status)
		assert.Empty(t, *commands)
	})

	t.Run("filter match", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		status, err := r.Run(&Tool{Cmd: "echo", Filter: "*/ntuser.dat"}, target)
		require.NoError(t, err)
		assert.Equal(t, StatusRan, status)
		assert.Len(t, *commands, 1)
	})

	t.Run("run once per pass", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)
		step := &Tool{Cmd: "echo once", RunOnce: true}

		status, err := r.Run(step, target)
		require.NoError(t, err)
		assert.Equal(t, StatusRan, status)

		status, err = r.Run(step, target)
		require.NoError(t, err)
		assert.Equal(t, StatusAlreadyRun, status)
		assert.Len(t, *commands, 1)

		r.Reset()
		status, err = r.Run(step, target)
		require.NoError(t, err)
		assert.Equal(t, StatusRan, status)
		assert.Len(t, *commands, 2)
	})

	t.Run("run once is per step not per command", func(t *testing.T) {
		commands := fakeShell(t, nil, "")
		r := NewRunner(runnerConfig(t), false)

		_, err := r.Run(&Tool{Cmd: "echo once", RunOnce: true}, target)
		require.NoError(t, err)
		_, err = r.Run(&Tool{Cmd: "echo once", RunOnce: true}, target)
		require.NoError(t, err)
		assert.Len(t, *commands, 2)
	})
}

func TestRunnerFailures(t *testing.T) {
	target := RunTarget{FilePath: "/out/x", OutDir: "/out", EntryPath: "x"}

	t.Run("failure aborts by default", func(t *testing.T) {
		code := 1
		fakeShell(t, &code, "")
		r := NewRunner(runnerConfig(t), false)

		status, err := r.Run(&Tool{Cmd: "false"}, target)
		assert.Equal(t, StatusFailed, status)
		var execErr *ToolExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, 1, execErr.ExitCode)
	})

	t.Run("step allow_fail tolerates", func(t *testing.T) {
		code := 2
		fakeShell(t, &code, "")
		r := NewRunner(runnerConfig(t), false)

		yes := true
		status, err := r.Run(&Tool{Cmd: "false", AllowFail: &yes}, target)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, status)
	})

	t.Run("config allow_fail is the fallback", func(t *testing.T) {
		code := 3
		fakeShell(t, &code, "")
		r := NewRunner(runnerConfig(t), false)

		status, err := r.Run(&Tool{Name: "tolerant"}, target)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, status)
	})

	t.Run("step override beats config allow_fail", func(t *testing.T) {
		code := 4
		fakeShell(t, &code, "")
		r := NewRunner(runnerConfig(t), false)

		no := false
		_, err := r.Run(&Tool{Name: "tolerant", AllowFail: &no}, target)
		var execErr *ToolExecutionError
		assert.ErrorAs(t, err, &execErr)
	})
}

func TestRunnerOutput(t *testing.T) {
	t.Run("redirect to file", func(t *testing.T) {
		fakeShell(t, nil, "report body")
		r := NewRunner(runnerConfig(t), false)

		outDir := t.TempDir()
		target := RunTarget{
			FilePath:  filepath.Join(outDir, "NTUSER.DAT"),
			OutDir:    outDir,
			EntryPath: "Users/Alice/NTUSER.DAT",
		}
		step := &Tool{
			Cmd:    "echo report",
			Output: &Output{Path: "$OUTDIR/reports/$USERNAME.txt"},
		}
		status, err := r.Run(step, target)
		require.NoError(t, err)
		assert.Equal(t, StatusRan, status)

		data, err := os.ReadFile(filepath.Join(outDir, "reports", "Alice.txt"))
		require.NoError(t, err)
		assert.Equal(t, "report body", string(data))
	})

	t.Run("append accumulates", func(t *testing.T) {
		fakeShell(t, nil, "line")
		r := NewRunner(runnerConfig(t), false)

		outDir := t.TempDir()
		target := RunTarget{FilePath: filepath.Join(outDir, "x"), OutDir: outDir, EntryPath: "x"}
		step := &Tool{
			Cmd:    "echo line",
			Output: &Output{Path: "$OUTDIR/all.txt", Append: true},
		}
		for i := 0; i < 2; i++ {
			_, err := r.Run(step, target)
			require.NoError(t, err)
		}

		data, err := os.ReadFile(filepath.Join(outDir, "all.txt"))
		require.NoError(t, err)
		assert.Equal(t, "line\nline\n", string(data))
	})

	t.Run("no separator after a failed command", func(t *testing.T) {
		code := 1
		fakeShell(t, &code, "partial")
		r := NewRunner(runnerConfig(t), false)

		outDir := t.TempDir()
		target := RunTarget{FilePath: filepath.Join(outDir, "x"), OutDir: outDir, EntryPath: "x"}
		yes := true
		step := &Tool{
			Cmd:       "flaky",
			AllowFail: &yes,
			Output:    &Output{Path: "$OUTDIR/all.txt", Append: true},
		}
		status, err := r.Run(step, target)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, status)

		data, err := os.ReadFile(filepath.Join(outDir, "all.txt"))
		require.NoError(t, err)
		assert.Equal(t, "partial", string(data))
	})

	t.Run("truncate overwrites", func(t *testing.T) {
		fakeShell(t, nil, "fresh")
		r := NewRunner(runnerConfig(t), false)

		outDir := t.TempDir()
		out := filepath.Join(outDir, "report.txt")
		require.NoError(t, os.WriteFile(out, []byte("stale content"), 0o644))

		target := RunTarget{FilePath: filepath.Join(outDir, "x"), OutDir: outDir, EntryPath: "x"}
		_, err := r.Run(&Tool{Cmd: "echo", Output: &Output{Path: "$OUTDIR/report.txt"}}, target)
		require.NoError(t, err)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "fresh", string(data))
	})
}

func TestFnmatch(t *testing.T) {
	assert.True(t, fnmatch("*/NTUSER.DAT", "Users/Alice/NTUSER.DAT"))
	assert.True(t, fnmatch("*/ntuser.dat", "Users/Alice/NTUSER.DAT"))
	assert.True(t, fnmatch("Users/?lice/*", "Users/Alice/NTUSER.DAT"))
	assert.False(t, fnmatch("*/SYSTEM", "Users/Alice/NTUSER.DAT"))
	assert.False(t, fnmatch("NTUSER.DAT", "Users/Alice/NTUSER.DAT"))
}
