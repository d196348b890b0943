package filelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaT-PT/forensics-project/config"
)

const sampleList = `
files:
  - Windows/System32/config/SYSTEM
  - path: Windows\System32\config\SOFTWARE
    overwrite: true
    tool: echo $FILE
  - path: Users/*/NTUSER.DAT
    tools:
      - name: regripper
        extra:
          profile: ntuser
          depth: 3
        filter: "*/NTUSER.DAT"
        output:
          path: $OUTDIR/reports/$USERNAME.txt
          append: true
        requires:
          - Windows/System32/config/SYSTEM
        run_once: false
      - cmd: sha1sum $FILE
        output: $OUTDIR/hashes.txt
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
tools:
  - name: regripper
    cmd: rip.pl
    args: -r $FILE
    args_extra:
      profile: -p $PROFILE
      depth: -d $DEPTH
directories:
  reports: $OUTDIR/reports
`))
	require.NoError(t, err)
	return cfg
}

func TestParse(t *testing.T) {
	fl, err := Parse([]byte(sampleList), testConfig(t))
	require.NoError(t, err)
	require.Len(t, fl.Files, 3)

	t.Run("scalar entry", func(t *testing.T) {
		assert.True(t, fl.Contains("Windows/System32/config/SYSTEM"))
	})

	t.Run("paths are normalized", func(t *testing.T) {
		assert.True(t, fl.Contains("Windows/System32/config/SOFTWARE"))
	})

	t.Run("single tool shorthand", func(t *testing.T) {
		var file *File
		for _, f := range fl.Files {
			if f.Path == "Windows/System32/config/SOFTWARE" {
				file = f
			}
		}
		require.NotNil(t, file)
		assert.True(t, file.Overwrite)
		require.Len(t, file.Tools, 1)
		assert.Equal(t, "echo $FILE", file.Tools[0].Cmd)
		assert.Same(t, file, file.Tools[0].File())
	})

	t.Run("full tool entries", func(t *testing.T) {
		var file *File
		for _, f := range fl.Files {
			if f.Path == "Users/*/NTUSER.DAT" {
				file = f
			}
		}
		require.NotNil(t, file)
		require.Len(t, file.Tools, 2)

		rip := file.Tools[0]
		assert.Equal(t, "regripper", rip.Name)
		assert.Equal(t, map[string]string{"profile": "ntuser", "depth": "3"}, rip.Extra)
		assert.Equal(t, "*/NTUSER.DAT", rip.Filter)
		require.NotNil(t, rip.Output)
		assert.Equal(t, "$OUTDIR/reports/$USERNAME.txt", rip.Output.Path)
		assert.True(t, rip.Output.Append)
		assert.Equal(t, []string{"Windows/System32/config/SYSTEM"}, rip.Requires)
		assert.False(t, rip.RunOnce)

		sha := file.Tools[1]
		assert.Equal(t, "sha1sum $FILE", sha.Cmd)
		require.NotNil(t, sha.Output)
		assert.Equal(t, "$OUTDIR/hashes.txt", sha.Output.Path)
		assert.False(t, sha.Output.Append)
	})
}

func TestParseErrors(t *testing.T) {
	cfg := testConfig(t)

	t.Run("missing files key", func(t *testing.T) {
		_, err := Parse([]byte("other: 1"), cfg)
		assert.Error(t, err)
	})

	t.Run("file without path", func(t *testing.T) {
		_, err := Parse([]byte("files:\n  - overwrite: true"), cfg)
		assert.Error(t, err)
	})

	t.Run("tool with name and cmd", func(t *testing.T) {
		_, err := Parse([]byte(`
files:
  - path: a
    tool:
      name: regripper
      cmd: rip.pl
`), cfg)
		assert.Error(t, err)
	})

	t.Run("tool with neither name nor cmd", func(t *testing.T) {
		_, err := Parse([]byte(`
files:
  - path: a
    tool:
      filter: "*"
`), cfg)
		assert.Error(t, err)
	})

	t.Run("output without path", func(t *testing.T) {
		_, err := Parse([]byte(`
files:
  - path: a
    tool:
      cmd: echo
      output:
        append: true
`), cfg)
		assert.Error(t, err)
	})
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"Windows\\System32\\config\\SYSTEM": "Windows/System32/config/SYSTEM",
		"C:\\Users\\Alice\\":                "Users/Alice",
		"c:/pagefile.sys":                   "pagefile.sys",
		"/etc/passwd":                       "etc/passwd",
		"Users/Alice":                       "Users/Alice",
		"":                                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePath(in), "path %q", in)
	}
}

func TestSort(t *testing.T) {
	cfg := testConfig(t)

	t.Run("requires ordering", func(t *testing.T) {
		fl, err := Parse([]byte(`
files:
  - path: Users/*/NTUSER.DAT
    tool:
      cmd: echo $FILE
      requires:
        - Windows/System32/config/SYSTEM
  - path: pagefile.sys
  - path: Windows/System32/config/SYSTEM
`), cfg)
		require.NoError(t, err)

		paths := make([]string, len(fl.Files))
		for i, f := range fl.Files {
			paths[i] = f.Path
		}
		// SYSTEM moves before its dependent; pagefile.sys keeps its spot.
		assert.Equal(t, []string{
			"pagefile.sys",
			"Windows/System32/config/SYSTEM",
			"Users/*/NTUSER.DAT",
		}, paths)
	})

	t.Run("order is deterministic", func(t *testing.T) {
		doc := []byte(`
files:
  - path: c
    tool:
      cmd: echo
      requires: [a]
  - path: b
  - path: a
`)
		first, err := Parse(doc, cfg)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := Parse(doc, cfg)
			require.NoError(t, err)
			for j := range first.Files {
				assert.Equal(t, first.Files[j].Path, again.Files[j].Path)
			}
		}
	})

	t.Run("self requirement is ignored", func(t *testing.T) {
		fl, err := Parse([]byte(`
files:
  - path: a
    tool:
      cmd: echo
      requires: [a]
`), cfg)
		require.NoError(t, err)
		assert.Len(t, fl.Files, 1)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := Parse([]byte(`
files:
  - path: a
    tool:
      cmd: echo
      requires: [missing]
`), cfg)
		var unknown *UnknownDependencyError
		assert.ErrorAs(t, err, &unknown)
	})

	t.Run("dependency cycle", func(t *testing.T) {
		_, err := Parse([]byte(`
files:
  - path: a
    tool:
      cmd: echo
      requires: [b]
  - path: b
    tool:
      cmd: echo
      requires: [a]
`), cfg)
		assert.Error(t, err)
	})

	t.Run("requires paths are normalized", func(t *testing.T) {
		fl, err := Parse([]byte(`
files:
  - path: a
    tool:
      cmd: echo
      requires: ["C:\\b\\"]
  - path: b
`), cfg)
		require.NoError(t, err)
		assert.Equal(t, "b", fl.Files[0].Path)
	})
}

func TestExtendAndMerge(t *testing.T) {
	cfg := testConfig(t)

	t.Run("extend paths normalizes", func(t *testing.T) {
		fl := New(cfg)
		require.NoError(t, fl.ExtendPaths([]string{"C:\\Users\\Alice\\", "pagefile.sys"}))
		assert.True(t, fl.Contains("Users/Alice"))
		assert.True(t, fl.Contains("pagefile.sys"))
	})

	t.Run("merge keeps both lists", func(t *testing.T) {
		a, err := Parse([]byte("files: [one]"), cfg)
		require.NoError(t, err)
		b, err := Parse([]byte("files: [two]"), cfg)
		require.NoError(t, err)

		merged, err := a.Merge(b)
		require.NoError(t, err)
		assert.True(t, merged.Contains("one"))
		assert.True(t, merged.Contains("two"))
	})

	t.Run("merge rejects different configs", func(t *testing.T) {
		a := New(cfg)
		other, err := config.Parse([]byte("tools: []"))
		require.NoError(t, err)
		b := New(other)

		_, err = a.Merge(b)
		var mismatch *ConfigMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})
}
