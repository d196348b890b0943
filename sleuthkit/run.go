package sleuthkit

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// RequiredTools are the TSK programs this package shells out to.
var RequiredTools = []string{"mmls", "fls", "icat"}

var tskPath string

// SetTSKPath sets the directory the TSK tools are looked up in. An empty
// path means the tools are searched in PATH.
func SetTSKPath(dir string) {
	tskPath = dir
}

func toolPath(name string) string {
	if tskPath == "" {
		return name
	}
	return filepath.Join(tskPath, name)
}

// CheckRequiredTools verifies that every required TSK program can be found.
func CheckRequiredTools() error {
	for _, name := range RequiredTools {
		if _, err := exec.LookPath(toolPath(name)); err != nil {
			return fmt.Errorf("required tool not found: %w", err)
		}
	}
	return nil
}

// runOutput invokes one TSK program and returns its standard output.
// Replaced in tests to feed canned listings.
var runOutput = func(name string, args ...string) ([]byte, error) {
	log.Debugf("Running %s %s", name, strings.Join(args, " "))
	out, err := exec.Command(toolPath(name), args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(exitErr.Stderr))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
