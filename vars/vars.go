// Package vars implements the small templating language used by command
// lines and output paths: $VAR substitution from a dictionary, and
// ${FUNC:arg1,arg2,...} function calls.
package vars

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// maxIterations caps the $VAR fixed-point loop, since variable values may
// themselves contain variable references. Reaching the cap is a diagnostic,
// not an error: the partially substituted string is used as-is.
const maxIterations = 10

// Func is a function callable from a ${FUNC:args} template expression.
type Func func(args []string) string

var functions = map[string]Func{
	// PATH normalizes a slash-separated path for the running platform.
	"PATH": func(args []string) string {
		if len(args) == 0 {
			return ""
		}
		return filepath.Clean(filepath.FromSlash(args[0]))
	},
	// REPLACE performs a literal substring replacement.
	"REPLACE": func(args []string) string {
		if len(args) < 3 {
			log.Warnf("REPLACE expects 3 arguments, got %d", len(args))
			if len(args) == 0 {
				return ""
			}
			return args[0]
		}
		return strings.ReplaceAll(args[0], args[1], args[2])
	},
}

// Sub expands a template string against the variable dictionary: $VAR
// tokens first (until stable), then ${FUNC:...} calls. TIME and DATE are
// injected when the caller did not provide them. The input dictionary is
// not modified.
func Sub(s string, dict map[string]string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	d := make(map[string]string, len(dict)+2)
	for k, v := range dict {
		d[k] = v
	}
	now := time.Now()
	if _, ok := d["TIME"]; !ok {
		d["TIME"] = now.Format("15.04.05")
	}
	if _, ok := d["DATE"]; !ok {
		d["DATE"] = now.Format("2006-01-02")
	}
	return subFuncs(subLoop(s, d))
}

// subLoop replaces every $VAR occurrence, iterating until a fixed point or
// the iteration cap. Keys are case-folded to upper case; longer names are
// substituted first so that $FILENAME is never clobbered by $FILE.
func subLoop(s string, dict map[string]string) string {
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, strings.ToUpper(strings.TrimPrefix(k, "$")))
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	upper := make(map[string]string, len(dict))
	for k, v := range dict {
		upper[strings.ToUpper(strings.TrimPrefix(k, "$"))] = v
	}

	for i := 0; i < maxIterations; i++ {
		out := s
		for _, key := range keys {
			out = strings.ReplaceAll(out, "$"+key, upper[key])
		}
		if out == s {
			return out
		}
		s = out
	}
	log.Warnf("Max number of iterations reached while substituting variables in: %s", s)
	return s
}

// subFuncs evaluates ${FUNC:args} calls, scanning for the rightmost call
// first so nested calls resolve inner-to-outer. Unknown or malformed calls
// are diagnostics: the text is left in place and scanning continues to the
// left.
func subFuncs(s string) string {
	bound := len(s)
	for {
		start := strings.LastIndex(s[:bound], "${")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			log.Warnf("Unterminated function call: %s", s[start:])
			bound = start
			continue
		}
		end += start
		body := s[start+2 : end]
		name, argsStr, ok := strings.Cut(body, ":")
		if !ok {
			log.Warnf("Invalid function syntax: %s", body)
			bound = start
			continue
		}
		fn, ok := functions[strings.ToUpper(name)]
		if !ok {
			log.Warnf("Unknown function: %s", name)
			bound = start
			continue
		}
		s = s[:start] + fn(strings.Split(argsStr, ",")) + s[end+1:]
		bound = len(s)
	}
}

// Username derives a user name from an entry path, when the path starts
// with a recognized user-home prefix. Returns "" otherwise.
func Username(entryPath string) string {
	p := strings.Trim(strings.ReplaceAll(entryPath, "\\", "/"), "/")
	if p == "" {
		return ""
	}
	parts := strings.Split(p, "/")
	switch {
	case strings.EqualFold(parts[0], "root"):
		return "root"
	case len(parts) > 1 && (strings.EqualFold(parts[0], "Users") || strings.EqualFold(parts[0], "home")):
		return parts[1]
	case len(parts) > 2 && strings.EqualFold(parts[0], "Windows") && strings.EqualFold(parts[1], "ServiceProfiles"):
		return parts[2]
	}
	return ""
}
