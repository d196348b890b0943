// Package filelist models the list of extraction targets and the
// post-processing pipeline attached to them. Targets are kept in an order
// consistent with every step's 'requires' declarations.
package filelist

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MaT-PT/forensics-project/config"
)

// Output describes where a pipeline step's standard output goes. A plain
// scalar in the document is the output path.
type Output struct {
	Path   string
	Append bool
	Stderr bool
}

func (o *Output) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&o.Path)
	}
	var raw struct {
		Path   string `yaml:"path"`
		Append bool   `yaml:"append"`
		Stderr bool   `yaml:"stderr"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Path == "" {
		return fmt.Errorf("missing 'path' key in output")
	}
	o.Path, o.Append, o.Stderr = raw.Path, raw.Append, raw.Stderr
	return nil
}

// Tool is one pipeline step attached to a target: either a reference by
// name into the tool configuration, or an inline command — exactly one of
// the two, enforced at decode time.
type Tool struct {
	Name      string
	Cmd       string
	Extra     map[string]string
	Filter    string
	Output    *Output
	Requires  []string
	AllowFail *bool
	RunOnce   bool

	file *File
}

func (t *Tool) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&t.Cmd)
	}
	var raw struct {
		Name      string         `yaml:"name"`
		Cmd       string         `yaml:"cmd"`
		Extra     map[string]any `yaml:"extra"`
		Filter    string         `yaml:"filter"`
		Output    *Output        `yaml:"output"`
		Requires  []string       `yaml:"requires"`
		AllowFail *bool          `yaml:"allow_fail"`
		RunOnce   bool           `yaml:"run_once"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("invalid tool configuration (must be a string or a mapping): %w", err)
	}
	if (raw.Name == "") == (raw.Cmd == "") {
		return fmt.Errorf("must specify either 'name' or 'cmd' key, but not both")
	}
	t.Name = raw.Name
	t.Cmd = raw.Cmd
	if raw.Extra != nil {
		t.Extra = make(map[string]string, len(raw.Extra))
		for k, v := range raw.Extra {
			t.Extra[k] = fmt.Sprint(v)
		}
	}
	t.Filter = raw.Filter
	t.Output = raw.Output
	for _, req := range raw.Requires {
		t.Requires = append(t.Requires, NormalizePath(req))
	}
	t.AllowFail = raw.AllowFail
	t.RunOnce = raw.RunOnce
	return nil
}

// File returns the target the step is attached to.
func (t *Tool) File() *File {
	return t.file
}

func (t *Tool) String() string {
	var s string
	if t.Name != "" {
		s = fmt.Sprintf("tool %q", t.Name)
	} else {
		s = fmt.Sprintf("command %q", t.Cmd)
	}
	if t.file != nil {
		s += fmt.Sprintf(" [file: %q]", t.file.Path)
	}
	return s
}

// File is one extraction target: a normalized path or glob pattern inside
// the source filesystem, with its pipeline steps.
type File struct {
	Path      string
	Tools     []*Tool
	Overwrite bool
}

func (f *File) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var path string
		if err := node.Decode(&path); err != nil {
			return err
		}
		f.Path = NormalizePath(path)
		return nil
	}
	var raw struct {
		Path      string  `yaml:"path"`
		Overwrite bool    `yaml:"overwrite"`
		Tool      *Tool   `yaml:"tool"`
		Tools     []*Tool `yaml:"tools"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Path == "" {
		return fmt.Errorf("missing 'path' key in file entry")
	}
	f.Path = NormalizePath(raw.Path)
	f.Overwrite = raw.Overwrite
	if raw.Tool != nil {
		f.Tools = append(f.Tools, raw.Tool)
	}
	f.Tools = append(f.Tools, raw.Tools...)
	for _, tool := range f.Tools {
		tool.file = f
	}
	return nil
}

// NormalizePath converts backslashes to slashes, strips a leading drive
// letter, and trims surrounding slashes.
func NormalizePath(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	if len(p) >= 2 && p[1] == ':' &&
		(p[0] >= 'A' && p[0] <= 'Z' || p[0] >= 'a' && p[0] <= 'z') {
		p = p[2:]
	}
	return strings.Trim(p, "/")
}

// FileList is the ordered list of extraction targets together with the
// tool configuration their steps reference. The order is always consistent
// with the steps' 'requires' declarations.
type FileList struct {
	Files  []*File
	Config *config.Config
}

// New returns an empty file list bound to a configuration.
func New(cfg *config.Config) *FileList {
	return &FileList{Config: cfg}
}

// Parse decodes a target-list document and sorts it.
func Parse(data []byte, cfg *config.Config) (*FileList, error) {
	var doc struct {
		Files []*File `yaml:"files"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing file list: %w", err)
	}
	if doc.Files == nil {
		return nil, fmt.Errorf("missing 'files' key")
	}
	fl := &FileList{Files: doc.Files, Config: cfg}
	if err := fl.sort(); err != nil {
		return nil, err
	}
	return fl, nil
}

// Load reads and parses a target-list document from a file.
func Load(path string, cfg *config.Config) (*FileList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, cfg)
}

// Contains reports whether a target with the given normalized path is in
// the list.
func (fl *FileList) Contains(path string) bool {
	for _, f := range fl.Files {
		if f.Path == path {
			return true
		}
	}
	return false
}

// Append adds one target and re-sorts.
func (fl *FileList) Append(f *File) error {
	fl.Files = append(fl.Files, f)
	return fl.sort()
}

// Extend adds several targets and re-sorts.
func (fl *FileList) Extend(files []*File) error {
	fl.Files = append(fl.Files, files...)
	return fl.sort()
}

// ExtendPaths adds bare path targets (no pipeline steps) and re-sorts.
func (fl *FileList) ExtendPaths(paths []string) error {
	for _, p := range paths {
		fl.Files = append(fl.Files, &File{Path: NormalizePath(p)})
	}
	return fl.sort()
}

// Merge combines two file lists built against the same configuration.
func (fl *FileList) Merge(other *FileList) (*FileList, error) {
	if !reflect.DeepEqual(fl.Config, other.Config) {
		return nil, &ConfigMismatchError{}
	}
	merged := &FileList{
		Files:  append(append([]*File{}, fl.Files...), other.Files...),
		Config: fl.Config,
	}
	if err := merged.sort(); err != nil {
		return nil, err
	}
	return merged, nil
}

// sort orders the targets so that every path required by a step appears
// before the requiring target. Ties are broken by insertion order: a Kahn
// pass seeded and drained in insertion order yields one valid topological
// order, and a stable sort by rank in that order keeps everything else
// where it was. A 'requires' naming an absent path is fatal here, before
// anything is extracted or executed.
func (fl *FileList) sort() error {
	nodes := make([]string, 0, len(fl.Files))
	indegree := make(map[string]int, len(fl.Files))
	dependents := make(map[string][]string, len(fl.Files))
	for _, f := range fl.Files {
		if _, seen := indegree[f.Path]; !seen {
			nodes = append(nodes, f.Path)
			indegree[f.Path] = 0
		}
	}
	for _, f := range fl.Files {
		for _, tool := range f.Tools {
			for _, req := range tool.Requires {
				if _, ok := indegree[req]; !ok {
					return &UnknownDependencyError{Tool: tool.String(), Required: req}
				}
				if req == f.Path {
					continue
				}
				dependents[req] = append(dependents[req], f.Path)
				indegree[f.Path]++
			}
		}
	}

	var queue, order []string
	for _, path := range nodes {
		if indegree[path] == 0 {
			queue = append(queue, path)
		}
	}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		order = append(order, path)
		for _, dep := range dependents[path] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if len(order) != len(nodes) {
		return fmt.Errorf("dependency cycle in file list")
	}

	rank := make(map[string]int, len(order))
	for i, path := range order {
		rank[path] = i
	}
	sort.SliceStable(fl.Files, func(i, j int) bool {
		return rank[fl.Files[i].Path] < rank[fl.Files[j].Path]
	})
	return nil
}
