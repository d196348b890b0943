package sleuthkit

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// reEntry matches one fls output line:
// "<type>/<type> [* ]<address>[(realloc)]:\t<name>"
var reEntry = regexp.MustCompile(`^(.)/(.) (?:(\*) )?([^*]+?)(\(realloc\))?:\t(.+)$`)

// FsEntry is one file or directory record reported by fls. Entries are
// value objects: they are created from listing output and never mutated.
type FsEntry struct {
	Name         string
	Meta         MetaAddress
	TypeFilename FsEntryType
	TypeMetadata FsEntryType
	Partition    *Partition
	Deleted      bool
	Reallocated  bool
	Parent       *FsEntry
	CaseSensitive bool
}

// ParseFsEntry creates an FsEntry from one fls output line.
func ParseFsEntry(line string, partition *Partition, parent *FsEntry, caseSensitive bool) (*FsEntry, error) {
	m := reEntry.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("invalid fs entry string: %q", line)
	}
	meta, err := NewMetaAddress(m[4])
	if err != nil {
		return nil, err
	}
	return &FsEntry{
		Name:          m[6],
		Meta:          meta,
		TypeFilename:  FsEntryType(m[1][0]),
		TypeMetadata:  FsEntryType(m[2][0]),
		Partition:     partition,
		Deleted:       m[3] != "",
		Reallocated:   m[5] != "",
		Parent:        parent,
		CaseSensitive: caseSensitive,
	}, nil
}

// IsDirectory reports whether either type classification says directory.
// The two may disagree on deleted or reallocated entries.
func (e *FsEntry) IsDirectory() bool {
	return e.TypeFilename == EntryDirectory || e.TypeFilename == EntryVirtualDirectory ||
		e.TypeMetadata == EntryDirectory || e.TypeMetadata == EntryVirtualDirectory
}

// Path is the slash-separated path of the entry within its partition.
func (e *FsEntry) Path() string {
	if e.Parent != nil {
		return e.Parent.Path() + "/" + e.Name
	}
	return e.Name
}

// NameEq compares a name against the entry's, honoring its case rule.
func (e *FsEntry) NameEq(name string) bool {
	if e.CaseSensitive {
		return e.Name == name
	}
	return strings.EqualFold(e.Name, name)
}

// MatchPattern matches the entry name against a glob pattern, honoring the
// entry's case rule. A name without wildcards is an exact match.
func (e *FsEntry) MatchPattern(pattern string) (bool, error) {
	name := e.Name
	if !e.CaseSensitive {
		pattern = strings.ToLower(pattern)
		name = strings.ToLower(name)
	}
	ok, err := path.Match(pattern, name)
	if err != nil {
		return false, &PathError{Path: pattern, Reason: err.Error()}
	}
	return ok, nil
}

// Children lists the immediate children of a directory entry. Results are
// cached per (partition, directory address), so repeated glob expansions do
// not re-invoke fls.
func (e *FsEntry) Children() (FsEntryList, error) {
	if !e.IsDirectory() {
		return nil, &NotADirectoryError{Path: e.Path()}
	}
	return e.Partition.listEntries(e, e.CaseSensitive)
}

// Child returns the direct child with the given name.
func (e *FsEntry) Child(name string) (*FsEntry, error) {
	children, err := e.Children()
	if err != nil {
		return nil, err
	}
	return children.FindEntry(name)
}

// ChildPath walks a relative path below the entry, one exact component at
// a time.
func (e *FsEntry) ChildPath(p string) (*FsEntry, error) {
	children, err := e.Children()
	if err != nil {
		return nil, err
	}
	return children.FindPath(p)
}

// Extract recovers the raw content of a file entry through icat.
func (e *FsEntry) Extract() ([]byte, error) {
	if e.IsDirectory() {
		return nil, &IsADirectoryError{Path: e.Path()}
	}
	log.Infof("Extracting file '%s'", e.Path())
	return Icat(e.Partition, e.Meta)
}

// Save extracts the entry content and writes it to w, returning the number
// of bytes written.
func (e *FsEntry) Save(w io.Writer) (int, error) {
	data, err := e.Extract()
	if err != nil {
		return 0, err
	}
	return w.Write(data)
}

// SaveFile extracts the entry to the given file path (the entry name when
// empty), under basePath when given. Parent directories are created.
func (e *FsEntry) SaveFile(file string, basePath string) (string, int, error) {
	if file == "" {
		file = e.Name
	}
	if basePath != "" {
		file = filepath.Join(basePath, file)
	}
	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", 0, err
		}
	}
	out, err := os.Create(file)
	if err != nil {
		return "", 0, err
	}
	defer out.Close()
	log.Infof("Saving file '%s' to '%s'", e.Path(), file)
	n, err := e.Save(out)
	if err != nil {
		return file, n, err
	}
	log.Infof("Written %d bytes to '%s'", n, file)
	return file, n, nil
}

// SaveDir recursively extracts a directory entry into basePath (the entry
// name when empty), returning the target path and the number of files and
// directories written.
func (e *FsEntry) SaveDir(basePath string) (string, int, int, error) {
	if !e.IsDirectory() {
		return "", 0, 0, &NotADirectoryError{Path: e.Path()}
	}
	if basePath == "" {
		basePath = e.Name
	}
	log.Infof("Saving contents of '%s' to '%s'", e.Path(), basePath)
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return "", 0, 0, err
	}
	nbFiles, nbDirs := 0, 1
	children, err := e.Children()
	if err != nil {
		return basePath, nbFiles, nbDirs, err
	}
	for _, child := range children {
		if child.IsDirectory() {
			_, nf, nd, err := child.SaveDir(filepath.Join(basePath, child.Name))
			nbFiles += nf
			nbDirs += nd
			if err != nil {
				return basePath, nbFiles, nbDirs, err
			}
		} else {
			if _, _, err := child.SaveFile("", basePath); err != nil {
				return basePath, nbFiles, nbDirs, err
			}
			nbFiles++
		}
	}
	return basePath, nbFiles, nbDirs, nil
}

func (e *FsEntry) String() string {
	var attribs []string
	if e.Deleted {
		attribs = append(attribs, "deleted")
	}
	if e.Reallocated {
		attribs = append(attribs, "reallocated")
	}
	attribsStr := ""
	if len(attribs) > 0 {
		attribsStr = fmt.Sprintf(" (%s)", strings.Join(attribs, ", "))
	}
	return fmt.Sprintf("%c/%c %s: %s%s (%s)",
		byte(e.TypeFilename), byte(e.TypeMetadata), e.Meta, e.Name, attribsStr, e.Path())
}

// FsEntryList is an ordered collection of entries, as listed by fls.
type FsEntryList []*FsEntry

// FindEntry returns the first entry whose name matches exactly (under the
// entries' case rule).
func (l FsEntryList) FindEntry(name string) (*FsEntry, error) {
	for _, e := range l {
		if e.NameEq(name) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no entry found with name %q", name)
}

// FindPath walks a slash-separated relative path, one exact component at a
// time. Backslashes are accepted as separators.
func (l FsEntryList) FindPath(p string) (*FsEntry, error) {
	parts, err := splitPattern(p)
	if err != nil {
		return nil, err
	}
	current, err := l.FindEntry(parts[0])
	if err != nil {
		return nil, err
	}
	for _, part := range parts[1:] {
		current, err = current.Child(part)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

// Glob returns the entries whose names match the glob pattern, in list
// order.
func (l FsEntryList) Glob(pattern string) (FsEntryList, error) {
	var matches FsEntryList
	for _, e := range l {
		ok, err := e.MatchPattern(pattern)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// FindPaths resolves a slash-separated relative pattern, with glob
// wildcards allowed in any component, against the list. The tree is
// expanded one component at a time: every directory matched so far is
// listed, non-directories are dropped (they cannot have children), and the
// expanded frontier is filtered by the next component. An empty result is
// not an error.
func (l FsEntryList) FindPaths(pattern string) (FsEntryList, error) {
	parts, err := splitPattern(pattern)
	if err != nil {
		return nil, err
	}
	frontier, err := l.Glob(parts[0])
	if err != nil {
		return nil, err
	}
	for _, part := range parts[1:] {
		if len(frontier) == 0 {
			break
		}
		var next FsEntryList
		for _, e := range frontier {
			if !e.IsDirectory() {
				continue
			}
			children, err := e.Children()
			if err != nil {
				return nil, err
			}
			matches, err := children.Glob(part)
			if err != nil {
				return nil, err
			}
			next = append(next, matches...)
		}
		frontier = next
	}
	return frontier, nil
}

// Contains reports whether an entry with the name is in the list, under
// the entries' case rule.
func (l FsEntryList) Contains(name string) bool {
	for _, e := range l {
		if e.NameEq(name) {
			return true
		}
	}
	return false
}

func (l FsEntryList) String() string {
	strs := make([]string, len(l))
	for i, e := range l {
		strs[i] = e.String()
	}
	return strings.Join(strs, "\n")
}

// splitPattern normalizes a relative pattern into its components. Absolute
// patterns are rejected.
func splitPattern(pattern string) ([]string, error) {
	p := strings.ReplaceAll(pattern, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return nil, &PathError{Path: pattern, Reason: "path must be relative"}
	}
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return nil, &PathError{Path: pattern, Reason: "empty path"}
	}
	return parts, nil
}

// childKey identifies one cached listing. The case rule is part of the
// key: entries carry the rule they were listed under, so a case-insensitive
// probe must not serve a later case-sensitive lookup.
type childKey struct {
	addr          string
	caseSensitive bool
}

// listEntries runs fls for a directory (or the partition root when dir is
// nil) and parses its output. Malformed lines are skipped with a
// diagnostic; results are cached by directory address and case rule.
func (p *Partition) listEntries(dir *FsEntry, caseSensitive bool) (FsEntryList, error) {
	key := childKey{caseSensitive: caseSensitive}
	if dir != nil {
		key.addr = dir.Meta.Address
	}
	if cached, ok := p.children[key]; ok {
		return cached, nil
	}

	args := []string{"-o", strconv.FormatUint(uint64(p.Start), 10)}
	if p.Table.ImgType != "" {
		args = append(args, "-i", string(p.Table.ImgType))
	}
	args = append(args, p.Table.ImageFiles...)
	if dir != nil {
		args = append(args, dir.Meta.Address)
	}
	out, err := runOutput("fls", args...)
	if err != nil {
		return nil, err
	}

	entries := FsEntryList{}
	for _, line := range strings.Split(strings.ReplaceAll(string(out), "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := ParseFsEntry(line, p, dir, caseSensitive)
		if err != nil {
			log.Warnf("Skipping fls line: %v", err)
			continue
		}
		entries = append(entries, entry)
	}
	if p.children == nil {
		p.children = make(map[childKey]FsEntryList)
	}
	p.children[key] = entries
	return entries, nil
}
