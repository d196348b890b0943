// Package sleuthkit models the records produced by The Sleuth Kit command
// line tools (mmls, fls, icat) and drives their invocation. It never parses
// on-disk filesystem structures itself.
package sleuthkit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Sectors is a quantity expressed in device sectors.
type Sectors uint64

// PartTableType is a volume-system type accepted by mmls -t.
type PartTableType string

const (
	PartTableDOS     PartTableType = "dos"
	PartTableMac     PartTableType = "mac"
	PartTableBSD     PartTableType = "bsd"
	PartTableSun     PartTableType = "sun"
	PartTableGPT     PartTableType = "gpt"
	PartTableUnknown PartTableType = "unknown"
)

// PartTableTypes maps the supported volume-system types to their
// descriptions, as printed by mmls.
var PartTableTypes = map[PartTableType]string{
	PartTableDOS: "DOS Partition Table",
	PartTableMac: "MAC Partition Map",
	PartTableBSD: "BSD Disk Label",
	PartTableSun: "Sun Volume Table of Contents (Solaris)",
	PartTableGPT: "GUID Partition Table (EFI)",
}

// PartTableTypeFromDesc maps an mmls header line back to its type.
// Unrecognized descriptions yield PartTableUnknown.
func PartTableTypeFromDesc(desc string) PartTableType {
	desc = strings.TrimSpace(desc)
	for t, d := range PartTableTypes {
		if d == desc {
			return t
		}
	}
	return PartTableUnknown
}

func (t PartTableType) String() string {
	if desc, ok := PartTableTypes[t]; ok {
		return desc
	}
	return "Unknown"
}

// ImgType is an image format accepted by the TSK tools with -i.
type ImgType string

// ImgTypes maps the supported image formats to their descriptions.
var ImgTypes = map[ImgType]string{
	"raw":    "Single or split raw file (dd)",
	"aff":    "Advanced Forensic Format",
	"afd":    "AFF Multiple File",
	"afm":    "AFF with external metadata",
	"afflib": "All AFFLIB image formats (including beta ones)",
	"ewf":    "Expert Witness Format (EnCase)",
	"vmdk":   "Virtual Machine Disk (VmWare, Virtual Box)",
	"vhd":    "Virtual Hard Drive (Microsoft)",
}

// FsEntryType is a single-character entry type code printed by fls, once
// for the filename record and once for the metadata record.
type FsEntryType byte

const (
	EntryUnknown          FsEntryType = '-'
	EntryRegular          FsEntryType = 'r'
	EntryDirectory        FsEntryType = 'd'
	EntryCharacter        FsEntryType = 'c'
	EntryBlock            FsEntryType = 'b'
	EntrySymlink          FsEntryType = 'l'
	EntryFIFO             FsEntryType = 'p'
	EntryShadow           FsEntryType = 's'
	EntrySocket           FsEntryType = 'h'
	EntryWhiteout         FsEntryType = 'w'
	EntryVirtualFile      FsEntryType = 'v'
	EntryVirtualDirectory FsEntryType = 'V'
)

// FsEntryTypes maps the fls type codes to their descriptions.
var FsEntryTypes = map[FsEntryType]string{
	EntryUnknown:          "Unknown type",
	EntryRegular:          "Regular file",
	EntryDirectory:        "Directory",
	EntryCharacter:        "Character device",
	EntryBlock:            "Block device",
	EntrySymlink:          "Symbolic link",
	EntryFIFO:             "Named FIFO",
	EntryShadow:           "Shadow",
	EntrySocket:           "Socket",
	EntryWhiteout:         "Whiteout",
	EntryVirtualFile:      "TSK Virtual file",
	EntryVirtualDirectory: "TSK Virtual directory",
}

func (t FsEntryType) String() string {
	if desc, ok := FsEntryTypes[t]; ok {
		return desc
	}
	return "Unknown"
}

var reNTFSAddress = regexp.MustCompile(`^\d+-\d+-\d+$`)

// MetaAddress is the identity token fls and icat use for an entry: a plain
// decimal inode number, or an NTFS "inode-type-sequence" triplet such as
// "1304-128-1".
type MetaAddress struct {
	Address string
}

// NewMetaAddress validates the token against the two accepted syntaxes.
func NewMetaAddress(s string) (MetaAddress, error) {
	if !isDecimal(s) && !reNTFSAddress.MatchString(s) {
		return MetaAddress{}, fmt.Errorf("invalid metadata address: %q", s)
	}
	return MetaAddress{Address: s}, nil
}

// IsNTFS reports whether the address uses the NTFS triplet syntax.
func (a MetaAddress) IsNTFS() bool {
	return !isDecimal(a.Address)
}

// Inode returns the leading inode number of the address.
func (a MetaAddress) Inode() uint64 {
	inode, _ := strconv.ParseUint(strings.SplitN(a.Address, "-", 2)[0], 10, 64)
	return inode
}

func (a MetaAddress) String() string {
	return a.Address
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

var sizeUnits = []string{"B", "K", "M", "G", "T", "P"}

// PrettySize renders a byte count with a single-letter unit suffix.
func PrettySize(size uint64) string {
	unit := sizeUnits[0]
	for _, unit = range sizeUnits {
		if size < 1024 {
			break
		}
		size /= 1024
	}
	return fmt.Sprintf("%d%s", size, unit)
}
