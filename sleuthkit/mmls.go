package sleuthkit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	rePartition  = regexp.MustCompile(`^\s*(\d+):\s*(\S+)\s+(\d+)\s+(\d+)\s+(\d+)\s+(.+)$`)
	reOffset     = regexp.MustCompile(`^\s*Offset Sector: (\d+)\s*$`)
	reSectorSize = regexp.MustCompile(`^\s*Units are in (\d+)-byte sectors\s*$`)
)

// Partition is one row of an mmls listing.
type Partition struct {
	ID          int
	Slot        string
	Start       Sectors
	End         Sectors
	Length      Sectors
	Description string
	Table       *PartitionTable

	children map[childKey]FsEntryList
}

// parsePartition creates a Partition from one mmls output row.
func parsePartition(line string, table *PartitionTable) (*Partition, error) {
	m := rePartition.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("invalid partition string: %q", line)
	}
	id, _ := strconv.Atoi(m[1])
	start, _ := strconv.ParseUint(m[3], 10, 64)
	end, _ := strconv.ParseUint(m[4], 10, 64)
	length, _ := strconv.ParseUint(m[5], 10, 64)
	return &Partition{
		ID:          id,
		Slot:        m[2],
		Start:       Sectors(start),
		End:         Sectors(end),
		Length:      Sectors(length),
		Description: m[6],
		Table:       table,
	}, nil
}

func (p *Partition) StartBytes() uint64  { return p.Table.SectorsToBytes(p.Start) }
func (p *Partition) EndBytes() uint64    { return p.Table.SectorsToBytes(p.End) }
func (p *Partition) LengthBytes() uint64 { return p.Table.SectorsToBytes(p.Length) }

// IsFilesystem reports whether the partition holds a filesystem, which mmls
// indicates with a numeric slot.
func (p *Partition) IsFilesystem() bool {
	return isDecimal(p.Slot)
}

// PartitionNumber returns the numeric slot, or -1 for non-filesystem rows.
func (p *Partition) PartitionNumber() int {
	if !p.IsFilesystem() {
		return -1
	}
	n, _ := strconv.Atoi(p.Slot)
	return n
}

// IsNTFS probes the partition root for a $MFT entry. Best effort: any
// listing failure means "not NTFS", never a fatal error.
func (p *Partition) IsNTFS() bool {
	root, err := p.RootEntries(false)
	if err != nil {
		log.Debugf("NTFS probe failed for partition %d: %v", p.ID, err)
		return false
	}
	return root.Contains("$MFT")
}

// RootEntries lists the top-level entries of the partition.
func (p *Partition) RootEntries(caseSensitive bool) (FsEntryList, error) {
	return p.listEntries(nil, caseSensitive)
}

func (p *Partition) ShortDesc() string {
	return fmt.Sprintf("%s (ID %d, %d bytes)", p.Description, p.ID, p.LengthBytes())
}

func (p *Partition) String() string {
	return fmt.Sprintf("%03d: %-7s  %11d (%5s)  %11d (%5s)  %11d (%5s)  %s",
		p.ID, p.Slot,
		p.Start, PrettySize(p.StartBytes()),
		p.End, PrettySize(p.EndBytes()),
		p.Length, PrettySize(p.LengthBytes()),
		p.Description)
}

// PartitionTable is the outcome of an mmls scan: the partition rows plus
// the table geometry they are expressed in.
type PartitionTable struct {
	ImageFiles []string
	Type       PartTableType
	Partitions []*Partition
	Offset     Sectors
	SectorSize uint64
	ImgType    ImgType
}

// ParsePartitionTable parses raw mmls output. The three header lines (type
// description, offset sector, sector size) are mandatory; partition rows
// that do not match the expected format are skipped with a diagnostic.
func ParsePartitionTable(out string, imageFiles []string, imgType ImgType) (*PartitionTable, error) {
	lines := strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("truncated mmls output")
	}
	tableType := PartTableTypeFromDesc(lines[0])
	m := reOffset.FindStringSubmatch(lines[1])
	if m == nil {
		return nil, fmt.Errorf("could not find partition table offset")
	}
	offset, _ := strconv.ParseUint(m[1], 10, 64)
	m = reSectorSize.FindStringSubmatch(lines[2])
	if m == nil {
		return nil, fmt.Errorf("could not find sector size")
	}
	sectorSize, _ := strconv.ParseUint(m[1], 10, 64)

	table := &PartitionTable{
		ImageFiles: imageFiles,
		Type:       tableType,
		Offset:     Sectors(offset),
		SectorSize: sectorSize,
		ImgType:    imgType,
	}
	for _, line := range lines[3:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		part, err := parsePartition(line, table)
		if err != nil {
			log.Debugf("Skipped line: %v", err)
			continue
		}
		table.Partitions = append(table.Partitions, part)
	}
	return table, nil
}

func (t *PartitionTable) SectorsToBytes(s Sectors) uint64 {
	return uint64(s) * t.SectorSize
}

func (t *PartitionTable) OffsetBytes() uint64 {
	return t.SectorsToBytes(t.Offset)
}

// FilesystemPartitions returns the partitions holding a filesystem.
func (t *PartitionTable) FilesystemPartitions() []*Partition {
	var parts []*Partition
	for _, p := range t.Partitions {
		if p.IsFilesystem() {
			parts = append(parts, p)
		}
	}
	return parts
}

// PartListHeader is the column header matching Partition.String.
func PartListHeader() string {
	return "ID : Slot     Start       (bytes)  End         (bytes)  " +
		"Length      (bytes)  Description"
}

func (t *PartitionTable) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "* Type: %s [%s]\n", t.Type, string(t.Type))
	fmt.Fprintf(&b, "* Offset: %d (%d B)\n", t.Offset, t.OffsetBytes())
	fmt.Fprintf(&b, "* Sector size: %d B\n", t.SectorSize)
	b.WriteString("* Partitions:\n")
	b.WriteString("    " + PartListHeader())
	for _, p := range t.Partitions {
		b.WriteString("\n  * " + p.String())
	}
	return b.String()
}

// MmlsOptions are the optional mmls arguments. A negative Offset and zero
// SectorSize mean "let mmls decide".
type MmlsOptions struct {
	VsType     PartTableType
	ImgType    ImgType
	SectorSize int
	Offset     int
}

// Mmls scans the partition table of an image by running mmls.
func Mmls(imageFiles []string, opts MmlsOptions) (*PartitionTable, error) {
	var args []string
	if opts.VsType != "" {
		args = append(args, "-t", string(opts.VsType))
	}
	if opts.ImgType != "" {
		args = append(args, "-i", string(opts.ImgType))
	}
	if opts.SectorSize > 0 {
		args = append(args, "-b", strconv.Itoa(opts.SectorSize))
	}
	if opts.Offset >= 0 {
		args = append(args, "-o", strconv.Itoa(opts.Offset))
	}
	args = append(args, imageFiles...)

	out, err := runOutput("mmls", args...)
	if err != nil {
		return nil, err
	}
	return ParsePartitionTable(string(out), imageFiles, opts.ImgType)
}
