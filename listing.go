package main

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/MaT-PT/forensics-project/sleuthkit"
)

// Listing records mirror what the plain output shows, in a shape that
// serializes cleanly to JSON and YAML.

type partitionRecord struct {
	ID          int    `json:"id" yaml:"id"`
	Slot        string `json:"slot" yaml:"slot"`
	Start       uint64 `json:"start" yaml:"start"`
	End         uint64 `json:"end" yaml:"end"`
	Length      uint64 `json:"length" yaml:"length"`
	LengthBytes uint64 `json:"length_bytes" yaml:"length_bytes"`
	Description string `json:"description" yaml:"description"`
}

type partitionTableRecord struct {
	Type       string            `json:"type" yaml:"type"`
	Offset     uint64            `json:"offset" yaml:"offset"`
	SectorSize uint64            `json:"sector_size" yaml:"sector_size"`
	Partitions []partitionRecord `json:"partitions" yaml:"partitions"`
}

type entryRecord struct {
	Path         string `json:"path" yaml:"path"`
	Name         string `json:"name" yaml:"name"`
	Address      string `json:"address" yaml:"address"`
	TypeFilename string `json:"type_filename" yaml:"type_filename"`
	TypeMetadata string `json:"type_metadata" yaml:"type_metadata"`
	Deleted      bool   `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Reallocated  bool   `json:"reallocated,omitempty" yaml:"reallocated,omitempty"`
}

func marshalListing(v any, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		return string(data), err
	case "yaml":
		data, err := yaml.Marshal(v)
		return string(data), err
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

// formatPartitionTable renders an mmls scan in the requested format.
func formatPartitionTable(t *sleuthkit.PartitionTable, format string) (string, error) {
	if format == "plain" {
		return t.String(), nil
	}
	rec := partitionTableRecord{
		Type:       string(t.Type),
		Offset:     uint64(t.Offset),
		SectorSize: t.SectorSize,
	}
	for _, p := range t.Partitions {
		rec.Partitions = append(rec.Partitions, partitionRecord{
			ID:          p.ID,
			Slot:        p.Slot,
			Start:       uint64(p.Start),
			End:         uint64(p.End),
			Length:      uint64(p.Length),
			LengthBytes: p.LengthBytes(),
			Description: p.Description,
		})
	}
	return marshalListing(rec, format)
}

// formatEntries renders matched filesystem entries in the requested format.
func formatEntries(entries sleuthkit.FsEntryList, format string) (string, error) {
	if format == "plain" {
		return entries.String(), nil
	}
	records := make([]entryRecord, len(entries))
	for i, e := range entries {
		records[i] = entryRecord{
			Path:         e.Path(),
			Name:         e.Name,
			Address:      e.Meta.Address,
			TypeFilename: string(byte(e.TypeFilename)),
			TypeMetadata: string(byte(e.TypeMetadata)),
			Deleted:      e.Deleted,
			Reallocated:  e.Reallocated,
		}
	}
	return marshalListing(records, format)
}
