// Command forensics-project analyzes disk images with The Sleuth Kit:
// it discovers partitions, resolves file patterns inside them, extracts
// the matches, and runs a configurable pipeline of post-processing tools
// on each extracted artifact.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/disk"
	log "github.com/sirupsen/logrus"

	"github.com/MaT-PT/forensics-project/config"
	"github.com/MaT-PT/forensics-project/filelist"
	"github.com/MaT-PT/forensics-project/sleuthkit"
)

func main() {
	args := parseArgs()
	initLogging(args.verbose, args.silent)

	if args.tskPath != "" {
		sleuthkit.SetTSKPath(args.tskPath)
	}
	if err := sleuthkit.CheckRequiredTools(); err != nil {
		log.Fatal(err)
	}

	table, err := sleuthkit.Mmls(args.images, sleuthkit.MmlsOptions{
		VsType:     sleuthkit.PartTableType(args.vsType),
		ImgType:    sleuthkit.ImgType(args.imgType),
		SectorSize: args.sectorSize,
		Offset:     args.offset,
	})
	if err != nil {
		log.Fatal(err)
	}

	fl, err := buildFileList(args)
	if err != nil {
		log.Fatal(err)
	}

	// Bare -list with no targets: show the partition table and stop.
	if args.list && len(fl.Files) == 0 {
		out, err := formatPartitionTable(table, args.format)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(out)
		return
	}
	if len(fl.Files) == 0 {
		log.Warn("Nothing to do (no file, file list or -save-all given)")
		out, err := formatPartitionTable(table, args.format)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(out)
		return
	}

	partitions, err := selectPartitions(table, args)
	if err != nil {
		log.Fatal(err)
	}
	if len(partitions) == 0 {
		log.Fatal("No suitable partition found")
	}

	if !args.list {
		checkFreeSpace(args.outDir, partitions)
	}

	runner := filelist.NewRunner(fl.Config, args.silent)
	for _, part := range partitions {
		if err := processPartition(part, fl, runner, args); err != nil {
			log.Fatal(err)
		}
	}
}

// buildFileList assembles the target list from -file-list documents and
// bare -file patterns. All lists must reference the same tool config.
func buildFileList(args *arguments) (*filelist.FileList, error) {
	cfg := &config.Config{}
	if args.configPath != "" {
		var err error
		cfg, err = config.Load(args.configPath)
		if err != nil {
			return nil, err
		}
	}

	fl := filelist.New(cfg)
	for _, path := range args.fileLists {
		other, err := filelist.Load(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("loading file list %q: %w", path, err)
		}
		if fl, err = fl.Merge(other); err != nil {
			return nil, err
		}
	}
	if err := fl.ExtendPaths(args.files); err != nil {
		return nil, err
	}
	if args.saveAll {
		if err := fl.ExtendPaths([]string{"*"}); err != nil {
			return nil, err
		}
	}
	return fl, nil
}

// selectPartitions picks the partitions to process: the explicitly
// requested slots, an interactive choice, or every partition probing as
// NTFS (falling back to all filesystem partitions when none does).
func selectPartitions(table *sleuthkit.PartitionTable, args *arguments) ([]*sleuthkit.Partition, error) {
	if len(args.partNums) > 0 {
		var parts []*sleuthkit.Partition
		for _, num := range args.partNums {
			found := false
			for _, p := range table.FilesystemPartitions() {
				if p.PartitionNumber() == num {
					parts = append(parts, p)
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("no filesystem partition with slot %d", num)
			}
		}
		return parts, nil
	}

	if args.askPart {
		return askPartitions(table)
	}

	fsParts := table.FilesystemPartitions()
	var ntfs []*sleuthkit.Partition
	for _, p := range fsParts {
		if p.IsNTFS() {
			ntfs = append(ntfs, p)
		}
	}
	if len(ntfs) > 0 {
		return ntfs, nil
	}
	log.Debug("No partition probed as NTFS, using all filesystem partitions")
	return fsParts, nil
}

// askPartitions lists the data partitions and prompts for slot numbers.
func askPartitions(table *sleuthkit.PartitionTable) ([]*sleuthkit.Partition, error) {
	fmt.Println("    " + sleuthkit.PartListHeader())
	for _, p := range table.FilesystemPartitions() {
		fmt.Println("  * " + p.String())
	}
	fmt.Print("Partition slot(s) to use (comma-separated): ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading partition choice: %w", err)
	}

	var parts []*sleuthkit.Partition
	for _, s := range strings.Split(strings.TrimSpace(line), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		num, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid partition slot %q", s)
		}
		found := false
		for _, p := range table.FilesystemPartitions() {
			if p.PartitionNumber() == num {
				parts = append(parts, p)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no filesystem partition with slot %d", num)
		}
	}
	return parts, nil
}

// checkFreeSpace warns when the output filesystem looks too small for the
// selected partitions. Best effort: stat failures only log a debug line.
func checkFreeSpace(outDir string, partitions []*sleuthkit.Partition) {
	usage, err := disk.Usage(outDir)
	if err != nil {
		// The directory may not exist yet; try its parent.
		usage, err = disk.Usage(filepath.Dir(outDir))
		if err != nil {
			log.Debugf("Could not check free space for %q: %v", outDir, err)
			return
		}
	}
	var total uint64
	for _, p := range partitions {
		total += p.LengthBytes()
	}
	log.Infof("Output directory has %s free (selected partitions hold up to %s)",
		sleuthkit.PrettySize(usage.Free), sleuthkit.PrettySize(total))
	if usage.Free < total {
		log.Warnf("Output directory may run out of space: %s free for up to %s of partition data",
			sleuthkit.PrettySize(usage.Free), sleuthkit.PrettySize(total))
	}
}

// processPartition runs one full pass over a partition: resolve every
// target pattern, materialize (or list) the matches, and run their
// pipeline steps. The run-once table is reset first, since run-once is
// scoped to a single partition pass.
func processPartition(part *sleuthkit.Partition, fl *filelist.FileList, runner *filelist.Runner, args *arguments) error {
	log.Infof("Processing partition %s", part.ShortDesc())
	runner.Reset()

	root, err := part.RootEntries(args.caseSensitive)
	if err != nil {
		return err
	}

	var listed sleuthkit.FsEntryList
	for _, file := range fl.Files {
		matches, err := root.FindPaths(file.Path)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			log.Warnf("No entry matched %q in partition %d", file.Path, part.ID)
			continue
		}
		for _, entry := range matches {
			if args.list {
				listed = append(listed, entry)
				continue
			}
			savedPath, err := saveEntry(entry, args.outDir, file.Overwrite)
			if err != nil {
				return err
			}
			for _, tool := range file.Tools {
				status, err := runner.Run(tool, filelist.RunTarget{
					FilePath:  savedPath,
					OutDir:    args.outDir,
					EntryPath: entry.Path(),
					ExtraArgs: args.toolArgs,
				})
				if err != nil {
					var execErr *filelist.ToolExecutionError
					if errors.As(err, &execErr) {
						return fmt.Errorf("%s: %w", tool, err)
					}
					return err
				}
				log.Debugf("%s: %s", tool, status)
			}
		}
	}

	if args.list && len(listed) > 0 {
		out, err := formatEntries(listed, args.format)
		if err != nil {
			return err
		}
		fmt.Println(out)
	}
	return nil
}

// saveEntry materializes one resolved entry under outDir, mirroring its
// path inside the source filesystem.
func saveEntry(entry *sleuthkit.FsEntry, outDir string, overwrite bool) (string, error) {
	dest := filepath.Join(outDir, filepath.FromSlash(entry.Path()))
	if entry.IsDirectory() {
		path, nbFiles, nbDirs, err := entry.SaveDir(dest)
		if err != nil {
			return path, err
		}
		log.Infof("Saved %d file(s) and %d director(y/ies) to %q", nbFiles, nbDirs, path)
		return path, nil
	}
	if !overwrite {
		if _, err := os.Stat(dest); err == nil {
			log.Infof("File %q already exists, skipping extraction (overwrite disabled)", dest)
			return dest, nil
		}
	}
	path, _, err := entry.SaveFile(dest, "")
	return path, err
}
