package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"github.com/MaT-PT/forensics-project/sleuthkit"
)

// iniFileName is looked up in the working directory to seed flag defaults.
const iniFileName = "extract.ini"

type arguments struct {
	images        []string
	tskPath       string
	vsType        string
	imgType       string
	sectorSize    int
	offset        int
	partNums      []int
	askPart       bool
	list          bool
	saveAll       bool
	files         []string
	fileLists     []string
	outDir        string
	configPath    string
	caseSensitive bool
	toolArgs      string
	format        string
	silent        bool
	verbose       int
}

func loadIniDefaults() *ini.File {
	workDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("Error getting working directory: %v", err)
	}
	path := filepath.Join(workDir, iniFileName)
	cfg, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:      true,
		AllowBooleanKeys: true,
	}, path)
	if err != nil {
		if os.IsNotExist(err) {
			return ini.Empty()
		}
		log.Warnf("Could not load %s: %v", path, err)
		return ini.Empty()
	}
	log.Debugf("Loaded option defaults from %s", path)
	return cfg
}

func usageError(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	flag.Usage()
	os.Exit(2)
}

// printChoices handles the 'list' meta-value of the -vstype/-imgtype flags.
func printChoices[T ~string](name string, choices map[T]string) {
	fmt.Printf("Supported choices for %s:\n", name)
	for k, v := range choices {
		fmt.Printf("  %s: %s\n", k, v)
	}
	os.Exit(0)
}

func parseArgs() *arguments {
	section := loadIniDefaults().Section("")

	tskPath := flag.String("tsk-path",
		section.Key("tsk-path").MustString(""),
		"The directory where the TSK tools are installed (default: search in PATH)")
	vsType := flag.String("vstype",
		section.Key("vstype").MustString(""),
		"The type of volume system (use '-vstype list' to list supported types)")
	imgType := flag.String("imgtype",
		section.Key("imgtype").MustString(""),
		"The format of the image file (use '-imgtype list' to list supported types)")
	sectorSize := flag.Int("sector-size",
		section.Key("sector-size").MustInt(0),
		"The size (in bytes) of the device sectors")
	offset := flag.Int("offset",
		section.Key("offset").MustInt(-1),
		"Offset to the start of the volume that contains the partition system (in sectors)")
	partNums := flag.String("partitions",
		section.Key("partitions").MustString(""),
		"The partition number(s) (slots) to use, comma-separated (default: all NTFS partitions)")
	askPart := flag.Bool("ask-part",
		section.Key("ask-part").MustBool(false),
		"List data partitions and ask for which one(s) to use")
	list := flag.Bool("list",
		section.Key("list").MustBool(false),
		"If no file is specified, list all partitions; otherwise, list the matched files")
	saveAll := flag.Bool("save-all",
		section.Key("save-all").MustBool(false),
		"Save all files and directories in the partition")
	files := flag.String("file",
		section.Key("file").MustString(""),
		"The file(s)/dir(s) to extract, comma-separated")
	fileLists := flag.String("file-list",
		section.Key("file-list").MustString(""),
		"YAML file(s) containing the file(s)/dir(s) to extract, with tools to use and options")
	outDir := flag.String("out-dir",
		section.Key("out-dir").MustString("."),
		"The directory to extract the file(s)/dir(s) to")
	configPath := flag.String("config",
		section.Key("config").MustString(""),
		"The YAML file containing the configuration of the tools to use and directories")
	caseSensitive := flag.Bool("case-sensitive",
		section.Key("case-sensitive").MustBool(false),
		"Case-sensitive file search (default is case-insensitive)")
	toolArgs := flag.String("tool-args",
		section.Key("tool-args").MustString(""),
		"Extra arguments appended to every executed tool command")
	format := flag.String("format",
		section.Key("format").MustString("plain"),
		"Listing output format: plain, json or yaml")
	silent := flag.Bool("silent",
		section.Key("silent").MustBool(false),
		"Suppress output")
	verbose := flag.Int("verbose",
		section.Key("verbose").MustInt(0),
		"Verbosity level (0-2)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] image...\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintln(os.Stderr, "'The Sleuth Kit' disk image extraction interface")
		fmt.Fprintln(os.Stderr, "If multiple image files are given, they are concatenated.")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *vsType == "list" {
		printChoices("vstype", sleuthkit.PartTableTypes)
	}
	if *imgType == "list" {
		printChoices("imgtype", sleuthkit.ImgTypes)
	}

	args := &arguments{
		images:        flag.Args(),
		tskPath:       *tskPath,
		vsType:        *vsType,
		imgType:       *imgType,
		sectorSize:    *sectorSize,
		offset:        *offset,
		askPart:       *askPart,
		list:          *list,
		saveAll:       *saveAll,
		files:         splitArgs(*files),
		fileLists:     splitArgs(*fileLists),
		outDir:        *outDir,
		configPath:    *configPath,
		caseSensitive: *caseSensitive,
		toolArgs:      *toolArgs,
		format:        *format,
		silent:        *silent,
		verbose:       *verbose,
	}

	if len(args.images) == 0 {
		usageError("at least one image file is required")
	}
	if args.vsType != "" {
		if _, ok := sleuthkit.PartTableTypes[sleuthkit.PartTableType(args.vsType)]; !ok {
			usageError(fmt.Sprintf("unsupported volume system type %q (use '-vstype list')", args.vsType))
		}
	}
	if args.imgType != "" {
		if _, ok := sleuthkit.ImgTypes[sleuthkit.ImgType(args.imgType)]; !ok {
			usageError(fmt.Sprintf("unsupported image type %q (use '-imgtype list')", args.imgType))
		}
	}
	if args.sectorSize != 0 && args.sectorSize < 512 {
		usageError("sector size should be an integer >= 512")
	}
	if args.offset < -1 {
		usageError("offset should be an integer >= 0")
	}
	if args.saveAll && (len(args.files) > 0 || len(args.fileLists) > 0) {
		usageError("cannot specify -save-all and -file/-file-list at the same time")
	}
	if args.saveAll && args.list {
		usageError("cannot specify -save-all and -list at the same time")
	}
	if args.askPart && *partNums != "" {
		usageError("cannot specify -ask-part and -partitions at the same time")
	}
	if args.silent && args.verbose > 0 {
		usageError("cannot specify -silent and -verbose at the same time")
	}
	switch args.format {
	case "plain", "json", "yaml":
	default:
		usageError(fmt.Sprintf("unsupported format %q", args.format))
	}

	// Deduplicate partition numbers, preserving order.
	seen := make(map[int]bool)
	for _, s := range splitArgs(*partNums) {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			usageError(fmt.Sprintf("invalid partition number %q", s))
		}
		if !seen[n] {
			seen[n] = true
			args.partNums = append(args.partNums, n)
		}
	}

	return args
}

func splitArgs(input string) []string {
	if input == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
