// Package config loads the exerciser's run configuration from command-line
// flags or a JSON file, following the flag-based main() idiom tinySQL's
// cmd/server and cmd/tinysql entry points use.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/defghij/diskxerciser/internal/xerr"
)

// Config is the full run configuration, spanning layout, worker counts, the
// chosen I/O engine, and the optional control/history/scheduling surfaces.
// Tagged for both encoding/json and gopkg.in/yaml.v3 so -config accepts
// either a .json or a .yaml/.yml file.
type Config struct {
	Roots       []string `json:"roots" yaml:"roots"`
	DirPrefix   string   `json:"dir_prefix" yaml:"dir_prefix"`
	DirCount    uint64   `json:"dir_count" yaml:"dir_count"`
	FilePrefix  string   `json:"file_prefix" yaml:"file_prefix"`
	FilesPerDir uint64   `json:"files_per_dir" yaml:"files_per_dir"`
	PageSize    int      `json:"page_size" yaml:"page_size"`
	PageCount   uint64   `json:"page_count" yaml:"page_count"`
	Seed        uint64   `json:"seed" yaml:"seed"`
	Workers     int      `json:"workers" yaml:"workers"`
	ChapterSize int      `json:"chapter_size" yaml:"chapter_size"`

	Engine   string `json:"engine" yaml:"engine"` // posix | aio | io_uring
	DirectIO bool   `json:"direct_io" yaml:"direct_io"`

	MutateFraction float64 `json:"mutate_fraction" yaml:"mutate_fraction"`
	InjectFaults   int     `json:"inject_faults" yaml:"inject_faults"`
	DestroyOnExit  bool    `json:"destroy_on_exit" yaml:"destroy_on_exit"`

	GRPCAddr   string `json:"grpc_addr" yaml:"grpc_addr"`     // empty disables the status service
	CronSpec   string `json:"cron_spec" yaml:"cron_spec"`     // empty disables repeat-run mode
	HistoryDSN string `json:"history_dsn" yaml:"history_dsn"` // empty disables run-history auditing

	Verbose bool `json:"verbose" yaml:"verbose"`
}

// FromFlags parses args against the standard flag set and returns the
// resulting Config. A -config path, if given, is loaded first and then
// overridden by any explicitly-set flags.
func FromFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("diskxerciser", flag.ContinueOnError)

	var (
		configPath  = fs.String("config", "", "path to a JSON or YAML config file (flags override its values)")
		roots       = fs.String("roots", ".", "comma-separated list of filesystem roots")
		dirPrefix   = fs.String("dir-prefix", "shelf", "directory name prefix")
		dirCount    = fs.Uint64("dir-count", 4, "number of directories")
		filePrefix  = fs.String("file-prefix", "book", "file name prefix")
		filesPerDir = fs.Uint64("files-per-dir", 16, "number of files per directory")
		pageSize    = fs.Int("page-size", 4096, "page size in bytes")
		pageCount   = fs.Uint64("page-count", 256, "pages per file")
		seed        = fs.Uint64("seed", 1, "base seed for payload generation")
		workers     = fs.Int("workers", 8, "number of worker goroutines")
		chapterSize = fs.Int("chapter-size", 16, "pages per chapter")
		engine      = fs.String("engine", "posix", "I/O engine: posix, aio, io_uring")
		directIO    = fs.Bool("direct-io", false, "open files with O_DIRECT (linux only)")
		mutateFrac  = fs.Float64("mutate-fraction", 0, "fraction of pages to mutate after the write phase (0 disables)")
		injectFault = fs.Int("inject-faults", 0, "number of pages to corrupt for self-test purposes")
		destroyExit = fs.Bool("destroy-on-exit", false, "remove the constellation after the run completes")
		grpcAddr    = fs.String("grpc", "", "gRPC status service listen address (empty disables it)")
		cronSpec    = fs.String("cron", "", "cron spec for repeat-run mode (empty disables it)")
		historyDSN  = fs.String("history-dsn", "", "sqlite DSN for run-history auditing (empty disables it)")
		verbose     = fs.Bool("v", false, "verbose logging")
	)

	if err := fs.Parse(args); err != nil {
		return Config{}, xerr.New("config.FromFlags", xerr.KindInvalidArgument, err)
	}

	// Seed from flag defaults/values first, so a run with no -config still
	// gets a complete Config.
	cfg := Config{
		Roots: splitNonEmpty(*roots), DirPrefix: *dirPrefix, DirCount: *dirCount,
		FilePrefix: *filePrefix, FilesPerDir: *filesPerDir, PageSize: *pageSize,
		PageCount: *pageCount, Seed: *seed, Workers: *workers, ChapterSize: *chapterSize,
		Engine: *engine, DirectIO: *directIO, MutateFraction: *mutateFrac,
		InjectFaults: *injectFault, DestroyOnExit: *destroyExit, GRPCAddr: *grpcAddr,
		CronSpec: *cronSpec, HistoryDSN: *historyDSN, Verbose: *verbose,
	}

	// A -config file overrides those defaults; any flag the caller actually
	// passed on the command line then overrides the file in turn.
	if *configPath != "" {
		loaded, err := FromFile(*configPath)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded

		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "roots":
				cfg.Roots = splitNonEmpty(*roots)
			case "dir-prefix":
				cfg.DirPrefix = *dirPrefix
			case "dir-count":
				cfg.DirCount = *dirCount
			case "file-prefix":
				cfg.FilePrefix = *filePrefix
			case "files-per-dir":
				cfg.FilesPerDir = *filesPerDir
			case "page-size":
				cfg.PageSize = *pageSize
			case "page-count":
				cfg.PageCount = *pageCount
			case "seed":
				cfg.Seed = *seed
			case "workers":
				cfg.Workers = *workers
			case "chapter-size":
				cfg.ChapterSize = *chapterSize
			case "engine":
				cfg.Engine = *engine
			case "direct-io":
				cfg.DirectIO = *directIO
			case "mutate-fraction":
				cfg.MutateFraction = *mutateFrac
			case "inject-faults":
				cfg.InjectFaults = *injectFault
			case "destroy-on-exit":
				cfg.DestroyOnExit = *destroyExit
			case "grpc":
				cfg.GRPCAddr = *grpcAddr
			case "cron":
				cfg.CronSpec = *cronSpec
			case "history-dsn":
				cfg.HistoryDSN = *historyDSN
			case "v":
				cfg.Verbose = *verbose
			}
		})
	}

	return cfg, cfg.Validate()
}

// FromFile reads and decodes a Config, dispatching on path's extension: .yaml
// and .yml go through gopkg.in/yaml.v3, everything else is treated as JSON.
func FromFile(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FromYAMLFile(path)
	default:
		return FromJSONFile(path)
	}
}

// FromJSONFile reads and decodes a Config from a JSON file.
func FromJSONFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, xerr.New("config.FromJSONFile", xerr.KindNotFound, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, xerr.New("config.FromJSONFile", xerr.KindInvalidArgument, err)
	}
	return cfg, nil
}

// FromYAMLFile reads and decodes a Config from a YAML file.
func FromYAMLFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, xerr.New("config.FromYAMLFile", xerr.KindNotFound, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, xerr.New("config.FromYAMLFile", xerr.KindInvalidArgument, err)
	}
	return cfg, nil
}

// Validate checks the layout and runtime invariants a configuration must
// satisfy before a run can start.
func (c Config) Validate() error {
	const op = "Config.Validate"
	if len(c.Roots) == 0 {
		return xerr.New(op, xerr.KindInvalidLayout, fmt.Errorf("at least one root is required"))
	}
	if c.DirCount < 1 || c.FilesPerDir < 1 {
		return xerr.New(op, xerr.KindInvalidLayout, fmt.Errorf("dir_count and files_per_dir must be >= 1"))
	}
	if c.PageSize <= 32 || c.PageSize%8 != 0 {
		return xerr.New(op, xerr.KindInvalidLayout, fmt.Errorf("page_size must be > 32 and a multiple of 8"))
	}
	if c.PageCount < 1 {
		return xerr.New(op, xerr.KindInvalidLayout, fmt.Errorf("page_count must be >= 1"))
	}
	if c.Workers < 1 {
		return xerr.New(op, xerr.KindInvalidArgument, fmt.Errorf("workers must be >= 1"))
	}
	if c.ChapterSize < 1 {
		return xerr.New(op, xerr.KindInvalidArgument, fmt.Errorf("chapter_size must be >= 1"))
	}
	if c.MutateFraction < 0 || c.MutateFraction > 1 {
		return xerr.New(op, xerr.KindInvalidArgument, fmt.Errorf("mutate_fraction must be in [0,1]"))
	}
	return nil
}

func splitNonEmpty(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ',' {
			if cur != "" {
				out = append(out, cur)
			}
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
