package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mrisegment/internal/logging"
	"mrisegment/pkg/config"
	"mrisegment/pkg/pipeline"
	"mrisegment/pkg/segmentation"
)

// errUsage asks main to print usage and exit with status 1.
var errUsage = errors.New("usage")

// options are the parsed command line arguments.
type options struct {
	input       string
	output      string
	seed        segmentation.Point
	configPath  string
	writeConfig string
	set         map[string]bool

	cores            int
	maxIter          int
	noSmooth         bool
	stl              bool
	extractSlices    bool
	slicesDir        string
	saveIntermediary bool
	intermediaryDir  string
	verbose          bool
}

// parseSeed parses "x,y,z".
func parseSeed(s string) (segmentation.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return segmentation.Point{}, fmt.Errorf("seed %q: want x,y,z", s)
	}
	return seedFromArgs(parts)
}

func seedFromArgs(args []string) (segmentation.Point, error) {
	var coords [3]int
	for i, a := range args {
		v, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return segmentation.Point{}, fmt.Errorf("seed coordinate %q: %w", a, err)
		}
		coords[i] = v
	}
	return segmentation.Point{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

// parseArgs accepts either flags or the positional form
// inputImage outputImage seedX seedY seedZ.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("mrisegment", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{set: make(map[string]bool)}
	var seed string
	fs.StringVar(&opts.input, "input", "", "Input volume (.mhd, .mha) or directory of slice images")
	fs.StringVar(&opts.output, "output", "", "Output mask (.mhd or .mha)")
	fs.StringVar(&seed, "seed", "", "Seed voxel as x,y,z")
	fs.StringVar(&opts.configPath, "config", "config.yaml", "Configuration file (.yaml or .toml)")
	fs.StringVar(&opts.writeConfig, "write-config", "", "Write a default configuration file to this path and exit")
	fs.IntVar(&opts.cores, "cores", 0, "Number of CPU cores to use (default: all available)")
	fs.IntVar(&opts.maxIter, "max-iter", segmentation.DefaultMaxIterations, "Maximum number of region growing iterations")
	fs.BoolVar(&opts.noSmooth, "no-smooth", false, "Skip curvature flow smoothing")
	fs.BoolVar(&opts.stl, "stl", false, "Export the segmented surface as STL")
	fs.BoolVar(&opts.extractSlices, "extract-slices", false, "Extract slices with the mask overlay along all axes")
	fs.StringVar(&opts.slicesDir, "slices-dir", "segmented_slices", "Directory to save extracted slices")
	fs.BoolVar(&opts.saveIntermediary, "save-intermediary", false, "Save intermediary results during processing")
	fs.StringVar(&opts.intermediaryDir, "intermediary-dir", "intermediary_results", "Directory to save intermediary results")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if opts.writeConfig != "" {
		return opts, nil
	}

	switch {
	case fs.NArg() == 5 && opts.input == "" && opts.output == "" && seed == "":
		opts.input, opts.output = fs.Arg(0), fs.Arg(1)
		p, err := seedFromArgs(fs.Args()[2:])
		if err != nil {
			return nil, err
		}
		opts.seed = p
	case fs.NArg() == 0 && opts.input != "" && opts.output != "" && seed != "":
		p, err := parseSeed(seed)
		if err != nil {
			return nil, err
		}
		opts.seed = p
	default:
		fs.Usage()
		return nil, errUsage
	}
	return opts, nil
}

// apply overrides cfg with the flags given on the command line.
func (o *options) apply(cfg *config.Config) {
	if o.set["cores"] {
		cfg.Processing.NumCores = o.cores
	}
	if o.set["max-iter"] {
		cfg.Growing.MaxIterations = o.maxIter
	}
	if o.noSmooth {
		cfg.Smoothing.Enabled = false
	}
	if o.stl {
		cfg.Output.WriteSTL = true
	}
	if o.set["save-intermediary"] {
		cfg.Output.SaveIntermediaryResults = o.saveIntermediary
	}
	if o.set["intermediary-dir"] {
		cfg.Output.IntermediaryDir = o.intermediaryDir
	}
	if o.verbose {
		cfg.Output.Verbose = true
	}
}

func run(opts *options, logger zerolog.Logger) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Output.Verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	params := pipeline.NewParams(cfg)
	params.InputPath = opts.input
	params.OutputFile = opts.output
	params.Seed = opts.seed
	params.ExtractSlices = opts.extractSlices
	params.SlicesDir = opts.slicesDir

	p := pipeline.NewPipeline(params, logger)

	startTime := time.Now()
	if err := p.Process(); err != nil {
		return err
	}

	result, report, err := p.GetResult()
	if err != nil {
		return err
	}
	logger.Info().
		Dur("elapsed", time.Since(startTime)).
		Str("bounds", result.Bounds.String()).
		Stringer("status", result.Status).
		Int("voxels", report.Voxels).
		Float64("volume", report.PhysicalVolume).
		Str("output", params.OutputFile).
		Msg("Segmentation completed")
	return nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	logger := logging.Init("mrisegment", opts.verbose)

	if opts.writeConfig != "" {
		if err := config.CreateDefaultConfigFile(opts.writeConfig); err != nil {
			log.Fatal().Err(err).Msg("Failed to write configuration")
		}
		logger.Info().Str("path", opts.writeConfig).Msg("Wrote default configuration")
		return
	}

	if err := run(opts, logger); err != nil {
		log.Fatal().Err(err).Msg("Segmentation failed")
	}
}
