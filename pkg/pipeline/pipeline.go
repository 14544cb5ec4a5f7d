// Package pipeline runs a complete segmentation: load a volume, smooth it, estimate
// threshold bounds from a seed, paint the connected component and write the results.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"mrisegment/internal/models"
	"mrisegment/pkg/config"
	"mrisegment/pkg/fill"
	"mrisegment/pkg/segmentation"
	"mrisegment/pkg/smoothing"
	"mrisegment/pkg/stl"
	"mrisegment/pkg/visualization"
	"mrisegment/pkg/volumeio"
)

// ErrNotProcessed is returned by accessors called before a successful Process.
var ErrNotProcessed = errors.New("pipeline has not been processed")

// Params holds the segmentation parameters.
type Params struct {
	// InputPath is a MetaImage file (.mhd or .mha) or a directory of slice images.
	InputPath string

	// OutputFile is the MetaImage path of the label mask. The STL surface and the
	// report are written next to it.
	OutputFile string

	// Seed is the voxel the region grows from.
	Seed segmentation.Point

	// NumCores specifies how many CPU cores to use for smoothing.
	NumCores int

	Smooth              bool
	SmoothingIterations int
	SmoothingTimeStep   float64

	Estimator segmentation.Options
	Fill      fill.Options

	// Compress stores mask voxels zlib-compressed.
	Compress bool

	WriteSTL    bool
	WriteReport bool

	// ExtractSlices saves JPEG slices of the input with the mask drawn on top,
	// one subdirectory of SlicesDir per axis.
	ExtractSlices bool
	SlicesDir     string
	SliceAxes     []string

	// SaveIntermediaryResults determines whether to save intermediary processing results.
	SaveIntermediaryResults bool
	IntermediaryDir         string
}

// NewParams fills params from a configuration. Input, output and seed are left
// to the caller.
func NewParams(cfg *config.Config) *Params {
	return &Params{
		NumCores:                cfg.Processing.NumCores,
		Smooth:                  cfg.Smoothing.Enabled,
		SmoothingIterations:     cfg.Smoothing.Iterations,
		SmoothingTimeStep:       cfg.Smoothing.TimeStep,
		Estimator:               cfg.EstimatorOptions(),
		Fill:                    cfg.FillOptions(),
		Compress:                cfg.Output.Compress,
		WriteSTL:                cfg.Output.WriteSTL,
		WriteReport:             cfg.Output.WriteReport,
		SliceAxes:               []string{"x", "y", "z"},
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
	}
}

// STLFile returns the path of the surface mesh.
func (p *Params) STLFile() string {
	return sibling(p.OutputFile, ".stl")
}

// ReportFile returns the path of the YAML report.
func (p *Params) ReportFile() string {
	return sibling(p.OutputFile, "_report.yaml")
}

func sibling(path, suffix string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + suffix
}

// Pipeline handles one segmentation run
type Pipeline struct {
	params *Params
	logger zerolog.Logger

	input    *models.Volume
	working  *models.Volume
	mask     *models.Mask
	result   segmentation.Result
	report   segmentation.Report
	finished bool
}

// NewPipeline creates a new pipeline instance with the provided parameters.
func NewPipeline(params *Params, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		params: params,
		logger: logger,
	}
}

// Process runs the complete segmentation pipeline
func (p *Pipeline) Process() error {
	p.finished = false

	if p.params.SaveIntermediaryResults {
		if err := os.MkdirAll(p.params.IntermediaryDir, 0755); err != nil {
			return fmt.Errorf("failed to create intermediary directory: %w", err)
		}
	}

	// Step 1: Load the input volume
	p.logger.Info().Str("input", p.params.InputPath).Msg("Step 1: Loading input volume...")
	vol, err := volumeio.Load(p.params.InputPath)
	if err != nil {
		return fmt.Errorf("failed to load volume: %w", err)
	}
	p.input = vol
	p.logger.Info().
		Int("width", vol.Width).Int("height", vol.Height).Int("depth", vol.Depth).
		Msg("Loaded volume")
	p.saveIntermediaryVolume("01_input", vol)

	// Step 2: Smooth
	p.working = vol
	if p.params.Smooth {
		p.logger.Info().Int("iterations", p.params.SmoothingIterations).Msg("Step 2: Applying curvature flow...")
		flow := smoothing.NewCurvatureFlow()
		flow.Iterations = p.params.SmoothingIterations
		flow.TimeStep = p.params.SmoothingTimeStep
		if p.params.NumCores > 0 {
			flow.NumCores = p.params.NumCores
		}
		p.working = flow.Apply(vol)
		p.saveIntermediaryVolume("02_smoothed", p.working)
	} else {
		p.logger.Info().Msg("Step 2: Smoothing disabled")
	}

	// Step 3: Estimate the threshold bounds
	p.logger.Info().Stringer("seed", p.params.Seed).Msg("Step 3: Growing region from seed...")
	estimator := segmentation.NewEstimator(p.params.Estimator, p.logger.With().Str("component", "estimator").Logger())
	result, err := estimator.Estimate(p.working, p.params.Seed)
	if err != nil {
		return fmt.Errorf("failed to estimate thresholds: %w", err)
	}
	p.result = result
	if result.Truncated() {
		p.logger.Warn().Int("iterations", result.Iterations).Msg("Region growth hit the iteration cap, bounds come from a partial region")
	}
	p.logger.Info().
		Int64("lower", result.Bounds.Lower).Int64("upper", result.Bounds.Upper).
		Int("regionSize", result.RegionSize).
		Msg("Estimated thresholds")

	// Step 4: Paint the connected component
	p.logger.Info().Msg("Step 4: Filling connected component...")
	mask, err := fill.Connected(p.working, p.params.Seed, result.Bounds, p.params.Fill)
	if err != nil {
		return fmt.Errorf("failed to fill region: %w", err)
	}
	p.mask = mask
	p.report = segmentation.Summarize(p.working, mask, p.params.Seed, result)
	p.logger.Info().Int("voxels", p.report.Voxels).Float64("volume", p.report.PhysicalVolume).Msg("Filled region")

	// Step 5: Write the results
	p.logger.Info().Str("output", p.params.OutputFile).Msg("Step 5: Writing results...")
	if err := p.writeResults(); err != nil {
		return err
	}

	p.finished = true
	return nil
}

func (p *Pipeline) writeResults() error {
	if err := volumeio.WriteMask(p.params.OutputFile, p.mask, volumeio.WriteOptions{Compress: p.params.Compress}); err != nil {
		return fmt.Errorf("failed to write mask: %w", err)
	}

	if p.params.WriteSTL {
		triangles := stl.NewMesher(p.mask).GenerateTriangles()
		if err := stl.SaveToSTL(p.params.STLFile(), triangles); err != nil {
			return err
		}
		p.logger.Info().Int("triangles", len(triangles)).Str("file", p.params.STLFile()).Msg("Saved surface")
	}

	if p.params.WriteReport {
		data, err := yaml.Marshal(p.report)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		if err := os.WriteFile(p.params.ReportFile(), data, 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if p.params.ExtractSlices {
		viewer := visualization.NewViewer(p.input)
		if err := viewer.SetOverlay(p.mask); err != nil {
			return err
		}
		for _, axis := range p.params.SliceAxes {
			axisDir := filepath.Join(p.params.SlicesDir, axis)
			n, err := viewer.SaveSliceSequence(axis, axisDir)
			if err != nil {
				return fmt.Errorf("failed to extract %s-axis slices: %w", axis, err)
			}
			p.logger.Info().Int("slices", n).Str("dir", axisDir).Msg("Saved slices")
		}
	}

	if p.params.SaveIntermediaryResults {
		viewer := visualization.NewViewer(p.working)
		if err := viewer.SetOverlay(p.mask); err == nil {
			p.saveIntermediarySlices("03_segmented", viewer)
		}
	}
	return nil
}

// saveIntermediaryVolume writes vol as a MetaImage plus a JPEG slice sequence.
// Failures are logged and do not stop the pipeline.
func (p *Pipeline) saveIntermediaryVolume(stage string, vol *models.Volume) {
	if !p.params.SaveIntermediaryResults {
		return
	}
	path := filepath.Join(p.params.IntermediaryDir, stage+".mha")
	if err := volumeio.WriteMetaImage(path, vol, volumeio.WriteOptions{Compress: p.params.Compress}); err != nil {
		p.logger.Warn().Err(err).Str("stage", stage).Msg("Failed to save intermediary volume")
	}
	p.saveIntermediarySlices(stage, visualization.NewViewer(vol))
}

func (p *Pipeline) saveIntermediarySlices(stage string, viewer *visualization.Viewer) {
	if _, err := viewer.SaveSliceSequence("z", filepath.Join(p.params.IntermediaryDir, stage)); err != nil {
		p.logger.Warn().Err(err).Str("stage", stage).Msg("Failed to save intermediary slices")
	}
}

// GetResult returns the estimation result and the region report of the last run
func (p *Pipeline) GetResult() (segmentation.Result, segmentation.Report, error) {
	if !p.finished {
		return segmentation.Result{}, segmentation.Report{}, ErrNotProcessed
	}
	return p.result, p.report, nil
}

// GetMask returns the label mask of the last run
func (p *Pipeline) GetMask() (*models.Mask, error) {
	if !p.finished {
		return nil, ErrNotProcessed
	}
	return p.mask, nil
}
