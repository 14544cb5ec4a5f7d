package segmentation

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultMaxIterations caps the number of frontier dequeues of one estimation.
const DefaultMaxIterations = 10_000_000

// Options configures an Estimator. Zero fields fall back to their defaults.
type Options struct {
	// MaxIterations is the maximum number of frontier points expanded before growth
	// is abandoned and the result flagged as truncated.
	MaxIterations int

	// ExploratoryMultiplier scales deviations while growing.
	ExploratoryMultiplier float64

	// FinalMultiplier scales deviations of the returned bounds.
	FinalMultiplier float64
}

// DefaultOptions returns the options used by the segmentation program.
func DefaultOptions() Options {
	return Options{
		MaxIterations:         DefaultMaxIterations,
		ExploratoryMultiplier: ExploratoryMultiplier,
		FinalMultiplier:       FinalMultiplier,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.ExploratoryMultiplier <= 0 {
		o.ExploratoryMultiplier = d.ExploratoryMultiplier
	}
	if o.FinalMultiplier <= 0 {
		o.FinalMultiplier = d.FinalMultiplier
	}
	return o
}

// Status tells whether growth ran until the frontier was exhausted.
type Status int

const (
	// StatusComplete means the frontier emptied before the iteration cap.
	StatusComplete Status = iota

	// StatusTruncated means the iteration cap stopped growth. The bounds are still
	// usable but were computed from a partial region.
	StatusTruncated
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusTruncated:
		return "truncated"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText lets Status appear by name in reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of one estimation.
type Result struct {
	// Bounds are the final threshold bounds.
	Bounds Bounds

	// Status reports whether the iteration cap cut growth short.
	Status Status

	// RegionSize is the number of voxels in the grown region.
	RegionSize int

	// Iterations is the number of frontier points expanded.
	Iterations int

	// Recomputes counts the doubling-triggered statistics passes.
	Recomputes int
}

// Truncated reports whether growth stopped at the iteration cap.
func (r Result) Truncated() bool {
	return r.Status == StatusTruncated
}

// Estimator derives threshold bounds by growing a region from a seed.
// It holds no per-call state, so one Estimator may serve concurrent calls.
type Estimator struct {
	opts   Options
	logger zerolog.Logger
}

// NewEstimator creates an estimator. Pass zerolog.Nop() to disable logging.
func NewEstimator(opts Options, logger zerolog.Logger) *Estimator {
	return &Estimator{
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Options returns the effective options.
func (e *Estimator) Options() Options {
	return e.opts
}

// Estimate grows a region from seed through view and returns the final bounds.
func (e *Estimator) Estimate(view VolumeView, seed Point) (Result, error) {
	g, err := newGrower(view, seed, e.opts, e.logger)
	if err != nil {
		return Result{}, err
	}
	return g.run()
}

// region is the set of visited points together with their values in insertion order.
type region struct {
	members map[Point]struct{}
	points  []Point
	values  []int64
}

func newRegion() *region {
	return &region{members: make(map[Point]struct{})}
}

func (r *region) has(p Point) bool {
	_, ok := r.members[p]
	return ok
}

// add inserts p and reports whether it was new.
func (r *region) add(p Point, v int64) bool {
	if r.has(p) {
		return false
	}
	r.members[p] = struct{}{}
	r.points = append(r.points, p)
	r.values = append(r.values, v)
	return true
}

func (r *region) size() int {
	return len(r.points)
}

// queue is a FIFO of points backed by a slice.
type queue struct {
	items []Point
	head  int
}

func (q *queue) push(p Point) {
	q.items = append(q.items, p)
}

func (q *queue) pop() Point {
	p := q.items[q.head]
	q.head++
	if q.head >= 1024 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return p
}

func (q *queue) len() int {
	return len(q.items) - q.head
}

// shouldRecompute reports whether the region has at least doubled since the last
// statistics pass, using integer division of the sizes.
func shouldRecompute(size, lastRecomputeSize int) bool {
	return size/lastRecomputeSize >= 2
}

// grower is the state of a single estimation.
type grower struct {
	view   VolumeView
	ext    extent
	opts   Options
	logger zerolog.Logger

	region            *region
	frontier          queue
	bounds            Bounds
	lastRecomputeSize int
	iterations        int
	recomputes        int
	truncated         bool

	// onAccept, when set, observes every point admitted during growing together
	// with the bounds it was tested against.
	onAccept func(p Point, v int64, b Bounds)
}

func newGrower(view VolumeView, seed Point, opts Options, logger zerolog.Logger) (*grower, error) {
	ext := extentOf(view)
	if !ext.valid() {
		return nil, fmt.Errorf("dimensions %dx%dx%d: %w", ext.x, ext.y, ext.z, ErrInvalidVolume)
	}
	if !ext.contains(seed) {
		return nil, fmt.Errorf("seed %v in %dx%dx%d volume: %w", seed, ext.x, ext.y, ext.z, ErrSeedOutOfBounds)
	}
	g := &grower{
		view:   view,
		ext:    ext,
		opts:   opts.withDefaults(),
		logger: logger,
		region: newRegion(),
	}
	g.region.add(seed, valueAt(view, seed))
	return g, nil
}

func (g *grower) run() (Result, error) {
	if err := g.seed(); err != nil {
		return Result{}, err
	}
	if err := g.grow(); err != nil {
		return Result{}, err
	}
	return g.finalize()
}

// seed admits every in-bounds neighbour of the seed without a threshold test and
// derives the first exploratory bounds from them.
func (g *grower) seed() error {
	origin := g.region.points[0]
	for _, d := range neighborOffsets {
		p := origin.Add(d)
		if !g.ext.contains(p) {
			continue
		}
		if g.region.add(p, valueAt(g.view, p)) {
			g.frontier.push(p)
		}
	}
	return g.recompute()
}

// grow expands the frontier breadth-first until it empties or the cap is hit.
func (g *grower) grow() error {
	for g.frontier.len() > 0 {
		if g.iterations >= g.opts.MaxIterations {
			g.truncated = true
			g.logger.Warn().
				Int("iterations", g.iterations).
				Int("frontier", g.frontier.len()).
				Int("region", g.region.size()).
				Msg("iteration cap reached, growth truncated")
			break
		}
		g.iterations++

		current := g.frontier.pop()
		for _, d := range neighborOffsets {
			p := current.Add(d)
			if !g.ext.contains(p) || g.region.has(p) {
				continue
			}
			v := valueAt(g.view, p)
			if !g.bounds.Contains(v) {
				continue
			}
			if g.onAccept != nil {
				g.onAccept(p, v, g.bounds)
			}
			g.region.add(p, v)
			g.frontier.push(p)

			if shouldRecompute(g.region.size(), g.lastRecomputeSize) {
				if err := g.recompute(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// recompute refreshes the exploratory bounds from the whole region.
func (g *grower) recompute() error {
	stats, err := ComputeStatistics(g.region.values)
	if err != nil {
		return fmt.Errorf("exploratory statistics over %d points: %w", g.region.size(), err)
	}
	g.bounds = ComputeBounds(stats, g.region.size(), g.opts.ExploratoryMultiplier)
	g.lastRecomputeSize = g.region.size()
	g.recomputes++

	g.logger.Debug().
		Int64("mean", stats.Mean).
		Int64("upperDev", stats.UpperDeviation).
		Int64("lowerDev", stats.LowerDeviation).
		Int64("lower", g.bounds.Lower).
		Int64("upper", g.bounds.Upper).
		Int("region", g.region.size()).
		Msg("exploratory thresholds")
	return nil
}

func (g *grower) finalize() (Result, error) {
	stats, err := ComputeStatistics(g.region.values)
	if err != nil {
		return Result{}, fmt.Errorf("final statistics over %d points: %w", g.region.size(), err)
	}
	bounds := ComputeBounds(stats, g.region.size(), g.opts.FinalMultiplier)

	status := StatusComplete
	if g.truncated {
		status = StatusTruncated
	}

	g.logger.Info().
		Int64("mean", stats.Mean).
		Int64("upperDev", stats.UpperDeviation).
		Int64("lowerDev", stats.LowerDeviation).
		Int64("lower", bounds.Lower).
		Int64("upper", bounds.Upper).
		Int("region", g.region.size()).
		Int("iterations", g.iterations).
		Stringer("status", status).
		Msg("final thresholds")

	return Result{
		Bounds:     bounds,
		Status:     status,
		RegionSize: g.region.size(),
		Iterations: g.iterations,
		Recomputes: g.recomputes,
	}, nil
}
