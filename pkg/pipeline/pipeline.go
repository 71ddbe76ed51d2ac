// Package pipeline runs the complete cell analysis of an acquisition:
// segmentation, light source and flatfield correction, measurement and
// export.
package pipeline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"cellseg/internal/imageio"
	"cellseg/internal/store"
	"cellseg/pkg/config"
	"cellseg/pkg/flatfield"
	"cellseg/pkg/labeled"
	"cellseg/pkg/lightsource"
	"cellseg/pkg/segmentation"
	"cellseg/pkg/visualization"
)

// Params holds the pipeline inputs.
type Params struct {
	// InputDir is the directory containing the acquisition frames
	InputDir string

	// Config holds every processing and output setting
	Config *config.Config

	// Fields overrides the darkfield and flatfield files named in Config
	Fields *flatfield.Fields
}

// Background is the light source estimate of one channel at one position.
type Background struct {
	Position  string
	Channel   string
	Estimates []lightsource.Estimate
}

// Levels returns the estimated level of every timepoint.
func (b Background) Levels() []float64 {
	levels := make([]float64, len(b.Estimates))
	for i, e := range b.Estimates {
		levels[i] = e.Level
	}
	return levels
}

// Result is the outcome of a run.
type Result struct {
	// Image is the input after light source and flatfield correction
	Image *labeled.Array

	// Masks holds one label map per frame, in frame order
	Masks []*segmentation.Mask

	// Background holds the light source estimates when enabled
	Background []Background

	Detections []segmentation.Detection

	// RunID identifies the run in the detection database, if one was written
	RunID string
}

// Pipeline handles the analysis of one acquisition.
//
// The analysis consists of several steps:
// 1. Loading the acquisition frames
// 2. Segmenting every frame in parallel
// 3. Estimating and removing light source fluctuation
// 4. Applying flatfield correction
// 5. Measuring every cell and exporting the results
type Pipeline struct {
	params     *Params
	cfg        *config.Config
	segmenter  *segmentation.Segmenter
	predicate  segmentation.AdmissionPredicate
	background *lightsource.Estimator
	fields     *flatfield.Fields
}

// New validates the configuration and prepares the processing stages.
func New(params *Params) (*Pipeline, error) {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sp := segmentation.DefaultParams()
	sp.ChannelAxis = imageio.ChannelAxis
	sp.RowAxis, sp.ColAxis = imageio.RowAxis, imageio.ColAxis
	sp.TimeAxis, sp.PositionAxis = imageio.TimeAxis, imageio.PositionAxis
	sp.Connectivity = segmentation.Connectivity(cfg.Segmentation.Connectivity)
	sp.IntensityFloor = cfg.Segmentation.IntensityFloor
	sp.MinSeparation = cfg.Segmentation.MinSeparation
	sp.MinArea = cfg.Segmentation.MinArea
	sp.MaxDistance = cfg.Segmentation.MaxDistance

	pred := segmentation.All{segmentation.Threshold{Min: cfg.Segmentation.Threshold}}
	if cfg.Segmentation.WindowRadius > 0 {
		pred = append(pred, segmentation.WindowMean{Radius: cfg.Segmentation.WindowRadius, Min: cfg.Segmentation.WindowMin})
	}

	kde, err := cfg.DensityEstimator()
	if err != nil {
		return nil, err
	}
	lp := lightsource.DefaultParams()
	lp.TimeAxis, lp.RowAxis, lp.ColAxis = imageio.TimeAxis, imageio.RowAxis, imageio.ColAxis
	lp.MinBackground = cfg.LightSource.MinBackground

	p := &Pipeline{
		params:     params,
		cfg:        cfg,
		segmenter:  segmentation.NewSegmenter(sp),
		predicate:  pred,
		background: lightsource.NewEstimator(lp, kde),
		fields:     params.Fields,
	}
	if p.fields == nil && cfg.Flatfield.Enabled {
		if p.fields, err = loadFields(cfg.Flatfield.Darkfield, cfg.Flatfield.Flatfield); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func loadFields(darkPath, flatPath string) (*flatfield.Fields, error) {
	dark, err := imageio.LoadField(darkPath)
	if err != nil {
		return nil, fmt.Errorf("darkfield: %w", err)
	}
	flat, err := imageio.LoadField(flatPath)
	if err != nil {
		return nil, fmt.Errorf("flatfield: %w", err)
	}
	return flatfield.NewFields(dark, flat)
}

// Process runs the complete pipeline on the input directory and exports the
// results.
func (p *Pipeline) Process() (*Result, error) {
	p.logf("Step 1: Loading acquisition from %s...", p.params.InputDir)
	img, acq, err := imageio.LoadDir(p.params.InputDir)
	if err != nil {
		return nil, err
	}
	p.logf("Loaded %d frames: %d positions, %d channels, %d timepoints of %dx%d",
		len(acq.Frames), len(acq.Positions), len(acq.Channels), len(acq.Times), acq.Width, acq.Height)

	res, err := p.Run(img)
	if err != nil {
		return nil, err
	}

	p.logf("Step 5: Exporting %d detections to %s...", len(res.Detections), p.cfg.Output.Directory)
	if err := p.export(res); err != nil {
		return nil, err
	}
	return res, nil
}

// Run analyses an image with position, channel, time and spatial axes
// already in memory. Nothing is written to disk.
func (p *Pipeline) Run(img *labeled.Array) (*Result, error) {
	p.logf("Step 2: Segmenting frames on %d cores...", p.cfg.Processing.NumCores)
	masks, err := p.segment(img)
	if err != nil {
		return nil, err
	}
	res := &Result{Image: img, Masks: masks}

	if p.cfg.LightSource.Enabled {
		p.logf("Step 3: Estimating light source fluctuation...")
		if res.Image, res.Background, err = p.removeBackground(img, masks); err != nil {
			return nil, err
		}
	}

	if p.fields != nil {
		p.logf("Step 4: Applying flatfield correction...")
		var along labeled.Selector
		if ch := p.cfg.Flatfield.Channel; ch != "" {
			along = labeled.Selector{Axis: imageio.ChannelAxis, Label: ch}
		}
		if res.Image, err = p.fields.Correct(res.Image, along); err != nil {
			return nil, fmt.Errorf("flatfield correction failed: %w", err)
		}
	}

	if res.Detections, err = p.segmenter.Detections(res.Image, masks, p.cfg.Processing.SignalChannel); err != nil {
		return nil, fmt.Errorf("measuring detections failed: %w", err)
	}
	return res, nil
}

// segment labels every frame of img on NumCores workers. Masks are stored
// by frame index, so the result does not depend on scheduling.
func (p *Pipeline) segment(img *labeled.Array) ([]*segmentation.Mask, error) {
	frames, err := p.segmenter.Frames(img)
	if err != nil {
		return nil, err
	}

	type frameResult struct {
		idx  int
		mask *segmentation.Mask
		err  error
	}
	jobs := make(chan int)
	resultChan := make(chan frameResult)

	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Processing.NumCores; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				m, err := p.segmenter.SegmentFrame(img, frames[i], p.cfg.Processing.SeedChannel, p.cfg.Processing.SegmentChannel, p.predicate)
				resultChan <- frameResult{idx: i, mask: m, err: err}
			}
		}()
	}
	go func() {
		for i := range frames {
			jobs <- i
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	masks := make([]*segmentation.Mask, len(frames))
	var firstErr error
	completed := 0
	for res := range resultChan {
		completed++
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("segmentation of frame %v failed: %w", frames[res.idx], res.err)
			}
			continue
		}
		masks[res.idx] = res.mask
		p.logf("Segmented frame %v: %d cells (%d/%d)", frames[res.idx], res.mask.Count, completed, len(frames))
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return masks, nil
}

// removeBackground estimates the light source level of every channel at
// every position against the segmentation masks and subtracts it.
func (p *Pipeline) removeBackground(img *labeled.Array, masks []*segmentation.Mask) (*labeled.Array, []Background, error) {
	ls := p.cfg.LightSource

	foreground := make(map[string][]lightsource.Foreground)
	for _, m := range masks {
		pos, _ := m.Index.Label(imageio.PositionAxis)
		foreground[pos] = append(foreground[pos], m)
	}

	channels, err := img.Axis(imageio.ChannelAxis)
	if err != nil {
		return nil, nil, err
	}

	var backgrounds []Background
	removed := make(map[string]*labeled.Array)
	for _, pos := range positions(img) {
		sub := img
		if pos != "" {
			if sub, err = img.Select(imageio.PositionAxis, pos); err != nil {
				return nil, nil, err
			}
		}
		for _, ch := range channels.Labels {
			plane, err := sub.Select(imageio.ChannelAxis, ch)
			if err != nil {
				return nil, nil, err
			}
			est, err := p.background.Estimate(plane, foreground[pos], ls.Distance, ls.Height)
			if err != nil {
				return nil, nil, fmt.Errorf("light source estimate for position %q channel %s: %w", pos, ch, err)
			}
			bg := Background{Position: pos, Channel: ch, Estimates: est}
			out, err := lightsource.Remove(plane, imageio.TimeAxis, imageio.RowAxis, imageio.ColAxis, bg.Levels())
			if err != nil {
				return nil, nil, err
			}
			backgrounds = append(backgrounds, bg)
			removed[pos+"/"+ch] = out
			p.logf("Light source levels at position %q channel %s: %.4f", pos, ch, bg.Levels())
		}
	}

	corrected, err := img.MapPlanes(imageio.RowAxis, imageio.ColAxis, func(ix labeled.Index, _ *mat.Dense) (*mat.Dense, error) {
		pos, _ := ix.Label(imageio.PositionAxis)
		ch, _ := ix.Label(imageio.ChannelAxis)
		t, _ := ix.Pos(imageio.TimeAxis)
		return removed[pos+"/"+ch].Plane(labeled.Index{{Axis: imageio.TimeAxis, Pos: t}}, imageio.RowAxis, imageio.ColAxis)
	})
	if err != nil {
		return nil, nil, err
	}
	return corrected, backgrounds, nil
}

// positions lists the position labels of img, or a single empty label when
// img has no position axis.
func positions(img *labeled.Array) []string {
	axis, err := img.Axis(imageio.PositionAxis)
	if err != nil {
		return []string{""}
	}
	return axis.Labels
}

// export writes the detection table, database rows, cell grid and, when
// enabled, the intermediary masks and background plots.
func (p *Pipeline) export(res *Result) error {
	out := p.cfg.Output
	if err := os.MkdirAll(out.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if out.CSV != "" {
		if err := store.WriteCSVFile(filepath.Join(out.Directory, out.CSV), res.Detections); err != nil {
			return fmt.Errorf("failed to write detection table: %w", err)
		}
	}

	if out.Database != "" {
		runID, err := p.record(filepath.Join(out.Directory, out.Database), res.Detections)
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		res.RunID = runID
		p.logf("Recorded run %s", runID)
	}

	if out.GridWindow > 0 && len(res.Detections) > 0 {
		gp := visualization.DefaultGridParams()
		gp.ChannelAxis, gp.TimeAxis, gp.PositionAxis = imageio.ChannelAxis, imageio.TimeAxis, imageio.PositionAxis
		gp.RowAxis, gp.ColAxis = imageio.RowAxis, imageio.ColAxis
		gp.Channel = p.cfg.Processing.SignalChannel
		gp.Window = out.GridWindow
		grid, err := visualization.CellGrid(res.Image, res.Detections, gp)
		if err != nil {
			return fmt.Errorf("failed to assemble cell grid: %w", err)
		}
		if err := visualization.Save(visualization.Gray16(visualization.Stretch(grid)), filepath.Join(out.Directory, "cell_grid.png")); err != nil {
			return fmt.Errorf("failed to save cell grid: %w", err)
		}
	}

	if out.SaveIntermediaryResults {
		if err := p.saveIntermediaryResults(res); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) record(path string, dets []segmentation.Detection) (string, error) {
	db, err := store.Open(path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	cfgText, err := yaml.Marshal(p.cfg)
	if err != nil {
		return "", err
	}
	runID, err := db.StartRun(string(cfgText))
	if err != nil {
		return "", err
	}
	if err := db.InsertDetections(runID, dets); err != nil {
		return "", err
	}
	return runID, nil
}

// saveIntermediaryResults writes every label map under masks/ and the
// background densities and levels under background/.
func (p *Pipeline) saveIntermediaryResults(res *Result) error {
	maskDir := filepath.Join(p.cfg.Output.Directory, "masks")
	if err := os.MkdirAll(maskDir, 0755); err != nil {
		return fmt.Errorf("failed to create intermediary directory: %w", err)
	}
	for i, m := range res.Masks {
		filename := filepath.Join(maskDir, fmt.Sprintf("%03d_%s.png", i, frameName(m.Index)))
		if err := visualization.Save(visualization.Labels(m), filename); err != nil {
			return fmt.Errorf("failed to save mask %d: %w", i, err)
		}
	}

	if len(res.Background) == 0 {
		return nil
	}
	bgDir := filepath.Join(p.cfg.Output.Directory, "background")
	if err := os.MkdirAll(bgDir, 0755); err != nil {
		return fmt.Errorf("failed to create intermediary directory: %w", err)
	}
	for _, bg := range res.Background {
		name := bg.Channel
		if bg.Position != "" {
			name = bg.Position + "_" + name
		}
		if err := visualization.PlotDensities(bg.Estimates, filepath.Join(bgDir, name+"_density.png")); err != nil {
			return err
		}
		if err := visualization.PlotLevels(bg.Levels(), filepath.Join(bgDir, name+"_levels.png")); err != nil {
			return err
		}
	}
	return nil
}

// frameName joins the coordinate labels of a frame for use in filenames.
func frameName(ix labeled.Index) string {
	if len(ix) == 0 {
		return "frame"
	}
	parts := make([]string, len(ix))
	for i, c := range ix {
		parts[i] = c.Label
	}
	return strings.Join(parts, "_")
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.cfg.Output.Verbose {
		log.Printf(format, args...)
	}
}
