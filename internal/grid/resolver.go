package grid

import (
	"context"
	"fmt"
	"image"

	"github.com/harrison/gridpilot/internal/agent"
	"github.com/harrison/gridpilot/internal/models"
)

// Options configures a Resolver.
type Options struct {
	GridSize            int     // N of the N×N grid, at least 2
	ConfidenceThreshold float64 // accept a cell at or above this confidence
	MaxDepth            int     // number of refinements allowed after the first query
}

// MaxRefinementDepth bounds MaxDepth. Deeper cells of a 60×60 grid fall below
// float64 resolution on a full-width screenshot.
const MaxRefinementDepth = 8

// DefaultOptions returns the default 60×60 grid, 0.8 threshold and two
// refinements.
func DefaultOptions() Options {
	return Options{GridSize: 60, ConfidenceThreshold: 0.8, MaxDepth: 2}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.GridSize < 2 {
		return fmt.Errorf("grid size must be >= 2, got %d", o.GridSize)
	}
	if o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be within [0,1], got %v", o.ConfidenceThreshold)
	}
	if o.MaxDepth < 0 || o.MaxDepth > MaxRefinementDepth {
		return fmt.Errorf("max refinement depth must be within [0,%d], got %d", MaxRefinementDepth, o.MaxDepth)
	}
	return nil
}

// Resolver maps a target description to a point on a screenshot. Apart from
// the chooser call it is a pure function of its inputs.
type Resolver struct {
	chooser agent.CellChooser
	opts    Options
}

// NewResolver creates a Resolver.
func NewResolver(chooser agent.CellChooser, opts Options) (*Resolver, error) {
	if chooser == nil {
		return nil, fmt.Errorf("cell chooser cannot be nil")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{chooser: chooser, opts: opts}, nil
}

// Options returns the resolver's configuration.
func (r *Resolver) Options() Options {
	return r.opts
}

// Resolve decodes screenshot and locates target on it.
func (r *Resolver) Resolve(ctx context.Context, screenshot []byte, target string, kind models.ActionKind) (models.GridResolution, error) {
	img, err := Decode(screenshot)
	if err != nil {
		return models.GridResolution{}, err
	}
	return r.ResolveImage(ctx, img, target, kind)
}

// ResolveImage runs the bounded refinement search over img.
//
// At each depth the current region gets an N×N grid and the chooser names a
// cell. A cell at or above the threshold is returned. Otherwise the search
// narrows to that cell until MaxDepth refinements are used, which yields a
// *models.ResolutionLowConfidenceError carrying the last cell. Regions keep
// fractional edges, so every depth gets the full grid however small the
// cell. A chooser answer of "not found", a cell outside the grid, or an empty
// screenshot yields *models.TargetNotFoundError.
func (r *Resolver) ResolveImage(ctx context.Context, img image.Image, target string, kind models.ActionKind) (models.GridResolution, error) {
	n := r.opts.GridSize
	region := RegionOf(models.RectFrom(img.Bounds()))
	if region.Empty() {
		return models.GridResolution{}, &models.TargetNotFoundError{Target: target, Reason: "screenshot is empty"}
	}

	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			return models.GridResolution{}, err
		}

		overlay, err := RenderOverlay(img, region, n)
		if err != nil {
			return models.GridResolution{}, err
		}

		choice, err := r.chooser.ChooseCell(ctx, agent.CellRequest{
			Target:   target,
			Action:   kind,
			Image:    overlay,
			GridSize: n,
			Depth:    depth,
			Region:   region.Bounds(),
		})
		if err != nil {
			return models.GridResolution{}, fmt.Errorf("choosing cell at depth %d: %w", depth, err)
		}
		if !choice.Found {
			return models.GridResolution{}, &models.TargetNotFoundError{Target: target, Depth: depth, Reason: choice.Reasoning}
		}

		addr, err := Lookup(choice.Cell, n)
		if err != nil {
			return models.GridResolution{}, &models.TargetNotFoundError{Target: target, Depth: depth, Reason: err.Error()}
		}

		cell := region.Cell(n, addr)
		res := models.GridResolution{
			Cell:       addr.String(),
			Rect:       cell.Bounds(),
			Point:      cell.Center(),
			Confidence: choice.Confidence,
			Depth:      depth,
		}

		if choice.Confidence >= r.opts.ConfidenceThreshold {
			return res, nil
		}
		if depth >= r.opts.MaxDepth || cell.Empty() {
			return models.GridResolution{}, &models.ResolutionLowConfidenceError{
				Target:    target,
				Threshold: r.opts.ConfidenceThreshold,
				Last:      res,
			}
		}
		region = cell
	}
}
