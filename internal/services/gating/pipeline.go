package gating

import (
	"context"
	"time"

	"SMCScan/internal/domain/models"
	"SMCScan/pkg/logger"
)

// Snapshot is the immutable input every stage reads. The current bar is the
// last element of Bars.
type Snapshot struct {
	Symbol   string
	Bars     []models.Bar
	Bias     models.Bias
	Ranges   map[string]models.SessionRange
	// ATR covers only the trailing bars, not one value per bar.
	ATR      []float64
	Context  models.MarketContext
	Location *time.Location
}

// Current is the bar being evaluated.
func (s *Snapshot) Current() models.Bar { return s.Bars[len(s.Bars)-1] }

// History is every bar before the current one.
func (s *Snapshot) History() []models.Bar { return s.Bars[:len(s.Bars)-1] }

// Evidence accumulates what earlier stages established.
type Evidence struct {
	Direction          models.Direction `json:"direction"`
	PricePosition      float64          `json:"price_position"`
	QuartileRange      string           `json:"quartile_range"`
	DivergenceStrength float64          `json:"divergence_strength"`
	SweptLevel         float64          `json:"swept_level"`
	SweepSource        string           `json:"sweep_source"`
	DepthVolume        float64          `json:"depth_volume"`
	DepthChecked       bool             `json:"depth_checked"`
}

type Verdict struct {
	Pass     bool
	Reason   string
	Evidence Evidence
}

// Stage is one predicate of the pipeline. A rejection is a normal outcome,
// not an error.
type Stage interface {
	Name() string
	Evaluate(ctx context.Context, snap *Snapshot, ev Evidence) Verdict
}

type StageResult struct {
	Stage  string `json:"stage"`
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

type Decision struct {
	Passed      bool          `json:"passed"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Evidence    Evidence      `json:"evidence"`
	Trace       []StageResult `json:"trace"`
}

// RejectRecorder receives the name of the stage that stopped a scan.
type RejectRecorder interface {
	RecordGateReject(stage string)
}

type PipelineOption func(*Pipeline)

func WithLogger(l *logger.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

func WithRejectRecorder(r RejectRecorder) PipelineOption {
	return func(p *Pipeline) { p.rec = r }
}

// Pipeline evaluates stages in order and stops at the first failure.
type Pipeline struct {
	stages []Stage
	log    *logger.Logger
	rec    RejectRecorder
}

func NewPipeline(stages []Stage, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{stages: stages, log: logger.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the stage names in evaluation order.
func (p *Pipeline) Stages() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name()
	}
	return out
}

func (p *Pipeline) Run(ctx context.Context, snap *Snapshot) Decision {
	d := Decision{Trace: make([]StageResult, 0, len(p.stages))}
	if snap == nil || len(snap.Bars) == 0 {
		d.FailedStage, d.Reason = "input", "no bars"
		return d
	}

	ev := Evidence{}
	for _, stage := range p.stages {
		v := stage.Evaluate(ctx, snap, ev)
		d.Trace = append(d.Trace, StageResult{Stage: stage.Name(), Pass: v.Pass, Reason: v.Reason})
		if !v.Pass {
			d.FailedStage = stage.Name()
			d.Reason = v.Reason
			d.Evidence = ev
			if p.rec != nil {
				p.rec.RecordGateReject(stage.Name())
			}
			p.log.Debug("gate rejected",
				logger.String("symbol", snap.Symbol),
				logger.String("stage", stage.Name()),
				logger.String("reason", v.Reason),
			)
			return d
		}
		ev = v.Evidence
	}

	d.Passed = true
	d.Evidence = ev
	return d
}
