package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
)

// Step transforms a frame into a new frame.
type Step interface {
	Name() string
	Apply(f *frame.Frame) (*frame.Frame, error)
}

// StepFunc adapts a function to a Step.
type StepFunc struct {
	StepName string
	Fn       func(f *frame.Frame) (*frame.Frame, error)
}

func (s StepFunc) Name() string { return s.StepName }

func (s StepFunc) Apply(f *frame.Frame) (*frame.Frame, error) { return s.Fn(f) }

// Observer is told the row counts around every step.
type Observer func(step string, rowsIn, rowsOut int)

// Pipeline chains multiple steps.
type Pipeline struct {
	steps    []Step
	logger   *zap.Logger
	observer Observer
}

func NewPipeline(logger *zap.Logger, steps ...Step) *Pipeline {
	return &Pipeline{steps: steps, logger: logger}
}

// Observe registers fn to receive row counts. It returns p for chaining.
func (p *Pipeline) Observe(fn Observer) *Pipeline {
	p.observer = fn
	return p
}

// Run applies every step in order. The input frame is not modified.
func (p *Pipeline) Run(f *frame.Frame) (*frame.Frame, error) {
	out := f
	for _, step := range p.steps {
		in := out.Len()
		next, err := step.Apply(out)
		if err != nil {
			return nil, fmt.Errorf("pipeline: step %s: %w", step.Name(), err)
		}
		out = next
		p.logger.Debug("step applied",
			zap.String("step", step.Name()),
			zap.Int("rows_in", in),
			zap.Int("rows_out", out.Len()),
		)
		if p.observer != nil {
			p.observer(step.Name(), in, out.Len())
		}
	}
	return out, nil
}
