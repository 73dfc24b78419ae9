package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "foundry.pipeline"

var tracer = otel.Tracer(instrumentationName)

// metrics are created on first use from the pipeline's meter.
type metrics struct {
	stageDuration metric.Float64Histogram
	stageSuccess  metric.Int64Counter
	stageFailure  metric.Int64Counter
	runDuration   metric.Float64Histogram
}

func (p *Pipeline) initMetrics() {
	p.metricsOnce.Do(func() {
		var failed []string
		var err error

		p.metrics.stageDuration, err = p.meter.Float64Histogram("foundry_stage_duration_seconds",
			metric.WithDescription("Time spent querying and executing a stage"),
			metric.WithUnit("s"),
		)
		if err != nil {
			failed = append(failed, "stage_duration: "+err.Error())
		}

		p.metrics.stageSuccess, err = p.meter.Int64Counter("foundry_stage_success_total",
			metric.WithDescription("Stages that completed successfully"),
		)
		if err != nil {
			failed = append(failed, "stage_success: "+err.Error())
		}

		p.metrics.stageFailure, err = p.meter.Int64Counter("foundry_stage_failure_total",
			metric.WithDescription("Stages that failed or were cancelled"),
		)
		if err != nil {
			failed = append(failed, "stage_failure: "+err.Error())
		}

		p.metrics.runDuration, err = p.meter.Float64Histogram("foundry_run_duration_seconds",
			metric.WithDescription("Duration of a whole build, clean or rebuild"),
			metric.WithUnit("s"),
		)
		if err != nil {
			failed = append(failed, "run_duration: "+err.Error())
		}

		if len(failed) > 0 {
			p.logger.Warn("some pipeline metrics are unavailable", map[string]any{"errors": failed})
		}
	})
}

func (p *Pipeline) recordStage(ctx context.Context, name string, phase Phase, start time.Time, err error) {
	p.initMetrics()
	attrs := metric.WithAttributes(
		attribute.String("stage.name", name),
		attribute.String("stage.phase", phase.Base().String()),
	)
	if p.metrics.stageDuration != nil {
		p.metrics.stageDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if err != nil {
		if p.metrics.stageFailure != nil {
			p.metrics.stageFailure.Add(ctx, 1, attrs)
		}
		return
	}
	if p.metrics.stageSuccess != nil {
		p.metrics.stageSuccess.Add(ctx, 1, attrs)
	}
}

func (p *Pipeline) recordRun(ctx context.Context, op string, start time.Time, err error) {
	p.initMetrics()
	if p.metrics.runDuration == nil {
		return
	}
	p.metrics.runDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("run.op", op),
		attribute.Bool("run.success", err == nil),
	))
}
