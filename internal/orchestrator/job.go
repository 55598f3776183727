package orchestrator

import (
	"context"
	"fmt"
	"time"

	"loadcast/internal/prep"
	"loadcast/internal/store"
	"loadcast/internal/training"
	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
	"loadcast/pkg/queue"
)

// TypePipelineRun is the queue message type for pipeline runs.
const TypePipelineRun = "pipeline.run"

// RunPayload is the queue message body for one run.
type RunPayload struct {
	ProjectID string `json:"project_id"`
}

// RunJob executes the pipeline stages for one project: preparation, then
// training and selection. Each stage's outcome is committed to the store
// before the next stage starts, so a crash leaves an accurate state behind.
// Stage failures land the project in Error; the job itself never reports
// failure to the queue, a run is not retried blindly.
type RunJob struct {
	store    *store.Store
	prep     *prep.Processor
	trainer  *training.Trainer
	prefix   string
	logger   *logger.Logger
	recorder *metrics.Recorder
}

// NewRunJob creates the job handler.
func NewRunJob(st *store.Store, pr *prep.Processor, tr *training.Trainer, modelNamePrefix string, log *logger.Logger, rec *metrics.Recorder) *RunJob {
	return &RunJob{
		store:    st,
		prep:     pr,
		trainer:  tr,
		prefix:   modelNamePrefix,
		logger:   log,
		recorder: rec,
	}
}

func (j *RunJob) Name() string { return "pipeline-runner" }
func (j *RunJob) Type() string { return TypePipelineRun }

// Handle runs the pipeline. It always returns nil: a failed stage is a
// terminal project state, not a transient queue error.
func (j *RunJob) Handle(ctx context.Context, payload interface{}) error {
	body, err := queue.ParsePayload[RunPayload](payload)
	if err != nil {
		j.logger.Error("run job: bad payload", logger.Error(err))
		return nil
	}

	p, err := j.store.GetProject(ctx, body.ProjectID)
	if err != nil {
		j.logger.Error("run job: project lookup failed",
			logger.String("project_id", body.ProjectID), logger.Error(err))
		return nil
	}

	// Stage 1: preparation.
	stageStart := time.Now()
	frame, processedPath, err := j.prep.Process(ctx, p.RawSource, p.DatetimeCol, p.ValueCol)
	if err != nil {
		j.fail(ctx, p.ID, "preparation", err)
		return nil
	}
	j.recorder.RecordStageDuration("preparation", time.Since(stageStart).Seconds())

	if err := j.store.UpdateProject(ctx, p.ID, map[string]interface{}{
		"processed_path": processedPath,
		"status":         string(store.StatusProcessed),
	}); err != nil {
		j.fail(ctx, p.ID, "persist processed state", err)
		return nil
	}

	// Stage 2: training and selection.
	stageStart = time.Now()
	modelName := j.prefix + p.Name
	result, err := j.trainer.Run(ctx, frame, modelName, p.ValueCol)
	if err != nil {
		j.fail(ctx, p.ID, "training", err)
		return nil
	}
	j.recorder.RecordStageDuration("training", time.Since(stageStart).Seconds())

	if err := j.store.UpdateProject(ctx, p.ID, map[string]interface{}{
		"model_name":    result.ModelName,
		"model_version": result.Version,
		"status":        string(store.StatusReady),
	}); err != nil {
		j.fail(ctx, p.ID, "persist model reference", err)
		return nil
	}

	j.recorder.RecordRunFinished("ready")
	j.logger.Info("run complete",
		logger.String("project_id", p.ID),
		logger.String("model", result.ModelName),
		logger.Int("version", result.Version),
		logger.String("family", string(result.Family)))
	return nil
}

func (j *RunJob) fail(ctx context.Context, projectID, stage string, cause error) {
	msg := fmt.Sprintf("%s: %v", stage, cause)
	if err := j.store.UpdateProject(ctx, projectID, map[string]interface{}{
		"status":        string(store.StatusError),
		"error_message": msg,
	}); err != nil {
		j.logger.Error("run job: failed to record error state",
			logger.String("project_id", projectID), logger.Error(err))
	}
	j.recorder.RecordRunFinished("error")
	j.logger.Error("run failed",
		logger.String("project_id", projectID),
		logger.String("stage", stage),
		logger.Error(cause))
}
