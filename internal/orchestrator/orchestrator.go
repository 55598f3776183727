package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"loadcast/internal/prep"
	"loadcast/internal/store"
	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
	"loadcast/pkg/queue"
)

var (
	// ErrConflict means another run owns the project right now.
	ErrConflict = errors.New("run already in progress")

	// ErrPreconditionFailed means the project is not in a state that allows
	// the requested transition.
	ErrPreconditionFailed = errors.New("precondition failed")
)

// submitFrom are the states from which new data may be attached.
var submitFrom = []store.Status{store.StatusNew, store.StatusDataUploaded, store.StatusReady, store.StatusError}

// runFrom are the states from which a run may start.
var runFrom = []store.Status{store.StatusDataUploaded, store.StatusReady, store.StatusError}

// StatusInfo is the externally visible run state of a project.
type StatusInfo struct {
	Status        store.Status `json:"status"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	ProcessedPath string       `json:"processed_path,omitempty"`
	ModelName     string       `json:"model_name,omitempty"`
	ModelVersion  int          `json:"model_version,omitempty"`
}

// Orchestrator drives the project lifecycle: data submission, run start and
// status reads. The actual pipeline work happens in RunJob; correctness of
// concurrent starts rests on the store's status compare-and-set.
type Orchestrator struct {
	store    *store.Store
	prep     *prep.Processor
	queue    queue.QueueService
	logger   *logger.Logger
	recorder *metrics.Recorder
}

// New creates an Orchestrator.
func New(st *store.Store, pr *prep.Processor, q queue.QueueService, log *logger.Logger, rec *metrics.Recorder) *Orchestrator {
	return &Orchestrator{
		store:    st,
		prep:     pr,
		queue:    q,
		logger:   log,
		recorder: rec,
	}
}

// SubmitData attaches a raw data reference to the project and moves it to
// DataUploaded. Rejected while a run is processing.
func (o *Orchestrator) SubmitData(ctx context.Context, projectID, source, datetimeCol, valueCol string) error {
	if _, err := o.store.GetProject(ctx, projectID); err != nil {
		return err
	}
	if err := o.prep.Resolve(ctx, source); err != nil {
		return err
	}

	ok, err := o.store.CompareAndSetStatus(ctx, projectID, submitFrom, store.StatusDataUploaded)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: project %s is processing", ErrConflict, projectID)
	}

	if err := o.store.UpdateProject(ctx, projectID, map[string]interface{}{
		"raw_source":   source,
		"datetime_col": datetimeCol,
		"value_col":    valueCol,
	}); err != nil {
		return err
	}

	o.logger.Info("data submitted",
		logger.String("project_id", projectID),
		logger.String("source", source))
	return nil
}

// StartRun begins the asynchronous pipeline for a project. Returns
// ErrConflict when another run holds the project and ErrPreconditionFailed
// when no usable raw data reference exists or the state forbids a start.
func (o *Orchestrator) StartRun(ctx context.Context, projectID string, horizon int, granularity, unit string) error {
	p, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p.RawSource == "" {
		return fmt.Errorf("%w: no data submitted", ErrPreconditionFailed)
	}
	if err := o.prep.Resolve(ctx, p.RawSource); err != nil {
		return fmt.Errorf("%w: raw data unreadable: %v", ErrPreconditionFailed, err)
	}

	ok, err := o.store.CompareAndSetStatus(ctx, projectID, runFrom, store.StatusProcessing)
	if err != nil {
		return err
	}
	if !ok {
		cur, err := o.store.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if cur.Status == store.StatusProcessing {
			return fmt.Errorf("%w: project %s", ErrConflict, projectID)
		}
		return fmt.Errorf("%w: cannot start from state %s", ErrPreconditionFailed, cur.Status)
	}

	// Prior artifacts are stale the moment a new run begins.
	if err := o.store.UpdateProject(ctx, projectID, map[string]interface{}{
		"processed_path": "",
		"model_name":     "",
		"model_version":  0,
		"error_message":  "",
		"horizon":        horizon,
		"granularity":    granularity,
		"target_unit":    unit,
	}); err != nil {
		return err
	}

	if err := o.queue.PublishMessage(ctx, TypePipelineRun, RunPayload{ProjectID: projectID}); err != nil {
		// Roll the status back so a later start is possible.
		o.store.SetStatus(ctx, projectID, store.StatusError)
		o.store.UpdateProject(ctx, projectID, map[string]interface{}{
			"error_message": "failed to enqueue run: " + err.Error(),
		})
		return fmt.Errorf("enqueue run: %w", err)
	}

	o.recorder.RecordRunStarted("api")
	o.logger.Info("run started", logger.String("project_id", projectID))
	return nil
}

// GetStatus reports the current lifecycle state and artifact references.
func (o *Orchestrator) GetStatus(ctx context.Context, projectID string) (*StatusInfo, error) {
	p, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &StatusInfo{
		Status:        p.Status,
		ErrorMessage:  p.ErrorMessage,
		ProcessedPath: p.ProcessedPath,
		ModelName:     p.ModelName,
		ModelVersion:  p.ModelVersion,
	}, nil
}
