package api

import "loadcast/internal/serving"

// CreateProjectRequest creates a forecasting project.
type CreateProjectRequest struct {
	Name string `json:"name" validate:"required,min=1,max=128"`
}

// SubmitDataRequest attaches a raw data reference to a project.
type SubmitDataRequest struct {
	Source      string `json:"source" validate:"required"`
	DatetimeCol string `json:"datetime_col" validate:"required"`
	ValueCol    string `json:"value_col" validate:"required"`
}

// StartRunRequest starts the asynchronous pipeline.
type StartRunRequest struct {
	Horizon     int    `json:"horizon" default:"24" validate:"gte=1,lte=8760"`
	Granularity string `json:"granularity" default:"hourly" validate:"oneof=hourly daily weekly"`
	TargetUnit  string `json:"target_unit" default:"kW"`
}

// PredictRequest is the HTTP body for model predictions; the dispatcher
// interprets it per model family.
type PredictRequest = serving.PredictRequest
