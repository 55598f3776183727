package monitoring

import (
	"context"
	"fmt"
	"time"

	"loadcast/internal/dataset"
	"loadcast/internal/training"
	xhttp "loadcast/pkg/http"
	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
)

// Config holds the check thresholds and the health probe target.
type Config struct {
	DriftThreshold float64 // KS p-value below this flags drift
	MAPEThreshold  float64 // MAPE above this flags degradation
	HealthURL      string  // serving /info endpoint, empty disables the check
	HealthTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.DriftThreshold <= 0 {
		c.DriftThreshold = 0.05
	}
	if c.MAPEThreshold <= 0 {
		c.MAPEThreshold = 0.15
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 5 * time.Second
	}
}

// CheckResult is the outcome of one check in a cycle.
type CheckResult struct {
	Name    string `json:"name"`
	Flagged bool   `json:"flagged"`
	Skipped bool   `json:"skipped"`
	Detail  string `json:"detail,omitempty"`
}

// Report summarizes one monitoring cycle.
type Report struct {
	Drift       CheckResult `json:"drift"`
	Performance CheckResult `json:"performance"`
	Health      CheckResult `json:"health"`
	Alerts      int         `json:"alerts"`
	RanAt       time.Time   `json:"ran_at"`
}

// driftColumns are checked against the reference distribution: the raw value
// plus the calendar columns that shift when the sampling pattern changes.
func driftColumns(valueCol string) []string {
	return []string{valueCol, dataset.FeatHour, dataset.FeatDayOfWeek}
}

// Monitor runs drift, performance, and serving-health checks against a
// reference window. Checks are independent; a missing input skips its check
// rather than failing the cycle.
type Monitor struct {
	reference *dataset.Frame
	valueCol  string
	cfg       Config
	sinks     []AlertSink
	client    *xhttp.Client
	logger    *logger.Logger
	recorder  *metrics.Recorder
}

// NewMonitor creates a Monitor. The reference frame may be nil; the drift
// check then reports skipped until SetReference is called.
func NewMonitor(reference *dataset.Frame, valueCol string, cfg Config, sinks []AlertSink, log *logger.Logger, rec *metrics.Recorder) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		reference: reference,
		valueCol:  valueCol,
		cfg:       cfg,
		sinks:     sinks,
		client:    xhttp.NewClient(xhttp.WithTimeout(cfg.HealthTimeout)),
		logger:    log,
		recorder:  rec,
	}
}

// SetReference replaces the reference window, typically after a new run.
func (m *Monitor) SetReference(reference *dataset.Frame, valueCol string) {
	m.reference = reference
	m.valueCol = valueCol
}

// CheckDrift compares one column's current distribution against the
// reference. Returns (flagged, p-value). Columns with fewer than two
// observations on either side are skipped, never failed.
func (m *Monitor) CheckDrift(current *dataset.Frame, column string) (bool, float64, error) {
	if m.reference == nil {
		return false, 0, fmt.Errorf("%w: no reference window", ErrTooFewObservations)
	}
	ref := m.reference.NonMissing(column)
	cur := current.NonMissing(column)

	_, p, err := KSTest(ref, cur)
	if err != nil {
		return false, 0, err
	}
	return p < m.cfg.DriftThreshold, p, nil
}

// CheckPerformance flags MAPE above the threshold, using the training
// package's conventions for zero actuals and non-finite predictions.
func (m *Monitor) CheckPerformance(preds, actuals []float64) (bool, float64) {
	mape := training.MAPE(actuals, preds)
	return mape > m.cfg.MAPEThreshold, mape
}

// CheckHealth probes the serving info endpoint. A non-2xx response or a
// connection failure is unhealthy.
func (m *Monitor) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.HealthTimeout)
	defer cancel()
	return m.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    m.cfg.HealthURL,
	}, nil)
}

// RunChecks runs one full cycle. Each flagged check emits exactly one alert;
// sink failures are logged and never abort the cycle.
func (m *Monitor) RunChecks(ctx context.Context, current *dataset.Frame, preds, actuals []float64) Report {
	report := Report{RanAt: time.Now().UTC()}

	// Drift across the monitored columns; one alert per cycle at most.
	if current == nil || m.reference == nil {
		report.Drift = CheckResult{Name: "drift", Skipped: true, Detail: "no current or reference window"}
		m.recorder.RecordDriftCheck("skipped")
	} else {
		var drifted []string
		checked := 0
		for _, col := range driftColumns(m.valueCol) {
			flagged, p, err := m.CheckDrift(current, col)
			if err != nil {
				m.logger.Debug("drift check skipped",
					logger.String("column", col), logger.Error(err))
				continue
			}
			checked++
			if flagged {
				drifted = append(drifted, fmt.Sprintf("%s (p=%.4f)", col, p))
			}
		}
		switch {
		case checked == 0:
			report.Drift = CheckResult{Name: "drift", Skipped: true, Detail: "no comparable columns"}
			m.recorder.RecordDriftCheck("skipped")
		case len(drifted) > 0:
			report.Drift = CheckResult{Name: "drift", Flagged: true, Detail: fmt.Sprintf("distribution shift in %v", drifted)}
			m.recorder.RecordDriftCheck("drift")
			m.emit(ctx, Alert{
				Severity:  SeverityWarning,
				Component: "drift",
				Message:   report.Drift.Detail,
				Timestamp: report.RanAt,
			})
			report.Alerts++
		default:
			report.Drift = CheckResult{Name: "drift"}
			m.recorder.RecordDriftCheck("ok")
		}
	}

	// Performance.
	if len(preds) == 0 || len(actuals) == 0 {
		report.Performance = CheckResult{Name: "performance", Skipped: true, Detail: "no prediction/actual pairs"}
	} else {
		flagged, mape := m.CheckPerformance(preds, actuals)
		if flagged {
			report.Performance = CheckResult{Name: "performance", Flagged: true, Detail: fmt.Sprintf("MAPE %.4f above threshold %.4f", mape, m.cfg.MAPEThreshold)}
			m.emit(ctx, Alert{
				Severity:  SeverityCritical,
				Component: "performance",
				Message:   report.Performance.Detail,
				Timestamp: report.RanAt,
			})
			report.Alerts++
		} else {
			report.Performance = CheckResult{Name: "performance", Detail: fmt.Sprintf("MAPE %.4f", mape)}
		}
	}

	// Serving health.
	if m.cfg.HealthURL == "" {
		report.Health = CheckResult{Name: "health", Skipped: true, Detail: "no health URL configured"}
	} else if err := m.CheckHealth(ctx); err != nil {
		report.Health = CheckResult{Name: "health", Flagged: true, Detail: err.Error()}
		m.emit(ctx, Alert{
			Severity:  SeverityCritical,
			Component: "health",
			Message:   "serving endpoint unhealthy: " + err.Error(),
			Timestamp: report.RanAt,
		})
		report.Alerts++
	} else {
		report.Health = CheckResult{Name: "health"}
	}

	return report
}

func (m *Monitor) emit(ctx context.Context, alert Alert) {
	m.recorder.RecordAlert(alert.Severity, alert.Component)
	for _, sink := range m.sinks {
		if err := sink.Send(ctx, alert); err != nil {
			m.logger.Error("alert delivery failed",
				logger.String("component", alert.Component), logger.Error(err))
		}
	}
}
