package hostbridge

import "fmt"

const (
	CodeValidation      = "VALIDATION"
	CodeNonSerializable = "NON_SERIALIZABLE_INPUT"
	CodeChartNotFound   = "CHART_NOT_FOUND"
	CodeHostUnavailable = "HOST_UNAVAILABLE"
	CodeEvalFailure     = "EVAL_FAILURE"
	CodeEvalTimeout     = "EVAL_TIMEOUT"
	CodeCDPUnavailable  = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable failure classification.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// ChartInfo describes a chart tab mapped from a browser target.
type ChartInfo struct {
	ChartID  string `json:"chart_id"`
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

// HostInfo is the geometry and axis extent snapshot probed from a chart
// host page at attach time.
type HostInfo struct {
	SeriesLength int     `json:"series_length"`
	PrimaryMax   float64 `json:"primary_max"`
	SecondaryMax float64 `json:"secondary_max"`
	DualAxis     bool    `json:"dual_axis"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
}

// AttachInfo reports the state of a completed attach.
type AttachInfo struct {
	ChartID      string  `json:"chart_id"`
	SeriesLength int     `json:"series_length"`
	Ratio        float64 `json:"ratio"`
	DualAxis     bool    `json:"dual_axis"`
}
