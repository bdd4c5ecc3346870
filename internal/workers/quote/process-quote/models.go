package processquote

import (
	dispatchquote "quote-service/internal/workers/quote/dispatch-quote"
)

const (
	StageTotal    = "compute_total"
	StageHTML     = "render_html"
	StagePDF      = "render_pdf"
	StageSave     = "save_pdf"
	StageArchive  = "archive_pdf"
	StageToken    = "issue_token"
	StageEmail    = "render_email"
	StageDispatch = "dispatch"

	StageStatusOK      = "ok"
	StageStatusFailed  = "failed"
	StageStatusSkipped = "skipped"
)

// StageResult records how one step of the job went. A failed stage never
// aborts the chain unless noted on the stage.
type StageResult struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type Output struct {
	JobID        string                `json:"jobId"`
	Total        float64               `json:"total"`
	DocumentName string                `json:"documentName,omitempty"`
	DownloadURL  string                `json:"downloadUrl,omitempty"`
	Stages       []StageResult         `json:"stages"`
	Dispatch     *dispatchquote.Output `json:"dispatch,omitempty"`
}

func (o *Output) Stage(name string) (StageResult, bool) {
	for _, s := range o.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageResult{}, false
}

func (o *Output) record(stage, status string, err error) {
	r := StageResult{Stage: stage, Status: status}
	if err != nil {
		r.Reason = err.Error()
	}
	o.Stages = append(o.Stages, r)
}
