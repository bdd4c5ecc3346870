package errors

import "fmt"

// ErrorHandler logs background job failures in a uniform shape. Jobs are
// best-effort, so handling a failure never re-queues anything.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError normalizes err, logs it against jobID and returns the normalized error.
func (h *ErrorHandler) HandleJobError(jobID string, err error) *StandardError {
	stdErr := Normalize(err)
	if stdErr == nil {
		return nil
	}

	fields := map[string]interface{}{
		"jobId":     jobID,
		"errorCode": string(stdErr.Code),
		"category":  string(stdErr.Category),
		"message":   stdErr.Message,
		"details":   stdErr.Details,
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	h.logger.Error("Job failed", fields)
	return stdErr
}

// HandlePanic converts a recovered panic value into a JOB_PANIC error and logs it.
func (h *ErrorHandler) HandlePanic(jobID string, recovered interface{}, stack []byte) *StandardError {
	stdErr := New(ErrCodeJobPanic, "Job panicked", fmt.Sprint(recovered))
	h.logger.Error("Job panicked", map[string]interface{}{
		"jobId":     jobID,
		"errorCode": string(stdErr.Code),
		"panic":     stdErr.Details,
		"stack":     string(stack),
	})
	return stdErr
}
