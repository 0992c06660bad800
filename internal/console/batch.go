package console

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/voxdeck/voxdeck/internal/backend"
)

// BatchState mirrors the backend's batch calling job listing.
type BatchState struct {
	Jobs                    []BatchJob `json:"jobs"`
	Loading                 bool       `json:"loading"`
	Error                   string     `json:"error,omitempty"`
	TotalJobs               int        `json:"total_jobs"`
	SuccessfulStatusUpdates int        `json:"successful_status_updates"`
	FailedStatusUpdates     int        `json:"failed_status_updates"`
	LastFetched             string     `json:"last_fetched,omitempty"`

	Creating    bool   `json:"creating"`
	CreateError string `json:"create_error,omitempty"`
}

// BatchSnapshot returns a copy of the batch calling state.
func (s *Store) BatchSnapshot() BatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batch
	b.Jobs = make([]BatchJob, len(s.batch.Jobs))
	copy(b.Jobs, s.batch.Jobs)
	return b
}

type batchStatusResponse struct {
	Jobs                    []batchJobWire `json:"jobs"`
	TotalJobs               *int           `json:"total_jobs"`
	SuccessfulStatusUpdates int            `json:"successful_status_updates"`
	FailedStatusUpdates     int            `json:"failed_status_updates"`
}

// FetchBatchStatus refreshes the job list. Each row's status, target
// count, and creation timestamp are derived by the precedence rules in
// normalize.go.
func (s *Store) FetchBatchStatus(ctx context.Context) Result {
	s.mu.Lock()
	s.batch.Loading = true
	s.batch.Error = ""
	s.mu.Unlock()

	var resp batchStatusResponse
	err := s.client.GetJSON(ctx, "/auth/agent/batch-calling-status", nil, &resp)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch.Loading = false
	if err != nil {
		s.batch.Error = errMessage(err)
		return failure(s.batch.Error)
	}

	jobs := make([]BatchJob, 0, len(resp.Jobs))
	for _, w := range resp.Jobs {
		jobs = append(jobs, normalizeBatchJob(w))
	}

	s.batch.Jobs = jobs
	s.batch.TotalJobs = len(jobs)
	if resp.TotalJobs != nil {
		s.batch.TotalJobs = *resp.TotalJobs
	}
	s.batch.SuccessfulStatusUpdates = resp.SuccessfulStatusUpdates
	s.batch.FailedStatusUpdates = resp.FailedStatusUpdates
	s.batch.LastFetched = time.Now().UTC().Format(time.RFC3339)
	return Result{Success: true}
}

// CreateBatchJobInput carries a new batch calling campaign. The targets
// file is a CSV or Excel sheet with one phone number column.
type CreateBatchJobInput struct {
	AgentName     string
	CallName      string
	TargetsFile   *FileUpload
	PhoneColumn   string
	ScheduledTime string
}

// CreateBatchJob submits a campaign and refreshes the job list.
func (s *Store) CreateBatchJob(ctx context.Context, in CreateBatchJobInput) Result {
	switch {
	case in.AgentName == "":
		return failure("agent_name is required")
	case in.CallName == "":
		return failure("call_name is required")
	case in.TargetsFile == nil:
		return failure("csv_file is required")
	}
	if in.PhoneColumn == "" {
		in.PhoneColumn = "phone"
	}

	s.mu.Lock()
	s.batch.Creating = true
	s.batch.CreateError = ""
	s.mu.Unlock()

	form := backend.NewForm().
		AddField("agent_name", in.AgentName).
		AddField("call_name", in.CallName).
		AddFile(&backend.FilePart{Field: "csv_file", Filename: in.TargetsFile.Filename, Content: in.TargetsFile.Content}).
		AddField("phone_column", in.PhoneColumn).
		AddField("scheduled_time", collapseSpaces(in.ScheduledTime))

	err := s.client.PostMultipart(ctx, "/auth/agent/batch-calling", form, nil)

	s.mu.Lock()
	s.batch.Creating = false
	if err != nil {
		s.batch.CreateError = errMessage(err)
	}
	s.mu.Unlock()

	if err != nil {
		return failure(errMessage(err))
	}

	if res := s.FetchBatchStatus(ctx); !res.Success {
		slog.Warn("batch status refresh after create failed", "error", res.Error)
	}
	return Result{Success: true}
}

// CancelBatchJob cancels a campaign by name and refreshes the job list.
func (s *Store) CancelBatchJob(ctx context.Context, callName string) Result {
	return s.batchAction(ctx, "/auth/agent/cancel-batch-calling", callName)
}

// RetryBatchJob retries a campaign by name and refreshes the job list.
func (s *Store) RetryBatchJob(ctx context.Context, callName string) Result {
	return s.batchAction(ctx, "/auth/agent/retry-batch-calling", callName)
}

// batchAction posts a campaign name through the encoding fallback
// chain, then refetches so derived status reflects the new state; the
// row is never optimistically patched.
func (s *Store) batchAction(ctx context.Context, path, callName string) Result {
	name := collapseSpaces(callName)
	if name == "" {
		return failure("call_name is required")
	}

	if err := s.postWithEncodingFallback(ctx, path, name); err != nil {
		return failure(errMessage(err))
	}

	if res := s.FetchBatchStatus(ctx); !res.Success {
		slog.Warn("batch status refresh after action failed", "error", res.Error)
	}
	return Result{Success: true}
}

// postWithEncodingFallback negotiates the body encoding against an
// inconsistently implemented backend: JSON first; a 422 means the
// field was not seen, so retry URL-encoded; if that also fails, retry
// multipart. Any other JSON failure surfaces immediately.
func (s *Store) postWithEncodingFallback(ctx context.Context, path, callName string) error {
	jsonErr := s.client.PostJSON(ctx, path, map[string]string{"call_name": callName}, nil)
	if jsonErr == nil {
		return nil
	}
	if !backend.IsStatus(jsonErr, 422) {
		return jsonErr
	}

	if s.metrics != nil {
		s.metrics.IncEncodingFallback(path, "form")
	}
	form := url.Values{}
	form.Set("call_name", callName)
	formErr := s.client.PostForm(ctx, path, form, nil)
	if formErr == nil {
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncEncodingFallback(path, "multipart")
	}
	mp := backend.NewForm().AddField("call_name", callName)
	return s.client.PostMultipart(ctx, path, mp, nil)
}
