package console

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
)

const batchStatusBody = `{"jobs":[
	{"batch_job_id":"b-1","call_name":"q3 launch","agent_name":"Bot","agent_id":"a-1",
	 "local_record":{"updated_status":"pending","total_numbers":40,"created_at":"2026-08-01T10:00:00Z"},
	 "elevenlabs_live_status":{"status":"in_progress","total_calls_scheduled":99}}
],"total_jobs":1,"successful_status_updates":1,"failed_status_updates":0}`

func TestFetchBatchStatusDerivesFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/agent/batch-calling-status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(batchStatusBody))
	})
	s := newConsoleStore(t, mux)

	if res := s.FetchBatchStatus(context.Background()); !res.Success {
		t.Fatal(res.Error)
	}

	b := s.BatchSnapshot()
	if len(b.Jobs) != 1 {
		t.Fatalf("jobs: %+v", b.Jobs)
	}
	j := b.Jobs[0]
	if j.Status != "in_progress" {
		t.Errorf("live status must win: %q", j.Status)
	}
	if j.TotalNumbers != 40 {
		t.Errorf("local count must win: %d", j.TotalNumbers)
	}
	if j.CreatedAt != "2026-08-01T10:00:00Z" {
		t.Errorf("local ISO must win: %q", j.CreatedAt)
	}
	if b.TotalJobs != 1 || b.LastFetched == "" {
		t.Errorf("bookkeeping: %+v", b)
	}
}

// Cancel negotiates the body encoding: JSON first, URL-encoded form on a
// 422, multipart if the form attempt also fails.
func TestCancelEncodingFallbackChain(t *testing.T) {
	var encodings []string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/agent/cancel-batch-calling", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		switch {
		case strings.HasPrefix(ct, "application/json"):
			encodings = append(encodings, "json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":[{"msg":"field required"}]}`))
		case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
			encodings = append(encodings, "form")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"still no"}`))
		case strings.HasPrefix(ct, "multipart/form-data"):
			encodings = append(encodings, "multipart")
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("multipart parse: %v", err)
			}
			if got := r.FormValue("call_name"); got != "q3 launch" {
				t.Errorf("call_name: %q", got)
			}
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected content type %q", ct)
		}
	})
	mux.HandleFunc("/auth/agent/batch-calling-status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(batchStatusBody))
	})
	s := newConsoleStore(t, mux)

	res := s.CancelBatchJob(context.Background(), "  q3   launch ")
	if !res.Success {
		t.Fatalf("cancel: %+v", res)
	}
	want := []string{"json", "form", "multipart"}
	if len(encodings) != 3 || encodings[0] != want[0] || encodings[1] != want[1] || encodings[2] != want[2] {
		t.Fatalf("fallback order: %v", encodings)
	}
}

func TestCancelStopsOnNon422JSONError(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/agent/cancel-batch-calling", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"no such campaign"}`))
	})
	s := newConsoleStore(t, mux)

	res := s.CancelBatchJob(context.Background(), "missing")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "no such campaign" {
		t.Errorf("error: %q", res.Error)
	}
	if hits.Load() != 1 {
		t.Errorf("a 404 must not trigger encoding fallbacks, got %d hits", hits.Load())
	}
}

func TestRetryRefetchesOnSuccess(t *testing.T) {
	var statusFetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/agent/retry-batch-calling", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/auth/agent/batch-calling-status", func(w http.ResponseWriter, r *http.Request) {
		statusFetches.Add(1)
		w.Write([]byte(batchStatusBody))
	})
	s := newConsoleStore(t, mux)

	if res := s.RetryBatchJob(context.Background(), "q3 launch"); !res.Success {
		t.Fatal(res.Error)
	}
	if statusFetches.Load() != 1 {
		t.Errorf("expected a full refetch after retry, got %d", statusFetches.Load())
	}
	if len(s.BatchSnapshot().Jobs) != 1 {
		t.Error("expected refreshed jobs cached")
	}
}

func TestCancelRequiresCallName(t *testing.T) {
	s := newConsoleStore(t, http.NewServeMux())
	if res := s.CancelBatchJob(context.Background(), "   "); res.Success || res.Error != "call_name is required" {
		t.Fatalf("expected validation error, got %+v", res)
	}
}

func TestCreateBatchJob(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/agent/batch-calling", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("multipart parse: %v", err)
		}
		if got := r.FormValue("phone_column"); got != "phone" {
			t.Errorf("default phone column: %q", got)
		}
		f, hdr, err := r.FormFile("csv_file")
		if err != nil {
			t.Fatalf("csv_file: %v", err)
		}
		f.Close()
		if hdr.Filename != "targets.csv" {
			t.Errorf("filename: %q", hdr.Filename)
		}
		w.Write([]byte(`{"queued":true}`))
	})
	mux.HandleFunc("/auth/agent/batch-calling-status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(batchStatusBody))
	})
	s := newConsoleStore(t, mux)

	res := s.CreateBatchJob(context.Background(), CreateBatchJobInput{
		AgentName:   "Bot",
		CallName:    "q3 launch",
		TargetsFile: &FileUpload{Filename: "targets.csv", Content: []byte("phone\n+15550102030\n")},
	})
	if !res.Success {
		t.Fatalf("create: %+v", res)
	}
	if b := s.BatchSnapshot(); b.Creating || b.CreateError != "" {
		t.Errorf("create bookkeeping: %+v", b)
	}
}

func TestCreateBatchJobValidation(t *testing.T) {
	s := newConsoleStore(t, http.NewServeMux())
	res := s.CreateBatchJob(context.Background(), CreateBatchJobInput{AgentName: "Bot", CallName: "x"})
	if res.Success || res.Error != "csv_file is required" {
		t.Fatalf("expected validation error, got %+v", res)
	}
}
