package jobs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	v1 "vgate/internal/contracts/videojob/v1"
	"vgate/internal/pkg/errors"
	"vgate/internal/pkg/logger"
	"vgate/internal/ports"
)

// fakePublisher records every publish and returns a canned result.
type fakePublisher struct {
	mu        sync.Mutex
	published []v1.Record
	err       error
}

func (f *fakePublisher) Backend() string { return "fake" }
func (f *fakePublisher) Queue() string   { return "video-jobs" }
func (f *fakePublisher) Close() error    { return nil }

func (f *fakePublisher) Publish(ctx context.Context, job v1.Record) (ports.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, job)
	if f.err != nil {
		return ports.Ack{}, f.err
	}
	return ports.Ack{Backend: "fake", Queue: "video-jobs", MessageID: "m-" + job.JobID[:4]}, nil
}

func (f *fakePublisher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func newTestService(pub ports.QueuePublisher) *Service {
	return NewService(Deps{Publisher: pub, Log: logger.NewNop()})
}

func TestSubmit(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub)

	sub, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.calls() != 1 {
		t.Fatalf("expected exactly 1 publish, got %d", pub.calls())
	}
	if pub.published[0] != sub.Record {
		t.Errorf("published record %+v differs from returned %+v", pub.published[0], sub.Record)
	}
	if sub.Ack.MessageID == "" {
		t.Error("expected ack to be returned")
	}
}

func TestSubmitInvalidInputSkipsPublish(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub)

	for _, req := range []JobRequest{
		{ImageURL: "https://x/i.png", Date: "2025-01-24"},
		{AudioURL: "https://x/a.mp3", Date: "2025-01-24"},
		{AudioURL: "https://x/a.mp3", ImageURL: "https://x/i.png"},
	} {
		_, err := svc.Submit(context.Background(), req)
		if !errors.IsCode(err, errors.CodeValidation) {
			t.Errorf("expected validation error for %+v, got %v", req, err)
		}
	}

	if pub.calls() != 0 {
		t.Errorf("expected zero publishes, got %d", pub.calls())
	}
}

func TestSubmitPublishFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		code       errors.Code
		status     int
		wantFields map[string]any
	}{
		{
			name:   "transport",
			err:    ports.Transport(context.DeadlineExceeded),
			code:   errors.CodeUnavailable,
			status: 503,
			wantFields: map[string]any{
				"backend":   "fake",
				"retryable": true,
				"cause":     "context deadline exceeded",
			},
		},
		{
			name:   "transport without cause",
			err:    &ports.PublishError{Kind: ports.KindTransport},
			code:   errors.CodeUnavailable,
			status: 503,
			wantFields: map[string]any{
				"cause": "unknown",
			},
		},
		{
			name:   "backend status",
			err:    ports.Backend(503, "upstream down"),
			code:   errors.CodeQueue,
			status: 502,
			wantFields: map[string]any{
				"backend_status": 503,
				"backend_body":   "upstream down",
			},
		},
		{
			name:   "backend rejected",
			err:    ports.Rejected(`{"success":false}`),
			code:   errors.CodeQueue,
			status: 502,
			wantFields: map[string]any{
				"backend_body": `{"success":false}`,
			},
		},
		{
			name:   "unclassified",
			err:    fmt.Errorf("boom"),
			code:   errors.CodeInternal,
			status: 500,
			wantFields: map[string]any{
				"backend": "fake",
				"cause":   "boom",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{err: tt.err}
			svc := newTestService(pub)

			_, err := svc.Submit(context.Background(), validRequest())
			if err == nil {
				t.Fatal("expected error")
			}
			if pub.calls() != 1 {
				t.Errorf("expected exactly one attempt, got %d", pub.calls())
			}
			if got := errors.GetCode(err); got != tt.code {
				t.Errorf("expected code=%s, got %s", tt.code, got)
			}
			if got := errors.GetHTTPStatus(err); got != tt.status {
				t.Errorf("expected status=%d, got %d", tt.status, got)
			}
			fields := errors.GetFields(err)
			for k, want := range tt.wantFields {
				if fields[k] != want {
					t.Errorf("expected %s=%v, got %v", k, want, fields[k])
				}
			}
		})
	}
}

func TestSubmitRetryCreatesNewJob(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub)

	first, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if first.Record.JobID == second.Record.JobID {
		t.Error("expected distinct job ids for identical submissions")
	}
}

// logLines decodes every JSON record written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("log line is not json: %s", sc.Text())
		}
		out = append(out, m)
	}
	return out
}

func TestSubmitLogsCorrelation(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Output: &buf, ServiceName: "video-builder-web"})

	t.Run("enqueued", func(t *testing.T) {
		buf.Reset()
		svc := NewService(Deps{Publisher: &fakePublisher{}, Log: log})
		ctx := logger.ContextWithRequestID(context.Background(), "req-7")

		sub, err := svc.Submit(ctx, validRequest())
		if err != nil {
			t.Fatal(err)
		}

		lines := logLines(t, &buf)
		if len(lines) != 1 || lines[0]["msg"] != "job enqueued" {
			t.Fatalf("expected one enqueue record, got %v", lines)
		}
		want := map[string]any{
			"service":       "video-builder-web",
			"component":     "jobs",
			"request_id":    "req-7",
			"job_id":        sub.Record.JobID,
			"queue_backend": "fake",
			"queue":         "video-jobs",
			"final_key":     sub.Record.FinalKey,
			"message_id":    sub.Ack.MessageID,
		}
		for k, v := range want {
			if lines[0][k] != v {
				t.Errorf("expected %s=%v, got %v", k, v, lines[0][k])
			}
		}
	})

	t.Run("publish failure", func(t *testing.T) {
		buf.Reset()
		svc := NewService(Deps{Publisher: &fakePublisher{err: ports.Backend(500, "oops")}, Log: log})

		if _, err := svc.Submit(context.Background(), validRequest()); err == nil {
			t.Fatal("expected error")
		}

		lines := logLines(t, &buf)
		if len(lines) != 1 || lines[0]["level"] != "ERROR" {
			t.Fatalf("expected one error record, got %v", lines)
		}
		if id, _ := lines[0]["job_id"].(string); len(id) != 32 {
			t.Errorf("expected job_id on the failure record, got %v", lines[0]["job_id"])
		}
		if lines[0]["queue_backend"] != "fake" {
			t.Errorf("expected queue_backend on the failure record")
		}
		if _, ok := lines[0]["request_id"]; ok {
			t.Error("no request id was set")
		}
	})

	t.Run("validation reject", func(t *testing.T) {
		buf.Reset()
		svc := NewService(Deps{Publisher: &fakePublisher{}, Log: log})

		if _, err := svc.Submit(context.Background(), JobRequest{AudioURL: "https://x/a.mp3"}); err == nil {
			t.Fatal("expected error")
		}

		lines := logLines(t, &buf)
		if len(lines) != 1 || lines[0]["level"] != "DEBUG" || lines[0]["field"] != "image_url" {
			t.Fatalf("expected one debug reject record naming the field, got %v", lines)
		}
		if _, ok := lines[0]["job_id"]; ok {
			t.Error("a rejected request has no job id")
		}
	})
}
