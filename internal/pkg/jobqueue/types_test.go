package jobqueue

import "testing"

func TestJobLifecycleMarks(t *testing.T) {
	job := &Job{ID: "job-1", Type: JobTypeSubscriptionRefresh, Status: JobStatusPending, MaxRetries: 3}

	job.MarkAsProcessing()
	if job.Status != JobStatusProcessing || job.ProcessedAt == nil {
		t.Fatalf("unexpected state after processing mark: %+v", job)
	}

	job.MarkAsFailed("upstream timeout")
	if job.Status != JobStatusFailed || job.RetryCount != 1 || job.ErrorMsg != "upstream timeout" {
		t.Fatalf("unexpected state after failure mark: %+v", job)
	}
	if !job.IsRetryable() {
		t.Fatalf("expected job to be retryable after one failure")
	}

	job.MarkAsFailed("upstream timeout")
	job.MarkAsFailed("upstream timeout")
	if job.IsRetryable() {
		t.Fatalf("expected retries to be exhausted at max")
	}

	job.MarkAsCompleted()
	if job.Status != JobStatusCompleted || job.CompletedAt == nil {
		t.Fatalf("unexpected state after completion mark: %+v", job)
	}
}

func TestPayloadString(t *testing.T) {
	job := &Job{Payload: map[string]interface{}{"user_id": "user_1", "count": 3}}

	if got := job.PayloadString("user_id"); got != "user_1" {
		t.Fatalf("PayloadString(user_id) = %q", got)
	}
	if got := job.PayloadString("count"); got != "" {
		t.Fatalf("non-string payload field must read empty, got %q", got)
	}
	if got := job.PayloadString("missing"); got != "" {
		t.Fatalf("missing payload field must read empty, got %q", got)
	}
}
