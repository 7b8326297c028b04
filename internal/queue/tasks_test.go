package queue

import (
	"testing"
	"time"
)

func TestGenerateBatchTaskRoundTrip(t *testing.T) {
	payload := GenerateBatchPayload{
		BatchID:     "batch-123",
		ProjectID:   "proj-7",
		AudienceID:  "aud-42",
		WebhookURL:  "https://hooks.example.com/adcanvas",
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewGenerateBatchTask(payload)
	if err != nil {
		t.Fatalf("NewGenerateBatchTask returned error: %v", err)
	}
	if task.Type() != TypeGenerateBatch {
		t.Fatalf("expected task type %q, got %q", TypeGenerateBatch, task.Type())
	}

	parsed, err := ParseGenerateBatchPayload(task)
	if err != nil {
		t.Fatalf("ParseGenerateBatchPayload returned error: %v", err)
	}

	if parsed.BatchID != payload.BatchID {
		t.Fatalf("expected batch_id %q, got %q", payload.BatchID, parsed.BatchID)
	}
	if parsed.AudienceID != payload.AudienceID {
		t.Fatalf("expected audience_id %q, got %q", payload.AudienceID, parsed.AudienceID)
	}
}
