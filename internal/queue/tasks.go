package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeGenerateBatch = "images:generate_batch"

type GenerateBatchPayload struct {
	BatchID     string    `json:"batch_id"`
	ProjectID   string    `json:"project_id"`
	AudienceID  string    `json:"audience_id"`
	WebhookURL  string    `json:"webhook_url,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewGenerateBatchTask(payload GenerateBatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generate payload: %w", err)
	}
	return asynq.NewTask(TypeGenerateBatch, body), nil
}

func ParseGenerateBatchPayload(task *asynq.Task) (GenerateBatchPayload, error) {
	var payload GenerateBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return GenerateBatchPayload{}, fmt.Errorf("unmarshal generate payload: %w", err)
	}
	return payload, nil
}
