package provider

import (
	"context"
	"fmt"
)

// TaskType classifies a generation request and selects routing and cache policy.
type TaskType string

const (
	TaskPRD      TaskType = "prd"
	TaskStory    TaskType = "story"
	TaskAnalysis TaskType = "analysis"
	TaskChat     TaskType = "chat"
)

func ParseTaskType(s string) (TaskType, error) {
	switch TaskType(s) {
	case TaskPRD, TaskStory, TaskAnalysis, TaskChat:
		return TaskType(s), nil
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

type Request struct {
	TaskType    TaskType
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
	// Metadata for routing and audit
	TenantID  string
	UserID    string
	RequestID string
}

type Response struct {
	ID           string
	Content      string
	InputTokens  int
	OutputTokens int
	// UsageReported is false when the backend omitted token counts and
	// they must be estimated downstream.
	UsageReported bool
	Model         string
	Provider      string
	LatencyMs     int64
}

type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	Name() string
}
