// internal/gateway/mock.go
package gateway

import (
	"context"
	"math/rand"

	"github.com/google/uuid"
)

// MockClient is a scriptable gateway for tests and local development.
type MockClient struct {
	SendFunc func(ctx context.Context, phone, templateName, templateLanguage string, variables map[string]string) (*SendResult, error)
}

func (m *MockClient) Send(ctx context.Context, phone, templateName, templateLanguage string, variables map[string]string) (*SendResult, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, phone, templateName, templateLanguage, variables)
	}
	return &SendResult{Success: true, ProviderMessageID: uuid.New().String()}, nil
}

// NewFlaky returns a mock that succeeds with the given probability and
// otherwise reports a transient provider outage. Used by the worker in
// GATEWAY_MODE=mock.
func NewFlaky(successRate float64) *MockClient {
	return &MockClient{
		SendFunc: func(ctx context.Context, phone, templateName, templateLanguage string, variables map[string]string) (*SendResult, error) {
			if rand.Float64() < successRate {
				return &SendResult{Success: true, ProviderMessageID: uuid.New().String()}, nil
			}
			return &SendResult{ErrorCode: CodeUnavailable, ErrorMessage: "mock provider outage"}, nil
		},
	}
}
