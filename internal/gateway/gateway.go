// internal/gateway/gateway.go
package gateway

import "context"

// SendResult is the gateway's answer for one message. The engine treats the
// gateway as opaque: it never retries internally, the dispatcher owns retry
// policy based on ErrorCode.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	ErrorCode         string
	ErrorMessage      string
}

// Client sends one templated message per call.
type Client interface {
	Send(ctx context.Context, phone, templateName, templateLanguage string, variables map[string]string) (*SendResult, error)
}

// ErrorKind partitions gateway error codes by retry policy.
type ErrorKind int

const (
	KindTransient ErrorKind = iota // retry under the cap
	KindPermanent                  // fail immediately, never retry
	KindOptOut                     // recipient opted out, terminal opted_out
)

// Normalized provider error codes.
const (
	CodeRateLimited      = "rate_limited"
	CodeTimeout          = "timeout"
	CodeUnavailable      = "temporarily_unavailable"
	CodeInvalidNumber    = "invalid_number"
	CodeTemplateRejected = "template_rejected"
	CodeWindowExpired    = "window_expired"
	CodeOptedOut         = "user_opted_out"
	CodeUnknown          = "unknown_error"
)

type codeInfo struct {
	Kind        ErrorKind
	Description string
}

// New provider codes are added here without touching the dispatcher's
// control flow.
var errorCatalog = map[string]codeInfo{
	CodeRateLimited:      {KindTransient, "Provider rate limit hit"},
	CodeTimeout:          {KindTransient, "Gateway request timed out"},
	CodeUnavailable:      {KindTransient, "Provider temporarily unavailable"},
	CodeInvalidNumber:    {KindPermanent, "Phone number is invalid or unreachable"},
	CodeTemplateRejected: {KindPermanent, "Message template rejected or not approved"},
	CodeWindowExpired:    {KindPermanent, "24-hour messaging window expired"},
	CodeOptedOut:         {KindOptOut, "Recipient has opted out of messages"},
	CodeUnknown:          {KindTransient, "Unclassified gateway error"},
}

// Classify maps a provider error code to its retry policy. Unknown codes are
// treated as transient so a new provider code cannot silently drop messages.
func Classify(code string) ErrorKind {
	if info, ok := errorCatalog[code]; ok {
		return info.Kind
	}
	return KindTransient
}

// Describe returns a human-readable description for the stats error breakdown.
func Describe(code string) string {
	if info, ok := errorCatalog[code]; ok {
		return info.Description
	}
	return "Unclassified gateway error"
}
