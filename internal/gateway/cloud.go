// internal/gateway/cloud.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/safarnama/backoffice/internal/config"
)

// CloudClient talks to the WhatsApp Cloud API messages endpoint. Template
// body parameters are positional, so variables are sent in key order.
type CloudClient struct {
	http    *http.Client
	baseURL string
	phoneID string
	token   string
	log     *zap.Logger
}

func NewCloudClient(cfg config.GatewayConfig, log *zap.Logger) *CloudClient {
	return &CloudClient{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		phoneID: cfg.PhoneNumberID,
		token:   cfg.AccessToken,
		log:     log,
	}
}

type cloudParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type cloudComponent struct {
	Type       string           `json:"type"`
	Parameters []cloudParameter `json:"parameters"`
}

type cloudRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Template         struct {
		Name     string `json:"name"`
		Language struct {
			Code string `json:"code"`
		} `json:"language"`
		Components []cloudComponent `json:"components,omitempty"`
	} `json:"template"`
}

type cloudResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *CloudClient) Send(ctx context.Context, phone, templateName, templateLanguage string, variables map[string]string) (*SendResult, error) {
	body := cloudRequest{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "template",
	}
	body.Template.Name = templateName
	body.Template.Language.Code = templateLanguage

	if len(variables) > 0 {
		keys := make([]string, 0, len(variables))
		for k := range variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		comp := cloudComponent{Type: "body"}
		for _, k := range keys {
			comp.Parameters = append(comp.Parameters, cloudParameter{Type: "text", Text: variables[k]})
		}
		body.Template.Components = []cloudComponent{comp}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return &SendResult{ErrorCode: CodeTimeout, ErrorMessage: err.Error()}, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	var parsed cloudResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && len(parsed.Messages) > 0 {
		return &SendResult{Success: true, ProviderMessageID: parsed.Messages[0].ID}, nil
	}

	code := CodeUnknown
	message := resp.Status
	if parsed.Error != nil {
		code = mapCloudError(parsed.Error.Code, resp.StatusCode)
		message = parsed.Error.Message
	} else if resp.StatusCode == http.StatusTooManyRequests {
		code = CodeRateLimited
	} else if resp.StatusCode >= 500 {
		code = CodeUnavailable
	}

	c.log.Debug("gateway rejected send",
		zap.String("phone", phone),
		zap.String("template", templateName),
		zap.String("error_code", code),
		zap.Int("http_status", resp.StatusCode),
	)

	return &SendResult{ErrorCode: code, ErrorMessage: message}, nil
}

// mapCloudError normalizes WhatsApp Cloud API error codes into the engine's
// catalog.
func mapCloudError(providerCode, httpStatus int) string {
	switch providerCode {
	case 130429, 80007, 131048: // throughput / rate limits
		return CodeRateLimited
	case 131026, 131030: // undeliverable / not on allow list
		return CodeInvalidNumber
	case 131047: // re-engagement required
		return CodeWindowExpired
	case 132000, 132001, 132005, 132007: // template missing or rejected
		return CodeTemplateRejected
	case 131050: // user stopped marketing messages
		return CodeOptedOut
	}
	if httpStatus == http.StatusTooManyRequests {
		return CodeRateLimited
	}
	if httpStatus >= 500 {
		return CodeUnavailable
	}
	return CodeUnknown
}
