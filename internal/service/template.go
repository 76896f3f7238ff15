// internal/service/template.go
package service

import (
	"strings"

	appErrors "github.com/safarnama/backoffice/internal/errors"
	"github.com/safarnama/backoffice/internal/model"
)

// RenderTemplate substitutes {placeholder} tokens with their values. Missing
// placeholders are left untouched.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		if v == "" {
			v = "<unknown>"
		}
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// RenderPreview renders the given template body for one customer, using the
// campaign's default variables overlaid with the customer's display fields.
// The approved template body lives upstream, so the caller supplies it.
func (s *CampaignService) RenderPreview(campaignID, customerID int, templateBody string) (string, error) {
	if strings.TrimSpace(templateBody) == "" {
		return "", appErrors.NewValidation("template_body", "must not be empty")
	}

	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return "", err
	}

	customer, err := s.CustomerRepo.GetByID(customerID)
	if err != nil {
		return "", err
	}
	if customer == nil {
		return "", appErrors.NewValidation("customer_id", "customer not found")
	}

	vars := model.MergeVariables(campaign.TemplateVars, "")
	vars["first_name"] = customer.FirstName
	vars["last_name"] = customer.LastName
	vars["location"] = customer.Location

	return RenderTemplate(templateBody, vars), nil
}
