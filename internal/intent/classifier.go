// Package intent maps free-text citizen messages into structured
// intents. The LLM behind it is an external collaborator; the rest of
// the system only depends on the Classifier interface.
package intent

import (
	"context"

	"github.com/govbridge/govchat/internal/models"
)

// Classifier turns one message into a structured intent.
type Classifier interface {
	Classify(ctx context.Context, text string, language models.Language) (*models.Intent, error)
}

// Schema lists the entities each service's lookup requires. It is both
// advertised to the classifier prompt and used to prompt citizens for
// missing fields.
var Schema = map[models.Service][]string{
	models.ServiceBirthCertificate: {"reference"},
	models.ServiceNationalID:       {"reference"},
	models.ServiceTaxStatus:        {"reference"},
	models.ServicePensionBalance:   {"reference"},
	models.ServiceLandTitle:        {"reference"},
}

// FieldLabel is the human name for an entity field used in prompts to
// the citizen.
func FieldLabel(service models.Service, field string) string {
	if field != "reference" {
		return field
	}
	switch service {
	case models.ServiceBirthCertificate:
		return "birth certificate application number (e.g. NIRA/2023/123456)"
	case models.ServiceNationalID:
		return "national ID number (14 characters)"
	case models.ServiceTaxStatus:
		return "TIN (10 digits)"
	case models.ServicePensionBalance:
		return "pension membership number (13 digits)"
	case models.ServiceLandTitle:
		return "land title reference (e.g. KYADONDO-217/1375)"
	default:
		return "reference number"
	}
}
