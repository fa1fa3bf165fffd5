// Package validate checks service request payloads before they are
// allowed anywhere near a queue. Invalid input fails synchronously.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/govbridge/govchat/internal/models"
)

var validate = validator.New()

// ValidationError reports which field of a payload failed which rule.
type ValidationError struct {
	Service models.Service
	Field   string
	Rule    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s for %s (rule: %s)", e.Field, e.Service, e.Rule)
}

// Per-service payload shapes. Reference formats follow the portals'
// published numbering schemes.
type birthCertificatePayload struct {
	Reference string `validate:"required,nira_ref"`
}

type nationalIDPayload struct {
	Reference string `validate:"required,len=14,alphanum"`
}

type taxStatusPayload struct {
	Reference string `validate:"required,len=10,numeric"`
}

type pensionBalancePayload struct {
	Reference string `validate:"required,len=13,numeric"`
}

type landTitlePayload struct {
	Reference string `validate:"required,land_ref"`
}

func init() {
	// NIRA application references: NIRA/<year>/<6 digits>.
	validate.RegisterValidation("nira_ref", func(fl validator.FieldLevel) bool {
		parts := strings.Split(fl.Field().String(), "/")
		if len(parts) != 3 || !strings.EqualFold(parts[0], "NIRA") {
			return false
		}
		return allDigits(parts[1]) && len(parts[1]) == 4 &&
			allDigits(parts[2]) && len(parts[2]) == 6
	})

	// Land titles: <BLOCK>/<PLOT>, e.g. KYADONDO-217/1375.
	validate.RegisterValidation("land_ref", func(fl validator.FieldLevel) bool {
		parts := strings.Split(fl.Field().String(), "/")
		if len(parts) != 2 {
			return false
		}
		return parts[0] != "" && allDigits(parts[1]) && parts[1] != ""
	})
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ReferenceField is the payload key every lookup operation requires.
const ReferenceField = "reference"

// Payload validates the input payload for a service operation. Write
// operations (form submissions) only require a non-empty payload; read
// lookups must carry a well-formed reference.
func Payload(service models.Service, operation models.Operation, payload map[string]string) error {
	if operation == models.OpFormSubmit {
		if len(payload) == 0 {
			return &ValidationError{Service: service, Field: "payload", Rule: "required"}
		}
		return nil
	}

	ref := strings.TrimSpace(payload[ReferenceField])

	var target any
	switch service {
	case models.ServiceBirthCertificate:
		target = &birthCertificatePayload{Reference: ref}
	case models.ServiceNationalID:
		target = &nationalIDPayload{Reference: ref}
	case models.ServiceTaxStatus:
		target = &taxStatusPayload{Reference: ref}
	case models.ServicePensionBalance:
		target = &pensionBalancePayload{Reference: ref}
	case models.ServiceLandTitle:
		target = &landTitlePayload{Reference: ref}
	default:
		return &ValidationError{Service: service, Field: "service", Rule: "known"}
	}

	if err := validate.Struct(target); err != nil {
		rule := "format"
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			rule = verrs[0].Tag()
		}
		return &ValidationError{Service: service, Field: ReferenceField, Rule: rule}
	}
	return nil
}
