package models

import "time"

// Service identifies one external government portal domain.
type Service string

const (
	ServiceBirthCertificate Service = "birth_certificate"
	ServiceNationalID       Service = "national_id"
	ServiceTaxStatus        Service = "tax_status"
	ServicePensionBalance   Service = "pension_balance"
	ServiceLandTitle        Service = "land_title"
)

// Services lists every known service in a stable order.
var Services = []Service{
	ServiceBirthCertificate,
	ServiceNationalID,
	ServiceTaxStatus,
	ServicePensionBalance,
	ServiceLandTitle,
}

// Valid reports whether s is a known service.
func (s Service) Valid() bool {
	for _, known := range Services {
		if s == known {
			return true
		}
	}
	return false
}

// Operation is what the automator is asked to do against a portal.
type Operation string

const (
	OpStatusCheck Operation = "status_check"
	OpLookup      Operation = "lookup"
	OpFormSubmit  Operation = "form_submit"
)

// Cacheable reports whether results for this operation may be served
// from cache. Only idempotent reads qualify; form submissions never do.
func (o Operation) Cacheable() bool {
	return o == OpStatusCheck || o == OpLookup
}

// Language is a citizen's preferred reply language.
type Language string

const (
	LangEnglish Language = "en"
	LangLuganda Language = "lg"
	LangSwahili Language = "sw"
)

const DefaultLanguage = LangEnglish

// SupportedLanguages in a stable order.
var SupportedLanguages = []Language{LangEnglish, LangLuganda, LangSwahili}

// Valid reports whether l is a supported language code.
func (l Language) Valid() bool {
	for _, known := range SupportedLanguages {
		if l == known {
			return true
		}
	}
	return false
}

// Intent is the structured output of the classifier: which service the
// citizen wants, the operation, the entities already extracted from the
// conversation, and any entity still missing.
type Intent struct {
	Service       Service           `json:"service"`
	Operation     Operation         `json:"operation"`
	Entities      map[string]string `json:"entities"`
	MissingFields []string          `json:"missing_fields"`
}

// Complete reports whether every required entity has been collected.
func (i *Intent) Complete() bool {
	return len(i.MissingFields) == 0
}

// ServiceRequest is one unit of work for a service queue. InputPayload
// is validated structured data, never raw citizen text.
type ServiceRequest struct {
	RequestID    string            `json:"request_id"`
	SessionID    string            `json:"session_id"`
	Service      Service           `json:"service"`
	Operation    Operation         `json:"operation"`
	InputPayload map[string]string `json:"input_payload"`
	EnqueuedAt   time.Time         `json:"enqueued_at"`
	AttemptCount int               `json:"attempt_count"`
}

// ResultSource tells whether a result came from the cache or a live
// portal call.
type ResultSource string

const (
	SourceCache ResultSource = "cache"
	SourceLive  ResultSource = "live"
)

// ResultKind is the outcome taxonomy. KindOK marks success; every other
// kind maps to one user-facing failure message.
type ResultKind string

const (
	KindOK                 ResultKind = "ok"
	KindValidationError    ResultKind = "validation_error"
	KindBackpressure       ResultKind = "backpressure"
	KindServiceTimeout     ResultKind = "service_timeout"
	KindServiceError       ResultKind = "service_error"
	KindServiceUnavailable ResultKind = "service_unavailable"
	KindConflict           ResultKind = "conflict"
	KindUnknown            ResultKind = "unknown"
)

// ServiceResult is the single terminal outcome of a ServiceRequest.
// Every submitted request produces exactly one, success or failure.
type ServiceResult struct {
	RequestID     string            `json:"request_id"`
	Success       bool              `json:"success"`
	Kind          ResultKind        `json:"kind"`
	ResultPayload map[string]string `json:"result_payload,omitempty"`
	CompletedAt   time.Time         `json:"completed_at"`
	Source        ResultSource      `json:"source"`
	Attempts      int               `json:"attempts"`
}
