package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/govbridge/govchat/internal/models"
)

const SystemPrompt = `You are the language-understanding component of a citizen services assistant for government portals (civil registration, tax, pension, land records). Your job is to map one citizen message into a structured intent.

IMPORTANT RULES:
1. Pick exactly ONE service, even if the message mentions several; use the first one mentioned
2. Extract entities (reference numbers, IDs) from the message text
3. List every required entity you could NOT extract under "missing_fields"
4. Do not invent or guess entity values
5. The citizen writes in language code %q; entity values are copied verbatim regardless of language

RESPONSE FORMAT:
You must respond with a valid JSON object in this exact format:
{
  "service": "service_name",
  "operation": "status_check | lookup | form_submit",
  "entities": {
    "field_name": "extracted_value"
  },
  "missing_fields": ["field_name"]
}

Available services:
%s

Citizen message:
%s

Respond with the JSON object above and nothing else.`

func BuildClassifyPrompt(text string, language models.Language, schema map[models.Service][]string) string {
	return fmt.Sprintf(SystemPrompt, string(language), buildServicesSection(schema), text)
}

func buildServicesSection(schema map[models.Service][]string) string {
	var builder strings.Builder

	for _, service := range models.Services {
		fields := schema[service]
		builder.WriteString(fmt.Sprintf("- %s: requires [%s]\n",
			service,
			strings.Join(fields, ", ")))
	}

	return builder.String()
}

func ParseClassifierResponse(content string) (*models.Intent, error) {
	jsonContent := extractJSON(content)
	if jsonContent == "" {
		return nil, fmt.Errorf("no valid JSON found in response")
	}

	var intent models.Intent
	if err := json.Unmarshal([]byte(jsonContent), &intent); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if !intent.Service.Valid() {
		return nil, fmt.Errorf("unknown service %q in response", intent.Service)
	}
	if intent.Entities == nil {
		intent.Entities = make(map[string]string)
	}
	if intent.Operation == "" {
		intent.Operation = models.OpStatusCheck
	}

	return &intent, nil
}

func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content, "}")
	if end == -1 || end <= start {
		return ""
	}

	return content[start : end+1]
}
