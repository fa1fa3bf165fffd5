package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govbridge/govchat/internal/models"
)

func TestParseClassifierResponse(t *testing.T) {
	content := `{
		"service": "tax_status",
		"operation": "status_check",
		"entities": {"reference": "1234567890"},
		"missing_fields": []
	}`

	intent, err := ParseClassifierResponse(content)
	require.NoError(t, err)
	assert.Equal(t, models.ServiceTaxStatus, intent.Service)
	assert.Equal(t, models.OpStatusCheck, intent.Operation)
	assert.Equal(t, "1234567890", intent.Entities["reference"])
	assert.True(t, intent.Complete())
}

func TestParseClassifierResponseWithSurroundingText(t *testing.T) {
	content := "Sure, here is the extracted intent:\n" +
		`{"service": "birth_certificate", "entities": {}, "missing_fields": ["reference"]}` +
		"\nLet me know if you need anything else."

	intent, err := ParseClassifierResponse(content)
	require.NoError(t, err)
	assert.Equal(t, models.ServiceBirthCertificate, intent.Service)
	assert.Equal(t, []string{"reference"}, intent.MissingFields)
	assert.False(t, intent.Complete())
}

func TestParseClassifierResponseDefaults(t *testing.T) {
	// Missing operation defaults to status_check; nil entities become an
	// empty map so callers can index without checking.
	intent, err := ParseClassifierResponse(`{"service": "pension_balance"}`)
	require.NoError(t, err)
	assert.Equal(t, models.OpStatusCheck, intent.Operation)
	assert.NotNil(t, intent.Entities)
}

func TestParseClassifierResponseErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no json", "I could not understand that message."},
		{"malformed", `{"service": "tax_status"`},
		{"unknown service", `{"service": "parking_permit"}`},
		{"empty service", `{"entities": {}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseClassifierResponse(tc.content)
			assert.Error(t, err)
		})
	}
}

func TestBuildClassifyPrompt(t *testing.T) {
	schema := map[models.Service][]string{
		models.ServiceTaxStatus: {"reference"},
	}

	prompt := BuildClassifyPrompt("check my tax status TIN 1234567890", models.LangEnglish, schema)
	assert.Contains(t, prompt, `"en"`)
	assert.Contains(t, prompt, "- tax_status: requires [reference]")
	assert.Contains(t, prompt, "check my tax status TIN 1234567890")
}

func TestReplyFallsBackToEnglish(t *testing.T) {
	assert.Equal(t, "Ombi lako limeghairiwa.", Reply(models.LangSwahili, ReplyCancelled))
	assert.Equal(t,
		Reply(models.LangEnglish, ReplyCancelled),
		Reply(models.Language("fr"), ReplyCancelled))
	assert.Equal(t,
		Reply(models.LangEnglish, ReplyFallback),
		Reply(models.LangEnglish, "no_such_key"))
}

func TestFormatResultStatusFirst(t *testing.T) {
	out := FormatResult(models.LangEnglish, models.ServiceTaxStatus, map[string]string{
		"balance_due": "0",
		"status":      "compliant",
		"tin":         "1234567890",
	})

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Here is your tax status result:", lines[0])
	assert.Equal(t, "- status: compliant", lines[1])
	assert.Equal(t, "- balance due: 0", lines[2])
	assert.Equal(t, "- tin: 1234567890", lines[3])
}
