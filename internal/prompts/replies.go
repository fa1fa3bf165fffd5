package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/govbridge/govchat/internal/models"
)

// Reply keys for the per-language catalog.
const (
	ReplyHelp               = "help"
	ReplyStatusIdle         = "status_idle"
	ReplyStatusAwaiting     = "status_awaiting"
	ReplyStatusProcessing   = "status_processing"
	ReplyCancelled          = "cancelled"
	ReplyNothingToCancel    = "nothing_to_cancel"
	ReplyLanguageChanged    = "language_changed"
	ReplyLanguageUnknown    = "language_unknown"
	ReplyLoggedOut          = "logged_out"
	ReplyAck                = "ack"
	ReplyAckQueued          = "ack_queued"
	ReplyAskField           = "ask_field"
	ReplyStillProcessing    = "still_processing"
	ReplyValidationError    = "validation_error"
	ReplyBackpressure       = "backpressure"
	ReplyServiceTimeout     = "service_timeout"
	ReplyServiceError       = "service_error"
	ReplyServiceUnavailable = "service_unavailable"
	ReplyFallback           = "fallback"
	ReplyResultHeader       = "result_header"
)

var catalog = map[models.Language]map[string]string{
	models.LangEnglish: {
		ReplyHelp:               "I can check birth certificate applications, national ID status, tax status, pension balances and land titles. Send me what you need, e.g. \"check my birth certificate NIRA/2023/123456\". Commands: cancel, status, language <en|lg|sw>, logout.",
		ReplyStatusIdle:         "You have no request in progress.",
		ReplyStatusAwaiting:     "I'm waiting for your %s to continue with %s.",
		ReplyStatusProcessing:   "Your %s request is being processed. I'll message you as soon as it's done.",
		ReplyCancelled:          "Your request has been cancelled.",
		ReplyNothingToCancel:    "There is nothing to cancel right now.",
		ReplyLanguageChanged:    "Language set to English.",
		ReplyLanguageUnknown:    "I don't support that language. Available: en, lg, sw.",
		ReplyLoggedOut:          "You have been logged out. Your session data was removed.",
		ReplyAck:                "Working on your %s request now. I'll reply shortly.",
		ReplyAckQueued:          "Your %s request is number %d in the queue (about %s). I'll message you when it's done.",
		ReplyAskField:           "Please send me your %s to continue.",
		ReplyStillProcessing:    "Your previous request is still being processed. Send 'cancel' to abandon it or 'status' to check on it.",
		ReplyValidationError:    "That %s doesn't look right. Please check the format and try again.",
		ReplyBackpressure:       "The %s service is very busy right now. Please try again in a few minutes.",
		ReplyServiceTimeout:     "The %s portal is not responding at the moment. Please try again later, or visit the nearest service centre.",
		ReplyServiceError:       "The %s portal rejected the request. Please verify your details, or visit the nearest service centre.",
		ReplyServiceUnavailable: "The %s service is temporarily unavailable. Please try again later.",
		ReplyFallback:           "Sorry, something went wrong on my side. Please try again.",
		ReplyResultHeader:       "Here is your %s result:",
	},
	models.LangLuganda: {
		ReplyHelp:               "Nsobola okukebera ebbaluwa y'amazaalibwa, endagamuntu, omusolo, ssente za pensheni n'ebyapa by'ettaka. Mpandikira ky'oyagala, okugeza: \"kebera ebbaluwa yange NIRA/2023/123456\". Ebiragiro: cancel, status, language <en|lg|sw>, logout.",
		ReplyStatusIdle:         "Tolina kusaba kugenda mu maaso.",
		ReplyStatusAwaiting:     "Nnindirira %s yo okugenda mu maaso ne %s.",
		ReplyStatusProcessing:   "Okusaba kwo okwa %s kukyakolebwako. Nnaakutegeeza nga kuwedde.",
		ReplyCancelled:          "Okusaba kwo kusaziddwamu.",
		ReplyNothingToCancel:    "Tewali kusaba kwa kusazaamu kati.",
		ReplyLanguageChanged:    "Olulimi lutegekeddwa ku Luganda.",
		ReplyLanguageUnknown:    "Olulimi olwo sirumanyi. Eziriwo: en, lg, sw.",
		ReplyLoggedOut:          "Ofulumye. Ebikwata ku session yo bisaziddwamu.",
		ReplyAck:                "Nkola ku kusaba kwo okwa %s kati. Nnaakuddamu mangu.",
		ReplyAckQueued:          "Okusaba kwo okwa %s kuli mu nnamba %d ku layini (nga %s). Nnaakutegeeza nga kuwedde.",
		ReplyAskField:           "Mpandikira %s yo tugende mu maaso.",
		ReplyStillProcessing:    "Okusaba kwo okusooka kukyakolebwako. Wandiika 'cancel' okusazaamu oba 'status' okukebera.",
		ReplyValidationError:    "%s eyo terabika bulungi. Kebera entegeka ogezeeko nate.",
		ReplyBackpressure:       "Empeereza ya %s ejjudde nnyo kati. Gezaako oluvannyuma lwa ddakiika ntono.",
		ReplyServiceTimeout:     "Omukutu gwa %s teguddamu kati. Gezaako oluvannyuma, oba genda ku kitebe ekikuli okumpi.",
		ReplyServiceError:       "Omukutu gwa %s gugaanye okusaba. Kebera ebikwata ku ggwe, oba genda ku kitebe ekikuli okumpi.",
		ReplyServiceUnavailable: "Empeereza ya %s teriiwo kati. Gezaako oluvannyuma.",
		ReplyFallback:           "Nsonyiwa, wabaddewo ekisobu ku ludda lwange. Gezaako nate.",
		ReplyResultHeader:       "Bino by'ebivudde mu %s yo:",
	},
	models.LangSwahili: {
		ReplyHelp:               "Naweza kukagua cheti cha kuzaliwa, kitambulisho cha taifa, hali ya kodi, salio la pensheni na hati za ardhi. Nitumie unachohitaji, mfano: \"kagua cheti changu NIRA/2023/123456\". Amri: cancel, status, language <en|lg|sw>, logout.",
		ReplyStatusIdle:         "Huna ombi linaloendelea.",
		ReplyStatusAwaiting:     "Nasubiri %s yako ili kuendelea na %s.",
		ReplyStatusProcessing:   "Ombi lako la %s linashughulikiwa. Nitakutumia ujumbe likikamilika.",
		ReplyCancelled:          "Ombi lako limeghairiwa.",
		ReplyNothingToCancel:    "Hakuna ombi la kughairi kwa sasa.",
		ReplyLanguageChanged:    "Lugha imewekwa kuwa Kiswahili.",
		ReplyLanguageUnknown:    "Siwezi lugha hiyo. Zinazopatikana: en, lg, sw.",
		ReplyLoggedOut:          "Umetoka. Taarifa za kikao chako zimefutwa.",
		ReplyAck:                "Nashughulikia ombi lako la %s sasa. Nitajibu hivi karibuni.",
		ReplyAckQueued:          "Ombi lako la %s ni namba %d kwenye foleni (takriban %s). Nitakutumia ujumbe likikamilika.",
		ReplyAskField:           "Tafadhali nitumie %s yako ili kuendelea.",
		ReplyStillProcessing:    "Ombi lako la awali bado linashughulikiwa. Tuma 'cancel' kuliacha au 'status' kuliangalia.",
		ReplyValidationError:    "%s hiyo haionekani sawa. Tafadhali kagua muundo na ujaribu tena.",
		ReplyBackpressure:       "Huduma ya %s ina shughuli nyingi sasa. Tafadhali jaribu tena baada ya dakika chache.",
		ReplyServiceTimeout:     "Tovuti ya %s haijibu kwa sasa. Jaribu tena baadaye, au tembelea kituo cha huduma kilicho karibu.",
		ReplyServiceError:       "Tovuti ya %s imekataa ombi. Kagua taarifa zako, au tembelea kituo cha huduma kilicho karibu.",
		ReplyServiceUnavailable: "Huduma ya %s haipatikani kwa muda. Tafadhali jaribu tena baadaye.",
		ReplyFallback:           "Samahani, kuna hitilafu upande wangu. Tafadhali jaribu tena.",
		ReplyResultHeader:       "Haya ndiyo matokeo ya %s yako:",
	},
}

// Reply renders a catalog message for a language, falling back to
// English when the language or key has no entry.
func Reply(language models.Language, key string, args ...any) string {
	msgs, ok := catalog[language]
	if !ok {
		msgs = catalog[models.LangEnglish]
	}
	tmpl, ok := msgs[key]
	if !ok {
		tmpl = catalog[models.LangEnglish][key]
	}
	if tmpl == "" {
		return catalog[models.LangEnglish][ReplyFallback]
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// ServiceLabel is the human name used inside replies.
func ServiceLabel(service models.Service) string {
	return strings.ReplaceAll(string(service), "_", " ")
}

// FormatResult renders a result payload as chat text, header first.
func FormatResult(language models.Language, service models.Service, payload map[string]string) string {
	var builder strings.Builder
	builder.WriteString(Reply(language, ReplyResultHeader, ServiceLabel(service)))

	// Status first when present, remaining fields in stable order.
	if status, ok := payload["status"]; ok {
		builder.WriteString(fmt.Sprintf("\n- status: %s", status))
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k != "status" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		builder.WriteString(fmt.Sprintf("\n- %s: %s", strings.ReplaceAll(k, "_", " "), payload[k]))
	}
	return builder.String()
}
