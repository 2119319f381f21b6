package otpwebhook

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Field aliases in lookup order. Senders disagree on naming.
var (
	leaseRefFields = []string{"activationId", "ref_id", "id"}
	otpFields      = []string{"code", "otp"}
)

// Delivery is the correlation data pulled from a webhook body.
type Delivery struct {
	LeaseRef string
	OTPCode  string
}

// parseDelivery reads the lease reference and passcode from a JSON object body.
// It reports false when the body is not an object or either value is missing.
func parseDelivery(body []byte) (Delivery, bool) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil || fields == nil {
		return Delivery{}, false
	}

	delivery := Delivery{
		LeaseRef: firstValue(fields, leaseRefFields),
		OTPCode:  firstValue(fields, otpFields),
	}
	if delivery.LeaseRef == "" || delivery.OTPCode == "" {
		return Delivery{}, false
	}
	return delivery, true
}

func firstValue(fields map[string]any, names []string) string {
	for _, name := range names {
		if value := scalarString(fields[name]); value != "" {
			return value
		}
	}
	return ""
}

func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
