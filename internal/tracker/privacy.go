package tracker

import (
	"strings"

	"github.com/labai-app/tracking-agent/api/schemas"
)

// sensitiveTypes are input types that always carry private data.
var sensitiveTypes = map[string]bool{
	"password": true,
	"email":    true,
	"tel":      true,
}

// sensitiveTokens is the denylist matched against lower-cased field names and
// ids. The list is deliberately broad: a false positive costs one field name
// in the analytics, a false negative leaks PII. Field values are never
// tracked regardless.
var sensitiveTokens = []string{
	"password", "passwd", "pwd",
	"card", "cvv", "cvc",
	"ssn", "social",
	"secret", "token", "auth", "pin",
	"email", "phone", "tel",
	"address", "zip", "postal",
	"account", "routing",
	"license", "passport",
	"dob", "birth",
	"salary", "income",
}

// IsSensitiveField reports whether a form field is likely to carry private
// user data.
func IsSensitiveField(field schemas.FormField) bool {
	if sensitiveTypes[strings.ToLower(field.Type)] {
		return true
	}
	name := strings.ToLower(field.Name)
	id := strings.ToLower(field.ID)
	for _, token := range sensitiveTokens {
		if strings.Contains(name, token) || strings.Contains(id, token) {
			return true
		}
	}
	return false
}

// ContainsSensitiveFields reports whether any field of the form is sensitive.
// A single hit causes the whole submission to be dropped from tracking.
func ContainsSensitiveFields(form schemas.FormObservation) bool {
	for _, field := range form.Fields {
		if IsSensitiveField(field) {
			return true
		}
	}
	return false
}
