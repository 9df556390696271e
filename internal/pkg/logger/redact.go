package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	pemRegex   = regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+-----.*?(-----END [A-Z ]+-----|$)`)
	bearerRe   = regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]+`)
)

var secretKeys = []string{"private_key", "privatekey", "token", "secret", "password", "authorization", "credentials_json"}

func redactValue(key, val string) string {
	k := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(k, s) {
			return redacted
		}
	}
	if strings.Contains(k, "email") {
		return RedactEmail(val)
	}
	val = pemRegex.ReplaceAllString(val, redacted)
	val = bearerRe.ReplaceAllString(val, "Bearer "+redacted)
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}

// RedactEmail masks an email address for safe logging.
// "sync@proj.iam.gserviceaccount.com" → "sy***@proj.iam.gserviceaccount.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
