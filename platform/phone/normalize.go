// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "NL"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	return NormalizeE164In(input, defaultRegion)
}

// NormalizeE164In is NormalizeE164 with an explicit fallback region.
func NormalizeE164In(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = defaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// FromRemoteJID returns the E.164 number of a chat address such as
// "31612345678@s.whatsapp.net". Group and broadcast addresses yield "".
func FromRemoteJID(jid string) string {
	user, server, found := strings.Cut(strings.TrimSpace(jid), "@")
	if !found || user == "" {
		return ""
	}
	if server != "s.whatsapp.net" && server != "c.us" {
		return ""
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return NormalizeE164("+" + user)
}

// DisplayPrefix returns the local part of a chat address, used as a name fallback.
func DisplayPrefix(jid string) string {
	user, _, _ := strings.Cut(jid, "@")
	return user
}
