package messaging

import "strings"

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
// Channel prefixes such as "whatsapp:" are dropped.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.IndexByte(value, ':'); i >= 0 {
		value = value[i+1:]
	}
	if value == "" {
		return ""
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IgnoredSender reports whether messages from sender must never reach the
// engine: group chats and broadcast lists.
func IgnoredSender(sender string) bool {
	s := strings.ToLower(strings.TrimSpace(sender))
	return strings.HasSuffix(s, "@g.us") || strings.HasSuffix(s, "@broadcast")
}

// SenderKey turns a channel address into the key sessions are stored under.
// Phone-like addresses collapse to their E.164 form so the same patient maps
// to one session regardless of formatting.
func SenderKey(sender string) string {
	s := strings.TrimSpace(sender)
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	if looksLikePhone(s) {
		return NormalizeE164(s)
	}
	return strings.TrimSpace(sender)
}

func looksLikePhone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune("+ ()-.", r):
		default:
			return false
		}
	}
	return digits >= 8
}
