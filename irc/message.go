package irc

import (
	"regexp"
	"strings"
)

// Message is one decoded channel message, alive for a single dispatch cycle.
type Message struct {
	Sender  string
	Channel string
	Text    string
}

var (
	// pingRE matches a server keepalive probe. It must be applied to the raw
	// line, before control codes are stripped.
	pingRE = regexp.MustCompile(`^PING\s*:(.+?)\s*$`)

	pongRE = regexp.MustCompile(`^(?::\S+\s+)?PONG\b`)

	privmsgRE = regexp.MustCompile(`^:([^!\s]+)!\S+\s+PRIVMSG\s+(#\S+)\s+:\s*(.+?)\s*$`)

	numericRE = regexp.MustCompile(`^:(\S+)\s+(\d{3})(?:\s+(.*))?$`)

	errorRE = regexp.MustCompile(`^ERROR\s*:`)

	// mIRC formatting: color (with optional fg,bg digits), bold, reset,
	// reverse, underline, device control 2.
	controlCodesRE = regexp.MustCompile(`\x03(?:\d{1,2}(?:,\d{1,2})?)?|[\x02\x0F\x16\x1F\x12]`)
)

// PingToken returns the token of a keepalive probe line, or "" when the line
// is not a PING.
func PingToken(raw string) string {
	m := pingRE.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsPong reports whether the raw line is a keepalive probe answer.
func IsPong(raw string) bool {
	return pongRE.MatchString(raw)
}

// IsError reports whether the raw line is an explicit server error.
func IsError(raw string) bool {
	return errorRE.MatchString(raw)
}

// ParseNumeric decodes a `:<prefix> NNN ...` server reply, returning the
// sending prefix, the three digit code and the trailing text.
func ParseNumeric(raw string) (prefix, code, rest string, ok bool) {
	m := numericRE.FindStringSubmatch(raw)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

// ParseMessage decodes a channel message of the form
// `:<sender>!<host> PRIVMSG <channel> :<text>` from a control-stripped line.
func ParseMessage(line string) (Message, bool) {
	m := privmsgRE.FindStringSubmatch(line)
	if m == nil {
		return Message{}, false
	}
	return Message{Sender: m[1], Channel: m[2], Text: m[3]}, true
}

// StripControlCodes removes mIRC formatting bytes so classification regexes
// see plain text.
func StripControlCodes(line string) string {
	if !strings.ContainsAny(line, "\x02\x03\x0F\x16\x1F\x12") {
		return line
	}
	return controlCodesRE.ReplaceAllString(line, "")
}
