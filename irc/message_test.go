package irc

import "testing"

func TestPingToken(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "PING :irc.efnet.org", "irc.efnet.org"},
		{"no space", "PING :12345", "12345"},
		{"not a ping", ":nick!host PRIVMSG #pre :PING :x", ""},
		{"pong", "PONG irc.efnet.org", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PingToken(tt.raw); got != tt.want {
				t.Errorf("PingToken(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Message
		matched bool
	}{
		{
			"channel message",
			":ginger!~g@host.example PRIVMSG #alt.binaries.erotica :ReqId:[326264] hello",
			Message{Sender: "ginger", Channel: "#alt.binaries.erotica", Text: "ReqId:[326264] hello"},
			true,
		},
		{
			"trims surrounding space",
			":bot!x@y PRIVMSG #pre :  PRE: [TV] Some.Title  ",
			Message{Sender: "bot", Channel: "#pre", Text: "PRE: [TV] Some.Title"},
			true,
		},
		{"server notice", ":irc.efnet.org NOTICE * :*** Looking up your hostname", Message{}, false},
		{"private query ignored", ":someone!x@y PRIVMSG prebot :hi", Message{}, false},
		{"numeric", ":irc.efnet.org 001 prebot :Welcome", Message{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMessage(tt.line)
			if ok != tt.matched {
				t.Fatalf("ParseMessage(%q) matched=%v, want %v", tt.line, ok, tt.matched)
			}
			if got != tt.want {
				t.Errorf("ParseMessage(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestStripControlCodes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "no codes here", "no codes here"},
		{"bold", "\x02NEW:\x02 title", "NEW: title"},
		{"color with fg", "\x034red text", "red text"},
		{"color with fg,bg", "\x0304,01red on black\x03", "red on black"},
		{"reset and underline", "\x0Fplain \x1Funder", "plain under"},
		{"mixed", "\x02\x0312[\x0FPRE\x02]", "[PRE]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripControlCodes(tt.in); got != tt.want {
				t.Errorf("StripControlCodes(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseNumeric(t *testing.T) {
	prefix, code, rest, ok := ParseNumeric(":irc.efnet.org 001 prebot :Welcome to EFNet")
	if !ok || prefix != "irc.efnet.org" || code != "001" || rest != "prebot :Welcome to EFNet" {
		t.Errorf("ParseNumeric = %q %q %q %v", prefix, code, rest, ok)
	}
	if _, _, _, ok := ParseNumeric("PING :x"); ok {
		t.Error("ParseNumeric matched a PING")
	}
}

func TestIsPongAndIsError(t *testing.T) {
	if !IsPong(":irc.efnet.org PONG irc.efnet.org :token") {
		t.Error("prefixed PONG not recognized")
	}
	if !IsPong("PONG :token") {
		t.Error("bare PONG not recognized")
	}
	if IsPong(":x!y PRIVMSG #c :PONG") {
		t.Error("PRIVMSG recognized as PONG")
	}
	if !IsError("ERROR :Closing Link") {
		t.Error("ERROR line not recognized")
	}
}
