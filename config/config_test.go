package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MODE", "")
	t.Setenv("IRC_PORT", "")
	t.Setenv("DB_DSN", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Mode != ModeScrape {
		t.Errorf("Mode = %q, want %q", cfg.Mode, ModeScrape)
	}
	if cfg.IRCPort != 6667 {
		t.Errorf("IRCPort = %d, want 6667", cfg.IRCPort)
	}
	if cfg.DBDsn == "" {
		t.Errorf("expected default DB_DSN, got empty")
	}
	if cfg.SocketTimeout != 180*time.Second {
		t.Errorf("SocketTimeout = %v, want 180s", cfg.SocketTimeout)
	}
	if cfg.MaxWriteErrors != 3 {
		t.Errorf("MaxWriteErrors = %d, want 3", cfg.MaxWriteErrors)
	}
}

func TestLoadInvalidMode(t *testing.T) {
	t.Setenv("MODE", "turbo")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for invalid MODE")
	}
}

func TestNickFallbacks(t *testing.T) {
	t.Setenv("IRC_NICK", "prebot")
	t.Setenv("IRC_USERNAME", "")
	t.Setenv("IRC_REALNAME", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.IRCUsername != "prebot" || cfg.IRCRealName != "prebot" {
		t.Errorf("username/realname fallback = %q/%q, want prebot/prebot", cfg.IRCUsername, cfg.IRCRealName)
	}
}

func TestParseChannels(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Channel
	}{
		{"empty", "", nil},
		{"single", "#pre", []Channel{{Name: "#pre"}}},
		{"keyed", "#pre:sekrit", []Channel{{Name: "#pre", Key: "sekrit"}}},
		{"mixed", "#a:k1, #b ,#c:k3", []Channel{{Name: "#a", Key: "k1"}, {Name: "#b"}, {Name: "#c", Key: "k3"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseChannels(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseChannels(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("channel %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestValidateIRCReady(t *testing.T) {
	t.Setenv("IRC_HOST", "irc.example.net")
	t.Setenv("IRC_NICK", "prebot")
	t.Setenv("IRC_CHANNELS", "#pre")
	cfg, _ := Load()
	if err := cfg.ValidateIRCReady(); err != nil {
		t.Errorf("expected valid irc config, got %v", err)
	}
	t.Setenv("IRC_CHANNELS", "")
	cfg, _ = Load()
	if err := cfg.ValidateIRCReady(); err == nil {
		t.Errorf("expected error when IRC_CHANNELS missing")
	}
}
