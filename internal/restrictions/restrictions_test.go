package restrictions

import (
	"testing"

	"oxy/internal/message"
)

func TestApplyPassesThroughWithoutPolicy(t *testing.T) {
	got, err := Apply(Policy{}, "", message.BasicCommand{Command: "rm -rf /"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.(message.BasicCommand).Command != "rm -rf /" {
		t.Fatal("expected unmodified passthrough with no active policy")
	}
}

func TestApplySubstitutesForcedCommand(t *testing.T) {
	p := Policy{ForcedCommand: "uptime"}
	got, err := Apply(p, "", message.BasicCommand{Command: "whoami"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.(message.BasicCommand).Command != "uptime" {
		t.Fatalf("got %+v, want forced command", got)
	}

	got, err = Apply(p, "", message.PipeCommand{Command: "whoami"})
	if err != nil || got.(message.PipeCommand).Command != "uptime" {
		t.Fatalf("PipeCommand not forced: %+v, %v", got, err)
	}

	got, err = Apply(p, "", message.PtyRequest{Command: nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pr := got.(message.PtyRequest)
	if pr.Command == nil || *pr.Command != "uptime" {
		t.Fatalf("PtyRequest not forced: %+v", pr)
	}
}

func TestApplySuModeUsesAdvertisedUsername(t *testing.T) {
	p := Policy{SuMode: true}
	got, err := Apply(p, "alice", message.BasicCommand{Command: "whoami"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "su - alice"; got.(message.BasicCommand).Command != want {
		t.Fatalf("got %q, want %q", got.(message.BasicCommand).Command, want)
	}
}

func TestApplySuModeDefaultsToRoot(t *testing.T) {
	p := Policy{SuMode: true}
	got, _ := Apply(p, "", message.BasicCommand{Command: "whoami"})
	if want := "su - root"; got.(message.BasicCommand).Command != want {
		t.Fatalf("got %q, want %q", got.(message.BasicCommand).Command, want)
	}
}

func TestApplySuModeQuotesHostileUsername(t *testing.T) {
	p := Policy{SuMode: true}
	got, _ := Apply(p, "alice; rm -rf /", message.BasicCommand{Command: "whoami"})
	cmd := got.(message.BasicCommand).Command
	if want := `su - 'alice; rm -rf /'`; cmd != want {
		t.Fatalf("got %q, want %q", cmd, want)
	}
}

func TestApplyRejectsMessagesOutsideWhitelist(t *testing.T) {
	p := Policy{ForcedCommand: "uptime"}
	if _, err := Apply(p, "", message.DownloadRequest{Path: "/etc/shadow"}); err != ErrNotWhitelisted {
		t.Fatalf("expected ErrNotWhitelisted, got %v", err)
	}
}

func TestApplyPassesWhitelistedControlMessages(t *testing.T) {
	p := Policy{ForcedCommand: "uptime"}
	for _, m := range []message.Message{
		message.Ping{}, message.Pong{},
		message.Success{Reference: 1}, message.Reject{Reference: 1, Note: "x"},
		message.PtySizeAdvertisement{W: 80, H: 24},
		message.UsernameAdvertisement{Username: "bob"},
	} {
		if _, err := Apply(p, "", m); err != nil {
			t.Fatalf("expected %T to pass the whitelist, got %v", m, err)
		}
	}
}
