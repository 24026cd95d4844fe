package knock

import "testing"

func TestMakeVerifyRoundTrip(t *testing.T) {
	c := NewCodec()
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i)
	}

	now := int64(1_700_000_000)
	tok := c.Make(secret, now)
	if !c.Verify(secret, now, "alice", tok[:]) {
		t.Fatal("expected verify to accept token made for the same instant")
	}
}

func TestVerifyRejectsAfterThreeWindows(t *testing.T) {
	c := NewCodec()
	secret := make([]byte, 32)

	now := int64(1_700_000_000)
	tok := c.Make(secret, now)

	if c.Verify(secret, now+180, "alice", tok[:]) {
		t.Fatal("expected verify to reject a token three windows stale")
	}
}

func TestVerifyAcceptsNeighboringWindows(t *testing.T) {
	c := NewCodec()
	secret := make([]byte, 32)

	now := int64(1_700_000_000)
	tok := c.Make(secret, now)

	if !c.Verify(secret, now+60, "alice", tok[:]) {
		t.Fatal("expected verify to accept a token from the window before now")
	}
	if !c.Verify(secret, now-60, "alice", tok[:]) {
		t.Fatal("expected verify to accept a token from the window after now")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	c := NewCodec()
	secretA := make([]byte, 32)
	secretB := make([]byte, 32)
	secretB[0] = 1

	now := int64(1_700_000_000)
	tok := c.Make(secretA, now)

	if c.Verify(secretB, now, "alice", tok[:]) {
		t.Fatal("expected verify to reject a token derived from a different secret")
	}
}

func TestVerifyRejectsWrongSize(t *testing.T) {
	c := NewCodec()
	secret := make([]byte, 32)
	if c.Verify(secret, 0, "alice", []byte("too short")) {
		t.Fatal("expected verify to reject a malformed token")
	}
}
