package login

import (
	"bytes"
	"testing"

	"github.com/lare96/rsbotgroup/buffer"
)

func TestEmitInitialRequest(t *testing.T) {
	h := NewHandshake("bot", "pw", nil)
	out := h.EmitInitialRequest()
	if len(out) != 2 {
		t.Fatalf("expected 2-byte stage-1 frame, got %d bytes", len(out))
	}
	if out[0] != 0x0E {
		t.Errorf("first byte: got %#x want 0x0E", out[0])
	}
	want := byte((Base37("bot") >> 16) & 0x1F)
	if out[1] != want {
		t.Errorf("second byte: got %#x want %#x", out[1], want)
	}
	if h.State != InitialResponse {
		t.Errorf("state: got %s want initial_response", h.State)
	}
}

func buildStage2Response(status byte, s2, s3 uint32) []byte {
	buf := buffer.New(17)
	buf.PutBytes(make([]byte, 8))
	buf.Put(status, buffer.Normal)
	_ = buf.PutInt(s2, buffer.Normal, buffer.Big)
	_ = buf.PutInt(s3, buffer.Normal, buffer.Big)
	return buf.Bytes()
}

func TestStageTwoHappyPath(t *testing.T) {
	h := NewHandshake("bot", "pw", nil)
	h.EmitInitialRequest()

	resp := buildStage2Response(0, 0x03040506, 0x05060708)
	consumed, outbound, err := h.Step(resp)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if consumed != 17 {
		t.Fatalf("consumed: got %d want 17", consumed)
	}
	if h.State != FinalResponse {
		t.Fatalf("state: got %s want final_response", h.State)
	}

	info := buffer.Wrap(outbound)
	if got := info.Get(buffer.Normal); got != loginTypeStandard {
		t.Errorf("login type byte: got %#x want %#x", got, loginTypeStandard)
	}
	info.Get(buffer.Normal) // size byte (secure block length + 40), not checked here
	if got := info.Get(buffer.Normal); got != clientVariant {
		t.Errorf("client variant byte: got %#x want %#x", got, clientVariant)
	}
	rev, err := info.GetShort(buffer.Normal, buffer.Big)
	if err != nil {
		t.Fatalf("GetShort: %v", err)
	}
	if rev != 317 {
		t.Errorf("client revision: got %d want 317", rev)
	}

	if h.EncryptorSeed[2] != 0x03040506 || h.EncryptorSeed[3] != 0x05060708 {
		t.Errorf("encryptor seed did not carry the server words: %+v", h.EncryptorSeed)
	}
	for i := range h.EncryptorSeed {
		if h.DecryptorSeed[i] != h.EncryptorSeed[i]+50 {
			t.Errorf("decryptor seed word %d: got %d want %d", i, h.DecryptorSeed[i], h.EncryptorSeed[i]+50)
		}
	}
}

func TestStageTwoRejectsBadStatus(t *testing.T) {
	h := NewHandshake("bot", "pw", nil)
	h.EmitInitialRequest()

	resp := buildStage2Response(3, 1, 2)
	_, _, err := h.Step(resp)
	if err == nil {
		t.Fatal("expected an error for a non-zero stage-2 status byte")
	}
}

func TestStageTwoWaitsForMoreBytes(t *testing.T) {
	h := NewHandshake("bot", "pw", nil)
	h.EmitInitialRequest()

	consumed, outbound, err := h.Step(make([]byte, 10))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if consumed != 0 || outbound != nil {
		t.Errorf("expected no progress on a partial read, got consumed=%d outbound=%v", consumed, outbound)
	}
	if h.State != InitialResponse {
		t.Errorf("state should not have advanced: %s", h.State)
	}
}

func TestStageThreeHappyPathResolvesFuture(t *testing.T) {
	h := NewHandshake("bot", "pw", nil)
	h.State = FinalResponse

	consumed, outbound, err := h.Step([]byte{2, 0, 0})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if consumed != 3 || outbound != nil {
		t.Errorf("unexpected step result: consumed=%d outbound=%v", consumed, outbound)
	}
	if h.State != LoggedIn {
		t.Errorf("state: got %s want logged_in", h.State)
	}
	if !h.Future.Done() {
		t.Error("expected the login future to resolve")
	}
}

func TestStageThreeRejectsBadStatus(t *testing.T) {
	h := NewHandshake("bot", "pw", nil)
	h.State = FinalResponse

	_, _, err := h.Step([]byte{3, 0, 0})
	if err == nil {
		t.Fatal("expected an error for a non-2 stage-3 status byte")
	}
	if h.State == LoggedIn {
		t.Error("state must not advance to logged_in on a rejected handshake")
	}
}

func TestSecureBlockContainsCredentialsWithoutRSA(t *testing.T) {
	h := NewHandshake("bot", "secret", nil)
	h.EmitInitialRequest()
	_, outbound, err := h.Step(buildStage2Response(0, 1, 2))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !bytes.Contains(outbound, []byte("bot")) {
		t.Error("expected plaintext username in the secure block when RSA is absent")
	}
	if !bytes.Contains(outbound, []byte("secret")) {
		t.Error("expected plaintext password in the secure block when RSA is absent")
	}
}
