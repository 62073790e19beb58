package crypto

import (
	"bytes"
	"encoding/hex"
	"os"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func testKeyHex(t *testing.T) string {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return hex.EncodeToString(ethcrypto.FromECDSA(pk))
}

func TestDigestBindsEveryField(t *testing.T) {
	base := Digest("resolve", "mkt-1", "0xabc", 1)

	variants := [][]byte{
		Digest("set_fees", "mkt-1", "0xabc", 1),
		Digest("resolve", "mkt-2", "0xabc", 1),
		Digest("resolve", "mkt-1", "0xdef", 1),
		Digest("resolve", "mkt-1", "0xabc", 2),
	}
	for i, v := range variants {
		if bytes.Equal(base, v) {
			t.Fatalf("variant %d collides with base digest", i)
		}
	}
}

func TestDigestActorIsCaseInsensitive(t *testing.T) {
	a := Digest("resolve", "mkt-1", "0xAbC", 1)
	b := Digest("resolve", "mkt-1", "0xabc", 1)
	if !bytes.Equal(a, b) {
		t.Fatal("digest differs across actor casing")
	}
}

func TestSignerClaimRecoversOwnAddress(t *testing.T) {
	s, err := NewSigner(testKeyHex(t))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	claim, err := s.Claim("resolve", "mkt-1", 42)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claim.Signature) != 65 {
		t.Fatalf("signature length = %d, want 65", len(claim.Signature))
	}

	pub, err := ethcrypto.SigToPub(claim.Digest, claim.Signature)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := ethcrypto.PubkeyToAddress(*pub).Hex(); got != s.Address() {
		t.Fatalf("recovered %s, want %s", got, s.Address())
	}
}

func TestNewSignerAcceptsPrefixedKeys(t *testing.T) {
	raw := testKeyHex(t)

	plain, err := NewSigner(raw)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	prefixed, err := NewSigner("0x" + raw)
	if err != nil {
		t.Fatalf("new signer with prefix: %v", err)
	}
	if plain.Address() != prefixed.Address() {
		t.Fatal("prefix changed the derived address")
	}

	if _, err := NewSigner("not-hex"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	keyHex := testKeyHex(t)

	blob, err := EncryptKey(keyHex, "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != keyHex {
		t.Fatal("decrypted key differs from original")
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestLoadKey(t *testing.T) {
	keyHex := testKeyHex(t)

	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + keyHex})
	if err != nil {
		t.Fatalf("load raw key: %v", err)
	}
	if got != keyHex {
		t.Fatal("raw key not normalised")
	}

	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Fatal("expected error when no source configured")
	}

	blob, err := EncryptKey(keyHex, "pw")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	path := t.TempDir() + "/key.json"
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil {
		t.Fatalf("load encrypted key: %v", err)
	}
	if !strings.EqualFold(got, keyHex) {
		t.Fatal("encrypted key roundtrip mismatch")
	}
}
