package crypto

import "testing"

func TestGenerateKeyPairAndAddress(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if len(pub.Hex()) != 64 {
		t.Errorf("pubkey hex length: got %d want 64", len(pub.Hex()))
	}
	addr := pub.Address()
	if addr.IsZero() {
		t.Error("derived address should not be zero")
	}
	if derived := priv.Public(); !derived.Equal(pub) {
		t.Error("priv.Public() does not match the generated public key")
	}
}

func TestPublicKeyEqual(t *testing.T) {
	_, pub1, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	_, pub2, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if !pub1.Equal(pub1) {
		t.Error("a key should equal itself")
	}
	if pub1.Equal(pub2) {
		t.Error("two independently generated keys should not be equal")
	}
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("hello mapchain")
	sig := Sign(priv, data)
	if err := Verify(pub, data, sig); err != nil {
		t.Errorf("valid signature failed: %v", err)
	}
	if err := Verify(pub, []byte("tampered"), sig); err == nil {
		t.Error("tampered data should fail verification")
	}
}

func TestPrivKeyFromHexRoundtrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := PrivKeyFromHex(priv.Hex())
	if err != nil {
		t.Fatalf("PrivKeyFromHex: %v", err)
	}
	if !decoded.Public().Equal(pub) {
		t.Error("decoded private key derives a different public key")
	}
}

func TestHash256Deterministic(t *testing.T) {
	a := Hash256([]byte("same input"))
	b := Hash256([]byte("same input"))
	if a != b {
		t.Error("Hash256 should be deterministic")
	}
	c := Hash256([]byte("different input"))
	if a == c {
		t.Error("different inputs should not collide")
	}
}
