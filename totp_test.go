package credVault

import (
	"testing"
	"time"
)

// RFC 6238 appendix B vectors for the SHA-1 mode, 8 digits, 30 second
// period, shared secret "12345678901234567890".
func TestTOTPReferenceVectors(t *testing.T) {
	secret := []byte("12345678901234567890")
	m := newTOTPManager(TOTPConfig{Issuer: "credVault", Digits: 8, Period: 30, Skew: 0})

	cases := []struct {
		unix int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, tc := range cases {
		now := time.Unix(tc.unix, 0).UTC()
		if got := hotpCode(secret, tc.unix/30, 8); got != tc.code {
			t.Errorf("t=%d: expected code %s, got %s", tc.unix, tc.code, got)
		}
		ok, _, err := m.VerifyCode(secret, tc.code, now)
		if err != nil {
			t.Fatalf("VerifyCode failed: %v", err)
		}
		if !ok {
			t.Errorf("t=%d: reference code %s rejected", tc.unix, tc.code)
		}
	}
}

func TestTOTPSkewWindow(t *testing.T) {
	secret := []byte("12345678901234567890")
	now := time.Unix(1111111111, 0).UTC()
	previous := hotpCode(secret, 1111111111/30-1, 8)

	strict := newTOTPManager(TOTPConfig{Issuer: "credVault", Digits: 8, Period: 30, Skew: 0})
	if ok, _, _ := strict.VerifyCode(secret, previous, now); ok {
		t.Fatal("expected previous-period code rejected with zero skew")
	}

	lenient := newTOTPManager(TOTPConfig{Issuer: "credVault", Digits: 8, Period: 30, Skew: 1})
	ok, counter, err := lenient.VerifyCode(secret, previous, now)
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if !ok {
		t.Fatal("expected previous-period code accepted with skew 1")
	}
	if counter != 1111111111/30-1 {
		t.Fatalf("expected matched counter to be the previous period, got %d", counter)
	}

	twoBack := hotpCode(secret, 1111111111/30-2, 8)
	if ok, _, _ := lenient.VerifyCode(secret, twoBack, now); ok {
		t.Fatal("expected code two periods back rejected with skew 1")
	}
}

func TestTOTPInputRejection(t *testing.T) {
	secret := []byte("12345678901234567890")
	m := newTOTPManager(TOTPConfig{Issuer: "credVault", Digits: 6, Period: 30, Skew: 1})
	now := time.Unix(1111111111, 0).UTC()

	for _, code := range []string{"", "12345", "1234567", "12a456", "  123  "} {
		if ok, _, err := m.VerifyCode(secret, code, now); err != nil || ok {
			t.Errorf("expected %q rejected without error, got ok=%v err=%v", code, ok, err)
		}
	}

	// Surrounding whitespace is tolerated, the digits are not altered.
	valid := hotpCode(secret, 1111111111/30, 6)
	if ok, _, err := m.VerifyCode(secret, " "+valid+" ", now); err != nil || !ok {
		t.Fatalf("expected trimmed code accepted, got ok=%v err=%v", ok, err)
	}

	if _, _, err := m.VerifyCode(nil, valid, now); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestTOTPProvisionURI(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "credVault", Digits: 6, Period: 30, Skew: 1})

	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "alice@example.com")
	want := "otpauth://totp/credVault:alice@example.com?algorithm=SHA1&digits=6&issuer=credVault&period=30&secret=JBSWY3DPEHPK3PXP"
	if uri != want {
		t.Fatalf("unexpected URI:\n got %s\nwant %s", uri, want)
	}
}

func TestTOTPGenerateSecret(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "credVault", Digits: 6, Period: 30, Skew: 1})

	raw, encoded, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if len(raw) != totpSecretBytes {
		t.Fatalf("expected %d byte seed, got %d", totpSecretBytes, len(raw))
	}
	if encoded == "" {
		t.Fatal("expected base32 form")
	}

	_, second, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if encoded == second {
		t.Fatal("expected distinct seeds")
	}
}
