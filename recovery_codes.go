package credVault

import (
	"crypto/subtle"

	"github.com/MrEthical07/credVault/internal"
	"github.com/MrEthical07/credVault/store"
)

// generateRecoveryCodes mints n single-use recovery codes. The plaintext
// slice is for one-time display; only the hashes are stored.
func generateRecoveryCodes(n int) ([]string, []store.RecoveryCode, error) {
	plain := make([]string, 0, n)
	hashed := make([]store.RecoveryCode, 0, n)

	for i := 0; i < n; i++ {
		code, err := internal.NewRecoveryCode()
		if err != nil {
			return nil, nil, err
		}
		plain = append(plain, code)
		hashed = append(hashed, store.RecoveryCode{Hash: internal.HashSecret(code)})
	}

	return plain, hashed, nil
}

// matchRecoveryCode returns the index of the stored code matching the input,
// or -1. Every stored hash is compared so timing does not reveal which slot
// matched. Consumed codes are removed from the slice, so any match is live.
func matchRecoveryCode(codes []store.RecoveryCode, input string) int {
	want := internal.HashSecret(input)

	matched := -1
	for i := range codes {
		ok := subtle.ConstantTimeCompare(codes[i].Hash, want) == 1
		if ok && matched == -1 {
			matched = i
		}
	}
	return matched
}
