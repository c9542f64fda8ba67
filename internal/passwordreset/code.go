// AngelaMos | 2026
// code.go

package passwordreset

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

const (
	codeLength = 6
	codeMin    = 100000
)

var codeSpan = big.NewInt(900000)

// generateCode draws uniformly from [100000, 999999]. rand.Int rejects
// out-of-range samples internally, so there is no modulo bias.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

func isWellFormedCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
