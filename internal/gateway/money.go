package gateway

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	domainErrors "github.com/sajilopay/payments/internal/domain/errors"
)

// maxAmountNPR is the ceiling carried over from the upstream checkout:
// above it the paisa value approaches the range where float64 can no
// longer represent every integer exactly.
const maxAmountNPR = 90_000_000_000_000

// ToPaisa converts a major-unit NPR amount to integer paisa, rounded
// half-up. Integer paisa is the only sanctioned form for comparing
// monetary amounts anywhere in this package.
func ToPaisa(amount float64) (int64, error) {
	if amount <= 0 {
		return 0, domainErrors.ErrInvalidAmount
	}
	if amount > maxAmountNPR {
		return 0, domainErrors.ErrAmountTooLarge
	}
	return int64(math.Round(amount * 100)), nil
}

// FormatPaisa renders paisa as an exactly-two-decimal NPR string, the
// format eSewa requires for signed amount fields ("1000.00", never
// "1000" or "1000.0").
func FormatPaisa(paisa int64) string {
	sign := ""
	if paisa < 0 {
		sign = "-"
		paisa = -paisa
	}
	return fmt.Sprintf("%s%d.%02d", sign, paisa/100, paisa%100)
}

// parsePaisa converts a gateway-reported decimal amount string to
// integer paisa. Remote fields are untrusted input.
func parsePaisa(s string) (int64, error) {
	// eSewa group-separates large amounts ("1,000.00").
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty amount field: %w", domainErrors.ErrMissingResponseFields)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable amount field: %w", domainErrors.ErrInvalidResponseFormat)
	}
	return int64(math.Round(f * 100)), nil
}
