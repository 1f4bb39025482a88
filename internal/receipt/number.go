package receipt

import (
	"fmt"
	"strconv"
	"strings"
)

// Format builds RCP-YYYYMMDD-NNNN. Sequences past 9999 simply get longer.
func Format(dayKey string, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", receiptPrefix, dayKey, seq)
}

// Parse splits a receipt number back into its day key and sequence.
func Parse(number string) (string, int, error) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 || parts[0] != receiptPrefix || len(parts[1]) != len(dayKeyLayout) {
		return "", 0, fmt.Errorf("malformed receipt number %q", number)
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 1 {
		return "", 0, fmt.Errorf("malformed receipt number %q", number)
	}
	return parts[1], seq, nil
}
