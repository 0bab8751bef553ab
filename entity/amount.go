package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NormalizeAmount formats a monetary amount as a fixed-point string with
// exactly two decimal digits, rounding half up. Rounding works on the decimal
// text rather than through a binary float, so "10.555" becomes "10.56".
func NormalizeAmount(n json.Number) (string, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return "", fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return "", fmt.Errorf("negative amount %s", s)
	}
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return "", fmt.Errorf("invalid amount %q", s)
		}
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid amount %q", n.String())
		}
	}

	frac := fracPart + "000"
	cents := []byte(intPart + frac[:2])
	if frac[2] >= '5' {
		i := len(cents) - 1
		for ; i >= 0; i-- {
			if cents[i] < '9' {
				cents[i]++
				break
			}
			cents[i] = '0'
		}
		if i < 0 {
			cents = append([]byte{'1'}, cents...)
		}
	}

	whole := strings.TrimLeft(string(cents[:len(cents)-2]), "0")
	if whole == "" {
		whole = "0"
	}
	return whole + "." + string(cents[len(cents)-2:]), nil
}
