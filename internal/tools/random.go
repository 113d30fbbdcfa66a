package tools

import (
	"math/rand/v2"
	"strings"
)

const nameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// RandName returns prefix + n random letters + suffix.
func RandName(prefix, suffix string, n int) string {
	if n <= 0 {
		n = 8
	}
	var builder strings.Builder
	builder.Grow(len(prefix) + n + len(suffix))
	builder.WriteString(prefix)
	for i := 0; i < n; i++ {
		builder.WriteByte(nameAlphabet[rand.IntN(len(nameAlphabet))])
	}
	builder.WriteString(suffix)
	return builder.String()
}
