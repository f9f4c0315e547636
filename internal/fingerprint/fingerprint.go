// Package fingerprint derives the stable 8-hex-digit project identifier
// used to name a project-scoped daemon socket.
package fingerprint

import "fmt"

// Project folds the bytes of an absolute project path into a 32-bit
// accumulator (h = h*31 + b, mod 2^32) and renders it as lowercase hex,
// zero-padded to 8 digits. unsigned arithmetic means there is no sign to
// take the absolute value of; the rollover is the entire point — the same
// path always yields the same fingerprint, and two distinct paths collide
// with probability approximately 2^-32.
func Project(absPath string) string {
	var h uint32
	for i := 0; i < len(absPath); i++ {
		h = h*31 + uint32(absPath[i])
	}
	return fmt.Sprintf("%08x", h)
}
