package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// NewInstanceID builds a process identifier from role, hostname, pid and a
// random suffix. It tags every log line of the process.
func NewInstanceID(role string) string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}
	return fmt.Sprintf("%s:%s:%d:%s", role, hostname, os.Getpid(), randomHex(6))
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = byte(i + 1)
		}
	}
	return hex.EncodeToString(b)
}
