// Package dblock serializes Postgres integration tests across test binaries.
// Holding a loopback listener is the lock; the OS releases it if a test process dies.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultLockAddr = "127.0.0.1:45432"

func lockAddr() string {
	if addr := os.Getenv("DBLOCK_ADDR"); addr != "" {
		return addr
	}
	return defaultLockAddr
}

// Acquire blocks until this process holds the lock and returns its release func.
func Acquire() func() {
	addr := lockAddr()
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
