// Package testutil provides shared skip helpers and audio assertions for
// tests across the module.
//
// The skip helpers call t.Skip with a clear human-readable reason when the
// named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireNetwork(t)
//	    testutil.RequireEnv(t, "ELEVEN_API_KEY")
//	    ...
//	}
package testutil

import (
	"net"
	"os"
	"testing"
	"time"
)

// RequireEnv skips the test unless every named environment variable is set
// to a non-empty value.
func RequireEnv(tb testing.TB, vars ...string) {
	tb.Helper()

	for _, v := range vars {
		if os.Getenv(v) == "" {
			tb.Skipf("environment variable %s not set", v)
		}
	}
}

// RequireNetwork skips the test when outbound connectivity is unavailable.
func RequireNetwork(tb testing.TB) {
	tb.Helper()

	conn, err := net.DialTimeout("tcp", "1.1.1.1:53", 2*time.Second)
	if err != nil {
		tb.Skipf("network unavailable: %v", err)
	}
	conn.Close()
}
