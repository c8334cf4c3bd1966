// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// LocalHostRequest creates an httptest request that appears to come from
// localhost, which tsweb debug routes require.
func LocalHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// ChronologicalStream encodes values as a chronological event stream: a
// leading fragment, each value followed by terminator, and an unterminated
// tail. Only the values decode.
func ChronologicalStream(values []int, terminator string) []byte {
	var b strings.Builder
	b.WriteString("x")
	b.WriteString(terminator)
	for _, v := range values {
		b.WriteString(strconv.Itoa(v))
		b.WriteString(terminator)
	}
	b.WriteString("12")
	return []byte(b.String())
}

// SnapshotLine encodes counts as one histogram snapshot line: each count
// followed by sep, then the line terminator.
func SnapshotLine(counts []int, sep string) string {
	var b strings.Builder
	for _, c := range counts {
		b.WriteString(strconv.Itoa(c))
		b.WriteString(sep)
	}
	b.WriteString("\r\n")
	return b.String()
}

// Chunks splits data into pieces of at most size bytes, the way a serial
// read loop delivers them.
func Chunks(data []byte, size int) [][]byte {
	if size <= 0 {
		size = 1
	}
	var out [][]byte
	for len(data) > 0 {
		n := min(size, len(data))
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}
