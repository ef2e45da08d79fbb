// Package testutil provides shared test helpers: HTTP assertions and
// compact text fixtures for binary masks.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
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

// DecodeJSON decodes a recorded response body into a value of type T.
func DecodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// ParseGrid turns rows of text into a row-major bit slice. '#' and '1' mark
// foreground; any other rune is background. All rows must have equal width.
//
//	w, h, bits := ParseGrid(
//	    "..##..",
//	    "..##..",
//	)
func ParseGrid(t testing.TB, rows ...string) (width, height int, bits []bool) {
	t.Helper()
	if len(rows) == 0 {
		return 0, 0, nil
	}
	width = len(rows[0])
	for i, r := range rows {
		if len(r) != width {
			t.Fatalf("grid row %d has width %d, want %d", i, len(r), width)
		}
		for _, c := range r {
			bits = append(bits, c == '#' || c == '1')
		}
	}
	return width, len(rows), bits
}

// Row builds one grid row of the given width with '#' in the listed
// half-open column spans, e.g. Row(10, 2, 4) is "..##......".
func Row(width int, spans ...int) string {
	b := []byte(strings.Repeat(".", width))
	for i := 0; i+1 < len(spans); i += 2 {
		for x := max(spans[i], 0); x < min(spans[i+1], width); x++ {
			b[x] = '#'
		}
	}
	return string(b)
}
