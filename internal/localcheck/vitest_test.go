package localcheck

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `{
  "numTotalTestSuites": 2,
  "numTotalTests": 4,
  "numPassedTests": 2,
  "numFailedTests": 1,
  "numPendingTests": 1,
  "testResults": [
    {
      "name": "/repo/src/cart.test.ts",
      "status": "failed",
      "assertionResults": [
        {"fullName": "cart adds items", "status": "passed", "failureMessages": []},
        {"fullName": "cart applies discount", "status": "failed",
         "failureMessages": ["AssertionError: expected 90 to be 80\n    at cart.test.ts:12:5"]}
      ]
    },
    {
      "name": "/repo/src/broken.test.ts",
      "status": "failed",
      "message": "Failed to load url ./missing (resolved id: ./missing)\nmore",
      "assertionResults": []
    }
  ]
}`

func utf16LE(s string, bom bool) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2+2)
	if bom {
		out = append(out, 0xFF, 0xFE)
	}
	for _, u := range units {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return out
}

func TestParseVitestReport_Encodings(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"utf-8", []byte(sampleReport)},
		{"utf-8 bom", append([]byte{0xEF, 0xBB, 0xBF}, sampleReport...)},
		{"utf-16le bom", utf16LE(sampleReport, true)},
		{"utf-16le no bom", utf16LE(sampleReport, false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVitestReport(tt.data)
			require.NoError(t, err)
			assert.Equal(t, 4, got.Total)
			assert.Equal(t, 2, got.PassedCount)
			assert.Equal(t, 1, got.Failed)
			assert.Equal(t, 1, got.Skipped)
			require.Len(t, got.FailedTests, 2)
			assert.Equal(t, "cart applies discount", got.FailedTests[0].FullName)
			assert.Equal(t, "AssertionError: expected 90 to be 80", got.FailedTests[0].Message)
			assert.Equal(t, "/repo/src/broken.test.ts", got.FailedTests[1].FullName)
			assert.Contains(t, got.RawOutput, "Failed to load url")
		})
	}
}

func TestParseVitestReport_Invalid(t *testing.T) {
	_, err := ParseVitestReport([]byte("not json"))
	assert.Error(t, err)
}

func TestParseVitestSummary(t *testing.T) {
	out := "\x1b[31m FAIL \x1b[39m src/cart.test.ts > cart > applies discount\n" +
		" Test Files  1 failed | 3 passed (4)\n" +
		"      Tests  2 failed | 10 passed | 1 skipped (13)\n"

	got := ParseVitestSummary(out)
	assert.Equal(t, 13, got.Total)
	assert.Equal(t, 2, got.Failed)
	assert.Equal(t, 10, got.PassedCount)
	assert.Equal(t, 1, got.Skipped)
	require.Len(t, got.FailedTests, 1)
	assert.Equal(t, "src/cart.test.ts > cart > applies discount", got.FailedTests[0].FullName)
}

func TestParseVitestSummary_NoTests(t *testing.T) {
	got := ParseVitestSummary("No test files found, exiting with code 1")
	assert.Equal(t, 0, got.Total)
	assert.Equal(t, FailureNoTests, ClassifyTestFailure(got))
}
