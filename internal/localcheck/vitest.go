package localcheck

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type vitestReport struct {
	NumTotalTests   int           `json:"numTotalTests"`
	NumPassedTests  int           `json:"numPassedTests"`
	NumFailedTests  int           `json:"numFailedTests"`
	NumPendingTests int           `json:"numPendingTests"`
	NumTodoTests    int           `json:"numTodoTests"`
	Success         *bool         `json:"success"`
	TestResults     []vitestSuite `json:"testResults"`
}

type vitestSuite struct {
	Name             string            `json:"name"`
	Status           string            `json:"status"`
	Message          string            `json:"message"`
	AssertionResults []vitestAssertion `json:"assertionResults"`
}

type vitestAssertion struct {
	FullName        string   `json:"fullName"`
	Title           string   `json:"title"`
	Status          string   `json:"status"`
	FailureMessages []string `json:"failureMessages"`
}

// decodeReport normalizes a report to UTF-8. Reports written by shell
// redirection on Windows arrive as UTF-16LE, with or without a BOM, and
// editors sometimes add a UTF-8 BOM.
func decodeReport(data []byte) ([]byte, error) {
	enc := unicode.UTF8
	if len(data) >= 2 && data[0] != 0 && data[1] == 0 {
		enc = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(enc.NewDecoder()), data)
	if err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return bytes.TrimSpace(out), nil
}

// ParseVitestReport parses a vitest JSON reporter file.
func ParseVitestReport(data []byte) (TestResult, error) {
	clean, err := decodeReport(data)
	if err != nil {
		return TestResult{}, err
	}

	var report vitestReport
	if err := json.Unmarshal(clean, &report); err != nil {
		return TestResult{}, fmt.Errorf("parse vitest report: %w", err)
	}

	result := TestResult{
		Total:       report.NumTotalTests,
		PassedCount: report.NumPassedTests,
		Failed:      report.NumFailedTests,
		Skipped:     report.NumPendingTests + report.NumTodoTests,
		FailedTests: []FailedTest{},
	}
	for _, suite := range report.TestResults {
		failedInSuite := 0
		for _, a := range suite.AssertionResults {
			if a.Status != "failed" {
				continue
			}
			failedInSuite++
			name := a.FullName
			if name == "" {
				name = a.Title
			}
			result.FailedTests = append(result.FailedTests, FailedTest{
				Suite:    suite.Name,
				FullName: name,
				Message:  firstLine(a.FailureMessages),
			})
		}
		// A suite that fails to load reports no assertions, only a message.
		if suite.Status == "failed" && failedInSuite == 0 {
			result.FailedTests = append(result.FailedTests, FailedTest{
				Suite:    suite.Name,
				FullName: suite.Name,
				Message:  firstLine([]string{suite.Message}),
			})
			result.RawOutput += suite.Message + "\n"
		}
	}
	return result, nil
}

func firstLine(msgs []string) string {
	if len(msgs) == 0 {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(msgs[0]), "\n")
	return strings.TrimSpace(line)
}

var (
	ansiPattern      = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	testsLinePattern = regexp.MustCompile(`(?m)^\s*Tests\s+(.+?)\s*\((\d+)\)\s*$`)
	countPattern     = regexp.MustCompile(`(\d+)\s+(failed|passed|skipped|todo)`)
	failLinePattern  = regexp.MustCompile(`(?m)^\s*(?:FAIL|×|✗)\s+(.+?)\s*$`)
)

// ParseVitestSummary extracts counts from vitest's console summary, e.g.
// "Tests  2 failed | 10 passed (12)". It is the fallback when no JSON
// report is configured.
func ParseVitestSummary(output string) TestResult {
	clean := ansiPattern.ReplaceAllString(output, "")
	result := TestResult{RawOutput: output, FailedTests: []FailedTest{}}

	if m := testsLinePattern.FindStringSubmatch(clean); m != nil {
		result.Total, _ = strconv.Atoi(m[2])
		for _, c := range countPattern.FindAllStringSubmatch(m[1], -1) {
			n, _ := strconv.Atoi(c[1])
			switch c[2] {
			case "failed":
				result.Failed = n
			case "passed":
				result.PassedCount = n
			default:
				result.Skipped += n
			}
		}
	}
	for _, m := range failLinePattern.FindAllStringSubmatch(clean, -1) {
		result.FailedTests = append(result.FailedTests, FailedTest{FullName: m[1]})
	}
	return result
}
