package qualitygate

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var testFilePatterns = []string{
	"**/*.test.*",
	"**/*.spec.*",
	"**/__tests__/**",
	"*.test.*",
	"*.spec.*",
	"__tests__/**",
}

var assertionPattern = regexp.MustCompile(`\b(expect|assert|should)\s*[.(]|\bt\.(Error|Errorf|Fatal|Fatalf)\(|\b(toBe|toEqual|toThrow|toMatch)\w*\(`)

// IsTestFile reports whether path looks like a test file.
func IsTestFile(path string) bool {
	path = strings.TrimPrefix(path, "./")
	for _, pattern := range testFilePatterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// addedLines maps each file in a unified diff to its added lines.
func addedLines(diff string) map[string][]string {
	files := make(map[string][]string)
	var current string
	sc := bufio.NewScanner(strings.NewReader(diff))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "+++ "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "+++ "))
			if target == "/dev/null" {
				current = ""
				continue
			}
			current = strings.TrimPrefix(target, "b/")
			if _, ok := files[current]; !ok {
				files[current] = nil
			}
		case strings.HasPrefix(line, "+") && current != "":
			files[current] = append(files[current], line[1:])
		}
	}
	return files
}

// checkTDD verifies that a test-writing phase diff adds test files that
// contain assertions. It returns a failed completeness stage on violation.
func checkTDD(in Input) (StageResult, bool) {
	phase, _ := NormalizeTDDPhase(in.TDDPhase)
	if !in.Config.EnforceTDD || !strings.EqualFold(in.TaskType, TaskTypeFeature) || phase != TDDPhaseTestWriting {
		return StageResult{}, true
	}

	var testFiles []string
	hasAssertions := false
	for path, lines := range addedLines(in.Diff) {
		if !IsTestFile(path) {
			continue
		}
		testFiles = append(testFiles, path)
		for _, l := range lines {
			if assertionPattern.MatchString(l) {
				hasAssertions = true
				break
			}
		}
	}

	if len(testFiles) == 0 {
		return tddFailure("TDD: test-writing phase added no test files",
			"Add .test./.spec. files or a __tests__/ directory with failing tests before implementing"), false
	}
	if !hasAssertions {
		return tddFailure("TDD: added test files contain no assertions",
			"Write assertions (expect/assert) that describe the intended behavior"), false
	}
	return StageResult{}, true
}

func tddFailure(issue, suggestion string) StageResult {
	return StageResult{
		Stage:       StageCompleteness,
		Issues:      []string{issue},
		Suggestions: []string{suggestion},
	}
}
