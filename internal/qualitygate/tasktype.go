package qualitygate

import (
	"regexp"
	"strings"
)

var (
	testsOptionalPattern = regexp.MustCompile(`(?i)\b(readme|docs?|documentation|typo|comment|changelog|rename|reformat|formatting|lint|config(uration)?|bump|chore)\b`)
	testsRequiredPattern = regexp.MustCompile(`(?i)\b(add|implement|fix|bug|feature|support|handle|endpoint|api|logic|behaviou?r|validate|parse|compute)\b`)
)

// TestsRequired reports whether a task of taskType must ship with tests.
// Feature tasks always do; docs, refactor and other tasks never do. For any
// other type the description decides, defaulting to required.
func TestsRequired(taskType, description string) bool {
	switch strings.ToLower(strings.TrimSpace(taskType)) {
	case TaskTypeFeature:
		return true
	case TaskTypeDocs, TaskTypeRefactor, TaskTypeOther:
		return false
	}
	optional := testsOptionalPattern.MatchString(description)
	required := testsRequiredPattern.MatchString(description)
	if optional && !required {
		return false
	}
	return true
}
