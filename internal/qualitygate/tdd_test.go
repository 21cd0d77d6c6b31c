package qualitygate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"src/cart.test.ts", true},
		{"cart.spec.js", true},
		{"src/__tests__/cart.ts", true},
		{"__tests__/deep/nested/cart.tsx", true},
		{"src/cart.ts", false},
		{"src/testing/helpers.ts", false},
		{"docs/spec.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTestFile(tt.path))
		})
	}
}

func TestCheckTDD(t *testing.T) {
	withTests := `diff --git a/src/cart.test.ts b/src/cart.test.ts
new file mode 100644
--- /dev/null
+++ b/src/cart.test.ts
@@ -0,0 +1,5 @@
+import { total } from './cart'
+it('sums', () => {
+  expect(total([1, 2])).toBe(3)
+})
`
	noAssertions := `--- /dev/null
+++ b/src/cart.test.ts
@@ -0,0 +1,2 @@
+import { total } from './cart'
+// TODO
`

	base := Input{TaskType: TaskTypeFeature, TDDPhase: TDDPhaseTestWriting, Config: Config{EnforceTDD: true}}

	tests := []struct {
		name      string
		mutate    func(*Input)
		wantOK    bool
		wantIssue string
	}{
		{"tests with assertions", func(in *Input) { in.Diff = withTests }, true, ""},
		{"no test files", func(in *Input) { in.Diff = sampleDiff }, false, "no test files"},
		{"no assertions", func(in *Input) { in.Diff = noAssertions }, false, "no assertions"},
		{"enforcement off", func(in *Input) { in.Config.EnforceTDD = false }, true, ""},
		{"not a feature", func(in *Input) { in.TaskType = TaskTypeBugfix }, true, ""},
		{"implementation phase", func(in *Input) { in.TDDPhase = "implementation" }, true, ""},
		{"red alias", func(in *Input) { in.TDDPhase = "red" }, false, "no test files"},
		{"green alias", func(in *Input) { in.TDDPhase = "green" }, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			stage, ok := checkTDD(in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantIssue != "" {
				assert.Equal(t, StageCompleteness, stage.Stage)
				assert.Contains(t, stage.Issues[0], tt.wantIssue)
			}
		})
	}
}

func TestNormalizeTDDPhase(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"", "", true},
		{"test-writing", TDDPhaseTestWriting, true},
		{" RED ", TDDPhaseTestWriting, true},
		{"green", TDDPhaseImplementation, true},
		{"refactor", TDDPhaseRefactor, true},
		{"blue", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeTDDPhase(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestTestsRequired(t *testing.T) {
	tests := []struct {
		taskType, desc string
		want           bool
	}{
		{TaskTypeFeature, "update README", true},
		{TaskTypeDocs, "implement parser", false},
		{TaskTypeRefactor, "", false},
		{"", "Correct a typo in the README", false},
		{"", "Fix off-by-one in pagination logic", true},
		{"", "something vague", true},
		{TaskTypeBugfix, "Bump lint config", false},
	}

	for _, tt := range tests {
		t.Run(tt.taskType+"/"+tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, TestsRequired(tt.taskType, tt.desc))
		})
	}
}
