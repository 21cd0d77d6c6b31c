package team

import (
	"slices"
	"testing"

	"github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/spec"
)

// coverageSpec owns every section except risks. R1 is owned in the spec,
// R2 through an explicit assignment, R3 through a task, R4 by nobody.
func coverageSpec() *spec.Spec {
	var dri []spec.DRIAssignment
	for _, sec := range spec.StructuralSections {
		if sec == spec.SectionRisks {
			continue
		}
		dri = append(dri, spec.DRIAssignment{Section: string(sec), Owner: "dana"})
	}
	return &spec.Spec{
		ID:    "auth",
		Title: "Auth",
		Requirements: []spec.Requirement{
			{ID: "R1", AssignedDRI: "erin"},
			{ID: "R2"},
			{ID: "R3"},
			{ID: "R4"},
		},
		DRI: dri,
	}
}

func TestValidateDRICoverage(t *testing.T) {
	env := newTestCoordinator(t)
	_, workers := spawnTeam(t, env.c, "alice")

	if _, err := env.c.ValidateDRICoverage("t1"); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("without spec error = %v, want ErrNotFound", err)
	}

	if err := env.c.SetSpec("t1", coverageSpec()); err != nil {
		t.Fatalf("SetSpec: %v", err)
	}
	if err := env.c.SetDRIAssignments("t1", []spec.DRIAssignment{{Section: "R2", Owner: "frank"}}); err != nil {
		t.Fatalf("SetDRIAssignments: %v", err)
	}
	if _, err := env.c.CreateTask("t1", TaskInput{Title: "R3 work", AssigneeID: workers[0].ID, RequirementIDs: []string{"R3"}, DRIOwner: "gina"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	cov, err := env.c.ValidateDRICoverage("t1")
	if err != nil {
		t.Fatalf("ValidateDRICoverage: %v", err)
	}
	if cov.Complete {
		t.Error("Complete = true, want false")
	}
	if want := []spec.Section{spec.SectionRisks}; !slices.Equal(cov.MissingSections, want) {
		t.Errorf("MissingSections = %v, want %v", cov.MissingSections, want)
	}
	if want := []string{"R4"}; !slices.Equal(cov.UnownedRequirements, want) {
		t.Errorf("UnownedRequirements = %v, want %v", cov.UnownedRequirements, want)
	}
	for id, owner := range map[string]string{"R1": "erin", "R2": "frank", "R3": "gina", "goals": "dana"} {
		if cov.Owners[id] != owner {
			t.Errorf("Owners[%s] = %q, want %q", id, cov.Owners[id], owner)
		}
	}

	if err := env.c.SetDRIAssignments("t1", []spec.DRIAssignment{
		{Section: "R2", Owner: "frank"},
		{Section: "R4", Owner: "hal"},
		{Section: string(spec.SectionRisks), Owner: "ivy"},
	}); err != nil {
		t.Fatalf("SetDRIAssignments: %v", err)
	}
	cov, _ = env.c.ValidateDRICoverage("t1")
	if !cov.Complete {
		t.Errorf("Complete = false after assigning the gaps: %+v", cov)
	}
}

func TestSetDRIAssignments_Validation(t *testing.T) {
	env := newTestCoordinator(t)
	spawnTeam(t, env.c)
	err := env.c.SetDRIAssignments("t1", []spec.DRIAssignment{{Section: "goals"}})
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestRequirementCoverage(t *testing.T) {
	env := newTestCoordinator(t)
	_, workers := spawnTeam(t, env.c, "alice")

	cov, err := env.c.RequirementCoverage("t1")
	if err != nil {
		t.Fatalf("RequirementCoverage: %v", err)
	}
	if cov.Percent != 100 || cov.Total != 0 {
		t.Errorf("without spec = %+v, want 100%% of 0", cov)
	}

	if err := env.c.SetSpec("t1", coverageSpec()); err != nil {
		t.Fatalf("SetSpec: %v", err)
	}
	for _, ids := range [][]string{{"R1"}, {"R1", "R3"}} {
		if _, err := env.c.CreateTask("t1", TaskInput{Title: "x", AssigneeID: workers[0].ID, RequirementIDs: ids}); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	cov, _ = env.c.RequirementCoverage("t1")
	if cov.Total != 4 || cov.Covered != 2 || cov.Percent != 50 {
		t.Errorf("coverage = %+v, want 2/4 = 50%%", cov)
	}
	if want := []string{"R2", "R4"}; !slices.Equal(cov.Uncovered, want) {
		t.Errorf("Uncovered = %v, want %v", cov.Uncovered, want)
	}
}

func TestCanClosePlan(t *testing.T) {
	env := newTestCoordinator(t)
	_, workers := spawnTeam(t, env.c, "alice")

	blockers, err := env.c.CanClosePlan("t1")
	if err != nil {
		t.Fatalf("CanClosePlan: %v", err)
	}
	if len(blockers) != 1 {
		t.Errorf("without spec blockers = %v, want one", blockers)
	}

	if err := env.c.SetSpec("t1", coverageSpec()); err != nil {
		t.Fatalf("SetSpec: %v", err)
	}
	if _, err := env.c.CreateTask("t1", TaskInput{Title: "x", AssigneeID: workers[0].ID, RequirementIDs: []string{"R1", "R2", "R3"}, DRIOwner: "gina"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	blockers, _ = env.c.CanClosePlan("t1")
	want := []string{
		"section risks has no DRI",
		"requirement R4 has no DRI",
		"requirement R4 is not covered by any task",
	}
	if !slices.Equal(blockers, want) {
		t.Errorf("blockers = %v, want %v", blockers, want)
	}
}

func TestAutoSynthesize(t *testing.T) {
	env := newTestCoordinator(t)
	lead, workers := spawnTeam(t, env.c, "alice", "bob")
	if err := env.c.SetSpec("t1", coverageSpec()); err != nil {
		t.Fatalf("SetSpec: %v", err)
	}

	a, _ := env.c.CreateTask("t1", TaskInput{Title: "a", AssigneeID: workers[0].ID, RequirementIDs: []string{"R1"}})
	b, _ := env.c.CreateTask("t1", TaskInput{Title: "b", AssigneeID: workers[1].ID, RequirementIDs: []string{"R2"}})
	if _, err := env.c.CreateTask("t1", TaskInput{Title: "lead notes", AssigneeID: lead.ID}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if _, fired, _ := env.c.AutoSynthesize("t1"); fired {
		t.Fatal("synthesis fired before any task completed")
	}

	if _, err := env.c.UpdateTaskStatus("t1", a.ID, TaskCompleted); err != nil {
		t.Fatalf("complete a: %v", err)
	}
	if env.events.count(event.SynthesisRequested) != 0 {
		t.Fatal("synthesis fired with b outstanding")
	}

	var got SynthesisRequest
	env.bus.Subscribe(event.SynthesisRequested, func(e event.Event) {
		got = e.(event.CoordinatorEvent).Payload.(SynthesisRequest)
	})
	if _, err := env.c.UpdateTaskStatus("t1", b.ID, TaskCompleted); err != nil {
		t.Fatalf("complete b: %v", err)
	}
	if env.events.count(event.SynthesisRequested) != 1 {
		t.Fatal("synthesis not requested after last assigned task completed")
	}
	if len(got.CompletedTasks) != 2 {
		t.Errorf("CompletedTasks = %d, want 2", len(got.CompletedTasks))
	}
	if len(got.Outstanding) != 1 {
		t.Errorf("Outstanding = %v, want the lead's task", got.Outstanding)
	}
	if got.Coverage.Percent != 50 {
		t.Errorf("Coverage = %+v, want 50%%", got.Coverage)
	}
	if got.DRICoverage == nil || got.DRICoverage.Complete {
		t.Errorf("DRICoverage = %+v, want incomplete annotation", got.DRICoverage)
	}
	if len(got.PlanBlockers) == 0 {
		t.Error("PlanBlockers should list the open gaps")
	}

	if _, fired, err := env.c.AutoSynthesize("t1"); err != nil || fired {
		t.Errorf("second AutoSynthesize = (%v, %v), want not fired", fired, err)
	}
	if env.events.count(event.SynthesisRequested) != 1 {
		t.Error("synthesis must fire at most once")
	}
}

func TestAutoSynthesize_NoAssignedTasks(t *testing.T) {
	env := newTestCoordinator(t)
	spawnTeam(t, env.c, "alice")
	if _, err := env.c.CreateTask("t1", TaskInput{Title: "unassigned"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, fired, err := env.c.AutoSynthesize("t1"); err != nil || fired {
		t.Errorf("AutoSynthesize = (%v, %v), want not fired", fired, err)
	}
}
