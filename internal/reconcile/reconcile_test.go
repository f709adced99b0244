package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/gherkinsync/internal/render"
	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func baseOptions() types.SyncOptions {
	return types.SyncOptions{
		ProjectName:         "Acme",
		TestPlanID:          7,
		TestSuiteID:         8,
		DescriptionTemplate: "[FeatureName]: [TestCaseName]",
		Tags:                types.DefaultTagPrefixes(),
		OnFailure:           types.OnFailureAbort,
	}
}

func candidate(name string, id int) types.TestCaseCandidate {
	return types.TestCaseCandidate{
		FeatureName:  "Feature",
		TestCaseName: name,
		Steps:        []string{"Given " + name},
		TestCaseID:   id,
		ExampleRow:   -1,
	}
}

func fixedID() string { return "00000000-0000-0000-0000-000000000001" }

func opsByField(patch []types.PatchOperation) map[string]types.PatchOperation {
	out := make(map[string]types.PatchOperation, len(patch))
	for _, op := range patch {
		out[op.Path] = op
	}
	return out
}

func TestUpsert_CreatesNewRecord(t *testing.T) {
	store := newFakeStore()
	r := New(store, baseOptions(), WithFormatter(render.Plain))

	res := r.Upsert(context.Background(), candidate("Login", types.NoTestCaseID))
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.True(t, res.Created)
	assert.Equal(t, 101, res.ID)

	ops := opsByField(store.patches[101])
	require.Contains(t, ops, "/fields/System.Title")
	for _, op := range ops {
		assert.Equal(t, types.PatchAdd, op.Op, "new record fields are added: %s", op.Path)
	}
	assert.Equal(t, "Login", ops["/fields/System.Title"].Value)
	assert.Equal(t, "Feature: Login", ops["/fields/System.Description"].Value)
	assert.Equal(t, render.StepsXML([]string{"Given Login"}), ops["/fields/Microsoft.VSTS.TCM.Steps"].Value)
	assert.Equal(t, []string{"create 101 Acme/Test Case"}, store.writes())
}

func TestUpsert_UpdatesExistingRecord(t *testing.T) {
	store := newFakeStore()
	store.put(5, map[string]any{types.FieldTitle: "old", types.FieldDescription: "old"})
	r := New(store, baseOptions())

	res := r.Upsert(context.Background(), candidate("Login", 5))
	require.True(t, res.OK())
	assert.False(t, res.Created)
	assert.Equal(t, 5, res.ID)

	ops := opsByField(store.patches[5])
	assert.Equal(t, types.PatchReplace, ops["/fields/System.Title"].Op)
	assert.Equal(t, types.PatchReplace, ops["/fields/System.Description"].Op)
	assert.Equal(t, types.PatchAdd, ops["/fields/Microsoft.VSTS.TCM.Steps"].Op)
	assert.Equal(t, "<div>Feature:&nbsp;Login</div>", ops["/fields/System.Description"].Value)
	assert.Equal(t, []string{"update 5"}, store.writes())
}

func TestUpsert_NotFoundFallsBackToCreate(t *testing.T) {
	store := newFakeStore()
	r := New(store, baseOptions())

	res := r.Upsert(context.Background(), candidate("Gone", 55))
	require.True(t, res.OK())
	assert.True(t, res.Created)
	assert.Equal(t, 101, res.ID)
}

func TestUpsert_ReadFailureIsReported(t *testing.T) {
	store := newFakeStore()
	store.failGet[5] = types.ErrUnauthorized
	r := New(store, baseOptions())

	res := r.Upsert(context.Background(), candidate("Login", 5))
	require.False(t, res.OK())
	assert.Equal(t, 5, res.ID, "failed upsert keeps the original id")
	assert.ErrorIs(t, res.Err, types.ErrUnauthorized)

	var ue *UpsertError
	require.ErrorAs(t, res.Err, &ue)
	assert.Equal(t, "Login", ue.TestCaseName)
	assert.Empty(t, store.writes())
}

func TestBuildPatch_CustomFieldsForced(t *testing.T) {
	opts := baseOptions()
	opts.CustomFields = []types.CustomField{
		{Name: "Microsoft.VSTS.Common.Priority", DefaultValue: "2"},
		{Name: "Custom.Team", DefaultValue: "QA"},
	}
	r := New(newFakeStore(), opts)
	existing := types.RemoteTestCase{ID: 1, Fields: map[string]any{"Custom.Team": "edited by hand"}}

	ops := opsByField(r.BuildPatch(candidate("x", 1), existing))
	assert.Equal(t, types.PatchOperation{Op: types.PatchAdd, Path: "/fields/Microsoft.VSTS.Common.Priority", Value: "2"}, ops["/fields/Microsoft.VSTS.Common.Priority"])
	assert.Equal(t, types.PatchOperation{Op: types.PatchReplace, Path: "/fields/Custom.Team", Value: "QA"}, ops["/fields/Custom.Team"])
}

func TestBuildPatch_BackgroundAsSteps(t *testing.T) {
	c := candidate("x", 1)
	c.BackgroundSteps = []string{"Given a background"}

	opts := baseOptions()
	withoutBg := opsByField(New(newFakeStore(), opts).BuildPatch(c, types.RemoteTestCase{}))
	assert.Equal(t, render.StepsXML([]string{"Given x"}), withoutBg["/fields/Microsoft.VSTS.TCM.Steps"].Value)

	opts.BackgroundAsSteps = true
	withBg := opsByField(New(newFakeStore(), opts).BuildPatch(c, types.RemoteTestCase{}))
	assert.Equal(t, render.StepsXML([]string{"Given a background", "Given x"}), withBg["/fields/Microsoft.VSTS.TCM.Steps"].Value)
}

func TestBuildPatch_Automation(t *testing.T) {
	c := candidate("x", 1)
	c.AutomationEnabled = true
	c.AutomatedTestName = "Acme.Tests.X"
	c.AutomatedTestStorage = "Acme.Tests.dll"

	r := New(newFakeStore(), baseOptions(), WithIDGenerator(fixedID))

	t.Run("mints a new automated test id", func(t *testing.T) {
		ops := opsByField(r.BuildPatch(c, types.RemoteTestCase{}))
		assert.Equal(t, fixedID(), ops["/fields/Microsoft.VSTS.TCM.AutomatedTestId"].Value)
		assert.Equal(t, "Acme.Tests.X", ops["/fields/Microsoft.VSTS.TCM.AutomatedTestName"].Value)
		assert.Equal(t, "Acme.Tests.dll", ops["/fields/Microsoft.VSTS.TCM.AutomatedTestStorage"].Value)
		assert.Contains(t, ops, "/fields/Microsoft.VSTS.TCM.AutomatedTestType")
	})

	t.Run("preserves an existing automated test id", func(t *testing.T) {
		existing := types.RemoteTestCase{ID: 1, Fields: map[string]any{types.FieldAutomatedTestID: "keep-me"}}
		ops := opsByField(r.BuildPatch(c, existing))
		assert.Equal(t, types.PatchOperation{Op: types.PatchReplace, Path: "/fields/Microsoft.VSTS.TCM.AutomatedTestId", Value: "keep-me"},
			ops["/fields/Microsoft.VSTS.TCM.AutomatedTestId"])
	})

	t.Run("no automation fields when disabled", func(t *testing.T) {
		plain := candidate("x", 1)
		ops := opsByField(r.BuildPatch(plain, types.RemoteTestCase{}))
		assert.NotContains(t, ops, "/fields/Microsoft.VSTS.TCM.AutomatedTestId")
		assert.NotContains(t, ops, "/fields/Microsoft.VSTS.TCM.AutomatedTestName")
	})
}

func TestObsolete(t *testing.T) {
	members := []types.RemoteTestCase{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 1}}
	assert.Equal(t, []string{"1"}, Obsolete(members, []int{2, 3, 4}))
	assert.Nil(t, Obsolete(nil, []int{1}))
	assert.Equal(t, []string{"1", "2"}, Obsolete(members[:2], nil))
}

func TestRun_SuiteDiff(t *testing.T) {
	setup := func() *fakeStore {
		store := newFakeStore()
		for _, id := range []int{1, 2, 3, 4} {
			store.put(id, map[string]any{types.FieldTitle: "t"})
		}
		store.members = []int{1, 2, 3}
		return store
	}
	candidates := []types.TestCaseCandidate{candidate("two", 2), candidate("three", 3), candidate("four", 4)}

	t.Run("pruning enabled", func(t *testing.T) {
		store := setup()
		opts := baseOptions()
		opts.RemoveFromSuite = true

		report, err := New(store, opts).Run(context.Background(), candidates)
		require.NoError(t, err)
		assert.Equal(t, []int{4}, report.Added)
		assert.Equal(t, []string{"1"}, report.Removed)
		assert.Equal(t, []string{"update 2", "update 3", "update 4", "add [4]", "remove 1"}, store.writes())
	})

	t.Run("pruning disabled", func(t *testing.T) {
		store := setup()

		report, err := New(store, baseOptions()).Run(context.Background(), candidates)
		require.NoError(t, err)
		assert.Equal(t, []int{4}, report.Added)
		assert.Empty(t, report.Removed)
		for _, w := range store.writes() {
			assert.NotContains(t, w, "remove")
		}
	})
}

func TestRun_AssignsIDsInOrder(t *testing.T) {
	store := newFakeStore()
	candidates := []types.TestCaseCandidate{candidate("a", -1), candidate("b", -1)}

	report, err := New(store, baseOptions()).Run(context.Background(), candidates)
	require.NoError(t, err)

	updated := report.Apply(candidates)
	assert.Equal(t, 101, updated[0].TestCaseID)
	assert.Equal(t, 102, updated[1].TestCaseID)
	assert.Equal(t, -1, candidates[0].TestCaseID, "Apply does not mutate its input")
	assert.Equal(t, 2, report.Created())
	assert.Equal(t, []string{"create 101 Acme/Test Case", "create 102 Acme/Test Case", "add [101 102]"}, store.writes())
}

func TestRun_AbortPolicy(t *testing.T) {
	store := newFakeStore()
	store.failCreate["b"] = errors.New("boom")
	candidates := []types.TestCaseCandidate{candidate("a", -1), candidate("b", -1), candidate("c", -1)}

	report, err := New(store, baseOptions()).Run(context.Background(), candidates)
	require.Error(t, err)

	var ue *UpsertError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "b", ue.TestCaseName)
	assert.Len(t, report.Results, 2)
	assert.Equal(t, []string{"create 101 Acme/Test Case", "create-failed b"}, store.writes())

	updated := report.Apply(candidates)
	assert.Equal(t, 101, updated[0].TestCaseID)
	assert.Equal(t, -1, updated[1].TestCaseID)
	assert.Equal(t, -1, updated[2].TestCaseID)
}

func TestRun_ContinuePolicy(t *testing.T) {
	store := newFakeStore()
	store.put(9, map[string]any{})
	store.members = []int{9}
	store.failGet[9] = errors.New("transient")

	opts := baseOptions()
	opts.OnFailure = types.OnFailureContinue
	opts.RemoveFromSuite = true

	candidates := []types.TestCaseCandidate{candidate("flaky", 9), candidate("new", -1)}
	report, err := New(store, opts).Run(context.Background(), candidates)
	require.NoError(t, err)

	require.Len(t, report.Failures(), 1)
	assert.Equal(t, 9, report.Failures()[0].ID)
	assert.Equal(t, []int{101}, report.Added)
	assert.Empty(t, report.Removed, "a failed candidate keeps its suite membership")
}

func TestRun_DryRun(t *testing.T) {
	store := newFakeStore()
	store.put(2, map[string]any{})
	store.members = []int{1, 2}

	opts := baseOptions()
	opts.DryRun = true
	opts.RemoveFromSuite = true

	report, err := New(store, opts).Run(context.Background(), []types.TestCaseCandidate{candidate("a", 2), candidate("b", -1)})
	require.NoError(t, err)
	assert.Empty(t, store.writes())
	assert.Equal(t, []string{"1"}, report.Removed)
	assert.Equal(t, 1, report.Created())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(store, baseOptions()).Run(ctx, []types.TestCaseCandidate{candidate("a", -1)})
	assert.ErrorIs(t, err, types.ErrCancelled)
	assert.Empty(t, store.calls)
}

func TestPrefetch_ReadsEachIDOnce(t *testing.T) {
	store := newFakeStore()
	for _, id := range []int{1, 2, 3} {
		store.put(id, map[string]any{types.FieldTitle: "t"})
	}
	candidates := []types.TestCaseCandidate{
		candidate("a", 1), candidate("b", 2), candidate("c", 2), candidate("d", 3), candidate("e", -1),
	}

	cache, err := New(store, baseOptions(), WithWorkers(2)).Prefetch(context.Background(), candidates)
	require.NoError(t, err)
	assert.Len(t, cache, 3)
	assert.Len(t, store.calls, 3)
}

func TestPruneSuite_Empty(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, New(store, baseOptions()).PruneSuite(context.Background(), nil))
	assert.Empty(t, store.calls)
}

func TestEnsureInSuite_SkipsMembersAndDuplicates(t *testing.T) {
	store := newFakeStore()
	r := New(store, baseOptions())

	added, err := r.EnsureInSuite(context.Background(), []types.RemoteTestCase{{ID: 1}}, []int{1, 2, 2, -1, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, added)
	assert.Equal(t, []string{"add [2 3]"}, store.writes())
}
