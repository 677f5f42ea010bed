package governance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/prefcanon/internal/schema"
)

func newTestStore(t *testing.T) *schema.Store {
	t.Helper()

	st := schema.NewStore(nil, schema.WithPath(filepath.Join(t.TempDir(), "schema.json")))
	if err := st.AddCategory("job_type", []string{"Employment"}); err != nil {
		t.Fatalf("seeding category: %v", err)
	}
	if err := st.AddCanonicalValue("job_type", "Full-time", []string{"Full Time"}); err != nil {
		t.Fatalf("seeding value: %v", err)
	}
	return st
}

func openTestQueue(t *testing.T, st *schema.Store) (*Queue, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pending.json")
	q, err := Open(path, st, WithClock(func() time.Time {
		return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	}))
	if err != nil {
		t.Fatalf("opening queue: %v", err)
	}
	return q, path
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	q, _ := openTestQueue(t, newTestStore(t))
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestOpenMalformedFile(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":       "{",
		"unknown field":  `[{"id":"1","action_type":"Creation","new_category":"x","extra":1}]`,
		"unknown type":   `[{"id":"1","action_type":"Merge","new_category":"x"}]`,
		"missing id":     `[{"action_type":"Creation","new_category":"x"}]`,
		"duplicate id":   `[{"id":"1","action_type":"Creation","new_category":"x"},{"id":"1","action_type":"Creation","new_category":"y"}]`,
		"missing fields": `[{"id":"1","action_type":"Mapping","old_category":"x"}]`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "pending.json")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("writing file: %v", err)
			}

			_, err := Open(path, newTestStore(t))
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected *LoadError, got %v", err)
			}
		})
	}
}

func TestAddPersistsAndReloads(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	q, path := openTestQueue(t, st)

	first, err := q.Add(CategoryMapping{Category: "job_type", Synonym: "Contract Kind"}, 0.82)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := q.AddFields(Creation, Fields{NewCategory: "job_type", NewValue: "Gig"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct ids, got %q and %q", first.ID, second.ID)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading queue file: %v", err)
	}
	for _, want := range []string{`"action_type": "Mapping"`, `"new_value": "Gig"`, `"created_at": "2026-10-19T12:00:00Z"`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("expected %s in queue file:\n%s", want, data)
		}
	}

	reopened, err := Open(path, st)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}

	got := reopened.List()
	if len(got) != 2 {
		t.Fatalf("expected 2 actions after reload, got %d", len(got))
	}
	if got[0].ID != first.ID || got[0].Proposal != first.Proposal || got[0].Score != 0.82 {
		t.Fatalf("unexpected first action after reload: %+v", got[0])
	}
	if got[1].Proposal != (ValueCreation{Category: "job_type", Value: "Gig"}) {
		t.Fatalf("unexpected second action after reload: %+v", got[1])
	}
	if !got[0].CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected timestamp %v, got %v", first.CreatedAt, got[0].CreatedAt)
	}
}

func TestAddRejectsInvalidProposal(t *testing.T) {
	t.Parallel()

	q, _ := openTestQueue(t, newTestStore(t))
	if _, err := q.Add(CategoryCreation{}, 0); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected invalid proposal not to be queued")
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		proposal Proposal
		check    func(t *testing.T, st *schema.Store)
	}{
		{
			name:     "category mapping adds synonym",
			proposal: CategoryMapping{Category: "job_type", Synonym: "Contract Kind"},
			check: func(t *testing.T, st *schema.Store) {
				c, _ := st.Category("job_type")
				if !slices.Contains(c.Synonyms, "Contract Kind") {
					t.Fatalf("expected synonym, got %v", c.Synonyms)
				}
			},
		},
		{
			name:     "category mapping creates missing parent",
			proposal: CategoryMapping{Category: "benefits", Synonym: "Perks"},
			check: func(t *testing.T, st *schema.Store) {
				c, ok := st.Category("benefits")
				if !ok || !slices.Equal(c.Synonyms, []string{"Perks"}) {
					t.Fatalf("expected new category with synonym, got %+v", c)
				}
			},
		},
		{
			name:     "value mapping adds variant",
			proposal: ValueMapping{Category: "job_type", Value: "Full-time", Variant: "full-tim"},
			check: func(t *testing.T, st *schema.Store) {
				variants, _ := st.Variants("job_type", "Full-time")
				if !slices.Equal(variants, []string{"Full Time", "full-tim"}) {
					t.Fatalf("unexpected variants %v", variants)
				}
			},
		},
		{
			name:     "value mapping creates missing category and value",
			proposal: ValueMapping{Category: "shift", Value: "Night", Variant: "Nights"},
			check: func(t *testing.T, st *schema.Store) {
				variants, err := st.Variants("shift", "Night")
				if err != nil || !slices.Equal(variants, []string{"Nights"}) {
					t.Fatalf("unexpected variants %v (%v)", variants, err)
				}
			},
		},
		{
			name:     "category creation",
			proposal: CategoryCreation{Category: "benefits"},
			check: func(t *testing.T, st *schema.Store) {
				c, ok := st.Category("benefits")
				if !ok || len(c.Values) != 0 || len(c.Synonyms) != 0 {
					t.Fatalf("expected empty category, got %+v", c)
				}
			},
		},
		{
			name:     "value creation ensures category",
			proposal: ValueCreation{Category: "shift", Value: "Day"},
			check: func(t *testing.T, st *schema.Store) {
				values, err := st.Values("shift")
				if err != nil || !slices.Equal(values, []string{"Day"}) {
					t.Fatalf("unexpected values %v (%v)", values, err)
				}
			},
		},
		{
			name:     "duplicate creation is a no-op",
			proposal: CategoryCreation{Category: "JOB_TYPE"},
			check: func(t *testing.T, st *schema.Store) {
				if got := st.Names(); !slices.Equal(got, []string{"job_type"}) {
					t.Fatalf("expected schema unchanged, got %v", got)
				}
			},
		},
		{
			name:     "category mapping resolves parent ignoring case",
			proposal: CategoryMapping{Category: "Job_Type", Synonym: "Position Kind"},
			check: func(t *testing.T, st *schema.Store) {
				if got := st.Names(); !slices.Equal(got, []string{"job_type"}) {
					t.Fatalf("expected no new category, got %v", got)
				}
				c, _ := st.Category("job_type")
				if !slices.Equal(c.Synonyms, []string{"Employment", "Position Kind"}) {
					t.Fatalf("expected synonym on job_type, got %v", c.Synonyms)
				}
			},
		},
		{
			name:     "value mapping resolves parents ignoring case",
			proposal: ValueMapping{Category: "JOB_TYPE", Value: "full-time", Variant: "FT"},
			check: func(t *testing.T, st *schema.Store) {
				variants, err := st.Variants("job_type", "Full-time")
				if err != nil || !slices.Equal(variants, []string{"Full Time", "FT"}) {
					t.Fatalf("unexpected variants %v (%v)", variants, err)
				}
			},
		},
		{
			name:     "value creation under differently cased category",
			proposal: ValueCreation{Category: "Job_Type", Value: "Contract"},
			check: func(t *testing.T, st *schema.Store) {
				values, err := st.Values("job_type")
				if err != nil || !slices.Equal(values, []string{"Full-time", "Contract"}) {
					t.Fatalf("unexpected values %v (%v)", values, err)
				}
			},
		},
		{
			name:     "category mapping resolves parent through a synonym",
			proposal: CategoryMapping{Category: "employment", Synonym: "Position Kind"},
			check: func(t *testing.T, st *schema.Store) {
				c, _ := st.Category("job_type")
				if !slices.Equal(c.Synonyms, []string{"Employment", "Position Kind"}) {
					t.Fatalf("expected synonym on job_type, got %v", c.Synonyms)
				}
			},
		},
		{
			name:     "creation named like a synonym is a no-op",
			proposal: CategoryCreation{Category: "employment"},
			check: func(t *testing.T, st *schema.Store) {
				if got := st.Names(); !slices.Equal(got, []string{"job_type"}) {
					t.Fatalf("expected schema unchanged, got %v", got)
				}
			},
		},
		{
			name:     "mapping already in place is a no-op",
			proposal: CategoryMapping{Category: "job_type", Synonym: "employment"},
			check: func(t *testing.T, st *schema.Store) {
				c, _ := st.Category("job_type")
				if !slices.Equal(c.Synonyms, []string{"Employment"}) {
					t.Fatalf("expected synonyms unchanged, got %v", c.Synonyms)
				}
			},
		},
		{
			name:     "rejection leaves schema untouched",
			proposal: ValueRejection{Category: "job_type", Value: "Full-time", Variant: "Part-time"},
			check: func(t *testing.T, st *schema.Store) {
				variants, _ := st.Variants("job_type", "Full-time")
				if !slices.Equal(variants, []string{"Full Time"}) {
					t.Fatalf("expected variants unchanged, got %v", variants)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := newTestStore(t)
			q, _ := openTestQueue(t, st)

			action, err := q.Add(tt.proposal, 0.75)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if err := q.Approve(action.ID); err != nil {
				t.Fatalf("approving: %v", err)
			}

			tt.check(t, st)
		})
	}
}

func TestApproveAndRejectConsumeAction(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	q, path := openTestQueue(t, st)

	approved, _ := q.Add(CategoryCreation{Category: "benefits"}, 0)
	rejected, _ := q.Add(CategoryCreation{Category: "perks"}, 0)
	kept, _ := q.Add(CategoryCreation{Category: "shift"}, 0)

	if err := q.Approve(approved.ID); err != nil {
		t.Fatalf("approving: %v", err)
	}
	if err := q.Reject(rejected.ID); err != nil {
		t.Fatalf("rejecting: %v", err)
	}

	for _, id := range []string{approved.ID, rejected.ID} {
		if _, err := q.Get(id); !errors.Is(err, ErrUnknownAction) {
			t.Fatalf("expected %s to be consumed, got %v", id, err)
		}
		if err := q.Approve(id); !errors.Is(err, ErrUnknownAction) {
			t.Fatalf("expected second approve to fail with ErrUnknownAction, got %v", err)
		}
		if err := q.Reject(id); !errors.Is(err, ErrUnknownAction) {
			t.Fatalf("expected second reject to fail with ErrUnknownAction, got %v", err)
		}
	}

	if _, ok := st.Category("perks"); ok {
		t.Fatal("rejected creation must not mutate the schema")
	}

	reopened, err := Open(path, st)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	remaining := reopened.List()
	if len(remaining) != 1 || remaining[0].ID != kept.ID {
		t.Fatalf("expected only %s to survive a restart, got %+v", kept.ID, remaining)
	}

	persisted, err := schema.Load(st.Path())
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}
	if _, ok := persisted.Category("benefits"); !ok {
		t.Fatal("expected approved category to be persisted")
	}
}

func TestApproveKeepsAliasOwnedElsewhere(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		proposal Proposal
	}{
		{
			name:     "synonym owned by another category",
			proposal: CategoryMapping{Category: "job_type", Synonym: "Location_Type"},
		},
		{
			name:     "variant owned by another value",
			proposal: ValueMapping{Category: "job_type", Value: "Part-time", Variant: "full time"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := newTestStore(t)
			if err := st.AddCategory("location_type", nil); err != nil {
				t.Fatalf("seeding category: %v", err)
			}
			if err := st.AddCanonicalValue("job_type", "Part-time", nil); err != nil {
				t.Fatalf("seeding value: %v", err)
			}
			before := st.Snapshot()

			core, logs := observer.New(zapcore.WarnLevel)
			q, err := Open("", st, WithLogger(zap.New(core)))
			if err != nil {
				t.Fatalf("opening queue: %v", err)
			}
			action, err := q.Add(tt.proposal, 0.75)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if err := q.Approve(action.ID); err != nil {
				t.Fatalf("approving: %v", err)
			}
			if q.Len() != 0 {
				t.Fatal("expected action consumed")
			}
			if !st.Snapshot().Equal(before) {
				t.Fatal("expected the existing owner to keep the alias")
			}
			if logs.FilterMessage("alias already resolves elsewhere, left unchanged").Len() != 1 {
				t.Fatalf("expected a warning, got %v", logs.All())
			}
		})
	}
}

func TestApproveSurfacesQueueSaveFailure(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	q, path := openTestQueue(t, st)

	// A non-empty directory at the queue path makes the final rename fail.
	if err := os.MkdirAll(filepath.Join(path, "occupied"), 0o755); err != nil {
		t.Fatalf("creating blocker: %v", err)
	}

	action, err := q.Add(CategoryCreation{Category: "benefits"}, 0)
	var saveErr *SaveError
	if !errors.As(err, &saveErr) {
		t.Fatalf("expected *SaveError on add, got %v", err)
	}

	if err := q.Approve(action.ID); !errors.As(err, &saveErr) {
		t.Fatalf("expected *SaveError on approve, got %v", err)
	}

	if q.Len() != 0 {
		t.Fatal("expected action consumed in memory despite save failure")
	}
	if _, ok := st.Category("benefits"); !ok {
		t.Fatal("expected schema mutation to be applied")
	}
}

func TestConcurrentApprovals(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	q, path := openTestQueue(t, st)

	var ids []string
	for i := range 10 {
		action, err := q.Add(ValueCreation{Category: "job_type", Value: fmt.Sprintf("Value %d", i)}, 0)
		if err != nil {
			t.Fatalf("adding: %v", err)
		}
		ids = append(ids, action.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.Approve(id); err != nil {
				t.Errorf("approving %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}

	reopened, err := Open(path, st)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	if reopened.Len() != 0 {
		t.Fatalf("expected empty persisted queue, got %d", reopened.Len())
	}

	persisted, err := schema.Load(st.Path())
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}
	c, _ := persisted.Category("job_type")
	if len(c.Values) != 11 {
		t.Fatalf("expected 11 persisted values, got %d", len(c.Values))
	}
}
