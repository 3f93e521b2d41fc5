package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/journal"
	"github.com/jimdaga/givethnotes/internal/metrics"
	"github.com/jimdaga/givethnotes/internal/models"
	"github.com/jimdaga/givethnotes/internal/testutil"
)

type fixture struct {
	db    *gorm.DB
	store *Store
	user  models.User
	path  models.CareerPath
	entry models.JournalEntry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.DB(t)
	user := testutil.User(t, db, "u1")
	path := testutil.CareerPath(t, db, user.ID, "SRE")
	entry := testutil.Entry(t, db, path, "2024-01-05", nil)

	validator, err := NewValidator()
	require.NoError(t, err)
	lookup := journal.NewService(db, clock.New(time.UTC))
	store := NewStore(db, lookup, validator, metrics.NewCollector(prometheus.NewRegistry()), testutil.Logger(t))

	return fixture{db: db, store: store, user: user, path: path, entry: entry}
}

func notes(text string) NewBlock {
	return NewBlock{Type: models.BlockTypeNotes, Content: datatypes.JSON(fmt.Sprintf(`{"text":%q}`, text))}
}

func positions(blocks []models.EntryBlock) []int {
	out := make([]int, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.Position)
	}
	return out
}

func texts(t *testing.T, blocks []models.EntryBlock) []string {
	t.Helper()
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		var c struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.Unmarshal(b.Content, &c))
		out = append(out, c.Text)
	}
	return out
}

func TestAppendAssignsNextPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i, text := range []string{"a", "b", "c"} {
		block, err := f.store.Append(ctx, f.user.ID, f.entry.ID, notes(text))
		require.NoError(t, err)
		assert.Equal(t, i+1, block.Position)
		assert.NotZero(t, block.ID)
	}

	blocks, err := f.store.List(ctx, f.user.ID, f.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, positions(blocks))
	assert.Equal(t, []string{"a", "b", "c"}, texts(t, blocks))
}

func TestAppendMarksEntryEdited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.Nil(t, f.entry.UpdatedAt)

	_, err := f.store.Append(ctx, f.user.ID, f.entry.ID, notes("a"))
	require.NoError(t, err)

	var entry models.JournalEntry
	require.NoError(t, f.db.First(&entry, f.entry.ID).Error)
	assert.NotNil(t, entry.UpdatedAt)
}

func TestAppendRejectsInvalidContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.store.Append(ctx, f.user.ID, f.entry.ID, NewBlock{Type: "video", Content: datatypes.JSON(`{}`)})
	assert.ErrorIs(t, err, apierr.ErrInvalid)

	_, err = f.store.Append(ctx, f.user.ID, f.entry.ID, NewBlock{Type: models.BlockTypePoints, Content: datatypes.JSON(`{"text":"x"}`)})
	assert.ErrorIs(t, err, apierr.ErrInvalid)

	blocks, err := f.store.List(ctx, f.user.ID, f.entry.ID)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestRemoveShiftsLaterBlocksUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := f.store.Append(ctx, f.user.ID, f.entry.ID, notes(text))
		require.NoError(t, err)
	}

	require.NoError(t, f.store.Remove(ctx, f.user.ID, f.entry.ID, 2))

	blocks, err := f.store.List(ctx, f.user.ID, f.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, positions(blocks))
	assert.Equal(t, []string{"one", "three", "four"}, texts(t, blocks))
	assert.NoError(t, f.store.CheckContiguity(ctx, f.entry.ID))
}

func TestRemoveFirstAndLast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, text := range []string{"a", "b", "c"} {
		_, err := f.store.Append(ctx, f.user.ID, f.entry.ID, notes(text))
		require.NoError(t, err)
	}

	require.NoError(t, f.store.Remove(ctx, f.user.ID, f.entry.ID, 3))
	require.NoError(t, f.store.Remove(ctx, f.user.ID, f.entry.ID, 1))

	blocks, err := f.store.List(ctx, f.user.ID, f.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, positions(blocks))
	assert.Equal(t, []string{"b"}, texts(t, blocks))
}

func TestRemoveMissingPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.store.Append(ctx, f.user.ID, f.entry.ID, notes("a"))
	require.NoError(t, err)

	err = f.store.Remove(ctx, f.user.ID, f.entry.ID, 5)
	assert.ErrorIs(t, err, apierr.ErrNotFound)

	blocks, err := f.store.List(ctx, f.user.ID, f.entry.ID)
	require.NoError(t, err)
	assert.Len(t, blocks, 1)
}

func TestUpdateReplacesContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.store.Append(ctx, f.user.ID, f.entry.ID, notes("a"))
	require.NoError(t, err)
	_, err = f.store.Append(ctx, f.user.ID, f.entry.ID, notes("b"))
	require.NoError(t, err)

	block, err := f.store.Update(ctx, f.user.ID, f.entry.ID, 2, datatypes.JSON(`{"text":"bee"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, block.Position)
	assert.NotNil(t, block.UpdatedAt)

	blocks, err := f.store.List(ctx, f.user.ID, f.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bee"}, texts(t, blocks))
}

func TestUpdateMissingPosition(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Update(context.Background(), f.user.ID, f.entry.ID, 1, datatypes.JSON(`{"text":"x"}`))
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestUpdateValidatesAgainstExistingType(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.store.Append(ctx, f.user.ID, f.entry.ID, NewBlock{
		Type:    models.BlockTypePoints,
		Content: datatypes.JSON(`{"items":["a"]}`),
	})
	require.NoError(t, err)

	_, err = f.store.Update(ctx, f.user.ID, f.entry.ID, 1, datatypes.JSON(`{"items":"not a list"}`))
	assert.ErrorIs(t, err, apierr.ErrInvalid)
}

func TestOtherUsersEntryIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := testutil.User(t, f.db, "u2")
	_, err := f.store.Append(ctx, f.user.ID, f.entry.ID, notes("mine"))
	require.NoError(t, err)

	_, err = f.store.Append(ctx, other.ID, f.entry.ID, notes("theirs"))
	assert.ErrorIs(t, err, apierr.ErrNotFound)
	_, err = f.store.List(ctx, other.ID, f.entry.ID)
	assert.ErrorIs(t, err, apierr.ErrNotFound)
	_, err = f.store.Update(ctx, other.ID, f.entry.ID, 1, datatypes.JSON(`{"text":"x"}`))
	assert.ErrorIs(t, err, apierr.ErrNotFound)
	assert.ErrorIs(t, f.store.Remove(ctx, other.ID, f.entry.ID, 1), apierr.ErrNotFound)
}

func TestAppendToCareerPathUsesLatestEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	older := testutil.Entry(t, f.db, f.path, "2024-01-03", nil)

	block, err := f.store.AppendToCareerPath(ctx, f.user.ID, f.path.ID, notes("today"))
	require.NoError(t, err)
	assert.Equal(t, f.entry.ID, block.EntryID)
	assert.NotEqual(t, older.ID, block.EntryID)
}

func TestAppendToCareerPathWithoutEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	empty := testutil.CareerPath(t, f.db, f.user.ID, "Empty")

	_, err := f.store.AppendToCareerPath(ctx, f.user.ID, empty.ID, notes("x"))
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestConcurrentAppendsStayDense(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const writers = 10
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.store.Append(ctx, f.user.ID, f.entry.ID, notes(fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	blocks, err := f.store.List(ctx, f.user.ID, f.entry.ID)
	require.NoError(t, err)
	assert.Len(t, blocks, writers)
	assert.NoError(t, f.store.CheckContiguity(ctx, f.entry.ID))
}

func TestConcurrentRemovesStayDense(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const total, removers = 8, 4
	for i := 1; i <= total; i++ {
		_, err := f.store.Append(ctx, f.user.ID, f.entry.ID, notes(fmt.Sprintf("b%d", i)))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, removers)
	for i := 0; i < removers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.store.Remove(ctx, f.user.ID, f.entry.ID, 1)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	blocks, err := f.store.List(ctx, f.user.ID, f.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, positions(blocks))
	assert.Equal(t, []string{"b5", "b6", "b7", "b8"}, texts(t, blocks))
	assert.NoError(t, f.store.CheckContiguity(ctx, f.entry.ID))
}

func TestRandomMutationsKeepPositionsContiguous(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rng := rand.New(rand.NewSource(42))

	var model []string
	for step := 0; step < 60; step++ {
		switch {
		case len(model) == 0 || rng.Intn(3) > 0:
			text := fmt.Sprintf("s%d", step)
			_, err := f.store.Append(ctx, f.user.ID, f.entry.ID, notes(text))
			require.NoError(t, err)
			model = append(model, text)
		default:
			pos := rng.Intn(len(model)) + 1
			require.NoError(t, f.store.Remove(ctx, f.user.ID, f.entry.ID, pos))
			model = append(model[:pos-1], model[pos:]...)
		}

		require.NoError(t, f.store.CheckContiguity(ctx, f.entry.ID), "step %d", step)
	}

	blocks, err := f.store.List(ctx, f.user.ID, f.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model, texts(t, blocks))
}

func TestCheckContiguityDetectsGap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.Blocks(t, f.db, f.entry.ID, 3)
	require.NoError(t, f.store.CheckContiguity(ctx, f.entry.ID))

	require.NoError(t, f.db.Where("entry_id = ? AND position = ?", f.entry.ID, 2).Delete(&models.EntryBlock{}).Error)

	err := f.store.CheckContiguity(ctx, f.entry.ID)
	assert.ErrorIs(t, err, ErrGap)
}

func TestReconcileRepairsGaps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := testutil.Entry(t, f.db, f.path, "2024-01-04", nil)

	testutil.Blocks(t, f.db, f.entry.ID, 4)
	testutil.Blocks(t, f.db, other.ID, 2)
	// Leave positions 2, 3, 4 behind on the first entry.
	require.NoError(t, f.db.Where("entry_id = ? AND position = ?", f.entry.ID, 1).Delete(&models.EntryBlock{}).Error)

	var before []models.EntryBlock
	require.NoError(t, f.db.Where("entry_id = ?", f.entry.ID).Order("position").Find(&before).Error)

	res, err := f.store.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, []uint{f.entry.ID}, res.Repaired)

	var after []models.EntryBlock
	require.NoError(t, f.db.Where("entry_id = ?", f.entry.ID).Order("position").Find(&after).Error)
	require.Len(t, after, 3)
	for i := range after {
		assert.Equal(t, i+1, after[i].Position)
		assert.Equal(t, before[i].ID, after[i].ID, "relative order is kept")
	}
	assert.NoError(t, f.store.CheckContiguity(ctx, other.ID))

	res, err = f.store.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Repaired)
}
