package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/models"
	"github.com/jimdaga/givethnotes/internal/testutil"
)

func newService(t *testing.T) (*Service, models.User, models.CareerPath) {
	t.Helper()
	db := testutil.DB(t)
	user := testutil.User(t, db, "u1")
	path := testutil.CareerPath(t, db, user.ID, "SRE")
	return NewService(db, clock.Fixed(time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC))), user, path
}

func TestCurrentEntryForPicksLatestDate(t *testing.T) {
	svc, user, path := newService(t)
	testutil.Entry(t, svc.db, path, "2024-01-03", nil)
	latest := testutil.Entry(t, svc.db, path, "2024-01-05", nil)
	testutil.Entry(t, svc.db, path, "2024-01-04", nil)

	entry, err := svc.CurrentEntryFor(context.Background(), path.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, entry.ID)
}

func TestCurrentEntryForIsNotLimitedToToday(t *testing.T) {
	svc, user, path := newService(t)
	old := testutil.Entry(t, svc.db, path, "2023-12-01", nil)

	entry, err := svc.CurrentEntryFor(context.Background(), path.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, old.ID, entry.ID)
}

func TestCurrentEntryForNotFound(t *testing.T) {
	svc, user, path := newService(t)

	_, err := svc.CurrentEntryFor(context.Background(), path.ID, user.ID)
	assert.ErrorIs(t, err, apierr.ErrNotFound)

	testutil.Entry(t, svc.db, path, "2024-01-05", nil)
	other := testutil.User(t, svc.db, "u2")
	_, err = svc.CurrentEntryFor(context.Background(), path.ID, other.ID)
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestCreateRejectsDuplicateDay(t *testing.T) {
	ctx := context.Background()
	svc, user, path := newService(t)

	entry, err := svc.Create(ctx, user.ID, path.ID, testutil.Day(t, "2024-01-05"))
	require.NoError(t, err)
	assert.Nil(t, entry.UpdatedAt)

	_, err = svc.Create(ctx, user.ID, path.ID, testutil.Day(t, "2024-01-05"))
	assert.ErrorIs(t, err, apierr.ErrConflict)
}

func TestCreateRequiresOwnedCareerPath(t *testing.T) {
	svc, _, path := newService(t)
	other := testutil.User(t, svc.db, "u2")

	_, err := svc.Create(context.Background(), other.ID, path.ID, testutil.Day(t, "2024-01-05"))
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestListByCareerPathNewestFirst(t *testing.T) {
	svc, user, path := newService(t)
	testutil.Entry(t, svc.db, path, "2024-01-03", nil)
	testutil.Entry(t, svc.db, path, "2024-01-05", nil)
	testutil.Entry(t, svc.db, path, "2024-01-04", nil)

	entries, err := svc.ListByCareerPath(context.Background(), user.ID, path.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "2024-01-05", clock.FormatDay(entries[0].EntryDate))
	assert.Equal(t, "2024-01-03", clock.FormatDay(entries[2].EntryDate))
}

func TestUpdateDate(t *testing.T) {
	ctx := context.Background()
	svc, user, path := newService(t)
	a := testutil.Entry(t, svc.db, path, "2024-01-03", nil)
	testutil.Entry(t, svc.db, path, "2024-01-04", nil)

	moved, err := svc.UpdateDate(ctx, user.ID, a.ID, testutil.Day(t, "2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", clock.FormatDay(moved.EntryDate))
	require.NotNil(t, moved.UpdatedAt)

	_, err = svc.UpdateDate(ctx, user.ID, a.ID, testutil.Day(t, "2024-01-04"))
	assert.ErrorIs(t, err, apierr.ErrConflict)

	_, err = svc.UpdateDate(ctx, user.ID, 999, testutil.Day(t, "2024-01-01"))
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestDeleteRemovesEntryAndBlocks(t *testing.T) {
	ctx := context.Background()
	svc, user, path := newService(t)
	entry := testutil.Entry(t, svc.db, path, "2024-01-05", nil)
	testutil.Blocks(t, svc.db, entry.ID, 2)

	other := testutil.User(t, svc.db, "u2")
	assert.ErrorIs(t, svc.Delete(ctx, other.ID, entry.ID), apierr.ErrNotFound)

	var blocks int64
	require.NoError(t, svc.db.Model(&models.EntryBlock{}).Where("entry_id = ?", entry.ID).Count(&blocks).Error)
	assert.EqualValues(t, 2, blocks, "a foreign delete leaves blocks alone")

	require.NoError(t, svc.Delete(ctx, user.ID, entry.ID))
	_, err := svc.Get(ctx, user.ID, entry.ID)
	assert.ErrorIs(t, err, apierr.ErrNotFound)

	require.NoError(t, svc.db.Model(&models.EntryBlock{}).Where("entry_id = ?", entry.ID).Count(&blocks).Error)
	assert.Zero(t, blocks)
}
