package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/anilist-bookmark-sync/internal/api/anilist"
	"github.com/drallgood/anilist-bookmark-sync/internal/bookmarks"
	"github.com/drallgood/anilist-bookmark-sync/internal/checkpoint"
	"github.com/drallgood/anilist-bookmark-sync/internal/executor"
	"github.com/drallgood/anilist-bookmark-sync/internal/logger"
	"github.com/drallgood/anilist-bookmark-sync/internal/mismatch"
	"github.com/drallgood/anilist-bookmark-sync/internal/resolver"
	"github.com/drallgood/anilist-bookmark-sync/internal/util"
)

const (
	testItemDelay  = time.Second
	testBatchPause = time.Minute
	testCooldown   = 30 * time.Second
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, title string) (resolver.Result, error) {
	args := m.Called(ctx, title)
	return args.Get(0).(resolver.Result), args.Error(1)
}

type mockUpdater struct {
	mock.Mock
}

func (m *mockUpdater) SaveMediaListEntry(ctx context.Context, mediaID int, status string, progress int) (*anilist.MediaListEntry, error) {
	args := m.Called(ctx, mediaID, status, progress)
	entry, _ := args.Get(0).(*anilist.MediaListEntry)
	return entry, args.Error(1)
}

type fixture struct {
	dir        string
	bookmarks  *bookmarks.Store
	checkpoint *checkpoint.Store
	sleeper    *util.RecordingSleeper
	resolver   *mockResolver
	updater    *mockUpdater
}

func newFixture(t *testing.T, bookmarkLines string) *fixture {
	t.Helper()
	dir := t.TempDir()
	bmPath := filepath.Join(dir, "manga_bookmarks.txt")
	require.NoError(t, os.WriteFile(bmPath, []byte(bookmarkLines), 0644))

	return &fixture{
		dir:        dir,
		bookmarks:  bookmarks.NewStore(bmPath, logger.Nop()),
		checkpoint: checkpoint.NewStore(filepath.Join(dir, "progress.txt"), logger.Nop()),
		sleeper:    &util.RecordingSleeper{},
		resolver:   &mockResolver{},
		updater:    &mockUpdater{},
	}
}

func (f *fixture) options() Options {
	return Options{
		ItemDelay:       testItemDelay,
		BatchPause:      testBatchPause,
		Cooldown:        testCooldown,
		MaxItemAttempts: 3,
		NotFoundReport:  filepath.Join(f.dir, "not_found.json"),
		Sleeper:         f.sleeper,
	}
}

func (f *fixture) service(opts Options) *Service {
	return NewService(f.resolver, f.updater, f.bookmarks, f.checkpoint, nil, opts, logger.Nop())
}

func (f *fixture) items(t *testing.T) []bookmarks.Item {
	t.Helper()
	items, err := f.bookmarks.Load()
	require.NoError(t, err)
	return items
}

func (f *fixture) checkpointed(t *testing.T) []string {
	t.Helper()
	set, err := f.checkpoint.Load()
	require.NoError(t, err)
	return set.Titles()
}

func found(id int, title string) resolver.Result {
	return resolver.Result{
		CatalogID:         id,
		Found:             true,
		CanonicalTitle:    title,
		HasCanonicalTitle: true,
		Source:            resolver.SourceAniList,
	}
}

func networkFailure() error {
	return &executor.NetworkFailure{
		Method:   "POST",
		URL:      "https://graphql.anilist.co",
		Attempts: 3,
		Err:      errors.New("connection reset by peer"),
	}
}

func TestRun_OnePiece(t *testing.T) {
	f := newFixture(t, "One Piece || Chapter 1050\n")

	f.resolver.On("Resolve", mock.Anything, "One Piece").Return(found(30013, "One Piece"), nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 30013, "CURRENT", 1050).
		Return(&anilist.MediaListEntry{ID: 1, Status: "CURRENT", Progress: 1050}, nil).Once()

	summary, err := f.service(f.options()).Run(context.Background(), f.items(t))
	require.NoError(t, err)

	require.Len(t, summary.Items, 1)
	assert.Equal(t, StateCheckpointed, summary.Items[0].State)
	assert.Equal(t, 1050, summary.Items[0].Progress)
	assert.Equal(t, 30013, summary.Items[0].CatalogID)
	assert.Equal(t, 1, summary.Passes)
	assert.Equal(t, []string{"One Piece"}, f.checkpointed(t))
	assert.Equal(t, []time.Duration{testItemDelay}, f.sleeper.Sleeps())
	f.resolver.AssertExpectations(t)
	f.updater.AssertExpectations(t)
}

func TestRun_IsIdempotent(t *testing.T) {
	f := newFixture(t, "One Piece || Chapter 1050\nBerserk || Chapter 370\n")
	require.NoError(t, f.checkpoint.Persist(checkpoint.NewSet("One Piece", "Berserk")))

	summary, err := f.service(f.options()).Run(context.Background(), f.items(t))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Count(StateSkipped))
	assert.Empty(t, f.sleeper.Sleeps(), "skipped items produce no delay")
	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	f.updater.AssertNotCalled(t, "SaveMediaListEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_SkipsCheckpointedCaseInsensitively(t *testing.T) {
	f := newFixture(t, "one piece || Chapter 1050\nBerserk || 370\n")
	require.NoError(t, f.checkpoint.Persist(checkpoint.NewSet("ONE PIECE")))

	f.resolver.On("Resolve", mock.Anything, "Berserk").Return(found(30002, "Berserk"), nil)
	f.updater.On("SaveMediaListEntry", mock.Anything, 30002, "CURRENT", 370).Return(&anilist.MediaListEntry{ID: 2}, nil)

	summary, err := f.service(f.options()).Run(context.Background(), f.items(t))
	require.NoError(t, err)

	assert.Equal(t, StateSkipped, summary.Items[0].State)
	assert.Equal(t, StateCheckpointed, summary.Items[1].State)
	assert.Equal(t, []string{"ONE PIECE", "Berserk"}, f.checkpointed(t))
}

func TestRun_RestartsPassAfterEscalation(t *testing.T) {
	f := newFixture(t, "Alpha || 1\nBravo || 2\nCharlie || 3\n")

	f.resolver.On("Resolve", mock.Anything, "Alpha").Return(found(1, "Alpha"), nil).Once()
	f.resolver.On("Resolve", mock.Anything, "Bravo").Return(found(2, "Bravo"), nil)
	f.resolver.On("Resolve", mock.Anything, "Charlie").Return(found(3, "Charlie"), nil).Once()

	f.updater.On("SaveMediaListEntry", mock.Anything, 1, "CURRENT", 1).Return(&anilist.MediaListEntry{ID: 1}, nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 2, "CURRENT", 2).Return(nil, networkFailure()).Times(2)
	f.updater.On("SaveMediaListEntry", mock.Anything, 2, "CURRENT", 2).Return(&anilist.MediaListEntry{ID: 2}, nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 3, "CURRENT", 3).Return(&anilist.MediaListEntry{ID: 3}, nil).Once()

	var atPause []string
	f.sleeper.Hook = func(d time.Duration) {
		if d == testBatchPause {
			atPause = f.checkpointed(t)
		}
	}

	opts := f.options()
	opts.MaxItemAttempts = 2
	summary, err := f.service(opts).Run(context.Background(), f.items(t))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Passes)
	assert.Equal(t, 3, summary.Count(StateCheckpointed))
	assert.Equal(t, 3, summary.Items[1].Attempts)
	assert.Equal(t, []string{"Alpha"}, atPause, "checkpoint persisted before the pause")
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie"}, f.checkpointed(t))
	assert.Equal(t, []time.Duration{testItemDelay, testBatchPause, testItemDelay, testItemDelay}, f.sleeper.Sleeps())
	f.resolver.AssertExpectations(t)
	f.updater.AssertExpectations(t)
}

func TestRun_CheckpointSurvivesAbort(t *testing.T) {
	f := newFixture(t, "Alpha || 1\nBravo || 2\nCharlie || 3\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.resolver.On("Resolve", mock.Anything, "Alpha").Return(found(1, "Alpha"), nil).Once()
	f.resolver.On("Resolve", mock.Anything, "Bravo").Return(found(2, "Bravo"), nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 1, "CURRENT", 1).Return(&anilist.MediaListEntry{ID: 1}, nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 2, "CURRENT", 2).Return(nil, networkFailure()).Once()
	f.sleeper.Hook = func(d time.Duration) {
		if d == testBatchPause {
			cancel()
		}
	}

	opts := f.options()
	opts.MaxItemAttempts = 1
	summary, err := f.service(opts).Run(ctx, f.items(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCheckpointed, summary.Items[0].State)
	assert.Equal(t, StatePending, summary.Items[1].State)
	assert.Equal(t, []string{"Alpha"}, f.checkpointed(t))

	// A fresh run resumes after the last checkpointed item.
	f.resolver = &mockResolver{}
	f.updater = &mockUpdater{}
	f.sleeper = &util.RecordingSleeper{}
	f.resolver.On("Resolve", mock.Anything, "Bravo").Return(found(2, "Bravo"), nil).Once()
	f.resolver.On("Resolve", mock.Anything, "Charlie").Return(found(3, "Charlie"), nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 2, "CURRENT", 2).Return(&anilist.MediaListEntry{ID: 2}, nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 3, "CURRENT", 3).Return(&anilist.MediaListEntry{ID: 3}, nil).Once()

	summary, err = f.service(f.options()).Run(context.Background(), f.items(t))
	require.NoError(t, err)
	assert.Equal(t, StateSkipped, summary.Items[0].State)
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie"}, f.checkpointed(t))
	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, "Alpha")
	f.updater.AssertExpectations(t)
}

func TestRun_RateLimitDoesNotConsumeAttempts(t *testing.T) {
	f := newFixture(t, "Vagabond || Chapter 327\n")

	f.resolver.On("Resolve", mock.Anything, "Vagabond").Return(found(656, "Vagabond"), nil)
	f.updater.On("SaveMediaListEntry", mock.Anything, 656, "CURRENT", 327).
		Return(nil, fmt.Errorf("save entry: %w", executor.ErrRateLimited)).Twice()
	f.updater.On("SaveMediaListEntry", mock.Anything, 656, "CURRENT", 327).
		Return(&anilist.MediaListEntry{ID: 9}, nil).Once()

	opts := f.options()
	opts.MaxItemAttempts = 1
	summary, err := f.service(opts).Run(context.Background(), f.items(t))
	require.NoError(t, err)

	assert.Equal(t, StateCheckpointed, summary.Items[0].State)
	assert.Equal(t, 1, summary.Passes)
	assert.Equal(t, 2, f.sleeper.Count(testCooldown))
	assert.Equal(t, 0, f.sleeper.Count(testBatchPause))
	f.updater.AssertExpectations(t)
}

func TestRun_NotFoundIsReported(t *testing.T) {
	f := newFixture(t, "Some Obscure Doujin Title Here || Chapter 4\n")

	f.resolver.On("Resolve", mock.Anything, "Some Obscure Doujin Title Here").Return(resolver.Result{}, nil).Once()

	svc := f.service(f.options())
	summary, err := svc.Run(context.Background(), f.items(t))
	require.NoError(t, err)

	assert.Equal(t, StateNotFound, summary.Items[0].State)
	assert.Equal(t, []time.Duration{testItemDelay}, f.sleeper.Sleeps())
	f.updater.AssertNotCalled(t, "SaveMediaListEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	entries := svc.Report().GetAll()
	require.Len(t, entries, 1)
	assert.Equal(t, mismatch.ReasonNotFound, entries[0].Reason)
	assert.Equal(t, resolver.CleanQuery("Some Obscure Doujin Title Here"), entries[0].Query)
	assert.Equal(t, 1, entries[0].Line)

	data, err := os.ReadFile(filepath.Join(f.dir, "not_found.json"))
	require.NoError(t, err)
	var report struct {
		Count int              `json:"count"`
		Items []mismatch.Entry `json:"items"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 1, report.Count)

	_, err = os.Stat(f.checkpoint.Path())
	assert.True(t, os.IsNotExist(err), "not-found items are not checkpointed")
}

func TestRun_RemoteErrorFailsItem(t *testing.T) {
	f := newFixture(t, "Blame! || Chapter 65\nBerserk || 370\n")

	f.resolver.On("Resolve", mock.Anything, "Blame!").Return(found(11, "BLAME!"), nil).Once()
	f.resolver.On("Resolve", mock.Anything, "Berserk").Return(found(30002, "Berserk"), nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 11, "CURRENT", 65).
		Return(nil, anilist.WithMediaID(&anilist.RemoteError{Operation: "SaveMediaListEntry", StatusCode: 400, Message: "validation"}, 11)).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 30002, "CURRENT", 370).Return(&anilist.MediaListEntry{ID: 2}, nil).Once()

	svc := f.service(f.options())
	summary, err := svc.Run(context.Background(), f.items(t))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, summary.Items[0].State)
	assert.Contains(t, summary.Items[0].Error, "validation")
	assert.Equal(t, 1, summary.Items[0].Attempts)
	assert.Equal(t, StateCheckpointed, summary.Items[1].State)
	assert.Equal(t, 1, summary.Passes)
	assert.Equal(t, []string{"Berserk"}, f.checkpointed(t))

	entries := svc.Report().GetAll()
	require.Len(t, entries, 1)
	assert.Equal(t, mismatch.ReasonUpdateError, entries[0].Reason)
	assert.Equal(t, 11, entries[0].CatalogID)
}

func TestRun_SearchRemoteErrorIsReportedAsSearchError(t *testing.T) {
	f := newFixture(t, "Blame! || Chapter 65\n")

	f.resolver.On("Resolve", mock.Anything, "Blame!").Return(resolver.Result{},
		fmt.Errorf("primary search for %q: %w", "Blame!", &anilist.RemoteError{Operation: "SearchMedia", StatusCode: 500, Message: "internal"})).Once()

	svc := f.service(f.options())
	summary, err := svc.Run(context.Background(), f.items(t))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, summary.Items[0].State)
	f.updater.AssertNotCalled(t, "SaveMediaListEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	entries := svc.Report().GetAll()
	require.Len(t, entries, 1)
	assert.Equal(t, mismatch.ReasonSearchError, entries[0].Reason)
}

func TestRun_NotFoundStillAppliesRename(t *testing.T) {
	f := newFixture(t, "Yaiba Kimetsu || Chapter 3\n")

	f.resolver.On("Resolve", mock.Anything, "Yaiba Kimetsu").Return(resolver.Result{
		CanonicalTitle:    "Kimetsu no Yaiba",
		HasCanonicalTitle: true,
		Rename: &resolver.RenameEvent{
			From:   "Yaiba Kimetsu",
			To:     "Kimetsu no Yaiba",
			Source: resolver.SourceMyAnimeList,
		},
	}, nil).Once()

	svc := f.service(f.options())
	summary, err := svc.Run(context.Background(), f.items(t))
	require.NoError(t, err)

	assert.Equal(t, StateNotFound, summary.Items[0].State)
	assert.True(t, summary.Items[0].Renamed)
	assert.Equal(t, 1, summary.Renamed)

	data, err := os.ReadFile(f.bookmarks.Path())
	require.NoError(t, err)
	assert.Equal(t, "Kimetsu no Yaiba || Chapter 3\n", string(data))

	require.Len(t, svc.Report().GetAll(), 1)
	_, err = os.Stat(f.checkpoint.Path())
	assert.True(t, os.IsNotExist(err), "not-found items are not checkpointed")
	f.updater.AssertNotCalled(t, "SaveMediaListEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_RenameAppliedToBookmarksAndCheckpoint(t *testing.T) {
	f := newFixture(t, "# reading list\nattack on titan || Chapter 139\n")

	f.resolver.On("Resolve", mock.Anything, "attack on titan").Return(resolver.Result{
		CatalogID:         53390,
		Found:             true,
		CanonicalTitle:    "Shingeki no Kyojin",
		HasCanonicalTitle: true,
		Source:            resolver.SourceAniList,
		Rename: &resolver.RenameEvent{
			From:   "attack on titan",
			To:     "Shingeki no Kyojin",
			Source: resolver.SourceAniList,
		},
	}, nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 53390, "CURRENT", 139).Return(&anilist.MediaListEntry{ID: 5}, nil).Once()

	summary, err := f.service(f.options()).Run(context.Background(), f.items(t))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Renamed)
	assert.True(t, summary.Items[0].Renamed)

	data, err := os.ReadFile(f.bookmarks.Path())
	require.NoError(t, err)
	assert.Equal(t, "# reading list\nShingeki no Kyojin || Chapter 139\n", string(data))
	assert.Equal(t, []string{"attack on titan", "Shingeki no Kyojin"}, f.checkpointed(t))
}

func TestRun_DryRun(t *testing.T) {
	const lines = "attack on titan || Chapter 139\n"
	f := newFixture(t, lines)

	f.resolver.On("Resolve", mock.Anything, "attack on titan").Return(resolver.Result{
		CatalogID:         53390,
		Found:             true,
		CanonicalTitle:    "Shingeki no Kyojin",
		HasCanonicalTitle: true,
		Rename:            &resolver.RenameEvent{From: "attack on titan", To: "Shingeki no Kyojin"},
	}, nil).Once()

	opts := f.options()
	opts.DryRun = true
	summary, err := f.service(opts).Run(context.Background(), f.items(t))
	require.NoError(t, err)

	assert.Equal(t, StateDryRun, summary.Items[0].State)
	assert.Equal(t, 0, summary.Renamed)
	f.updater.AssertNotCalled(t, "SaveMediaListEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	data, err := os.ReadFile(f.bookmarks.Path())
	require.NoError(t, err)
	assert.Equal(t, lines, string(data))

	_, err = os.Stat(f.checkpoint.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestRun_FilterAndLimit(t *testing.T) {
	f := newFixture(t, "One Piece || 1050\nBerserk || 370\nOne Punch-Man || 180\n")

	f.resolver.On("Resolve", mock.Anything, "One Piece").Return(found(30013, "One Piece"), nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 30013, "CURRENT", 1050).Return(&anilist.MediaListEntry{ID: 1}, nil).Once()

	opts := f.options()
	opts.Filter = "one"
	opts.Limit = 1
	summary, err := f.service(opts).Run(context.Background(), f.items(t))
	require.NoError(t, err)

	require.Len(t, summary.Items, 2)
	assert.Equal(t, "One Piece", summary.Items[0].Item.Title)
	assert.Equal(t, StateCheckpointed, summary.Items[0].State)
	assert.Equal(t, "One Punch-Man", summary.Items[1].Item.Title)
	assert.Equal(t, StatePending, summary.Items[1].State)
	f.resolver.AssertExpectations(t)
}

func TestRun_UnparseableProgressUsesZero(t *testing.T) {
	f := newFixture(t, "Oyasumi Punpun || Prologue\n")

	f.resolver.On("Resolve", mock.Anything, "Oyasumi Punpun").Return(found(45, "Oyasumi Punpun"), nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 45, "CURRENT", 0).Return(&anilist.MediaListEntry{ID: 1}, nil).Once()

	summary, err := f.service(f.options()).Run(context.Background(), f.items(t))
	require.NoError(t, err)
	assert.Equal(t, StateCheckpointed, summary.Items[0].State)
	f.updater.AssertExpectations(t)
}

func TestRun_VolumeProgressAndCustomStatus(t *testing.T) {
	f := newFixture(t, "Vinland Saga || Vol. 3\n")

	f.resolver.On("Resolve", mock.Anything, "Vinland Saga").Return(found(30642, "Vinland Saga"), nil).Once()
	f.updater.On("SaveMediaListEntry", mock.Anything, 30642, "PAUSED", 15).Return(&anilist.MediaListEntry{ID: 1}, nil).Once()

	opts := f.options()
	opts.Status = "PAUSED"
	_, err := f.service(opts).Run(context.Background(), f.items(t))
	require.NoError(t, err)
	f.updater.AssertExpectations(t)
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t, "One Piece || 1050\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.service(f.options()).Run(ctx, f.items(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatePending, summary.Items[0].State)
	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestOptions_WithDefaults(t *testing.T) {
	opts := Options{}.withDefaults()

	assert.Equal(t, "CURRENT", opts.Status)
	assert.Equal(t, 3, opts.MaxItemAttempts)
	assert.Equal(t, 60*time.Second, opts.BatchPause)
	assert.Equal(t, 60*time.Second, opts.Cooldown)
	assert.Equal(t, 5.0, opts.VolumeMultiplier)
	assert.IsType(t, util.RealSleeper{}, opts.Sleeper)
}
