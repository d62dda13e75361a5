package resolver

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/drallgood/anilist-bookmark-sync/internal/api/anilist"
	"github.com/drallgood/anilist-bookmark-sync/internal/api/mal"
)

type mockPrimary struct {
	mock.Mock
}

func (m *mockPrimary) SearchMedia(ctx context.Context, search string) ([]anilist.Media, error) {
	args := m.Called(ctx, search)
	var media []anilist.Media
	if v := args.Get(0); v != nil {
		media = v.([]anilist.Media)
	}
	return media, args.Error(1)
}

type mockSecondary struct {
	mock.Mock
}

func (m *mockSecondary) SearchManga(ctx context.Context, query string, limit, offset int) ([]mal.Manga, error) {
	args := m.Called(ctx, query, limit, offset)
	var manga []mal.Manga
	if v := args.Get(0); v != nil {
		manga = v.([]mal.Manga)
	}
	return manga, args.Error(1)
}

func media(id int, english, romaji string) anilist.Media {
	return anilist.Media{ID: id, Title: anilist.MediaTitle{English: english, Romaji: romaji}}
}
