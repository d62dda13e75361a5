package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_AddContains(t *testing.T) {
	s := NewSet()

	assert.True(t, s.Add("One Piece"))
	assert.False(t, s.Add("one piece"), "case-insensitive duplicate")
	assert.False(t, s.Add("   "))
	assert.True(t, s.Add("Berserk"))

	assert.True(t, s.Contains("ONE PIECE"))
	assert.True(t, s.Contains(" Berserk "))
	assert.False(t, s.Contains("Naruto"))
	assert.Equal(t, []string{"One Piece", "Berserk"}, s.Titles())
	assert.Equal(t, 2, s.Len())
}

func TestSet_Rename(t *testing.T) {
	s := NewSet("Shingeki no Kyojin", "Berserk", "Vagabond")

	assert.True(t, s.Rename("shingeki no kyojin", "Attack on Titan"))
	assert.Equal(t, []string{"Attack on Titan", "Berserk", "Vagabond"}, s.Titles())
	assert.True(t, s.Contains("attack on titan"))
	assert.False(t, s.Contains("Shingeki no Kyojin"))

	assert.False(t, s.Rename("Naruto", "Boruto"))
}

func TestSet_RenameOntoExisting(t *testing.T) {
	s := NewSet("AoT", "Berserk", "Attack on Titan")

	assert.True(t, s.Rename("AoT", "Attack on Titan"))
	assert.Equal(t, []string{"Berserk", "Attack on Titan"}, s.Titles())
	assert.True(t, s.Contains("Berserk"))
	assert.True(t, s.Contains("Attack on Titan"))
	assert.False(t, s.Contains("AoT"))
}

func TestSet_RenameCaseOnly(t *testing.T) {
	s := NewSet("one piece")

	assert.True(t, s.Rename("one piece", "One Piece"))
	assert.Equal(t, []string{"One Piece"}, s.Titles())
}

func TestSet_TitlesIsACopy(t *testing.T) {
	s := NewSet("Berserk")
	titles := s.Titles()
	titles[0] = "changed"
	assert.Equal(t, []string{"Berserk"}, s.Titles())
}
