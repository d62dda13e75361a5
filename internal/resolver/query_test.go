package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanQuery(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "short title kept", title: "One Piece", want: "One Piece"},
		{name: "punctuation stripped", title: "Kaguya-sama: Love is War!", want: "Kaguya-sama Love War"},
		{name: "three words untouched", title: "Re:Zero Starting Life", want: "ReZero Starting Life"},
		{name: "stop words dropped", title: "The Girl I Like Forgot Her Glasses", want: "Girl I Like"},
		{name: "script words preferred", title: "Shingeki no Kyojin 進撃の巨人 Attack", want: "進撃の巨人"},
		{name: "only stop words", title: "to the a of an", want: "to the a"},
		{name: "accented letters kept", title: "Pokémon", want: "Pokémon"},
		{name: "empty", title: "  ?!  ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanQuery(tt.title))
		})
	}
}
