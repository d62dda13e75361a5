package anilist

// MediaTitle holds the title variants AniList returns for a media
type MediaTitle struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
}

// Media is a single search candidate
type Media struct {
	ID    int        `json:"id"`
	Title MediaTitle `json:"title"`
}

// Variants returns the non-empty title variants, English first
func (m Media) Variants() []string {
	variants := make([]string, 0, 2)
	if m.Title.English != "" {
		variants = append(variants, m.Title.English)
	}
	if m.Title.Romaji != "" {
		variants = append(variants, m.Title.Romaji)
	}
	return variants
}

// DisplayTitle is the English title, or the romanized one when AniList has
// no English title
func (m Media) DisplayTitle() string {
	if m.Title.English != "" {
		return m.Title.English
	}
	return m.Title.Romaji
}

// MediaListEntry is the result of a SaveMediaListEntry mutation
type MediaListEntry struct {
	ID       int    `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}
