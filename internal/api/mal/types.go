package mal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Manga is a search result node
type Manga struct {
	ID                int               `json:"id"`
	Title             string            `json:"title"`
	AlternativeTitles AlternativeTitles `json:"alternative_titles"`
}

// Titles returns the main title followed by every alternative title, in
// response order, skipping empty values
func (m Manga) Titles() []string {
	titles := make([]string, 0, 1+len(m.AlternativeTitles))
	if m.Title != "" {
		titles = append(titles, m.Title)
	}
	for _, alt := range m.AlternativeTitles {
		for _, v := range alt.Values {
			if v != "" {
				titles = append(titles, v)
			}
		}
	}
	return titles
}

// AlternativeTitle is one category of alternative titles ("synonyms", "en",
// "ja", ...). MAL sends either a single string or a list per category.
type AlternativeTitle struct {
	Category string
	Values   []string
}

// AlternativeTitles keeps the categories in the order MAL sent them
type AlternativeTitles []AlternativeTitle

// UnmarshalJSON decodes the alternative_titles object preserving key order.
// Values that are neither a string nor a list of strings are skipped.
func (a *AlternativeTitles) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("alternative_titles: expected object, got %v", tok)
	}

	var out AlternativeTitles
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("alternative_titles.%s: %w", key, err)
		}

		if values := decodeTitleValue(raw); len(values) > 0 {
			out = append(out, AlternativeTitle{Category: key, Values: values})
		}
	}

	*a = out
	return nil
}

func decodeTitleValue(raw json.RawMessage) []string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	return nil
}

type searchResponse struct {
	Data []struct {
		Node Manga `json:"node"`
	} `json:"data"`
}
