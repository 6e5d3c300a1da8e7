/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import "sort"

// TMDB genre id mapping, movies and series combined. The collector emits
// raw ids; names are only for display.
var genreNames = map[int]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Science Fiction",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
	10759: "Action & Adventure",
	10762: "Kids",
	10763: "News",
	10764: "Reality",
	10765: "Sci-Fi & Fantasy",
	10766: "Soap",
	10767: "Talk",
	10768: "War & Politics",
}

// GenreName returns the display name for a genre id, or empty when unknown.
func GenreName(id int) string {
	return genreNames[id]
}

// Genre pairs an id with its display name.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Genres returns the full genre table ordered by id.
func Genres() []Genre {
	out := make([]Genre, 0, len(genreNames))
	for id, name := range genreNames {
		out = append(out, Genre{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
