package archivist

// Package file archivist/find.go contains the cover image search and matching functions.

import (
	"cmp"
	"path"
	"slices"
	"strings"
)

// Finds are a collection of matched filenames and their usability ranking.
type Finds map[string]Usability

// BestMatch returns the most usable filename from a collection of finds.
// Filenames of the same usability are ordered by path so the result is stable.
func (f Finds) BestMatch() string {
	if len(f) == 0 {
		return ""
	}
	type match struct {
		Filename  string
		Usability Usability
	}
	matches := make([]match, 0, len(f))
	for k, v := range f {
		matches = append(matches, match{k, v})
	}
	slices.SortFunc(matches, func(a, b match) int {
		if c := cmp.Compare(a.Usability, b.Usability); c != 0 {
			return c
		}
		return cmp.Compare(a.Filename, b.Filename)
	})
	return matches[0].Filename
}

// Cover returns the best matching cover image from a collection of members.
// The filename is the name of the archive file, and the files are the member paths.
// Note the filename matches are case-insensitive as comic book archives are
// often created on Windows file systems.
func Cover(filename string, files ...string) string {
	finds := make(Finds)
	base := strings.ToLower(strings.TrimSuffix(path.Base(slashed(filename)), path.Ext(filename)))
	for _, file := range files {
		name := strings.ToLower(path.Base(slashed(file)))
		switch path.Ext(name) {
		case bmp, gif, jpeg, jpg, png, webp:
			// okay
		default:
			continue
		}
		finds = matchs(file, name, base, finds)
	}
	return finds.BestMatch()
}

const (
	bmp  = ".bmp"
	gif  = ".gif"
	jpeg = ".jpeg"
	jpg  = ".jpg"
	png  = ".png"
	webp = ".webp"
)

func slashed(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

func matchs(file, name, base string, finds Finds) Finds {
	stem := strings.TrimSuffix(name, path.Ext(name))
	switch {
	case stem == base:
		// [archive name].png
		finds[file] = Lvl1
	case stem == "cover":
		finds[file] = Lvl2
	case stem == "front":
		finds[file] = Lvl3
	case stem == "folder":
		// Windows Explorer album art
		finds[file] = Lvl4
	case strings.Contains(stem, "cover"):
		// [random]cover[random].png
		finds[file] = Lvl5
	case firstPage(stem):
		// 0.png, 00.png, 001.png, 1.png
		finds[file] = Lvl6
	default:
		// [random].png
		finds[file] = Lvl7
	}
	return finds
}

func firstPage(stem string) bool {
	if stem == "" {
		return false
	}
	for _, r := range stem {
		if r < '0' || r > '9' {
			return false
		}
	}
	n := strings.TrimLeft(stem, "0")
	return n == "" || n == "1"
}

// Usability of search, filename pattern matches.
type Usability uint

const (
	// Lvl1 is the highest usability.
	Lvl1 Usability = iota + 1
	Lvl2
	Lvl3
	Lvl4
	Lvl5
	Lvl6
	Lvl7
	Lvl8
	Lvl9 // Lvl9 is the least usable.
)
