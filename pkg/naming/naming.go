// Package naming derives file and directory names for chapters and pages.
// Every name depends only on an ordinal and the size of its collection,
// never on the order in which downloads complete.
package naming

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/kerbaras/webtoons/pkg/utils"
)

const defaultExt = "jpg"

// Pad zero-pads n to the number of digits in total
func Pad(n, total int) string {
	width := len(strconv.Itoa(total))
	return fmt.Sprintf("%0*d", width, n)
}

// Generator names the chapter directories, page files and text sidecars
type Generator interface {
	ChapterDir(ch data.ChapterInfo) string
	PageFile(page data.PageInfo) string
	TitleFile(ch data.ChapterInfo) string
	NotesFile(ch data.ChapterInfo) string
}

// Separate stores every chapter in its own directory
type Separate struct {
	UseTitles bool
}

func (s Separate) ChapterDir(ch data.ChapterInfo) string {
	if s.UseTitles {
		if title := utils.SanitizeFilename(ch.Title); title != "" {
			return title
		}
	}
	return Pad(ch.Number, ch.TotalChapters)
}

func (Separate) PageFile(page data.PageInfo) string {
	return Pad(page.Number, page.TotalPages) + "." + Extension(page.URL)
}

func (Separate) TitleFile(data.ChapterInfo) string { return "title.txt" }

func (Separate) NotesFile(data.ChapterInfo) string { return "notes.txt" }

// Flat stores every page of every chapter in one directory, prefixed by chapter
type Flat struct{}

func (Flat) ChapterDir(data.ChapterInfo) string { return "." }

func (Flat) PageFile(page data.PageInfo) string {
	return Pad(page.Chapter.Number, page.Chapter.TotalChapters) + "_" +
		Pad(page.Number, page.TotalPages) + "." + Extension(page.URL)
}

func (Flat) TitleFile(ch data.ChapterInfo) string {
	return Pad(ch.Number, ch.TotalChapters) + "_title.txt"
}

func (Flat) NotesFile(ch data.ChapterInfo) string {
	return Pad(ch.Number, ch.TotalChapters) + "_notes.txt"
}

// Container is the archive or document name of a chapter, e.g. "007.cbz"
func Container(ch data.ChapterInfo, ext string) string {
	return Pad(ch.Number, ch.TotalChapters) + "." + ext
}

// Extension returns the file extension of the last path segment of rawURL,
// without the dot. Query strings are ignored.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(path.Ext(path.Base(p)), ".")
	if ext == "" {
		return defaultExt
	}
	return strings.ToLower(ext)
}

// ReplaceExt swaps the extension of name for ext
func ReplaceExt(name, ext string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + "." + ext
}
