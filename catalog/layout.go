package catalog

import "path/filepath"

// ContentTree maps classes and lectures onto the captured-content
// directory layout. Everything keys off the lecture slug so the JSON
// store and the directory tree can be cross-checked by name.
type ContentTree struct {
	root string
}

func NewContentTree(root string) ContentTree {
	return ContentTree{root: root}
}

func (t ContentTree) Root() string { return t.root }

func (t ContentTree) ClassDir(classID string) string {
	return filepath.Join(t.root, "classes", classID)
}

func (t ContentTree) ClassIndex(classID string) string {
	return filepath.Join(t.ClassDir(classID), "index.html")
}

func (t ContentTree) LectureDir(classID string, l Lecture) string {
	return filepath.Join(t.ClassDir(classID), l.Slug())
}

func (t ContentTree) VideoHTML(classID string, l Lecture) string {
	return filepath.Join(t.LectureDir(classID, l), "video.html")
}

func (t ContentTree) MaterialsHTML(classID string, l Lecture) string {
	return filepath.Join(t.LectureDir(classID, l), "materials", "index.html")
}

func (t ContentTree) FilesDir(classID string, l Lecture) string {
	return filepath.Join(t.LectureDir(classID, l), "files")
}

func (t ContentTree) SubtitlesDir(classID string, l Lecture) string {
	return filepath.Join(t.LectureDir(classID, l), "subtitles")
}

func (t ContentTree) SubtitlePath(classID string, l Lecture, name string) string {
	return filepath.Join(t.SubtitlesDir(classID, l), name)
}
