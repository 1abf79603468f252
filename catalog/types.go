// Package catalog defines the course-archive entities and their JSON-file
// store. Every entity lives in a flat JSON document that is read and
// rewritten wholesale; a missing document is an empty collection.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category is one child entry of the two-level taxonomy; CategoryID0 and
// Title0 denote the parent.
type Category struct {
	CategoryID0 string `json:"categoryId0"`
	Title0      string `json:"title0"`
	CategoryID  string `json:"categoryId"`
	Title       string `json:"title"`
}

// SubCategory is the flattened child-of relation to Category.
type SubCategory struct {
	AncestorID string `json:"ancestorId"`
	CategoryID string `json:"categoryId"`
	Title      string `json:"title"`
}

// Product is one catalog listing. KlassID is the join key to a locally
// tracked class.
type Product struct {
	ProductID     string `json:"productId"`
	Title         string `json:"title"`
	ImageID       string `json:"imageId"`
	KlassID       string `json:"klassId"`
	LikedCount    int    `json:"likedCount"`
	FirestoreID   string `json:"firestoreId"`
	CategoryID    string `json:"categoryId"`
	CategoryTitle string `json:"categoryTitle"`
	AuthorID      string `json:"authorId"`
	AuthorName    string `json:"authorName"`
}

// Stage is a single processing stage of a class.
type Stage byte

const (
	StageLectures  Stage = 'L' // lecture list extracted
	StageMaterials Stage = 'M' // class materials downloaded
	StageVideo     Stage = 'V' // video captured
	StageSubtitles Stage = 'S' // subtitles fetched
)

// StageSet records which stages of a class are complete. Membership is all
// that matters; it marshals to the single-character flag string the store
// has always used, so existing documents stay readable.
type StageSet struct {
	flags string
}

// Has reports whether the stage is complete.
func (s StageSet) Has(st Stage) bool {
	return strings.IndexByte(s.flags, byte(st)) >= 0
}

// Add marks the stage complete.
func (s *StageSet) Add(st Stage) {
	if !s.Has(st) {
		s.flags += string(st)
	}
}

// String returns the flag string.
func (s StageSet) String() string { return s.flags }

// MarshalJSON encodes the set as its flag string.
func (s StageSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.flags)
}

// UnmarshalJSON decodes a flag string ("", "L", "LS", ...).
func (s *StageSet) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &s.flags)
}

// MyClass is one purchased class.
type MyClass struct {
	Title      string   `json:"title"`
	ClassID    string   `json:"classId"`
	ProductID  string   `json:"productId"`
	CategoryID string   `json:"categoryId"`
	AuthorID   string   `json:"authorId"`
	Step       StageSet `json:"step"`
}

// Subtitle is one caption track of a lecture. Lang "ko" is canonical.
type Subtitle struct {
	Lang string `json:"lang"`
	Name string `json:"name"`
}

// Lecture is one video unit within a class. SN is the 1-based positional
// identity assigned at extraction time; LectureID is the remote identity
// learned only when the crawler visits the lecture.
type Lecture struct {
	SN            int        `json:"sn"`
	Chapter       string     `json:"chapter"`
	Title         string     `json:"title"`
	Duration      int        `json:"duration"`
	CommentCount  int        `json:"commentCount"`
	HasMission    bool       `json:"hasMission"`
	HasAttachment bool       `json:"hasAttachment"`
	LectureID     string     `json:"lectureId,omitempty"`
	Subtitles     []Subtitle `json:"subtitles,omitempty"`
}

// Slug returns the directory name keying this lecture's captured content:
// zero-padded serial number plus remote ID.
func (l Lecture) Slug() string {
	return fmt.Sprintf("%03d_%s", l.SN, l.LectureID)
}

// Done reports whether the lecture is fully processed. A lecture with a
// non-empty subtitle list has been visited, captured and enriched; this is
// the predicate that gates re-crawling.
func (l Lecture) Done() bool {
	return len(l.Subtitles) > 0
}

// KoreanSubtitle returns the canonical caption track, or nil.
func (l Lecture) KoreanSubtitle() *Subtitle {
	for i := range l.Subtitles {
		if l.Subtitles[i].Lang == "ko" {
			return &l.Subtitles[i]
		}
	}
	return nil
}

// RedownLecture is a lecture flagged for re-download, tagged with its class.
type RedownLecture struct {
	ClassID string `json:"classId"`
	Lecture
}
