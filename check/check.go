// Package check is the offline integrity tool for the crawled catalog.
// The crawler maps page buttons to lectures positionally, which silently
// attaches wrong lecture IDs when the page's DOM order drifts; this
// package finds those collisions after the fact and drives the manual
// repair workflow.
package check

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"coursekit/catalog"
	"coursekit/extract"
)

// LectureRef identifies one lecture occurrence in a collision report.
type LectureRef struct {
	ClassID   string `json:"classId"`
	SN        int    `json:"sn"`
	LectureID string `json:"lectureId"`
	Title     string `json:"title,omitempty"`
}

// HTMLOverlap is one sn prefix that appears on more than one captured
// directory within a class.
type HTMLOverlap struct {
	ClassID    string   `json:"classId"`
	Prefix     string   `json:"prefix"`
	Count      int      `json:"count"`
	LectureIDs []string `json:"lectureIds"`
}

// Checker runs the duplicate reports and repairs against one store and
// content tree.
type Checker struct {
	store *catalog.Store
	tree  catalog.ContentTree
	log   *zap.Logger
}

func New(store *catalog.Store, tree catalog.ContentTree, log *zap.Logger) *Checker {
	return &Checker{store: store, tree: tree, log: log}
}

// DuplicateLectures returns, for one lecture array, every (sn, title) pair
// whose lectureId is shared with another entry. Lectures not yet visited
// (empty lectureId) are ignored.
func DuplicateLectures(classID string, lectures []catalog.Lecture) []LectureRef {
	byID := make(map[string][]LectureRef)
	var order []string
	for _, l := range lectures {
		if l.LectureID == "" {
			continue
		}
		if _, ok := byID[l.LectureID]; !ok {
			order = append(order, l.LectureID)
		}
		byID[l.LectureID] = append(byID[l.LectureID], LectureRef{
			ClassID:   classID,
			SN:        l.SN,
			LectureID: l.LectureID,
			Title:     l.Title,
		})
	}

	var dups []LectureRef
	for _, id := range order {
		if refs := byID[id]; len(refs) > 1 {
			dups = append(dups, refs...)
		}
	}
	return dups
}

// Report scans every class for lectureId collisions and sn-prefix
// collisions among captured directories, and saves the three diagnostic
// snapshots.
func (c *Checker) Report() error {
	classes, err := c.store.MyClasses()
	if err != nil {
		return err
	}

	var overlappedClassIDs []string
	var overlappedLectures []LectureRef
	var overlappedHTMLs []HTMLOverlap

	for _, mc := range classes {
		lectures, err := c.store.Lectures(mc.ClassID)
		if err != nil {
			return err
		}
		if dups := DuplicateLectures(mc.ClassID, lectures); len(dups) > 0 {
			overlappedClassIDs = append(overlappedClassIDs, mc.ClassID)
			overlappedLectures = append(overlappedLectures, dups...)
			c.log.Warn("duplicate lecture ids", zap.String("classId", mc.ClassID), zap.Int("lectures", len(dups)))
		}

		overlaps, err := c.scanDirOverlaps(mc.ClassID)
		if err != nil {
			return err
		}
		overlappedHTMLs = append(overlappedHTMLs, overlaps...)
	}

	if err := c.store.SaveDiagnostic("overlappedClassIds.json", overlappedClassIDs); err != nil {
		return err
	}
	if err := c.store.SaveDiagnostic("overlappedLectures.json", overlappedLectures); err != nil {
		return err
	}
	if err := c.store.SaveDiagnostic("overlappedHtmls.json", overlappedHTMLs); err != nil {
		return err
	}
	c.log.Info("report complete",
		zap.Int("classes", len(overlappedClassIDs)),
		zap.Int("lectures", len(overlappedLectures)),
		zap.Int("dirs", len(overlappedHTMLs)))
	return nil
}

// scanDirOverlaps groups a class's captured directories by sn prefix and
// reports prefixes owning more than one directory.
func (c *Checker) scanDirOverlaps(classID string) ([]HTMLOverlap, error) {
	entries, err := os.ReadDir(c.tree.ClassDir(classID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	byPrefix := make(map[string][]string)
	var order []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		prefix, lectureID, ok := splitSlug(e.Name())
		if !ok {
			continue
		}
		if _, seen := byPrefix[prefix]; !seen {
			order = append(order, prefix)
		}
		byPrefix[prefix] = append(byPrefix[prefix], lectureID)
	}

	var overlaps []HTMLOverlap
	for _, prefix := range order {
		ids := byPrefix[prefix]
		if len(ids) > 1 {
			overlaps = append(overlaps, HTMLOverlap{
				ClassID:    classID,
				Prefix:     prefix,
				Count:      len(ids),
				LectureIDs: ids,
			})
		}
	}
	return overlaps, nil
}

func splitSlug(name string) (prefix, lectureID string, ok bool) {
	i := strings.IndexByte(name, '_')
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	prefix = name[:i]
	if _, err := strconv.Atoi(prefix); err != nil {
		return "", "", false
	}
	return prefix, name[i+1:], true
}

// Resolve decides, for each directory collision from the last report,
// which colliding lectureId is wrong. A lectureId that already appears at
// a smaller sn is taken to be the earlier lecture's, so its presence here
// is the mismatch. Earliest-sn-wins is a heuristic that has held in
// practice, not a guarantee; the output lists are meant to be reviewed
// before Repair is run.
func (c *Checker) Resolve() error {
	var overlaps []HTMLOverlap
	if err := c.store.LoadDiagnostic("overlappedHtmls.json", &overlaps); err != nil {
		return err
	}

	var correct, wrong []LectureRef
	for _, o := range overlaps {
		sn, err := strconv.Atoi(o.Prefix)
		if err != nil {
			continue
		}
		before, err := c.lectureIDsBelow(o.ClassID, sn)
		if err != nil {
			return err
		}
		for _, id := range o.LectureIDs {
			ref := LectureRef{ClassID: o.ClassID, SN: sn, LectureID: id}
			if before[id] {
				wrong = append(wrong, ref)
			} else {
				correct = append(correct, ref)
			}
		}
	}

	if err := c.store.SaveDiagnostic("correctLectureIds.json", correct); err != nil {
		return err
	}
	if err := c.store.SaveDiagnostic("wrongLectureIds.json", wrong); err != nil {
		return err
	}
	c.log.Info("resolve complete", zap.Int("correct", len(correct)), zap.Int("wrong", len(wrong)))
	return nil
}

func (c *Checker) lectureIDsBelow(classID string, sn int) (map[string]bool, error) {
	lectures, err := c.store.Lectures(classID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool)
	for _, l := range lectures {
		if l.SN < sn && l.LectureID != "" {
			ids[l.LectureID] = true
		}
	}
	return ids, nil
}

// RemoveWrongDirs deletes the captured directory of every lecture the
// resolve step marked wrong.
func (c *Checker) RemoveWrongDirs() error {
	var wrong []LectureRef
	if err := c.store.LoadDiagnostic("wrongLectureIds.json", &wrong); err != nil {
		return err
	}
	for _, ref := range wrong {
		dir := filepath.Join(c.tree.ClassDir(ref.ClassID), fmt.Sprintf("%03d_%s", ref.SN, ref.LectureID))
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		c.log.Info("removing wrong dir", zap.String("dir", dir))
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return nil
}

// ApplyCorrections overwrites each affected lecture record's lectureId
// with the resolved correct one, keyed by sn.
func (c *Checker) ApplyCorrections() error {
	var correct []LectureRef
	if err := c.store.LoadDiagnostic("correctLectureIds.json", &correct); err != nil {
		return err
	}
	for _, ref := range correct {
		lectures, err := c.store.Lectures(ref.ClassID)
		if err != nil {
			return err
		}
		changed := false
		for i := range lectures {
			if lectures[i].SN == ref.SN && lectures[i].LectureID != ref.LectureID {
				lectures[i].LectureID = ref.LectureID
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := c.store.SaveLectures(ref.ClassID, lectures); err != nil {
			return err
		}
		c.log.Info("corrected lecture id",
			zap.String("classId", ref.ClassID), zap.Int("sn", ref.SN), zap.String("lectureId", ref.LectureID))
	}
	return nil
}

// NormalizeTitles repairs every class's lecture titles in place: the badge
// text a lecture button leaks into its title is stripped, and runs of
// adjacent titles made equal by the strip get their serial numbers back.
// Arrays that come out unchanged are not rewritten.
func (c *Checker) NormalizeTitles() error {
	classes, err := c.store.MyClasses()
	if err != nil {
		return err
	}
	for _, mc := range classes {
		lectures, err := c.store.Lectures(mc.ClassID)
		if err != nil {
			return err
		}
		if len(lectures) == 0 {
			continue
		}

		titles := make([]string, len(lectures))
		for i, l := range lectures {
			titles[i] = extract.StripTitleSuffix(l.Title)
		}
		titles = extract.AttachSerial(titles)

		changed := false
		for i := range lectures {
			if lectures[i].Title != titles[i] {
				lectures[i].Title = titles[i]
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := c.store.SaveLectures(mc.ClassID, lectures); err != nil {
			return err
		}
		c.log.Info("titles normalized", zap.String("classId", mc.ClassID))
	}
	return nil
}

// Rebuild reconstructs lectureId and subtitle entries for one class from
// the captured content tree and merges them into the stored array by sn.
// Recovery path for when the JSON store and the directory tree disagree.
func (c *Checker) Rebuild(classID string) error {
	lectures, err := c.store.Lectures(classID)
	if err != nil {
		return err
	}
	if len(lectures) == 0 {
		return fmt.Errorf("class %s has no stored lectures", classID)
	}

	entries, err := os.ReadDir(c.tree.ClassDir(classID))
	if err != nil {
		return err
	}

	merged := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		prefix, lectureID, ok := splitSlug(e.Name())
		if !ok {
			continue
		}
		sn, _ := strconv.Atoi(prefix)

		videoPath := filepath.Join(c.tree.ClassDir(classID), e.Name(), "video.html")
		html, err := os.ReadFile(videoPath)
		if err != nil {
			c.log.Warn("no captured video markup", zap.String("dir", e.Name()))
			continue
		}
		tracks, err := extract.Tracks(string(html))
		if err != nil {
			return err
		}

		for i := range lectures {
			if lectures[i].SN != sn {
				continue
			}
			lectures[i].LectureID = lectureID
			lectures[i].Subtitles = extract.Subtitles(tracks)
			merged++
			break
		}
	}

	if err := c.store.SaveLectures(classID, lectures); err != nil {
		return err
	}
	c.log.Info("rebuild complete", zap.String("classId", classID), zap.Int("merged", merged))
	return nil
}
