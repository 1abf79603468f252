package check

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"coursekit/catalog"
)

func TestDuplicateLecturesReportsExactPair(t *testing.T) {
	lectures := []catalog.Lecture{
		{SN: 1, LectureID: "a", Title: "소개"},
		{SN: 2, LectureID: "dup", Title: "연습 1"},
		{SN: 3, LectureID: "b", Title: "이론"},
		{SN: 4, LectureID: "dup", Title: "연습 2"},
	}
	dups := DuplicateLectures("c1", lectures)
	if len(dups) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(dups), dups)
	}
	if dups[0].SN != 2 || dups[1].SN != 4 {
		t.Errorf("wrong pair reported: %v", dups)
	}
	for _, d := range dups {
		if d.LectureID != "dup" || d.ClassID != "c1" {
			t.Errorf("unexpected ref: %+v", d)
		}
	}
}

func TestDuplicateLecturesNoneForUniqueIDs(t *testing.T) {
	lectures := []catalog.Lecture{
		{SN: 1, LectureID: "a"},
		{SN: 2, LectureID: "b"},
		{SN: 3}, // not yet visited, must not count as a collision
		{SN: 4},
	}
	if dups := DuplicateLectures("c1", lectures); len(dups) != 0 {
		t.Errorf("expected no duplicates, got %v", dups)
	}
}

func newTestChecker(t *testing.T) (*Checker, *catalog.Store, catalog.ContentTree) {
	t.Helper()
	store := catalog.NewStore(t.TempDir())
	tree := catalog.NewContentTree(t.TempDir())
	return New(store, tree, zap.NewNop()), store, tree
}

func mkLectureDir(t *testing.T, tree catalog.ContentTree, classID, slug string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(tree.ClassDir(classID), slug), 0755); err != nil {
		t.Fatal(err)
	}
}

func TestReportFindsDirCollisions(t *testing.T) {
	checker, store, tree := newTestChecker(t)
	if err := store.SaveMyClasses([]catalog.MyClass{{ClassID: "c1"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveLectures("c1", []catalog.Lecture{
		{SN: 1, LectureID: "a"}, {SN: 2, LectureID: "b"},
	}); err != nil {
		t.Fatal(err)
	}
	mkLectureDir(t, tree, "c1", "001_a")
	mkLectureDir(t, tree, "c1", "002_b")
	mkLectureDir(t, tree, "c1", "002_stale")

	if err := checker.Report(); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	var overlaps []HTMLOverlap
	if err := store.LoadDiagnostic("overlappedHtmls.json", &overlaps); err != nil {
		t.Fatal(err)
	}
	if len(overlaps) != 1 {
		t.Fatalf("expected 1 overlap, got %v", overlaps)
	}
	o := overlaps[0]
	if o.Prefix != "002" || o.Count != 2 || len(o.LectureIDs) != 2 {
		t.Errorf("unexpected overlap: %+v", o)
	}
}

func TestResolveMarksEarlierIDWrong(t *testing.T) {
	checker, store, _ := newTestChecker(t)
	// "a" already owns sn 1, so its reappearance at sn 3 is the mismatch.
	if err := store.SaveLectures("c1", []catalog.Lecture{
		{SN: 1, LectureID: "a"},
		{SN: 2, LectureID: "b"},
		{SN: 3, LectureID: "a"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveDiagnostic("overlappedHtmls.json", []HTMLOverlap{
		{ClassID: "c1", Prefix: "003", Count: 2, LectureIDs: []string{"a", "fresh"}},
	}); err != nil {
		t.Fatal(err)
	}

	if err := checker.Resolve(); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	var wrong, correct []LectureRef
	if err := store.LoadDiagnostic("wrongLectureIds.json", &wrong); err != nil {
		t.Fatal(err)
	}
	if err := store.LoadDiagnostic("correctLectureIds.json", &correct); err != nil {
		t.Fatal(err)
	}
	if len(wrong) != 1 || wrong[0].LectureID != "a" || wrong[0].SN != 3 {
		t.Errorf("wrong = %v", wrong)
	}
	if len(correct) != 1 || correct[0].LectureID != "fresh" {
		t.Errorf("correct = %v", correct)
	}
}

func TestRepairAppliesCorrectionAndRemovesDir(t *testing.T) {
	checker, store, tree := newTestChecker(t)
	if err := store.SaveLectures("c1", []catalog.Lecture{
		{SN: 1, LectureID: "a"},
		{SN: 3, LectureID: "a"},
	}); err != nil {
		t.Fatal(err)
	}
	mkLectureDir(t, tree, "c1", "003_a")
	if err := store.SaveDiagnostic("wrongLectureIds.json",
		[]LectureRef{{ClassID: "c1", SN: 3, LectureID: "a"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveDiagnostic("correctLectureIds.json",
		[]LectureRef{{ClassID: "c1", SN: 3, LectureID: "fresh"}}); err != nil {
		t.Fatal(err)
	}

	if err := checker.RemoveWrongDirs(); err != nil {
		t.Fatalf("RemoveWrongDirs failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tree.ClassDir("c1"), "003_a")); !os.IsNotExist(err) {
		t.Error("wrong dir not removed")
	}

	if err := checker.ApplyCorrections(); err != nil {
		t.Fatalf("ApplyCorrections failed: %v", err)
	}
	lectures, err := store.Lectures("c1")
	if err != nil {
		t.Fatal(err)
	}
	if lectures[1].LectureID != "fresh" {
		t.Errorf("lectureId = %q, want fresh", lectures[1].LectureID)
	}
	if lectures[0].LectureID != "a" {
		t.Errorf("sn 1 must be untouched, got %q", lectures[0].LectureID)
	}
}

func TestNormalizeTitlesRepairsAndReserials(t *testing.T) {
	checker, store, _ := newTestChecker(t)
	if err := store.SaveMyClasses([]catalog.MyClass{{ClassID: "c1"}}); err != nil {
		t.Fatal(err)
	}
	// Two "연습문제 N" entries collapse to the same title once the badge
	// digits are stripped; the serial pass must tell them apart again.
	if err := store.SaveLectures("c1", []catalog.Lecture{
		{SN: 1, Title: "소개미션"},
		{SN: 2, Title: "연습문제 1"},
		{SN: 3, Title: "연습문제 2"},
		{SN: 4, Title: "마무리"},
	}); err != nil {
		t.Fatal(err)
	}

	if err := checker.NormalizeTitles(); err != nil {
		t.Fatalf("NormalizeTitles failed: %v", err)
	}

	lectures, err := store.Lectures("c1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"소개", "연습문제 1", "연습문제 2", "마무리"}
	for i, w := range want {
		if lectures[i].Title != w {
			t.Errorf("sn %d title = %q, want %q", lectures[i].SN, lectures[i].Title, w)
		}
	}
}

func TestNormalizeTitlesLeavesCleanClassAlone(t *testing.T) {
	checker, store, _ := newTestChecker(t)
	if err := store.SaveMyClasses([]catalog.MyClass{{ClassID: "c1"}}); err != nil {
		t.Fatal(err)
	}
	clean := []catalog.Lecture{{SN: 1, Title: "소개"}, {SN: 2, Title: "이론"}}
	if err := store.SaveLectures("c1", clean); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(store.Path(filepath.Join("classes", "c1.json")))
	if err != nil {
		t.Fatal(err)
	}

	if err := checker.NormalizeTitles(); err != nil {
		t.Fatalf("NormalizeTitles failed: %v", err)
	}

	after, err := os.ReadFile(store.Path(filepath.Join("classes", "c1.json")))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("clean class file was rewritten")
	}
}

func TestRebuildMergesFromContentTree(t *testing.T) {
	checker, store, tree := newTestChecker(t)
	if err := store.SaveLectures("c1", []catalog.Lecture{
		{SN: 1, Title: "소개"},
		{SN: 2, Title: "실습"},
	}); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(tree.ClassDir("c1"), "002_lec2")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	video := `<video><track src="https://cdn.example.net/ko.vtt" srclang="ko"></video>`
	if err := os.WriteFile(filepath.Join(dir, "video.html"), []byte(video), 0644); err != nil {
		t.Fatal(err)
	}

	if err := checker.Rebuild("c1"); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	lectures, err := store.Lectures("c1")
	if err != nil {
		t.Fatal(err)
	}
	if lectures[0].LectureID != "" {
		t.Errorf("sn 1 should stay unvisited, got %q", lectures[0].LectureID)
	}
	if lectures[1].LectureID != "lec2" || !lectures[1].Done() {
		t.Errorf("sn 2 not rebuilt: %+v", lectures[1])
	}
	if lectures[1].Subtitles[0].Lang != "ko" {
		t.Errorf("unexpected subtitles: %v", lectures[1].Subtitles)
	}
}
