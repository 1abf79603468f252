// Package notes renders the captured lesson-note markup into one Markdown
// file per lecture, with YAML front matter carrying the lecture metadata.
package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"coursekit/catalog"
	"coursekit/config"
	"coursekit/extract"
)

// Generator writes Markdown notes for crawled classes.
type Generator struct {
	cfg   *config.Config
	store *catalog.Store
	tree  catalog.ContentTree
	log   *zap.Logger
}

func NewGenerator(cfg *config.Config, store *catalog.Store, log *zap.Logger) *Generator {
	return &Generator{
		cfg:   cfg,
		store: store,
		tree:  catalog.NewContentTree(cfg.Paths.MediaRoot),
		log:   log,
	}
}

// Generate renders every lecture of one class into
// <MarkdownRoot>/<classTitle>/<sn>_<lectureTitle>.md. Lectures without a
// lecture ID are skipped; a lecture whose note markup cannot be located
// still gets a file with an empty note section.
func (g *Generator) Generate(classID string) error {
	classes, err := g.store.MyClasses()
	if err != nil {
		return err
	}
	var class *catalog.MyClass
	for i := range classes {
		if classes[i].ClassID == classID {
			class = &classes[i]
			break
		}
	}
	if class == nil {
		return fmt.Errorf("class %s not tracked", classID)
	}

	lectures, err := g.store.Lectures(classID)
	if err != nil {
		return err
	}

	classTitle := extract.SanitizeName(class.Title)
	category, err := g.categoryPath(class.CategoryID)
	if err != nil {
		return err
	}
	classDir := filepath.Join(g.cfg.Paths.MarkdownRoot, classTitle)
	if err := os.MkdirAll(classDir, 0755); err != nil {
		return err
	}

	for _, l := range lectures {
		if l.LectureID == "" {
			g.log.Warn("lecture not visited yet", zap.String("classId", classID), zap.Int("sn", l.SN))
			continue
		}
		md, err := g.render(classID, classTitle, category, l)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%03d_%s.md", l.SN, extract.SanitizeName(l.Title))
		if err := os.WriteFile(filepath.Join(classDir, name), []byte(md), 0644); err != nil {
			return err
		}
	}
	g.log.Info("notes generated", zap.String("classId", classID), zap.Int("lectures", len(lectures)))
	return nil
}

// GenerateAll renders notes for every tracked class.
func (g *Generator) GenerateAll() error {
	classes, err := g.store.MyClasses()
	if err != nil {
		return err
	}
	for _, mc := range classes {
		if err := g.Generate(mc.ClassID); err != nil {
			g.log.Error("class notes failed", zap.String("classId", mc.ClassID), zap.Error(err))
		}
	}
	return nil
}

// categoryPath resolves a class's category chain
// (top title / child title / subcategory title) from the stored taxonomy.
// Missing links yield an empty path, not an error.
func (g *Generator) categoryPath(categoryID string) (string, error) {
	subs, err := g.store.SubCategories()
	if err != nil {
		return "", err
	}
	var sub *catalog.SubCategory
	for i := range subs {
		if subs[i].CategoryID == categoryID {
			sub = &subs[i]
			break
		}
	}
	if sub == nil {
		return "", nil
	}

	cats, err := g.store.Categories()
	if err != nil {
		return "", err
	}
	for _, c := range cats {
		if c.CategoryID == sub.AncestorID {
			return c.Title0 + "/" + c.Title + "/" + sub.Title, nil
		}
	}
	return "", nil
}

func (g *Generator) render(classID, classTitle, category string, l catalog.Lecture) (string, error) {
	lectureTitle := extract.SanitizeName(l.Title)
	sourceURL := fmt.Sprintf("%s/classes/%s/lectures/%s", g.cfg.Site.BaseURL, classID, l.LectureID)

	attachments := g.attachmentNames(classID, l)

	note := ""
	if raw, err := os.ReadFile(g.tree.MaterialsHTML(classID, l)); err == nil {
		note, err = ConvertNote(string(raw), g.cfg.Selectors.NoteMarker)
		if err != nil {
			g.log.Warn("note conversion failed", zap.String("classId", classID), zap.Int("sn", l.SN), zap.Error(err))
			note = ""
		}
	}

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "lectureTitle: %s\n", lectureTitle)
	fmt.Fprintf(&b, "classTitle: %s\n", classTitle)
	fmt.Fprintf(&b, "sourceURL: %s\n", sourceURL)
	b.WriteString("attachments:")
	for _, a := range attachments {
		fmt.Fprintf(&b, "\n  - %q", a)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "duration: %s\n", extract.FormatDuration(l.Duration))
	fmt.Fprintf(&b, "category: %s\n", category)
	fmt.Fprintf(&b, "tags: %s\n", tags(category))
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "## 동영상\n![%s](%s)\n\n", lectureTitle, sourceURL)
	fmt.Fprintf(&b, "## 수업 노트\n%s\n\n", note)
	b.WriteString("## 강의 노트\n\n")
	return b.String(), nil
}

func (g *Generator) attachmentNames(classID string, l catalog.Lecture) []string {
	entries, err := os.ReadDir(g.tree.FilesDir(classID, l))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func tags(category string) string {
	if category == "" {
		return "courses"
	}
	return "courses/" + strings.ReplaceAll(category, " ", "")
}

var (
	imagePattern  = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	escapedDigit  = regexp.MustCompile(`(\d+)\\\.`)
	blankLineRuns = regexp.MustCompile(`\n+`)
)

// ConvertNote locates the note body in captured materials markup and
// converts it to Markdown. The body is the first div following the element
// whose text equals marker, searching the marker's siblings first and its
// parent's siblings second. A missing marker or body yields "", nil.
// Conversion is deterministic: the same markup always produces the same
// output.
func ConvertNote(markup, marker string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", err
	}

	var title *goquery.Selection
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) == marker {
			title = s
			return false
		}
		return true
	})
	if title == nil {
		return "", nil
	}

	content := nextDiv(title)
	if content == nil {
		content = nextDiv(title.Parent())
	}
	if content == nil || len(content.Nodes) == 0 {
		return "", nil
	}
	var root *html.Node = content.Nodes[0]

	md, err := htmltomarkdown.ConvertNode(root, converter.WithDomain("https://class101.net"))
	if err != nil {
		return "", err
	}
	return cleanup(string(md)), nil
}

func nextDiv(s *goquery.Selection) *goquery.Selection {
	for cur := s.Next(); cur.Length() > 0; cur = cur.Next() {
		if goquery.NodeName(cur) == "div" {
			return cur
		}
	}
	return nil
}

// cleanup applies the post-conversion normalization passes: a line break
// after each image, doubled emphasis markers split apart, per-line trim,
// escaped digit-dot sequences unescaped, and blank-line runs collapsed.
func cleanup(md string) string {
	md = imagePattern.ReplaceAllString(md, "$0\n")
	md = strings.ReplaceAll(md, "****", "** **")

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	md = strings.Join(lines, "\n")

	md = escapedDigit.ReplaceAllString(md, "$1.")
	md = blankLineRuns.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}
