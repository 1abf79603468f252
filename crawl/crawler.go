// Package crawl drives the staged enrichment of the course catalog: each
// stage loads a collection from the JSON store, performs browser or HTTP
// work per item, and persists the whole collection after every item so a
// killed run loses at most the item in flight.
package crawl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coursekit/browser"
	"coursekit/catalog"
	"coursekit/config"
	"coursekit/extract"
)

// Crawler owns one browser session and the JSON store for the duration of
// a run. Stages are methods; each is idempotent and resumable.
type Crawler struct {
	cfg     *config.Config
	store   *catalog.Store
	tree    catalog.ContentTree
	log     *zap.Logger
	runID   string
	session *browser.Session
	client  *http.Client
}

func New(cfg *config.Config, store *catalog.Store, log *zap.Logger) *Crawler {
	runID := uuid.NewString()
	return &Crawler{
		cfg:    cfg,
		store:  store,
		tree:   catalog.NewContentTree(cfg.Paths.MediaRoot),
		log:    log.With(zap.String("run", runID)),
		runID:  runID,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Close shuts down the browser session if one was launched.
func (c *Crawler) Close() {
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
}

func (c *Crawler) ensureSession() error {
	if c.session != nil {
		return nil
	}
	s, err := browser.Launch(c.cfg.Chrome, c.log)
	if err != nil {
		return err
	}
	if err := s.SetDownloadDir(c.downloadDir()); err != nil {
		s.Close()
		return err
	}
	c.session = s
	return nil
}

func (c *Crawler) fetchHTML(url string) (string, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	return string(body), nil
}

// Categories fetches the catalog landing page and saves the two-level
// category list. Plain HTTP; the category pages render their data into an
// embedded JSON block, no browser needed.
func (c *Crawler) Categories() error {
	html, err := c.fetchHTML(c.cfg.Site.CategoryURL)
	if err != nil {
		return err
	}
	nextData, err := extract.NextDataJSON(html, c.cfg.Selectors.NextData)
	if err != nil {
		return err
	}
	cats, err := extract.Categories(nextData)
	if err != nil {
		return err
	}
	c.log.Info("categories extracted", zap.Int("count", len(cats)))
	return c.store.SaveCategories(cats)
}

// SubCategories visits each category page and saves the flattened child
// list. Raw page-data snapshots are kept per category so a rerun skips
// pages already fetched.
func (c *Crawler) SubCategories() error {
	cats, err := c.store.Categories()
	if err != nil {
		return err
	}
	var subs []catalog.SubCategory
	for _, cat := range cats {
		rawName := filepath.Join("nextData", "categories", cat.CategoryID+".json")
		var nextData []byte
		if c.store.HasRaw(rawName) {
			nextData, err = c.store.LoadRaw(rawName)
			if err != nil {
				return err
			}
		} else {
			html, err := c.fetchHTML(c.cfg.Site.CategoryURL + "/" + cat.CategoryID)
			if err != nil {
				c.log.Warn("category page fetch failed", zap.String("categoryId", cat.CategoryID), zap.Error(err))
				continue
			}
			nextData, err = extract.NextDataJSON(html, c.cfg.Selectors.NextData)
			if err != nil {
				c.log.Warn("no page data", zap.String("categoryId", cat.CategoryID), zap.Error(err))
				continue
			}
			if err := c.store.SaveRaw(rawName, nextData); err != nil {
				return err
			}
		}
		got, err := extract.SubCategories(nextData, cat.CategoryID)
		if err != nil {
			c.log.Warn("subcategory extraction failed", zap.String("categoryId", cat.CategoryID), zap.Error(err))
			continue
		}
		subs = append(subs, got...)
	}
	c.log.Info("subcategories extracted", zap.Int("count", len(subs)))
	return c.store.SaveSubCategories(subs)
}

type graphqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Extensions    map[string]any `json:"extensions"`
}

func (c *Crawler) fetchCategoryProducts(categoryID string) ([]byte, error) {
	req := graphqlRequest{
		OperationName: "CategoryProductsV3OnCategoryProductList",
		Variables: map[string]any{
			"filter":            map[string]any{"purchaseOptions": []string{"Lifetime", "Rental", "Subscription"}},
			"categoryId":        categoryID,
			"first":             1000,
			"isLoggedIn":        true,
			"sort":              "Popular",
			"originalLanguages": []string{},
		},
		Extensions: map[string]any{
			"persistedQuery": map[string]any{
				"version":    1,
				"sha256Hash": c.cfg.Site.ProductsQuery,
			},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Post(c.cfg.Site.GraphQLURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("products query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("products query: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Products queries the catalog endpoint per subcategory and accumulates
// deduplicated product records, persisting after each subcategory.
func (c *Crawler) Products() error {
	subs, err := c.store.SubCategories()
	if err != nil {
		return err
	}
	products, err := c.store.Products()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(products))
	for _, p := range products {
		seen[p.ProductID] = true
	}

	for _, sub := range subs {
		payload, err := c.fetchCategoryProducts(sub.CategoryID)
		if err != nil {
			c.log.Warn("products fetch failed", zap.String("categoryId", sub.CategoryID), zap.Error(err))
			continue
		}
		got, err := extract.Products(payload)
		if err != nil {
			c.log.Warn("products decode failed", zap.String("categoryId", sub.CategoryID), zap.Error(err))
			continue
		}
		if len(got) == 0 {
			c.log.Info("no products", zap.String("categoryId", sub.CategoryID), zap.String("title", sub.Title))
			continue
		}
		added := 0
		for _, p := range got {
			if seen[p.ProductID] {
				continue
			}
			seen[p.ProductID] = true
			products = append(products, p)
			added++
		}
		if err := c.store.SaveProducts(products); err != nil {
			return err
		}
		c.log.Info("products saved", zap.String("categoryId", sub.CategoryID), zap.Int("added", added))
		time.Sleep(3 * time.Second)
	}
	return nil
}

// classIDFromURL pulls the class ID out of a class page URL. The path is
// /<lang>/classes/<classId>[/lectures/<lectureId>].
func classIDFromURL(url string) string {
	parts := strings.Split(url, "/")
	if len(parts) > 5 {
		return parts[5]
	}
	return ""
}

// lectureIDFromURL pulls the lecture ID out of a lecture page URL.
func lectureIDFromURL(url string) string {
	parts := strings.Split(url, "/")
	if len(parts) > 7 {
		return parts[7]
	}
	return ""
}

// ClassIDs walks the my-classes grid, clicking each tile to read the class
// ID off the destination URL, then navigating back. IDs accumulate
// incrementally across runs; the walk stops once every tile is covered.
func (c *Crawler) ClassIDs() error {
	if err := c.ensureSession(); err != nil {
		return err
	}
	url := c.cfg.Site.BaseURL + "/my-classes"
	if err := c.session.Navigate(url); err != nil {
		return err
	}
	if err := c.session.WaitVisible(c.cfg.Selectors.ClassTile, c.cfg.Chrome.Timeout()); err != nil {
		return err
	}
	if err := c.session.ScrollToBottom(); err != nil {
		return err
	}

	ids, err := c.store.ClassIDs()
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	html, err := c.session.PageSource()
	if err != nil {
		return err
	}
	tiles, err := extract.ClassTiles(html, c.cfg.Selectors)
	if err != nil {
		return err
	}
	c.log.Info("class tiles", zap.Int("count", len(tiles)), zap.Int("known", len(ids)))

	for i := range tiles {
		if len(ids) >= len(tiles) {
			break
		}
		if err := c.session.ClickNth(c.cfg.Selectors.ClassTile, i); err != nil {
			c.log.Warn("tile click failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		c.session.Sleep(5 * time.Second)

		loc, err := c.session.Location()
		if err != nil {
			return err
		}
		id := classIDFromURL(loc)
		if id == "" {
			c.log.Warn("no class id in url", zap.String("url", loc))
		} else if !known[id] {
			known[id] = true
			ids = append(ids, id)
			if err := c.store.SaveClassIDs(ids); err != nil {
				return err
			}
			c.log.Info("class id registered", zap.String("classId", id))
		}

		if err := c.session.Back(); err != nil {
			return err
		}
		c.session.Sleep(3 * time.Second)
		if err := c.session.ScrollToBottom(); err != nil {
			return err
		}
	}
	return nil
}

// SyncClasses joins the collected class IDs against the product catalog
// and upserts myclasses entries. IDs with no matching product are recorded
// separately for manual follow-up.
func (c *Crawler) SyncClasses() error {
	ids, err := c.store.ClassIDs()
	if err != nil {
		return err
	}
	products, err := c.store.Products()
	if err != nil {
		return err
	}
	classes, err := c.store.MyClasses()
	if err != nil {
		return err
	}

	byKlass := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byKlass[p.KlassID] = p
	}
	have := make(map[string]bool, len(classes))
	for _, mc := range classes {
		have[mc.ClassID] = true
	}

	var noInfo []string
	for _, id := range ids {
		if have[id] {
			continue
		}
		p, ok := byKlass[id]
		if !ok {
			c.log.Warn("no product for class", zap.String("classId", id))
			noInfo = append(noInfo, id)
			continue
		}
		classes = append(classes, catalog.MyClass{
			Title:      p.Title,
			ClassID:    id,
			ProductID:  p.ProductID,
			CategoryID: p.CategoryID,
			AuthorID:   p.AuthorID,
		})
	}

	if err := c.store.SaveMyClasses(classes); err != nil {
		return err
	}
	if len(noInfo) > 0 {
		if err := c.store.SaveNoInfoClassIDs(noInfo); err != nil {
			return err
		}
	}
	c.log.Info("classes synced", zap.Int("classes", len(classes)), zap.Int("noInfo", len(noInfo)))
	return nil
}

// MapButtonIndex maps a lecture to the index of its title button on the
// class page. The page is assumed to render title buttons in sn order, so
// the sn-th lecture is the (sn-1)-th button. This positional mapping is
// the one place that assumption lives; when the page's DOM order drifts
// from sn order, wrong lecture IDs get attached and the integrity checker
// is the backstop that finds them.
func MapButtonIndex(l catalog.Lecture) int {
	return l.SN - 1
}

// Lectures crawls one class: on first run it extracts the lecture skeleton
// from the class page; on update runs it reloads the stored array. Either
// way it then visits every lecture that is not yet done, assigning its
// lecture ID, capturing video and materials markup, downloading
// attachments and subtitle tracks, and persisting the array after each
// lecture.
func (c *Crawler) Lectures(classID string, update bool) error {
	if err := c.ensureSession(); err != nil {
		return err
	}
	classURL := c.cfg.Site.BaseURL + "/classes/" + classID
	if err := c.openClassPage(classURL); err != nil {
		return err
	}

	html, err := c.session.PageSource()
	if err != nil {
		return err
	}

	var lectures []catalog.Lecture
	if update {
		lectures, err = c.store.Lectures(classID)
		if err != nil {
			return err
		}
		if len(lectures) == 0 {
			return fmt.Errorf("class %s has no stored lectures to update", classID)
		}
	} else {
		if err := writeFile(c.tree.ClassIndex(classID), []byte(html)); err != nil {
			return err
		}
		lectures, err = extract.Lectures(html, c.cfg.Selectors)
		if err != nil {
			return err
		}
		if err := c.store.SaveLectures(classID, lectures); err != nil {
			return err
		}
		c.log.Info("lecture skeleton saved", zap.String("classId", classID), zap.Int("count", len(lectures)))
	}

	visited, err := Walk(lectures,
		catalog.Lecture.Done,
		func(i int, l *catalog.Lecture) error {
			return c.visitLecture(classID, l)
		},
		func(ls []catalog.Lecture) error {
			return c.store.SaveLectures(classID, ls)
		},
		func(err error) error {
			c.log.Error("lecture failed", zap.String("classId", classID), zap.Error(err))
			if browser.Closed(err) {
				if err := c.session.Relaunch(); err != nil {
					return err
				}
				if err := c.session.SetDownloadDir(c.downloadDir()); err != nil {
					return err
				}
				return c.openClassPage(classURL)
			}
			return nil
		},
	)
	if err != nil {
		return err
	}
	c.log.Info("class crawled", zap.String("classId", classID), zap.Int("visited", visited))

	return c.markStages(classID, lectures)
}

func (c *Crawler) openClassPage(classURL string) error {
	if err := c.session.Navigate(classURL); err != nil {
		return err
	}
	if err := c.session.ScrollToBottom(); err != nil {
		return err
	}
	return c.session.Sleep(3 * time.Second)
}

// visitLecture performs the per-lecture browser interaction: click the
// lecture's title button, read the lecture ID off the URL, capture markup,
// pull attachments and subtitles.
func (c *Crawler) visitLecture(classID string, l *catalog.Lecture) error {
	c.log.Info("visiting lecture", zap.String("classId", classID), zap.Int("sn", l.SN), zap.String("title", l.Title))

	if err := c.session.ClickNth(c.cfg.Selectors.LectureButton, MapButtonIndex(*l)); err != nil {
		return fmt.Errorf("lecture button %d: %w", l.SN, err)
	}
	if err := c.session.WaitVisible(c.cfg.Selectors.Video, 5*time.Second); err != nil {
		c.log.Warn("video element not found", zap.Int("sn", l.SN), zap.Error(err))
	}
	c.session.Sleep(2 * time.Second)

	loc, err := c.session.Location()
	if err != nil {
		return err
	}
	id := lectureIDFromURL(loc)
	if id == "" {
		return fmt.Errorf("no lecture id in url %s", loc)
	}
	l.LectureID = id

	videoHTML, err := c.session.ElementHTML(c.cfg.Selectors.Video)
	if err != nil {
		return fmt.Errorf("capturing video markup: %w", err)
	}
	if err := writeFile(c.tree.VideoHTML(classID, *l), []byte(videoHTML)); err != nil {
		return err
	}

	if err := c.captureMaterials(classID, *l); err != nil {
		return err
	}

	subs, err := c.fetchSubtitles(classID, *l, videoHTML)
	if err != nil {
		return err
	}
	l.Subtitles = subs
	return nil
}

// captureMaterials opens the materials tab, saves its markup, downloads
// attachments when the lecture carries the attachment badge, and returns
// to the curriculum tab.
func (c *Crawler) captureMaterials(classID string, l catalog.Lecture) error {
	if err := c.session.ClickText(c.cfg.Selectors.MaterialTab); err != nil {
		return fmt.Errorf("materials tab: %w", err)
	}
	c.session.Sleep(5 * time.Second)

	materialHTML, err := c.session.ElementHTML(c.cfg.Selectors.MaterialContent)
	if err != nil {
		return fmt.Errorf("capturing materials: %w", err)
	}
	if err := writeFile(c.tree.MaterialsHTML(classID, l), []byte(materialHTML)); err != nil {
		return err
	}

	if l.HasAttachment {
		if err := c.downloadAttachments(classID, l, materialHTML); err != nil {
			c.log.Error("attachment download failed", zap.Int("sn", l.SN), zap.Error(err))
		}
	}

	if err := c.session.ClickText(c.cfg.Selectors.CurriculumTab); err != nil {
		return fmt.Errorf("curriculum tab: %w", err)
	}
	return c.session.Sleep(3 * time.Second)
}

// attachmentTarget pairs an attachment name with the index of its download
// button on the materials tab.
type attachmentTarget struct {
	index int
	name  string
}

// downloadTargets picks the attachments worth clicking. Python files are
// skipped, but their rows still occupy a button slot, so indices keep
// counting through skipped entries.
func downloadTargets(names []string) []attachmentTarget {
	var targets []attachmentTarget
	for i, name := range names {
		if strings.HasSuffix(strings.ToLower(name), ".py") {
			continue
		}
		targets = append(targets, attachmentTarget{index: i, name: name})
	}
	return targets
}

// downloadAttachments clicks each download button on the materials tab in
// turn and waits for the file to land. Python attachments are skipped;
// those are served inline elsewhere and the download prompt hangs.
func (c *Crawler) downloadAttachments(classID string, l catalog.Lecture, materialHTML string) error {
	names, err := extract.AttachmentNames(materialHTML, c.cfg.Selectors)
	if err != nil {
		return err
	}
	watchDir := c.downloadDir()
	filesDir := c.tree.FilesDir(classID, l)

	targets := downloadTargets(names)
	if skipped := len(names) - len(targets); skipped > 0 {
		c.log.Info("skipping python attachments", zap.Int("count", skipped))
	}
	for _, tgt := range targets {
		watcher := NewDownloadWatcher(watchDir, filesDir, c.log)
		_, err := watcher.Run(func() error {
			return c.session.ClickTextNth(c.cfg.Selectors.DownloadLabel, tgt.index)
		})
		if err != nil {
			return fmt.Errorf("attachment %s: %w", tgt.name, err)
		}
	}
	return nil
}

func (c *Crawler) downloadDir() string {
	if c.cfg.Paths.DownloadDir != "" {
		return c.cfg.Paths.DownloadDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Downloads")
}

// fetchSubtitles downloads every .vtt track referenced by the captured
// video markup into the lecture's subtitles directory.
func (c *Crawler) fetchSubtitles(classID string, l catalog.Lecture, videoHTML string) ([]catalog.Subtitle, error) {
	tracks, err := extract.Tracks(videoHTML)
	if err != nil {
		return nil, err
	}
	var subs []catalog.Subtitle
	for _, t := range tracks {
		data, err := c.fetchBytes(t.URL)
		if err != nil {
			c.log.Warn("subtitle fetch failed", zap.String("url", t.URL), zap.Error(err))
			continue
		}
		if err := writeFile(c.tree.SubtitlePath(classID, l, t.Name), data); err != nil {
			return nil, err
		}
		subs = append(subs, catalog.Subtitle{Lang: t.Lang, Name: t.Name})
	}
	return subs, nil
}

func (c *Crawler) fetchBytes(url string) ([]byte, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// markStages records the class-level stage flags after a lecture pass:
// lectures extracted always, subtitles once every lecture is done.
func (c *Crawler) markStages(classID string, lectures []catalog.Lecture) error {
	classes, err := c.store.MyClasses()
	if err != nil {
		return err
	}
	allDone := len(lectures) > 0
	for _, l := range lectures {
		if !l.Done() {
			allDone = false
			break
		}
	}
	for i := range classes {
		if classes[i].ClassID != classID {
			continue
		}
		classes[i].Step.Add(catalog.StageLectures)
		if allDone {
			classes[i].Step.Add(catalog.StageSubtitles)
		}
		return c.store.SaveMyClasses(classes)
	}
	return nil
}

// RunLectures crawls a single class when classID is given, otherwise every
// class whose subtitle stage is not yet complete.
func (c *Crawler) RunLectures(classID string, update bool) error {
	if classID != "" {
		return c.Lectures(classID, update)
	}
	classes, err := c.store.MyClasses()
	if err != nil {
		return err
	}
	for _, mc := range classes {
		if mc.Step.Has(catalog.StageSubtitles) {
			continue
		}
		upd := mc.Step.Has(catalog.StageLectures)
		if err := c.Lectures(mc.ClassID, upd); err != nil {
			c.log.Error("class crawl failed", zap.String("classId", mc.ClassID), zap.Error(err))
		}
	}
	return nil
}

// RedownList collects every lecture still failing the done predicate into
// the redown list for targeted re-crawling.
func (c *Crawler) RedownList() error {
	classes, err := c.store.MyClasses()
	if err != nil {
		return err
	}
	var redown []catalog.RedownLecture
	for _, mc := range classes {
		lectures, err := c.store.Lectures(mc.ClassID)
		if err != nil {
			return err
		}
		for _, l := range lectures {
			if l.Done() {
				continue
			}
			redown = append(redown, catalog.RedownLecture{ClassID: mc.ClassID, Lecture: l})
		}
	}
	c.log.Info("redown list built", zap.Int("count", len(redown)))
	return c.store.SaveRedownLectures(redown)
}

// CopySubtitles copies each lecture's canonical Korean subtitle from the
// content tree into the video output tree, named by slug.
func (c *Crawler) CopySubtitles(classID string) error {
	lectures, err := c.store.Lectures(classID)
	if err != nil {
		return err
	}
	for _, l := range lectures {
		sub := l.KoreanSubtitle()
		if sub == nil {
			c.log.Warn("no korean subtitle", zap.String("classId", classID), zap.Int("sn", l.SN))
			continue
		}
		src := c.tree.SubtitlePath(classID, l, sub.Name)
		dst := filepath.Join(c.cfg.Paths.VideoRoot, classID, l.Slug()+".vtt")
		if err := copyFile(src, dst); err != nil {
			c.log.Warn("subtitle copy failed", zap.String("src", src), zap.Error(err))
		}
	}
	return nil
}

// CopyAllSubtitles runs CopySubtitles over every tracked class.
func (c *Crawler) CopyAllSubtitles() error {
	classes, err := c.store.MyClasses()
	if err != nil {
		return err
	}
	for _, mc := range classes {
		if err := c.CopySubtitles(mc.ClassID); err != nil {
			return err
		}
	}
	return nil
}

// Clean removes captured lecture directories that match no current
// lecture's slug. This is the only deletion path in the system.
func (c *Crawler) Clean() error {
	classes, err := c.store.MyClasses()
	if err != nil {
		return err
	}
	for _, mc := range classes {
		lectures, err := c.store.Lectures(mc.ClassID)
		if err != nil {
			return err
		}
		valid := make(map[string]bool, len(lectures))
		for _, l := range lectures {
			if l.LectureID != "" {
				valid[l.Slug()] = true
			}
		}

		classDir := c.tree.ClassDir(mc.ClassID)
		entries, err := os.ReadDir(classDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for _, e := range entries {
			if !e.IsDir() || valid[e.Name()] {
				continue
			}
			c.log.Info("removing stale dir", zap.String("classId", mc.ClassID), zap.String("dir", e.Name()))
			if err := os.RemoveAll(filepath.Join(classDir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeFile(dst, data)
}
