// Package config provides configuration loading for the course-archive
// toolkit using TOML, with environment overrides for the root paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Paths holds the root directories shared by every tool.
type Paths struct {
	DataRoot     string `toml:"dataRoot"`     // JSON store (catalog, class lecture arrays, diagnostics)
	MediaRoot    string `toml:"mediaRoot"`    // captured HTML/attachments/subtitles tree
	VideoRoot    string `toml:"videoRoot"`    // recorded video output tree
	MarkdownRoot string `toml:"markdownRoot"` // generated markdown notes
	DownloadDir  string `toml:"downloadDir"`  // OS download folder watched by the poller
}

// Chrome holds browser session settings.
type Chrome struct {
	Email          string `toml:"email"`
	UserDataDir    string `toml:"userDataDir"`
	ExecPath       string `toml:"execPath"` // empty = auto-detect
	Headless       bool   `toml:"headless"`
	TimeoutSeconds int    `toml:"timeoutSeconds"` // per-interaction wait bound
}

// Site holds the endpoints of the e-learning platform.
type Site struct {
	BaseURL       string `toml:"baseUrl"`
	CategoryURL   string `toml:"categoryUrl"`
	GraphQLURL    string `toml:"graphqlUrl"`
	ProductsQuery string `toml:"productsQuery"` // persisted-query sha256 for the catalog listing
}

// Server holds file/video server settings.
type Server struct {
	Addr string `toml:"addr"`
}

// Selectors is the selector set used by the page-data extractor. Selectors
// are data, not logic: the site ships generated class names that drift, so
// every one of them can be overridden from the config file.
type Selectors struct {
	NextData string `toml:"nextData"`

	// my-classes page
	ClassTile      string `toml:"classTile"`
	TileThumbnail  string `toml:"tileThumbnail"`
	TileChapter    string `toml:"tileChapter"`
	TileTitle      string `toml:"tileTitle"`
	TileLastPlayed string `toml:"tileLastPlayed"`

	// class page, lecture list
	ChapterMarker   string `toml:"chapterMarker"`
	ChapterSection  string `toml:"chapterSection"`
	ChapterTitle    string `toml:"chapterTitle"`
	ChapterName     string `toml:"chapterName"`
	LectureButton   string `toml:"lectureButton"`
	LectureTitle    string `toml:"lectureTitle"`
	LectureTitleAlt string `toml:"lectureTitleAlt"`
	BadgeValue      string `toml:"badgeValue"`
	DurationIcon    string `toml:"durationIcon"`
	CommentIcon     string `toml:"commentIcon"`
	MissionBadge    string `toml:"missionBadge"`
	MissionText     string `toml:"missionText"`
	AttachmentBadge string `toml:"attachmentBadge"`
	AttachmentText  string `toml:"attachmentText"`

	// lecture player page
	Video           string `toml:"video"`
	MaterialTab     string `toml:"materialTab"`   // tab label text
	CurriculumTab   string `toml:"curriculumTab"` // tab label text
	MaterialContent string `toml:"materialContent"`
	DownloadLabel   string `toml:"downloadLabel"` // attachment button label text
	AttachmentRow   string `toml:"attachmentRow"`
	AttachmentName  string `toml:"attachmentName"`

	// captured note markup
	NoteMarker string `toml:"noteMarker"` // heading text that precedes the note body
}

// Config is the main configuration struct, constructed once at startup and
// passed to every component that needs it.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Chrome    Chrome    `toml:"chrome"`
	Site      Site      `toml:"site"`
	Server    Server    `toml:"server"`
	Selectors Selectors `toml:"selectors"`
}

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	repo := filepath.Join(home, "coursekit")
	return &Config{
		Paths: Paths{
			DataRoot:     filepath.Join(repo, "json"),
			MediaRoot:    filepath.Join(repo, "html"),
			VideoRoot:    filepath.Join(repo, "video"),
			MarkdownRoot: filepath.Join(repo, "markdown"),
			DownloadDir:  filepath.Join(home, "Downloads"),
		},
		Chrome: Chrome{
			UserDataDir:    filepath.Join(home, ".config", "coursekit", "chrome-profile"),
			Headless:       false,
			TimeoutSeconds: 20,
		},
		Site: Site{
			BaseURL:       "https://class101.net/ko",
			CategoryURL:   "https://class101.net/ko/categories",
			GraphQLURL:    "https://cdn-production-gateway.class101.net/graphql",
			ProductsQuery: "de9123f7372649c2874c9939436d6c5417a48b55af12045b7bdaea7de0a079cc",
		},
		Server: Server{
			Addr: ":4000",
		},
		Selectors: Selectors{
			NextData: "#__NEXT_DATA__",

			ClassTile:      `ul[data-testid="grid-list"] > li`,
			TileThumbnail:  `img[data-testid="image-thumbnail-content"]`,
			TileChapter:    `span[data-testid="body"].css-ndwbv2`,
			TileTitle:      `span[data-testid="body"].css-tay7br`,
			TileLastPlayed: ".css-ep08pq",

			ChapterMarker:   "div.css-194e0q9",
			ChapterSection:  ".css-zsoya5",
			ChapterTitle:    ".css-eazf6c",
			ChapterName:     ".css-12r95pg",
			LectureButton:   "button.css-1hvtp3b",
			LectureTitle:    ".css-1h8wj8h",
			LectureTitleAlt: ".css-q6203x",
			BadgeValue:      ".css-bgvpp3",
			DurationIcon:    `svg[data-testid="playcircle-fill"]`,
			CommentIcon:     `svg[data-testid="reply-fill"]`,
			MissionBadge:    ".css-19i4oqq",
			MissionText:     "미션",
			AttachmentBadge: ".css-12fz3yr",
			AttachmentText:  "첨부파일",

			Video:           "video",
			MaterialTab:     "수업자료",
			CurriculumTab:   "커리큘럼",
			MaterialContent: "div.css-1przxg",
			DownloadLabel:   "Download",
			AttachmentRow:   "div.css-pvbmuo",
			AttachmentName:  "p.css-1e3x3i0",

			NoteMarker: "수업 노트",
		},
	}
}

// ConfigPath returns the path to the user's config file.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "coursekit", "config.toml"), nil
}

// Load loads configuration, layering the user config file and environment
// overrides on top of defaults. path may be empty to use the default
// location; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv applies environment overrides. These mirror the variables the
// operator already exports for ad-hoc runs, so a config file is optional.
func (c *Config) applyEnv() {
	setIfEnv(&c.Paths.DataRoot, "COURSEKIT_DATA_ROOT")
	setIfEnv(&c.Paths.MediaRoot, "COURSEKIT_MEDIA_ROOT")
	setIfEnv(&c.Paths.VideoRoot, "COURSEKIT_VIDEO_ROOT")
	setIfEnv(&c.Paths.MarkdownRoot, "COURSEKIT_MARKDOWN_ROOT")
	setIfEnv(&c.Paths.DownloadDir, "COURSEKIT_DOWNLOAD_DIR")
	setIfEnv(&c.Chrome.Email, "COURSEKIT_CHROME_EMAIL")
	setIfEnv(&c.Chrome.UserDataDir, "COURSEKIT_CHROME_PROFILE")
	setIfEnv(&c.Chrome.ExecPath, "COURSEKIT_CHROME_PATH")
	setIfEnv(&c.Site.BaseURL, "COURSEKIT_BASE_URL")
	setIfEnv(&c.Site.CategoryURL, "COURSEKIT_CATEGORY_URL")
	setIfEnv(&c.Site.GraphQLURL, "COURSEKIT_GRAPHQL_URL")
	setIfEnv(&c.Server.Addr, "COURSEKIT_SERVER_ADDR")
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Timeout returns the per-interaction wait bound, defaulting when unset.
func (c Chrome) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
