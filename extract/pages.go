package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"coursekit/catalog"
	"coursekit/config"
)

// ClassTile is one entry of the my-classes grid.
type ClassTile struct {
	Title      string
	ImageID    string
	Chapter    string
	LastPlayed string
}

// ClassTiles extracts the my-classes grid entries.
func ClassTiles(html string, sel config.Selectors) ([]ClassTile, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var tiles []ClassTile
	doc.Find(sel.ClassTile).Each(func(_ int, li *goquery.Selection) {
		cover, _ := li.Find(sel.TileThumbnail).Attr("src")
		tiles = append(tiles, ClassTile{
			Title:      CollapseSpace(li.Find(sel.TileTitle).Text()),
			ImageID:    imageID(cover),
			Chapter:    CollapseSpace(li.Find(sel.TileChapter).Text()),
			LastPlayed: strings.TrimSpace(li.Find(sel.TileLastPlayed).Text()),
		})
	})
	return tiles, nil
}

// Lectures extracts the lecture skeleton of a class page: every lecture row
// grouped under its chapter, serial-numbered in page order. SN is assigned
// here and is the lecture's identity until the crawler learns its remote ID.
func Lectures(html string, sel config.Selectors) ([]catalog.Lecture, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var lectures []catalog.Lecture
	sn := 0

	doc.Find(sel.ChapterMarker).Parent().Filter(sel.ChapterSection).
		Each(func(chapterIndex int, section *goquery.Selection) {
			chapterTitle := strings.TrimSpace(section.Find(sel.ChapterTitle).First().Text())
			chapterName := strings.TrimSpace(section.Find(sel.ChapterName).First().Text())
			if chapterTitle == "" || chapterName == "" {
				return
			}
			chapter := fmt.Sprintf("%03d_%s", chapterIndex+1, CollapseSpace(chapterName))

			container := section.Find("div" + sel.ChapterSection).First()
			container.Find(sel.LectureButton).Each(func(_ int, button *goquery.Selection) {
				sn++

				title := strings.TrimSpace(button.Find(sel.LectureTitle).First().Text())
				if title == "" {
					title = strings.TrimSpace(button.Find(sel.LectureTitleAlt).First().Text())
				}
				if title == "" {
					title = strings.TrimSpace(strings.SplitN(button.Text(), "\n", 2)[0])
				}

				duration := 0
				durText := strings.TrimSpace(
					button.Find(sel.DurationIcon).NextFiltered(sel.BadgeValue).First().Text())
				if strings.Contains(durText, ":") {
					if secs, err := ParseDuration(durText); err == nil {
						duration = secs
					}
				}

				comments := 0
				comText := strings.TrimSpace(
					button.Find(sel.CommentIcon).NextFiltered(sel.BadgeValue).First().Text())
				if n, err := strconv.Atoi(comText); err == nil {
					comments = n
				}

				hasMission := button.Find(sel.MissionBadge).FilterFunction(
					func(_ int, s *goquery.Selection) bool {
						return strings.Contains(s.Text(), sel.MissionText)
					}).Length() > 0
				hasAttachment := button.Find(sel.AttachmentBadge).FilterFunction(
					func(_ int, s *goquery.Selection) bool {
						return strings.Contains(s.Text(), sel.AttachmentText)
					}).Length() > 0

				lectures = append(lectures, catalog.Lecture{
					SN:            sn,
					Chapter:       chapter,
					Title:         CollapseSpace(title),
					Duration:      duration,
					CommentCount:  comments,
					HasMission:    hasMission,
					HasAttachment: hasAttachment,
				})
			})
		})

	return lectures, nil
}

// Track is one caption track referenced by captured player markup.
type Track struct {
	Lang string
	Name string
	URL  string
}

// Tracks extracts the .vtt caption tracks from player markup. Tracks with
// no source or a non-vtt source are skipped; a missing srclang becomes
// "unknown".
func Tracks(html string) ([]Track, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var tracks []Track
	doc.Find("track").Each(func(_ int, t *goquery.Selection) {
		src, _ := t.Attr("src")
		if src == "" || !strings.HasSuffix(src, ".vtt") {
			return
		}
		lang, _ := t.Attr("srclang")
		if lang == "" {
			lang = "unknown"
		}
		tracks = append(tracks, Track{
			Lang: lang,
			Name: src[strings.LastIndexByte(src, '/')+1:],
			URL:  src,
		})
	})
	return tracks, nil
}

// Subtitles converts tracks to catalog subtitle records.
func Subtitles(tracks []Track) []catalog.Subtitle {
	subs := make([]catalog.Subtitle, 0, len(tracks))
	for _, t := range tracks {
		subs = append(subs, catalog.Subtitle{Lang: t.Lang, Name: t.Name})
	}
	return subs
}

// AttachmentNames lists the attachment file names shown on a materials
// tab, in the order their download buttons appear.
func AttachmentNames(html string, sel config.Selectors) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var names []string
	doc.Find(sel.AttachmentRow).Each(func(_ int, row *goquery.Selection) {
		name := CollapseSpace(row.Find(sel.AttachmentName).First().Text())
		if name != "" {
			names = append(names, name)
		}
	})
	return names, nil
}
