// Coursekit crawls a purchased e-learning catalog into a local JSON store
// and content tree. Stages are run one at a time; each is idempotent and
// resumes where the last run stopped.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"coursekit/catalog"
	"coursekit/config"
	"coursekit/crawl"
)

func main() {
	configPath := ""
	update := false
	var stage, classID string

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-c", "--config":
			if i+1 < len(args) {
				i++
				configPath = args[i]
			}
		case "-u", "--update":
			update = true
		case "-h", "--help":
			printUsage()
			return
		default:
			if stage == "" {
				stage = arg
			} else if classID == "" {
				classID = arg
			}
		}
	}

	if stage == "" {
		printUsage()
		os.Exit(1)
	}

	if err := run(stage, classID, configPath, update); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`coursekit - course catalog crawler

Usage: coursekit [options] <stage> [classId]

Stages:
  categories        Fetch the two-level category list
  subcategories     Fetch subcategories per category
  products          Fetch the product catalog per subcategory
  class-ids         Collect owned class IDs from the my-classes page
  sync-classes      Join class IDs against products into myclasses
  lectures          Crawl lectures (all pending classes, or one classId)
  redown-list       List lectures still missing subtitles
  subtitles-copy    Copy Korean subtitles into the video tree
  clean             Remove captured dirs matching no current lecture

Options:
  -c, --config PATH   Config file (default ~/.config/coursekit/config.toml)
  -u, --update        Reuse the stored lecture array instead of re-extracting
  -h, --help          Show this help`)
}

func run(stage, classID, configPath string, update bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	store := catalog.NewStore(cfg.Paths.DataRoot)
	crawler := crawl.New(cfg, store, log)
	defer crawler.Close()

	switch stage {
	case "categories":
		return crawler.Categories()
	case "subcategories":
		return crawler.SubCategories()
	case "products":
		return crawler.Products()
	case "class-ids":
		return crawler.ClassIDs()
	case "sync-classes":
		return crawler.SyncClasses()
	case "lectures":
		return crawler.RunLectures(classID, update)
	case "redown-list":
		return crawler.RedownList()
	case "subtitles-copy":
		if classID != "" {
			return crawler.CopySubtitles(classID)
		}
		return crawler.CopyAllSubtitles()
	case "clean":
		return crawler.Clean()
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		var err error
		path, err = config.ConfigPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}
