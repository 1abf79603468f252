// Command check finds and repairs lecture-id collisions left behind by
// the crawler's positional button mapping.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"coursekit/catalog"
	"coursekit/check"
	"coursekit/config"
)

func main() {
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		printUsage()
		os.Exit(1)
	}

	if err := run(*configPath, cmd, flag.Arg(1)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`check - catalog integrity checker

Usage: check [-config PATH] <command> [classId]

Commands:
  report     Scan for duplicate lecture ids and captured-dir collisions
  resolve    Decide correct/wrong ids for reported collisions
  repair     Delete wrong captured dirs and apply resolved corrections
  titles     Strip leaked badge text from titles and re-serial duplicates
  rebuild    Reconstruct one class's ids/subtitles from the content tree`)
}

func run(configPath, cmd, classID string) error {
	path := configPath
	if path == "" {
		var err error
		path, err = config.ConfigPath()
		if err != nil {
			return err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	store := catalog.NewStore(cfg.Paths.DataRoot)
	tree := catalog.NewContentTree(cfg.Paths.MediaRoot)
	checker := check.New(store, tree, log)

	switch cmd {
	case "report":
		return checker.Report()
	case "resolve":
		return checker.Resolve()
	case "repair":
		if err := checker.RemoveWrongDirs(); err != nil {
			return err
		}
		return checker.ApplyCorrections()
	case "titles":
		return checker.NormalizeTitles()
	case "rebuild":
		if classID == "" {
			return fmt.Errorf("rebuild needs a classId")
		}
		return checker.Rebuild(classID)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
