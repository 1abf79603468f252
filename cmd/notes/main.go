// Command notes renders captured lesson notes into Markdown files.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"coursekit/catalog"
	"coursekit/config"
	"coursekit/notes"
)

func main() {
	configPath := flag.String("config", "", "config file path")
	all := flag.Bool("all", false, "render every tracked class")
	flag.Parse()

	classID := flag.Arg(0)
	if !*all && classID == "" {
		fmt.Fprintln(os.Stderr, "usage: notes [-config PATH] (-all | classId)")
		os.Exit(1)
	}

	if err := run(*configPath, classID, *all); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, classID string, all bool) error {
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
	gen := notes.NewGenerator(cfg, store, log)
	if all {
		return gen.GenerateAll()
	}
	return gen.Generate(classID)
}
