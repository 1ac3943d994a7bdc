package cli

import (
	"fmt"
	"sort"

	"github.com/probelab-dev/uiscout/pkg/navigator"
	"github.com/probelab-dev/uiscout/pkg/similarity"
	"github.com/urfave/cli/v2"
)

var closeAllCommand = &cli.Command{
	Name:  "close-all",
	Usage: "Close every open app through the switcher",
	Description: `Open the app switcher and walk the close choreography for each row.
Useful to reset the headset to a clean state between runs.`,
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		printSetupStep("Closing all apps...")
		if !rt.nav.CloseAll() {
			printSetupFailure("Some close steps failed")
			return cli.Exit("", 1)
		}
		printSetupSuccess("All apps closed")
		return nil
	},
}

var forceQuitCommand = &cli.Command{
	Name:  "force-quit",
	Usage: "Force quit every open app through the switcher",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		printSetupStep("Force quitting all apps...")
		if !rt.nav.ForceQuitAll() {
			printSetupFailure("Some force-quit steps failed")
			return cli.Exit("", 1)
		}
		printSetupSuccess("All apps force quit")
		return nil
	},
}

var cacheCommand = &cli.Command{
	Name:  "cache",
	Usage: "Show the cached launcher page for each known app",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		matcher := similarity.NewMatcher(similarity.DefaultRules(),
			similarity.WithTolerance(cfg.Similarity.Tolerance),
			similarity.WithSizeRatioCutoff(cfg.Similarity.SizeRatioCutoff))
		cache := navigator.LoadCache(cfg.Paths.CacheFile, matcher)

		entries := cache.Entries()
		if len(entries) == 0 {
			fmt.Printf("No cached apps in %s\n", cfg.Paths.CacheFile)
			return nil
		}

		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Printf("Cached apps (%s):\n", cfg.Paths.CacheFile)
		for _, name := range names {
			e := entries[name]
			fmt.Printf("  %-32s page %d  (seen %s)\n",
				name, e.Page, e.LastSeen.Format("2006-01-02 15:04"))
		}
		return nil
	},
}
