// datacheck loads every YAML content table and reports what it found.
// The loaders run the same cross-reference validation the server runs at
// boot, so a bad edit fails here instead of at startup.
//
// Usage:
//
//	go run ./cmd/datacheck [-yamldir path]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/runraids/server/internal/data"
)

func main() {
	yamlDir := flag.String("yamldir", filepath.Join("data", "yaml"), "directory holding the YAML content tables")
	flag.Parse()

	failed := false
	fail := func(name string, err error) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		failed = true
	}

	heroes, err := data.LoadHeroTable(filepath.Join(*yamlDir, "hero_list.yaml"))
	if err != nil {
		fail("hero_list", err)
	} else {
		fmt.Printf("hero_list:   %d heroes\n", heroes.Count())
	}

	enemies, err := data.LoadEnemyTable(filepath.Join(*yamlDir, "enemy_list.yaml"))
	if err != nil {
		fail("enemy_list", err)
	} else {
		fmt.Printf("enemy_list:  %d enemies\n", enemies.Count())
	}

	if enemies != nil {
		raids, err := data.LoadRaidTable(filepath.Join(*yamlDir, "raid_list.yaml"), enemies)
		if err != nil {
			fail("raid_list", err)
		} else {
			waves := 0
			for _, id := range raids.IDs() {
				waves += len(raids.Get(id).Waves)
			}
			fmt.Printf("raid_list:   %d raids, %d waves\n", raids.Count(), waves)
		}
	}

	if heroes != nil {
		banners, err := data.LoadBannerTable(filepath.Join(*yamlDir, "banner_list.yaml"), heroes)
		if err != nil {
			fail("banner_list", err)
		} else {
			active := 0
			for _, id := range banners.IDs() {
				if banners.Get(id).Active {
					active++
				}
			}
			fmt.Printf("banner_list: %d banners, %d active\n", banners.Count(), active)
		}
	}

	if failed {
		os.Exit(1)
	}
	fmt.Println("all tables OK")
}
