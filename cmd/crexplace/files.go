package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/giannisaf2/crexdata-public/pkg/pipeline"
	"github.com/giannisaf2/crexdata-public/pkg/storage"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

// placementFile is a hand-written placement decision:
//
//	sites:
//	  - name: siteA
//	    platforms:
//	      - name: flink
//	        operators: [Read, Filter]
type placementFile struct {
	Sites []struct {
		Name      string `yaml:"name"`
		Platforms []struct {
			Name      string   `yaml:"name"`
			Operators []string `yaml:"operators"`
		} `yaml:"platforms"`
	} `yaml:"sites"`
}

// sitesFile lists the computing sites offered to the optimizer.
type sitesFile struct {
	Sites []pipeline.Site `yaml:"sites"`
}

func (p *placementFile) placementSites() []*workflow.PlacementSite {
	sites := make([]*workflow.PlacementSite, 0, len(p.Sites))
	for _, s := range p.Sites {
		site := &workflow.PlacementSite{SiteName: s.Name, AvailablePlatforms: []*workflow.PlacementPlatform{}}
		for _, pl := range s.Platforms {
			platform := &workflow.PlacementPlatform{PlatformName: pl.Name, Operators: []*workflow.PlacementOperator{}}
			for _, op := range pl.Operators {
				platform.Operators = append(platform.Operators, &workflow.PlacementOperator{Name: op})
			}
			site.AvailablePlatforms = append(site.AvailablePlatforms, platform)
		}
		sites = append(sites, site)
	}
	return sites
}

func loadWorkflow(ctx context.Context, store *storage.FileStore, name string) (*workflow.Workflow, error) {
	data, err := store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	w, err := workflow.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow %s: %w", name, err)
	}
	return w, nil
}

func loadPlacement(ctx context.Context, store *storage.FileStore, name string) ([]*workflow.PlacementSite, error) {
	data, err := store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	var p placementFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse placement %s: %w", name, err)
	}
	if len(p.Sites) == 0 {
		return nil, fmt.Errorf("placement %s lists no sites", name)
	}
	return p.placementSites(), nil
}

func loadSites(ctx context.Context, store *storage.FileStore, name string) ([]pipeline.Site, error) {
	data, err := store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	var f sitesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sites %s: %w", name, err)
	}
	return f.Sites, nil
}

// writeJSON writes v to name in store, or to stdout when name is empty or "-".
func writeJSON(ctx context.Context, store *storage.FileStore, stdout io.Writer, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if name == "" || name == "-" {
		_, err := fmt.Fprintln(stdout, string(data))
		return err
	}
	return store.Save(ctx, name, data)
}
