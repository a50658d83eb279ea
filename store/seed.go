package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout of a campaign seed file:
//
//	campaigns:
//	  - slug: save-trees
//	    name: Save Trees
//	    frameURL: https://storage.example/frames/save-trees.png
type seedFile struct {
	Campaigns []NewCampaign `yaml:"campaigns"`
}

// Seed creates the campaigns described by YAML data. Campaigns whose slug
// already exists are skipped, so seeding is idempotent. It returns how many
// campaigns were created.
func Seed(ctx context.Context, s Store, data []byte) (int, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("store: parse seed: %w", err)
	}

	created := 0
	for i, n := range f.Campaigns {
		_, err := s.CreateCampaign(ctx, n)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrSlugTaken):
		default:
			return created, fmt.Errorf("store: seed campaign %d: %w", i, err)
		}
	}
	return created, nil
}

// SeedFile reads path and seeds s from it.
func SeedFile(ctx context.Context, s Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("store: read seed: %w", err)
	}
	return Seed(ctx, s, data)
}
