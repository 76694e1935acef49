package links

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/linksift/app/database"
)

// SeedFile lists links to queue at startup:
//
//	links:
//	  - https://go.dev/blog/
//	  - example.com/docs
type SeedFile struct {
	Links []string `yaml:"links"`
}

func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	return &seed, nil
}

// Seed queues the links of the seed file at path that are not stored yet.
func (s *Service) Seed(ctx context.Context, path string) ([]database.Link, error) {
	seed, err := LoadSeedFile(path)
	if err != nil {
		return nil, err
	}

	created, err := s.CreateMissing(ctx, seed.Links)
	if err != nil {
		return nil, fmt.Errorf("failed to seed links: %w", err)
	}

	slog.Info("Seed file loaded",
		"path", path,
		"links", len(seed.Links),
		"created", len(created))

	return created, nil
}
