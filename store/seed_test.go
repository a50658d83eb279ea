package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
campaigns:
  - slug: save-trees
    name: Save Trees
    frameURL: https://storage.example/frames/save-trees.png
    creatorName: Green Org
  - slug: clean-beach
    name: Clean Beach
    frameURL: https://storage.example/frames/clean-beach.png
    status: inactive
    expiresAt: 2030-01-01T00:00:00Z
`

func TestSeedIsIdempotent(t *testing.T) {
	for name, open := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			n, err := Seed(ctx, s, []byte(seedYAML))
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			n, err = Seed(ctx, s, []byte(seedYAML))
			require.NoError(t, err)
			assert.Zero(t, n)

			beach, err := s.CampaignBySlug(ctx, "clean-beach")
			require.NoError(t, err)
			assert.Equal(t, StatusInactive, beach.Status)
			require.NotNil(t, beach.ExpiresAt)
			assert.Equal(t, 2030, beach.ExpiresAt.UTC().Year())
		})
	}
}

func TestSeedErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Seed(ctx, NewMemory(), []byte("campaigns: [oops"))
	assert.Error(t, err)

	n, err := Seed(ctx, NewMemory(), []byte("campaigns:\n  - slug: ok\n    name: OK\n    frameURL: x\n  - slug: Bad Slug\n    name: B\n    frameURL: x\n"))
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, 1, n)

	_, err = SeedFile(ctx, NewMemory(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	s := NewMemory()
	n, err := SeedFile(context.Background(), s, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
