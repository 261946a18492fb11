// Package testutil provides shared fixtures for package tests.
package testutil

import (
	platformconfig "github.com/plumehq/plume/internal/platform/config"
)

// TestConfig returns a complete configuration suitable for unit tests: the
// memory cache backend, temp-friendly defaults, and dummy credentials that
// satisfy validation.
func TestConfig() *platformconfig.Config {
	cfg, err := platformconfig.LoadFromMap(map[string]string{
		"JWT_SECRET":     "test-secret",
		"STORAGE_BUCKET": "test-bucket",
		"CACHE_BACKEND":  "memory",
	})
	if err != nil {
		panic(err)
	}
	return cfg
}

// TestImagesConfig returns the image pipeline defaults with the scratch
// directory redirected to dir.
func TestImagesConfig(dir string) platformconfig.ImagesConfig {
	images := TestConfig().Images
	images.ScratchDir = dir
	return images
}
