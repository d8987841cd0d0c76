package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crateside/sleeve/internal/config"
)

func TestRootCommandWiring(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"scan", "serve", "cache", "events"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

func TestInitCacheDrivers(t *testing.T) {
	orig := cfg
	defer func() { cfg = orig }()

	cfg = &config.Config{Cache: config.CacheConfig{Driver: "memory"}}
	store, err := initCache()
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cfg = &config.Config{Cache: config.CacheConfig{Driver: "redis"}}
	_, err = initCache()
	assert.Error(t, err)
}

func TestInitEventStoreRejectsUnknownDriver(t *testing.T) {
	orig := cfg
	defer func() { cfg = orig }()

	cfg = &config.Config{Store: config.StoreConfig{Driver: "dynamo"}}
	_, err := initEventStore(context.Background())
	assert.Error(t, err)

	cfg = &config.Config{Store: config.StoreConfig{Driver: "postgres"}}
	_, err = initEventStore(context.Background())
	assert.Error(t, err, "postgres driver requires database_url")
}
