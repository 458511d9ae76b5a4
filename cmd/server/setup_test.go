package main

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisorcrm/internal/config"
	"advisorcrm/internal/domain/crm"
	"advisorcrm/internal/infrastructure/storage/postgres"
)

func TestWire(t *testing.T) {
	registry, err := crm.NewRegistry(nil)
	require.NoError(t, err)

	app, err := wire(registry, postgres.NewTxManager(&postgres.Pool{}), nil, 0)
	require.NoError(t, err)
	assert.Same(t, registry, app.Service.Registry())

	inst, err := app.Service.New(crm.ClassContact)
	require.NoError(t, err)
	assert.True(t, inst.IsNew())

	app.Close()
}

func TestNewCodec(t *testing.T) {
	ctx := context.Background()

	codec, err := newCodec(ctx, &config.Config{})
	require.NoError(t, err)
	assert.NotNil(t, codec)

	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	codec, err = newCodec(ctx, &config.Config{Crypto: config.CryptoConfig{MasterKey: key}})
	require.NoError(t, err)
	assert.NotNil(t, codec)

	_, err = newCodec(ctx, &config.Config{Crypto: config.CryptoConfig{MasterKey: "c2hvcnQ="}})
	assert.Error(t, err)
}
