package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starmf-gateway/internal/exchange"
)

const schemeMasterFixture = `SchemeCode|SchemeName|ISIN|AMCCode|PurchaseAllowed|RedemptionAllowed|SIPAllowed|MinPurchaseAmt|MinSIPAmt
ALPHA-GR|Alpha Bluechip Fund Growth|INF000000011|ALPHA|Y|Y|Y|5000|500
ALPHA-DV|Alpha Bluechip Fund IDCW|INF000000012|ALPHA|Y|Y|N|1000|
BETA-LQ|Beta Liquid Fund Growth|INF000000013|BETA|Y|N|Y|notanumber|100
`

func TestParseSchemeMaster(t *testing.T) {
	schemes, err := parseSchemeMaster([]byte(schemeMasterFixture))
	require.NoError(t, err)
	require.Len(t, schemes, 3)

	schemes[0].Normalize()
	assert.Equal(t, "ALPHA-GR", schemes[0].SchemeCode)
	assert.True(t, schemes[0].PurchaseAllowed)
	assert.True(t, schemes[0].SIPAllowed)
	require.NotNil(t, schemes[0].MinPurchaseAmount)
	assert.Equal(t, "5000", schemes[0].MinPurchaseAmount.String())

	schemes[1].Normalize()
	assert.False(t, schemes[1].SIPAllowed)
	assert.Nil(t, schemes[1].MinSIPAmount, "blank amount stays nil")

	schemes[2].Normalize()
	assert.Nil(t, schemes[2].MinPurchaseAmount, "unparseable amount stays nil")
}

func TestSyncSchemeMasterUpserts(t *testing.T) {
	env := newTestEnv(t)
	env.client.respond("SchemeMasterDownload", schemeMasterFixture)
	svc := NewMasterService(env.store, env.client, env.sessions, env.creds, zerolog.Nop())

	n, err := svc.SyncSchemeMaster(context.Background(), "ADV1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Re-sync replaces rather than duplicates.
	n, err = svc.SyncSchemeMaster(context.Background(), "ADV1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	schemes, total, err := svc.SearchSchemes(context.Background(), "Alpha", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, schemes, 2)
}

func TestSyncSchemeMasterAgainstMockClient(t *testing.T) {
	st := newTestStore(t)
	mock := exchange.NewMockClient(zerolog.Nop())
	creds := fakeCreds{}
	sessions := exchange.NewSessionManager(mock, creds, st, zerolog.Nop())
	svc := NewMasterService(st, mock, sessions, creds, zerolog.Nop())

	n, err := svc.SyncSchemeMaster(context.Background(), "ADV1")
	require.NoError(t, err)
	assert.Greater(t, n, 0, "the mock ships a synthetic master")
}
