package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLicenseType(t *testing.T) {
	for _, lt := range LicenseTypes() {
		got, err := ParseLicenseType(" " + string(lt) + " ")
		require.NoError(t, err)
		assert.Equal(t, lt, got)
	}

	_, err := ParseLicenseType("mp3 lease")
	assert.Error(t, err, "license types are case sensitive")
	_, err = ParseLicenseType("Platinum")
	assert.Error(t, err)

	assert.True(t, LicenseTypeExclusive.IsExclusive())
	assert.False(t, LicenseTypeTrackout.IsExclusive())
}

func TestLicenseTypesReturnsCopy(t *testing.T) {
	types := LicenseTypes()
	types[0] = "mutated"
	assert.Equal(t, LicenseTypeMP3, LicenseTypes()[0])
}

func TestParseBeatCategory(t *testing.T) {
	got, err := ParseBeatCategory("uk rap")
	require.NoError(t, err)
	assert.Equal(t, BeatCategoryUKRap, got)

	got, err = ParseBeatCategory("R&B")
	require.NoError(t, err)
	assert.Equal(t, BeatCategoryRnB, got)

	_, err = ParseBeatCategory("Polka")
	assert.Error(t, err)
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.True(t, OrderStatusCompleted.IsTerminal())
	assert.True(t, OrderStatusFailed.IsTerminal())
	assert.True(t, OrderStatusFailed.IsValid())
	assert.False(t, OrderStatus("refunded").IsValid())
}

func TestParseUploadKind(t *testing.T) {
	kind, err := ParseUploadKind("")
	require.NoError(t, err)
	assert.Equal(t, UploadKindRaw, kind)

	kind, err = ParseUploadKind("Audio")
	require.NoError(t, err)
	assert.Equal(t, UploadKindAudio, kind)

	_, err = ParseUploadKind("video")
	assert.Error(t, err)
}

func TestOutboxEnums(t *testing.T) {
	et, err := ParseOutboxEventType(" order_failed ")
	require.NoError(t, err)
	assert.Equal(t, EventOrderFailed, et)
	_, err = ParseOutboxEventType("order_refunded")
	assert.EqualError(t, err, `invalid event type "order_refunded"`)

	_, err = ParseOutboxAggregateType("beat")
	assert.Error(t, err)

	assert.True(t, OutboxDLQReasonMaxAttempts.IsValid())
	assert.False(t, OutboxDLQErrorReason("timeout").IsValid())
}
