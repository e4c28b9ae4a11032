package strategy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryUnknownKind(t *testing.T) {
	_, err := New(Spec{Kind: "arbitrage"})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestFactoryDefaults(t *testing.T) {
	strat, err := New(Spec{Kind: KindMACrossover})
	require.NoError(t, err)
	assert.Equal(t, "ma_crossover_20_50", strat.Name())

	strat, err = New(Spec{Kind: KindMeanReversion, Params: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, "mean_reversion_20_2.0", strat.Name())

	strat, err = New(Spec{Kind: KindMomentum})
	require.NoError(t, err)
	assert.Equal(t, "momentum_20", strat.Name())
}

func TestFactorySchemaRejectsUnknownFields(t *testing.T) {
	_, err := New(Spec{Kind: KindMomentum, Params: json.RawMessage(`{"lookback": 10, "leverage": 3}`)})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestFactorySchemaRejectsBadTypes(t *testing.T) {
	_, err := New(Spec{Kind: KindMACrossover, Params: json.RawMessage(`{"fast": "quick"}`)})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = New(Spec{Kind: KindMeanReversion, Params: json.RawMessage(`{"threshold": -2}`)})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestFactoryCrossFieldValidation(t *testing.T) {
	// schema 层放行，构造层拒绝 fast >= slow
	_, err := New(Spec{Kind: KindMACrossover, Params: json.RawMessage(`{"fast": 50, "slow": 20}`)})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestFactoryRejectsMalformedJSON(t *testing.T) {
	_, err := New(Spec{Kind: KindMomentum, Params: json.RawMessage(`{"lookback":`)})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestFactoryBuildsFromParams(t *testing.T) {
	strat, err := New(Spec{Kind: KindMACrossover, Params: json.RawMessage(`{"fast": 5, "slow": 20}`)})
	require.NoError(t, err)
	assert.Equal(t, "ma_crossover_5_20", strat.Name())
}
