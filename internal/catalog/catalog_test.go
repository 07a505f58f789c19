package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casedesk/intel-cli/internal/model"
)

func testProviders() []Provider {
	return []Provider{
		{Key: "caller_id", Name: "Caller ID", Cost: 10},
		{Key: "social_profiles", Name: "Social Profiles", Cost: 15},
		{Key: "breach_scan", Name: "Breach Scan", Cost: 25, Sensitive: true, ConsentRequired: true},
	}
}

func TestLoad_EmbeddedDefault(t *testing.T) {
	cat, err := Load("")
	require.NoError(t, err)
	require.NotEmpty(t, cat.Providers())

	p, ok := cat.Get("caller_id")
	require.True(t, ok)
	assert.Positive(t, p.Cost)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New([]Provider{{Key: "", Name: "X", Cost: 1}})
	require.Error(t, err)

	_, err = New([]Provider{{Key: "x", Name: "", Cost: 1}})
	require.Error(t, err)

	_, err = New([]Provider{{Key: "x", Name: "X", Cost: 0}})
	require.Error(t, err)

	_, err = New([]Provider{
		{Key: "x", Name: "X", Cost: 1},
		{Key: "x", Name: "X again", Cost: 2},
	})
	require.Error(t, err)
}

func TestTotalCost(t *testing.T) {
	cat, err := New(testProviders())
	require.NoError(t, err)

	total, err := cat.TotalCost([]string{"caller_id", "social_profiles"})
	require.NoError(t, err)
	assert.Equal(t, 25, total)

	// Selection is a set: duplicates count once.
	total, err = cat.TotalCost([]string{"caller_id", "caller_id", "breach_scan"})
	require.NoError(t, err)
	assert.Equal(t, 35, total)
}

func TestTotalCost_EmptyOrUnknown(t *testing.T) {
	cat, err := New(testProviders())
	require.NoError(t, err)

	_, err = cat.TotalCost(nil)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	_, err = cat.TotalCost([]string{"nope"})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestConsentGated(t *testing.T) {
	cat, err := New(testProviders())
	require.NoError(t, err)

	assert.Empty(t, cat.ConsentGated([]string{"caller_id", "social_profiles"}))
	assert.Equal(t, []string{"breach_scan"}, cat.ConsentGated([]string{"caller_id", "breach_scan"}))
}
