package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAllowed_BuiltinAlwaysAllowed(t *testing.T) {
	// Built-in types pass regardless of third-party policy and whitelist.
	engines := []*Engine{
		New(Config{AllowThirdPartyTypes: false}),
		New(Config{AllowThirdPartyTypes: true}),
		New(Config{AllowThirdPartyTypes: true, WhitelistPrefixes: []string{"acme."}}),
	}

	for _, e := range engines {
		assert.True(t, e.IsAllowed("n8n-nodes-base.webhook"))
		assert.True(t, e.IsAllowed("n8n-nodes-base.slack"))
	}
}

func TestIsAllowed_ThirdPartyBlockedByDefault(t *testing.T) {
	e := New(Config{AllowThirdPartyTypes: false})

	assert.False(t, e.IsAllowed("community.customNode"))
	assert.False(t, e.IsAllowed("n8n-nodes-community.slack"))
}

func TestIsAllowed_ThirdPartyAllowedWithoutWhitelist(t *testing.T) {
	e := New(Config{AllowThirdPartyTypes: true})

	assert.True(t, e.IsAllowed("community.customNode"))
}

func TestIsAllowed_WhitelistNarrowsThirdParty(t *testing.T) {
	e := New(Config{
		AllowThirdPartyTypes: true,
		WhitelistPrefixes:    []string{"n8n-nodes-community."},
	})

	assert.True(t, e.IsAllowed("n8n-nodes-community.slack"))
	assert.False(t, e.IsAllowed("community.customNode"))
}

func TestIsAllowed_Idempotent(t *testing.T) {
	e := New(Config{AllowThirdPartyTypes: false})

	for i := 0; i < 100; i++ {
		assert.True(t, e.IsAllowed("n8n-nodes-base.webhook"))
		assert.False(t, e.IsAllowed("community.customNode"))
	}
}

func TestAlternativesFor_KnownType(t *testing.T) {
	e := New(Config{})

	alts := e.AlternativesFor("community.customNode")
	require.NotEmpty(t, alts)
	assert.Contains(t, alts, "n8n-nodes-base.code")
}

func TestAlternativesFor_UnknownTypeReturnsEmpty(t *testing.T) {
	e := New(Config{})

	alts := e.AlternativesFor("totally.unknown")
	require.NotNil(t, alts)
	assert.Empty(t, alts)
}

func TestBlockedTypes_DeduplicatesAndSorts(t *testing.T) {
	e := New(Config{AllowThirdPartyTypes: false})

	blocked := e.BlockedTypes([]string{
		"community.b",
		"n8n-nodes-base.webhook",
		"community.a",
		"community.b",
	})

	assert.Equal(t, []string{"community.a", "community.b"}, blocked)
}

func TestReload_SwapsPolicy(t *testing.T) {
	e := New(Config{AllowThirdPartyTypes: false})
	require.False(t, e.IsAllowed("community.customNode"))

	e.Reload(Config{AllowThirdPartyTypes: true})
	assert.True(t, e.IsAllowed("community.customNode"))

	e.Reload(Config{AllowThirdPartyTypes: false})
	assert.False(t, e.IsAllowed("community.customNode"))
}
