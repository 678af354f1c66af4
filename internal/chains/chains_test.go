package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	c, ok := Lookup("yeinot_bitan")
	require.True(t, ok)
	assert.Equal(t, "יינות ביתן", c.Name)
	assert.Equal(t, "YAYNO_BITAN", c.Token)

	_, ok = Lookup("no_such_chain")
	assert.False(t, ok)
}

func TestDefaultsAreKnown(t *testing.T) {
	for _, id := range Defaults {
		_, ok := Lookup(id)
		assert.True(t, ok, id)
	}
}

func TestListKeepsTableOrder(t *testing.T) {
	list := List()
	all := All()
	require.Len(t, list.Chains, len(all))
	assert.Equal(t, "shufersal", list.Chains[0].ID)
	for i, c := range all {
		assert.Equal(t, c.ID, list.Chains[i].ID)
		assert.Equal(t, c.Name, list.Chains[i].Name)
	}
}
