package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name string
	Kind string
}

func TestBaseRegistry_Register(t *testing.T) {
	reg := NewBaseRegistry[entry]()

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "register valid item", key: "alice"},
		{name: "register empty name", key: "", wantErr: true},
		{name: "register duplicate name", key: "alice", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.key, entry{Name: tt.key})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBaseRegistry_OrderPreserved(t *testing.T) {
	reg := NewBaseRegistry[entry]()

	for _, name := range []string{"carol", "alice", "bob"} {
		require.NoError(t, reg.Register(name, entry{Name: name}))
	}

	assert.Equal(t, []string{"carol", "alice", "bob"}, reg.Names())

	items := reg.List()
	require.Len(t, items, 3)
	assert.Equal(t, "carol", items[0].Name)
	assert.Equal(t, "bob", items[2].Name)
}

func TestBaseRegistry_ForceRegisterKeepsPosition(t *testing.T) {
	reg := NewBaseRegistry[entry]()

	require.NoError(t, reg.Register("alice", entry{Name: "alice", Kind: "old"}))
	require.NoError(t, reg.Register("bob", entry{Name: "bob"}))
	require.NoError(t, reg.ForceRegister("alice", entry{Name: "alice", Kind: "new"}))

	assert.Equal(t, []string{"alice", "bob"}, reg.Names())

	item, ok := reg.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "new", item.Kind)
}

func TestBaseRegistry_Remove(t *testing.T) {
	reg := NewBaseRegistry[entry]()

	require.NoError(t, reg.Register("alice", entry{Name: "alice"}))
	require.NoError(t, reg.Register("bob", entry{Name: "bob"}))

	assert.Error(t, reg.Remove("nobody"))
	require.NoError(t, reg.Remove("alice"))

	_, ok := reg.Get("alice")
	assert.False(t, ok)
	assert.Equal(t, []string{"bob"}, reg.Names())
	assert.Equal(t, 1, reg.Count())
}

func TestBaseRegistry_Clear(t *testing.T) {
	reg := NewBaseRegistry[entry]()

	require.NoError(t, reg.Register("alice", entry{Name: "alice"}))
	reg.Clear()

	assert.Equal(t, 0, reg.Count())
	assert.Empty(t, reg.Names())
}
