package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAdvances(t *testing.T) {
	assert.True(t, StatusSent.Advances(StatusDelivered))
	assert.True(t, StatusSent.Advances(StatusRead))
	assert.True(t, StatusDelivered.Advances(StatusRead))

	assert.False(t, StatusRead.Advances(StatusDelivered))
	assert.False(t, StatusDelivered.Advances(StatusDelivered))
	assert.False(t, StatusRead.Advances(MessageStatus("unknown")))
}

func TestGroupRoles(t *testing.T) {
	g := Group{CreatedBy: "a", Admins: []string{"a", "b"}, Members: []string{"a", "b", "c"}}

	assert.True(t, g.IsCreator("a"))
	assert.False(t, g.IsCreator("b"))
	assert.True(t, g.IsAdmin("b"))
	assert.False(t, g.IsAdmin("c"))
	assert.True(t, g.IsMember("c"))
	assert.False(t, g.IsMember("d"))
}

func TestCloneIsIndependent(t *testing.T) {
	g := Group{Admins: []string{"a"}, Members: []string{"a", "b"}}
	c := g.Clone()
	c.Members[0] = "z"
	c.Admins = Without(c.Admins, "a")

	assert.Equal(t, []string{"a", "b"}, g.Members)
	assert.Equal(t, []string{"a"}, g.Admins)
	assert.Empty(t, c.Admins)
}

func TestHiddenFor(t *testing.T) {
	m := Message{DeletedFor: []string{"b"}}
	assert.True(t, m.HiddenFor("b"))
	assert.False(t, m.HiddenFor("a"))
}
