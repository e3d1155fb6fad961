package ownertable_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbmc-project/mapperd/ownertable"
)

func TestRememberThenResolve(t *testing.T) {
	tbl := ownertable.New()
	tbl.Remember(":1.42", "xyz.openbmc_project.Foo")

	name, ok := tbl.Resolve(":1.42")
	require.True(t, ok)
	require.Equal(t, "xyz.openbmc_project.Foo", name)
}

func TestResolveUnknownUniqueName(t *testing.T) {
	tbl := ownertable.New()

	_, ok := tbl.Resolve(":1.99")
	require.False(t, ok)
}

func TestRememberOverwritesPriorOwner(t *testing.T) {
	tbl := ownertable.New()
	tbl.Remember(":1.42", "xyz.openbmc_project.Foo")
	tbl.Remember(":1.42", "xyz.openbmc_project.Bar")

	name, ok := tbl.Resolve(":1.42")
	require.True(t, ok)
	require.Equal(t, "xyz.openbmc_project.Bar", name)
}

func TestForgetRemovesEntry(t *testing.T) {
	tbl := ownertable.New()
	tbl.Remember(":1.42", "xyz.openbmc_project.Foo")

	tbl.Forget(":1.42")

	_, ok := tbl.Resolve(":1.42")
	require.False(t, ok)
}

func TestForgetUnknownUniqueNameIsNoop(t *testing.T) {
	tbl := ownertable.New()
	require.NotPanics(t, func() { tbl.Forget(":1.7") })
}
