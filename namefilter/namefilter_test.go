package namefilter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbmc-project/mapperd/namefilter"
)

func TestAllowsPrefixMatch(t *testing.T) {
	f := namefilter.New("mapperd", []string{"xyz.openbmc_project."}, nil)

	require.True(t, f.Allows("xyz.openbmc_project.Foo"))
	require.False(t, f.Allows("com.other.Foo"))
}

func TestAllowsDenyListOverridesPrefix(t *testing.T) {
	f := namefilter.New("mapperd", []string{"xyz.openbmc_project."}, []string{"xyz.openbmc_project.Denied"})

	require.False(t, f.Allows("xyz.openbmc_project.Denied"))
	require.True(t, f.Allows("xyz.openbmc_project.Allowed"))
}

func TestAllowsNeverMatchesSelfOrEmpty(t *testing.T) {
	f := namefilter.New("xyz.openbmc_project.ObjectMapper", []string{"xyz.openbmc_project."}, nil)

	require.False(t, f.Allows("xyz.openbmc_project.ObjectMapper"))
	require.False(t, f.Allows(""))
}

func TestReloadReplacesConfiguration(t *testing.T) {
	f := namefilter.New("mapperd", []string{"xyz.openbmc_project."}, nil)
	require.False(t, f.Allows("com.example.Foo"))

	f.Reload([]string{"com.example."}, nil)

	require.False(t, f.Allows("xyz.openbmc_project.Foo"))
	require.True(t, f.Allows("com.example.Foo"))
}
