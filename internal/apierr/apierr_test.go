package apierr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbmc-project/mapperd/internal/apierr"
)

func TestAsDBusErrorConvertsNotFound(t *testing.T) {
	err := apierr.NewNotFound("/xyz/openbmc_project/missing")

	dbusErr := apierr.AsDBusError(err)
	require.NotNil(t, dbusErr)
	require.Equal(t, apierr.BusErrorName, dbusErr.Name)
}

func TestAsDBusErrorWrappedNotFound(t *testing.T) {
	err := errors.New("context: " + apierr.NewNotFound("/a").Error())

	require.Nil(t, apierr.AsDBusError(err))
}

func TestAsDBusErrorPassesThroughWrappedNotFound(t *testing.T) {
	wrapped := errors.Join(errors.New("while scanning"), apierr.NewNotFound("/a"))

	dbusErr := apierr.AsDBusError(wrapped)
	require.NotNil(t, dbusErr)
	require.Equal(t, apierr.BusErrorName, dbusErr.Name)
}

func TestAsDBusErrorOnUnrelatedErrorIsNil(t *testing.T) {
	require.Nil(t, apierr.AsDBusError(errors.New("boom")))
}

func TestAsDBusErrorOnNilIsNil(t *testing.T) {
	require.Nil(t, apierr.AsDBusError(nil))
}

func TestNotFoundErrorMessageIncludesPath(t *testing.T) {
	err := apierr.NewNotFound("/xyz/openbmc_project/missing")
	require.Contains(t, err.Error(), "/xyz/openbmc_project/missing")
}
