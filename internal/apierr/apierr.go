// Package apierr defines the one error the core intentionally surfaces to
// callers (spec.md §7): a requested object path is not present in the
// interface map. Every other failure — transient bus errors, malformed peer
// input, programming invariant violations — is handled where it occurs and
// never reaches this type.
package apierr

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// NotFound indicates that a requested object path has no entry in the
// interface map. It is the only error kind translated to a D-Bus error
// reply (xyz.openbmc_project.Common.Error.ResourceNotFound) at the
// transport edge; everywhere else it is an ordinary Go error.
type NotFound struct {
	Path string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("path %s was not found", e.Path)
}

// NewNotFound constructs a NotFound error for path.
func NewNotFound(path string) error {
	return &NotFound{Path: path}
}

// BusErrorName is the D-Bus error name used for ResourceNotFound replies.
const BusErrorName = "xyz.openbmc_project.Common.Error.ResourceNotFound"

// AsDBusError converts err into the wire-level reply the transport edge
// sends back: ResourceNotFound for a NotFound, nil for anything else. Per
// spec.md §7's error policy, the core only ever intentionally surfaces
// NotFound; callers must not reach this function with any other error kind.
func AsDBusError(err error) *dbus.Error {
	var nf *NotFound
	if !errors.As(err, &nf) {
		return nil
	}
	return dbus.NewError(BusErrorName, []interface{}{nf.Error()})
}
