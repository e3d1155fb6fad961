package introspect

import (
	"context"

	"github.com/arunsworld/nursery"

	"github.com/openbmc-project/mapperd/internal/busutil"
	"github.com/openbmc-project/mapperd/namefilter"
)

// Complete is notified once per peer, right after that peer's Scan returns
// (spec.md §4.3: completion is logged and, on initial scan, the last peer
// finishing triggers the "all peers done" timing log).
type Complete interface {
	PeerComplete(service string)
}

// OwnerRecorder records a well-known name's current unique-name owner.
// ownertable.Table satisfies this (through a loop-owned wrapper): it exists
// so InitialScan doesn't need to import ownertable directly.
type OwnerRecorder interface {
	Remember(unique, service string)
}

// InitialScan lists every name currently on the bus, keeps the ones filter
// allows, resolves and records each one's current owner, and introspects
// each concurrently: one nursery job per peer, fanned out the same way
// u-bmc's state manager starts one job per state machine and waits for all
// of them via nursery.RunConcurrentlyWithContext.
//
// Resolving the owner here mirrors the original mapper's doListNames, which
// calls update_owners for every name it lists before introspecting it: a
// service already on the bus at startup never raises NameOwnerChanged, so
// without this step its later InterfacesAdded/InterfacesRemoved signals
// would have no owner-table entry to resolve their sender through.
func InitialScan(ctx context.Context, conn busutil.Conn, filter *namefilter.Filter, owners OwnerRecorder, sink Sink, done Complete) error {
	names, err := listNames(conn)
	if err != nil {
		return err
	}

	var jobs []nursery.ConcurrentJob
	for _, name := range names {
		if !filter.Allows(name) {
			continue
		}
		name := name
		jobs = append(jobs, func(ctx context.Context, errChan chan error) {
			if owners != nil {
				if unique, err := getNameOwner(conn, name); err == nil {
					owners.Remember(unique, name)
				}
			}
			New(conn, sink).Scan(name)
			if done != nil {
				done.PeerComplete(name)
			}
		})
	}
	return nursery.RunConcurrentlyWithContext(ctx, jobs...)
}

func listNames(conn busutil.Conn) ([]string, error) {
	call := busutil.ListNames.Call(conn)
	if call.Err != nil {
		return nil, call.Err
	}
	var names []string
	if err := call.Store(&names); err != nil {
		return nil, err
	}
	return names, nil
}

func getNameOwner(conn busutil.Conn, name string) (string, error) {
	call := busutil.GetNameOwner.Call(conn, name)
	if call.Err != nil {
		return "", call.Err
	}
	var unique string
	if err := call.Store(&unique); err != nil {
		return "", err
	}
	return unique, nil
}
