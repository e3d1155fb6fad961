package mapper

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/openbmc-project/mapperd/dispatch"
	"github.com/openbmc-project/mapperd/internal/busutil"
	ilog "github.com/openbmc-project/mapperd/internal/log"
)

// Subscribe registers the match rules for the three signals the dispatcher
// consumes (spec.md §4.5/§6.3). Call once at startup, before RunInitialScan.
func (l *Loop) Subscribe() error {
	for _, name := range []busutil.Name{busutil.NameOwnerChanged, busutil.InterfacesAdded, busutil.InterfacesRemoved} {
		if call := name.AddMatch(l.conn); call.Err != nil {
			return fmt.Errorf("subscribe %s: %w", name.String(), call.Err)
		}
	}
	return nil
}

// HandleSignal decodes sig and applies it on the loop goroutine. Meant to be
// called from whatever goroutine drains conn.Signal's channel; unrecognized
// or malformed signals are dropped rather than treated as fatal, per spec.md
// §7's "peer input never crashes the daemon."
func (l *Loop) HandleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case busutil.NameOwnerChanged.String():
		l.handleNameOwnerChanged(sig)
	case busutil.InterfacesAdded.String():
		l.handleInterfacesAdded(sig)
	case busutil.InterfacesRemoved.String():
		l.handleInterfacesRemoved(sig)
	}
}

func (l *Loop) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) != 3 {
		return
	}
	name, ok1 := sig.Body[0].(string)
	oldOwner, ok2 := sig.Body[1].(string)
	newOwner, ok3 := sig.Body[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return
	}
	l.submitAsync(func() { l.dispatcher.OnNameOwnerChanged(name, oldOwner, newOwner) })
}

func (l *Loop) handleInterfacesAdded(sig *dbus.Signal) {
	if len(sig.Body) != 2 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	payload, err := decodeInterfacesAdded(sig.Body[1])
	if err != nil {
		ilog.Error("mapper: malformed InterfacesAdded from %s at %s: %v", sig.Sender, path, err)
		return
	}
	sender := string(sig.Sender)
	l.submitAsync(func() { l.dispatcher.OnInterfacesAdded(sender, string(path), payload) })
}

func (l *Loop) handleInterfacesRemoved(sig *dbus.Signal) {
	if len(sig.Body) != 2 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	ifaces, ok := sig.Body[1].([]string)
	if !ok {
		return
	}
	sender := string(sig.Sender)
	l.submitAsync(func() { l.dispatcher.OnInterfacesRemoved(sender, string(path), ifaces) })
}

// decodeInterfacesAdded converts an InterfacesAdded signal's second argument
// — wire type a{sa{sv}} — into the InterfaceProps slice the dispatcher
// expects.
func decodeInterfacesAdded(v interface{}) ([]dispatch.InterfaceProps, error) {
	m, ok := v.(map[string]map[string]dbus.Variant)
	if !ok {
		return nil, fmt.Errorf("InterfacesAdded payload is %T, want map[string]map[string]dbus.Variant", v)
	}
	out := make([]dispatch.InterfaceProps, 0, len(m))
	for iface, props := range m {
		p := make(map[string]interface{}, len(props))
		for k, variant := range props {
			p[k] = variant.Value()
		}
		out = append(out, dispatch.InterfaceProps{Name: iface, Properties: p})
	}
	return out, nil
}
