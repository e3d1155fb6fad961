package mapper

import (
	"github.com/godbus/dbus/v5"

	"github.com/openbmc-project/mapperd/internal/busutil"
	ilog "github.com/openbmc-project/mapperd/internal/log"
)

// AssociationInterface is the interface a derived association path exposes
// its endpoints property under (spec.md §3.1's AssociationInterfaces).
const AssociationInterface = "xyz.openbmc_project.Association"

// associationObject is the handler conn.Export registers for one derived
// path's org.freedesktop.DBus.Properties interface. Modeled on how
// nikicat-secrets-dispatcher's proxy exports a handler per path rather than
// reaching for a generic properties helper: Get/GetAll/Set are implemented
// directly against the one property this object ever has.
type associationObject struct {
	endpoints []dbus.ObjectPath
}

func (o *associationObject) Get(iface, prop string) (dbus.Variant, *dbus.Error) {
	if iface != AssociationInterface || prop != "endpoints" {
		return dbus.Variant{}, dbus.NewErrorf("org.freedesktop.DBus.Error.UnknownProperty", "no such property %s.%s", iface, prop)
	}
	return dbus.MakeVariant(o.endpoints), nil
}

func (o *associationObject) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != AssociationInterface {
		return nil, dbus.NewErrorf("org.freedesktop.DBus.Error.UnknownInterface", "no such interface %s", iface)
	}
	return map[string]dbus.Variant{"endpoints": dbus.MakeVariant(o.endpoints)}, nil
}

func (o *associationObject) Set(iface, prop string, _ dbus.Variant) *dbus.Error {
	return dbus.NewErrorf("org.freedesktop.DBus.Error.PropertyReadOnly", "%s.%s is read-only", iface, prop)
}

// BusExporter implements assoc.Exporter against a real bus connection,
// exporting one associationObject per derived path and unexporting it once
// its endpoint list empties (I2). It is the one place in the daemon that
// exports association objects on a *dbus.Conn, kept out of the assoc package so
// assoc_test.go can exercise the reconciliation algorithm without a bus.
type BusExporter struct {
	conn *dbus.Conn
}

// NewBusExporter returns an assoc.Exporter backed by conn.
func NewBusExporter(conn *dbus.Conn) *BusExporter {
	return &BusExporter{conn: conn}
}

func (b *BusExporter) Publish(path string, endpoints []string) {
	obj := &associationObject{endpoints: toObjectPaths(endpoints)}
	if err := b.conn.Export(obj, dbus.ObjectPath(path), "org.freedesktop.DBus.Properties"); err != nil {
		ilog.Error("mapper: export association %s: %v", path, err)
		return
	}
	changed := map[string]dbus.Variant{"endpoints": dbus.MakeVariant(obj.endpoints)}
	if err := b.conn.Emit(dbus.ObjectPath(path), busutil.PropertiesChanged.String(), AssociationInterface, changed, []string{}); err != nil {
		ilog.Error("mapper: emit PropertiesChanged for %s: %v", path, err)
	}
}

func (b *BusExporter) Unpublish(path string) {
	if err := b.conn.Export(nil, dbus.ObjectPath(path), "org.freedesktop.DBus.Properties"); err != nil {
		ilog.Error("mapper: unexport association %s: %v", path, err)
	}
}
