// Command mapperd is the daemon: it connects to a D-Bus instance, indexes
// every peer's object tree, and answers ObjectMapper queries about it
// (spec.md §1.4).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/godbus/dbus/v5"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/openbmc-project/mapperd/internal/busutil"
	ilog "github.com/openbmc-project/mapperd/internal/log"
	"github.com/openbmc-project/mapperd/mapper"
	"github.com/openbmc-project/mapperd/namefilter"
)

const busName = "xyz.openbmc_project.ObjectMapper"

func main() {
	session := flag.Bool("session", false, "connect to the session bus instead of the system bus (development only)")
	configPath := flag.String("config", "/etc/mapperd/config.yaml", "path to the name-filter config file")
	flag.Parse()

	if err := run(*session, *configPath); err != nil {
		ilog.Error("mapperd: %v", err)
		os.Exit(1)
	}
}

func run(useSession bool, configPath string) error {
	conn, dconn, err := connectBus(useSession)
	if err != nil {
		return err
	}
	defer conn.Close()

	fs := afero.NewOsFs()
	filter, stopWatch, err := namefilter.WatchConfig(fs, configPath, busName)
	if err != nil {
		return err
	}
	defer stopWatch()

	loop := mapper.New(conn, dconn, filter, mapper.NewBusExporter(dconn))
	if err := loop.Export(dconn, busName); err != nil {
		return err
	}
	if err := loop.Subscribe(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 2)
	signal.Notify(shutdown, unix.SIGTERM, unix.SIGINT)
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, unix.SIGHUP)

	busSignals := make(chan *dbus.Signal, 64)
	conn.Signal(busSignals)
	defer conn.RemoveSignal(busSignals)

	go loop.Run(ctx)
	go dispatchLoop(ctx, loop, busSignals, reload, fs, configPath, filter)

	go func() {
		if err := loop.RunInitialScan(ctx); err != nil {
			ilog.Error("mapperd: initial scan: %v", err)
			return
		}
		daemon.SdNotify(false, daemon.SdNotifyReady)
		ilog.Log("mapperd: ready")
	}()

	<-shutdown
	ilog.Log("mapperd: shutting down")
	return nil
}

// dispatchLoop drains bus signals onto the event loop and handles SIGHUP as
// an explicit "reload the filter config now" trigger alongside the fsnotify
// watch namefilter.WatchConfig already installed (spec.md §1.4).
func dispatchLoop(ctx context.Context, loop *mapper.Loop, busSignals <-chan *dbus.Signal, reload <-chan os.Signal, fs afero.Fs, configPath string, filter *namefilter.Filter) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-busSignals:
			loop.HandleSignal(sig)
		case <-reload:
			cfg, err := namefilter.LoadConfig(fs, configPath)
			if err != nil {
				ilog.Error("mapperd: SIGHUP reload %s: %v", configPath, err)
				continue
			}
			filter.Reload(cfg.Allow, cfg.Deny)
			ilog.Log("mapperd: reloaded %s via SIGHUP", configPath)
		}
	}
}

// connectBus prefers a systemd socket-activated bus connection (spec.md
// §1.4) and falls back to dialing the system or session bus directly.
func connectBus(useSession bool) (busutil.Conn, *dbus.Conn, error) {
	if files := activation.Files(true); len(files) > 0 {
		netConn, err := net.FileConn(files[0])
		if err != nil {
			return nil, nil, fmt.Errorf("socket-activated bus fd: %w", err)
		}
		dconn, err := dbus.NewConn(netConn)
		if err != nil {
			return nil, nil, fmt.Errorf("socket-activated bus handshake: %w", err)
		}
		if err := dconn.Auth(nil); err != nil {
			return nil, nil, err
		}
		if err := dconn.Hello(); err != nil {
			return nil, nil, err
		}
		return dconn, dconn, nil
	}

	busType := busutil.System
	if useSession {
		busType = busutil.Session
	}
	conn, err := busType()
	if err != nil {
		return nil, nil, err
	}
	dconn, ok := conn.(*dbus.Conn)
	if !ok {
		// Only busutil.System/Session ever reach here in production; the test
		// bus factory is never wired into connectBus.
		panic("mapperd: bus connection is not a *dbus.Conn")
	}
	return conn, dconn, nil
}
