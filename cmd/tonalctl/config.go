package main

import (
	"tallhat.dev/tonal/internal/channel"
	"tallhat.dev/tonal/internal/clock"
	"tallhat.dev/tonal/internal/config"
	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/engine"
	"tallhat.dev/tonal/internal/media"
	"tallhat.dev/tonal/internal/obslog"
	"tallhat.dev/tonal/plugins/cdrsqlite"
	"tallhat.dev/tonal/plugins/statushttp"
	"tallhat.dev/tonal/plugins/wsrelay"
)

// buildEngine wires a Dispatcher, media registry, Engine, the example
// park/echo Drivers, and whichever plugins the config file enables.
// Every CLI subcommand and the serve path share this so "tonalctl
// status" reports against the same topology "tonalctl" would actually
// run, per spec.md §6's "plus any commands installed by plugins."
func buildEngine(path string, log obslog.Logger) (*engine.Engine, *dispatch.Dispatcher, func(), error) {
	var file *config.File
	if path != "" {
		f, err := config.LoadFile(path)
		if err != nil {
			return nil, nil, nil, err
		}
		file = f
	} else {
		file = config.New()
	}

	clk := clock.System{}
	disp := dispatch.New()
	reg := media.NewRegistry()
	workers := file.GetInt("general", "workers", 4)
	eng := engine.New(disp, clk, log, workers)

	var drivers []*channel.Driver
	if file.GetBool("drivers", "park", true) {
		drivers = append(drivers, channel.NewParkDriver(10, disp, reg, clk.Now))
	}
	if file.GetBool("drivers", "echo", true) {
		drivers = append(drivers, channel.NewEchoDriver(10, disp, reg, clk.Now))
	}

	if file.GetBool("plugins", "statushttp", false) {
		addr := file.Get("statushttp", "addr", ":8088")
		if err := eng.Register(statushttp.New(addr)); err != nil {
			return nil, nil, nil, err
		}
	}
	if file.GetBool("plugins", "cdrsqlite", false) {
		dsn := file.Get("cdrsqlite", "dsn", "file:tonal-cdr.db")
		if err := eng.Register(cdrsqlite.New(dsn)); err != nil {
			return nil, nil, nil, err
		}
	}
	if file.GetBool("plugins", "wsrelay", false) {
		addr := file.Get("wsrelay", "addr", ":8089")
		if err := eng.Register(wsrelay.New(addr)); err != nil {
			return nil, nil, nil, err
		}
	}

	cleanup := func() {
		for _, d := range drivers {
			d.Unload("shutdown")
		}
	}
	return eng, disp, cleanup, nil
}
