package main

import (
	"github.com/rs/zerolog/log"

	omnilocation "github.com/omnilocation/omnilocation"
	"github.com/omnilocation/omnilocation/internal/config"
	"github.com/omnilocation/omnilocation/internal/namestore"
	adbprovider "github.com/omnilocation/omnilocation/providers/adb"
	iosprovider "github.com/omnilocation/omnilocation/providers/ios"
)

// buildCore assembles the process-scoped pool and simulator. The caller owns
// the returned store and must close it on shutdown.
func buildCore() (*omnilocation.DevicePool, *omnilocation.Simulator, *namestore.Store, error) {
	store, err := namestore.Open(config.String(config.EnvDBPath, "devices.db"))
	if err != nil {
		return nil, nil, nil, err
	}

	scanners := []omnilocation.Scanner{iosprovider.NewScanner()}
	if config.Bool(config.EnvADBDisabled, false) {
		log.Info().Msg("adb transport disabled by configuration")
	} else if adbScanner, err := adbprovider.NewScanner(); err != nil {
		// The Android bridge is optional: without a local adb server the
		// pool still runs with the iOS transport only.
		log.Warn().Err(err).Msg("adb unavailable, scanning iOS devices only")
	} else {
		scanners = append(scanners, adbScanner)
	}

	pool := omnilocation.NewDevicePool(store, scanners...)
	pool.SetAllowlist(omnilocation.ParseAllowlist(config.String(config.EnvDeviceAllowlist, "")))
	return pool, omnilocation.NewSimulator(pool), store, nil
}
