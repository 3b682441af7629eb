// Package ios implements device discovery and location control for iOS
// devices over usbmux. Location simulation prefers the DVT instruments
// service and falls back to the legacy simulatelocation service on devices
// where DVT is unavailable.
package ios

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	gios "github.com/danielpaulus/go-ios/ios"
	"github.com/danielpaulus/go-ios/ios/instruments"
	"github.com/danielpaulus/go-ios/ios/simlocation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	omnilocation "github.com/omnilocation/omnilocation"
)

// Scanner lists usbmux-visible devices.
type Scanner struct{}

func NewScanner() *Scanner { return &Scanner{} }

// Scan returns one discovery record per usbmux-visible device.
func (Scanner) Scan(ctx context.Context) ([]omnilocation.DiscoveredDevice, error) {
	list, err := gios.ListDevices()
	if err != nil {
		return nil, errors.Wrap(err, "usbmux list devices")
	}
	records := make([]omnilocation.DiscoveredDevice, 0, len(list.DeviceList))
	for _, entry := range list.DeviceList {
		udid := strings.TrimSpace(entry.Properties.SerialNumber)
		if udid == "" {
			continue
		}
		kind := omnilocation.KindUSB
		if strings.EqualFold(entry.Properties.ConnectionType, "Network") {
			kind = omnilocation.KindWifi
		}
		records = append(records, omnilocation.DiscoveredDevice{
			UDID:      udid,
			Serial:    udid,
			Kind:      kind,
			Label:     fmt.Sprintf("iPhone (%.8s…)", udid),
			Transport: &transport{entry: entry},
		})
	}
	return records, nil
}

// transport drives one iOS device. The DVT location-simulation session is
// owned exclusively by this transport and torn down on Disconnect.
type transport struct {
	entry gios.DeviceEntry

	mu     sync.Mutex
	dvt    *instruments.LocationSimulationService
	legacy bool
}

var _ omnilocation.Transport = (*transport)(nil)

// Connect opens a location-simulation session. The DVT service is tried
// first; devices without it fall back to the legacy per-call service once a
// lockdown query confirms the device is reachable.
func (t *transport) Connect(ctx context.Context) error {
	udid := t.entry.Properties.SerialNumber
	srv, err := instruments.NewLocationSimulationService(t.entry)
	if err == nil {
		t.mu.Lock()
		t.dvt = srv
		t.legacy = false
		t.mu.Unlock()
		log.Debug().Str("udid", udid).Msg("using dvt location simulation")
		return nil
	}
	log.Debug().Err(err).Str("udid", udid).Msg("dvt unavailable, trying legacy simulatelocation")

	if _, err := gios.GetValues(t.entry); err != nil {
		return errors.Wrapf(err, "lockdown session for %s", udid)
	}
	t.mu.Lock()
	t.dvt = nil
	t.legacy = true
	t.mu.Unlock()
	return nil
}

func (t *transport) SetLocation(lat, lon float64) error {
	t.mu.Lock()
	dvt := t.dvt
	legacy := t.legacy
	t.mu.Unlock()

	udid := t.entry.Properties.SerialNumber
	switch {
	case dvt != nil:
		if err := dvt.StartSimulateLocation(lat, lon); err != nil {
			return errors.Wrapf(err, "dvt simulate location on %s", udid)
		}
		return nil
	case legacy:
		if err := simlocation.SetLocation(t.entry, formatCoord(lat), formatCoord(lon)); err != nil {
			return errors.Wrapf(err, "simulatelocation on %s", udid)
		}
		return nil
	default:
		return errors.Errorf("no location service for %s", udid)
	}
}

// Disconnect stops the simulated location and releases the session.
func (t *transport) Disconnect() {
	t.mu.Lock()
	dvt := t.dvt
	legacy := t.legacy
	t.dvt = nil
	t.legacy = false
	t.mu.Unlock()

	udid := t.entry.Properties.SerialNumber
	if dvt != nil {
		if err := dvt.StopSimulateLocation(); err != nil {
			log.Warn().Err(err).Str("udid", udid).Msg("stop dvt location simulation failed")
		}
		return
	}
	if legacy {
		if err := simlocation.ResetLocation(t.entry); err != nil {
			log.Warn().Err(err).Str("udid", udid).Msg("reset simulated location failed")
		}
	}
}

// FetchFactoryName queries the lockdown DeviceName value.
func (t *transport) FetchFactoryName() (string, error) {
	values, err := gios.GetValues(t.entry)
	if err != nil {
		return "", errors.Wrapf(err, "lockdown values for %s", t.entry.Properties.SerialNumber)
	}
	return values.Value.DeviceName, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
