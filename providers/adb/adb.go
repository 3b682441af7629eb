// Package adb implements device discovery and location control for Android
// devices over the adb shell bridge. Coordinates are pushed as service
// intents to a mock-location app on the device.
package adb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	goadb "github.com/zach-klippenstein/goadb"

	omnilocation "github.com/omnilocation/omnilocation"
)

// Intent actions understood by Fake GPS (com.lexa.fakegps).
const (
	intentStart = "com.lexa.fakegps.START"
	intentStop  = "com.lexa.fakegps.STOP"
)

// Scanner lists devices known to the local adb server.
type Scanner struct {
	client *goadb.Adb
}

// NewScanner connects to the local adb server. It fails when no adb server
// is reachable, letting the caller run without the Android transport.
func NewScanner() (*Scanner, error) {
	client, err := goadb.New()
	if err != nil {
		return nil, errors.Wrap(err, "init adb client")
	}
	if _, err := client.ServerVersion(); err != nil {
		return nil, errors.Wrap(err, "adb server not reachable")
	}
	return &Scanner{client: client}, nil
}

// Scan returns one discovery record per adb-visible device.
func (s *Scanner) Scan(ctx context.Context) ([]omnilocation.DiscoveredDevice, error) {
	infos, err := s.client.ListDevices()
	if err != nil {
		return nil, errors.Wrap(err, "adb list devices")
	}
	records := make([]omnilocation.DiscoveredDevice, 0, len(infos))
	for _, info := range infos {
		serial := strings.TrimSpace(info.Serial)
		if serial == "" {
			continue
		}
		records = append(records, omnilocation.DiscoveredDevice{
			UDID:   serial,
			Serial: serial,
			Kind:   omnilocation.KindBridged,
			Label:  fmt.Sprintf("Android (%.8s…)", serial),
			Transport: &transport{
				serial: serial,
				device: s.client.Device(goadb.DeviceWithSerial(serial)),
			},
		})
	}
	return records, nil
}

// transport drives one Android device through adb shell commands.
type transport struct {
	serial string
	device *goadb.Device
}

var _ omnilocation.Transport = (*transport)(nil)

// Connect verifies the device answers over adb. There is no session to hold
// open; the shell bridge is re-established per command.
func (t *transport) Connect(ctx context.Context) error {
	state, err := t.device.State()
	if err != nil {
		return errors.Wrapf(err, "adb device %s state", t.serial)
	}
	if state != goadb.StateOnline {
		return errors.Errorf("adb device %s is not online (state %v)", t.serial, state)
	}
	return nil
}

// SetLocation starts the mock-location service with the coordinate as
// double extras.
func (t *transport) SetLocation(lat, lon float64) error {
	_, err := t.device.RunCommand("am", "startservice",
		"-a", intentStart,
		"--ed", "lat", formatCoord(lat),
		"--ed", "long", formatCoord(lon),
	)
	if err != nil {
		return errors.Wrapf(err, "adb set location on %s", t.serial)
	}
	return nil
}

// Disconnect stops the mock-location service best-effort. The bridge itself
// has no session to release.
func (t *transport) Disconnect() {
	if _, err := t.device.RunCommand("am", "startservice", "-a", intentStop); err != nil {
		log.Warn().Err(err).Str("serial", t.serial).Msg("adb stop mock location failed")
	}
}

// FetchFactoryName reads the product model over adb.
func (t *transport) FetchFactoryName() (string, error) {
	out, err := t.device.RunCommand("getprop", "ro.product.model")
	if err != nil {
		return "", errors.Wrapf(err, "adb getprop on %s", t.serial)
	}
	model := strings.TrimSpace(out)
	if model == "" {
		return "", nil
	}
	return fmt.Sprintf("%s (%s)", model, t.serial), nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
