package omnilocation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ConnectionKind describes how a device is reachable.
type ConnectionKind string

const (
	KindUSB     ConnectionKind = "usb"
	KindWifi    ConnectionKind = "wifi"
	KindBridged ConnectionKind = "bridged"
	KindUnknown ConnectionKind = "unknown"
)

// Transport is the device capability consumed by a DeviceHandle. One concrete
// implementation exists per device family; the pool and simulator never see
// past this interface.
type Transport interface {
	// Connect establishes the device session.
	Connect(ctx context.Context) error
	// SetLocation pushes a simulated coordinate over the established session.
	SetLocation(lat, lon float64) error
	// Disconnect clears the simulated location and releases the session.
	// It must be safe to call unconditionally; failures are logged internally.
	Disconnect()
	// FetchFactoryName returns the device's own name, or "" when unavailable.
	FetchFactoryName() (string, error)
}

// DiscoveredDevice is one raw record produced by a discovery scan.
type DiscoveredDevice struct {
	UDID      string
	Serial    string
	Kind      ConnectionKind
	Label     string
	Transport Transport
}

// Scanner enumerates the devices currently visible on one transport.
type Scanner interface {
	Scan(ctx context.Context) ([]DiscoveredDevice, error)
}

// NameRecord holds the persisted names for one udid.
type NameRecord struct {
	FactoryName string
	UserName    string
}

// NameStore persists udid -> name mappings across process restarts.
// Records are upserted, never deleted.
type NameStore interface {
	Lookup(udid string) (NameRecord, error)
	SaveFactoryName(udid, name string) error
	SaveUserName(udid, name string) error
}

// DeviceHandle wraps one physical device: stable identity, persisted naming,
// and the connection lifecycle over its transport. Handles are created by the
// pool and live for the whole process; a vanished device simply stays
// disconnected until rediscovered.
type DeviceHandle struct {
	udid  string
	store NameStore

	mu            sync.Mutex
	serial        string
	kind          ConnectionKind
	connected     bool
	transport     Transport
	factoryName   string
	userName      string
	fallbackLabel string
}

func newDeviceHandle(rec DiscoveredDevice, store NameStore) *DeviceHandle {
	serial := rec.Serial
	if serial == "" {
		serial = rec.UDID
	}
	label := rec.Label
	if label == "" {
		label = fmt.Sprintf("Device (%.8s…)", rec.UDID)
	}
	h := &DeviceHandle{
		udid:          rec.UDID,
		store:         store,
		serial:        serial,
		kind:          rec.Kind,
		transport:     rec.Transport,
		fallbackLabel: label,
	}
	h.refreshNames()
	return h
}

func (h *DeviceHandle) UDID() string { return h.udid }

func (h *DeviceHandle) Serial() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.serial
}

func (h *DeviceHandle) Kind() ConnectionKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind
}

func (h *DeviceHandle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *DeviceHandle) FactoryName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.factoryName
}

// DisplayName resolves user name > factory name > fallback label.
// It is never empty.
func (h *DeviceHandle) DisplayName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.userName != "" {
		return h.userName
	}
	if h.factoryName != "" {
		return h.factoryName
	}
	return h.fallbackLabel
}

// Connect establishes the device session. On success it best-effort fetches
// and persists the factory name; a naming failure never fails the connect.
func (h *DeviceHandle) Connect(ctx context.Context) error {
	h.mu.Lock()
	transport := h.transport
	kind := h.kind
	h.mu.Unlock()

	if err := transport.Connect(ctx); err != nil {
		h.mu.Lock()
		h.connected = false
		h.mu.Unlock()
		log.Error().Err(err).Str("udid", h.udid).Msg("device connect failed")
		return NewDeviceConnectionError(h.udid, err)
	}

	h.mu.Lock()
	h.connected = true
	h.mu.Unlock()
	log.Info().Str("udid", h.udid).Str("kind", string(kind)).Msg("device connected")

	h.fetchFactoryName(transport)
	return nil
}

func (h *DeviceHandle) fetchFactoryName(transport Transport) {
	name, err := transport.FetchFactoryName()
	if err != nil {
		log.Warn().Err(err).Str("udid", h.udid).Msg("could not fetch device name")
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	h.mu.Lock()
	h.factoryName = name
	h.mu.Unlock()
	if err := h.store.SaveFactoryName(h.udid, name); err != nil {
		log.Warn().Err(err).Str("udid", h.udid).Msg("could not persist device name")
		return
	}
	log.Info().Str("udid", h.udid).Str("name", name).Msg("fetched device name")
}

// SetLocation pushes a simulated coordinate. A push failure marks the device
// lost (connected=false); the caller decides whether to drop it from a run.
func (h *DeviceHandle) SetLocation(lat, lon float64) error {
	h.mu.Lock()
	transport := h.transport
	connected := h.connected
	h.mu.Unlock()

	if !connected {
		return NewDeviceControlError(h.udid, "set location", fmt.Errorf("no active session"))
	}
	if err := transport.SetLocation(lat, lon); err != nil {
		h.mu.Lock()
		h.connected = false
		h.mu.Unlock()
		log.Error().Err(err).Str("udid", h.udid).Msg("set location failed")
		return NewDeviceControlError(h.udid, "set location", err)
	}
	return nil
}

// Disconnect clears the simulated location and releases the session. It never
// returns an error and is safe to call on an already-disconnected handle:
// this is also the resource-release path during teardown.
func (h *DeviceHandle) Disconnect() {
	h.mu.Lock()
	transport := h.transport
	h.connected = false
	h.mu.Unlock()
	transport.Disconnect()
}

// refreshNames reloads persisted names, picking up out-of-band renames.
// Store failures are logged and leave the in-memory names untouched.
func (h *DeviceHandle) refreshNames() {
	rec, err := h.store.Lookup(h.udid)
	if err != nil {
		log.Warn().Err(err).Str("udid", h.udid).Msg("name lookup failed")
		return
	}
	h.mu.Lock()
	if rec.FactoryName != "" {
		h.factoryName = rec.FactoryName
	}
	if rec.UserName != "" {
		h.userName = rec.UserName
	}
	h.mu.Unlock()
}

// applyScan updates transport metadata from a fresh discovery record. The
// session and connected flag stay untouched: the transport is only swapped
// while disconnected, so an established session is never orphaned mid-run.
func (h *DeviceHandle) applyScan(rec DiscoveredDevice) {
	h.mu.Lock()
	h.kind = rec.Kind
	if rec.Serial != "" {
		h.serial = rec.Serial
	}
	if !h.connected && rec.Transport != nil {
		h.transport = rec.Transport
	}
	h.mu.Unlock()
	h.refreshNames()
}

func (h *DeviceHandle) setUserName(name string) {
	h.mu.Lock()
	h.userName = name
	h.mu.Unlock()
}
