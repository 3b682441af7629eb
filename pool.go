package omnilocation

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DevicePool is the single authoritative map of known devices. A udid maps to
// at most one handle for the process lifetime: rescans mutate the existing
// handle in place, so references held by a running playback stay valid.
type DevicePool struct {
	store    NameStore
	scanners []Scanner

	mu      sync.Mutex
	allow   Allowlist
	devices map[string]*DeviceHandle
}

func NewDevicePool(store NameStore, scanners ...Scanner) *DevicePool {
	return &DevicePool{
		store:    store,
		scanners: scanners,
		devices:  make(map[string]*DeviceHandle),
	}
}

// SetAllowlist restricts future scans to the given udids. A nil or empty
// allowlist permits everything. Devices already in the pool are unaffected.
func (p *DevicePool) SetAllowlist(allow Allowlist) {
	p.mu.Lock()
	p.allow = allow
	p.mu.Unlock()
	if len(allow) > 0 {
		log.Info().Int("size", len(allow)).Msg("device allowlist active")
	}
}

// Scan queries every configured scanner and reconciles the results into the
// pool. It returns the handles for the records observed in this scan only;
// previously known devices that did not show up are retained in the pool but
// omitted from the result. A scanner failure is logged and skipped unless
// every scanner fails.
func (p *DevicePool) Scan(ctx context.Context) ([]*DeviceHandle, error) {
	p.mu.Lock()
	allow := p.allow
	p.mu.Unlock()

	var (
		found   []*DeviceHandle
		failed  int
		lastErr error
	)
	for _, scanner := range p.scanners {
		records, err := scanner.Scan(ctx)
		if err != nil {
			failed++
			lastErr = err
			log.Warn().Err(err).Msg("device scan failed")
			continue
		}
		for _, rec := range records {
			udid := strings.TrimSpace(rec.UDID)
			if udid == "" {
				continue
			}
			rec.UDID = udid
			if !allow.Permits(udid) {
				log.Debug().Str("udid", udid).Msg("device not on allowlist, skipped")
				continue
			}
			found = append(found, p.reconcile(rec))
		}
	}
	if failed > 0 && failed == len(p.scanners) {
		return nil, errors.Wrap(lastErr, "all device scanners failed")
	}
	return found, nil
}

func (p *DevicePool) reconcile(rec DiscoveredDevice) *DeviceHandle {
	p.mu.Lock()
	dev, ok := p.devices[rec.UDID]
	if !ok {
		dev = newDeviceHandle(rec, p.store)
		p.devices[rec.UDID] = dev
		p.mu.Unlock()
		log.Info().Str("udid", rec.UDID).Str("kind", string(rec.Kind)).Msg("device discovered")
		return dev
	}
	p.mu.Unlock()
	dev.applyScan(rec)
	return dev
}

// Get returns the handle for udid, or nil when it was never observed.
func (p *DevicePool) Get(udid string) *DeviceHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.devices[udid]
}

// Rename assigns a user name. Blank or whitespace-only names are rejected
// without touching the stored name. The name is persisted and, when a handle
// exists in memory, applied immediately so display-name reads reflect the
// change without a rescan.
func (p *DevicePool) Rename(udid, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewValidationError("name", "device name cannot be blank")
	}
	if err := p.store.SaveUserName(udid, name); err != nil {
		return NewStorageError("rename", err)
	}
	if dev := p.Get(udid); dev != nil {
		dev.setUserName(name)
	}
	log.Info().Str("udid", udid).Str("name", name).Msg("device renamed")
	return nil
}

// All returns a snapshot of every known handle, connected or not.
func (p *DevicePool) All() []*DeviceHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]*DeviceHandle, 0, len(p.devices))
	for _, dev := range p.devices {
		result = append(result, dev)
	}
	return result
}
