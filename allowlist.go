package omnilocation

import "strings"

// Allowlist optionally restricts discovery to an explicit set of device udids.
// An empty allowlist permits everything. The value is typically parsed from a
// comma/semicolon/whitespace-separated environment variable, for example:
//
//	OMNI_DEVICE_ALLOWLIST="00008110-000A,emulator-5554"
type Allowlist map[string]struct{}

// ParseAllowlist splits raw on commas, semicolons, pipes and whitespace,
// dropping blanks and duplicates. Blank input yields a nil (permit-all) list.
func ParseAllowlist(raw string) Allowlist {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', '|', '\n', '\r', '\t', ' ':
			return true
		default:
			return false
		}
	})
	out := make(Allowlist, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out[p] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Permits reports whether udid may enter the pool.
func (a Allowlist) Permits(udid string) bool {
	if len(a) == 0 {
		return true
	}
	_, ok := a[udid]
	return ok
}
