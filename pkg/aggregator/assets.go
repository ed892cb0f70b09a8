package aggregator

import (
	"encoding/json"
	"net/netip"
	"os"

	"github.com/socrates-soc/socrates/pkg/models"
)

// AssetProfile describes the destination asset's standing for the context
// score. All defaults keep the score mid-range when nothing is known.
type AssetProfile struct {
	Criticality float64
	Exposure    float64
	Sensitive   bool
}

type assetEntry struct {
	IP          string `json:"ip"`
	CIDR        string `json:"cidr"`
	Criticality any    `json:"criticality"`
	Exposure    any    `json:"exposure"`
	Sensitive   bool   `json:"sensitive"`
}

// AssetCatalog is the static IP/CIDR table resolved against destination
// addresses. A missing file yields an empty catalog, not an error.
type AssetCatalog struct {
	entries []assetEntry
}

// LoadAssetCatalog reads the catalog JSON. Accepted shapes: a bare array
// of entries, or an object with an "assets" array.
func LoadAssetCatalog(path string) (*AssetCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &AssetCatalog{}, nil
		}
		return nil, err
	}

	var wrapped struct {
		Assets []assetEntry `json:"assets"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Assets != nil {
		return &AssetCatalog{entries: wrapped.Assets}, nil
	}

	var entries []assetEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return &AssetCatalog{entries: entries}, nil
}

// Resolve returns the profile for an address. A direct IP match beats the
// first matching CIDR; otherwise defaults are keyed by address class.
func (c *AssetCatalog) Resolve(ipText string) AssetProfile {
	addr, err := netip.ParseAddr(ipText)
	if err != nil {
		return AssetProfile{Criticality: 0.4, Exposure: 0.3}
	}

	var cidrMatch *assetEntry
	for i := range c.entries {
		row := &c.entries[i]
		if row.IP != "" && row.IP == ipText {
			return profileFrom(row)
		}
		if row.CIDR != "" && cidrMatch == nil {
			if prefix, err := netip.ParsePrefix(row.CIDR); err == nil && prefix.Contains(addr) {
				cidrMatch = row
			}
		}
	}
	if cidrMatch != nil {
		return profileFrom(cidrMatch)
	}

	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return AssetProfile{Criticality: 0.45, Exposure: 0.2}
	}
	return AssetProfile{Criticality: 0.5, Exposure: 0.7}
}

func profileFrom(row *assetEntry) AssetProfile {
	return AssetProfile{
		Criticality: clamp01(row.Criticality, 0.4),
		Exposure:    clamp01(row.Exposure, 0.3),
		Sensitive:   row.Sensitive,
	}
}

func clamp01(v any, def float64) float64 {
	if v == nil {
		return def
	}
	f, ok := models.ToFloat(v)
	if !ok {
		f = 0.0
	}
	return max(0.0, min(f, 1.0))
}
