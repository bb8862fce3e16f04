package render

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/venue-console/opmap/internal/models"
)

const (
	ColorGreen  = "#22c55e"
	ColorRed    = "#ef4444"
	ColorYellow = "#eab308"
	ColorGray   = "#6b7280"
	ColorOrange = "#f97316"

	defaultSelection = "#2563eb"
	defaultSearchHit = "#a855f7"
	defaultAreaAlpha = 0.15
)

// Palette resolves table statuses to fill colours. It is total over the
// status set: every declared status has exactly one colour.
type Palette struct {
	status    [models.NumTableStatuses]string
	Selection string
	SearchHit string
	AreaAlpha float64
}

// DefaultPalette is the operational colour scheme.
func DefaultPalette() Palette {
	var p Palette
	p.status[models.StatusAvailable] = ColorGreen
	p.status[models.StatusOccupied] = ColorRed
	p.status[models.StatusReserved] = ColorYellow
	p.status[models.StatusBlocked] = ColorGray
	p.status[models.StatusMaintenance] = ColorOrange
	p.Selection = defaultSelection
	p.SearchHit = defaultSearchHit
	p.AreaAlpha = defaultAreaAlpha
	return p
}

// Color returns the fill colour of a status. s must be a declared status.
func (p Palette) Color(s models.TableStatus) string {
	if !s.Valid() {
		return ""
	}
	return p.status[s]
}

// Statuses returns the status colours keyed by wire name.
func (p Palette) Statuses() map[string]string {
	out := make(map[string]string, models.NumTableStatuses)
	for _, s := range models.AllTableStatuses() {
		out[s.String()] = p.status[s]
	}
	return out
}

// paletteFile is the YAML form of a palette.
type paletteFile struct {
	Statuses  map[string]string `yaml:"statuses"`
	Selection string            `yaml:"selection"`
	SearchHit string            `yaml:"search_hit"`
	AreaAlpha float64           `yaml:"area_alpha"`
}

// LoadPaletteFile reads a YAML palette. An empty path yields the default.
func LoadPaletteFile(path string) (Palette, error) {
	if path == "" {
		return DefaultPalette(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Palette{}, fmt.Errorf("open palette: %w", err)
	}
	defer f.Close()
	return LoadPalette(f)
}

// LoadPalette overlays a YAML palette on the default one. Statuses missing
// from the file keep their default colour; unknown status names are an
// error so a typo can't silently leave a status uncoloured.
func LoadPalette(r io.Reader) (Palette, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Palette{}, err
	}

	var file paletteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Palette{}, fmt.Errorf("parse palette: %w", err)
	}

	p := DefaultPalette()
	for name, color := range file.Statuses {
		status, err := models.ParseTableStatus(name)
		if err != nil {
			return Palette{}, fmt.Errorf("palette: %w", err)
		}
		if color == "" {
			return Palette{}, fmt.Errorf("palette: empty colour for %s", status)
		}
		p.status[status] = color
	}
	if file.Selection != "" {
		p.Selection = file.Selection
	}
	if file.SearchHit != "" {
		p.SearchHit = file.SearchHit
	}
	if file.AreaAlpha > 0 && file.AreaAlpha <= 1 {
		p.AreaAlpha = file.AreaAlpha
	}
	return p, nil
}
