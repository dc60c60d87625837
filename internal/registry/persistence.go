package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// servoJSON mirrors spec §6's persisted shape: ServoMetadata fields plus
// orientation as a string.
type servoJSON struct {
	ID          string   `json:"id"`
	Channel     int      `json:"channel"`
	Pin         *int     `json:"pin,omitempty"`
	Orientation string   `json:"orientation"`
	GearRatio   float64  `json:"gear_ratio"`
	Notes       string   `json:"notes,omitempty"`
	MinPulseUS  int      `json:"min_pulse_us"`
	MaxPulseUS  int      `json:"max_pulse_us"`
	CenterDeg   float64  `json:"center_deg"`
	MinDeg      float64  `json:"min_deg"`
	MaxDeg      float64  `json:"max_deg"`
	Enabled     bool     `json:"enabled"`
	Aliases     []string `json:"aliases,omitempty"`
}

type configJSON struct {
	Servos  map[string]servoJSON `json:"servos"`
	Aliases map[string]string    `json:"aliases"`
}

// Save writes the registry to path as the JSON shape documented in
// spec §6: {servos: {id: {...}}, aliases: {alias: id}}.
func (r *Registry) Save(path string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg := configJSON{
		Servos:  make(map[string]servoJSON, len(r.servos)),
		Aliases: make(map[string]string, len(r.aliases)),
	}
	for id, s := range r.servos {
		cfg.Servos[id] = servoJSON{
			ID:          s.ID,
			Channel:     s.Channel,
			Pin:         s.Pin,
			Orientation: s.Orientation.String(),
			GearRatio:   s.GearRatio,
			Notes:       s.Notes,
			MinPulseUS:  s.MinPulseUS,
			MaxPulseUS:  s.MaxPulseUS,
			CenterDeg:   s.CenterDeg,
			MinDeg:      s.MinDeg,
			MaxDeg:      s.MaxDeg,
			Enabled:     s.Enabled,
			Aliases:     s.Aliases,
		}
	}
	for alias, id := range r.aliases {
		cfg.Aliases[alias] = id
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("registry: write config %s: %w", path, err)
	}
	return nil
}

// Load reads a registry previously written by Save. A missing file is
// not an error: Load returns a fresh, empty registry, matching the
// original's "config file not found, starting with empty registry".
func Load(path string) (*Registry, error) {
	r := New()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: read config %s: %w", path, err)
	}

	var cfg configJSON
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("registry: parse config %s: %w", path, err)
	}

	for id, sj := range cfg.Servos {
		orientation, _ := ParseOrientation(sj.Orientation)
		s := &Servo{
			ID:          id,
			Channel:     sj.Channel,
			Pin:         sj.Pin,
			Orientation: orientation,
			GearRatio:   sj.GearRatio,
			Notes:       sj.Notes,
			MinPulseUS:  sj.MinPulseUS,
			MaxPulseUS:  sj.MaxPulseUS,
			CenterDeg:   sj.CenterDeg,
			MinDeg:      sj.MinDeg,
			MaxDeg:      sj.MaxDeg,
			Enabled:     sj.Enabled,
			Aliases:     sj.Aliases,
		}
		s.setAngles(sj.CenterDeg, sj.CenterDeg)
		r.servos[id] = s
		if sj.Channel >= 0 && sj.Channel <= 15 {
			r.byChan[sj.Channel] = id
		}
	}
	for alias, id := range cfg.Aliases {
		r.aliases[alias] = id
	}

	return r, nil
}
