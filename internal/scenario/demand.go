package scenario

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/freightworld/internal/cargo"
)

// DemandField turns the scenario's production declarations into per-tick
// cargo supply using smooth simplex noise over time, so production ebbs
// and flows instead of arriving at a constant rate. Implements
// engine.Producer.
type DemandField struct {
	noise opensimplex.Noise
	scale float64
	rates map[demandKey]ProductionDef
}

type demandKey struct {
	st cargo.StationID
	c  cargo.CargoType
}

// NewDemandField builds the demand field for a scenario.
func NewDemandField(cfg *Config) *DemandField {
	scale := cfg.NoiseScale
	if scale <= 0 {
		scale = 0.002
	}
	df := &DemandField{
		noise: opensimplex.NewNormalized(cfg.Seed),
		scale: scale,
		rates: make(map[demandKey]ProductionDef),
	}
	for _, st := range cfg.Stations {
		for _, p := range st.Produces {
			ct, _ := cfg.cargoIndex(p.Cargo)
			df.rates[demandKey{cargo.StationID(st.ID), ct}] = p
		}
	}
	return df
}

// Produce returns the units of cargo c appearing at st this tick. The
// noise sample is normalized to [0,1); the result swings around the base
// by up to the amplitude.
func (df *DemandField) Produce(st cargo.StationID, c cargo.CargoType, tick uint64) uint {
	p, ok := df.rates[demandKey{st, c}]
	if !ok {
		return 0
	}
	n := df.noise.Eval2(float64(st)*31.7, float64(tick)*df.scale)
	amount := p.Base + p.Amplitude*(n-0.5)*2
	if amount <= 0 {
		return 0
	}
	return uint(amount)
}
