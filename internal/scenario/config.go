// Package scenario loads simulation scenarios from YAML, generates
// per-tick cargo demand with layered noise, and seeds the stations' flow
// tables from shortest paths over the scenario's link network.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/freightworld/internal/cargo"
	"github.com/talgya/freightworld/internal/economy"
	"github.com/talgya/freightworld/internal/engine"
	"github.com/talgya/freightworld/internal/station"
)

// CargoClassDef declares one cargo type.
type CargoClassDef struct {
	Name         string `yaml:"name"`
	Rate         int64  `yaml:"rate"`
	DecayPeriods uint16 `yaml:"decay_periods"`
}

// ProductionDef declares what a station produces.
type ProductionDef struct {
	Cargo     string  `yaml:"cargo"`
	Base      float64 `yaml:"base"`      // average units per aging tick
	Amplitude float64 `yaml:"amplitude"` // noise swing around the base
}

// StationDef declares one station.
type StationDef struct {
	ID       uint16          `yaml:"id"`
	Name     string          `yaml:"name"`
	X        int32           `yaml:"x"`
	Y        int32           `yaml:"y"`
	Accepts  []string        `yaml:"accepts"`
	Produces []ProductionDef `yaml:"produces"`
}

// LinkDef declares a bidirectional link between two stations. Weight
// defaults to the manhattan distance between the stations.
type LinkDef struct {
	A      uint16  `yaml:"a"`
	B      uint16  `yaml:"b"`
	Weight float64 `yaml:"weight"`
}

// OrderDef declares one stop of a vehicle route.
type OrderDef struct {
	Station  uint16 `yaml:"station"`
	Unload   bool   `yaml:"unload"`
	Transfer bool   `yaml:"transfer"`
	NoUnload bool   `yaml:"no_unload"`
	NoLoad   bool   `yaml:"no_load"`
}

// VehicleDef declares one vehicle.
type VehicleDef struct {
	Name     string     `yaml:"name"`
	Cargo    string     `yaml:"cargo"`
	Capacity uint       `yaml:"capacity"`
	Speed    uint       `yaml:"speed"`
	Route    []OrderDef `yaml:"route"`
}

// Config is a complete scenario file.
type Config struct {
	Name         string          `yaml:"name"`
	Seed         int64           `yaml:"seed"`
	NoiseScale   float64         `yaml:"noise_scale"`
	StationCap   uint            `yaml:"station_cap"`
	CargoClasses []CargoClassDef `yaml:"cargo_classes"`
	Stations     []StationDef    `yaml:"stations"`
	Links        []LinkDef       `yaml:"links"`
	Vehicles     []VehicleDef    `yaml:"vehicles"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", cfg.Name, err)
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if len(cfg.CargoClasses) == 0 {
		return fmt.Errorf("no cargo classes")
	}
	if len(cfg.Stations) == 0 {
		return fmt.Errorf("no stations")
	}
	seen := make(map[uint16]bool, len(cfg.Stations))
	for _, st := range cfg.Stations {
		if st.ID == uint16(cargo.InvalidStation) {
			return fmt.Errorf("station %q uses the reserved wildcard ID", st.Name)
		}
		if seen[st.ID] {
			return fmt.Errorf("duplicate station ID %d", st.ID)
		}
		seen[st.ID] = true
		for _, c := range st.Accepts {
			if _, err := cfg.cargoIndex(c); err != nil {
				return err
			}
		}
		for _, p := range st.Produces {
			if _, err := cfg.cargoIndex(p.Cargo); err != nil {
				return err
			}
		}
	}
	for _, l := range cfg.Links {
		if !seen[l.A] || !seen[l.B] {
			return fmt.Errorf("link %d-%d references an unknown station", l.A, l.B)
		}
	}
	for _, v := range cfg.Vehicles {
		if _, err := cfg.cargoIndex(v.Cargo); err != nil {
			return err
		}
		if len(v.Route) < 2 {
			return fmt.Errorf("vehicle %q needs at least two stops", v.Name)
		}
		for _, ord := range v.Route {
			if !seen[ord.Station] {
				return fmt.Errorf("vehicle %q stops at unknown station %d", v.Name, ord.Station)
			}
		}
	}
	return nil
}

func (cfg *Config) cargoIndex(name string) (cargo.CargoType, error) {
	for i, c := range cfg.CargoClasses {
		if c.Name == name {
			return cargo.CargoType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown cargo class %q", name)
}

// Build constructs a world from the scenario: stations with acceptance
// flags, vehicles, and the demand fields.
func (cfg *Config) Build() (*engine.World, error) {
	classes := make([]economy.CargoClass, len(cfg.CargoClasses))
	for i, c := range cfg.CargoClasses {
		classes[i] = economy.CargoClass{
			Type:         cargo.CargoType(i),
			Name:         c.Name,
			Rate:         cargo.Money(c.Rate),
			DecayPeriods: c.DecayPeriods,
		}
	}
	w := engine.NewWorld(classes)
	if cfg.StationCap > 0 {
		w.StationCap = cfg.StationCap
	}

	for _, def := range cfg.Stations {
		st := station.NewStation(w.Pool, cargo.StationID(def.ID), def.Name,
			cargo.TileXY{X: def.X, Y: def.Y}, len(classes))
		for _, name := range def.Accepts {
			ct, _ := cfg.cargoIndex(name)
			st.Goods[ct].SetAcceptance(true)
		}
		w.AddStation(st)
	}

	for i, def := range cfg.Vehicles {
		ct, _ := cfg.cargoIndex(def.Cargo)
		orders := make([]engine.Order, len(def.Route))
		for j, o := range def.Route {
			var flags cargo.UnloadFlags
			if o.Unload {
				flags |= cargo.UnloadFlagUnload
			}
			if o.Transfer {
				flags |= cargo.UnloadFlagTransfer
			}
			if o.NoUnload {
				flags |= cargo.UnloadFlagNoUnload
			}
			orders[j] = engine.Order{
				Station: cargo.StationID(o.Station),
				Flags:   flags,
				NoLoad:  o.NoLoad,
			}
		}
		w.Vehicles = append(w.Vehicles,
			engine.NewVehicle(w.Pool, engine.VehicleID(i), def.Name, ct, def.Capacity, def.Speed, orders))
	}

	w.Supply = NewDemandField(cfg)
	return w, nil
}
