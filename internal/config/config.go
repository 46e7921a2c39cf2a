// Package config loads the simulation settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nicolas-f/gdms-usm/internal/decision"
	"github.com/nicolas-f/gdms-usm/internal/selection"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

var ErrInvalid = errors.New("invalid config")

// AdminKeyEnv names the environment variable holding the API admin key.
const AdminKeyEnv = "SPRAWLSIM_ADMIN_KEY"

type Config struct {
	Seed         int64         `yaml:"seed"`
	StartYear    int           `yaml:"start_year"`
	Steps        uint64        `yaml:"steps"` // 0 runs until interrupted
	StepInterval time.Duration `yaml:"step_interval"`
	Workers      int           `yaml:"workers"`

	Decision  decision.Config  `yaml:"decision"`
	Selection selection.Config `yaml:"selection"`
	Build     Build            `yaml:"build"`
	World     World            `yaml:"world"`
	Storage   Storage          `yaml:"storage"`
	API       API              `yaml:"api"`
}

type Build struct {
	Thresholds        []float64 `yaml:"thresholds"`
	NeighborInfluence float64   `yaml:"neighbor_influence"`
}

type World struct {
	Radius     int     `yaml:"radius"`
	CellSize   float64 `yaml:"cell_size"`
	CoreRadius int     `yaml:"core_radius"`
	Fill       float64 `yaml:"fill"` // Share of parcel capacity occupied at start
}

type Storage struct {
	DBPath     string `yaml:"db_path"`     // Empty disables the database
	StepLogDir string `yaml:"steplog_dir"` // Empty disables the compressed logs
}

type API struct {
	Port     int    `yaml:"port"` // 0 disables the HTTP server
	AdminKey string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Seed:         0,
		StartYear:    2000,
		Steps:        0,
		StepInterval: time.Second,
		Workers:      1,
		Decision:     decision.DefaultConfig(),
		Selection:    selection.DefaultConfig(),
		Build: Build{
			Thresholds:        []float64{0, 0.000155, 0.001, 0.001466},
			NeighborInfluence: 0.5,
		},
		World: World{
			Radius:     12,
			CellSize:   50,
			CoreRadius: 4,
			Fill:       0.6,
		},
		Storage: Storage{
			DBPath:     "data/sprawlsim.db",
			StepLogDir: "data/logs",
		},
		API: API{Port: 8080},
	}
}

// Load reads path over the defaults and validates the result. The admin key
// comes from the environment only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.API.AdminKey = os.Getenv(AdminKeyEnv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Thresholds returns the build type density ladder.
func (c Config) Thresholds() world.Thresholds {
	var t world.Thresholds
	copy(t[:], c.Build.Thresholds)
	return t
}

// GenConfig returns the parcel field generation settings.
func (c Config) GenConfig() world.GenConfig {
	g := world.DefaultGenConfig()
	g.Radius = c.World.Radius
	g.Seed = c.Seed
	g.CellSize = c.World.CellSize
	g.CoreZone = c.Decision.CoreZone
	g.CoreRadius = c.World.CoreRadius
	return g
}

func (c Config) Validate() error {
	if len(c.Build.Thresholds) != len(world.Thresholds{}) {
		return fmt.Errorf("%w: build.thresholds needs %d values, got %d",
			ErrInvalid, len(world.Thresholds{}), len(c.Build.Thresholds))
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Decision.Memory < 1 {
		return fmt.Errorf("%w: decision.memory must be at least 1, got %d", ErrInvalid, c.Decision.Memory)
	}
	if c.World.Radius < 0 || c.World.CellSize <= 0 {
		return fmt.Errorf("%w: world.radius and world.cell_size must be positive", ErrInvalid)
	}
	if c.World.Fill < 0 || c.World.Fill > 1 {
		return fmt.Errorf("%w: world.fill must be within [0, 1]", ErrInvalid)
	}
	if c.StepInterval < 0 {
		return fmt.Errorf("%w: step_interval must not be negative", ErrInvalid)
	}
	return nil
}
