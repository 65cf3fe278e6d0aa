package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	Object     Object     `yaml:"object"`
	Forces     Forces     `yaml:"forces"`
	Water      Water      `yaml:"water"`
	Cache      Cache      `yaml:"cache"`
	Generation Generation `yaml:"generation"`
}

type Object struct {
	StartLife        int     `yaml:"start_life"`
	DestroyBelow     int     `yaml:"destroy_below"`
	LightningDecay   int     `yaml:"lightning_decay"`
	HeavyMass        float64 `yaml:"heavy_mass"`
	LightMass        float64 `yaml:"light_mass"`
	ExplodedMass     float64 `yaml:"exploded_mass"`
	DefaultSize      float64 `yaml:"default_size"`
	OffstageX        float64 `yaml:"offstage_x"`
	PropelledDragMul float64 `yaml:"propelled_drag_mul"`
	FlyLift          float64 `yaml:"fly_lift"`
	IceMeltStep      float64 `yaml:"ice_melt_step"`
	SetFireLifeMin   int     `yaml:"setfire_life_min"`
	SetFireLifeMax   int     `yaml:"setfire_life_max"`
}

type Forces struct {
	MagnetConstant     float64 `yaml:"magnet_constant"`
	MagnetVoidConstant float64 `yaml:"magnet_void_constant"`
	BlowConstant       float64 `yaml:"blow_constant"`
}

type Water struct {
	Tension       float64 `yaml:"tension"`
	Dampening     float64 `yaml:"dampening"`
	Spread        float64 `yaml:"spread"`
	ColumnSpacing float64 `yaml:"column_spacing"`
	SplashSpeed   float64 `yaml:"splash_speed"`
}

type Cache struct {
	PoolSize int `yaml:"pool_size"`
}

type Generation struct {
	ThumbnailSize    int     `yaml:"thumbnail_size"`
	InnerSize        int     `yaml:"inner_size"`
	CornerRadius     int     `yaml:"corner_radius"`
	BorderWidth      int     `yaml:"border_width"`
	BorderColor      string  `yaml:"border_color"`
	VideoWidth       int     `yaml:"video_width"`
	VideoHeight      int     `yaml:"video_height"`
	VideoSeconds     float64 `yaml:"video_seconds"`
	FrameCount       int     `yaml:"frame_count"`
	FrameEpsilon     float64 `yaml:"frame_epsilon"`
	PollIntervalMs   int     `yaml:"poll_interval_ms"`
	PollMaxAttempts  int     `yaml:"poll_max_attempts"`
	LoopFrameDelayMs int     `yaml:"loop_frame_delay_ms"`
}

// Defaults mirrors configs/tuning.yaml.
func Defaults() Tuning {
	return Tuning{
		TickRateHz: 60,
		Object: Object{
			StartLife:        100,
			DestroyBelow:     -200,
			LightningDecay:   5,
			HeavyMass:        1,
			LightMass:        0.1,
			ExplodedMass:     0.0001,
			DefaultSize:      64,
			OffstageX:        -1000,
			PropelledDragMul: 150,
			FlyLift:          0.28,
			IceMeltStep:      0.5,
			SetFireLifeMin:   100,
			SetFireLifeMax:   300,
		},
		Forces: Forces{
			MagnetConstant:     0.012,
			MagnetVoidConstant: 0.0001,
			BlowConstant:       300,
		},
		Water: Water{
			Tension:       0.01,
			Dampening:     0.1,
			Spread:        0.25,
			ColumnSpacing: 20,
			SplashSpeed:   3,
		},
		Cache: Cache{PoolSize: 3},
		Generation: Generation{
			ThumbnailSize:    64,
			InnerSize:        128,
			CornerRadius:     16,
			BorderWidth:      2,
			BorderColor:      "#000000",
			VideoWidth:       1080,
			VideoHeight:      1920,
			VideoSeconds:     5,
			FrameCount:       4,
			FrameEpsilon:     0.05,
			PollIntervalMs:   10000,
			PollMaxAttempts:  30,
			LoopFrameDelayMs: 125,
		},
	}
}

// Load reads a tuning file on top of Defaults, so partial files are valid.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.Cache.PoolSize <= 0 {
		return fmt.Errorf("cache.pool_size must be > 0")
	}
	if t.Generation.FrameCount != 4 {
		return fmt.Errorf("generation.frame_count must be 4")
	}
	if t.Generation.PollMaxAttempts <= 0 {
		return fmt.Errorf("generation.poll_max_attempts must be > 0")
	}
	if t.Object.DestroyBelow >= 0 {
		return fmt.Errorf("object.destroy_below must be negative")
	}
	return nil
}
