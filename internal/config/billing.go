package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/gosimple/slug"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig is the externally supplied tariff and room catalog.
type BillingConfig struct {
	RatePerUnit float64      `mapstructure:"ratePerUnit"`
	Currency    string       `mapstructure:"currency"`
	Rooms       []RoomConfig `mapstructure:"rooms"`
	// FixedCosts are charged against every month's profit and loss.
	FixedCosts []FixedCost `mapstructure:"fixedCosts"`
}

type RoomConfig struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	HasAC    bool   `mapstructure:"hasAC"`
	BedCount int    `mapstructure:"bedCount"`
}

type FixedCost struct {
	Name   string  `mapstructure:"name" json:"name"`
	Amount float64 `mapstructure:"amount" json:"amount"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		RatePerUnit: 10,
		Currency:    "INR",
		Rooms: []RoomConfig{
			{ID: "room1", Name: "Room 1 (Bottom)", HasAC: true, BedCount: 4},
			{ID: "room2", Name: "Room 2", HasAC: false, BedCount: 3},
			{ID: "room3", Name: "Room 3 (Top)", HasAC: true, BedCount: 4},
			{ID: "hall", Name: "Hall", HasAC: false, BedCount: 6},
		},
		FixedCosts: []FixedCost{
			{Name: "cook salary", Amount: 15000},
		},
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfig wraps a fixed configuration without file watching.
func NewStaticBillingConfig(cfg BillingConfig) (*BillingConfigHolder, error) {
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("billing.config")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/pgbilling")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PGBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("billing.yml not found, using built-in room catalog")
		return NewStaticBillingConfig(DefaultBillingConfig())
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			log.Warn("billing config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded",
			zap.String("file", e.Name),
			zap.Float64("rate_per_unit", updated.RatePerUnit),
			zap.Int("rooms", len(updated.Rooms)),
		)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}
	defaults := DefaultBillingConfig()
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = defaults.Currency
	}
	if len(cfg.Rooms) == 0 {
		cfg.Rooms = defaults.Rooms
	}
	if !v.IsSet("billing.fixedCosts") {
		cfg.FixedCosts = defaults.FixedCosts
	}
	// A room without an id is keyed by its slugged name.
	for i := range cfg.Rooms {
		if strings.TrimSpace(cfg.Rooms[i].ID) == "" {
			cfg.Rooms[i].ID = slug.Make(cfg.Rooms[i].Name)
		}
	}
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.RatePerUnit < 0 {
		return errors.New("billing.ratePerUnit cannot be negative")
	}
	if len(cfg.Rooms) == 0 {
		return errors.New("billing.rooms cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Rooms))
	for _, room := range cfg.Rooms {
		id := strings.TrimSpace(room.ID)
		if id == "" {
			return errors.New("billing.rooms[].id is required")
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("billing.rooms: duplicate room id %q", id)
		}
		seen[id] = struct{}{}
		if room.BedCount <= 0 {
			return fmt.Errorf("billing.rooms[%s].bedCount must be positive", id)
		}
	}
	for _, cost := range cfg.FixedCosts {
		if cost.Amount < 0 {
			return fmt.Errorf("billing.fixedCosts[%s].amount cannot be negative", cost.Name)
		}
	}
	return nil
}
