package service

import (
	"strings"

	"github.com/comfortstays/pgbilling/internal/config"
	roomdomain "github.com/comfortstays/pgbilling/internal/room/domain"
	"go.uber.org/fx"
)

type Params struct {
	fx.In

	Billing *config.BillingConfigHolder
}

// Service reads the catalog on every call so billing.yml edits apply
// without a restart.
type Service struct {
	billing *config.BillingConfigHolder
}

func New(p Params) roomdomain.Service {
	return &Service{billing: p.Billing}
}

func (s *Service) List() []roomdomain.Room {
	cfg := s.billing.Get()
	rooms := make([]roomdomain.Room, 0, len(cfg.Rooms))
	for _, rc := range cfg.Rooms {
		rooms = append(rooms, toRoom(rc))
	}
	return rooms
}

func (s *Service) ACRooms() []roomdomain.Room {
	rooms := []roomdomain.Room{}
	for _, room := range s.List() {
		if room.HasAC {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

func (s *Service) Get(id string) (*roomdomain.Room, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, roomdomain.ErrInvalidID
	}
	for _, room := range s.List() {
		if room.ID == id {
			return &room, nil
		}
	}
	return nil, roomdomain.ErrNotFound
}

func (s *Service) Tariff() roomdomain.Tariff {
	cfg := s.billing.Get()
	return roomdomain.Tariff{RatePerUnit: cfg.RatePerUnit, Currency: cfg.Currency}
}

func toRoom(rc config.RoomConfig) roomdomain.Room {
	name := strings.TrimSpace(rc.Name)
	if name == "" {
		name = rc.ID
	}
	return roomdomain.Room{
		ID:       strings.TrimSpace(rc.ID),
		Name:     name,
		HasAC:    rc.HasAC,
		BedCount: rc.BedCount,
	}
}
