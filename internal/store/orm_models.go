package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gudTECH/nag-bot/internal/window"
)

type userRow struct {
	Username   string    `gorm:"primaryKey;size:191"`
	WorkStart  string    `gorm:"size:8;not null"`
	WorkEnd    string    `gorm:"size:8;not null"`
	LunchStart string    `gorm:"size:8;not null"`
	LunchEnd   string    `gorm:"size:8;not null"`
	Active     bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (userRow) TableName() string {
	return "users"
}

func (r userRow) toRecord() (User, error) {
	clocks := [4]window.Clock{}
	for i, raw := range []string{r.WorkStart, r.WorkEnd, r.LunchStart, r.LunchEnd} {
		c, err := window.ParseClock(raw)
		if err != nil {
			return User{}, fmt.Errorf("user %s: %w", r.Username, err)
		}
		clocks[i] = c
	}
	return User{
		Username:   r.Username,
		WorkStart:  clocks[0],
		WorkEnd:    clocks[1],
		LunchStart: clocks[2],
		LunchEnd:   clocks[3],
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

func userRowFromRecord(rec User) userRow {
	return userRow{
		Username:   rec.Username,
		WorkStart:  rec.WorkStart.String(),
		WorkEnd:    rec.WorkEnd.String(),
		LunchStart: rec.LunchStart.String(),
		LunchEnd:   rec.LunchEnd.String(),
		Active:     rec.Active,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

type conflictRow struct {
	ID             string    `gorm:"primaryKey;size:64"`
	Username       string    `gorm:"size:191;not null;index:idx_conflicts_user_active,priority:1"`
	Kind           string    `gorm:"size:32;not null"`
	TicketKeysJSON string    `gorm:"type:text;not null"`
	Active         bool      `gorm:"not null;index:idx_conflicts_user_active,priority:2"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (conflictRow) TableName() string {
	return "conflicts"
}

func (r conflictRow) toRecord() (Conflict, error) {
	var keys []string
	if r.TicketKeysJSON != "" {
		if err := json.Unmarshal([]byte(r.TicketKeysJSON), &keys); err != nil {
			return Conflict{}, fmt.Errorf("conflict %s: decode ticket keys: %w", r.ID, err)
		}
	}
	return Conflict{
		ID:         r.ID,
		Username:   r.Username,
		Kind:       ConflictKind(r.Kind),
		TicketKeys: keys,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

func conflictRowFromRecord(rec Conflict) (conflictRow, error) {
	encoded, err := json.Marshal(rec.TicketKeys)
	if err != nil {
		return conflictRow{}, fmt.Errorf("encode ticket keys: %w", err)
	}
	return conflictRow{
		ID:             rec.ID,
		Username:       rec.Username,
		Kind:           string(rec.Kind),
		TicketKeysJSON: string(encoded),
		Active:         rec.Active,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}

type prevTicketRow struct {
	Username  string    `gorm:"primaryKey;size:191"`
	TicketKey string    `gorm:"size:191;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (prevTicketRow) TableName() string {
	return "prev_tickets"
}

func (r prevTicketRow) toRecord() PrevTicket {
	return PrevTicket{
		Username:  r.Username,
		TicketKey: r.TicketKey,
		UpdatedAt: r.UpdatedAt,
	}
}
