package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gudTECH/nag-bot/internal/window"
)

// TeamMember is one seeded roster entry. Seeding never overwrites a profile
// that already exists in the store.
type TeamMember struct {
	ID         string
	Active     bool
	WorkStart  window.Clock
	WorkEnd    window.Clock
	LunchStart window.Clock
	LunchEnd   window.Clock
}

type teamFile struct {
	Version int              `yaml:"version"`
	Members []teamFileMember `yaml:"members"`
}

type teamFileMember struct {
	ID         string `yaml:"id"`
	Active     bool   `yaml:"active"`
	WorkHours  string `yaml:"work_hours"`
	LunchHours string `yaml:"lunch_hours"`
}

// LoadTeamFile reads an optional YAML roster. Unknown keys are rejected so a
// typo in the file fails loudly at startup.
func LoadTeamFile(path string) ([]TeamMember, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read team file %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var file teamFile
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode team file %s: %w", path, err)
	}
	if file.Version != 1 {
		return nil, fmt.Errorf("team file %s: unsupported version %d", path, file.Version)
	}

	members := make([]TeamMember, 0, len(file.Members))
	for i, raw := range file.Members {
		id := strings.TrimSpace(raw.ID)
		if id == "" {
			return nil, fmt.Errorf("team file %s: member %d has no id", path, i)
		}
		member := TeamMember{
			ID:         id,
			Active:     raw.Active,
			WorkStart:  window.NewClock(9, 0),
			WorkEnd:    window.NewClock(17, 0),
			LunchStart: window.NewClock(12, 0),
			LunchEnd:   window.NewClock(13, 0),
		}
		if raw.WorkHours != "" {
			start, end, err := parseClockRange(raw.WorkHours)
			if err != nil {
				return nil, fmt.Errorf("team file %s: member %s work_hours: %w", path, id, err)
			}
			member.WorkStart, member.WorkEnd = start, end
		}
		if raw.LunchHours != "" {
			start, end, err := parseClockRange(raw.LunchHours)
			if err != nil {
				return nil, fmt.Errorf("team file %s: member %s lunch_hours: %w", path, id, err)
			}
			member.LunchStart, member.LunchEnd = start, end
		}
		members = append(members, member)
	}
	return members, nil
}

func parseClockRange(raw string) (window.Clock, window.Clock, error) {
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return window.Clock{}, window.Clock{}, fmt.Errorf("invalid range %q", raw)
	}
	start, err := window.ParseClock(strings.TrimSpace(parts[0]))
	if err != nil {
		return window.Clock{}, window.Clock{}, err
	}
	end, err := window.ParseClock(strings.TrimSpace(parts[1]))
	if err != nil {
		return window.Clock{}, window.Clock{}, err
	}
	return start, end, nil
}
