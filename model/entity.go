package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStatus is returned when a status string does not name a Status.
var ErrUnknownStatus = errors.New("unknown status")

// Status is the operational state of a tracked satellite.
type Status string

const (
	StatusNominal  Status = "nominal"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
	StatusOffline  Status = "offline"
)

// ParseStatus converts a case-insensitive status name into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusNominal, StatusDegraded, StatusCritical, StatusOffline:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// UnmarshalText lets Status be decoded from YAML and JSON seed files.
func (s *Status) UnmarshalText(text []byte) error {
	st, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// DefaultTask is the activity assigned to satellites that have no task list.
const DefaultTask = "Data Dump"

// DefaultTaskList returns a fresh single-element task list.
func DefaultTaskList() []string { return []string{DefaultTask} }

// Entity is a tracked satellite as shown on the operations dashboard.
//
// ID and OrbitSlot never change after start-up. Latency is expressed in
// milliseconds; a seed latency of exactly 0 marks an inactive link.
type Entity struct {
	ID        string  `json:"id" yaml:"id"`
	OrbitSlot string  `json:"orbitSlot" yaml:"orbitSlot"`
	Status    Status  `json:"status" yaml:"status"`
	Signal    float64 `json:"signal" yaml:"signal"`
	Latency   float64 `json:"latency" yaml:"latency"`
	Task      string  `json:"task" yaml:"task"`
}

// LinkInactive reports whether the entity carries the zero-latency sentinel.
func (e Entity) LinkInactive() bool { return e.Latency == 0 }
