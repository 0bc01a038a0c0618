package ir

import (
	"fmt"
	"time"
)

// SystemTimeMode selects which versions of temporal entities a query sees.
type SystemTimeMode string

const (
	SystemTimeAsOf        SystemTimeMode = "AsOf"
	SystemTimeBetween     SystemTimeMode = "Between"
	SystemTimeContainedIn SystemTimeMode = "ContainedIn"
	SystemTimeAll         SystemTimeMode = "All"
)

// JoinMode decides which version a navigation into a temporal entity picks
// under an interval scope.
type JoinMode string

const (
	JoinCurrent         JoinMode = "Current"
	JoinFirstCompatible JoinMode = "FirstCompatible"
	JoinAllCompatible   JoinMode = "AllCompatible"
)

// SystemTime is the temporal scope of a query. A nil *SystemTime means
// "current versions only".
type SystemTime struct {
	Mode  SystemTimeMode `json:"mode" yaml:"mode"`
	Start time.Time      `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	End   time.Time      `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	Join  JoinMode       `json:"joinMode,omitempty" yaml:"joinMode,omitempty"`
}

// AsOf scopes the query to the versions valid at t.
func AsOf(t time.Time) *SystemTime {
	return &SystemTime{Mode: SystemTimeAsOf, Start: t.UTC()}
}

// Between scopes the query to versions overlapping [start, end).
func Between(start, end time.Time, join JoinMode) *SystemTime {
	return &SystemTime{Mode: SystemTimeBetween, Start: start.UTC(), End: end.UTC(), Join: join}
}

// ContainedIn scopes the query to versions entirely inside [start, end].
func ContainedIn(start, end time.Time, join JoinMode) *SystemTime {
	return &SystemTime{Mode: SystemTimeContainedIn, Start: start.UTC(), End: end.UTC(), Join: join}
}

// AllVersions scopes the query to every version ever stored.
func AllVersions(join JoinMode) *SystemTime {
	return &SystemTime{Mode: SystemTimeAll, Join: join}
}

// Validate checks mode, join mode and bounds.
func (s *SystemTime) Validate() error {
	if s == nil {
		return nil
	}
	switch s.Mode {
	case SystemTimeAsOf, SystemTimeAll:
	case SystemTimeBetween, SystemTimeContainedIn:
		if s.End.Before(s.Start) {
			return fmt.Errorf("system time %s: end %s before start %s", s.Mode,
				s.End.Format(TimeLayout), s.Start.Format(TimeLayout))
		}
	default:
		return fmt.Errorf("unknown system time mode %q", s.Mode)
	}
	switch s.Join {
	case "", JoinCurrent, JoinFirstCompatible, JoinAllCompatible:
		return nil
	default:
		return fmt.Errorf("unknown join mode %q", s.Join)
	}
}

// IsInterval reports whether root rows can appear once per version, which
// multiplies logical rows.
func (s *SystemTime) IsInterval() bool {
	if s == nil {
		return false
	}
	return s.Mode == SystemTimeBetween || s.Mode == SystemTimeContainedIn || s.Mode == SystemTimeAll
}

// JoinOrDefault returns the join mode, FirstCompatible when unset.
func (s *SystemTime) JoinOrDefault() JoinMode {
	if s == nil || s.Join == "" {
		return JoinFirstCompatible
	}
	return s.Join
}

// NavigatesCurrent reports whether navigations pick the current version.
func (s *SystemTime) NavigatesCurrent() bool {
	if s == nil {
		return true
	}
	return s.Mode != SystemTimeAsOf && s.JoinOrDefault() == JoinCurrent
}

// AcceptsRoot reports whether a version [from, to) of a temporal entity is a
// root row of a query under this scope. to == nil is the open current version.
func (s *SystemTime) AcceptsRoot(from, to *time.Time) bool {
	if s == nil {
		return to == nil
	}
	switch s.Mode {
	case SystemTimeAsOf:
		return validAt(from, to, s.Start)
	case SystemTimeBetween:
		return (from == nil || from.Before(s.End)) && (to == nil || to.After(s.Start))
	case SystemTimeContainedIn:
		return from != nil && !from.Before(s.Start) && to != nil && !to.After(s.End)
	case SystemTimeAll:
		return true
	}
	return false
}

// AcceptsNavigation reports whether a version is a candidate target of a
// navigation. Among candidates the earliest one wins.
func (s *SystemTime) AcceptsNavigation(from, to *time.Time) bool {
	if s.NavigatesCurrent() {
		return to == nil
	}
	return s.AcceptsRoot(from, to)
}

func validAt(from, to *time.Time, t time.Time) bool {
	return (from == nil || !from.After(t)) && (to == nil || t.Before(*to))
}
