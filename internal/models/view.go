package models

import "time"

// EventView is the composite payload one viewer sees for one event. It is
// what the view cache stores, so every field must be derivable from the
// event state plus the viewer identity alone.
type EventView struct {
	Token          string            `json:"token"`
	Title          string            `json:"title"`
	Phase          string            `json:"phase"`
	StartDate      string            `json:"start_date"`
	EndDate        string            `json:"end_date"`
	VoteDeadline   time.Time         `json:"vote_deadline"`
	Quorum         int               `json:"quorum"`
	InCount        int               `json:"in_count"`
	FinalDate      *string           `json:"final_date,omitempty"`
	ResultsVisible bool              `json:"results_visible"`
	HostName       string            `json:"host_name"`
	IsHost         bool              `json:"is_host"`
	HostMethod     string            `json:"host_method,omitempty"`
	Attendees      []AttendeeView    `json:"attendees"`
	Availability   *AvailabilityView `json:"availability,omitempty"`
	Viewer         *ViewerView       `json:"viewer,omitempty"`
}

// AttendeeView is one roster row.
type AttendeeView struct {
	Slug    string `json:"slug"`
	Label   string `json:"label"`
	Claimed bool   `json:"claimed"`
	Voted   bool   `json:"voted"`
	In      *bool  `json:"in,omitempty"`
	IsYou   bool   `json:"is_you"`
}

// AvailabilityView is the ranked day summary. Omitted from the composite
// view for non-hosts while results are hidden.
type AvailabilityView struct {
	TotalIn      int       `json:"total_in"`
	Days         []DayView `json:"days"`
	EarliestAll  *string   `json:"earliest_all,omitempty"`
	EarliestMost *string   `json:"earliest_most,omitempty"`
	Top3         []DayView `json:"top3"`
}

// DayView is one day inside the event range. BlockedBy lists only
// attendees who blocked the day non-anonymously.
type DayView struct {
	Day       string   `json:"day"`
	Available int      `json:"available"`
	Blocked   int      `json:"blocked"`
	BlockedBy []string `json:"blocked_by,omitempty"`
}

// ViewerView is the "you" block for a resolved viewer.
type ViewerView struct {
	PersonID    uint64   `json:"person_id"`
	Slug        string   `json:"slug"`
	Label       string   `json:"label"`
	Voted       bool     `json:"voted"`
	In          *bool    `json:"in,omitempty"`
	BlockedDays []string `json:"blocked_days"`
	Anonymous   bool     `json:"anonymous"`
}
