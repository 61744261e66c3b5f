package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("election is not found")
	ErrVotingClosed     = errors.New("voting is closed")
	ErrAlreadyVoted     = errors.New("vote already written")
	ErrInvalidCandidate = errors.New("candidate is not found")

	ErrTitleIsEmpty          = fmt.Errorf("%w: title is empty", ErrInvalidInput)
	ErrNotEnoughCandidates   = fmt.Errorf("%w: the number of candidates should be at least %d", ErrInvalidInput, MinCandidates)
	ErrCandidateNameIsEmpty  = fmt.Errorf("%w: candidate name is empty", ErrInvalidInput)
	ErrDurationIsNotPositive = fmt.Errorf("%w: duration should be positive", ErrInvalidInput)
	ErrDurationTooLong       = fmt.Errorf("%w: duration is too long", ErrInvalidInput)
	ErrFailedToProcessData   = errors.New("failed to process data")
)

const MinCandidates = 2

type ElectionID uint64

// Status is derived from the election window and a point in time, it is never stored.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
)

func StatusAt(start, end, now time.Time) Status {
	switch {
	case now.Before(start):
		return StatusScheduled
	case now.Before(end):
		return StatusOpen
	default:
		return StatusClosed
	}
}

type CandidateSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Candidate struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Description string `json:"description"`
	VoteCount   uint64 `json:"vote_count"`
}

type Election struct {
	ID          ElectionID  `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Creator     string      `json:"creator"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	Candidates  []Candidate `json:"candidates"`
	TotalVotes  uint64      `json:"total_votes"`
}

// View projects the election at the given moment.
func (e Election) View(now time.Time) ElectionView {
	status := StatusAt(e.StartTime, e.EndTime, now)
	return ElectionView{
		ID:             e.ID,
		Title:          e.Title,
		Description:    e.Description,
		Creator:        e.Creator,
		StartTime:      e.StartTime,
		EndTime:        e.EndTime,
		Status:         status,
		IsActive:       status == StatusOpen,
		TotalVotes:     e.TotalVotes,
		CandidateCount: len(e.Candidates),
	}
}

type ElectionView struct {
	ID             ElectionID `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Creator        string     `json:"creator"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Status         Status     `json:"status"`
	IsActive       bool       `json:"is_active"`
	TotalVotes     uint64     `json:"total_votes"`
	CandidateCount int        `json:"candidate_count"`
}

type VoteRecord struct {
	ElectionID     ElectionID `json:"election_id"`
	Voter          string     `json:"-"`
	CandidateIndex int        `json:"candidate_index"`
	Timestamp      time.Time  `json:"timestamp"`
}

type NewElection struct {
	Title       string
	Description string
	Candidates  []CandidateSpec
	Duration    time.Duration
	Creator     string
}

// Validate reports the first malformed field; every returned error matches ErrInvalidInput.
func (n NewElection) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return ErrTitleIsEmpty
	}
	if len(n.Candidates) < MinCandidates {
		return ErrNotEnoughCandidates
	}
	for _, c := range n.Candidates {
		if strings.TrimSpace(c.Name) == "" {
			return ErrCandidateNameIsEmpty
		}
	}
	if n.Duration <= 0 {
		return ErrDurationIsNotPositive
	}
	return nil
}

// Build materializes the election window and candidate sequence starting at now.
func (n NewElection) Build(id ElectionID, now time.Time) Election {
	candidates := make([]Candidate, len(n.Candidates))
	for i, c := range n.Candidates {
		candidates[i] = Candidate{
			Index:       i,
			Name:        c.Name,
			Description: c.Description,
		}
	}
	return Election{
		ID:          id,
		Title:       n.Title,
		Description: n.Description,
		Creator:     n.Creator,
		StartTime:   now,
		EndTime:     now.Add(n.Duration),
		Candidates:  candidates,
	}
}

// Results is an election view together with its live tally.
type Results struct {
	Election   ElectionView `json:"election"`
	Candidates []Candidate  `json:"candidates"`
}
