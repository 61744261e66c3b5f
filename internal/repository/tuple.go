package repository

import (
	"fmt"
	"github.com/jaam8/voting_registry/internal/models"
	"math"
	"time"
)

// electionRow mirrors a tuple of the elections space.
type electionRow struct {
	id             models.ElectionID
	title          string
	description    string
	creator        string
	startTime      time.Time
	endTime        time.Time
	candidateCount int
}

func (r electionRow) election(candidates []models.Candidate, total uint64) models.Election {
	return models.Election{
		ID:          r.id,
		Title:       r.title,
		Description: r.description,
		Creator:     r.creator,
		StartTime:   r.startTime,
		EndTime:     r.endTime,
		Candidates:  candidates,
		TotalVotes:  total,
	}
}

func parseElection(raw interface{}) (electionRow, error) {
	tuple, ok := raw.([]interface{})
	if !ok || len(tuple) < 7 {
		return electionRow{}, fmt.Errorf("repository: unexpected election tuple %v: %w", raw, models.ErrFailedToProcessData)
	}
	id, err := toUint64(tuple[0])
	if err != nil {
		return electionRow{}, err
	}
	start, err := toInt64(tuple[4])
	if err != nil {
		return electionRow{}, err
	}
	end, err := toInt64(tuple[5])
	if err != nil {
		return electionRow{}, err
	}
	count, err := toUint64(tuple[6])
	if err != nil {
		return electionRow{}, err
	}
	row := electionRow{
		id:             models.ElectionID(id),
		startTime:      time.UnixMilli(start).UTC(),
		endTime:        time.UnixMilli(end).UTC(),
		candidateCount: int(count),
	}
	if row.title, ok = tuple[1].(string); !ok {
		return electionRow{}, fmt.Errorf("repository: unexpected title %v: %w", tuple[1], models.ErrFailedToProcessData)
	}
	if row.description, ok = tuple[2].(string); !ok {
		return electionRow{}, fmt.Errorf("repository: unexpected description %v: %w", tuple[2], models.ErrFailedToProcessData)
	}
	if row.creator, ok = tuple[3].(string); !ok {
		return electionRow{}, fmt.Errorf("repository: unexpected creator %v: %w", tuple[3], models.ErrFailedToProcessData)
	}
	return row, nil
}

func parseCandidate(raw interface{}) (models.Candidate, error) {
	tuple, ok := raw.([]interface{})
	if !ok || len(tuple) < 4 {
		return models.Candidate{}, fmt.Errorf("repository: unexpected candidate tuple %v: %w", raw, models.ErrFailedToProcessData)
	}
	idx, err := toUint64(tuple[1])
	if err != nil {
		return models.Candidate{}, err
	}
	c := models.Candidate{Index: int(idx)}
	if c.Name, ok = tuple[2].(string); !ok {
		return models.Candidate{}, fmt.Errorf("repository: unexpected candidate name %v: %w", tuple[2], models.ErrFailedToProcessData)
	}
	if c.Description, ok = tuple[3].(string); !ok {
		return models.Candidate{}, fmt.Errorf("repository: unexpected candidate description %v: %w", tuple[3], models.ErrFailedToProcessData)
	}
	return c, nil
}

// toInt64 accepts any integer type the msgpack decoder may produce.
func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return toInt64(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("repository: %d overflows int64: %w", x, models.ErrFailedToProcessData)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("repository: unexpected number %v (%T): %w", v, v, models.ErrFailedToProcessData)
	}
}

func toUint64(v interface{}) (uint64, error) {
	if x, ok := v.(uint64); ok {
		return x, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("repository: unexpected negative number %d: %w", n, models.ErrFailedToProcessData)
	}
	return uint64(n), nil
}
