package repository

import (
	"errors"
	"fmt"
	"github.com/jaam8/voting_registry/internal/models"
	"github.com/tarantool/go-tarantool"
	"go.uber.org/zap"
	"math"
	"time"
)

const (
	createElectionScript = `
local title, description, creator, start_time, end_time, candidates = ...
return box.atomic(function()
    local election = box.space.elections:insert{box.NULL, title, description, creator, start_time, end_time, #candidates}
    for i, c in ipairs(candidates) do
        box.space.candidates:insert{election[1], i - 1, c[1], c[2]}
    end
    return election[1]
end)
`
	// one fiber without yields, so the counts form a consistent snapshot
	candidateCountsScript = `
local election_id, n = ...
local counts = {}
for i = 0, n - 1 do
    counts[i + 1] = box.space.votes.index.election_candidate:count({election_id, i})
end
return counts
`
	totalVotesScript = `
local election_id = ...
return box.space.votes.index.primary:count({election_id})
`
)

// Conn is the part of *tarantool.Connection the repository talks through.
type Conn interface {
	Select(space, index interface{}, offset, limit, iterator uint32, key interface{}) (*tarantool.Response, error)
	Insert(space interface{}, tuple interface{}) (*tarantool.Response, error)
	Eval(expr string, args interface{}) (*tarantool.Response, error)
}

// ElectionRepository stores elections in Tarantool. Vote uniqueness is guaranteed by the
// primary index of the votes space on (election_id, voter). Times are kept as Unix
// milliseconds.
type ElectionRepository struct {
	db Conn
	l  *zap.Logger
}

func New(db Conn, l *zap.Logger) *ElectionRepository {
	return &ElectionRepository{
		db: db,
		l:  l,
	}
}

func (r *ElectionRepository) CreateElection(req models.NewElection, now time.Time) (models.ElectionID, error) {
	if err := req.Validate(); err != nil {
		r.l.Debug("invalid election request", zap.Error(err))
		return 0, err
	}
	candidates := make([]interface{}, len(req.Candidates))
	for i, c := range req.Candidates {
		candidates[i] = []interface{}{c.Name, c.Description}
	}

	resp, err := r.db.Eval(createElectionScript, []interface{}{
		req.Title,
		req.Description,
		req.Creator,
		now.UnixMilli(),
		now.Add(req.Duration).UnixMilli(),
		candidates,
	})
	r.logResponse(resp)
	if err != nil {
		r.l.Debug("error inserting election", zap.Error(err))
		return 0, fmt.Errorf("repository: database insert error: %w", err)
	}
	if len(resp.Data) == 0 {
		return 0, fmt.Errorf("repository: empty insert response: %w", models.ErrFailedToProcessData)
	}
	id, err := toUint64(resp.Data[0])
	if err != nil {
		return 0, err
	}
	return models.ElectionID(id), nil
}

func (r *ElectionRepository) CastVote(id models.ElectionID, voter string, candidateIndex int, now time.Time) error {
	row, err := r.getElection(id)
	if err != nil {
		return err
	}
	if models.StatusAt(row.startTime, row.endTime, now) != models.StatusOpen {
		r.l.Debug("election is not open", zap.Uint64("election_id", uint64(id)))
		return models.ErrVotingClosed
	}
	voted, err := r.hasVote(id, voter)
	if err != nil {
		return err
	}
	if voted {
		r.l.Debug("vote already exist",
			zap.Uint64("election_id", uint64(id)),
			zap.String("voter", voter))
		return models.ErrAlreadyVoted
	}
	if candidateIndex < 0 || candidateIndex >= row.candidateCount {
		r.l.Debug("candidate not found", zap.Int("candidate_index", candidateIndex))
		return models.ErrInvalidCandidate
	}

	resp, err := r.db.Insert("votes", []interface{}{uint64(id), voter, uint64(candidateIndex), now.UnixMilli()})
	r.logResponse(resp)
	if err != nil {
		// a concurrent vote from the same voter won the unique index
		var tntErr tarantool.Error
		if errors.As(err, &tntErr) && tntErr.Code == tarantool.ErrTupleFound {
			r.l.Debug("vote already exist",
				zap.Uint64("election_id", uint64(id)),
				zap.String("voter", voter))
			return models.ErrAlreadyVoted
		}
		r.l.Debug("failed to insert vote", zap.Error(err))
		return fmt.Errorf("repository: database insert error: %w", err)
	}
	return nil
}

func (r *ElectionRepository) HasVoted(id models.ElectionID, voter string) (bool, error) {
	if _, err := r.getElection(id); err != nil {
		return false, err
	}
	return r.hasVote(id, voter)
}

func (r *ElectionRepository) GetCandidates(id models.ElectionID) ([]models.Candidate, error) {
	row, err := r.getElection(id)
	if err != nil {
		return nil, err
	}
	return r.candidates(row)
}

func (r *ElectionRepository) GetElection(id models.ElectionID, now time.Time) (models.ElectionView, error) {
	row, err := r.getElection(id)
	if err != nil {
		return models.ElectionView{}, err
	}
	total, err := r.totalVotes(id)
	if err != nil {
		return models.ElectionView{}, err
	}
	election := row.election(make([]models.Candidate, row.candidateCount), total)
	return election.View(now), nil
}

func (r *ElectionRepository) ListElections(now time.Time) ([]models.ElectionView, error) {
	resp, err := r.db.Select("elections", "primary", 0, math.MaxUint32, tarantool.IterAll, []interface{}{})
	if err != nil {
		r.l.Debug("failed to select elections", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	r.logResponse(resp)

	views := make([]models.ElectionView, 0, len(resp.Data))
	for _, raw := range resp.Data {
		row, err := parseElection(raw)
		if err != nil {
			r.l.Debug("unexpected election tuple", zap.Any("tuple", raw))
			return nil, err
		}
		total, err := r.totalVotes(row.id)
		if err != nil {
			return nil, err
		}
		election := row.election(make([]models.Candidate, row.candidateCount), total)
		views = append(views, election.View(now))
	}
	return views, nil
}

func (r *ElectionRepository) getElection(id models.ElectionID) (electionRow, error) {
	resp, err := r.db.Select("elections", "primary", 0, 1, tarantool.IterEq, []interface{}{uint64(id)})
	if err != nil {
		r.l.Debug("failed to select election", zap.Error(err))
		return electionRow{}, fmt.Errorf("repository: database select error: %w", err)
	}
	r.logResponse(resp)
	if len(resp.Data) == 0 {
		r.l.Debug("election not found", zap.Uint64("election_id", uint64(id)))
		return electionRow{}, fmt.Errorf("repository: election %d: %w", id, models.ErrNotFound)
	}
	return parseElection(resp.Data[0])
}

func (r *ElectionRepository) hasVote(id models.ElectionID, voter string) (bool, error) {
	resp, err := r.db.Select("votes", "primary", 0, 1, tarantool.IterEq, []interface{}{uint64(id), voter})
	if err != nil {
		r.l.Debug("failed to select vote", zap.Error(err))
		return false, fmt.Errorf("repository: database select error: %w", err)
	}
	r.logResponse(resp)
	return len(resp.Data) > 0, nil
}

func (r *ElectionRepository) candidates(row electionRow) ([]models.Candidate, error) {
	resp, err := r.db.Select("candidates", "primary", 0, uint32(row.candidateCount), tarantool.IterEq, []interface{}{uint64(row.id)})
	if err != nil {
		r.l.Debug("failed to select candidates", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	r.logResponse(resp)
	if len(resp.Data) != row.candidateCount {
		return nil, fmt.Errorf("repository: election %d has %d candidates, expected %d: %w",
			row.id, len(resp.Data), row.candidateCount, models.ErrFailedToProcessData)
	}

	candidates := make([]models.Candidate, row.candidateCount)
	for _, raw := range resp.Data {
		c, err := parseCandidate(raw)
		if err != nil {
			r.l.Debug("unexpected candidate tuple", zap.Any("tuple", raw))
			return nil, err
		}
		if c.Index >= len(candidates) {
			return nil, fmt.Errorf("repository: candidate index %d out of range: %w", c.Index, models.ErrFailedToProcessData)
		}
		candidates[c.Index] = c
	}

	counts, err := r.db.Eval(candidateCountsScript, []interface{}{uint64(row.id), row.candidateCount})
	if err != nil {
		r.l.Debug("failed to count votes", zap.Error(err))
		return nil, fmt.Errorf("repository: database eval error: %w", err)
	}
	r.logResponse(counts)
	if len(counts.Data) == 0 {
		return nil, fmt.Errorf("repository: empty counts response: %w", models.ErrFailedToProcessData)
	}
	perCandidate, ok := counts.Data[0].([]interface{})
	if !ok || len(perCandidate) != len(candidates) {
		return nil, fmt.Errorf("repository: unexpected counts %v: %w", counts.Data[0], models.ErrFailedToProcessData)
	}
	for i, raw := range perCandidate {
		n, err := toUint64(raw)
		if err != nil {
			return nil, err
		}
		candidates[i].VoteCount = n
	}
	return candidates, nil
}

func (r *ElectionRepository) totalVotes(id models.ElectionID) (uint64, error) {
	resp, err := r.db.Eval(totalVotesScript, []interface{}{uint64(id)})
	if err != nil {
		r.l.Debug("failed to count votes", zap.Error(err))
		return 0, fmt.Errorf("repository: database eval error: %w", err)
	}
	r.logResponse(resp)
	if len(resp.Data) == 0 {
		return 0, fmt.Errorf("repository: empty count response: %w", models.ErrFailedToProcessData)
	}
	return toUint64(resp.Data[0])
}

func (r *ElectionRepository) logResponse(resp *tarantool.Response) {
	if resp == nil {
		return
	}
	r.l.Debug("tarantool response",
		zap.Uint32("status_code", resp.Code),
		zap.Any("resp", resp.Data),
		zap.String("error", resp.Error))
}
