package registry

import (
	"cmp"
	"fmt"
	"github.com/jaam8/voting_registry/internal/models"
	"go.uber.org/zap"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Registry keeps elections in memory. The table lock only guards the id -> election map;
// every vote is serialized by the lock of its own election.
type Registry struct {
	mu        sync.RWMutex
	elections map[models.ElectionID]*election
	lastID    atomic.Uint64
	l         *zap.Logger
}

type election struct {
	mu    sync.RWMutex
	data  models.Election
	votes map[string]models.VoteRecord
}

func New(l *zap.Logger) *Registry {
	return &Registry{
		elections: make(map[models.ElectionID]*election),
		l:         l,
	}
}

func (r *Registry) CreateElection(req models.NewElection, now time.Time) (models.ElectionID, error) {
	if err := req.Validate(); err != nil {
		r.l.Debug("invalid election request", zap.Error(err))
		return 0, err
	}
	id := models.ElectionID(r.lastID.Add(1))
	e := &election{
		data:  req.Build(id, now),
		votes: make(map[string]models.VoteRecord),
	}

	r.mu.Lock()
	r.elections[id] = e
	r.mu.Unlock()

	r.l.Debug("election created",
		zap.Uint64("election_id", uint64(id)),
		zap.String("creator", req.Creator),
		zap.Int("candidates", len(req.Candidates)),
		zap.Time("end_time", e.data.EndTime))
	return id, nil
}

// CastVote checks the window, the voter and the candidate in that order and records the
// vote under the election's exclusive lock.
func (r *Registry) CastVote(id models.ElectionID, voter string, candidateIndex int, now time.Time) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if models.StatusAt(e.data.StartTime, e.data.EndTime, now) != models.StatusOpen {
		r.l.Debug("election is not open", zap.Uint64("election_id", uint64(id)))
		return models.ErrVotingClosed
	}
	if _, ok := e.votes[voter]; ok {
		r.l.Debug("vote already exist",
			zap.Uint64("election_id", uint64(id)),
			zap.String("voter", voter))
		return models.ErrAlreadyVoted
	}
	if candidateIndex < 0 || candidateIndex >= len(e.data.Candidates) {
		r.l.Debug("candidate not found",
			zap.Uint64("election_id", uint64(id)),
			zap.Int("candidate_index", candidateIndex))
		return models.ErrInvalidCandidate
	}

	e.votes[voter] = models.VoteRecord{
		ElectionID:     id,
		Voter:          voter,
		CandidateIndex: candidateIndex,
		Timestamp:      now,
	}
	e.data.Candidates[candidateIndex].VoteCount++
	e.data.TotalVotes++
	return nil
}

func (r *Registry) HasVoted(id models.ElectionID, voter string) (bool, error) {
	e, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.votes[voter]
	return ok, nil
}

// GetCandidates returns a copy of the ballot in creation order.
func (r *Registry) GetCandidates(id models.ElectionID) ([]models.Candidate, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.data.Candidates), nil
}

func (r *Registry) GetElection(id models.ElectionID, now time.Time) (models.ElectionView, error) {
	e, err := r.lookup(id)
	if err != nil {
		return models.ElectionView{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.data.View(now), nil
}

// ListElections never fails; the error is part of the store contract.
func (r *Registry) ListElections(now time.Time) ([]models.ElectionView, error) {
	r.mu.RLock()
	all := make([]*election, 0, len(r.elections))
	for _, e := range r.elections {
		all = append(all, e)
	}
	r.mu.RUnlock()

	views := make([]models.ElectionView, 0, len(all))
	for _, e := range all {
		e.mu.RLock()
		views = append(views, e.data.View(now))
		e.mu.RUnlock()
	}
	slices.SortFunc(views, func(a, b models.ElectionView) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return views, nil
}

// Votes returns the raw records of one election for inspection and consistency checks.
func (r *Registry) Votes(id models.ElectionID) ([]models.VoteRecord, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	records := make([]models.VoteRecord, 0, len(e.votes))
	for _, v := range e.votes {
		records = append(records, v)
	}
	return records, nil
}

func (r *Registry) lookup(id models.ElectionID) (*election, error) {
	r.mu.RLock()
	e, ok := r.elections[id]
	r.mu.RUnlock()
	if !ok {
		r.l.Debug("election not found", zap.Uint64("election_id", uint64(id)))
		return nil, fmt.Errorf("registry: election %d: %w", id, models.ErrNotFound)
	}
	return e, nil
}
