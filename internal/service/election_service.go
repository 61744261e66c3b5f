package service

import (
	"errors"
	"fmt"
	"github.com/jaam8/voting_registry/internal/models"
	"github.com/jaam8/voting_registry/pkg/clock"
	"go.uber.org/zap"
	"time"
)

// Store is implemented by the in-memory registry and the Tarantool repository.
type Store interface {
	CreateElection(req models.NewElection, now time.Time) (models.ElectionID, error)
	CastVote(id models.ElectionID, voter string, candidateIndex int, now time.Time) error
	HasVoted(id models.ElectionID, voter string) (bool, error)
	GetCandidates(id models.ElectionID) ([]models.Candidate, error)
	GetElection(id models.ElectionID, now time.Time) (models.ElectionView, error)
	ListElections(now time.Time) ([]models.ElectionView, error)
}

type ElectionService struct {
	store       Store
	clock       clock.Clock
	maxDuration time.Duration
	l           *zap.Logger
}

// New creates the service. A zero maxDuration disables the duration cap.
func New(store Store, c clock.Clock, maxDuration time.Duration, l *zap.Logger) *ElectionService {
	return &ElectionService{
		store:       store,
		clock:       c,
		maxDuration: maxDuration,
		l:           l,
	}
}

func (s *ElectionService) CreateElection(req models.NewElection) (models.ElectionID, error) {
	s.l.Debug("creating election",
		zap.String("title", req.Title),
		zap.String("creator", req.Creator),
		zap.Int("candidates", len(req.Candidates)),
		zap.Duration("duration", req.Duration))
	if s.maxDuration > 0 && req.Duration > s.maxDuration {
		return 0, models.ErrDurationTooLong
	}
	id, err := s.store.CreateElection(req, s.clock.Now())
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			return 0, err
		}
		s.l.Error("failed to create election", zap.Error(err))
		return 0, fmt.Errorf("service: failed to create election: %w", err)
	}
	s.l.Info("election created",
		zap.Uint64("election_id", uint64(id)),
		zap.String("creator", req.Creator))
	return id, nil
}

func (s *ElectionService) CastVote(id models.ElectionID, voter string, candidateIndex int) error {
	err := s.store.CastVote(id, voter, candidateIndex, s.clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return err
		case errors.Is(err, models.ErrVotingClosed):
			return err
		case errors.Is(err, models.ErrAlreadyVoted):
			return err
		case errors.Is(err, models.ErrInvalidCandidate):
			return err
		default:
			s.l.Error("failed to vote", zap.Error(err))
			return fmt.Errorf("service: failed to vote: %w", err)
		}
	}
	s.l.Info("vote cast",
		zap.Uint64("election_id", uint64(id)),
		zap.String("voter", voter),
		zap.Int("candidate_index", candidateIndex))
	return nil
}

func (s *ElectionService) HasVoted(id models.ElectionID, voter string) (bool, error) {
	voted, err := s.store.HasVoted(id, voter)
	if err != nil {
		return false, s.readError("failed to check vote", err)
	}
	return voted, nil
}

func (s *ElectionService) GetCandidates(id models.ElectionID) ([]models.Candidate, error) {
	candidates, err := s.store.GetCandidates(id)
	if err != nil {
		return nil, s.readError("failed to get candidates", err)
	}
	return candidates, nil
}

func (s *ElectionService) GetElection(id models.ElectionID) (models.ElectionView, error) {
	view, err := s.store.GetElection(id, s.clock.Now())
	if err != nil {
		return models.ElectionView{}, s.readError("failed to get election", err)
	}
	return view, nil
}

func (s *ElectionService) ListElections() ([]models.ElectionView, error) {
	views, err := s.store.ListElections(s.clock.Now())
	if err != nil {
		s.l.Error("failed to list elections", zap.Error(err))
		return nil, fmt.Errorf("service: failed to list elections: %w", err)
	}
	return views, nil
}

// ListActive returns the elections that accept votes right now.
func (s *ElectionService) ListActive() ([]models.ElectionView, error) {
	return s.filter(func(v models.ElectionView) bool { return v.IsActive })
}

func (s *ElectionService) ListByCreator(creator string) ([]models.ElectionView, error) {
	return s.filter(func(v models.ElectionView) bool { return v.Creator == creator })
}

// Results reads the view and the tally of one election. The total is recomputed from the
// candidate counts so both halves agree even if a vote lands between the two reads.
func (s *ElectionService) Results(id models.ElectionID) (models.Results, error) {
	view, err := s.GetElection(id)
	if err != nil {
		return models.Results{}, err
	}
	candidates, err := s.GetCandidates(id)
	if err != nil {
		return models.Results{}, err
	}
	view.TotalVotes = 0
	for _, c := range candidates {
		view.TotalVotes += c.VoteCount
	}
	return models.Results{Election: view, Candidates: candidates}, nil
}

func (s *ElectionService) filter(keep func(models.ElectionView) bool) ([]models.ElectionView, error) {
	views, err := s.ListElections()
	if err != nil {
		return nil, err
	}
	filtered := make([]models.ElectionView, 0, len(views))
	for _, v := range views {
		if keep(v) {
			filtered = append(filtered, v)
		}
	}
	return filtered, nil
}

func (s *ElectionService) readError(msg string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return err
	}
	s.l.Error(msg, zap.Error(err))
	return fmt.Errorf("service: %s: %w", msg, err)
}
