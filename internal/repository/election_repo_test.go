package repository

import (
	"errors"
	"fmt"
	"github.com/jaam8/voting_registry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarantool/go-tarantool"
	"go.uber.org/zap"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeConn keeps the three spaces in memory and answers the repository's Lua scripts.
type fakeConn struct {
	mu         sync.Mutex
	lastID     uint64
	elections  []interface{}
	candidates map[uint64][]interface{}
	votes      map[uint64]map[string][]interface{}

	// hideVotes makes vote lookups miss while the unique index still rejects duplicates,
	// as when a concurrent vote lands between the check and the insert.
	hideVotes  bool
	insertErr  error
	lastInsert []interface{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		candidates: make(map[uint64][]interface{}),
		votes:      make(map[uint64]map[string][]interface{}),
	}
}

func response(data ...interface{}) *tarantool.Response {
	return &tarantool.Response{Data: data}
}

func (f *fakeConn) Select(space, _ interface{}, _, _, _ uint32, key interface{}) (*tarantool.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key.([]interface{})
	switch space {
	case "elections":
		if len(k) == 0 {
			return response(f.elections...), nil
		}
		for _, e := range f.elections {
			if e.([]interface{})[0] == k[0] {
				return response(e), nil
			}
		}
		return response(), nil
	case "candidates":
		// reversed, the repository places candidates by their stored index
		rows := f.candidates[k[0].(uint64)]
		reversed := make([]interface{}, 0, len(rows))
		for i := len(rows) - 1; i >= 0; i-- {
			reversed = append(reversed, rows[i])
		}
		return response(reversed...), nil
	case "votes":
		if f.hideVotes {
			return response(), nil
		}
		if v, ok := f.votes[k[0].(uint64)][k[1].(string)]; ok {
			return response(v), nil
		}
		return response(), nil
	}
	return nil, fmt.Errorf("unknown space %v", space)
}

func (f *fakeConn) Insert(space interface{}, tuple interface{}) (*tarantool.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if space != "votes" {
		return nil, fmt.Errorf("unexpected insert into %v", space)
	}
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	t := tuple.([]interface{})
	f.lastInsert = t
	id, voter := t[0].(uint64), t[1].(string)
	if _, ok := f.votes[id][voter]; ok {
		msg := "Duplicate key exists in unique index 'primary' in space 'votes'"
		return &tarantool.Response{Code: tarantool.ErrTupleFound, Error: msg},
			tarantool.Error{Code: tarantool.ErrTupleFound, Msg: msg}
	}
	if f.votes[id] == nil {
		f.votes[id] = make(map[string][]interface{})
	}
	f.votes[id][voter] = t
	return response(t), nil
}

func (f *fakeConn) Eval(expr string, args interface{}) (*tarantool.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := args.([]interface{})
	switch expr {
	case createElectionScript:
		f.lastID++
		id := f.lastID
		candidates := a[5].([]interface{})
		f.elections = append(f.elections, []interface{}{id, a[0], a[1], a[2], a[3], a[4], uint64(len(candidates))})
		for i, c := range candidates {
			pair := c.([]interface{})
			f.candidates[id] = append(f.candidates[id], []interface{}{id, uint64(i), pair[0], pair[1]})
		}
		return response(id), nil
	case candidateCountsScript:
		id, n := a[0].(uint64), a[1].(int)
		counts := make([]uint64, n)
		for _, v := range f.votes[id] {
			counts[v[2].(uint64)]++
		}
		out := make([]interface{}, n)
		for i, c := range counts {
			out[i] = c
		}
		return response(out), nil
	case totalVotesScript:
		return response(uint64(len(f.votes[a[0].(uint64)]))), nil
	}
	return nil, fmt.Errorf("unexpected script %q", expr)
}

func newTestRepository(t *testing.T) (*ElectionRepository, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	return New(conn, zap.NewNop()), conn
}

func ballot(names ...string) models.NewElection {
	specs := make([]models.CandidateSpec, len(names))
	for i, n := range names {
		specs[i] = models.CandidateSpec{Name: n, Description: "about " + n}
	}
	return models.NewElection{
		Title:      "Representative",
		Candidates: specs,
		Duration:   time.Minute,
		Creator:    "creator",
	}
}

func TestRepositoryVotingFlow(t *testing.T) {
	r, _ := newTestRepository(t)
	id, err := r.CreateElection(ballot("Alice", "Bob", "Carol"), t0)
	require.NoError(t, err)
	assert.Equal(t, models.ElectionID(1), id)

	now := t0.Add(time.Second)
	require.NoError(t, r.CastVote(id, "A", 2, now))
	require.NoError(t, r.CastVote(id, "B", 0, now))
	require.NoError(t, r.CastVote(id, "C", 2, now))

	candidates, err := r.GetCandidates(id)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	for i, want := range []struct {
		name  string
		count uint64
	}{{"Alice", 1}, {"Bob", 0}, {"Carol", 2}} {
		assert.Equal(t, i, candidates[i].Index)
		assert.Equal(t, want.name, candidates[i].Name)
		assert.Equal(t, "about "+want.name, candidates[i].Description)
		assert.Equal(t, want.count, candidates[i].VoteCount)
	}

	view, err := r.GetElection(id, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), view.TotalVotes)
	assert.Equal(t, 3, view.CandidateCount)
	assert.True(t, view.IsActive)
	assert.True(t, t0.Equal(view.StartTime))
	assert.True(t, t0.Add(time.Minute).Equal(view.EndTime))

	voted, err := r.HasVoted(id, "A")
	require.NoError(t, err)
	assert.True(t, voted)
	voted, err = r.HasVoted(id, "D")
	require.NoError(t, err)
	assert.False(t, voted)

	_, err = r.HasVoted(id+1, "A")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRepositoryCastVotePrecedence(t *testing.T) {
	r, conn := newTestRepository(t)
	id, err := r.CreateElection(ballot("Alice", "Bob"), t0)
	require.NoError(t, err)
	require.NoError(t, r.CastVote(id, "A", 0, t0))

	open := t0.Add(30 * time.Second)
	closed := t0.Add(time.Minute)

	assert.ErrorIs(t, r.CastVote(id+1, "A", 7, closed), models.ErrNotFound)
	assert.ErrorIs(t, r.CastVote(id, "A", 7, closed), models.ErrVotingClosed)
	assert.ErrorIs(t, r.CastVote(id, "B", 0, closed), models.ErrVotingClosed)
	assert.ErrorIs(t, r.CastVote(id, "B", 0, t0.Add(-time.Second)), models.ErrVotingClosed)
	assert.ErrorIs(t, r.CastVote(id, "A", 7, open), models.ErrAlreadyVoted)
	assert.ErrorIs(t, r.CastVote(id, "B", 2, open), models.ErrInvalidCandidate)
	assert.ErrorIs(t, r.CastVote(id, "B", -1, open), models.ErrInvalidCandidate)

	assert.Len(t, conn.votes[uint64(id)], 1)
}

func TestRepositoryDuplicateKeyIsAlreadyVoted(t *testing.T) {
	r, conn := newTestRepository(t)
	id, err := r.CreateElection(ballot("Alice", "Bob"), t0)
	require.NoError(t, err)
	require.NoError(t, r.CastVote(id, "A", 0, t0))

	conn.hideVotes = true
	err = r.CastVote(id, "A", 1, t0)
	assert.ErrorIs(t, err, models.ErrAlreadyVoted)

	candidates, err := r.GetCandidates(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), candidates[0].VoteCount)
	assert.Equal(t, uint64(0), candidates[1].VoteCount)
}

func TestRepositoryInsertFailureIsWrapped(t *testing.T) {
	r, conn := newTestRepository(t)
	id, err := r.CreateElection(ballot("Alice", "Bob"), t0)
	require.NoError(t, err)

	lost := errors.New("connection lost")
	conn.insertErr = lost
	err = r.CastVote(id, "A", 0, t0)
	assert.ErrorIs(t, err, lost)
	assert.NotErrorIs(t, err, models.ErrAlreadyVoted)
}

func TestRepositoryRejectsInvalidElection(t *testing.T) {
	r, conn := newTestRepository(t)
	_, err := r.CreateElection(ballot("Alice"), t0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Empty(t, conn.elections)

	views, err := r.ListElections(t0)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestRepositoryStoresLongWindows(t *testing.T) {
	r, conn := newTestRepository(t)
	req := ballot("Alice", "Bob")
	req.Duration = 250 * 365 * 24 * time.Hour
	id, err := r.CreateElection(req, t0)
	require.NoError(t, err)

	view, err := r.GetElection(id, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, view.IsActive)
	assert.True(t, t0.Add(req.Duration).Equal(view.EndTime))

	require.NoError(t, r.CastVote(id, "A", 1, t0.Add(time.Hour)))
	assert.Equal(t, t0.Add(time.Hour).UnixMilli(), conn.lastInsert[3])
}

func TestRepositoryListElections(t *testing.T) {
	r, _ := newTestRepository(t)
	short := ballot("Alice", "Bob")
	short.Duration = 10 * time.Second
	first, err := r.CreateElection(short, t0)
	require.NoError(t, err)
	second, err := r.CreateElection(ballot("Carol", "Dave"), t0)
	require.NoError(t, err)
	require.NoError(t, r.CastVote(second, "A", 1, t0))

	views, err := r.ListElections(t0.Add(20 * time.Second))
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, first, views[0].ID)
	assert.Equal(t, models.StatusClosed, views[0].Status)
	assert.Equal(t, second, views[1].ID)
	assert.True(t, views[1].IsActive)
	assert.Equal(t, uint64(1), views[1].TotalVotes)
}
