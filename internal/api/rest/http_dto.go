package rest

import "github.com/jaam8/voting_registry/internal/models"

type createElectionRequest struct {
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	Candidates      []models.CandidateSpec `json:"candidates"`
	DurationSeconds int64                  `json:"duration_seconds"`
}

type createElectionResponse struct {
	ID models.ElectionID `json:"id"`
}

type castVoteRequest struct {
	// pointer so that a missing index is not read as candidate 0
	CandidateIndex *int `json:"candidate_index"`
}

type hasVotedResponse struct {
	ElectionID models.ElectionID `json:"election_id"`
	Voter      string            `json:"voter"`
	Voted      bool              `json:"voted"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
