package election

import "fmt"

// EpochNotMatch is returned by HandleNominate when the candidate's epoch
// is not greater than this node's current epoch.
type EpochNotMatch struct {
	Expect uint32
	Actual uint32
}

func (e *EpochNotMatch) Error() string {
	return fmt.Sprintf("election: epoch mismatch: expect %d, got %d", e.Expect, e.Actual)
}

// AlreadyVoted is returned by HandleNominate when this node already cast
// its vote for a different candidate in the requested epoch.
type AlreadyVoted struct {
	Nominant string
}

func (e *AlreadyVoted) Error() string {
	return fmt.Sprintf("election: already voted for %s this epoch", e.Nominant)
}
