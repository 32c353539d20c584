package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// ValidatorInfo is one validator's voting power and public key within a
// ValidatorVerifier.
type ValidatorInfo struct {
	Author      Author
	VotingPower uint64
	PublicKey   []byte // uncompressed secp256k1 public key
}

// ValidatorVerifier resolves authors to voting power and keys, computes the
// quorum threshold and exposes the canonical author ordering leader
// rotation is derived from. It is immutable for the life of one EpochState.
type ValidatorVerifier struct {
	ordered []Author
	byAuth  map[Author]ValidatorInfo
	total   uint64
}

// NewValidatorVerifier builds a verifier from an explicit author order. The
// order is the canonical source other components (proposer election,
// leader reputation) key off of, so it is taken as given rather than sorted.
func NewValidatorVerifier(infos []ValidatorInfo) *ValidatorVerifier {
	v := &ValidatorVerifier{
		ordered: make([]Author, 0, len(infos)),
		byAuth:  make(map[Author]ValidatorInfo, len(infos)),
	}
	for _, info := range infos {
		v.ordered = append(v.ordered, info.Author)
		v.byAuth[info.Author] = info
		v.total += info.VotingPower
	}
	return v
}

// Len returns the number of validators in the set.
func (v *ValidatorVerifier) Len() int {
	return len(v.ordered)
}

// OrderedAuthors returns the canonical author ordering. The returned slice
// must not be mutated by callers.
func (v *ValidatorVerifier) OrderedAuthors() []Author {
	return v.ordered
}

// VotingPower returns the voting power for author, or 0 if it is not a
// member of this validator set.
func (v *ValidatorVerifier) VotingPower(author Author) uint64 {
	return v.byAuth[author].VotingPower
}

// TotalVotingPower returns the sum of voting power across the set.
func (v *ValidatorVerifier) TotalVotingPower() uint64 {
	return v.total
}

// QuorumVotingPower returns the minimal voting power that constitutes a
// Byzantine quorum: strictly more than 2/3 of the total.
func (v *ValidatorVerifier) QuorumVotingPower() uint64 {
	return v.total*2/3 + 1
}

// Contains reports whether author is a member of this validator set.
func (v *ValidatorVerifier) Contains(author Author) bool {
	_, ok := v.byAuth[author]
	return ok
}

// VerifySignature checks sig (65-byte [R || S || V] recoverable signature)
// against author's registered public key over digest.
func (v *ValidatorVerifier) VerifySignature(author Author, digest, sig []byte) error {
	info, ok := v.byAuth[author]
	if !ok {
		return fmt.Errorf("types: unknown validator %s", author)
	}
	if len(sig) < 64 {
		return fmt.Errorf("types: signature too short for %s", author)
	}
	if !crypto.VerifySignature(info.PublicKey, digest, sig[:64]) {
		return fmt.Errorf("types: signature verification failed for %s", author)
	}
	return nil
}
