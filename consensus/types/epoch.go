package types

import "fmt"

// EpochState is immutable for the life of one epoch: the epoch number and
// the validator verifier that was in effect for it.
type EpochState struct {
	Epoch    Epoch
	Verifier *ValidatorVerifier
}

func (s EpochState) String() string {
	n := 0
	if s.Verifier != nil {
		n = s.Verifier.Len()
	}
	return fmt.Sprintf("EpochState{epoch=%d, validators=%d}", s.Epoch, n)
}

// LedgerInfo is a signed commitment to a committed state root and the
// epoch it concludes. Only the fields the epoch-change path needs are
// modeled here; block execution detail is out of scope.
type LedgerInfo struct {
	Epoch         Epoch
	Round         Round
	CommitRoot    [32]byte
	NextValidator []ValidatorInfo // non-nil exactly for the last ledger info of an epoch
}

// EndsEpoch reports whether this ledger info carries the next epoch's
// validator set, i.e. it is the final commit of its epoch.
func (l LedgerInfo) EndsEpoch() bool {
	return l.NextValidator != nil
}

// EpochChangeProof is a sequence of signed ledger-info records linking
// consecutive epochs, verifiable against the verifier of the epoch the
// caller is currently in.
type EpochChangeProof struct {
	LedgerInfos []LedgerInfo
}

// FirstEpoch returns the epoch of the first ledger info in the proof.
func (p EpochChangeProof) FirstEpoch() (Epoch, bool) {
	if len(p.LedgerInfos) == 0 {
		return 0, false
	}
	return p.LedgerInfos[0].Epoch, true
}

// Verify checks the proof's internal linkage starting from the caller's
// current epoch: the first entry's epoch must equal current.Epoch, epochs
// must be consecutive, every entry but the last must end its epoch (so it
// carries the verifier for the next link), and the proof must not be empty.
// No signatures are checked: LedgerInfo carries none.
// It returns the final ledger info, which is what start_new_epoch drives
// sync_to with.
func (p EpochChangeProof) Verify(current EpochState) (LedgerInfo, error) {
	if len(p.LedgerInfos) == 0 {
		return LedgerInfo{}, fmt.Errorf("types: empty epoch change proof")
	}
	if p.LedgerInfos[0].Epoch != current.Epoch {
		return LedgerInfo{}, fmt.Errorf("types: epoch change proof starts at %d, want %d", p.LedgerInfos[0].Epoch, current.Epoch)
	}
	verifier := current.Verifier
	for i, li := range p.LedgerInfos {
		if i > 0 && li.Epoch != p.LedgerInfos[i-1].Epoch+1 {
			return LedgerInfo{}, fmt.Errorf("types: epoch change proof has a gap at index %d", i)
		}
		isLast := i == len(p.LedgerInfos)-1
		if !isLast && !li.EndsEpoch() {
			return LedgerInfo{}, fmt.Errorf("types: epoch change proof entry %d does not end its epoch", i)
		}
		if !isLast {
			verifier = NewValidatorVerifier(li.NextValidator)
		}
	}
	last := p.LedgerInfos[len(p.LedgerInfos)-1]
	_ = verifier // not used for any signature check
	return last, nil
}
