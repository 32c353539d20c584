package types

import (
	"crypto/sha256"
	"encoding/binary"
)

func writeUint64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

// VoteDigest returns the canonical digest a Vote's signature covers: the
// fields a forged vote would need to reproduce to be accepted toward a
// quorum cert.
func VoteDigest(msgEpoch Epoch, v Vote) [32]byte {
	h := sha256.New()
	h.Write([]byte{byte(KindVote)})
	writeUint64(h, msgEpoch)
	writeUint64(h, v.Round)
	h.Write(v.BlockHash[:])
	h.Write(v.Author[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ProposalDigest returns the canonical digest a proposal envelope's
// signature covers.
func ProposalDigest(p ProposalMsg) [32]byte {
	h := sha256.New()
	h.Write([]byte{byte(KindProposal)})
	writeUint64(h, p.Epoch)
	writeUint64(h, p.Round)
	h.Write(p.Block.Hash[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SyncInfoDigest returns the canonical digest a standalone sync-info
// envelope's signature covers.
func SyncInfoDigest(s SyncInfo) [32]byte {
	h := sha256.New()
	h.Write([]byte{byte(KindSyncInfo)})
	writeUint64(h, s.Epoch)
	h.Write(s.HighestQC.BlockHash[:])
	writeUint64(h, s.HighestQC.Round)
	h.Write(s.HighestCommit.BlockHash[:])
	writeUint64(h, s.HighestCommit.Round)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
