package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
)

// ComputeInputHash derives the idempotency key for a raw event:
// SHA-256 over the protocol, owning position, event type and blockchain
// coordinates. Two fetches of the same on-chain event always hash
// identically, so replays are detected regardless of which source
// delivered the event.
func ComputeInputHash(protocol string, positionID uuid.UUID, raw RawEvent) string {
	h := sha256.New()

	h.Write([]byte(protocol))
	h.Write(positionID[:])

	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(raw.Type))
	h.Write(buf[:4])

	binary.LittleEndian.PutUint64(buf[:], raw.Coordinate.BlockNumber)
	h.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:4], raw.Coordinate.TransactionIndex)
	h.Write(buf[:4])
	binary.LittleEndian.PutUint32(buf[:4], raw.Coordinate.LogIndex)
	h.Write(buf[:4])

	h.Write([]byte(raw.TransactionHash))

	return hex.EncodeToString(h.Sum(nil))
}
