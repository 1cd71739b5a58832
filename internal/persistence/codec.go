package persistence

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

// Big integers cross the SQL boundary as NUMERIC(78,0) scanned through
// strings, and the JSON boundary as decimal strings. Conversions live
// here and nowhere else; business logic only ever sees *big.Int.

func bigToSQL(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bigFromSQL(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("scan numeric %q: not a decimal integer", s)
	}
	return v, nil
}

// rewardJSON is the stored shape of one COLLECT reward.
type rewardJSON struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Value  string `json:"value"`
}

func encodeRewards(rewards []ledger.Reward) ([]byte, error) {
	out := make([]rewardJSON, 0, len(rewards))
	for _, r := range rewards {
		out = append(out, rewardJSON{Token: r.Token, Amount: bigToSQL(r.Amount), Value: bigToSQL(r.Value)})
	}
	return json.Marshal(out)
}

func decodeRewards(data []byte) ([]ledger.Reward, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var in []rewardJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode rewards: %w", err)
	}
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]ledger.Reward, 0, len(in))
	for _, r := range in {
		amount, err := bigFromSQL(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("decode reward amount: %w", err)
		}
		value, err := bigFromSQL(r.Value)
		if err != nil {
			return nil, fmt.Errorf("decode reward value: %w", err)
		}
		out = append(out, ledger.Reward{Token: r.Token, Amount: amount, Value: value})
	}
	return out, nil
}

// rawEventJSON is the stored shape of a buffered missing event.
type rawEventJSON struct {
	Type            string `json:"type"`
	BlockNumber     uint64 `json:"blockNumber"`
	TxIndex         uint32 `json:"txIndex"`
	LogIndex        uint32 `json:"logIndex"`
	TransactionHash string `json:"txHash"`
	TimestampUnix   int64  `json:"timestamp"`
	DeltaLiquidity  string `json:"deltaLiquidity,omitempty"`
	Amount0         string `json:"amount0"`
	Amount1         string `json:"amount1"`
	StateSnapshot   []byte `json:"stateSnapshot,omitempty"`
}

func encodeRawEvents(events []ledger.RawEvent) ([]byte, error) {
	out := make([]rawEventJSON, 0, len(events))
	for _, ev := range events {
		j := rawEventJSON{
			Type:            ev.Type.String(),
			BlockNumber:     ev.Coordinate.BlockNumber,
			TxIndex:         ev.Coordinate.TransactionIndex,
			LogIndex:        ev.Coordinate.LogIndex,
			TransactionHash: ev.TransactionHash,
			TimestampUnix:   ev.Timestamp.Unix(),
			Amount0:         bigToSQL(ev.Amount0),
			Amount1:         bigToSQL(ev.Amount1),
			StateSnapshot:   ev.StateSnapshot,
		}
		if ev.DeltaLiquidity != nil {
			j.DeltaLiquidity = ev.DeltaLiquidity.String()
		}
		out = append(out, j)
	}
	return json.Marshal(out)
}

func decodeRawEvents(data []byte) ([]ledger.RawEvent, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var in []rawEventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode buffered events: %w", err)
	}
	out := make([]ledger.RawEvent, 0, len(in))
	for _, j := range in {
		ev := ledger.RawEvent{
			Type: eventTypeFromString(j.Type),
			Coordinate: ledger.Coordinate{
				BlockNumber:      j.BlockNumber,
				TransactionIndex: j.TxIndex,
				LogIndex:         j.LogIndex,
			},
			TransactionHash: j.TransactionHash,
			Timestamp:       time.Unix(j.TimestampUnix, 0).UTC(),
			StateSnapshot:   j.StateSnapshot,
		}
		var err error
		if ev.Amount0, err = bigFromSQL(j.Amount0); err != nil {
			return nil, err
		}
		if ev.Amount1, err = bigFromSQL(j.Amount1); err != nil {
			return nil, err
		}
		if j.DeltaLiquidity != "" {
			if ev.DeltaLiquidity, err = bigFromSQL(j.DeltaLiquidity); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func eventTypeFromString(s string) ledger.EventType {
	switch s {
	case "INCREASE_POSITION":
		return ledger.EventTypeIncreasePosition
	case "DECREASE_POSITION":
		return ledger.EventTypeDecreasePosition
	case "COLLECT":
		return ledger.EventTypeCollect
	default:
		return ledger.EventTypeUnknown
	}
}
