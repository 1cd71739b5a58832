package chain

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

// PositionManager is the Uniswap v3 NonfungiblePositionManager, deployed
// at the same address on every supported chain.
const PositionManager = "0xC36442b4a4522E871399CD717aBDD847Ab11FE88"

// Event signature topics on the position manager.
const (
	topicIncreaseLiquidity = "0x3067048beee31b25b2f1681f88dac838c8bba36af25bfb2b7cf7473a5847e35f"
	topicDecreaseLiquidity = "0x26f6a048ee9138f2c0ce266f322cb99228e8d619ae2bff30c67f8dcf9d2377b4"
	topicCollect           = "0x40d0efd1a53d60ecbf40971b9daf7dc90178c3aadc7aab1765632738fa8b8f01"
)

// logEntry is one explorer getLogs record.
type logEntry struct {
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	BlockNumber      string   `json:"blockNumber"`
	TimeStamp        string   `json:"timeStamp"`
	LogIndex         string   `json:"logIndex"`
	TransactionIndex string   `json:"transactionIndex"`
	TransactionHash  string   `json:"transactionHash"`
}

// EventSource fetches a position's liquidity events from the position
// manager's logs, filtered by the token id topic.
type EventSource struct {
	client *Client
}

func NewEventSource(client *Client) *EventSource {
	return &EventSource{client: client}
}

func (s *EventSource) FetchEvents(ctx context.Context, ref ledger.PositionRef, fromBlock, toBlock uint64) ([]ledger.RawEvent, error) {
	tokenTopic, err := tokenIDTopic(ref.ProtocolPositionID)
	if err != nil {
		return nil, err
	}

	kinds := []struct {
		topic string
		typ   ledger.EventType
	}{
		{topicIncreaseLiquidity, ledger.EventTypeIncreasePosition},
		{topicDecreaseLiquidity, ledger.EventTypeDecreasePosition},
		{topicCollect, ledger.EventTypeCollect},
	}

	var out []ledger.RawEvent
	for _, kind := range kinds {
		params := url.Values{}
		params.Set("module", "logs")
		params.Set("action", "getLogs")
		params.Set("address", PositionManager)
		params.Set("fromBlock", strconv.FormatUint(fromBlock, 10))
		params.Set("toBlock", strconv.FormatUint(toBlock, 10))
		params.Set("topic0", kind.topic)
		params.Set("topic0_1_opr", "and")
		params.Set("topic1", tokenTopic)

		var logs []logEntry
		if err := s.client.list(ctx, "get_logs", ref.ChainID, params, &logs); err != nil {
			return nil, err
		}

		for _, entry := range logs {
			raw, err := decodeLog(kind.typ, entry)
			if err != nil {
				return nil, fmt.Errorf("position %s: %w", ref.PositionID, err)
			}
			out = append(out, raw)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Coordinate.Before(out[j].Coordinate)
	})
	return out, nil
}

func decodeLog(typ ledger.EventType, entry logEntry) (ledger.RawEvent, error) {
	block, err := parseHexUint64(entry.BlockNumber)
	if err != nil {
		return ledger.RawEvent{}, err
	}
	ts, err := parseHexUint64(entry.TimeStamp)
	if err != nil {
		return ledger.RawEvent{}, err
	}
	txIdx, err := parseHexUint64(entry.TransactionIndex)
	if err != nil {
		return ledger.RawEvent{}, err
	}
	logIdx, err := parseHexUint64(entry.LogIndex)
	if err != nil {
		return ledger.RawEvent{}, err
	}

	raw := ledger.RawEvent{
		Type: typ,
		Coordinate: ledger.Coordinate{
			BlockNumber:      block,
			TransactionIndex: uint32(txIdx),
			LogIndex:         uint32(logIdx),
		},
		TransactionHash: entry.TransactionHash,
		Timestamp:       time.Unix(int64(ts), 0).UTC(),
	}

	// IncreaseLiquidity / DecreaseLiquidity data: (liquidity, amount0,
	// amount1). Collect data: (recipient, amount0, amount1).
	switch typ {
	case ledger.EventTypeIncreasePosition, ledger.EventTypeDecreasePosition:
		if raw.DeltaLiquidity, err = dataWord(entry.Data, 0); err != nil {
			return ledger.RawEvent{}, err
		}
		if raw.Amount0, err = dataWord(entry.Data, 1); err != nil {
			return ledger.RawEvent{}, err
		}
		if raw.Amount1, err = dataWord(entry.Data, 2); err != nil {
			return ledger.RawEvent{}, err
		}
	case ledger.EventTypeCollect:
		if raw.Amount0, err = dataWord(entry.Data, 1); err != nil {
			return ledger.RawEvent{}, err
		}
		if raw.Amount1, err = dataWord(entry.Data, 2); err != nil {
			return ledger.RawEvent{}, err
		}
	default:
		return ledger.RawEvent{}, fmt.Errorf("undecodable event type %s", typ)
	}
	return raw, nil
}

// tokenIDTopic left-pads a decimal token id into a 32-byte topic value.
func tokenIDTopic(protocolPositionID string) (string, error) {
	id, err := parseDecimalBig(protocolPositionID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%064x", id), nil
}
