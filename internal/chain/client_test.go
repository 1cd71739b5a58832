package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", zerolog.Nop(), nil)
}

func word(v int64) string {
	return fmt.Sprintf("%064x", big.NewInt(v))
}

func TestFetchEvents_DecodesIncreaseLog(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("module") != "logs" || q.Get("action") != "getLogs" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("chainid") != "42161" {
			t.Errorf("chainid: got %s", q.Get("chainid"))
		}
		if q.Get("topic1") != "0x"+word(777) {
			t.Errorf("token topic: got %s", q.Get("topic1"))
		}

		// Only the increase query returns a record.
		if q.Get("topic0") != topicIncreaseLiquidity {
			fmt.Fprint(w, `{"status":"0","message":"No records found","result":[]}`)
			return
		}
		fmt.Fprintf(w, `{"status":"1","message":"OK","result":[{
			"topics":["%s","0x%s"],
			"data":"0x%s%s%s",
			"blockNumber":"0x3e8",
			"timeStamp":"0x6553f100",
			"logIndex":"0x2",
			"transactionIndex":"0x5",
			"transactionHash":"0xabc"
		}]}`, topicIncreaseLiquidity, word(777), word(1_000_000), word(5), word(2_000))
	})

	ref := ledger.PositionRef{
		PositionID:         uuid.New(),
		ChainID:            42161,
		ProtocolPositionID: "777",
	}
	events, err := NewEventSource(client).FetchEvents(context.Background(), ref, 100, 2000)
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.Type != ledger.EventTypeIncreasePosition {
		t.Errorf("type: got %s", ev.Type)
	}
	if ev.Coordinate.BlockNumber != 1000 || ev.Coordinate.TransactionIndex != 5 || ev.Coordinate.LogIndex != 2 {
		t.Errorf("coordinate: got %+v", ev.Coordinate)
	}
	if ev.DeltaLiquidity.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("delta liquidity: got %s", ev.DeltaLiquidity)
	}
	if ev.Amount0.Cmp(big.NewInt(5)) != 0 || ev.Amount1.Cmp(big.NewInt(2_000)) != 0 {
		t.Errorf("amounts: got %s / %s", ev.Amount0, ev.Amount1)
	}
	if ev.Timestamp.Unix() != 0x6553f100 {
		t.Errorf("timestamp: got %d", ev.Timestamp.Unix())
	}
}

func TestFetchEvents_CollectSkipsRecipientWord(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("topic0") != topicCollect {
			fmt.Fprint(w, `{"status":"0","message":"No records found","result":[]}`)
			return
		}
		fmt.Fprintf(w, `{"status":"1","message":"OK","result":[{
			"topics":["%s","0x%s"],
			"data":"0x%s%s%s",
			"blockNumber":"0x64",
			"timeStamp":"0x6553f100",
			"logIndex":"0x0",
			"transactionIndex":"0x0",
			"transactionHash":"0xdef"
		}]}`, topicCollect, word(777), word(0xBEEF), word(111), word(222))
	})

	ref := ledger.PositionRef{ChainID: 1, ProtocolPositionID: "777"}
	events, err := NewEventSource(client).FetchEvents(context.Background(), ref, 1, 200)
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.DeltaLiquidity != nil {
		t.Error("collect must carry no liquidity delta")
	}
	if ev.Amount0.Cmp(big.NewInt(111)) != 0 || ev.Amount1.Cmp(big.NewInt(222)) != 0 {
		t.Errorf("amounts: got %s / %s", ev.Amount0, ev.Amount1)
	}
}

func TestLastFinalizedBlock(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("module") != "proxy" || q.Get("action") != "eth_getBlockByNumber" || q.Get("tag") != "finalized" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"number":"0x112a880","timestamp":"0x6553f100"}}`)
	})

	block, err := NewBlockResolver(client).LastFinalizedBlock(context.Background(), 1)
	if err != nil {
		t.Fatalf("LastFinalizedBlock: %v", err)
	}
	if block != 0x112a880 {
		t.Errorf("got %d, want %d", block, 0x112a880)
	}
}

func TestPriceAt(t *testing.T) {
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("action") {
		case "eth_call":
			if q.Get("to") != "0xPool" || q.Get("data") != slot0Selector {
				t.Errorf("unexpected eth_call query: %s", r.URL.RawQuery)
			}
			// slot0 returns seven words; only the first matters here.
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":"0x%064x%s%s%s%s%s%s"}`,
				sqrtPrice, word(100), word(1), word(1), word(1), word(0), word(1))
		case "eth_getBlockByNumber":
			if q.Get("tag") != "0x4d2" {
				t.Errorf("block tag: got %s", q.Get("tag"))
			}
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"number":"0x4d2","timestamp":"0x6553f100"}}`)
		default:
			t.Errorf("unexpected action %s", q.Get("action"))
		}
	})

	price, err := NewPriceProvider(client).PriceAt(context.Background(), 1, "0xPool", 1234)
	if err != nil {
		t.Fatalf("PriceAt: %v", err)
	}
	if price.SqrtPriceX96.Cmp(sqrtPrice) != 0 {
		t.Errorf("sqrt price: got %s", price.SqrtPriceX96)
	}
	if price.Timestamp.Unix() != 0x6553f100 {
		t.Errorf("timestamp: got %d", price.Timestamp.Unix())
	}
}

func TestPriceAt_ZeroPriceRejected(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":"0x%s"}`, word(0))
	})

	if _, err := NewPriceProvider(client).PriceAt(context.Background(), 1, "0xPool", 1); err == nil {
		t.Error("expected error for zero sqrt price")
	}
}

func TestDataWord(t *testing.T) {
	data := "0x" + word(7) + word(8)
	w0, err := dataWord(data, 0)
	if err != nil || w0.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("word 0: got %v %v", w0, err)
	}
	w1, err := dataWord(data, 1)
	if err != nil || w1.Cmp(big.NewInt(8)) != 0 {
		t.Errorf("word 1: got %v %v", w1, err)
	}
	if _, err := dataWord(data, 2); err == nil {
		t.Error("expected error past the last word")
	}
}

func TestTokenIDTopic(t *testing.T) {
	topic, err := tokenIDTopic("255")
	if err != nil {
		t.Fatalf("tokenIDTopic: %v", err)
	}
	want := "0x00000000000000000000000000000000000000000000000000000000000000ff"
	if topic != want {
		t.Errorf("got %s, want %s", topic, want)
	}
	if _, err := tokenIDTopic("not-a-number"); err == nil {
		t.Error("expected error for malformed token id")
	}
}
