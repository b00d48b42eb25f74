package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestLogRecordJSONRoundTrip(t *testing.T) {
	original := LogRecord{
		ChainID:     1,
		BlockNumber: 19000000,
		BlockHash:   "0xabc123",
		TxHash:      "0xDEF456",
		TxIndex:     7,
		LogIndex:    12,
		Address:     "0x1111111111111111111111111111111111111111",
		Topics:      []string{"0xaaa", "0xbbb"},
		Data:        "0xdeadbeef",
		Timestamp:   1700000000,
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded LogRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
	if decoded.ID() != "1:0xdef456:12" {
		t.Fatalf("id mismatch: %s", decoded.ID())
	}
}

func TestNewDecodeError(t *testing.T) {
	rec := LogRecord{ChainID: 1, TxHash: "0x1", LogIndex: 2, Address: "0xpool"}
	de := NewDecodeError(rec, errors.New("boom"))
	if de.Topic0 != "" || de.Error != "boom" || de.Address != "0xpool" {
		t.Fatalf("unexpected decode error: %+v", de)
	}

	rec.Topics = []string{"0xtopic"}
	if NewDecodeError(rec, errors.New("x")).Topic0 != "0xtopic" {
		t.Fatalf("topic0 not copied")
	}
}
