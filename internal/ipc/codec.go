package ipc

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/torosent/pipebench/internal/metrics"
)

// Message fields.
const (
	fieldKind   protowire.Number = 1
	fieldResult protowire.Number = 2
)

// Accumulator fields.
const (
	fieldRequests protowire.Number = 1
	fieldErrors   protowire.Number = 2
	fieldStatus   protowire.Number = 3
	fieldTotalNs  protowire.Number = 4
	fieldMinNs    protowire.Number = 5
	fieldMaxNs    protowire.Number = 6
	fieldBar      protowire.Number = 7
)

// Pair fields shared by status entries and histogram bars.
const (
	fieldPairKey   protowire.Number = 1
	fieldPairValue protowire.Number = 2
)

// Encode serializes m into its payload form (without the length prefix).
func Encode(m Message) ([]byte, error) {
	if m.Kind > KindWillExit {
		return nil, fmt.Errorf("encode: unknown message kind %d", m.Kind)
	}
	b := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind))
	if m.Kind == KindResult {
		if m.Result == nil {
			return nil, errors.New("encode: result message without accumulator")
		}
		b = protowire.AppendTag(b, fieldResult, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeAccumulator(m.Result))
	}
	return b, nil
}

// Decode parses a payload produced by Encode. Unknown fields are skipped.
func Decode(b []byte) (Message, error) {
	var (
		msg     Message
		hasKind bool
		result  []byte
	)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		switch {
		case num == fieldKind && typ == protowire.VarintType:
			if u > uint64(KindWillExit) {
				return fmt.Errorf("unknown message kind %d", u)
			}
			msg.Kind = Kind(u)
			hasKind = true
		case num == fieldResult && typ == protowire.BytesType:
			result = v
		}
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	if !hasKind {
		return Message{}, errors.New("message kind missing")
	}
	if msg.Kind == KindResult {
		if result == nil {
			return Message{}, errors.New("result message without accumulator")
		}
		acc, err := decodeAccumulator(result)
		if err != nil {
			return Message{}, fmt.Errorf("accumulator: %w", err)
		}
		msg.Result = acc
	}
	return msg, nil
}

func encodeAccumulator(acc *metrics.Accumulator) []byte {
	var b []byte
	b = appendVarintField(b, fieldRequests, acc.Requests())
	b = appendVarintField(b, fieldErrors, acc.Errors())
	for _, row := range acc.StatusRows() {
		b = protowire.AppendTag(b, fieldStatus, protowire.BytesType)
		b = protowire.AppendBytes(b, appendPair(nil, protowire.EncodeZigZag(int64(row.Code)), row.Count))
	}
	b = appendVarintField(b, fieldTotalNs, uint64(acc.TotalLatency()))
	b = appendVarintField(b, fieldMinNs, uint64(acc.MinLatency()))
	b = appendVarintField(b, fieldMaxNs, uint64(acc.MaxLatency()))
	for _, bar := range acc.HistogramBars() {
		b = protowire.AppendTag(b, fieldBar, protowire.BytesType)
		b = protowire.AppendBytes(b, appendPair(nil, uint64(bar.ValueUs), uint64(bar.Count)))
	}
	return b
}

func decodeAccumulator(b []byte) (*metrics.Accumulator, error) {
	var (
		requests, errs    uint64
		total, minL, maxL time.Duration
		statuses          = make(map[int]uint64)
		bars              []metrics.HistogramBar
	)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		switch typ {
		case protowire.VarintType:
			switch num {
			case fieldRequests:
				requests = u
			case fieldErrors:
				errs = u
			case fieldTotalNs:
				total = toDuration(u)
			case fieldMinNs:
				minL = toDuration(u)
			case fieldMaxNs:
				maxL = toDuration(u)
			}
		case protowire.BytesType:
			switch num {
			case fieldStatus:
				code, count, err := consumePair(v)
				if err != nil {
					return fmt.Errorf("status entry: %w", err)
				}
				statuses[int(protowire.DecodeZigZag(code))] += count
			case fieldBar:
				value, count, err := consumePair(v)
				if err != nil {
					return fmt.Errorf("histogram bar: %w", err)
				}
				if value > math.MaxInt64 || count > math.MaxInt64 {
					return errors.New("histogram bar out of range")
				}
				bars = append(bars, metrics.HistogramBar{ValueUs: int64(value), Count: int64(count)})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if errs > requests {
		return nil, fmt.Errorf("error count %d exceeds request count %d", errs, requests)
	}
	return metrics.Restore(requests, errs, statuses, total, minL, maxL, bars), nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendPair(b []byte, key, value uint64) []byte {
	b = appendVarintField(b, fieldPairKey, key)
	return appendVarintField(b, fieldPairValue, value)
}

func consumePair(b []byte) (key, value uint64, err error) {
	err = walkFields(b, func(num protowire.Number, typ protowire.Type, _ []byte, u uint64) error {
		if typ != protowire.VarintType {
			return nil
		}
		switch num {
		case fieldPairKey:
			key = u
		case fieldPairValue:
			value = u
		}
		return nil
	})
	return key, value, err
}

// walkFields visits every field in b. Varint fields report their value in u,
// length-delimited fields their bytes in v; other wire types are skipped.
func walkFields(b []byte, visit func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			u, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := visit(num, typ, nil, u); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := visit(num, typ, v, 0); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func toDuration(u uint64) time.Duration {
	if u > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(u)
}
