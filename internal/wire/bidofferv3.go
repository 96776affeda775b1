// Package wire decodes the BidOfferV3 protobuf message by hand, reading
// the wire format directly with google.golang.org/protobuf/encoding/protowire
// instead of going through generated, reflection-backed code. This is
// the hot path: one allocation-light pass over the payload, with each
// ten-level field family handled by a single field-number range case that
// indexes straight into a fixed-size array, per SPEC_FULL.md §9/§11.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for BidOfferV3. bid_price{N} occupies 2..11, ask_price{N}
// occupies 12..21, bid_volume{N} occupies 22..31, ask_volume{N} occupies
// 32..41; bid_flag/ask_flag trail at 42/43.
const (
	fieldSymbol  = 1
	fieldBidFlag = 42
	fieldAskFlag = 43
)

// Money mirrors google.type.Money: a fixed-point decimal split into an
// integer part (units) and a fractional nanos part. Real value is
// units + nanos*1e-9, computed in IEEE-754 double precision. Callers must
// never compare prices by equality; use an absolute tolerance of 1e-9.
type Money struct {
	Units int64
	Nanos int32
}

// Float64 returns the Money value as a float64.
func (m Money) Float64() float64 {
	return float64(m.Units) + float64(m.Nanos)*1e-9
}

// BidOfferV3 is the decoded wire form of the broker's book message.
type BidOfferV3 struct {
	Symbol     string
	BidPrices  [10]Money
	AskPrices  [10]Money
	BidVolumes [10]int64
	AskVolumes [10]int64
	BidFlag    int32
	AskFlag    int32
}

// Decode parses a BidOfferV3 payload. Any malformed or truncated input
// returns an error; the caller (the normalizer) treats that as a
// phase-1 parse failure and never panics on invalid bytes.
func Decode(data []byte) (BidOfferV3, error) {
	var msg BidOfferV3

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return BidOfferV3{}, fmt.Errorf("bidofferv3: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldSymbol && typ == protowire.BytesType:
			s, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return BidOfferV3{}, fmt.Errorf("bidofferv3: bad symbol field: %w", protowire.ParseError(n))
			}
			msg.Symbol = string(s)
			data = data[n:]

		case num >= 2 && num <= 11 && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return BidOfferV3{}, fmt.Errorf("bidofferv3: bad bid_price field %d: %w", num, protowire.ParseError(n))
			}
			money, err := decodeMoney(b)
			if err != nil {
				return BidOfferV3{}, fmt.Errorf("bidofferv3: bid_price%d: %w", num-1, err)
			}
			msg.BidPrices[num-2] = money
			data = data[n:]

		case num >= 12 && num <= 21 && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return BidOfferV3{}, fmt.Errorf("bidofferv3: bad ask_price field %d: %w", num, protowire.ParseError(n))
			}
			money, err := decodeMoney(b)
			if err != nil {
				return BidOfferV3{}, fmt.Errorf("bidofferv3: ask_price%d: %w", num-11, err)
			}
			msg.AskPrices[num-12] = money
			data = data[n:]

		case num >= 22 && num <= 31 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return BidOfferV3{}, fmt.Errorf("bidofferv3: bad bid_volume field %d: %w", num, protowire.ParseError(n))
			}
			msg.BidVolumes[num-22] = int64(v)
			data = data[n:]

		case num >= 32 && num <= 41 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return BidOfferV3{}, fmt.Errorf("bidofferv3: bad ask_volume field %d: %w", num, protowire.ParseError(n))
			}
			msg.AskVolumes[num-32] = int64(v)
			data = data[n:]

		case num == fieldBidFlag && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return BidOfferV3{}, fmt.Errorf("bidofferv3: bad bid_flag: %w", protowire.ParseError(n))
			}
			msg.BidFlag = int32(v)
			data = data[n:]

		case num == fieldAskFlag && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return BidOfferV3{}, fmt.Errorf("bidofferv3: bad ask_flag: %w", protowire.ParseError(n))
			}
			msg.AskFlag = int32(v)
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return BidOfferV3{}, fmt.Errorf("bidofferv3: bad unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	return msg, nil
}

// decodeMoney parses a Money sub-message: units (field 1, varint int64),
// nanos (field 2, varint int32).
func decodeMoney(data []byte) (Money, error) {
	var m Money
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Money{}, fmt.Errorf("bad money tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Money{}, fmt.Errorf("bad money units: %w", protowire.ParseError(n))
			}
			m.Units = int64(v)
			data = data[n:]

		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Money{}, fmt.Errorf("bad money nanos: %w", protowire.ParseError(n))
			}
			m.Nanos = int32(v)
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Money{}, fmt.Errorf("bad money unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return m, nil
}
