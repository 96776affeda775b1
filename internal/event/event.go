// Package event defines the two immutable event shapes the normalizer
// produces and the dispatcher carries: BestBidAsk and FullBidOffer. Both
// are plain comparable structs so they are hashable by value and compare
// structurally, as required by callers that dedupe or diff events.
package event

import (
	"fmt"
	"math"

	"github.com/lumduan/settrade-feed-adapter/internal/apperr"
)

// SessionFlag is the market session carried on every event.
type SessionFlag int32

const (
	FlagUndefined SessionFlag = 0
	FlagNormal    SessionFlag = 1
	FlagATO       SessionFlag = 2
	FlagATC       SessionFlag = 3
)

func (f SessionFlag) String() string {
	switch f {
	case FlagUndefined:
		return "UNDEFINED"
	case FlagNormal:
		return "NORMAL"
	case FlagATO:
		return "ATO"
	case FlagATC:
		return "ATC"
	default:
		return fmt.Sprintf("SessionFlag(%d)", int32(f))
	}
}

func (f SessionFlag) isAuction() bool {
	return f == FlagATO || f == FlagATC
}

// Event is the tagged union of BestBidAsk and FullBidOffer. It is sealed
// to this package: no other type may implement it.
type Event interface {
	Symbol() string
	RecvTs() int64
	RecvMonoNs() int64
	ConnectionEpoch() int64
	IsAuction() bool

	sealed()
}

// BestBidAsk is the top-of-book event shape: a single bid/ask level.
type BestBidAsk struct {
	symbol          string
	bidPrice        float64
	askPrice        float64
	bidVol          int64
	askVol          int64
	bidFlag         SessionFlag
	askFlag         SessionFlag
	recvTs          int64
	recvMonoNs      int64
	connectionEpoch int64
}

func (BestBidAsk) sealed() {}

func (e BestBidAsk) Symbol() string         { return e.symbol }
func (e BestBidAsk) BidPrice() float64      { return e.bidPrice }
func (e BestBidAsk) AskPrice() float64      { return e.askPrice }
func (e BestBidAsk) BidVol() int64          { return e.bidVol }
func (e BestBidAsk) AskVol() int64          { return e.askVol }
func (e BestBidAsk) BidFlag() SessionFlag   { return e.bidFlag }
func (e BestBidAsk) AskFlag() SessionFlag   { return e.askFlag }
func (e BestBidAsk) RecvTs() int64          { return e.recvTs }
func (e BestBidAsk) RecvMonoNs() int64      { return e.recvMonoNs }
func (e BestBidAsk) ConnectionEpoch() int64 { return e.connectionEpoch }
func (e BestBidAsk) IsAuction() bool        { return e.bidFlag.isAuction() || e.askFlag.isAuction() }

// NewBestBidAskUnchecked builds a BestBidAsk without validation. It exists
// for the normalizer hot path, which trusts the decoded protobuf and must
// not re-validate fields per message.
func NewBestBidAskUnchecked(symbol string, bidPrice, askPrice float64, bidVol, askVol int64, bidFlag, askFlag SessionFlag, recvTs, recvMonoNs, connectionEpoch int64) BestBidAsk {
	return BestBidAsk{
		symbol: symbol, bidPrice: bidPrice, askPrice: askPrice,
		bidVol: bidVol, askVol: askVol, bidFlag: bidFlag, askFlag: askFlag,
		recvTs: recvTs, recvMonoNs: recvMonoNs, connectionEpoch: connectionEpoch,
	}
}

// NewBestBidAsk validates its arguments before constructing the event.
// Empty symbols, non-finite prices, negative volumes/timestamps/epoch are
// all rejected here; the hot path never calls this constructor.
func NewBestBidAsk(symbol string, bidPrice, askPrice float64, bidVol, askVol int64, bidFlag, askFlag SessionFlag, recvTs, recvMonoNs, connectionEpoch int64) (BestBidAsk, error) {
	if err := validateCommon(symbol, bidPrice, askPrice, bidVol, askVol, recvTs, recvMonoNs, connectionEpoch); err != nil {
		return BestBidAsk{}, err
	}
	return NewBestBidAskUnchecked(symbol, bidPrice, askPrice, bidVol, askVol, bidFlag, askFlag, recvTs, recvMonoNs, connectionEpoch), nil
}

// DepthLevels is the fixed book depth of a FullBidOffer event.
const DepthLevels = 10

// FullBidOffer is the full 10-level book event shape.
type FullBidOffer struct {
	symbol          string
	bidPrices       [DepthLevels]float64
	askPrices       [DepthLevels]float64
	bidVolumes      [DepthLevels]int64
	askVolumes      [DepthLevels]int64
	bidFlag         SessionFlag
	askFlag         SessionFlag
	recvTs          int64
	recvMonoNs      int64
	connectionEpoch int64
}

func (FullBidOffer) sealed() {}

func (e FullBidOffer) Symbol() string                  { return e.symbol }
func (e FullBidOffer) BidPrices() [DepthLevels]float64 { return e.bidPrices }
func (e FullBidOffer) AskPrices() [DepthLevels]float64 { return e.askPrices }
func (e FullBidOffer) BidVolumes() [DepthLevels]int64  { return e.bidVolumes }
func (e FullBidOffer) AskVolumes() [DepthLevels]int64  { return e.askVolumes }
func (e FullBidOffer) BidFlag() SessionFlag            { return e.bidFlag }
func (e FullBidOffer) AskFlag() SessionFlag            { return e.askFlag }
func (e FullBidOffer) RecvTs() int64                   { return e.recvTs }
func (e FullBidOffer) RecvMonoNs() int64               { return e.recvMonoNs }
func (e FullBidOffer) ConnectionEpoch() int64          { return e.connectionEpoch }
func (e FullBidOffer) IsAuction() bool                 { return e.bidFlag.isAuction() || e.askFlag.isAuction() }

// NewFullBidOfferUnchecked builds a FullBidOffer without validation, for
// the normalizer hot path. The fixed-size arrays guarantee exactly 10
// levels at compile time; there is no growable-list path to misuse.
func NewFullBidOfferUnchecked(symbol string, bidPrices, askPrices [DepthLevels]float64, bidVolumes, askVolumes [DepthLevels]int64, bidFlag, askFlag SessionFlag, recvTs, recvMonoNs, connectionEpoch int64) FullBidOffer {
	return FullBidOffer{
		symbol: symbol, bidPrices: bidPrices, askPrices: askPrices,
		bidVolumes: bidVolumes, askVolumes: askVolumes,
		bidFlag: bidFlag, askFlag: askFlag,
		recvTs: recvTs, recvMonoNs: recvMonoNs, connectionEpoch: connectionEpoch,
	}
}

// NewFullBidOffer validates its arguments before constructing the event.
func NewFullBidOffer(symbol string, bidPrices, askPrices [DepthLevels]float64, bidVolumes, askVolumes [DepthLevels]int64, bidFlag, askFlag SessionFlag, recvTs, recvMonoNs, connectionEpoch int64) (FullBidOffer, error) {
	if err := validateSymbol(symbol); err != nil {
		return FullBidOffer{}, err
	}
	if err := validateScalars(recvTs, recvMonoNs, connectionEpoch); err != nil {
		return FullBidOffer{}, err
	}
	for i := 0; i < DepthLevels; i++ {
		if !isFinite(bidPrices[i]) || !isFinite(askPrices[i]) {
			return FullBidOffer{}, fmt.Errorf("%w: price at level %d must be finite", apperr.ErrInvalidArgument, i)
		}
		if bidVolumes[i] < 0 || askVolumes[i] < 0 {
			return FullBidOffer{}, fmt.Errorf("%w: volume at level %d must be non-negative", apperr.ErrInvalidArgument, i)
		}
	}
	return NewFullBidOfferUnchecked(symbol, bidPrices, askPrices, bidVolumes, askVolumes, bidFlag, askFlag, recvTs, recvMonoNs, connectionEpoch), nil
}

func validateCommon(symbol string, bidPrice, askPrice float64, bidVol, askVol, recvTs, recvMonoNs, connectionEpoch int64) error {
	if err := validateSymbol(symbol); err != nil {
		return err
	}
	if !isFinite(bidPrice) || !isFinite(askPrice) {
		return fmt.Errorf("%w: prices must be finite", apperr.ErrInvalidArgument)
	}
	if bidVol < 0 || askVol < 0 {
		return fmt.Errorf("%w: volumes must be non-negative", apperr.ErrInvalidArgument)
	}
	return validateScalars(recvTs, recvMonoNs, connectionEpoch)
}

func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol must not be empty", apperr.ErrInvalidArgument)
	}
	for _, r := range symbol {
		if r >= 'a' && r <= 'z' {
			return fmt.Errorf("%w: symbol %q must be uppercase", apperr.ErrInvalidArgument, symbol)
		}
	}
	return nil
}

func validateScalars(recvTs, recvMonoNs, connectionEpoch int64) error {
	if recvTs < 0 {
		return fmt.Errorf("%w: recvTs must be non-negative", apperr.ErrInvalidArgument)
	}
	if recvMonoNs < 0 {
		return fmt.Errorf("%w: recvMonoNs must be non-negative", apperr.ErrInvalidArgument)
	}
	if connectionEpoch < 0 {
		return fmt.Errorf("%w: connectionEpoch must be non-negative", apperr.ErrInvalidArgument)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
