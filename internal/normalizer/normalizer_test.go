package normalizer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lumduan/settrade-feed-adapter/internal/config"
	"github.com/lumduan/settrade-feed-adapter/internal/event"
)

// fixedEpoch is a stub EpochSource returning a constant connection epoch.
type fixedEpoch int64

func (e fixedEpoch) ConnectionEpoch() int64 { return int64(e) }

func encodeMoney(b []byte, fieldNum protowire.Number, units int64, nanos int32) []byte {
	var body []byte
	if units != 0 {
		body = protowire.AppendTag(body, 1, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(units))
	}
	if nanos != 0 {
		body = protowire.AppendTag(body, 2, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(uint32(nanos)))
	}
	b = protowire.AppendTag(b, fieldNum, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b
}

// bestBidAskFixture encodes a minimal BidOfferV3 payload exercising only
// the top-of-book (level 1) fields, mirroring scenario S3.
func bestBidAskFixture(symbol string, bidUnits int64, bidNanos int32, askUnits int64, askNanos int32, bidVol, askVol int64, flag int32) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, symbol)
	b = encodeMoney(b, 2, bidUnits, bidNanos)
	b = encodeMoney(b, 12, askUnits, askNanos)
	if bidVol != 0 {
		b = protowire.AppendTag(b, 22, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(bidVol))
	}
	if askVol != 0 {
		b = protowire.AppendTag(b, 32, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(askVol))
	}
	if flag != 0 {
		b = protowire.AppendTag(b, 42, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(flag))
		b = protowire.AppendTag(b, 43, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(flag))
	}
	return b
}

func TestScenarioS3(t *testing.T) {
	t.Parallel()
	var received event.Event
	n := New(config.DefaultNormalizerConfig(), fixedEpoch(0), func(e event.Event) {
		received = e
	}, nil)

	payload := bestBidAskFixture("aot", 25, 500_000_000, 25, 750_000_000, 1000, 500, int32(event.FlagNormal))
	n.OnMessage(payload, 100, 200)

	require.NotNil(t, received)
	bba, ok := received.(event.BestBidAsk)
	require.True(t, ok)
	require.Equal(t, "AOT", bba.Symbol())
	require.InDelta(t, 25.5, bba.BidPrice(), 1e-9)
	require.InDelta(t, 25.75, bba.AskPrice(), 1e-9)
	require.Equal(t, int64(1000), bba.BidVol())
	require.Equal(t, int64(500), bba.AskVol())
	require.False(t, bba.IsAuction())

	stats := n.Stats()
	require.Equal(t, uint64(1), stats.MessagesParsed)
	require.Equal(t, uint64(0), stats.ParseErrors)
	require.Equal(t, uint64(0), stats.CallbackErrors)
}

func TestScenarioS4_TruncatedPayload(t *testing.T) {
	t.Parallel()
	called := false
	n := New(config.DefaultNormalizerConfig(), fixedEpoch(0), func(e event.Event) {
		called = true
	}, nil)

	payload := bestBidAskFixture("AOT", 25, 0, 25, 0, 1, 1, 1)
	truncated := payload[:len(payload)-1]
	n.OnMessage(truncated, 0, 0)

	require.False(t, called)
	stats := n.Stats()
	require.Equal(t, uint64(0), stats.MessagesParsed)
	require.Equal(t, uint64(1), stats.ParseErrors)
	require.Equal(t, uint64(0), stats.CallbackErrors)
}

func TestScenarioS5_CallbackPanics(t *testing.T) {
	t.Parallel()
	n := New(config.DefaultNormalizerConfig(), fixedEpoch(0), func(e event.Event) {
		panic("consumer blew up")
	}, nil)

	payload := bestBidAskFixture("AOT", 1, 0, 1, 0, 1, 1, 1)
	n.OnMessage(payload, 0, 0)

	stats := n.Stats()
	require.Equal(t, uint64(0), stats.MessagesParsed)
	require.Equal(t, uint64(0), stats.ParseErrors)
	require.Equal(t, uint64(1), stats.CallbackErrors)
}

func TestLowerAndMixedCaseSymbolsUppercased(t *testing.T) {
	t.Parallel()
	var got string
	n := New(config.DefaultNormalizerConfig(), fixedEpoch(0), func(e event.Event) {
		got = e.Symbol()
	}, nil)
	payload := bestBidAskFixture("aOt", 1, 0, 1, 0, 1, 1, 0)
	n.OnMessage(payload, 0, 0)
	require.Equal(t, "AOT", got)
}

func TestCrossedPricesAccepted(t *testing.T) {
	t.Parallel()
	var received event.Event
	n := New(config.DefaultNormalizerConfig(), fixedEpoch(0), func(e event.Event) {
		received = e
	}, nil)
	// bid (10) > ask (5): crossed book, accepted without enforcement.
	payload := bestBidAskFixture("AOT", 10, 0, 5, 0, 1, 1, int32(event.FlagATO))
	n.OnMessage(payload, 0, 0)

	bba := received.(event.BestBidAsk)
	require.Equal(t, 10.0, bba.BidPrice())
	require.Equal(t, 5.0, bba.AskPrice())
	require.True(t, bba.IsAuction())
}

func TestExactlyOneCounter_OverManyMessages(t *testing.T) {
	t.Parallel()
	n := New(config.DefaultNormalizerConfig(), fixedEpoch(0), func(e event.Event) {}, nil)

	good := bestBidAskFixture("AOT", 1, 0, 1, 0, 1, 1, 1)
	bad := good[:len(good)-1]

	for i := 0; i < 20; i++ {
		n.OnMessage(good, 0, 0)
	}
	for i := 0; i < 5; i++ {
		n.OnMessage(bad, 0, 0)
	}

	stats := n.Stats()
	require.Equal(t, uint64(20), stats.MessagesParsed)
	require.Equal(t, uint64(5), stats.ParseErrors)
	require.Equal(t, uint64(0), stats.CallbackErrors)
	require.Equal(t, uint64(25), stats.MessagesParsed+stats.ParseErrors+stats.CallbackErrors)
}

func TestConnectionEpochStampedFromEpochSource(t *testing.T) {
	t.Parallel()
	var received event.Event
	n := New(config.DefaultNormalizerConfig(), fixedEpoch(7), func(e event.Event) {
		received = e
	}, nil)
	payload := bestBidAskFixture("AOT", 1, 0, 1, 0, 1, 1, 0)
	n.OnMessage(payload, 0, 0)
	require.Equal(t, int64(7), received.ConnectionEpoch())
}

func TestFullDepthMode_BuildsTenLevels(t *testing.T) {
	t.Parallel()
	var received event.Event
	n := New(config.NormalizerConfig{FullDepth: true}, fixedEpoch(0), func(e event.Event) {
		received = e
	}, nil)
	payload := bestBidAskFixture("AOT", 1, 0, 2, 0, 10, 20, 1)
	n.OnMessage(payload, 0, 0)

	full, ok := received.(event.FullBidOffer)
	require.True(t, ok)
	require.Equal(t, 1.0, full.BidPrices()[0])
	require.Equal(t, 2.0, full.AskPrices()[0])
	require.Equal(t, int64(10), full.BidVolumes()[0])
	require.Equal(t, int64(20), full.AskVolumes()[0])
	// Untouched levels default to zero value, not garbage.
	require.Equal(t, 0.0, full.BidPrices()[9])
}
