package softmac

import (
	"context"
	"crypto/aes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/brocaar/lorawan"

	"github.com/brocaar/ttn-sensor-node/internal/band"
	"github.com/brocaar/ttn-sensor-node/internal/mac"
	"github.com/brocaar/ttn-sensor-node/internal/test"
)

type StackTestSuite struct {
	suite.Suite

	clock   *test.Clock
	gateway *test.GatewayBackend
	stack   *Stack

	appKey  lorawan.AES128Key
	nwkSKey lorawan.AES128Key
	appSKey lorawan.AES128Key
}

func (ts *StackTestSuite) newStack(ttnChannels, dutyCycle bool) {
	assert := require.New(ts.T())

	conf := test.GetConfig()
	conf.LoRaWAN.TTNChannelPlan = ttnChannels
	b, err := band.New(conf)
	assert.NoError(err)

	ts.clock = test.NewClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	ts.gateway = test.NewGatewayBackend()
	ts.stack = New(Config{
		Band:              b,
		Gateway:           ts.gateway,
		RXWindow:          time.Second,
		DutyCycle:         dutyCycle,
		JoinRetryInterval: 10 * time.Second,
		Clock:             ts.clock.Now,
		Rand:              rand.New(rand.NewSource(1)),
	})
	assert.NoError(ts.stack.Init(context.Background()))

	ts.stack.SetIdentity(
		[8]byte{0x56, 0x34, 0x12, 0xc4, 0x0a, 0x24, 0x00, 0x00},
		[8]byte{0x00, 0x00, 0x00, 0xd0, 0x7e, 0xd5, 0xb3, 0x70},
		ts.appKey,
	)
	assert.NoError(ts.stack.SetDataRateTXPower(3, 14))
}

func (ts *StackTestSuite) SetupTest() {
	ts.appKey = lorawan.AES128Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	ts.nwkSKey = lorawan.AES128Key{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	ts.appSKey = lorawan.AES128Key{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2}
	ts.newStack(true, false)
}

func (ts *StackTestSuite) TestIdentity() {
	assert := require.New(ts.T())
	assert.Equal(lorawan.EUI64{0x00, 0x00, 0x24, 0x0a, 0xc4, 0x12, 0x34, 0x56}, ts.stack.devEUI)
	assert.Equal(lorawan.EUI64{0x70, 0xb3, 0xd5, 0x7e, 0xd0, 0x00, 0x00, 0x00}, ts.stack.joinEUI)
	assert.Len(ts.stack.channels, 9)
}

func (ts *StackTestSuite) TestJoin() {
	assert := require.New(ts.T())
	ctx := context.Background()

	assert.NoError(ts.stack.StartJoining())
	events := ts.stack.RunOnce(ctx)
	assert.Len(events, 2)
	assert.Equal(mac.JoiningEvent{}, events[0])
	txStart, ok := events[1].(mac.TXStartEvent)
	assert.True(ok)
	assert.Equal(3, txStart.DR)
	assert.True(ts.stack.TXRXPending())
	assert.EqualValues(0, ts.stack.DevAddr())

	uf := <-ts.gateway.UplinkFrameChan
	assert.Equal(txStart.Frequency, uf.TxInfo.Frequency)
	assert.EqualValues(9, uf.TxInfo.GetLoraModulationInfo().SpreadingFactor)
	jr, err := test.ParseJoinRequest(uf, ts.appKey)
	assert.NoError(err)
	assert.Equal(ts.stack.devEUI, jr.DevEUI)
	assert.Equal(ts.stack.joinEUI, jr.JoinEUI)

	df, err := test.NewJoinAcceptFrame(test.JoinAccept{
		AppKey:    ts.appKey,
		JoinEUI:   jr.JoinEUI,
		DevNonce:  jr.DevNonce,
		JoinNonce: 0x030201,
		NetID:     lorawan.NetID{0, 0, 3},
		DevAddr:   lorawan.DevAddr{1, 2, 3, 4},
		RXDelay:   1,
		CFList:    []uint32{867100000, 867300000},
	})
	assert.NoError(err)
	ts.gateway.DownlinkFrameChan() <- df

	// the frame is queued until the receive window opens
	assert.Len(ts.stack.RunOnce(ctx), 0)

	ts.clock.Add(5 * time.Second)
	events = ts.stack.RunOnce(ctx)
	assert.Len(events, 2)
	assert.Equal(mac.RXStartEvent{}, events[0])

	joined, ok := events[1].(mac.JoinedEvent)
	assert.True(ok)
	assert.EqualValues(3, joined.NetID)
	assert.EqualValues(0x01020304, joined.DevAddr)
	assert.Equal(expectedSKey(0x01, ts.appKey, 0x030201, 3, uint16(jr.DevNonce)), lorawan.AES128Key(joined.NwkSKey))
	assert.Equal(expectedSKey(0x02, ts.appKey, 0x030201, 3, uint16(jr.DevNonce)), lorawan.AES128Key(joined.AppSKey))

	assert.EqualValues(0x01020304, ts.stack.DevAddr())
	assert.False(ts.stack.TXRXPending())
	assert.Len(ts.stack.channels, 9)
}

func (ts *StackTestSuite) TestJoinWithPendingData() {
	assert := require.New(ts.T())
	ctx := context.Background()

	assert.NoError(ts.stack.StartJoining())
	assert.NoError(ts.stack.SetTXData(1, []byte{1, 2, 3}, false))
	ts.stack.RunOnce(ctx)
	uf := <-ts.gateway.UplinkFrameChan
	jr, err := test.ParseJoinRequest(uf, ts.appKey)
	assert.NoError(err)

	df, err := test.NewJoinAcceptFrame(test.JoinAccept{
		AppKey:   ts.appKey,
		JoinEUI:  jr.JoinEUI,
		DevNonce: jr.DevNonce,
		NetID:    lorawan.NetID{0, 0, 3},
		DevAddr:  lorawan.DevAddr{1, 2, 3, 4},
	})
	assert.NoError(err)
	ts.gateway.DownlinkFrameChan() <- df

	ts.clock.Add(5 * time.Second)
	ts.stack.RunOnce(ctx)
	assert.True(ts.stack.TXRXPending())

	events := ts.stack.RunOnce(ctx)
	assert.Len(events, 1)
	assert.IsType(mac.TXStartEvent{}, events[0])

	uf = <-ts.gateway.UplinkFrameChan
	var phy lorawan.PHYPayload
	assert.NoError(phy.UnmarshalBinary(uf.PhyPayload))
	assert.Equal(lorawan.UnconfirmedDataUp, phy.MHDR.MType)
}

func (ts *StackTestSuite) TestJoinInvalidMIC() {
	assert := require.New(ts.T())
	ctx := context.Background()

	assert.NoError(ts.stack.StartJoining())
	ts.stack.RunOnce(ctx)
	uf := <-ts.gateway.UplinkFrameChan
	jr, err := test.ParseJoinRequest(uf, ts.appKey)
	assert.NoError(err)

	df, err := test.NewJoinAcceptFrame(test.JoinAccept{
		AppKey:   lorawan.AES128Key{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
		JoinEUI:  jr.JoinEUI,
		DevNonce: jr.DevNonce,
		NetID:    lorawan.NetID{0, 0, 3},
		DevAddr:  lorawan.DevAddr{1, 2, 3, 4},
	})
	assert.NoError(err)
	ts.gateway.DownlinkFrameChan() <- df

	ts.clock.Add(5 * time.Second)
	assert.Equal([]mac.Event{mac.RXStartEvent{}}, ts.stack.RunOnce(ctx))
	assert.EqualValues(0, ts.stack.DevAddr())

	ts.clock.Add(3 * time.Second)
	assert.Equal([]mac.Event{mac.JoinTXCompleteEvent{}}, ts.stack.RunOnce(ctx))
}

func (ts *StackTestSuite) TestJoinRetryAndFail() {
	assert := require.New(ts.T())
	ctx := context.Background()

	ts.stack.conf.MaxJoinAttempts = 2

	assert.NoError(ts.stack.StartJoining())
	ts.stack.RunOnce(ctx)
	<-ts.gateway.UplinkFrameChan

	ts.clock.Add(7*time.Second + time.Millisecond)
	assert.Equal([]mac.Event{mac.RXStartEvent{}, mac.JoinTXCompleteEvent{}}, ts.stack.RunOnce(ctx))
	assert.True(ts.stack.TXRXPending())

	// waiting for the retry interval
	assert.Len(ts.stack.RunOnce(ctx), 0)

	ts.clock.Add(10 * time.Second)
	events := ts.stack.RunOnce(ctx)
	assert.Len(events, 1)
	assert.IsType(mac.TXStartEvent{}, events[0])
	<-ts.gateway.UplinkFrameChan

	ts.clock.Add(7*time.Second + time.Millisecond)
	assert.Equal([]mac.Event{mac.RXStartEvent{}, mac.JoinTXCompleteEvent{}, mac.JoinFailedEvent{}}, ts.stack.RunOnce(ctx))
	assert.False(ts.stack.TXRXPending())
}

func (ts *StackTestSuite) TestJoinLowersDataRate() {
	assert := require.New(ts.T())
	ctx := context.Background()

	assert.NoError(ts.stack.StartJoining())
	for i := 0; i < 3; i++ {
		ts.stack.RunOnce(ctx)
		<-ts.gateway.UplinkFrameChan
		ts.clock.Add(7*time.Second + time.Millisecond)
		ts.stack.RunOnce(ctx)
		ts.clock.Add(10 * time.Second)
	}

	assert.Equal(2, ts.stack.dr)
}

func (ts *StackTestSuite) TestUplinkDownlink() {
	assert := require.New(ts.T())
	ctx := context.Background()

	ts.stack.SetSession(3, 0x01020304, ts.nwkSKey, ts.appSKey)
	assert.EqualValues(0x01020304, ts.stack.DevAddr())
	assert.False(ts.stack.TXRXPending())

	ts.stack.SetSeqnoUp(10)
	assert.NoError(ts.stack.SetTXData(1, []byte{1, 2, 3}, false))
	assert.True(ts.stack.TXRXPending())
	assert.Equal(ErrTXPending, ts.stack.SetTXData(1, []byte{4}, false))

	events := ts.stack.RunOnce(ctx)
	assert.Len(events, 1)
	assert.IsType(mac.TXStartEvent{}, events[0])

	uf := <-ts.gateway.UplinkFrameChan
	phy, macPL, err := test.ParseDataUp(uf, ts.nwkSKey, ts.appSKey)
	assert.NoError(err)
	assert.Equal(lorawan.UnconfirmedDataUp, phy.MHDR.MType)
	assert.Equal(lorawan.DevAddr{1, 2, 3, 4}, macPL.FHDR.DevAddr)
	assert.EqualValues(10, macPL.FHDR.FCnt)
	assert.False(macPL.FHDR.FCtrl.ADR)
	assert.EqualValues(1, *macPL.FPort)
	assert.Len(macPL.FRMPayload, 1)
	assert.Equal([]byte{1, 2, 3}, macPL.FRMPayload[0].(*lorawan.DataPayload).Bytes)
	assert.Len(macPL.FHDR.FOpts, 0)

	fPort := uint8(5)
	df, err := test.NewDataDownlinkFrame(test.DataDown{
		DevAddr: lorawan.DevAddr{1, 2, 3, 4},
		NwkSKey: ts.nwkSKey,
		AppSKey: ts.appSKey,
		FPort:   &fPort,
		Data:    []byte{0xaa, 0xbb},
	})
	assert.NoError(err)
	ts.gateway.DownlinkFrameChan() <- df

	ts.clock.Add(time.Second)
	assert.Equal([]mac.Event{
		mac.RXStartEvent{},
		mac.TXCompleteEvent{
			Downlink: &mac.Downlink{
				FPort: 5,
				Data:  []byte{0xaa, 0xbb},
			},
		},
	}, ts.stack.RunOnce(ctx))
	assert.False(ts.stack.TXRXPending())
	assert.EqualValues(1, ts.stack.fCntDown)
}

func (ts *StackTestSuite) TestDownlinkEmptyPayload() {
	assert := require.New(ts.T())
	ctx := context.Background()

	ts.stack.SetSession(3, 0x01020304, ts.nwkSKey, ts.appSKey)
	assert.NoError(ts.stack.SetTXData(1, []byte{1}, false))
	ts.stack.RunOnce(ctx)
	<-ts.gateway.UplinkFrameChan

	fPort := uint8(5)
	df, err := test.NewDataDownlinkFrame(test.DataDown{
		DevAddr: lorawan.DevAddr{1, 2, 3, 4},
		NwkSKey: ts.nwkSKey,
		AppSKey: ts.appSKey,
		FPort:   &fPort,
	})
	assert.NoError(err)
	ts.gateway.DownlinkFrameChan() <- df

	ts.clock.Add(time.Second)
	assert.Equal([]mac.Event{mac.RXStartEvent{}, mac.TXCompleteEvent{}}, ts.stack.RunOnce(ctx))
	assert.False(ts.stack.TXRXPending())
	assert.EqualValues(1, ts.stack.fCntDown)
}

func (ts *StackTestSuite) TestUplinkNoDownlink() {
	assert := require.New(ts.T())
	ctx := context.Background()

	ts.stack.SetSession(3, 0x01020304, ts.nwkSKey, ts.appSKey)
	assert.NoError(ts.stack.SetTXData(1, []byte{1}, false))
	ts.stack.RunOnce(ctx)
	<-ts.gateway.UplinkFrameChan

	ts.clock.Add(time.Second)
	assert.Equal([]mac.Event{mac.RXStartEvent{}}, ts.stack.RunOnce(ctx))
	assert.True(ts.stack.TXRXPending())

	ts.clock.Add(2*time.Second + time.Millisecond)
	assert.Equal([]mac.Event{mac.TXCompleteEvent{}}, ts.stack.RunOnce(ctx))
	assert.False(ts.stack.TXRXPending())
}

func (ts *StackTestSuite) TestDownlinkFiltered() {
	tests := []struct {
		Name     string
		DataDown test.DataDown
		FCntDown uint32
	}{
		{
			Name: "other dev_addr",
			DataDown: test.DataDown{
				DevAddr: lorawan.DevAddr{4, 3, 2, 1},
				NwkSKey: ts.nwkSKey,
				AppSKey: ts.appSKey,
			},
		},
		{
			Name: "invalid mic",
			DataDown: test.DataDown{
				DevAddr: lorawan.DevAddr{1, 2, 3, 4},
				NwkSKey: ts.appSKey,
				AppSKey: ts.appSKey,
			},
		},
		{
			Name: "replayed frame-counter",
			DataDown: test.DataDown{
				DevAddr: lorawan.DevAddr{1, 2, 3, 4},
				NwkSKey: ts.nwkSKey,
				AppSKey: ts.appSKey,
				FCnt:    4,
			},
			FCntDown: 5,
		},
	}

	for _, tst := range tests {
		ts.T().Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)
			ctx := context.Background()
			ts.newStack(true, false)

			ts.stack.SetSession(3, 0x01020304, ts.nwkSKey, ts.appSKey)
			ts.stack.fCntDown = tst.FCntDown
			assert.NoError(ts.stack.SetTXData(1, []byte{1}, false))
			ts.stack.RunOnce(ctx)
			<-ts.gateway.UplinkFrameChan

			df, err := test.NewDataDownlinkFrame(tst.DataDown)
			assert.NoError(err)
			ts.gateway.DownlinkFrameChan() <- df

			ts.clock.Add(3*time.Second + time.Millisecond)
			assert.Equal([]mac.Event{mac.RXStartEvent{}, mac.TXCompleteEvent{}}, ts.stack.RunOnce(ctx))
			assert.Equal(tst.FCntDown, ts.stack.fCntDown)
		})
	}
}

func (ts *StackTestSuite) TestConfirmedDownlinkAck() {
	assert := require.New(ts.T())
	ctx := context.Background()

	ts.stack.SetSession(3, 0x01020304, ts.nwkSKey, ts.appSKey)
	assert.NoError(ts.stack.SetTXData(1, []byte{1}, true))
	ts.stack.RunOnce(ctx)
	uf := <-ts.gateway.UplinkFrameChan
	phy, _, err := test.ParseDataUp(uf, ts.nwkSKey, ts.appSKey)
	assert.NoError(err)
	assert.Equal(lorawan.ConfirmedDataUp, phy.MHDR.MType)

	df, err := test.NewDataDownlinkFrame(test.DataDown{
		DevAddr:   lorawan.DevAddr{1, 2, 3, 4},
		NwkSKey:   ts.nwkSKey,
		AppSKey:   ts.appSKey,
		ACK:       true,
		Confirmed: true,
	})
	assert.NoError(err)
	ts.gateway.DownlinkFrameChan() <- df

	ts.clock.Add(time.Second)
	assert.Equal([]mac.Event{mac.RXStartEvent{}, mac.TXCompleteEvent{Ack: true}}, ts.stack.RunOnce(ctx))

	// the next uplink acknowledges the confirmed downlink
	assert.NoError(ts.stack.SetTXData(1, []byte{2}, false))
	ts.stack.RunOnce(ctx)
	uf = <-ts.gateway.UplinkFrameChan
	_, macPL, err := test.ParseDataUp(uf, ts.nwkSKey, ts.appSKey)
	assert.NoError(err)
	assert.True(macPL.FHDR.FCtrl.ACK)
}

func (ts *StackTestSuite) TestLinkCheck() {
	assert := require.New(ts.T())
	ctx := context.Background()

	ts.stack.SetSession(3, 0x01020304, ts.nwkSKey, ts.appSKey)
	ts.stack.SetLinkCheckMode(true)
	ts.stack.SetADRMode(true)
	assert.NoError(ts.stack.SetTXData(1, []byte{1}, false))
	ts.stack.RunOnce(ctx)

	uf := <-ts.gateway.UplinkFrameChan
	_, macPL, err := test.ParseDataUp(uf, ts.nwkSKey, ts.appSKey)
	assert.NoError(err)
	assert.True(macPL.FHDR.FCtrl.ADR)
	assert.Len(macPL.FHDR.FOpts, 1)

	df, err := test.NewDataDownlinkFrame(test.DataDown{
		DevAddr: lorawan.DevAddr{1, 2, 3, 4},
		NwkSKey: ts.nwkSKey,
		AppSKey: ts.appSKey,
		FOpts: []lorawan.Payload{
			&lorawan.MACCommand{
				CID: lorawan.LinkCheckAns,
				Payload: &lorawan.LinkCheckAnsPayload{
					Margin: 10,
					GwCnt:  2,
				},
			},
		},
	})
	assert.NoError(err)
	ts.gateway.DownlinkFrameChan() <- df

	ts.clock.Add(time.Second)
	assert.Equal([]mac.Event{
		mac.RXStartEvent{},
		mac.LinkAliveEvent{Margin: 10, GwCnt: 2},
		mac.TXCompleteEvent{},
	}, ts.stack.RunOnce(ctx))
}

func (ts *StackTestSuite) TestLinkDead() {
	assert := require.New(ts.T())
	ctx := context.Background()

	ts.stack.SetSession(3, 0x01020304, ts.nwkSKey, ts.appSKey)
	ts.stack.SetLinkCheckMode(true)

	var linkDead int
	for i := 0; i < linkDeadAfter+1; i++ {
		assert.NoError(ts.stack.SetTXData(1, []byte{1}, false))
		for _, e := range ts.stack.RunOnce(ctx) {
			if _, ok := e.(mac.LinkDeadEvent); ok {
				linkDead++
			}
		}
		<-ts.gateway.UplinkFrameChan
		ts.clock.Add(3*time.Second + time.Millisecond)
		ts.stack.RunOnce(ctx)
	}

	assert.Equal(1, linkDead)
}

func (ts *StackTestSuite) TestDutyCycle() {
	assert := require.New(ts.T())
	ctx := context.Background()

	ts.newStack(false, true)
	ts.stack.SetSession(3, 0x01020304, ts.nwkSKey, ts.appSKey)

	assert.NoError(ts.stack.SetTXData(1, []byte{1, 2, 3}, false))
	ts.stack.RunOnce(ctx)
	<-ts.gateway.UplinkFrameChan
	ts.clock.Add(3*time.Second + time.Millisecond)
	assert.Equal([]mac.Event{mac.RXStartEvent{}, mac.TXCompleteEvent{}}, ts.stack.RunOnce(ctx))

	// all default channels are in sub-band g1 (1%)
	assert.NoError(ts.stack.SetTXData(1, []byte{4, 5, 6}, false))
	assert.Len(ts.stack.RunOnce(ctx), 0)
	assert.True(ts.stack.TXRXPending())

	ts.clock.Add(30 * time.Second)
	events := ts.stack.RunOnce(ctx)
	assert.Len(events, 1)
	assert.IsType(mac.TXStartEvent{}, events[0])
}

func (ts *StackTestSuite) TestClosed() {
	assert := require.New(ts.T())

	assert.NoError(ts.stack.Close())
	assert.Nil(ts.stack.RunOnce(context.Background()))
	assert.Equal(ErrClosed, ts.stack.Init(context.Background()))
	assert.Equal(ErrNotInitialized, ts.stack.StartJoining())
}

func TestStack(t *testing.T) {
	suite.Run(t, new(StackTestSuite))
}

func TestFullFCnt(t *testing.T) {
	tests := []struct {
		Next     uint32
		FCnt     uint32
		Expected uint32
	}{
		{0, 0, 0},
		{0, 5, 5},
		{10, 3, 3},
		{0xfff0, 0x0002, 0x10002},
		{0x10005, 0x0006, 0x10006},
		{0x10005, 0xfffe, 0xfffe},
	}

	for _, tst := range tests {
		require.Equal(t, tst.Expected, fullFCnt(tst.Next, tst.FCnt))
	}
}

func TestSubBand(t *testing.T) {
	tests := []struct {
		Frequency uint32
		Name      string
	}{
		{867100000, "g"},
		{868100000, "g1"},
		{868500000, "g1"},
		{868800000, "g2"},
		{869525000, "g3"},
		{902300000, "default"},
	}

	for _, tst := range tests {
		require.Equal(t, tst.Name, getSubBand(tst.Frequency).name)
	}
}

func expectedSKey(typ byte, appKey lorawan.AES128Key, joinNonce, netID uint32, devNonce uint16) lorawan.AES128Key {
	in := [16]byte{
		typ,
		byte(joinNonce), byte(joinNonce >> 8), byte(joinNonce >> 16),
		byte(netID), byte(netID >> 8), byte(netID >> 16),
		byte(devNonce), byte(devNonce >> 8),
	}

	block, err := aes.NewCipher(appKey[:])
	if err != nil {
		panic(err)
	}

	var out lorawan.AES128Key
	block.Encrypt(out[:], in[:])
	return out
}
