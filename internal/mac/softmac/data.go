package softmac

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/golang/protobuf/ptypes"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-api/go/v3/common"
	"github.com/brocaar/chirpstack-api/go/v3/gw"
	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"

	"github.com/brocaar/ttn-sensor-node/internal/mac"
)

const defaultCodeRate = "4/5"

func (s *Stack) sendData(ctx context.Context) {
	if s.pending == nil {
		s.op = opIdle
		return
	}

	now := s.now()
	chIndex, ok := s.selectChannel(now, s.dr)
	if !ok {
		return
	}

	mType := lorawan.UnconfirmedDataUp
	if s.pending.confirmed {
		mType = lorawan.ConfirmedDataUp
	}

	fPort := s.pending.fPort
	macPL := lorawan.MACPayload{
		FHDR: lorawan.FHDR{
			DevAddr: s.devAddr,
			FCtrl: lorawan.FCtrl{
				ADR: s.adr,
				ACK: s.ackDownlink,
			},
			FCnt: s.fCntUp,
		},
		FPort: &fPort,
		FRMPayload: []lorawan.Payload{
			&lorawan.DataPayload{Bytes: s.pending.data},
		},
	}

	if s.linkCheck {
		macPL.FHDR.FOpts = []lorawan.Payload{
			&lorawan.MACCommand{CID: lorawan.LinkCheckReq},
		}
	}

	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: mType,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &macPL,
	}

	key := s.appSKey
	if fPort == 0 {
		key = s.nwkSKey
	}
	if err := phy.EncryptFRMPayload(key); err != nil {
		log.WithError(err).Error("softmac: encrypt frmpayload error")
		return
	}
	if err := phy.SetUplinkDataMIC(lorawan.LoRaWAN1_0, 0, uint8(s.dr), uint8(chIndex), s.nwkSKey, s.nwkSKey); err != nil {
		log.WithError(err).Error("softmac: set uplink mic error")
		return
	}

	b, err := phy.MarshalBinary()
	if err != nil {
		log.WithError(err).Error("softmac: marshal phypayload error")
		return
	}

	if err := s.transmit(ctx, now, chIndex, s.dr, b); err != nil {
		log.WithError(err).Error("softmac: send uplink error")
		return
	}

	log.WithFields(log.Fields{
		"dev_addr":  s.devAddr,
		"f_cnt":     s.fCntUp,
		"f_port":    fPort,
		"dr":        s.dr,
		"confirmed": s.pending.confirmed,
	}).Info("softmac: uplink sent")
	uplinkCounter().Inc()

	s.fCntUp++
	s.ackDownlink = false
	s.pending = nil
	s.op = opDataRX
	s.rxStarted = false
	s.rxQueue = nil

	if s.linkCheck {
		s.adrAckCnt++
		if s.adrAckCnt >= linkDeadAfter && !s.linkDead {
			s.linkDead = true
			s.emit(mac.LinkDeadEvent{})
		}
	}
}

func (s *Stack) handleDataRX() {
	now := s.now()
	openAt, closeAt := s.openRX()
	if now.Before(openAt) {
		return
	}

	if !s.rxStarted {
		s.rxStarted = true
		s.emit(mac.RXStartEvent{})
	}

	for len(s.rxQueue) > 0 {
		df := s.rxQueue[0]
		s.rxQueue = s.rxQueue[1:]

		for _, item := range df.Items {
			ev, err := s.handleDataDown(item.PhyPayload)
			if err != nil {
				log.WithError(err).Warning("softmac: handle downlink error")
				continue
			}
			s.rxQueue = nil
			s.op = opIdle
			s.emit(ev)
			return
		}
	}

	if !now.After(closeAt) {
		return
	}

	s.op = opIdle
	s.emit(mac.TXCompleteEvent{})
}

func (s *Stack) handleDataDown(b []byte) (mac.TXCompleteEvent, error) {
	var ev mac.TXCompleteEvent

	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(b); err != nil {
		return ev, errors.Wrap(err, "unmarshal phypayload error")
	}
	if phy.MHDR.MType != lorawan.UnconfirmedDataDown && phy.MHDR.MType != lorawan.ConfirmedDataDown {
		return ev, errors.Errorf("unexpected mtype: %s", phy.MHDR.MType)
	}

	macPL, ok := phy.MACPayload.(*lorawan.MACPayload)
	if !ok {
		return ev, errors.Errorf("expected *lorawan.MACPayload, got %T", phy.MACPayload)
	}
	if macPL.FHDR.DevAddr != s.devAddr {
		return ev, errors.Errorf("dev_addr %s does not match session", macPL.FHDR.DevAddr)
	}

	fCnt := fullFCnt(s.fCntDown, macPL.FHDR.FCnt)
	macPL.FHDR.FCnt = fCnt

	ok, err := phy.ValidateDownlinkDataMIC(lorawan.LoRaWAN1_0, 0, s.nwkSKey)
	if err != nil {
		return ev, errors.Wrap(err, "validate downlink mic error")
	}
	if !ok {
		invalidMICCounter().Inc()
		return ev, errors.New("invalid downlink mic")
	}

	if fCnt < s.fCntDown {
		return ev, errors.Errorf("frame-counter %d was already received", fCnt)
	}
	s.fCntDown = fCnt + 1
	s.adrAckCnt = 0
	s.ackDownlink = phy.MHDR.MType == lorawan.ConfirmedDataDown
	downlinkCounter().Inc()

	if len(macPL.FHDR.FOpts) > 0 {
		if err := phy.DecodeFOptsToMACCommands(); err != nil {
			return ev, errors.Wrap(err, "decode fopts error")
		}
		s.handleMACCommands(macPL.FHDR.FOpts)
	}

	ev.Ack = macPL.FHDR.FCtrl.ACK

	if macPL.FPort == nil {
		return ev, nil
	}

	key := s.appSKey
	if *macPL.FPort == 0 {
		key = s.nwkSKey
	}
	if err := phy.DecryptFRMPayload(key); err != nil {
		return ev, errors.Wrap(err, "decrypt frmpayload error")
	}

	if *macPL.FPort == 0 {
		if err := phy.DecodeFRMPayloadToMACCommands(); err != nil {
			return ev, errors.Wrap(err, "decode frmpayload mac-commands error")
		}
		s.handleMACCommands(macPL.FRMPayload)
		return ev, nil
	}

	var data []byte
	for _, pl := range macPL.FRMPayload {
		if dp, ok := pl.(*lorawan.DataPayload); ok {
			data = append(data, dp.Bytes...)
		}
	}
	if len(data) == 0 {
		return ev, nil
	}

	ev.Downlink = &mac.Downlink{
		FPort: *macPL.FPort,
		Data:  data,
	}

	log.WithFields(log.Fields{
		"dev_addr": s.devAddr,
		"f_cnt":    fCnt,
		"f_port":   *macPL.FPort,
		"ack":      ev.Ack,
	}).Info("softmac: downlink received")

	return ev, nil
}

func (s *Stack) handleMACCommands(payloads []lorawan.Payload) {
	for _, pl := range payloads {
		cmd, ok := pl.(*lorawan.MACCommand)
		if !ok {
			continue
		}

		switch cmd.CID {
		case lorawan.LinkCheckAns:
			ans, ok := cmd.Payload.(*lorawan.LinkCheckAnsPayload)
			if !ok {
				continue
			}
			s.linkDead = false
			s.emit(mac.LinkAliveEvent{
				Margin: ans.Margin,
				GwCnt:  ans.GwCnt,
			})
		default:
			log.WithField("cid", cmd.CID).Debug("softmac: ignoring mac-command")
		}
	}
}

// transmit sends the given PHYPayload on the given channel and data-rate.
func (s *Stack) transmit(ctx context.Context, now time.Time, chIndex, dr int, b []byte) error {
	c := s.channels[chIndex]

	dataRate, err := s.conf.Band.GetDataRate(dr)
	if err != nil {
		return errors.Wrap(err, "get data-rate error")
	}

	txInfo := gw.UplinkTXInfo{
		Frequency: c.frequency,
	}
	if err := setUplinkTXInfoDataRate(&txInfo, dataRate); err != nil {
		return err
	}

	ts, err := ptypes.TimestampProto(now)
	if err != nil {
		return errors.Wrap(err, "timestamp proto error")
	}

	rxContext := make([]byte, 4)
	binary.BigEndian.PutUint32(rxContext, uint32(now.UnixNano()/1000))

	uf := gw.UplinkFrame{
		PhyPayload: b,
		TxInfo:     &txInfo,
		RxInfo: &gw.UplinkRXInfo{
			Time:      ts,
			Rssi:      -60,
			LoraSnr:   7,
			Channel:   uint32(chIndex),
			Context:   rxContext,
			CrcStatus: gw.CRCStatus_CRC_OK,
		},
	}

	if err := s.conf.Gateway.SendUplinkFrame(&uf); err != nil {
		return errors.Wrap(err, "send uplink frame error")
	}

	if s.dutyCycle != nil {
		if err := s.dutyCycle.register(now, c.frequency, dataRate, len(b)); err != nil {
			log.WithError(err).Warning("softmac: calculate airtime error")
		}
	}

	s.txAt = now
	s.emit(mac.TXStartEvent{
		Frequency: c.frequency,
		DR:        dr,
	})

	return nil
}

// selectChannel returns a random enabled channel supporting the given
// data-rate and which is not blocked by the duty-cycle.
func (s *Stack) selectChannel(now time.Time, dr int) (int, bool) {
	var candidates []int
	for i, c := range s.channels {
		if dr < c.minDR || dr > c.maxDR {
			continue
		}
		if s.dutyCycle != nil && !s.dutyCycle.available(now, c.frequency) {
			continue
		}
		candidates = append(candidates, i)
	}

	if len(candidates) == 0 {
		return 0, false
	}

	return candidates[s.rnd.Intn(len(candidates))], true
}

func setUplinkTXInfoDataRate(txInfo *gw.UplinkTXInfo, dataRate band.DataRate) error {
	switch dataRate.Modulation {
	case band.LoRaModulation:
		txInfo.Modulation = common.Modulation_LORA
		txInfo.ModulationInfo = &gw.UplinkTXInfo_LoraModulationInfo{
			LoraModulationInfo: &gw.LoRaModulationInfo{
				SpreadingFactor: uint32(dataRate.SpreadFactor),
				Bandwidth:       uint32(dataRate.Bandwidth),
				CodeRate:        defaultCodeRate,
			},
		}
	case band.FSKModulation:
		txInfo.Modulation = common.Modulation_FSK
		txInfo.ModulationInfo = &gw.UplinkTXInfo_FskModulationInfo{
			FskModulationInfo: &gw.FSKModulationInfo{
				Datarate: uint32(dataRate.BitRate),
			},
		}
	default:
		return errors.Errorf("unknown modulation: %s", dataRate.Modulation)
	}

	return nil
}

// fullFCnt returns the 32 bit frame-counter for the given (16 bit) received
// frame-counter, using the next expected frame-counter as reference.
func fullFCnt(next, fCnt uint32) uint32 {
	full := (next &^ 0xffff) | (fCnt & 0xffff)
	switch {
	case full < next && next-full > 1<<15:
		full += 1 << 16
	case full > next && full-next > 1<<15 && full >= 1<<16:
		full -= 1 << 16
	}
	return full
}
