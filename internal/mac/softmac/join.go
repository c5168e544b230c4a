package softmac

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/lorawan"

	"github.com/brocaar/ttn-sensor-node/internal/mac"
)

func (s *Stack) sendJoinRequest(ctx context.Context) {
	now := s.now()
	if now.Before(s.nextJoinAt) {
		return
	}

	chIndex, ok := s.selectChannel(now, s.dr)
	if !ok {
		return
	}

	s.devNonce = lorawan.DevNonce(s.rnd.Intn(1 << 16))

	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: lorawan.JoinRequest,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &lorawan.JoinRequestPayload{
			JoinEUI:  s.joinEUI,
			DevEUI:   s.devEUI,
			DevNonce: s.devNonce,
		},
	}
	if err := phy.SetUplinkJoinMIC(s.appKey); err != nil {
		log.WithError(err).Error("softmac: set join-request mic error")
		return
	}
	b, err := phy.MarshalBinary()
	if err != nil {
		log.WithError(err).Error("softmac: marshal join-request error")
		return
	}

	if err := s.transmit(ctx, now, chIndex, s.dr, b); err != nil {
		log.WithError(err).WithField("retry_in", s.conf.JoinRetryInterval).Error("softmac: send join-request error")
		s.nextJoinAt = now.Add(s.conf.JoinRetryInterval)
		return
	}

	s.joinAttempts++
	joinRequestCounter().Inc()

	log.WithFields(log.Fields{
		"dev_eui":   s.devEUI,
		"join_eui":  s.joinEUI,
		"dev_nonce": s.devNonce,
		"dr":        s.dr,
		"attempt":   s.joinAttempts,
	}).Info("softmac: join-request sent")

	s.op = opJoinRX
	s.rxStarted = false
	s.rxQueue = nil
}

func (s *Stack) handleJoinRX() {
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
			if err := s.handleJoinAccept(item.PhyPayload); err != nil {
				log.WithError(err).Warning("softmac: handle join-accept error")
				continue
			}
			s.rxQueue = nil
			return
		}
	}

	if !now.After(closeAt) {
		return
	}

	s.emit(mac.JoinTXCompleteEvent{})

	if s.conf.MaxJoinAttempts > 0 && s.joinAttempts >= s.conf.MaxJoinAttempts {
		log.WithField("attempts", s.joinAttempts).Error("softmac: join failed")
		s.op = opIdle
		if s.pending != nil {
			s.pending = nil
			s.emit(mac.TXCanceledEvent{Reason: "join failed"})
		}
		s.emit(mac.JoinFailedEvent{})
		return
	}

	if s.joinAttempts%joinAttemptsPerDR == 0 && s.dr > 0 {
		s.dr--
	}

	s.op = opJoinTX
	s.nextJoinAt = now.Add(s.conf.JoinRetryInterval)
}

func (s *Stack) handleJoinAccept(b []byte) error {
	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(b); err != nil {
		return errors.Wrap(err, "unmarshal phypayload error")
	}
	if phy.MHDR.MType != lorawan.JoinAccept {
		return errors.Errorf("unexpected mtype: %s", phy.MHDR.MType)
	}

	if err := phy.DecryptJoinAcceptPayload(s.appKey); err != nil {
		return errors.Wrap(err, "decrypt join-accept error")
	}

	ok, err := phy.ValidateDownlinkJoinMIC(lorawan.JoinRequestType, s.joinEUI, s.devNonce, s.appKey)
	if err != nil {
		return errors.Wrap(err, "validate join-accept mic error")
	}
	if !ok {
		invalidMICCounter().Inc()
		return errors.New("invalid join-accept mic")
	}

	jaPL, ok := phy.MACPayload.(*lorawan.JoinAcceptPayload)
	if !ok {
		return errors.Errorf("expected *lorawan.JoinAcceptPayload, got %T", phy.MACPayload)
	}

	nwkSKey, err := getSKey(nwkSKeyType, s.appKey, jaPL.JoinNonce, jaPL.HomeNetID, s.devNonce)
	if err != nil {
		return errors.Wrap(err, "get nwk_s_key error")
	}
	appSKey, err := getSKey(appSKeyType, s.appKey, jaPL.JoinNonce, jaPL.HomeNetID, s.devNonce)
	if err != nil {
		return errors.Wrap(err, "get app_s_key error")
	}

	s.resetSession()
	s.netID = jaPL.HomeNetID
	s.devAddr = jaPL.DevAddr
	s.nwkSKey = nwkSKey
	s.appSKey = appSKey
	s.rx2DR = int(jaPL.DLSettings.RX2DataRate)
	if jaPL.RXDelay == 0 {
		s.rxDelay = time.Second
	} else {
		s.rxDelay = time.Duration(jaPL.RXDelay) * time.Second
	}

	if jaPL.CFList != nil {
		if pl, ok := jaPL.CFList.Payload.(*lorawan.CFListChannelPayload); ok {
			for _, f := range pl.Channels {
				s.addChannel(f)
			}
		}
	}

	log.WithFields(log.Fields{
		"net_id":   s.netID,
		"dev_addr": s.devAddr,
		"rx_delay": s.rxDelay,
		"rx2_dr":   s.rx2DR,
	}).Info("softmac: join-accept received")

	s.emit(mac.JoinedEvent{
		NetID:   netIDToUint32(s.netID),
		DevAddr: s.DevAddr(),
		NwkSKey: nwkSKey,
		AppSKey: appSKey,
	})

	s.op = opIdle
	if s.pending != nil {
		s.op = opDataTX
	}

	return nil
}

// addChannel adds the given CFList frequency to the channel-plan. Zero and
// already present frequencies are ignored.
func (s *Stack) addChannel(freq uint32) {
	if freq == 0 {
		return
	}
	for _, c := range s.channels {
		if c.frequency == freq {
			return
		}
	}
	s.channels = append(s.channels, channel{
		frequency: freq,
		minDR:     0,
		maxDR:     5,
	})
}
