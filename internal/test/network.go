package test

import (
	"github.com/pkg/errors"

	"github.com/brocaar/chirpstack-api/go/v3/gw"
	"github.com/brocaar/lorawan"
)

// JoinAccept holds the parameters of a test join-accept.
type JoinAccept struct {
	AppKey    lorawan.AES128Key
	JoinEUI   lorawan.EUI64
	DevNonce  lorawan.DevNonce
	JoinNonce lorawan.JoinNonce
	NetID     lorawan.NetID
	DevAddr   lorawan.DevAddr
	RXDelay   uint8
	RX2DR     uint8
	CFList    []uint32
}

// NewJoinAcceptFrame returns a downlink-frame holding the encrypted
// join-accept.
func NewJoinAcceptFrame(ja JoinAccept) (*gw.DownlinkFrame, error) {
	pl := lorawan.JoinAcceptPayload{
		JoinNonce: ja.JoinNonce,
		HomeNetID: ja.NetID,
		DevAddr:   ja.DevAddr,
		DLSettings: lorawan.DLSettings{
			RX2DataRate: ja.RX2DR,
		},
		RXDelay: ja.RXDelay,
	}

	if len(ja.CFList) != 0 {
		var channels [5]uint32
		copy(channels[:], ja.CFList)
		pl.CFList = &lorawan.CFList{
			CFListType: lorawan.CFListChannel,
			Payload: &lorawan.CFListChannelPayload{
				Channels: channels,
			},
		}
	}

	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: lorawan.JoinAccept,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &pl,
	}
	if err := phy.SetDownlinkJoinMIC(lorawan.JoinRequestType, ja.JoinEUI, ja.DevNonce, ja.AppKey); err != nil {
		return nil, errors.Wrap(err, "set join-accept mic error")
	}
	if err := phy.EncryptJoinAcceptPayload(ja.AppKey); err != nil {
		return nil, errors.Wrap(err, "encrypt join-accept error")
	}

	return newDownlinkFrame(phy)
}

// DataDown holds the parameters of a test data downlink.
type DataDown struct {
	DevAddr   lorawan.DevAddr
	NwkSKey   lorawan.AES128Key
	AppSKey   lorawan.AES128Key
	FCnt      uint32
	FPort     *uint8
	Data      []byte
	ACK       bool
	Confirmed bool
	FOpts     []lorawan.Payload
}

// NewDataDownlinkFrame returns a downlink-frame holding the data downlink.
func NewDataDownlinkFrame(dd DataDown) (*gw.DownlinkFrame, error) {
	mType := lorawan.UnconfirmedDataDown
	if dd.Confirmed {
		mType = lorawan.ConfirmedDataDown
	}

	macPL := lorawan.MACPayload{
		FHDR: lorawan.FHDR{
			DevAddr: dd.DevAddr,
			FCtrl: lorawan.FCtrl{
				ACK: dd.ACK,
			},
			FCnt:  dd.FCnt,
			FOpts: dd.FOpts,
		},
		FPort: dd.FPort,
	}
	if dd.FPort != nil {
		macPL.FRMPayload = []lorawan.Payload{
			&lorawan.DataPayload{Bytes: dd.Data},
		}
	}

	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: mType,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &macPL,
	}

	if dd.FPort != nil {
		if err := phy.EncryptFRMPayload(dd.AppSKey); err != nil {
			return nil, errors.Wrap(err, "encrypt frmpayload error")
		}
	}
	if err := phy.SetDownlinkDataMIC(lorawan.LoRaWAN1_0, 0, dd.NwkSKey); err != nil {
		return nil, errors.Wrap(err, "set downlink mic error")
	}

	return newDownlinkFrame(phy)
}

// ParseJoinRequest returns the join-request of the given uplink-frame.
func ParseJoinRequest(uf *gw.UplinkFrame, appKey lorawan.AES128Key) (*lorawan.JoinRequestPayload, error) {
	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(uf.PhyPayload); err != nil {
		return nil, errors.Wrap(err, "unmarshal phypayload error")
	}
	if phy.MHDR.MType != lorawan.JoinRequest {
		return nil, errors.New("expected join-request")
	}

	ok, err := phy.ValidateUplinkJoinMIC(appKey)
	if err != nil {
		return nil, errors.Wrap(err, "validate mic error")
	}
	if !ok {
		return nil, errors.New("invalid mic")
	}

	pl, ok := phy.MACPayload.(*lorawan.JoinRequestPayload)
	if !ok {
		return nil, errors.Errorf("expected *lorawan.JoinRequestPayload, got %T", phy.MACPayload)
	}
	return pl, nil
}

// ParseDataUp validates and decrypts the data uplink of the given
// uplink-frame. It returns the MACPayload (with decrypted FRMPayload).
func ParseDataUp(uf *gw.UplinkFrame, nwkSKey, appSKey lorawan.AES128Key) (*lorawan.PHYPayload, *lorawan.MACPayload, error) {
	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(uf.PhyPayload); err != nil {
		return nil, nil, errors.Wrap(err, "unmarshal phypayload error")
	}

	dr, err := dataRate(uf.TxInfo)
	if err != nil {
		return nil, nil, err
	}

	ok, err := phy.ValidateUplinkDataMIC(lorawan.LoRaWAN1_0, 0, uint8(dr), uint8(uf.RxInfo.Channel), nwkSKey, nwkSKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "validate mic error")
	}
	if !ok {
		return nil, nil, errors.New("invalid mic")
	}

	if err := phy.DecryptFRMPayload(appSKey); err != nil {
		return nil, nil, errors.Wrap(err, "decrypt frmpayload error")
	}

	macPL, ok := phy.MACPayload.(*lorawan.MACPayload)
	if !ok {
		return nil, nil, errors.Errorf("expected *lorawan.MACPayload, got %T", phy.MACPayload)
	}
	return &phy, macPL, nil
}

// dataRate returns the EU868 data-rate of the given tx-info.
func dataRate(txInfo *gw.UplinkTXInfo) (int, error) {
	lora := txInfo.GetLoraModulationInfo()
	if lora == nil {
		return 7, nil
	}
	if lora.Bandwidth == 250 && lora.SpreadingFactor == 7 {
		return 6, nil
	}
	if lora.SpreadingFactor < 7 || lora.SpreadingFactor > 12 {
		return 0, errors.Errorf("invalid spreading-factor: %d", lora.SpreadingFactor)
	}
	return int(12 - lora.SpreadingFactor), nil
}

func newDownlinkFrame(phy lorawan.PHYPayload) (*gw.DownlinkFrame, error) {
	b, err := phy.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "marshal phypayload error")
	}

	return &gw.DownlinkFrame{
		Token:     1234,
		GatewayId: []byte{1, 2, 3, 4, 5, 6, 7, 8},
		Items: []*gw.DownlinkFrameItem{
			{
				PhyPayload: b,
				TxInfo: &gw.DownlinkTXInfo{
					Frequency: 868100000,
				},
			},
		},
	}, nil
}
