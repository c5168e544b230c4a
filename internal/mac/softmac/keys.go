package softmac

import (
	"crypto/aes"
	"fmt"

	"github.com/brocaar/lorawan"
)

const (
	nwkSKeyType byte = 0x01
	appSKeyType byte = 0x02
)

// getSKey derives a LoRaWAN 1.0 session key from the AppKey.
// The JoinNonce, NetID and DevNonce are encoded little-endian.
func getSKey(typ byte, appKey lorawan.AES128Key, joinNonce lorawan.JoinNonce, netID lorawan.NetID, devNonce lorawan.DevNonce) (lorawan.AES128Key, error) {
	var key lorawan.AES128Key
	b := make([]byte, 0, 16)
	b = append(b, typ)

	b = append(b, byte(joinNonce), byte(joinNonce>>8), byte(joinNonce>>16))
	for i := len(netID) - 1; i >= 0; i-- {
		b = append(b, netID[i])
	}
	b = append(b, byte(devNonce), byte(devNonce>>8))
	b = append(b, make([]byte, 7)...)

	block, err := aes.NewCipher(appKey[:])
	if err != nil {
		return key, err
	}
	if block.BlockSize() != len(b) {
		return key, fmt.Errorf("block-size of %d bytes is expected", len(b))
	}
	block.Encrypt(key[:], b)
	return key, nil
}
