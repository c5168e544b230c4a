package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brocaar/ttn-sensor-node/internal/config"
	"github.com/brocaar/ttn-sensor-node/internal/session"
	"github.com/brocaar/ttn-sensor-node/internal/storage"
)

var printSessionCmd = &cobra.Command{
	Use:   "print-session",
	Short: "Print the persisted session as JSON (for debugging)",
	Run: func(cmd *cobra.Command, args []string) {
		if err := storage.Setup(config.C); err != nil {
			log.Fatal(err)
		}

		s, err := session.LoadState(context.Background(), storage.Prefs(), config.C.Storage.Namespace)
		if err != nil {
			log.WithError(err).Fatal("load session error")
		}

		b, err := json.MarshalIndent(struct {
			NetID   uint32            `json:"netID"`
			DevAddr string            `json:"devAddr"`
			NwkSKey lorawan.AES128Key `json:"nwkSKey"`
			AppSKey lorawan.AES128Key `json:"appSKey"`
		}{
			NetID:   s.NetID,
			DevAddr: fmt.Sprintf("%08x", s.DevAddr),
			NwkSKey: lorawan.AES128Key(s.NwkSKey),
			AppSKey: lorawan.AES128Key(s.AppSKey),
		}, "", "    ")
		if err != nil {
			log.WithError(err).Fatal("json marshal error")
		}

		fmt.Println(string(b))
	},
}

var eraseSessionCmd = &cobra.Command{
	Use:   "erase-session",
	Short: "Erase the persisted session, the next start performs a join",
	Run: func(cmd *cobra.Command, args []string) {
		if err := storage.Setup(config.C); err != nil {
			log.Fatal(err)
		}

		if err := session.EraseState(context.Background(), storage.Prefs(), config.C.Storage.Namespace); err != nil {
			log.WithError(err).Fatal("erase session error")
		}

		log.WithField("namespace", config.C.Storage.Namespace).Info("session erased")
	},
}
