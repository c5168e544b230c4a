package cmd

import (
	"bytes"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brocaar/ttn-sensor-node/internal/config"
)

var (
	cfgFile string
	version string
)

var rootCmd = &cobra.Command{
	Use:   "ttn-sensor-node",
	Short: "TTN temperature and humidity sensor node",
	Long: `ttn-sensor-node reads a temperature and humidity sensor and sends the readings over LoRaWAN
	> the node joins The Things Network (or any LoRaWAN 1.0 network) using OTAA
	> frames are exchanged through a virtual gateway using the ChirpStack Gateway Bridge MQTT topics`,
	RunE: run,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.PersistentFlags().Int("log-level", 4, "debug=5, info=4, error=2, fatal=1, panic=0")

	viper.BindPFlag("general.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	// default values
	viper.SetDefault("storage.type", "redis")
	viper.SetDefault("storage.namespace", "lora")

	viper.SetDefault("redis.servers", []string{"localhost:6379"})

	viper.SetDefault("postgresql.dsn", "postgres://localhost/ttn_sensor_node?sslmode=disable")
	viper.SetDefault("postgresql.automigrate", true)
	viper.SetDefault("postgresql.max_idle_connections", 2)

	viper.SetDefault("lorawan.band", "EU868")
	viper.SetDefault("lorawan.ttn_channel_plan", true)
	viper.SetDefault("lorawan.data_rate", 3)
	viper.SetDefault("lorawan.tx_power", 14)
	viper.SetDefault("lorawan.duty_cycle", true)
	viper.SetDefault("lorawan.join_retry_interval", 10*time.Second)
	viper.SetDefault("lorawan.rx_window", time.Second)

	viper.SetDefault("gateway.gateway_id", "0000000000000000")
	viper.SetDefault("gateway.backend.type", "mqtt")
	viper.SetDefault("gateway.backend.mqtt.server", "tcp://localhost:1883")
	viper.SetDefault("gateway.backend.mqtt.clean_session", true)
	viper.SetDefault("gateway.backend.mqtt.marshaler", "protobuf")
	viper.SetDefault("gateway.backend.mqtt.max_reconnect_interval", time.Minute)
	viper.SetDefault("gateway.backend.mqtt.event_topic_template", "gateway/{{ .GatewayID }}/event/{{ .EventType }}")
	viper.SetDefault("gateway.backend.mqtt.command_topic_template", "gateway/{{ .GatewayID }}/command/{{ .CommandType }}")

	viper.SetDefault("sensor.type", "am2315")
	viper.SetDefault("sensor.i2c_address", 0x5c)
	viper.SetDefault("sensor.settle_delay", 2*time.Second)
	viper.SetDefault("sensor.retry.max_retries", 5)
	viper.SetDefault("sensor.retry.backoff", 500*time.Millisecond)
	viper.SetDefault("sensor.simulated.temperature", 21.5)
	viper.SetDefault("sensor.simulated.humidity", 55)
	viper.SetDefault("sensor.simulated.stddev", 0.5)

	viper.SetDefault("node.uplink_interval", 5*time.Minute)
	viper.SetDefault("node.fport", 1)
	viper.SetDefault("node.pump_interval", 10*time.Millisecond)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(printSessionCmd)
	rootCmd.AddCommand(eraseSessionCmd)
}

// Execute executes the root command.
func Execute(v string) {
	version = v

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func initConfig() {
	config.Version = version

	if cfgFile != "" {
		b, err := os.ReadFile(cfgFile)
		if err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(b)); err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
	} else {
		viper.SetConfigName("ttn-sensor-node")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/ttn-sensor-node")
		viper.AddConfigPath("/etc/ttn-sensor-node")
		if err := viper.ReadInConfig(); err != nil {
			switch err.(type) {
			case viper.ConfigFileNotFoundError:
				log.Warning("No configuration file found, using defaults. See: ttn-sensor-node configfile")
			default:
				log.WithError(err).Fatal("read configuration file error")
			}
		}
	}

	viperBindEnvs(config.C)

	viperHooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := viper.Unmarshal(&config.C, viper.DecodeHook(viperHooks)); err != nil {
		log.WithError(err).Fatal("unmarshal config error")
	}
}

func viperBindEnvs(iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)
		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			tv = strings.ToLower(t.Name)
		}
		if tv == "-" {
			continue
		}

		switch v.Kind() {
		case reflect.Struct:
			viperBindEnvs(v.Interface(), append(parts, tv)...)
		default:
			// Bash doesn't allow env variable names with a dot so
			// bind the double underscore version.
			keyDot := strings.Join(append(parts, tv), ".")
			keyUnderscore := strings.Join(append(parts, tv), "__")
			viper.BindEnv(keyDot, strings.ToUpper(keyUnderscore))
		}
	}
}
