package config

import (
	"time"
)

// Version defines the ttn-sensor-node version.
var Version string

// Config defines the configuration structure.
type Config struct {
	General struct {
		LogLevel    int  `mapstructure:"log_level"`
		LogToSyslog bool `mapstructure:"log_to_syslog"`
	} `mapstructure:"general"`

	Device struct {
		AppEUI    string `mapstructure:"app_eui"`
		AppKey    string `mapstructure:"app_key"`
		ChipID    string `mapstructure:"chip_id"`
		Interface string `mapstructure:"interface"`
	} `mapstructure:"device"`

	Storage struct {
		Type      string `mapstructure:"type"`
		Namespace string `mapstructure:"namespace"`
	} `mapstructure:"storage"`

	Redis struct {
		URL        string   `mapstructure:"url"` // deprecated
		Servers    []string `mapstructure:"servers"`
		Cluster    bool     `mapstructure:"cluster"`
		MasterName string   `mapstructure:"master_name"`
		PoolSize   int      `mapstructure:"pool_size"`
		Password   string   `mapstructure:"password"`
		Database   int      `mapstructure:"database"`
		TLSEnabled bool     `mapstructure:"tls_enabled"`
		KeyPrefix  string   `mapstructure:"key_prefix"`
	} `mapstructure:"redis"`

	PostgreSQL struct {
		DSN                string `mapstructure:"dsn"`
		Automigrate        bool   `mapstructure:"automigrate"`
		MaxOpenConnections int    `mapstructure:"max_open_connections"`
		MaxIdleConnections int    `mapstructure:"max_idle_connections"`
	} `mapstructure:"postgresql"`

	LoRaWAN struct {
		Band               string        `mapstructure:"band"`
		RepeaterCompatible bool          `mapstructure:"repeater_compatible"`
		DataRate           int           `mapstructure:"data_rate"`
		TXPower            int           `mapstructure:"tx_power"`
		ADR                bool          `mapstructure:"adr"`
		DutyCycle          bool          `mapstructure:"duty_cycle"`
		JoinRetryInterval  time.Duration `mapstructure:"join_retry_interval"`
		MaxJoinAttempts    int           `mapstructure:"max_join_attempts"`
		RXWindow           time.Duration `mapstructure:"rx_window"`
		TTNChannelPlan     bool          `mapstructure:"ttn_channel_plan"`
	} `mapstructure:"lorawan"`

	Gateway struct {
		GatewayID string `mapstructure:"gateway_id"`

		Backend struct {
			Type string `mapstructure:"type"`

			MQTT struct {
				Server               string        `mapstructure:"server"`
				Username             string        `mapstructure:"username"`
				Password             string        `mapstructure:"password"`
				QOS                  uint8         `mapstructure:"qos"`
				CleanSession         bool          `mapstructure:"clean_session"`
				ClientID             string        `mapstructure:"client_id"`
				CACert               string        `mapstructure:"ca_cert"`
				TLSCert              string        `mapstructure:"tls_cert"`
				TLSKey               string        `mapstructure:"tls_key"`
				EventTopicTemplate   string        `mapstructure:"event_topic_template"`
				CommandTopicTemplate string        `mapstructure:"command_topic_template"`
				Marshaler            string        `mapstructure:"marshaler"`
				MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
			} `mapstructure:"mqtt"`
		} `mapstructure:"backend"`
	} `mapstructure:"gateway"`

	Sensor struct {
		Type        string        `mapstructure:"type"`
		I2CBus      string        `mapstructure:"i2c_bus"`
		I2CAddress  uint16        `mapstructure:"i2c_address"`
		SettleDelay time.Duration `mapstructure:"settle_delay"`

		Retry struct {
			MaxRetries int           `mapstructure:"max_retries"`
			Backoff    time.Duration `mapstructure:"backoff"`
		} `mapstructure:"retry"`

		Simulated struct {
			Temperature float64 `mapstructure:"temperature"`
			Humidity    float64 `mapstructure:"humidity"`
			StdDev      float64 `mapstructure:"stddev"`
		} `mapstructure:"simulated"`
	} `mapstructure:"sensor"`

	Node struct {
		UplinkInterval time.Duration `mapstructure:"uplink_interval"`
		FPort          uint8         `mapstructure:"fport"`
		PumpInterval   time.Duration `mapstructure:"pump_interval"`
		DeepSleep      bool          `mapstructure:"deep_sleep"`
	} `mapstructure:"node"`

	Monitoring struct {
		Bind                string `mapstructure:"bind"`
		PrometheusEndpoint  bool   `mapstructure:"prometheus_endpoint"`
		HealthcheckEndpoint bool   `mapstructure:"healthcheck_endpoint"`
	} `mapstructure:"monitoring"`
}

// C holds the global configuration.
var C Config
