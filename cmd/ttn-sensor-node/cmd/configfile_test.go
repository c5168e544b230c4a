package cmd

import (
	"bytes"
	"testing"
	"text/template"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/brocaar/ttn-sensor-node/internal/test"
)

func TestConfigTemplate(t *testing.T) {
	assert := require.New(t)

	conf := test.GetConfig()
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	var buf bytes.Buffer
	assert.NoError(tmpl.Execute(&buf, &conf))

	v := viper.New()
	v.SetConfigType("toml")
	assert.NoError(v.ReadConfig(&buf))

	assert.Equal("70B3D57ED0000000", v.GetString("device.app_eui"))
	assert.Equal([]string{"localhost:6379"}, v.GetStringSlice("redis.servers"))
	assert.Equal("EU868", v.GetString("lorawan.band"))
	assert.Equal(conf.LoRaWAN.JoinRetryInterval, v.GetDuration("lorawan.join_retry_interval"))
	assert.Equal("gateway/{{ .GatewayID }}/event/{{ .EventType }}", v.GetString("gateway.backend.mqtt.event_topic_template"))
	assert.Equal(21.5, v.GetFloat64("sensor.simulated.temperature"))
}
