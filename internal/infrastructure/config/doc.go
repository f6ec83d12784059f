// Package config loads the relay's YAML configuration, applies DH2MQTT_*
// environment overrides and rejects files missing the broker keys.
//
// Keep the broker password out of the file where possible and supply it
// through DH2MQTT_SERVER_PASSWORD instead.
package config
