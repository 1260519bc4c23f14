package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/avolkovs/vaultshare/internal/flagx"
	"github.com/avolkovs/vaultshare/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	SharingEnabled              *bool          `json:"sharing_enabled"`
	MaxActiveShares             int            `json:"max_active_shares"`
	DispatchQueueSize           int            `json:"dispatch_queue_size"`
	DispatchRetryBase           timex.Duration `json:"dispatch_retry_base"`
	DispatchMaxRetries          int            `json:"dispatch_max_retries"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
	ContainerServiceURL         string         `json:"container_service_url"`
	UserDirectoryURL            string         `json:"user_directory_url"`
	DeliveryServiceURL          string         `json:"delivery_service_url"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path is taken from the -c or -config command-line flags.
// If neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics. Fields absent from the file
// keep their current values.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{
		EndpointAddrHTTP:            config.EndpointAddrHTTP,
		DatabaseDSN:                 config.DatabaseDSN,
		SecretKey:                   config.SecretKey,
		AccessTokenValidityDuration: timex.Duration{Duration: config.AccessTokenValidityDuration},
		MaxActiveShares:             config.MaxActiveShares,
		DispatchQueueSize:           config.DispatchQueueSize,
		DispatchRetryBase:           timex.Duration{Duration: config.DispatchRetryBase},
		DispatchMaxRetries:          config.DispatchMaxRetries,
		S3RootUser:                  config.S3RootUser,
		S3RootPassword:              config.S3RootPassword,
		S3Bucket:                    config.S3Bucket,
		S3Region:                    config.S3Region,
		S3BaseEndpoint:              config.S3BaseEndpoint,
		ContainerServiceURL:         config.ContainerServiceURL,
		UserDirectoryURL:            config.UserDirectoryURL,
		DeliveryServiceURL:          config.DeliveryServiceURL,
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	if c.SharingEnabled != nil {
		config.SharingEnabled = *c.SharingEnabled
	}
	config.MaxActiveShares = c.MaxActiveShares
	config.DispatchQueueSize = c.DispatchQueueSize
	config.DispatchRetryBase = time.Duration(c.DispatchRetryBase.Duration)
	config.DispatchMaxRetries = c.DispatchMaxRetries
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.ContainerServiceURL = c.ContainerServiceURL
	config.UserDirectoryURL = c.UserDirectoryURL
	config.DeliveryServiceURL = c.DeliveryServiceURL
}
