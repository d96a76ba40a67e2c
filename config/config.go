package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// EnvConfig holds the connection and credential surface loaded from the
// environment. The sync behaviour itself (groups, attributes, batch sizes,
// cadences) lives in the YAML sync config, not here.
type EnvConfig struct {
	// LDAP
	BaseDN   string
	DcFQDN   string
	Username string
	Password string
	PageSize uint32

	// Postgres snapshot cache
	DatabaseDSN   string
	ManagementDSN string

	// Cloud MFA admin API
	APIHost           string
	APIIntegrationKey string
	APISecretKey      string

	// Status server listen address, e.g. ":8080". Empty disables it.
	WebAddr string
}

// LoadEnvConfig reads configuration from the given dotenv file plus the
// process environment.
func LoadEnvConfig(configName string) (EnvConfig, error) {
	if err := godotenv.Load(configName); err != nil {
		return EnvConfig{}, errors.Wrapf(err, "loading env file %s", configName)
	}

	cfg := EnvConfig{
		BaseDN:            os.Getenv("LDAP_BASEDN"),
		DcFQDN:            os.Getenv("LDAP_DCFQDN"),
		Username:          os.Getenv("LDAP_USERNAME"),
		Password:          os.Getenv("LDAP_PASSWORD"),
		DatabaseDSN:       os.Getenv("DATABASE_DSN"),
		ManagementDSN:     os.Getenv("MANAGEMENT_DSN"),
		APIHost:           os.Getenv("API_HOST"),
		APIIntegrationKey: os.Getenv("API_IKEY"),
		APISecretKey:      os.Getenv("API_SKEY"),
		WebAddr:           os.Getenv("WEB_ADDR"),
	}

	pageSize := 1000
	if raw := os.Getenv("LDAP_PAGESIZE"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return EnvConfig{}, errors.Wrap(err, "parsing LDAP_PAGESIZE")
		}
		if parsed < 1 {
			return EnvConfig{}, errors.Newf("LDAP_PAGESIZE must be positive, got %d", parsed)
		}
		pageSize = parsed
	}
	cfg.PageSize = uint32(pageSize)

	for name, value := range map[string]string{
		"LDAP_BASEDN":  cfg.BaseDN,
		"LDAP_DCFQDN":  cfg.DcFQDN,
		"DATABASE_DSN": cfg.DatabaseDSN,
		"API_HOST":     cfg.APIHost,
		"API_IKEY":     cfg.APIIntegrationKey,
		"API_SKEY":     cfg.APISecretKey,
	} {
		if value == "" {
			return EnvConfig{}, errors.Newf("%s is not set", name)
		}
	}

	return cfg, nil
}
