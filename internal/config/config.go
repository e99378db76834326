// Package config aggregates the per-package configuration structs into one
// environment-driven gateway configuration.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/edukita/apigw/internal/auth"
	"github.com/edukita/apigw/internal/backend"
	"github.com/edukita/apigw/internal/logger"
	"github.com/edukita/apigw/internal/mobile"
	"github.com/edukita/apigw/internal/redisstore"
	"github.com/edukita/apigw/internal/server"
	"github.com/edukita/apigw/internal/session"
)

// Config is the full gateway configuration.
type Config struct {
	Logger  logger.Config
	Server  server.Config
	Redis   redisstore.Config
	Session session.Config
	Backend backend.Config
	Mobile  mobile.Config

	// SAML providers. Each reads its own environment prefix, so for
	// example the AD callback URL is AD_SAML_CALLBACK_URL.
	AD            auth.ProviderConfig `envPrefix:"AD_SAML_"`
	Evaka         auth.ProviderConfig `envPrefix:"EVAKA_SAML_"`
	SFI           auth.ProviderConfig `envPrefix:"SFI_SAML_"`
	EvakaCustomer auth.ProviderConfig `envPrefix:"EVAKA_CUSTOMER_SAML_"`

	// CookieSecrets sign session and mobile cookies. The first secret
	// signs; the rest still verify, enabling zero-downtime rotation.
	CookieSecrets []string `env:"COOKIE_SECRETS,required" envSeparator:","`

	// IdPCertDir is the directory holding well-known IdP certificates
	// referenced by name from provider configs.
	IdPCertDir string `env:"IDP_CERT_DIR" envDefault:"certificates"`

	// DevLogin switches every provider to the mock strategy.
	DevLogin bool `env:"DEV_LOGIN" envDefault:"false"`

	// IncludeErrorDetail puts error messages into HTTP responses. Off in
	// production; failures respond with generic bodies and full detail in
	// the log.
	IncludeErrorDetail bool `env:"INCLUDE_ERROR_DETAIL" envDefault:"false"`

	// Version is the deployed commit, reported as apiVersion.
	Version string `env:"APP_COMMIT" envDefault:"UNDEFINED"`

	// Post-login/logout redirect targets, per audience.
	CitizenSuccessURL string `env:"CITIZEN_SUCCESS_URL" envDefault:"/"`
	CitizenFailureURL string `env:"CITIZEN_FAILURE_URL" envDefault:"/login?loginError=true"`
	CitizenLogoutURL  string `env:"CITIZEN_LOGOUT_URL" envDefault:"/"`

	EmployeeSuccessURL string `env:"EMPLOYEE_SUCCESS_URL" envDefault:"/employee"`
	EmployeeFailureURL string `env:"EMPLOYEE_FAILURE_URL" envDefault:"/employee/login?loginError=true"`
	EmployeeLogoutURL  string `env:"EMPLOYEE_LOGOUT_URL" envDefault:"/employee/login"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	// Provider names are fixed routing identifiers, not configuration.
	cfg.AD.Name = "ad"
	cfg.Evaka.Name = "evaka"
	cfg.SFI.Name = "sfi"
	cfg.EvakaCustomer.Name = "evaka-customer"

	if cfg.DevLogin {
		cfg.AD.Mock = true
		cfg.Evaka.Mock = true
		cfg.SFI.Mock = true
		cfg.EvakaCustomer.Mock = true
	}

	return cfg, nil
}

// MustLoad is Load that panics on failure. For use in main only.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
