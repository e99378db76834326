// Command apigw runs the API gateway: session handling, SAML authentication,
// mobile device identity, CSRF protection, and reverse proxying to the
// backend service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/edukita/apigw/internal/auth"
	"github.com/edukita/apigw/internal/backend"
	"github.com/edukita/apigw/internal/config"
	"github.com/edukita/apigw/internal/cookie"
	"github.com/edukita/apigw/internal/csrf"
	"github.com/edukita/apigw/internal/gateway"
	"github.com/edukita/apigw/internal/httperr"
	"github.com/edukita/apigw/internal/logger"
	"github.com/edukita/apigw/internal/mobile"
	"github.com/edukita/apigw/internal/proxy"
	"github.com/edukita/apigw/internal/redisstore"
	"github.com/edukita/apigw/internal/server"
	"github.com/edukita/apigw/internal/session"
)

func main() {
	// Missing .env is fine: production configures through the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	log := logger.New(cfg.Logger)

	if err := run(cfg, log); err != nil {
		log.Error("gateway exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := redisstore.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	cookies, err := cookie.New(cfg.CookieSecrets)
	if err != nil {
		return err
	}

	store := redisstore.New(redisClient)
	citizenSessions := session.NewManager(session.TypeCitizen, store, cookies, cfg.Session,
		session.WithLogger(log))
	employeeSessions := session.NewManager(session.TypeEmployee, store, cookies, cfg.Session,
		session.WithLogger(log))

	be := backend.New(cfg.Backend)
	responder := httperr.NewResponder(log, cfg.IncludeErrorDetail)
	secure := cfg.Session.SecureCookies

	citizenCSRF := csrf.New(session.TypeCitizen, cookies, responder, secure, log)
	employeeCSRF := csrf.New(session.TypeEmployee, cookies, responder, secure, log)

	codec, err := mobile.NewTokenCodec(cfg.Mobile)
	if err != nil {
		return err
	}
	mobileService := mobile.NewService(codec, be, employeeSessions, cookies, secure, log)

	bundle := auth.NewCertificateBundle(cfg.IdPCertDir)

	newStrategy := func(pcfg auth.ProviderConfig, resolver auth.UserResolver, devField, mountPath string) (auth.Strategy, error) {
		if pcfg.Mock {
			return auth.NewDevStrategy(pcfg, resolver, devField, mountPath+"/login/callback"), nil
		}
		replay := redisstore.NewReplayCache(redisClient, pcfg.Name+"-saml-resp:")
		return auth.NewSAMLStrategy(ctx, pcfg, bundle, resolver, replay, cookies, secure, log)
	}

	type providerSpec struct {
		cfg        auth.ProviderConfig
		resolver   auth.UserResolver
		sessions   *session.Manager
		devField   string
		mountPath  string
		successURL string
		failureURL string
		logoutURL  string
	}
	specs := map[string]providerSpec{
		"ad": {cfg.AD, auth.ADEmployeeResolver{Backend: be}, employeeSessions, "External id",
			"/api/internal/auth/ad", cfg.EmployeeSuccessURL, cfg.EmployeeFailureURL, cfg.EmployeeLogoutURL},
		"evaka": {cfg.Evaka, auth.KeycloakEmployeeResolver{Backend: be}, employeeSessions, "External id",
			"/api/internal/auth/evaka", cfg.EmployeeSuccessURL, cfg.EmployeeFailureURL, cfg.EmployeeLogoutURL},
		"sfi": {cfg.SFI, auth.CitizenResolver{Backend: be}, citizenSessions, "Social security number",
			"/api/application/auth/saml", cfg.CitizenSuccessURL, cfg.CitizenFailureURL, cfg.CitizenLogoutURL},
		"evaka-customer": {cfg.EvakaCustomer, auth.CitizenResolver{Backend: be}, citizenSessions, "Social security number",
			"/api/application/auth/evaka-customer", cfg.CitizenSuccessURL, cfg.CitizenFailureURL, cfg.CitizenLogoutURL},
	}

	handlers := make(map[string]*auth.Handlers, len(specs))
	for name, spec := range specs {
		strategy, err := newStrategy(spec.cfg, spec.resolver, spec.devField, spec.mountPath)
		if err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
		handlers[name] = auth.NewHandlers(name, strategy, spec.sessions,
			spec.successURL, spec.failureURL, spec.logoutURL,
			auth.WithHandlersLogger(log))
	}

	apiProxy, err := proxy.New(cfg.Backend.URL, proxy.WithLogger(log))
	if err != nil {
		return err
	}

	router := gateway.NewRouter(gateway.Deps{
		Log:              log,
		Version:          cfg.Version,
		HealthProbe:      redisstore.Healthcheck(redisClient),
		Responder:        responder,
		CitizenSessions:  citizenSessions,
		EmployeeSessions: employeeSessions,
		CitizenCSRF:      citizenCSRF,
		EmployeeCSRF:     employeeCSRF,
		Mobile:           mobileService,
		Proxy:            apiProxy,
		AD:               handlers["ad"],
		Evaka:            handlers["evaka"],
		SFI:              handlers["sfi"],
		EvakaCustomer:    handlers["evaka-customer"],
	})

	srv := server.New(cfg.Server, server.WithLogger(log))

	log.Info("starting api gateway",
		logger.Component("main"),
		slog.String("version", cfg.Version),
		slog.Bool("dev_login", cfg.DevLogin))

	if err := srv.Start(ctx, router); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
