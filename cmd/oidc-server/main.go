// Package main runs the flow-idm provider with in-memory repositories.
// This is useful for:
// - Quick development and testing
// - Demo/prototype environments
// - Integration testing the device, CIBA and flow endpoints without setup
//
// Note: All data is lost when the server stops unless JWKS_DATA_DIR is set,
// in which case signing keys persist across restarts.
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"

	"github.com/tenauth/flow-idm/pkg/backchannel"
	"github.com/tenauth/flow-idm/pkg/ciba"
	cibaapi "github.com/tenauth/flow-idm/pkg/ciba/api"
	"github.com/tenauth/flow-idm/pkg/devicecode"
	deviceapi "github.com/tenauth/flow-idm/pkg/devicecode/api"
	"github.com/tenauth/flow-idm/pkg/flowadmin"
	flowadminapi "github.com/tenauth/flow-idm/pkg/flowadmin/api"
	"github.com/tenauth/flow-idm/pkg/flowgraph"
	"github.com/tenauth/flow-idm/pkg/flowruntime"
	flowruntimeapi "github.com/tenauth/flow-idm/pkg/flowruntime/api"
	"github.com/tenauth/flow-idm/pkg/jwks"
	"github.com/tenauth/flow-idm/pkg/oauth2"
	"github.com/tenauth/flow-idm/pkg/oauth2client"
	clientapi "github.com/tenauth/flow-idm/pkg/oauth2client/api"
	"github.com/tenauth/flow-idm/pkg/ratelimit"
	"github.com/tenauth/flow-idm/pkg/tokengenerator"
	"github.com/tenauth/flow-idm/pkg/wellknown"
)

type ServerConfig struct {
	BaseURL     string `env:"BASE_URL" env-default:"http://localhost:4000"`
	Issuer      string `env:"ISSUER" env-default:"http://localhost:4000"`
	JwksDataDir string `env:"JWKS_DATA_DIR" env-default:""`
}

type TokenConfig struct {
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" env-default:"15m"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" env-default:"24h"`
}

type DeviceGrantConfig struct {
	CodeTTL      time.Duration `env:"DEVICE_CODE_TTL" env-default:"10m"`
	PollInterval time.Duration `env:"DEVICE_POLL_INTERVAL" env-default:"5s"`
	// Brute-force protection on the user code verification page
	VerifyMaxFailures int           `env:"DEVICE_VERIFY_MAX_FAILURES" env-default:"5"`
	VerifyWindow      time.Duration `env:"DEVICE_VERIFY_WINDOW" env-default:"15m"`
	VerifyBlockFor    time.Duration `env:"DEVICE_VERIFY_BLOCK_FOR" env-default:"15m"`
}

type CibaConfig struct {
	RequestTTL   time.Duration `env:"CIBA_REQUEST_TTL" env-default:"5m"`
	PollInterval time.Duration `env:"CIBA_POLL_INTERVAL" env-default:"5s"`
}

type Config struct {
	AppConfig         app.AppConfig
	ServerConfig      ServerConfig
	TokenConfig       TokenConfig
	DeviceGrantConfig DeviceGrantConfig
	CibaConfig        CibaConfig
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			slog.Error("Failed to load .env file", "err", err)
		}
	}

	config := Config{}
	if err := cleanenv.ReadEnv(&config); err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Signing keys
	jwksRepository, err := newJWKSRepository(config.ServerConfig.JwksDataDir)
	if err != nil {
		slog.Error("Failed to initialize key repository", "err", err)
		os.Exit(1)
	}
	jwksService, err := jwks.NewJWKSService(jwksRepository)
	if err != nil {
		slog.Error("Failed to initialize JWKS service", "err", err)
		os.Exit(1)
	}
	signingGenerator, err := jwksService.SigningGenerator(ctx, config.ServerConfig.Issuer, config.ServerConfig.BaseURL)
	if err != nil {
		slog.Error("Failed to bind signing key", "err", err)
		os.Exit(1)
	}

	jwtService := tokengenerator.NewJwtService(
		tokengenerator.WithDefaultTokenGenerator(signingGenerator),
		tokengenerator.WithAccessTokenExpiry(config.TokenConfig.AccessTokenExpiry),
		tokengenerator.WithRefreshTokenExpiry(config.TokenConfig.RefreshTokenExpiry),
	)
	tokenIssuer := tokengenerator.NewTokenSetIssuer(jwtService)

	// Users and clients
	directory := newUserDirectory()
	seedUsers(directory)

	clientService := oauth2client.NewClientService(oauth2client.NewInMemClientRepository())
	seedClients(ctx, clientService)

	// Grant services
	deviceService := devicecode.NewDeviceService(
		devicecode.NewInMemDeviceAuthorizationRepository(),
		tokenIssuer,
		config.ServerConfig.BaseURL+"/oauth2/device",
		devicecode.WithCodeTTL(config.DeviceGrantConfig.CodeTTL),
		devicecode.WithPollInterval(config.DeviceGrantConfig.PollInterval),
	)
	verifyLimiter := ratelimit.NewFailureLimiter(
		config.DeviceGrantConfig.VerifyMaxFailures,
		config.DeviceGrantConfig.VerifyWindow,
		config.DeviceGrantConfig.VerifyBlockFor,
	)

	cibaService := ciba.NewCibaService(
		ciba.NewInMemAuthRequestRepository(),
		tokenIssuer,
		directory,
		backchannel.NewDispatcher(),
		clientService,
		ciba.WithRequestTTL(config.CibaConfig.RequestTTL),
		ciba.WithPollInterval(config.CibaConfig.PollInterval),
	)

	oauth2Handle := oauth2.NewHandle(clientService, deviceService, cibaService, oauth2.NewRevocationStore())

	// Flow engine
	flowService := flowadmin.NewFlowService(flowadmin.NewInMemFlowRepository())
	seedFlows(ctx, flowService)

	executor := flowruntime.NewExecutor(
		flowruntime.NewInMemSessionRepository(),
		&flowruntime.ServiceDependencies{
			CredentialVerifier: directory,
			TokenIssuer:        tokenIssuer,
			ActionDispatcher:   &logDispatcher{},
		},
	)

	// Flow admin requires an access token from this provider
	activeKey, err := jwksService.GetActiveSigningKey(ctx)
	if err != nil {
		slog.Error("Failed to load active signing key", "err", err)
		os.Exit(1)
	}
	jwtAuth := jwtauth.New("RS256", activeKey.PrivateKey, activeKey.PrivateKey.Public())

	server := app.DefaultApp()
	server.R.Use(ratelimit.NewMiddleware(ratelimit.DefaultConfig()).Handler)

	wellknown.NewHandler(wellknown.Config{
		Issuer:  config.ServerConfig.Issuer,
		BaseURL: config.ServerConfig.BaseURL,
	}, jwksService).Routes(server.R)

	deviceHandle := deviceapi.NewHandle(deviceService, clientService, verifyLimiter)
	server.R.Route("/oauth2", func(r chi.Router) {
		oauth2Handle.Routes(r)
		deviceHandle.Routes(r)
		cibaapi.NewHandle(cibaService, clientService).Routes(r)
		clientapi.NewHandle(clientService).Routes(r)
	})

	// Verification form posts land here as well as on /oauth2/device/verify.
	server.R.Post("/api/device/verify", deviceHandle.VerifyUserCode)

	server.R.Route("/api/v1", func(r chi.Router) {
		flowruntimeapi.NewHandle(flowService, executor).Routes(r)
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(jwtAuth))
			r.Use(jwtauth.Authenticator(jwtAuth))
			flowadminapi.NewHandle(flowService).Routes(r)
		})
	})

	slog.Info(strings.Repeat("=", 60))
	slog.Info("flow-idm ready", "baseUrl", config.ServerConfig.BaseURL)
	slog.Info("")
	slog.Info("Test credentials:")
	slog.Info("  Username: admin@example.com")
	slog.Info("  Password: password123")
	slog.Info("  Client:   demo-backend / demo-secret")
	slog.Info("")
	slog.Info("Endpoints:")
	slog.Info("  GET  /.well-known/openid-configuration  - Discovery")
	slog.Info("  POST /oauth2/device_authorization       - Device grant")
	slog.Info("  POST /oauth2/bc-authorize               - CIBA")
	slog.Info("  POST /oauth2/token                      - Token endpoint")
	slog.Info("  POST /api/v1/flows/{id}/start           - Run a flow")
	slog.Info(strings.Repeat("=", 60))

	server.Run()
}

func newJWKSRepository(dataDir string) (jwks.JWKSRepository, error) {
	if dataDir == "" {
		return jwks.NewInMemoryJWKSRepository(), nil
	}
	slog.Info("Persisting signing keys", "dir", dataDir)
	return jwks.NewFileJWKSRepository(dataDir)
}

func seedClients(ctx context.Context, clientService *oauth2client.ClientService) {
	clients := []struct {
		client *oauth2client.Client
		secret string
	}{
		{
			client: &oauth2client.Client{
				ClientID:   "tv-app",
				Name:       "Demo TV App",
				ClientType: "public",
				GrantTypes: []string{oauth2client.GrantDeviceCode},
				Scopes:     []string{"openid", "profile"},
			},
		},
		{
			client: &oauth2client.Client{
				ClientID:                "demo-backend",
				Name:                    "Demo Backend",
				ClientType:              "confidential",
				GrantTypes:              []string{oauth2client.GrantDeviceCode, oauth2client.GrantCIBA},
				Scopes:                  []string{"openid", "profile", "email"},
				BackchannelDeliveryMode: oauth2client.DeliveryPoll,
			},
			secret: "demo-secret",
		},
	}

	for _, seed := range clients {
		if _, err := clientService.RegisterClient(ctx, seed.client, seed.secret); err != nil {
			slog.Error("Failed to seed client", "clientId", seed.client.ClientID, "err", err)
			os.Exit(1)
		}
		slog.Info("Seeded client", "clientId", seed.client.ClientID)
	}
}

func seedUsers(directory *userDirectory) {
	directory.AddUser("admin@example.com", "password123", map[string]any{
		"name":  "Admin User",
		"email": "admin@example.com",
		"roles": []string{"admin"},
	})
	directory.AddUser("ada@example.com", "password123", map[string]any{
		"name":  "Ada Lovelace",
		"email": "ada@example.com",
		"roles": []string{"user"},
	})
}

// seedFlows publishes a basic password login flow so the engine is usable
// out of the box.
func seedFlows(ctx context.Context, flowService *flowadmin.FlowService) {
	definition := &flowgraph.GraphDefinition{
		ID:        "password-login",
		Name:      "Password Login",
		ProfileID: flowgraph.ProfileHumanBasic,
		Nodes: []flowgraph.GraphNode{
			{ID: "start", Type: flowgraph.NodeStart},
			{ID: "login", Type: flowgraph.NodeLogin},
			{ID: "tokens", Type: flowgraph.NodeIssueTokens},
			{ID: "done", Type: flowgraph.NodeEnd},
		},
		Edges: []flowgraph.GraphEdge{
			{ID: "e1", Source: "start", Target: "login", Type: flowgraph.EdgeSuccess},
			{ID: "e2", Source: "login", Target: "tokens", Type: flowgraph.EdgeSuccess},
			{ID: "e3", Source: "tokens", Target: "done", Type: flowgraph.EdgeSuccess},
		},
	}
	if _, err := flowService.CreateFlow(ctx, definition); err != nil {
		slog.Error("Failed to seed login flow", "flowId", definition.ID, "err", err)
		os.Exit(1)
	}
	slog.Info("Seeded flow", "flowId", definition.ID)
}
