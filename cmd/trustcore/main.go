package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ruteri/docbind-trust-core/attestation"
	"github.com/ruteri/docbind-trust-core/cmd/flags"
	"github.com/ruteri/docbind-trust-core/documents"
	"github.com/ruteri/docbind-trust-core/events"
	"github.com/ruteri/docbind-trust-core/governance"
	"github.com/ruteri/docbind-trust-core/httpserver"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/ruteri/docbind-trust-core/registry"
	"github.com/ruteri/docbind-trust-core/resolver"
	"github.com/ruteri/docbind-trust-core/storage"
	"github.com/urfave/cli/v2"
)

var serverFlags []cli.Flag = append([]cli.Flag{
	flags.ListenAddrFlag,
	&cli.StringFlag{
		Name:     "governance-authority",
		Required: true,
		Usage:    "initial governance authority identity. 40-char hex string with no 0x prefix",
	},
	&cli.StringFlag{
		Name:  "emergency-authority",
		Value: "",
		Usage: "emergency authority identity for time-limited resolver unlocks",
	},
	&cli.StringSliceFlag{
		Name:  "executor-allow-list",
		Usage: "pre-approved executor identities, repeatable",
	},
	&cli.Int64Flag{
		Name:  "emergency-window-hours",
		Value: 0,
		Usage: "hours after startup during which the emergency authority may unlock resolvers (0 uses the default)",
	},
	&cli.StringFlag{
		Name:  "dns-server",
		Value: "",
		Usage: "DNS server for dns+http resolver endpoint discovery (empty uses the local resolver)",
	},
	&cli.StringFlag{
		Name:  "verifier-id",
		Value: "",
		Usage: "this verifier's component id; enables capability verification when set",
	},
	&cli.StringFlag{
		Name:  "attestation-provider-id",
		Value: "",
		Usage: "component id of the attestation provider claims must come from",
	},
	&cli.StringFlag{
		Name:  "network-id",
		Value: "docbind-mainnet",
		Usage: "deployment network name claims must be issued for",
	},
	&cli.StringFlag{
		Name:  "claim-schema",
		Value: "docbind.capability-claim",
		Usage: "accepted claim schema name",
	},
	&cli.UintFlag{
		Name:  "claim-schema-version",
		Value: 1,
		Usage: "accepted claim schema version",
	},
	&cli.StringSliceFlag{
		Name:  "issuer-allow-list",
		Usage: "trusted claim issuer identities, repeatable",
	},
	&cli.Int64Flag{
		Name:  "max-claim-age-seconds",
		Value: 0,
		Usage: "reject claims older than this many seconds (0 disables the check)",
	},
}, flags.CommonFlags...)

func parseIdentities(raw []string) ([]interfaces.Identity, error) {
	out := make([]interfaces.Identity, 0, len(raw))
	for _, s := range raw {
		id, err := interfaces.NewIdentityFromHex(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid identity %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func main() {
	app := &cli.App{
		Name:  "trustcore",
		Usage: "Serve the document trust registry API",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")

			logger := flags.SetupLogger(cCtx)

			authority, err := interfaces.NewIdentityFromHex(cCtx.String("governance-authority"))
			if err != nil {
				logger.Error("Invalid governance-authority", "err", err)
				return err
			}

			var emergency interfaces.Identity
			if raw := cCtx.String("emergency-authority"); raw != "" {
				emergency, err = interfaces.NewIdentityFromHex(raw)
				if err != nil {
					logger.Error("Invalid emergency-authority", "err", err)
					return err
				}
			}

			allowList, err := parseIdentities(cCtx.StringSlice("executor-allow-list"))
			if err != nil {
				logger.Error("Invalid executor-allow-list", "err", err)
				return err
			}

			sink := events.NewSlogSink(logger)

			storageFactory := storage.NewFactory(logger)
			components := registry.New(storageFactory, sink, logger)

			gov := governance.NewMachine(governance.Config{
				InitialAuthority:   authority,
				EmergencyAuthority: emergency,
			}, sink, logger)

			hookBinder := &resolver.EndpointBinder{DNSServer: cCtx.String("dns-server")}
			dispatcher := resolver.NewDispatcher(components, hookBinder, sink, logger)

			// The verifier is optional. Without a verifier id configured the
			// capability verification endpoint reports an unconfigured verdict.
			var verifier *attestation.Verifier
			if raw := cCtx.String("verifier-id"); raw != "" {
				verifierID, err := interfaces.NewComponentIDFromHex(raw)
				if err != nil {
					logger.Error("Invalid verifier-id", "err", err)
					return err
				}
				providerID, err := interfaces.NewComponentIDFromHex(cCtx.String("attestation-provider-id"))
				if err != nil {
					logger.Error("Invalid attestation-provider-id", "err", err)
					return err
				}
				issuers, err := parseIdentities(cCtx.StringSlice("issuer-allow-list"))
				if err != nil {
					logger.Error("Invalid issuer-allow-list", "err", err)
					return err
				}

				verifier = attestation.NewVerifier(attestation.VerifierConfig{
					VerifierID:      verifierID,
					ProviderID:      providerID,
					NetworkID:       attestation.NetworkIDForName(cCtx.String("network-id")),
					SchemaID:        attestation.SchemaIDForName(cCtx.String("claim-schema")),
					SchemaVersion:   uint32(cCtx.Uint("claim-schema-version")),
					IssuerAllowList: issuers,
					MaxClaimAge:     time.Duration(cCtx.Int64("max-claim-age-seconds")) * time.Second,
				}, components, &attestation.EndpointBinder{}, logger)
				logger.Info("Capability verification enabled", "verifier", verifierID.String())
			}

			docs := documents.NewRegistry(documents.Config{
				EmergencyWindow:   time.Duration(cCtx.Int64("emergency-window-hours")) * time.Hour,
				ExecutorAllowList: allowList,
			}, components, dispatcher, verifier, gov, sink, logger)

			cfg := flags.ConfigureServer(cCtx, logger, listenAddr)

			handler := httpserver.NewHandler(docs, components, gov, logger)
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server", "listenAddr", listenAddr)
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
