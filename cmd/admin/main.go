package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/docbind-trust-core/api"
	"github.com/ruteri/docbind-trust-core/api/clients"
	"github.com/ruteri/docbind-trust-core/capability"
	"github.com/ruteri/docbind-trust-core/cmd/flags"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/urfave/cli/v2"
)

var flagDocumentID = &cli.StringFlag{
	Name:     "document",
	Required: true,
	Usage:    "document id. 64-char hex string with no 0x prefix",
}
var flagComponentID = &cli.StringFlag{
	Name:     "component",
	Required: true,
	Usage:    "component id. 64-char hex string with no 0x prefix",
}
var flagContentHash = &cli.StringFlag{
	Name:     "content-hash",
	Required: true,
	Usage:    "document content hash. 64-char hex string with no 0x prefix",
}

func newClient(cCtx *cli.Context) *clients.TrustCoreClient {
	return clients.NewTrustCoreClient(cCtx.String(flags.ServerAddrFlag.Name))
}

func caller(cCtx *cli.Context) (interfaces.Identity, error) {
	return interfaces.NewIdentityFromHex(cCtx.String(flags.CallerFlag.Name))
}

func documentID(cCtx *cli.Context) (interfaces.DocumentID, error) {
	return interfaces.NewDocumentIDFromHex(cCtx.String(flagDocumentID.Name))
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	app := &cli.App{
		Name:  "trustcore-admin",
		Usage: "Administer a trustcore server",
		Flags: []cli.Flag{flags.ServerAddrFlag},
		Commands: []*cli.Command{
			{
				Name:  "document",
				Usage: "Document registration and ownership operations",
				Subcommands: []*cli.Command{
					{
						Name:  "register",
						Usage: "Register a document by its content hash",
						Flags: []cli.Flag{
							flags.CallerFlag,
							flagContentHash,
							&cli.StringFlag{Name: "tokenizer", Usage: "tokenizer component id the content hash is bound to"},
							&cli.StringFlag{Name: "primary-resolver", Usage: "primary resolver component id"},
							&cli.StringFlag{Name: "executor", Usage: "executor identity to authorize at registration"},
						},
						Action: func(cCtx *cli.Context) error {
							who, err := caller(cCtx)
							if err != nil {
								return err
							}
							hash, err := interfaces.NewContentHashFromHex(cCtx.String(flagContentHash.Name))
							if err != nil {
								return err
							}

							req := api.RegisterDocumentRequest{Caller: who, ContentHash: hash}
							if raw := cCtx.String("tokenizer"); raw != "" {
								req.TokenizerBinding, err = interfaces.NewComponentIDFromHex(raw)
								if err != nil {
									return err
								}
							}
							if raw := cCtx.String("primary-resolver"); raw != "" {
								req.PrimaryResolverID, err = interfaces.NewComponentIDFromHex(raw)
								if err != nil {
									return err
								}
							}
							if raw := cCtx.String("executor"); raw != "" {
								req.Executor, err = interfaces.NewIdentityFromHex(raw)
								if err != nil {
									return err
								}
							}

							id, err := newClient(cCtx).RegisterDocument(cCtx.Context, req)
							if err != nil {
								return err
							}
							fmt.Println(id.String())
							return nil
						},
					},
					{
						Name:  "get",
						Usage: "Fetch a document record",
						Flags: []cli.Flag{flagDocumentID},
						Action: func(cCtx *cli.Context) error {
							id, err := documentID(cCtx)
							if err != nil {
								return err
							}
							record, err := newClient(cCtx).GetDocument(cCtx.Context, id)
							if err != nil {
								return err
							}
							return printJSON(record)
						},
					},
					{
						Name:  "transfer",
						Usage: "Transfer document ownership",
						Flags: []cli.Flag{
							flagDocumentID,
							flags.CallerFlag,
							&cli.StringFlag{Name: "new-owner", Required: true, Usage: "identity receiving ownership"},
							&cli.StringFlag{Name: "reason", Required: true, Usage: "audit reason recorded with the transfer"},
						},
						Action: func(cCtx *cli.Context) error {
							id, err := documentID(cCtx)
							if err != nil {
								return err
							}
							who, err := caller(cCtx)
							if err != nil {
								return err
							}
							newOwner, err := interfaces.NewIdentityFromHex(cCtx.String("new-owner"))
							if err != nil {
								return err
							}
							return newClient(cCtx).TransferOwnership(cCtx.Context, id, api.TransferOwnershipRequest{
								Caller:   who,
								NewOwner: newOwner,
								Reason:   cCtx.String("reason"),
							})
						},
					},
					{
						Name:  "authorize-executor",
						Usage: "Authorize an executor for a document",
						Flags: []cli.Flag{
							flagDocumentID,
							flags.CallerFlag,
							&cli.StringFlag{Name: "executor", Required: true, Usage: "executor identity"},
							&cli.StringFlag{Name: "trust", Value: "unconditional", Usage: "trust class: allow_listed, code_identity or unconditional"},
							&cli.StringFlag{Name: "component", Usage: "component id backing a code_identity executor"},
						},
						Action: func(cCtx *cli.Context) error {
							id, err := documentID(cCtx)
							if err != nil {
								return err
							}
							who, err := caller(cCtx)
							if err != nil {
								return err
							}
							executor, err := interfaces.NewIdentityFromHex(cCtx.String("executor"))
							if err != nil {
								return err
							}
							trust, err := interfaces.ParseExecutorTrust(cCtx.String("trust"))
							if err != nil {
								return err
							}

							req := api.AuthorizeExecutorRequest{Caller: who, Executor: executor, Trust: trust}
							if raw := cCtx.String("component"); raw != "" {
								req.ComponentID, err = interfaces.NewComponentIDFromHex(raw)
								if err != nil {
									return err
								}
							}
							return newClient(cCtx).AuthorizeExecutor(cCtx.Context, id, req)
						},
					},
					{
						Name:  "revoke-executor",
						Usage: "Revoke a document's executor binding",
						Flags: []cli.Flag{flagDocumentID, flags.CallerFlag},
						Action: func(cCtx *cli.Context) error {
							id, err := documentID(cCtx)
							if err != nil {
								return err
							}
							who, err := caller(cCtx)
							if err != nil {
								return err
							}
							return newClient(cCtx).RevokeExecutor(cCtx.Context, id, api.RevokeExecutorRequest{Caller: who})
						},
					},
					{
						Name:  "set-resolver",
						Usage: "Set the primary resolver or add an additional one",
						Flags: []cli.Flag{
							flagDocumentID,
							flags.CallerFlag,
							&cli.StringFlag{Name: "resolver", Required: true, Usage: "resolver component id"},
							&cli.BoolFlag{Name: "additional", Usage: "append as an additional resolver instead of replacing the primary"},
						},
						Action: func(cCtx *cli.Context) error {
							id, err := documentID(cCtx)
							if err != nil {
								return err
							}
							who, err := caller(cCtx)
							if err != nil {
								return err
							}
							resolverID, err := interfaces.NewComponentIDFromHex(cCtx.String("resolver"))
							if err != nil {
								return err
							}

							req := api.SetResolverRequest{Caller: who, ResolverID: resolverID}
							if cCtx.Bool("additional") {
								return newClient(cCtx).AddAdditionalResolver(cCtx.Context, id, req)
							}
							return newClient(cCtx).SetPrimaryResolver(cCtx.Context, id, req)
						},
					},
					{
						Name:  "lock-resolvers",
						Usage: "Permanently lock a document's resolver configuration",
						Flags: []cli.Flag{flagDocumentID, flags.CallerFlag},
						Action: func(cCtx *cli.Context) error {
							id, err := documentID(cCtx)
							if err != nil {
								return err
							}
							who, err := caller(cCtx)
							if err != nil {
								return err
							}
							return newClient(cCtx).LockResolvers(cCtx.Context, id, api.LockResolversRequest{Caller: who})
						},
					},
					{
						Name:  "emergency-unlock",
						Usage: "Reopen a locked resolver configuration",
						Flags: []cli.Flag{
							flagDocumentID,
							flags.CallerFlag,
							&cli.StringFlag{Name: "justification", Required: true, Usage: "audit justification recorded with the unlock"},
						},
						Action: func(cCtx *cli.Context) error {
							id, err := documentID(cCtx)
							if err != nil {
								return err
							}
							who, err := caller(cCtx)
							if err != nil {
								return err
							}
							return newClient(cCtx).EmergencyUnlockResolvers(cCtx.Context, id, api.EmergencyUnlockRequest{
								Caller:        who,
								Justification: cCtx.String("justification"),
							})
						},
					},
					{
						Name:  "verify",
						Usage: "Verify a capability claim against a document",
						Flags: []cli.Flag{
							flagDocumentID,
							&cli.StringFlag{Name: "claim", Required: true, Usage: "claim id held by the attestation provider"},
							&cli.StringFlag{Name: "claimant", Required: true, Usage: "identity presenting the claim"},
							&cli.StringFlag{Name: "required", Required: true, Usage: "required capability set as a hex bitmask"},
						},
						Action: func(cCtx *cli.Context) error {
							id, err := documentID(cCtx)
							if err != nil {
								return err
							}
							claimant, err := interfaces.NewIdentityFromHex(cCtx.String("claimant"))
							if err != nil {
								return err
							}
							required, err := capability.FromHex(cCtx.String("required"))
							if err != nil {
								return err
							}
							verdict, err := newClient(cCtx).VerifyCapability(cCtx.Context, id, api.VerifyCapabilityRequest{
								ClaimID:  cCtx.String("claim"),
								Claimant: claimant,
								Required: required,
							})
							if err != nil {
								return err
							}
							return printJSON(verdict)
						},
					},
				},
			},
			{
				Name:  "component",
				Usage: "Infrastructure component operations",
				Subcommands: []*cli.Command{
					{
						Name:  "register",
						Usage: "Register an infrastructure component",
						Flags: []cli.Flag{
							flagComponentID,
							&cli.StringFlag{Name: "type", Required: true, Usage: "component type: token_implementation, resolver, verifier or provider"},
							&cli.StringFlag{Name: "artifact-uri", Required: true, Usage: "storage backend location URI holding the artifact"},
							&cli.StringFlag{Name: "artifact-id", Required: true, Usage: "artifact content address. 64-char hex string"},
							&cli.StringFlag{Name: "endpoint", Usage: "endpoint the running component serves on"},
							&cli.StringFlag{Name: "description", Usage: "free-form component description"},
						},
						Action: func(cCtx *cli.Context) error {
							id, err := interfaces.NewComponentIDFromHex(cCtx.String(flagComponentID.Name))
							if err != nil {
								return err
							}
							componentType, err := interfaces.ParseComponentType(cCtx.String("type"))
							if err != nil {
								return err
							}
							artifactID, err := interfaces.NewContentHashFromHex(cCtx.String("artifact-id"))
							if err != nil {
								return err
							}

							record, err := newClient(cCtx).RegisterComponent(cCtx.Context, api.RegisterComponentRequest{
								ID: id,
								Ref: interfaces.ComponentRef{
									ArtifactURI: cCtx.String("artifact-uri"),
									ArtifactID:  artifactID,
									Endpoint:    cCtx.String("endpoint"),
								},
								Type:        componentType,
								Description: cCtx.String("description"),
							})
							if err != nil {
								return err
							}
							return printJSON(record)
						},
					},
					{
						Name:  "resolve",
						Usage: "Resolve an active component record",
						Flags: []cli.Flag{flagComponentID},
						Action: func(cCtx *cli.Context) error {
							id, err := interfaces.NewComponentIDFromHex(cCtx.String(flagComponentID.Name))
							if err != nil {
								return err
							}
							record, err := newClient(cCtx).ResolveComponent(cCtx.Context, id)
							if err != nil {
								return err
							}
							return printJSON(record)
						},
					},
					{
						Name:  "deactivate",
						Usage: "Take a component out of resolution",
						Flags: []cli.Flag{
							flagComponentID,
							&cli.StringFlag{Name: "reason", Required: true, Usage: "audit reason recorded with the deactivation"},
						},
						Action: func(cCtx *cli.Context) error {
							id, err := interfaces.NewComponentIDFromHex(cCtx.String(flagComponentID.Name))
							if err != nil {
								return err
							}
							return newClient(cCtx).DeactivateComponent(cCtx.Context, id, cCtx.String("reason"))
						},
					},
					{
						Name:  "reactivate",
						Usage: "Return a deactivated component to resolution",
						Flags: []cli.Flag{flagComponentID},
						Action: func(cCtx *cli.Context) error {
							id, err := interfaces.NewComponentIDFromHex(cCtx.String(flagComponentID.Name))
							if err != nil {
								return err
							}
							return newClient(cCtx).ReactivateComponent(cCtx.Context, id)
						},
					},
					{
						Name:  "list",
						Usage: "List registered components",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "type", Usage: "filter by component type"},
							&cli.IntFlag{Name: "offset", Value: 0},
							&cli.IntFlag{Name: "limit", Value: 50},
						},
						Action: func(cCtx *cli.Context) error {
							page, err := newClient(cCtx).ListComponents(cCtx.Context,
								cCtx.String("type"), cCtx.Int("offset"), cCtx.Int("limit"))
							if err != nil {
								return err
							}
							return printJSON(page)
						},
					},
				},
			},
			{
				Name:  "governance",
				Usage: "Governance stage operations",
				Subcommands: []*cli.Command{
					{
						Name:  "state",
						Usage: "Show the current governance state",
						Action: func(cCtx *cli.Context) error {
							state, err := newClient(cCtx).GovernanceState(cCtx.Context)
							if err != nil {
								return err
							}
							return printJSON(state)
						},
					},
					{
						Name:  "transition",
						Usage: "Advance governance to the next stage",
						Flags: []cli.Flag{
							flags.CallerFlag,
							&cli.StringFlag{Name: "next-stage", Required: true, Usage: "stage to advance to: guardian, community or frozen"},
							&cli.StringFlag{Name: "new-authority", Usage: "authority for the new stage"},
						},
						Action: func(cCtx *cli.Context) error {
							who, err := caller(cCtx)
							if err != nil {
								return err
							}
							next, err := interfaces.ParseGovernanceStage(cCtx.String("next-stage"))
							if err != nil {
								return err
							}

							req := api.GovernanceTransitionRequest{Caller: who, NextStage: next}
							if raw := cCtx.String("new-authority"); raw != "" {
								req.NewAuthority, err = interfaces.NewIdentityFromHex(raw)
								if err != nil {
									return err
								}
							}
							state, err := newClient(cCtx).TransitionGovernance(cCtx.Context, req)
							if err != nil {
								return err
							}
							return printJSON(state)
						},
					},
					{
						Name:  "freeze",
						Usage: "Permanently freeze governance",
						Flags: []cli.Flag{flags.CallerFlag},
						Action: func(cCtx *cli.Context) error {
							who, err := caller(cCtx)
							if err != nil {
								return err
							}
							state, err := newClient(cCtx).FreezeGovernance(cCtx.Context, api.FreezeGovernanceRequest{Caller: who})
							if err != nil {
								return err
							}
							return printJSON(state)
						},
					},
					{
						Name:  "pause",
						Usage: "Pause all mutating operations",
						Flags: []cli.Flag{flags.CallerFlag},
						Action: func(cCtx *cli.Context) error {
							who, err := caller(cCtx)
							if err != nil {
								return err
							}
							return newClient(cCtx).SetPause(cCtx.Context, api.SetPauseRequest{Caller: who, Paused: true})
						},
					},
					{
						Name:  "unpause",
						Usage: "Resume mutating operations",
						Flags: []cli.Flag{flags.CallerFlag},
						Action: func(cCtx *cli.Context) error {
							who, err := caller(cCtx)
							if err != nil {
								return err
							}
							return newClient(cCtx).SetPause(cCtx.Context, api.SetPauseRequest{Caller: who, Paused: false})
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
