package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	offerCommand = &cli.Command{
		Name:  "offer",
		Usage: "Register and inspect offers",
		Subcommands: cli.Commands{
			{
				Name:   "register",
				Usage:  "Register the offer described in a json file",
				Flags:  append([]cli.Flag{fileFlag}, clientFlags...),
				Action: registerOfferAction,
			},
			{
				Name:   "get",
				Usage:  "Get an offer",
				Flags:  append([]cli.Flag{offerIdFlag}, clientFlags...),
				Action: getOfferAction,
			},
		},
	}
	tokenCommand = &cli.Command{
		Name:  "token",
		Usage: "Drive the custody lifecycle of a token",
		Subcommands: cli.Commands{
			tokenSubcommand("check-in", "Check a token in, as custodian agent", "check-in"),
			tokenSubcommand(
				"request-checkout", "Request the checkout of an owned token", "checkout/request",
			),
			{
				Name:   "submit-tax",
				Usage:  "Set the tax due to check a token out, as seller agent",
				Flags:  append([]cli.Flag{tokenIdFlag, amountFlag}, clientFlags...),
				Action: submitTaxAction,
			},
			tokenSubcommand("clear", "Clear a checkout request", "checkout/clear"),
			tokenSubcommand("checkout", "Check a token out, as custodian agent", "checkout"),
			{
				Name:   "status",
				Usage:  "Get the checkout request of a token",
				Flags:  append([]cli.Flag{tokenIdFlag}, clientFlags...),
				Action: tokenStatusAction,
			},
		},
	}
	vaultCommand = &cli.Command{
		Name:  "vault",
		Usage: "Manage custody vaults",
		Subcommands: cli.Commands{
			{
				Name:   "get",
				Usage:  "Get a vault",
				Flags:  append([]cli.Flag{subjectFlag}, clientFlags...),
				Action: getVaultAction,
			},
			{
				Name:   "deposit",
				Usage:  "Top up a vault from the caller wallet",
				Flags:  append([]cli.Flag{subjectFlag, amountFlag}, clientFlags...),
				Action: depositAction,
			},
			{
				Name:   "release",
				Usage:  "Pay the custodian the elapsed periods",
				Flags:  append([]cli.Flag{subjectFlag}, clientFlags...),
				Action: releaseAction,
			},
		},
	}
	custodianCommand = &cli.Command{
		Name:  "custodian",
		Usage: "Negotiate custodian updates",
		Subcommands: cli.Commands{
			{
				Name:  "request",
				Usage: "Request to become or appoint the new custodian",
				Flags: append([]cli.Flag{
					subjectFlag, newCustodianFlag, feeAmountFlag, feePeriodFlag,
					keepParamsFlag, emergencyFlag,
				}, clientFlags...),
				Action: requestUpdateAction,
			},
			subjectSubcommand("accept", "Accept the pending update", "accept"),
			subjectSubcommand("reject", "Reject the pending update", "reject"),
			{
				Name:   "get",
				Usage:  "Get the pending update",
				Flags:  append([]cli.Flag{subjectFlag}, clientFlags...),
				Action: getUpdateAction,
			},
		},
	}
	auctionCommand = &cli.Command{
		Name:  "auction",
		Usage: "Take part in fraction auctions",
		Subcommands: cli.Commands{
			{
				Name:   "start",
				Usage:  "Start an auction for an underfunded offer",
				Flags:  append([]cli.Flag{offerIdFlag}, clientFlags...),
				Action: startAuctionAction,
			},
			{
				Name:   "bid",
				Usage:  "Place a bid",
				Flags:  append([]cli.Flag{offerIdFlag, amountFlag}, clientFlags...),
				Action: bidAction,
			},
			{
				Name:   "end",
				Usage:  "Settle an auction past its end time",
				Flags:  append([]cli.Flag{offerIdFlag}, clientFlags...),
				Action: endAuctionAction,
			},
			{
				Name:   "get",
				Usage:  "Get the auction of an offer",
				Flags:  append([]cli.Flag{offerIdFlag}, clientFlags...),
				Action: getAuctionAction,
			},
		},
	}
	adminCommand = &cli.Command{
		Name:  "admin",
		Usage: "Operator commands, the caller must be a protocol admin",
		Subcommands: cli.Commands{
			{
				Name:   "fund",
				Usage:  "Credit a wallet with exchange tokens",
				Flags:  append([]cli.Flag{addressFlag, tokenFlag, amountFlag}, clientFlags...),
				Action: fundAction,
			},
			{
				Name:  "grant-role",
				Usage: "Grant a role to a caller",
				Flags: append([]cli.Flag{
					entityFlag, &cli.StringFlag{
						Name: addressFlagName, Usage: "the caller the role is granted to", Required: true,
					}, roleFlag, accountRoleFlag,
				}, clientFlags...),
				Action: grantRoleAction,
			},
			{
				Name:   "sweep",
				Usage:  "Release every vault whose period elapsed",
				Flags:  clientFlags,
				Action: sweepAction,
			},
		},
	}
	balanceCommand = &cli.Command{
		Name:   "balance",
		Usage:  "Get the wallet and claimable balances of an account",
		Flags:  append([]cli.Flag{accountFlag}, clientFlags...),
		Action: balanceAction,
	}
)

func tokenSubcommand(name, usage, route string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: append([]cli.Flag{tokenIdFlag}, clientFlags...),
		Action: func(ctx *cli.Context) error {
			path := fmt.Sprintf("/v1/tokens/%s/%s", pathEscape(ctx.String(tokenIdFlagName)), route)
			return printResponse(getClient(ctx).post(path, nil))
		},
	}
}

func subjectSubcommand(name, usage, route string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: append([]cli.Flag{subjectFlag}, clientFlags...),
		Action: func(ctx *cli.Context) error {
			path := fmt.Sprintf(
				"/v1/custodian-updates/%s/%s", pathEscape(ctx.String(subjectFlagName)), route,
			)
			return printResponse(getClient(ctx).post(path, nil))
		},
	}
}

func registerOfferAction(ctx *cli.Context) error {
	buf, err := os.ReadFile(ctx.Path(fileFlagName))
	if err != nil {
		return fmt.Errorf("failed to read offer file: %s", err)
	}
	var offer map[string]any
	if err := json.Unmarshal(buf, &offer); err != nil {
		return fmt.Errorf("invalid offer file: %s", err)
	}
	return printResponse(getClient(ctx).post("/v1/offers", offer))
}

func getOfferAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/offers/%s", pathEscape(ctx.String(offerIdFlagName)))
	return printResponse(getClient(ctx).get(path))
}

func submitTaxAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/tokens/%s/checkout/tax", pathEscape(ctx.String(tokenIdFlagName)))
	return printResponse(getClient(ctx).post(path, map[string]uint64{
		"amount": ctx.Uint64(amountFlagName),
	}))
}

func tokenStatusAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/tokens/%s/checkout", pathEscape(ctx.String(tokenIdFlagName)))
	return printResponse(getClient(ctx).get(path))
}

func getVaultAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/vaults/%s", pathEscape(ctx.String(subjectFlagName)))
	return printResponse(getClient(ctx).get(path))
}

func depositAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/vaults/%s/deposit", pathEscape(ctx.String(subjectFlagName)))
	return printResponse(getClient(ctx).post(path, map[string]uint64{
		"amount": ctx.Uint64(amountFlagName),
	}))
}

func releaseAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/vaults/%s/release", pathEscape(ctx.String(subjectFlagName)))
	return printResponse(getClient(ctx).post(path, nil))
}

func requestUpdateAction(ctx *cli.Context) error {
	keepParams := ctx.Bool(keepParamsFlagName)
	if !keepParams && ctx.Int64(feePeriodFlagName) <= 0 {
		return fmt.Errorf("missing --%s, or use --%s", feePeriodFlagName, keepParamsFlagName)
	}

	path := fmt.Sprintf("/v1/custodian-updates/%s", pathEscape(ctx.String(subjectFlagName)))
	return printResponse(getClient(ctx).post(path, map[string]any{
		"new_custodian_id": ctx.String(newCustodianFlagName),
		"new_custodian_fee": map[string]any{
			"amount": ctx.Uint64(feeAmountFlagName),
			"period": ctx.Int64(feePeriodFlagName),
		},
		"keep_existing_parameters": keepParams,
		"is_emergency_update":      ctx.Bool(emergencyFlagName),
	}))
}

func getUpdateAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/custodian-updates/%s", pathEscape(ctx.String(subjectFlagName)))
	return printResponse(getClient(ctx).get(path))
}

func startAuctionAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/auctions/%s/start", pathEscape(ctx.String(offerIdFlagName)))
	return printResponse(getClient(ctx).post(path, nil))
}

func bidAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/auctions/%s/bids", pathEscape(ctx.String(offerIdFlagName)))
	return printResponse(getClient(ctx).post(path, map[string]uint64{
		"amount": ctx.Uint64(amountFlagName),
	}))
}

func endAuctionAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/auctions/%s/end", pathEscape(ctx.String(offerIdFlagName)))
	return printResponse(getClient(ctx).post(path, nil))
}

func getAuctionAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/auctions/%s", pathEscape(ctx.String(offerIdFlagName)))
	return printResponse(getClient(ctx).get(path))
}

func fundAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/admin/wallets/%s/fund", pathEscape(ctx.String(addressFlagName)))
	return printResponse(getClient(ctx).post(path, map[string]any{
		"token":  ctx.String(tokenFlagName),
		"amount": ctx.Uint64(amountFlagName),
	}))
}

func grantRoleAction(ctx *cli.Context) error {
	return printResponse(getClient(ctx).post("/v1/admin/roles", map[string]string{
		"entity_id":    ctx.String(entityFlagName),
		"caller":       ctx.String(addressFlagName),
		"role":         ctx.String(roleFlagName),
		"account_role": ctx.String(accountRoleFlagName),
	}))
}

func sweepAction(ctx *cli.Context) error {
	return printResponse(getClient(ctx).post("/v1/admin/sweep", nil))
}

func balanceAction(ctx *cli.Context) error {
	path := fmt.Sprintf("/v1/balances/%s", pathEscape(ctx.String(accountFlagName)))
	return printResponse(getClient(ctx).get(path))
}
