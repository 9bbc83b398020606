package main

import (
	"fmt"

	"github.com/arkade-os/custodyd/internal/config"
	"github.com/urfave/cli/v2"
)

const (
	urlFlagName          = "server-url"
	callerFlagName       = "caller"
	offerIdFlagName      = "offer-id"
	tokenIdFlagName      = "token-id"
	subjectFlagName      = "subject"
	amountFlagName       = "amount"
	tokenFlagName        = "token"
	addressFlagName      = "address"
	fileFlagName         = "file"
	newCustodianFlagName = "new-custodian"
	feeAmountFlagName    = "fee-amount"
	feePeriodFlagName    = "fee-period"
	keepParamsFlagName   = "keep-params"
	emergencyFlagName    = "emergency"
	entityFlagName       = "entity"
	roleFlagName         = "role"
	accountRoleFlagName  = "account-role"
	accountFlagName      = "account"
)

var (
	urlFlag = &cli.StringFlag{
		Name:  urlFlagName,
		Usage: "the url where to reach custodyd",
		Value: fmt.Sprintf("http://127.0.0.1:%d", config.DefaultPort),
	}
	callerFlag = &cli.StringFlag{
		Name:  callerFlagName,
		Usage: "the address requests are made on behalf of",
	}
	offerIdFlag = &cli.StringFlag{
		Name:     offerIdFlagName,
		Usage:    "id of the offer",
		Required: true,
	}
	tokenIdFlag = &cli.StringFlag{
		Name:     tokenIdFlagName,
		Usage:    "id of the token, in token:<offer id>:<index> format",
		Required: true,
	}
	subjectFlag = &cli.StringFlag{
		Name:     subjectFlagName,
		Usage:    "a token id or a batch id, in batch:<offer id> format",
		Required: true,
	}
	amountFlag = &cli.Uint64Flag{
		Name:     amountFlagName,
		Usage:    "amount in exchange token units",
		Required: true,
	}
	tokenFlag = &cli.StringFlag{
		Name:     tokenFlagName,
		Usage:    "the exchange token",
		Required: true,
	}
	addressFlag = &cli.StringFlag{
		Name:     addressFlagName,
		Usage:    "the wallet address",
		Required: true,
	}
	fileFlag = &cli.PathFlag{
		Name:     fileFlagName,
		Usage:    "path of the json file describing the offer",
		Required: true,
	}
	newCustodianFlag = &cli.StringFlag{
		Name:     newCustodianFlagName,
		Usage:    "the custodian entity taking over",
		Required: true,
	}
	feeAmountFlag = &cli.Uint64Flag{
		Name:  feeAmountFlagName,
		Usage: "the fee charged per item and period by the new custodian",
	}
	feePeriodFlag = &cli.Int64Flag{
		Name:  feePeriodFlagName,
		Usage: "the fee period in seconds",
	}
	keepParamsFlag = &cli.BoolFlag{
		Name:  keepParamsFlagName,
		Usage: "keep the current custodian fee",
	}
	emergencyFlag = &cli.BoolFlag{
		Name:  emergencyFlagName,
		Usage: "request an emergency update, that can't be rejected by the owners",
	}
	entityFlag = &cli.StringFlag{
		Name:     entityFlagName,
		Usage:    "the entity the role is granted on",
		Required: true,
	}
	roleFlag = &cli.StringFlag{
		Name:  roleFlagName,
		Usage: "the role to grant, agent or admin",
		Value: "agent",
	}
	accountRoleFlag = &cli.StringFlag{
		Name:     accountRoleFlagName,
		Usage:    "the account role to grant, custodian, seller or protocol",
		Required: true,
	}
	accountFlag = &cli.StringFlag{
		Name:     accountFlagName,
		Usage:    "the account or entity to get the balances of",
		Required: true,
	}

	clientFlags = []cli.Flag{urlFlag, callerFlag}
)
