package main

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/xraph/tierpay/api"
	"github.com/xraph/tierpay/internal/config"
)

func issueToken(c *cli.Context) error {
	addr := c.String(addressFlag.Name)
	if !common.IsHexAddress(addr) {
		return errors.New("--address must be a hex address")
	}
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}

	tok, err := api.IssueToken([]byte(cfg.JWTSecret), common.HexToAddress(addr), c.Duration(ttlFlag.Name))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, tok)
	return err
}
