// Command tierpay serves the usage-billing ledger and the royalty transfer
// gate over HTTP.
package main

import (
	"fmt"
	"os"
	"time"

	cli "gopkg.in/urfave/cli.v1"
)

var (
	configFlag = cli.StringFlag{
		Name:   "config, c",
		Usage:  "YAML configuration file",
		EnvVar: "TIERPAY_CONFIG",
	}
	addressFlag = cli.StringFlag{
		Name:  "address",
		Usage: "Hex address placed in the token subject",
	}
	ttlFlag = cli.DurationFlag{
		Name:  "ttl",
		Usage: "Token lifetime",
		Value: 24 * time.Hour,
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "tierpay"
	app.Usage = "Tiered usage billing and NFT royalty gate"
	app.Version = "0.1.0"
	app.Writer = os.Stdout
	app.Flags = []cli.Flag{configFlag}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the HTTP API over in-process settlement simulators",
			Action: serve,
		},
		{
			Name:   "token",
			Usage:  "Issue a bearer token for an address",
			Flags:  []cli.Flag{addressFlag, ttlFlag},
			Action: issueToken,
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
