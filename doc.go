// Package tierpay provides a tiered usage-billing ledger and an NFT royalty
// transfer gate for Go applications.
//
// Tierpay is designed as a library, not a service. Both engines run over a
// pluggable store and talk to the outside world through small interfaces in
// the chain package (token ledger, custody reserve, usage oracle, NFT
// holdings, pool reserves), so the same code runs against in-memory fakes
// in tests and against on-chain contracts through the evm package.
//
// # Billing ledger
//
// Users deposit a settlement token, which is forwarded into a custody
// reserve. Providers register a tier table (ascending unit thresholds with
// a per-unit price each) plus a fallback price; each usage report is priced
// marginally against the user's cumulative units with that provider:
//
//	l := tierpay.New(store,
//	    tierpay.WithAddress(ledgerAddr),
//	    tierpay.WithTokens(tokens),
//	    tierpay.WithReserve(reserve),
//	    tierpay.WithAuthority(authority),
//	)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop(ctx)
//
//	quote, err := l.ApplyUsage(ctx, updater, user, provider, 250)
//
// Holders of a discount collection pay a reduced price. Each charge is split
// between the platform royalty receiver and the provider. After the lock
// period, WithdrawUnused settles the account against the usage oracle and
// returns what is left.
//
// # Royalty gate
//
// The gate implements nft.TransferHook. Every transfer of a gated collection
// is charged the token's royalty, priced in the settlement token at the
// pool's spot rate and split between the treasury, a partner wallet and the
// token's creator. Mints, the minted owner's first transfer, founder pass
// holders and zero royalties are exempt.
//
// # Consistency
//
// Every mutating call is all-or-nothing: a failure restores the store and
// reverses external transfers made during the call. Calls are serialized per
// engine and a call that re-enters the same engine through a token or NFT
// callback fails with ErrReentrantCall.
//
// # TypeID
//
// Journal events and royalty charges use TypeID identifiers:
//
//	evt_01h2xcejqtf2nbrexx3vqjhp41  // Event ID
//	chg_01h455vb4pex5vsknk084sn02q  // Charge ID
package tierpay
