// Package ledger connects to a supported EVM network with a single signing
// identity.
//
// A Client submits contract creations and method calls, waits for their
// receipts and performs read-only queries. Network identity comes from a
// closed table of profiles, each mapping to exactly one wrapped base currency:
//
//	profile, err := ledger.Lookup("sepolia")
//	signer, err := ledger.SignerFromEnv("DEPLOYER_KEY")
//	client, err := ledger.Connect(ctx, profile, signer, ledger.Options{})
//	defer client.Close()
//
//	pending, err := client.SubmitDeployment(ctx, art)
//	receipt, err := client.AwaitConfirmation(ctx, pending.Hash)
//
// AwaitConfirmation polls for the receipt and only returns once the
// transaction is mined. A mined failure is reported as *RevertError.
package ledger
