// Package config loads the configuration of a chainstage invocation.
//
// A configuration file is YAML (.yaml, .yml), CUE (.cue) or JSON (.json).
// Whatever its format, it is compiled to a CUE value and unified with the
// built-in #Config schema (see Schema), which closes the field set, checks
// address and duration shapes and supplies defaults. The result is decoded
// into Config, overridden from the environment and validated with struct
// tags.
//
// # Environment
//
//	CHAINSTAGE_NETWORK   overrides network
//	CHAINSTAGE_RPC_URL   overrides rpc_url
//	CHAINSTAGE_RECORD    overrides record.path
//
// # Signing key
//
// The signing seed never appears in the file. signer.key_env names an
// environment variable holding a hex private key (CHAINSTAGE_PRIVATE_KEY by
// default); alternatively signer.keystore and signer.password_env point at
// an encrypted go-ethereum keystore.
//
// # Example
//
//	network: sepolia
//	addresses:
//	  token: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
//	  nft: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
//	  dev: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
//	  pair_factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
//	record:
//	  backend: sqlite
//	  path: deployment.db
//	confirmation:
//	  timeout: 10m
//
// Relative paths are resolved against the directory of the config file.
package config
