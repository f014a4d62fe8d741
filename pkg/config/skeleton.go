package config

import "fmt"

const skeletonTemplate = `# chainstage configuration
network: %s
# rpc_url: https://rpc.example.org

artifacts:
  dir: artifacts
  # files:
  #   Vault: Vault.sol.json

# Collaborators deployed outside the plan. Quote addresses.
addresses:
  token: "0x0000000000000000000000000000000000000000"
  nft: "0x0000000000000000000000000000000000000000"
  dev: "0x0000000000000000000000000000000000000000"
  pair_factory: "0x0000000000000000000000000000000000000000"

signer:
  key_env: %s
  # keystore: keys/deployer.json
  # password_env: CHAINSTAGE_KEYSTORE_PASSWORD

record:
  backend: file
  path: deployment.yaml

confirmation:
  timeout: 0s
  poll_interval: 2s

# gas:
#   fee_cap: 30
#   tip_cap: 1.5

# policy:
#   files: [policies]

verify_dependencies: false

telemetry:
  logging:
    level: info
    format: console
  metrics:
    enabled: true
    # textfile_path: chainstage.prom
    # pushgateway_url: http://localhost:9091
`

// Skeleton returns a starter configuration for network. Its addresses are
// zero placeholders, which the policy gate refuses until they are filled in.
func Skeleton(network string) []byte {
	if network == "" {
		network = "sepolia"
	}
	return []byte(fmt.Sprintf(skeletonTemplate, network, DefaultKeyEnv))
}
