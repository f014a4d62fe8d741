package engine

import (
	"github.com/ethereum/go-ethereum/common"
)

// ProxyArtifact is the artifact id of the admin-upgradeable proxy.
const ProxyArtifact = "AdminUpgradeabilityProxy"

// BuildProxyArgs returns the constructor arguments of an admin-upgradeable
// proxy: the logic address, the admin address and empty initialization data.
func BuildProxyArgs(logic, admin *common.Address) ([]any, error) {
	if logic == nil || *logic == (common.Address{}) {
		return nil, missingDependency("", "proxy logic address is not set")
	}
	if admin == nil || *admin == (common.Address{}) {
		return nil, missingDependency(RoleProxyAdmin, "proxy admin address is not set")
	}
	return []any{*logic, *admin, []byte{}}, nil
}
