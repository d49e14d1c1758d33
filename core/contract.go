package core

import (
	"regexp"
	"strings"
)

var contractIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Contract binds an application to a data access agreement.
type Contract struct {
	ContractID string `json:"contractId"`
	AppID      string `json:"appId"`
}

func NewContract(contractID string, appID string) (Contract, error) {
	contractID = strings.TrimSpace(contractID)
	appID = strings.TrimSpace(appID)
	if contractID == "" {
		return Contract{}, NewInvalidArgumentError("core: contract id is required")
	}
	if appID == "" {
		return Contract{}, NewInvalidArgumentError("core: app id is required")
	}
	return Contract{ContractID: contractID, AppID: appID}, nil
}

// ValidContractID reports whether id has the shape of a contract identifier.
func ValidContractID(id string) bool {
	return contractIDPattern.MatchString(strings.TrimSpace(id))
}
