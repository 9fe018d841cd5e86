package topology

import "fmt"

// Role is the function a host serves in a lab network.
type Role string

// Host roles.
const (
	RoleClient  Role = "client"
	RoleDomain  Role = "domain"
	RoleDHCP    Role = "dhcp"
	RoleService Role = "service"
	RoleRouter  Role = "router"
	RolePost    Role = "post"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleClient, RoleDomain, RoleDHCP, RoleService, RoleRouter, RolePost:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Group is the class of hosts provisioned together through one phase.
type Group string

// Host groups, in provisioning order.
const (
	GroupRouters  Group = "routers"
	GroupServices Group = "services"
	GroupClients  Group = "clients"
)

// Group returns the provisioning group of a role. Post modules do not
// belong to a group and return the empty string.
func (r Role) Group() Group {
	switch r {
	case RoleRouter:
		return GroupRouters
	case RoleDomain, RoleDHCP, RoleService:
		return GroupServices
	case RoleClient:
		return GroupClients
	}
	return ""
}
