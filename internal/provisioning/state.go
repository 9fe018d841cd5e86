package provisioning

// GroupState is the provisioning state of a host group.
type GroupState int

// Group states, in order.
const (
	StateNotStarted GroupState = iota
	StateCloning
	StateNetworkAttached
	StateAddressResolved
	StateConfigured
	StateRewired
	StateDone
)

var groupStateNames = [...]string{
	"NOT_STARTED",
	"CLONING",
	"NETWORK_ATTACHED",
	"ADDRESS_RESOLVED",
	"CONFIGURED",
	"REWIRED",
	"DONE",
}

func (s GroupState) String() string {
	if s < 0 || int(s) >= len(groupStateNames) {
		return "UNKNOWN"
	}
	return groupStateNames[s]
}
