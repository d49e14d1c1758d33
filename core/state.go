package core

type AuthorizationState int32

const (
	AuthorizationIdle AuthorizationState = iota
	AuthorizationInProgress
	AuthorizationDeferred
)

func (s AuthorizationState) String() string {
	switch s {
	case AuthorizationIdle:
		return "idle"
	case AuthorizationInProgress:
		return "in_progress"
	case AuthorizationDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}
