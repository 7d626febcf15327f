package threat

import "log/slog"

// ResponseAction is an advisory action recommended for a threat.
// Enforcement is an external responsibility; the engine only logs the
// recommendation for downstream systems to pick up.
type ResponseAction string

const (
	ResponseBlockIP             ResponseAction = "block_ip"
	ResponseLockAccount         ResponseAction = "lock_account"
	ResponseRequireVerification ResponseAction = "require_verification"
	ResponseNone                ResponseAction = "none"
)

// Recommendation pairs a recommended action with its target.
type Recommendation struct {
	Action ResponseAction `json:"action"`
	Target string         `json:"target"`
}

// Responder maps detected threat types to recommended responses.
type Responder struct{}

// NewResponder creates an automated response dispatcher.
func NewResponder() *Responder {
	return &Responder{}
}

// Recommend returns the advisory response for a threat.
func (r *Responder) Recommend(t *Threat) Recommendation {
	switch t.Type {
	case TypeBruteForceAttack, TypeCredentialStuffing:
		return Recommendation{Action: ResponseBlockIP, Target: t.IPAddress}
	case TypeMFABypassAttempt:
		return Recommendation{Action: ResponseLockAccount, Target: t.UserID}
	case TypeDeviceAnomaly, TypeLocationAnomaly:
		return Recommendation{Action: ResponseRequireVerification, Target: t.UserID}
	default:
		return Recommendation{Action: ResponseNone}
	}
}

// Dispatch logs the recommended response for a threat.
func (r *Responder) Dispatch(t *Threat) Recommendation {
	rec := r.Recommend(t)
	if rec.Action == ResponseNone {
		return rec
	}

	slog.Warn("automated response recommended",
		"threat_id", t.ID,
		"threat_type", t.Type,
		"action", rec.Action,
		"target", rec.Target)
	return rec
}
