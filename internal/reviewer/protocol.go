package reviewer

// Decisions a reviewer can return.
const (
	DecisionAllow = "ALLOW"
	DecisionAsk   = "ASK"
)

// Request is sent from client to daemon via Unix socket.
type Request struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	// Reason is why the rules did not accept the command.
	Reason  string `json:"reason"`
	WorkDir string `json:"work_dir"`
}

// Response is sent from daemon to client via Unix socket.
type Response struct {
	Decision string `json:"decision"` // "ALLOW" or "ASK"
	Reason   string `json:"reason"`
}
