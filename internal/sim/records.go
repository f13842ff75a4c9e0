package sim

// Step log statuses.
const (
	StatusOK  = "OK"
	StatusErr = "ERR"
)

// Policy error codes surfaced in logs.
const (
	ErrCodePolicyException = 5
	ErrCodeInvalidOrder    = 6
)

// PolicyRecord logs the effective action of one agent at one step.
type PolicyRecord struct {
	WindowID  string  `json:"window_id"`
	StepIndex int     `json:"step_index"`
	AgentID   string  `json:"agent_id"`
	Action    string  `json:"action"`
	Qty       float64 `json:"qty"`
	Status    string  `json:"status"`
	ErrCode   int     `json:"err_code"`
}

// TradeRecord logs one committed fill.
type TradeRecord struct {
	WindowID    string  `json:"window_id"`
	StepIndex   int     `json:"step_index"`
	AgentID     string  `json:"agent_id"`
	DeltaQty    float64 `json:"delta_qty"`
	ExecPrice   float64 `json:"exec_price"`
	Fee         float64 `json:"fee"`
	SlippageBps float64 `json:"slippage_bps"`
	ImpactBps   float64 `json:"impact_bps"`
	NetQty      float64 `json:"net_qty"`
}

// EquityRecord logs the mark-to-market snapshot taken each step.
type EquityRecord struct {
	WindowID  string  `json:"window_id"`
	StepIndex int     `json:"step_index"`
	AgentID   string  `json:"agent_id"`
	Equity    float64 `json:"equity"`
	Cash      float64 `json:"cash"`
	Position  float64 `json:"position"`
	MarkPrice float64 `json:"mark_price"`
}

// LiquidationRecord logs one forced close.
type LiquidationRecord struct {
	WindowID  string  `json:"window_id"`
	StepIndex int     `json:"step_index"`
	AgentID   string  `json:"agent_id"`
	Qty       float64 `json:"qty"`
	ExecPrice float64 `json:"exec_price"`
	Fee       float64 `json:"fee"`
}
