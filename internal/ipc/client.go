package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"loom/internal/api"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Loom.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Loom.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Loom.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OutputCreate registers a new output.
func (c *Client) OutputCreate(req api.CreateOutputRequest) (*OutputCreateResponse, error) {
	var resp OutputCreateResponse
	if err := c.client.Call("Loom.OutputCreate", OutputCreateRequest{Output: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OutputList returns outputs optionally filtered by statuses.
func (c *Client) OutputList(statuses []string) (*OutputListResponse, error) {
	var resp OutputListResponse
	if err := c.client.Call("Loom.OutputList", OutputListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OutputDescribe returns the full view of one output.
func (c *Client) OutputDescribe(id string) (*OutputDescribeResponse, error) {
	var resp OutputDescribeResponse
	if err := c.client.Call("Loom.OutputDescribe", OutputDescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OutputDelete removes an output.
func (c *Client) OutputDelete(id string) (*OutputDeleteResponse, error) {
	var resp OutputDeleteResponse
	if err := c.client.Call("Loom.OutputDelete", OutputDeleteRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StageStart begins generation for a stage.
func (c *Client) StageStart(id, stage string) (*StageStartResponse, error) {
	var resp StageStartResponse
	if err := c.client.Call("Loom.StageStart", StageStartRequest{ID: id, Stage: stage}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StageApprove approves a pending gate.
func (c *Client) StageApprove(id, stage, feedback string) (*StageApproveResponse, error) {
	var resp StageApproveResponse
	req := StageApproveRequest{ID: id, Stage: stage, Feedback: feedback}
	if err := c.client.Call("Loom.StageApprove", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StageReject rejects a gate and restarts generation with feedback.
func (c *Client) StageReject(id, stage, feedback string) (*StageRejectResponse, error) {
	var resp StageRejectResponse
	req := StageRejectRequest{ID: id, Stage: stage, Feedback: feedback}
	if err := c.client.Call("Loom.StageReject", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StageRevert rolls approvals back to the target stage.
func (c *Client) StageRevert(id, targetStage string) (*StageRevertResponse, error) {
	var resp StageRevertResponse
	req := StageRevertRequest{ID: id, TargetStage: targetStage}
	if err := c.client.Call("Loom.StageRevert", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelStale cancels a generation run stuck past the timeout.
func (c *Client) CancelStale(id string) (*CancelStaleResponse, error) {
	var resp CancelStaleResponse
	if err := c.client.Call("Loom.CancelStale", CancelStaleRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Executions returns pipeline log entries for an output.
func (c *Client) Executions(id string, limit int) (*ExecutionsResponse, error) {
	var resp ExecutionsResponse
	if err := c.client.Call("Loom.Executions", ExecutionsRequest{ID: id, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Costs returns the spend ledger for an output.
func (c *Client) Costs(id string) (*CostsResponse, error) {
	var resp CostsResponse
	if err := c.client.Call("Loom.Costs", CostsRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Loom.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Loom.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
