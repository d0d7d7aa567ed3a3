package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"loom/internal/daemon"
	"loom/internal/logging"
	"loom/internal/logs"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Loom", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockFilePath
	resp.Health = status.Health
	resp.StaleRuns = status.StaleRuns
	return nil
}

func (s *service) OutputCreate(req OutputCreateRequest, resp *OutputCreateResponse) error {
	created, err := s.daemon.Outputs().Create(s.ctx, req.Output)
	if err != nil {
		return err
	}
	resp.Output = created
	s.log().Info("output created",
		logging.String(logging.FieldEventType, "output_create"),
		logging.String(logging.FieldOutputID, created.ID))
	return nil
}

func (s *service) OutputList(req OutputListRequest, resp *OutputListResponse) error {
	outputs, err := s.daemon.Outputs().List(s.ctx, req.Statuses...)
	if err != nil {
		return err
	}
	resp.Outputs = outputs
	return nil
}

func (s *service) OutputDescribe(req OutputDescribeRequest, resp *OutputDescribeResponse) error {
	if req.ID == "" {
		return errors.New("output describe requires an id")
	}
	detail, err := s.daemon.Outputs().Describe(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Output = *detail
	return nil
}

func (s *service) OutputDelete(req OutputDeleteRequest, resp *OutputDeleteResponse) error {
	if req.ID == "" {
		return errors.New("output delete requires an id")
	}
	if err := s.daemon.Outputs().Delete(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Deleted = true
	s.log().Info("output deleted",
		logging.String(logging.FieldEventType, "output_delete"),
		logging.String(logging.FieldOutputID, req.ID))
	return nil
}

func (s *service) StageStart(req StageStartRequest, resp *StageStartResponse) error {
	accepted, err := s.daemon.Outputs().StartStage(s.ctx, req.ID, req.Stage)
	if err != nil {
		return err
	}
	resp.Accepted = accepted
	return nil
}

func (s *service) StageApprove(req StageApproveRequest, resp *StageApproveResponse) error {
	if err := s.daemon.Outputs().ApproveStage(s.ctx, req.ID, req.Stage, req.Feedback); err != nil {
		return err
	}
	resp.Approved = true
	return nil
}

func (s *service) StageReject(req StageRejectRequest, resp *StageRejectResponse) error {
	restarted, err := s.daemon.Outputs().RejectStage(s.ctx, req.ID, req.Stage, req.Feedback)
	if err != nil {
		return err
	}
	resp.Restarted = restarted
	return nil
}

func (s *service) StageRevert(req StageRevertRequest, resp *StageRevertResponse) error {
	reverted, err := s.daemon.Outputs().RevertToStage(s.ctx, req.ID, req.TargetStage)
	if err != nil {
		return err
	}
	resp.Reverted = reverted
	return nil
}

func (s *service) CancelStale(req CancelStaleRequest, resp *CancelStaleResponse) error {
	cancelled, err := s.daemon.Outputs().CancelStaleRun(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Cancelled = cancelled
	return nil
}

func (s *service) Executions(req ExecutionsRequest, resp *ExecutionsResponse) error {
	entries, err := s.daemon.Outputs().Executions(s.ctx, req.ID, req.Limit)
	if err != nil {
		return err
	}
	resp.Entries = entries
	return nil
}

func (s *service) Costs(req CostsRequest, resp *CostsResponse) error {
	costs, err := s.daemon.Outputs().Costs(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Costs = costs
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
