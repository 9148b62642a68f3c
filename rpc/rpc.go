// Package rpc is the operator-facing admin service. It is plain gRPC with a
// JSON codec, so no generated stubs are needed and grpcurl-style clients can
// talk to it with -format json.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/wfunc/pokerlobby/logger"
	"github.com/wfunc/pokerlobby/room"
)

const (
	ServiceName     = "pokerlobby.LobbyAdmin"
	statsMethod     = "/" + ServiceName + "/Stats"
	listRoomsMethod = "/" + ServiceName + "/ListRooms"
)

// JSONCodec marshals messages as JSON.
type JSONCodec struct{}

var _ encoding.Codec = JSONCodec{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSONCodec) Name() string { return "json" }

type StatsRequest struct{}

type StatsReply struct {
	OpenRoomID      int64 `json:"open_room_id"`
	OpenRoomPlayers int   `json:"open_room_players"`
	ActiveRooms     int   `json:"active_rooms"`
	Connections     int   `json:"connections"`
	Bindings        int   `json:"bindings"`
}

type ListRoomsRequest struct{}

type RoomInfo struct {
	ID         int64        `json:"id"`
	Phase      string       `json:"phase"`
	Players    []PlayerInfo `json:"players"`
	Spectators int          `json:"spectators"`
}

type PlayerInfo struct {
	Seat  int    `json:"seat"`
	Name  string `json:"name"`
	Chips uint64 `json:"chips"`
}

type ListRoomsReply struct {
	Rooms []RoomInfo `json:"rooms"`
}

// Lobby is what the admin service reads.
type Lobby interface {
	Stats() room.Stats
	ActiveRooms() []*room.Room
	OpenRoom() *room.Room
}

// AdminService answers operator queries about the lobby.
type AdminService struct {
	lobby       Lobby
	connections func() int
}

func NewAdminService(lobby Lobby, connections func() int) *AdminService {
	return &AdminService{lobby: lobby, connections: connections}
}

func (s *AdminService) Stats(_ context.Context, _ *StatsRequest) (*StatsReply, error) {
	st := s.lobby.Stats()
	reply := &StatsReply{
		OpenRoomID:      st.OpenRoomID,
		OpenRoomPlayers: st.OpenRoomPlayers,
		ActiveRooms:     st.ActiveRooms,
		Bindings:        st.Bindings,
	}
	if s.connections != nil {
		reply.Connections = s.connections()
	}
	return reply, nil
}

// ListRooms describes the open room followed by every running room.
func (s *AdminService) ListRooms(_ context.Context, _ *ListRoomsRequest) (*ListRoomsReply, error) {
	rooms := append([]*room.Room{s.lobby.OpenRoom()}, s.lobby.ActiveRooms()...)
	reply := &ListRoomsReply{Rooms: make([]RoomInfo, 0, len(rooms))}
	for _, r := range rooms {
		info := RoomInfo{
			ID:         r.ID,
			Phase:      string(r.Phase()),
			Spectators: r.SpectatorCount(),
		}
		for _, e := range r.Roster() {
			info.Players = append(info.Players, PlayerInfo{Seat: e.Seat, Name: e.Name, Chips: e.Chips})
		}
		reply.Rooms = append(reply.Rooms, info)
	}
	return reply, nil
}

type adminServer interface {
	Stats(context.Context, *StatsRequest) (*StatsReply, error)
	ListRooms(context.Context, *ListRoomsRequest) (*ListRoomsReply, error)
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatsRequest)
	if err := dec(in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if interceptor == nil {
		return srv.(adminServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statsMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(adminServer).Stats(ctx, req.(*StatsRequest))
	})
}

func listRoomsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListRoomsRequest)
	if err := dec(in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if interceptor == nil {
		return srv.(adminServer).ListRooms(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listRoomsMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(adminServer).ListRooms(ctx, req.(*ListRoomsRequest))
	})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*adminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: statsHandler},
		{MethodName: "ListRooms", Handler: listRoomsHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// Server manages the RPC listener.
type Server struct {
	grpc     *grpc.Server
	listener net.Listener
}

func NewServer(listener net.Listener, admin *AdminService) *Server {
	gs := grpc.NewServer(
		grpc.ForceServerCodec(JSONCodec{}),
		grpc.UnaryInterceptor(logUnary),
	)
	gs.RegisterService(&serviceDesc, admin)
	return &Server{grpc: gs, listener: listener}
}

// Listen opens a TCP listener on addr.
func Listen(addr string, admin *AdminService) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewServer(listener, admin), nil
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	logger.Log.Infof("RPC server listening on %s", s.listener.Addr())
	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	logger.Log.Info("Stopping RPC server.")
	s.grpc.GracefulStop()
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		logger.Log.Warnw("rpc failed", "method", info.FullMethod, "error", err)
	} else {
		logger.Log.Debugw("rpc", "method", info.FullMethod)
	}
	return resp, err
}

// Client is a thin caller for the admin service.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Stats(ctx context.Context) (*StatsReply, error) {
	out := new(StatsReply)
	err := c.conn.Invoke(ctx, statsMethod, &StatsRequest{}, out, grpc.ForceCodec(JSONCodec{}))
	return out, err
}

func (c *Client) ListRooms(ctx context.Context) (*ListRoomsReply, error) {
	out := new(ListRoomsReply)
	err := c.conn.Invoke(ctx, listRoomsMethod, &ListRoomsRequest{}, out, grpc.ForceCodec(JSONCodec{}))
	return out, err
}
