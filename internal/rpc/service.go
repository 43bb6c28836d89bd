// Package rpc exposes appliances and entities over gRPC.
package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/entity"
	"github.com/joshp123/electrolux-bridge/internal/host"
	"github.com/joshp123/electrolux-bridge/internal/platform"
)

// ApplianceServer is the server API of the appliance service.
type ApplianceServer interface {
	ListAppliances(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetApplianceState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendCommand(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEntities(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ControlEntity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Session is what the service needs from a hub session.
type Session interface {
	Degraded() bool
	Appliances() []electrolux.Appliance
	FetchState(ctx context.Context, applianceID string) *electrolux.ApplianceState
	SendCommand(ctx context.Context, applianceID string, cmd electrolux.Command) bool
}

// Entities is what the service needs from the host registry.
type Entities interface {
	Snapshots() []entity.Snapshot
	Control(ctx context.Context, id, action string, value any) (bool, error)
}

// Service implements ApplianceServer.
type Service struct {
	session  Session
	entities Entities
	health   func() (platform.HealthStatus, string)
}

func NewService(session Session, entities Entities, health func() (platform.HealthStatus, string)) *Service {
	return &Service{session: session, entities: entities, health: health}
}

// Register adds the service to s.
func Register(s *grpc.Server, srv ApplianceServer) {
	s.RegisterService(&serviceDesc, srv)
}

type applianceView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Created string `json:"created,omitempty"`
}

func (s *Service) ListAppliances(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	appliances := s.session.Appliances()
	views := make([]applianceView, len(appliances))
	for i, a := range appliances {
		views[i] = applianceView{ID: a.ID, Name: a.Name, Type: a.Type}
		if !a.Created.IsZero() {
			views[i].Created = a.Created.UTC().Format(time.RFC3339)
		}
	}
	return toStruct(map[string]any{
		"appliances": views,
		"degraded":   s.session.Degraded(),
	})
}

func (s *Service) GetApplianceState(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.knownAppliance(in)
	if err != nil {
		return nil, err
	}
	state := s.session.FetchState(ctx, id)
	if state == nil {
		return nil, status.Errorf(codes.Unavailable, "state for appliance %s is unavailable", id)
	}
	return toStruct(map[string]any{
		"appliance_id":     state.ApplianceID,
		"connection_state": string(state.ConnectionState),
		"status":           string(state.Status),
		"reported":         state.Reported.Wire(),
	})
}

func (s *Service) SendCommand(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.knownAppliance(in)
	if err != nil {
		return nil, err
	}
	cmd := in.GetFields()["command"].GetStructValue()
	if cmd == nil || len(cmd.GetFields()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "command must be a non-empty object")
	}
	accepted := s.session.SendCommand(ctx, id, electrolux.Command(cmd.AsMap()))
	return toStruct(map[string]any{"accepted": accepted})
}

func (s *Service) ListEntities(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]any{"entities": s.entities.Snapshots()})
}

func (s *Service) ControlEntity(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	id := fields["entity_id"].GetStringValue()
	action := fields["action"].GetStringValue()
	if id == "" || action == "" {
		return nil, status.Error(codes.InvalidArgument, "entity_id and action are required")
	}
	var value any
	if v, ok := fields["value"]; ok {
		value = v.AsInterface()
	}

	accepted, err := s.entities.Control(ctx, id, action, value)
	switch {
	case errors.Is(err, host.ErrUnknownEntity):
		return nil, status.Error(codes.NotFound, err.Error())
	case errors.Is(err, entity.ErrUnsupportedAction):
		return nil, status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, entity.ErrInvalidValue):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(map[string]any{"accepted": accepted})
}

func (s *Service) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	health, message := platform.HealthError, "health not wired"
	if s.health != nil {
		health, message = s.health()
	}
	return toStruct(map[string]any{"status": string(health), "message": message})
}

func (s *Service) knownAppliance(in *structpb.Struct) (string, error) {
	if s.session.Degraded() {
		return "", status.Error(codes.FailedPrecondition, "no stored credentials; run elxbridge setup")
	}
	id := in.GetFields()["appliance_id"].GetStringValue()
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "appliance_id is required")
	}
	for _, a := range s.session.Appliances() {
		if a.ID == id {
			return id, nil
		}
	}
	return "", status.Errorf(codes.NotFound, "unknown appliance %s", id)
}

// toStruct converts v to a Struct through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

type structCall func(srv ApplianceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call structCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ApplianceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ApplianceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ApplianceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListAppliances", ApplianceServer.ListAppliances),
		unary("GetApplianceState", ApplianceServer.GetApplianceState),
		unary("SendCommand", ApplianceServer.SendCommand),
		unary("ListEntities", ApplianceServer.ListEntities),
		unary("ControlEntity", ApplianceServer.ControlEntity),
		unary("Health", ApplianceServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: FileName,
}
