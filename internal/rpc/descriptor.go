package rpc

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	Package     = "elxbridge.v1"
	ServiceName = Package + ".ApplianceService"
	FileName    = "elxbridge/v1/appliance.proto"
)

// Methods of the appliance service, in declaration order.
var Methods = []string{
	"ListAppliances",
	"GetApplianceState",
	"SendCommand",
	"ListEntities",
	"ControlEntity",
	"Health",
}

// File is the registered descriptor of the service. Every method takes and
// returns a google.protobuf.Struct, so server reflection is enough for
// generic clients such as grpcurl.
var File protoreflect.FileDescriptor

func init() {
	structType := "." + string((&structpb.Struct{}).ProtoReflect().Descriptor().FullName())

	methods := make([]*descriptorpb.MethodDescriptorProto, len(Methods))
	for i, name := range Methods {
		methods[i] = &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(name),
			InputType:  proto.String(structType),
			OutputType: proto.String(structType),
		}
	}

	fd := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(FileName),
		Package:    proto.String(Package),
		Dependency: []string{structpb.File_google_protobuf_struct_proto.Path()},
		Syntax:     proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/joshp123/electrolux-bridge/internal/rpc"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name:   proto.String("ApplianceService"),
			Method: methods,
		}},
	}

	file, err := protodesc.NewFile(fd, protoregistry.GlobalFiles)
	if err != nil {
		panic("rpc: build descriptor: " + err.Error())
	}
	if err := protoregistry.GlobalFiles.RegisterFile(file); err != nil {
		panic("rpc: register descriptor: " + err.Error())
	}
	File = file
}
