package remote

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "rcl.remote.v1.Bridge"

// Full method names of the bridge service.
const (
	methodLogin              = "/" + serviceName + "/Login"
	methodCreatePublisher    = "/" + serviceName + "/CreatePublisher"
	methodCreateSubscription = "/" + serviceName + "/CreateSubscription"
	methodCreateGuard        = "/" + serviceName + "/CreateGuardCondition"
	methodDestroyEntity      = "/" + serviceName + "/DestroyEntity"
	methodPublish            = "/" + serviceName + "/Publish"
	methodAssertLiveliness   = "/" + serviceName + "/AssertLiveliness"
	methodTake               = "/" + serviceName + "/Take"
	methodTrigger            = "/" + serviceName + "/Trigger"
	methodCreateEvent        = "/" + serviceName + "/CreateEvent"
	methodDestroyEvent       = "/" + serviceName + "/DestroyEvent"
	methodPollEvent          = "/" + serviceName + "/PollEvent"
	methodWait               = "/" + serviceName + "/Wait"

	methodPublishersInfoByTopic    = "/" + serviceName + "/PublishersInfoByTopic"
	methodSubscriptionsInfoByTopic = "/" + serviceName + "/SubscriptionsInfoByTopic"
)

// bridgeServer is the handler type registered for the service.
type bridgeServer interface {
	serveBridge()
}

// serveBridge marks Server as the bridge handler.
func (s *Server) serveBridge() {}

// unary builds a method descriptor that decodes Req and dispatches to call
// through the server's interceptor chain.
func unary[Req, Reply any](name string, call func(*Server, context.Context, *Req) (*Reply, error)) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var bridgeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*bridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Login", (*Server).login),
		unary("CreatePublisher", (*Server).createPublisher),
		unary("CreateSubscription", (*Server).createSubscription),
		unary("CreateGuardCondition", (*Server).createGuardCondition),
		unary("DestroyEntity", (*Server).destroyEntity),
		unary("Publish", (*Server).publish),
		unary("AssertLiveliness", (*Server).assertLiveliness),
		unary("Take", (*Server).take),
		unary("Trigger", (*Server).trigger),
		unary("CreateEvent", (*Server).createEvent),
		unary("DestroyEvent", (*Server).destroyEvent),
		unary("PollEvent", (*Server).pollEvent),
		unary("Wait", (*Server).wait),
		unary("PublishersInfoByTopic", (*Server).publishersInfoByTopic),
		unary("SubscriptionsInfoByTopic", (*Server).subscriptionsInfoByTopic),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rcl/remote/v1/bridge",
}
