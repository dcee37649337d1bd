package grpc

import (
	"github.com/dmitrijs2005/libraryauth/internal/server/authz"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Policy maps full method names ("/pkg.Service/Method") to the requirement
// a caller must satisfy. Methods that are not listed are denied unless a
// Fallback is set.
type Policy struct {
	Methods  map[string]authz.Requirement
	Fallback *authz.Requirement
}

func (p Policy) lookup(fullMethod string) (authz.Requirement, bool) {
	if req, ok := p.Methods[fullMethod]; ok {
		return req, true
	}
	if p.Fallback != nil {
		return *p.Fallback, true
	}
	return authz.Requirement{}, false
}

// HealthPolicy admits the standard health service without credentials.
func HealthPolicy() Policy {
	return Policy{Methods: map[string]authz.Requirement{
		healthpb.Health_Check_FullMethodName: authz.Public(),
		healthpb.Health_Watch_FullMethodName: authz.Public(),
	}}
}

// With returns a copy of p with the given method requirements added.
func (p Policy) With(methods map[string]authz.Requirement) Policy {
	merged := make(map[string]authz.Requirement, len(p.Methods)+len(methods))
	for k, v := range p.Methods {
		merged[k] = v
	}
	for k, v := range methods {
		merged[k] = v
	}
	return Policy{Methods: merged, Fallback: p.Fallback}
}
