// Package grpcserver exposes the CareNote document store and purchase
// verification over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kazu-apps/carenote-sync/internal/convert"
	"github.com/kazu-apps/carenote-sync/internal/errs"
	pb "github.com/kazu-apps/carenote-sync/internal/rpc/carenotev1"
	"github.com/kazu-apps/carenote-sync/internal/service"
)

// Server wires services into gRPC handlers.
type Server struct {
	pb.UnimplementedDocumentsServer
	pb.UnimplementedEntitlementsServer
	docs service.DocumentService
	ents service.EntitlementService
}

// New constructs a gRPC server with injected services.
func New(docs service.DocumentService, ents service.EntitlementService) *Server {
	return &Server{docs: docs, ents: ents}
}

// --- Documents ---

// Get returns a single document of the caller's care recipient.
func (s *Server) Get(ctx context.Context, req *pb.GetRequest) (*pb.GetResponse, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	id, err := uuid.FromString(req.RemoteID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad remote_id")
	}
	d, err := s.docs.Get(ctx, p.RecipientID, id)
	if err != nil {
		return nil, toStatus(err, "get")
	}
	return &pb.GetResponse{Document: convert.ToWireDocument(*d)}, nil
}

// Put stores a document. Applied is false when the stored state was already identical.
func (s *Server) Put(ctx context.Context, req *pb.PutRequest) (*pb.PutResponse, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	d, err := convert.FromWireDocument(req.Document)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad document: %v", err)
	}
	seq, applied, err := s.docs.Put(ctx, p.RecipientID, d)
	if err != nil {
		return nil, toStatus(err, "put")
	}
	return &pb.PutResponse{Seq: seq, Applied: applied}, nil
}

// Changes returns documents changed after a sequence for delta synchronization.
func (s *Server) Changes(ctx context.Context, req *pb.ChangesRequest) (*pb.ChangesResponse, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	page, err := s.docs.Changes(ctx, p.RecipientID, req.Since, int(req.Limit))
	if err != nil {
		return nil, toStatus(err, "changes")
	}
	return convert.ToWireChanges(page), nil
}

// --- Entitlements ---

// VerifyPurchase reports the recorded state of a purchase token.
func (s *Server) VerifyPurchase(ctx context.Context, req *pb.VerifyPurchaseRequest) (*pb.VerifyPurchaseResponse, error) {
	if _, ok := PrincipalFromCtx(ctx); !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	purchase, err := s.ents.Verify(ctx, req.PurchaseToken, req.ProductID, req.IdempotencyKey)
	if err != nil {
		return nil, toStatus(err, "verify purchase")
	}
	return convert.ToWirePurchase(purchase), nil
}

// toStatus maps service errors to gRPC codes. Internal failures carry no detail.
func toStatus(err error, op string) error {
	switch {
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.Aborted, op+": concurrent write")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, op+": canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, op+": deadline exceeded")
	}
	switch errs.KindOf(err) {
	case errs.Validation:
		return status.Error(codes.InvalidArgument, err.Error())
	case errs.InvalidInput:
		return status.Error(codes.InvalidArgument, op+": invalid input")
	case errs.NotFound:
		return status.Error(codes.NotFound, "not found")
	case errs.PermissionDenied:
		return status.Error(codes.PermissionDenied, "permission denied")
	case errs.Authentication:
		return status.Error(codes.Unauthenticated, "no auth")
	}
	return status.Error(codes.Internal, op+": internal")
}
