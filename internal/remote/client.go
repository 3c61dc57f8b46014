// Package remote is the device-side gRPC client of the CareNote server. It
// implements the sync engine's RemoteStore and the verifier's Authority.
package remote

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/kazu-apps/carenote-sync/internal/convert"
	"github.com/kazu-apps/carenote-sync/internal/entitlement"
	"github.com/kazu-apps/carenote-sync/internal/errs"
	"github.com/kazu-apps/carenote-sync/internal/model"
	pb "github.com/kazu-apps/carenote-sync/internal/rpc/carenotev1"
	"github.com/kazu-apps/carenote-sync/internal/syncengine"
)

var (
	_ syncengine.RemoteStore = (*Client)(nil)
	_ entitlement.Authority  = (*Client)(nil)
)

// Config describes how to reach the server.
type Config struct {
	Addr      string
	Token     string
	CACert    string  // PEM file; empty uses the system roots
	Plaintext bool    // no TLS, for local development only
	RateLimit float64 // calls per second, 0 disables limiting
	Burst     int
}

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string) (credentials.TransportCredentials, error) {
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}), nil
}

// Client calls the Documents and Entitlements services.
type Client struct {
	cc   *grpc.ClientConn
	docs pb.DocumentsClient
	ents pb.EntitlementsClient
	lim  *rate.Limiter
}

// Dial connects to cfg.Addr. Extra options are appended after the defaults.
func Dial(cfg Config, extra ...grpc.DialOption) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("remote: empty address")
	}
	var opts []grpc.DialOption
	if cfg.Plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		creds, err := loadTLS(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("remote: tls: %w", err)
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	}
	if cfg.Token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: cfg.Token, secure: !cfg.Plaintext}))
	}
	cc, err := grpc.NewClient(cfg.Addr, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("remote: dial: %w", err)
	}
	c := NewFromConn(cc, newLimiter(cfg.RateLimit, cfg.Burst))
	c.cc = cc
	return c, nil
}

// NewFromConn builds a client on an existing connection. lim may be nil.
func NewFromConn(cc grpc.ClientConnInterface, lim *rate.Limiter) *Client {
	return &Client{docs: pb.NewDocumentsClient(cc), ents: pb.NewEntitlementsClient(cc), lim: lim}
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Close releases the connection opened by Dial.
func (c *Client) Close() error {
	if c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) wait(ctx context.Context, op string) error {
	if c.lim == nil {
		return nil
	}
	if err := c.lim.Wait(ctx); err != nil {
		return errs.E(errs.Transient, op, err)
	}
	return nil
}

// Get returns one document.
func (c *Client) Get(ctx context.Context, remoteID uuid.UUID) (*model.Document, error) {
	const op = "remote get"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	resp, err := c.docs.Get(ctx, &pb.GetRequest{RemoteID: remoteID.String()})
	if err != nil {
		return nil, mapError(op, err)
	}
	d, err := convert.FromWireDocument(resp.Document)
	if err != nil {
		return nil, errs.E(errs.Validation, op, err)
	}
	return &d, nil
}

// Put stores d and returns its change sequence.
func (c *Client) Put(ctx context.Context, d model.Document) (int64, error) {
	const op = "remote put"
	if err := c.wait(ctx, op); err != nil {
		return 0, err
	}
	resp, err := c.docs.Put(ctx, &pb.PutRequest{Document: convert.ToWireDocument(d)})
	if err != nil {
		return 0, mapError(op, err)
	}
	return resp.Seq, nil
}

// ChangedSince returns one page of documents after since.
func (c *Client) ChangedSince(ctx context.Context, since int64, limit int) (model.ChangePage, error) {
	const op = "remote changes"
	if err := c.wait(ctx, op); err != nil {
		return model.ChangePage{}, err
	}
	resp, err := c.docs.Changes(ctx, &pb.ChangesRequest{Since: since, Limit: int32(limit)})
	if err != nil {
		return model.ChangePage{}, mapError(op, err)
	}
	page, err := convert.FromWireChanges(resp)
	if err != nil {
		return model.ChangePage{}, errs.E(errs.Validation, op, err)
	}
	return page, nil
}

// Verify asks the server for the state of a purchase token.
func (c *Client) Verify(ctx context.Context, token, productID, idempotencyKey string) (model.Purchase, error) {
	const op = "remote verify"
	if err := c.wait(ctx, op); err != nil {
		return model.Purchase{}, err
	}
	resp, err := c.ents.VerifyPurchase(ctx, &pb.VerifyPurchaseRequest{
		PurchaseToken:  token,
		ProductID:      productID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return model.Purchase{}, mapError(op, err)
	}
	return convert.FromWirePurchase(resp), nil
}

// mapError turns a gRPC status into the error taxonomy. Unrecognized codes
// are Transient. The status message is not kept.
func mapError(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return errs.E(errs.Transient, op, err)
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return errs.E(errs.Authentication, op, errs.ErrUnauthorized)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return errs.E(errs.Validation, op, nil)
	case codes.NotFound:
		return errs.E(errs.NotFound, op, errs.ErrNotFound)
	case codes.PermissionDenied:
		return errs.E(errs.PermissionDenied, op, nil)
	case codes.Canceled:
		return errs.E(errs.Transient, op, context.Canceled)
	case codes.DeadlineExceeded:
		return errs.E(errs.Transient, op, context.DeadlineExceeded)
	default:
		return errs.E(errs.Transient, op, errors.New(st.Code().String()))
	}
}
