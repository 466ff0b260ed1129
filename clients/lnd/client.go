// Package lnd is a thin gRPC client for the invoice surface of an LND node:
// hold invoices are how a Lightning node expresses an HTLC lock, so this is
// all the lightning adapter needs.
package lnd

import (
	"context"
	"fmt"
	"os"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/macaroons"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"gopkg.in/macaroon.v2"
)

// Config holds connection configuration.
type Config struct {
	Host         string
	TLSCertPath  string
	MacaroonPath string
}

// Client wraps the invoice RPCs of one LND node.
type Client struct {
	lnClient       lnrpc.LightningClient
	invoicesClient invoicesrpc.InvoicesClient
	conn           *grpc.ClientConn
}

// InvoiceState mirrors the LND invoice lifecycle.
type InvoiceState string

const (
	InvoiceOpen     InvoiceState = "OPEN"
	InvoiceAccepted InvoiceState = "ACCEPTED"
	InvoiceSettled  InvoiceState = "SETTLED"
	InvoiceCanceled InvoiceState = "CANCELED"
)

// Invoice is the subset of LND's invoice record the adapter consumes.
type Invoice struct {
	Hash           []byte
	Preimage       []byte // set once settled
	State          InvoiceState
	ValueSats      uint64
	PaymentRequest string
	CreationDate   int64 // unix seconds
	ExpirySeconds  int64
}

// NewClient dials the node with TLS and macaroon credentials.
func NewClient(cfg Config) (*Client, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("load TLS cert: %w", err)
	}

	macBytes, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("read macaroon: %w", err)
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("unmarshal macaroon: %w", err)
	}
	macCreds, err := macaroons.NewMacaroonCredential(mac)
	if err != nil {
		return nil, fmt.Errorf("macaroon credential: %w", err)
	}

	conn, err := grpc.Dial(cfg.Host,
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(macCreds),
	)
	if err != nil {
		return nil, fmt.Errorf("dial LND: %w", err)
	}

	return &Client{
		lnClient:       lnrpc.NewLightningClient(conn),
		invoicesClient: invoicesrpc.NewInvoicesClient(conn),
		conn:           conn,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// AddHoldInvoice registers a hold invoice for the payment hash and returns
// the BOLT-11 payment request the counterparty must pay to fund the lock.
func (c *Client) AddHoldInvoice(ctx context.Context, memo string, hash []byte, valueSats uint64, expirySeconds int64) (string, error) {
	resp, err := c.invoicesClient.AddHoldInvoice(ctx, &invoicesrpc.AddHoldInvoiceRequest{
		Memo:   memo,
		Hash:   hash,
		Value:  int64(valueSats),
		Expiry: expirySeconds,
	})
	if err != nil {
		return "", fmt.Errorf("add hold invoice: %w", err)
	}
	return resp.PaymentRequest, nil
}

// SettleInvoice releases a held invoice's funds by revealing the preimage.
func (c *Client) SettleInvoice(ctx context.Context, preimage []byte) error {
	if _, err := c.invoicesClient.SettleInvoice(ctx, &invoicesrpc.SettleInvoiceMsg{
		Preimage: preimage,
	}); err != nil {
		return fmt.Errorf("settle invoice: %w", err)
	}
	return nil
}

// CancelInvoice returns a held invoice's funds to the payer.
func (c *Client) CancelInvoice(ctx context.Context, hash []byte) error {
	if _, err := c.invoicesClient.CancelInvoice(ctx, &invoicesrpc.CancelInvoiceMsg{
		PaymentHash: hash,
	}); err != nil {
		return fmt.Errorf("cancel invoice: %w", err)
	}
	return nil
}

// LookupInvoice fetches one invoice by payment hash.
func (c *Client) LookupInvoice(ctx context.Context, hash []byte) (*Invoice, error) {
	inv, err := c.lnClient.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: hash})
	if err != nil {
		return nil, fmt.Errorf("lookup invoice: %w", err)
	}
	return mapInvoice(inv), nil
}

// SubscribeSingleInvoice streams state changes of one invoice. The stream
// ends when the context is canceled or the node drops it; an error on the
// second channel means the caller should resubscribe.
func (c *Client) SubscribeSingleInvoice(ctx context.Context, hash []byte) (<-chan *Invoice, <-chan error, error) {
	stream, err := c.invoicesClient.SubscribeSingleInvoice(ctx, &invoicesrpc.SubscribeSingleInvoiceRequest{
		RHash: hash,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe invoice: %w", err)
	}

	updates := make(chan *Invoice)
	errs := make(chan error, 1)
	go func() {
		defer close(updates)
		for {
			inv, err := stream.Recv()
			if err != nil {
				errs <- err
				return
			}
			select {
			case updates <- mapInvoice(inv):
			case <-ctx.Done():
				return
			}
		}
	}()
	return updates, errs, nil
}

func mapInvoice(inv *lnrpc.Invoice) *Invoice {
	var state InvoiceState
	switch inv.State {
	case lnrpc.Invoice_OPEN:
		state = InvoiceOpen
	case lnrpc.Invoice_ACCEPTED:
		state = InvoiceAccepted
	case lnrpc.Invoice_SETTLED:
		state = InvoiceSettled
	case lnrpc.Invoice_CANCELED:
		state = InvoiceCanceled
	}
	return &Invoice{
		Hash:           inv.RHash,
		Preimage:       inv.RPreimage,
		State:          state,
		ValueSats:      uint64(inv.Value),
		PaymentRequest: inv.PaymentRequest,
		CreationDate:   inv.CreationDate,
		ExpirySeconds:  inv.Expiry,
	}
}
