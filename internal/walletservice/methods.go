package walletservice

import (
	"context"
	"time"
)

// PayInvoice pays a BOLT-11 invoice. amountMsat is only needed for
// zero-amount invoices; pass 0 to omit it.
func (s *Service) PayInvoice(ctx context.Context, invoice string, amountMsat int64) (*PayResult, error) {
	params := struct {
		Invoice string `json:"invoice"`
		Amount  int64  `json:"amount,omitempty"`
	}{invoice, amountMsat}
	var res PayResult
	if _, err := s.call(ctx, MethodPayInvoice, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PayKeysend sends a spontaneous payment to a node.
func (s *Service) PayKeysend(ctx context.Context, p KeysendParams) (*PayResult, error) {
	var res PayResult
	if _, err := s.call(ctx, MethodPayKeysend, p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// MakeInvoice asks the wallet to create an invoice.
func (s *Service) MakeInvoice(ctx context.Context, p MakeInvoiceParams) (*Transaction, error) {
	var res Transaction
	if _, err := s.call(ctx, MethodMakeInvoice, p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LookupInvoice fetches an invoice by payment hash or invoice string.
func (s *Service) LookupInvoice(ctx context.Context, p LookupInvoiceParams) (*Transaction, error) {
	var res Transaction
	if _, err := s.call(ctx, MethodLookupInvoice, p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListTransactions returns invoices and payments matching p.
func (s *Service) ListTransactions(ctx context.Context, p ListTransactionsParams) ([]Transaction, error) {
	var res struct {
		Transactions []Transaction `json:"transactions"`
	}
	if _, err := s.call(ctx, MethodListTransactions, p, &res); err != nil {
		return nil, err
	}
	return res.Transactions, nil
}

// GetBalance returns the wallet balance and records it in the connection state.
func (s *Service) GetBalance(ctx context.Context) (*Balance, error) {
	var res Balance
	sess, err := s.call(ctx, MethodGetBalance, nil, &res)
	if err != nil {
		return nil, err
	}
	s.updateState(sess, func(st *ConnectionState) {
		b := res.Balance
		st.Balance = &b
	})
	return &res, nil
}

// GetInfo returns wallet information and records its method list as the
// capability set.
func (s *Service) GetInfo(ctx context.Context) (*Info, error) {
	return s.getInfo(ctx, s.cfg.RequestTimeout)
}

func (s *Service) getInfo(ctx context.Context, timeout time.Duration) (*Info, error) {
	var res Info
	sess, err := s.callWithTimeout(ctx, MethodGetInfo, nil, &res, timeout)
	if err != nil {
		return nil, err
	}
	s.updateState(sess, func(st *ConnectionState) {
		if len(res.Methods) > 0 {
			st.Capabilities = res.Methods
		}
		if len(res.Notifications) > 0 {
			st.NotificationTypes = res.Notifications
		}
	})
	return &res, nil
}
