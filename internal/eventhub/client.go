package eventhub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
)

const maxBodyBytes = 4 << 20

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the EventHub REST API. Calls that act on behalf of a user
// take the user's bearer token explicitly.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Login exchanges credentials for a bearer token and the user profile.
func (c *Client) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	const op = "eventhub.Login"

	body, err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := decodeLogin(body)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	return res.Token, res.User, nil
}

func (c *Client) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	const op = "eventhub.GetEvent"

	body, err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(id), "", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ev, err := decodeEvent(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ev, nil
}

func (c *Client) GetProfile(ctx context.Context, token string) (*domain.User, error) {
	const op = "eventhub.GetProfile"

	body, err := c.do(ctx, http.MethodGet, "/users/profile", token, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := decodeProfile(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// ValidatePromotion asks EventHub whether code applies to eventID at the
// given pre-points subtotal. A rejected code is reported as Valid=false,
// never as an error; errors mean the verdict could not be obtained.
func (c *Client) ValidatePromotion(
	ctx context.Context,
	token, code, eventID string,
	subtotal decimal.Decimal,
) (domain.PromotionValidation, error) {
	const op = "eventhub.ValidatePromotion"

	body, err := c.do(ctx, http.MethodPost, "/promotions/validate", token, map[string]any{
		"code":        code,
		"eventId":     eventID,
		"totalAmount": subtotal.InexactFloat64(),
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && isRejection(se.Code) {
			return domain.PromotionValidation{Valid: false, Message: se.Message}, nil
		}
		if errors.Is(err, ErrNotFound) {
			return domain.PromotionValidation{Valid: false, Message: "promotion not found"}, nil
		}

		return domain.PromotionValidation{}, fmt.Errorf("%s: %w", op, err)
	}

	v, err := decodePromotionValidation(body)
	if err != nil {
		return domain.PromotionValidation{}, fmt.Errorf("%s: %w", op, err)
	}

	return v, nil
}

func (c *Client) CreateBooking(ctx context.Context, token string, req domain.BookingRequest) (*domain.Transaction, error) {
	const op = "eventhub.CreateBooking"

	body, err := c.do(ctx, http.MethodPost, "/transactions", token, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := decodeTransaction("POST /transactions", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tx, nil
}

func (c *Client) MyTransactions(ctx context.Context, token string) ([]domain.Transaction, error) {
	const op = "eventhub.MyTransactions"

	body, err := c.do(ctx, http.MethodGet, "/transactions/my-transactions", token, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	txs, err := decodeTransactionPage(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return txs, nil
}

func (c *Client) GetTransaction(ctx context.Context, token, id string) (*domain.Transaction, error) {
	const op = "eventhub.GetTransaction"

	body, err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id), token, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := decodeTransaction("GET /transactions/:id", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tx, nil
}

func (c *Client) UploadPaymentProof(ctx context.Context, token, id, proof string) (*domain.Transaction, error) {
	const op = "eventhub.UploadPaymentProof"

	path := "/transactions/" + url.PathEscape(id) + "/payment-proof"
	body, err := c.do(ctx, http.MethodPost, path, token, map[string]string{"paymentProof": proof})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := decodeTransaction("POST /transactions/:id/payment-proof", body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tx, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in any) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(body)}
	}

	return body, nil
}

func isRejection(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusConflict, http.StatusGone, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
