package eventhub

import (
	"encoding/json"
	"fmt"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
)

// Each endpoint has exactly one accepted response shape. Anything else is
// a ShapeError instead of a best-effort guess.

type envelope[T any] struct {
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

func decodeData[T any](endpoint string, body []byte) (*T, error) {
	var env envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
	}

	if env.Data == nil {
		return nil, &ShapeError{Endpoint: endpoint, Missing: "data"}
	}

	return env.Data, nil
}

type loginData struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func decodeLogin(body []byte) (*loginData, error) {
	const endpoint = "POST /auth/login"

	d, err := decodeData[loginData](endpoint, body)
	if err != nil {
		return nil, err
	}

	if d.Token == "" {
		return nil, &ShapeError{Endpoint: endpoint, Missing: "data.token"}
	}
	if d.User == nil || d.User.ID == "" {
		return nil, &ShapeError{Endpoint: endpoint, Missing: "data.user"}
	}

	return d, nil
}

func decodeEvent(body []byte) (*domain.Event, error) {
	const endpoint = "GET /events/:id"

	ev, err := decodeData[domain.Event](endpoint, body)
	if err != nil {
		return nil, err
	}

	if ev.ID == "" {
		return nil, &ShapeError{Endpoint: endpoint, Missing: "data.id"}
	}

	return ev, nil
}

// The profile endpoint answers with a bare user object, no envelope.
func decodeProfile(body []byte) (*domain.User, error) {
	const endpoint = "GET /users/profile"

	var u domain.User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
	}

	if u.ID == "" {
		return nil, &ShapeError{Endpoint: endpoint, Missing: "id"}
	}

	return &u, nil
}

type validationData struct {
	Valid     *bool             `json:"valid"`
	Promotion *domain.Promotion `json:"promotion"`
}

func decodePromotionValidation(body []byte) (domain.PromotionValidation, error) {
	const endpoint = "POST /promotions/validate"

	d, err := decodeData[validationData](endpoint, body)
	if err != nil {
		return domain.PromotionValidation{}, err
	}

	if d.Valid == nil {
		return domain.PromotionValidation{}, &ShapeError{Endpoint: endpoint, Missing: "data.valid"}
	}

	if !*d.Valid {
		return domain.PromotionValidation{Valid: false}, nil
	}

	if d.Promotion == nil {
		return domain.PromotionValidation{}, &ShapeError{Endpoint: endpoint, Missing: "data.promotion"}
	}

	return domain.PromotionValidation{Valid: true, Promotion: d.Promotion}, nil
}

func decodeTransaction(endpoint string, body []byte) (*domain.Transaction, error) {
	tx, err := decodeData[domain.Transaction](endpoint, body)
	if err != nil {
		return nil, err
	}

	if tx.ID == "" {
		return nil, &ShapeError{Endpoint: endpoint, Missing: "data.id"}
	}

	return tx, nil
}

type transactionPage struct {
	Data []domain.Transaction `json:"data"`
}

func decodeTransactionPage(body []byte) ([]domain.Transaction, error) {
	const endpoint = "GET /transactions/my-transactions"

	page, err := decodeData[transactionPage](endpoint, body)
	if err != nil {
		return nil, err
	}

	if page.Data == nil {
		return nil, &ShapeError{Endpoint: endpoint, Missing: "data.data"}
	}

	return page.Data, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}

	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
