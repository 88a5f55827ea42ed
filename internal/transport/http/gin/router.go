package httpgin

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/text/language"

	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
	"github.com/kirinyoku/eventhub-checkout/internal/pricing"
	"github.com/kirinyoku/eventhub-checkout/internal/service"
	"github.com/kirinyoku/eventhub-checkout/internal/service/auth"
	"github.com/kirinyoku/eventhub-checkout/internal/service/catalog"
	"github.com/kirinyoku/eventhub-checkout/internal/service/checkout"
	"github.com/kirinyoku/eventhub-checkout/internal/service/promotion"
	"github.com/kirinyoku/eventhub-checkout/internal/service/transactions"
)

const sessionCookie = "eventhub_session"

type Config struct {
	// AllowOrigins enables credentialed CORS for these origins.
	AllowOrigins []string
	CookieSecure bool
}

var locales = language.NewMatcher([]language.Tag{
	language.Indonesian,
	language.English,
})

func NewRouter(
	svcs *service.Services,
	logger *slog.Logger,
	cfg Config,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	registerValidators()

	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS(cfg.AllowOrigins))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/auth/login", handleLogin(svcs, cfg))
	r.POST("/auth/logout", handleLogout(svcs))
	r.GET("/events/:id", handleGetEvent(svcs))

	authed := r.Group("/", SessionMiddleware(svcs.Auth))
	{
		authed.GET("/auth/me", handleMe(svcs))

		authed.POST("/events/:id/checkouts", handleStartCheckout(svcs))
		authed.GET("/checkouts/:id", handleGetCheckout(svcs))
		authed.PATCH("/checkouts/:id", handleUpdateCheckout(svcs))
		authed.POST("/checkouts/:id/promotion", handleApplyPromotion(svcs))
		authed.DELETE("/checkouts/:id/promotion", handleClearPromotion(svcs))
		authed.POST("/checkouts/:id/submit", handleSubmitCheckout(svcs))

		authed.GET("/transactions", handleListTransactions(svcs))
		authed.GET("/transactions/:id", handleGetTransaction(svcs))
		authed.POST("/transactions/:id/payment-proof", handleUploadPaymentProof(svcs))
		authed.GET("/receipts", handleListReceipts(svcs))
	}

	return r
}

// @Summary  Sign in
// @Tags     auth
// @Param    req  body      LoginRequest  true  "credentials"
// @Success  200  {object}  SessionResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  401  {object}  ErrorResponse
// @Router   /auth/login [post]
func handleLogin(svcs *service.Services, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		sess, err := svcs.Auth.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}

		setSessionCookie(c, sess, cfg.CookieSecure)
		c.JSON(http.StatusOK, SessionResponse{User: sess.User, ExpiresAt: sess.ExpiresAt})
	}
}

// @Summary  Sign out
// @Tags     auth
// @Success  204
// @Router   /auth/logout [post]
func handleLogout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Auth.Logout(c.Request.Context(), sessionID(c)); err != nil {
			respondErr(c, err)
			return
		}

		clearSessionCookie(c)
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Current user with a fresh points balance
// @Tags     auth
// @Success  200  {object}  SessionResponse
// @Failure  401  {object}  ErrorResponse
// @Router   /auth/me [get]
func handleMe(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := sessionFrom(c)

		fresh, err := svcs.Auth.Refresh(c.Request.Context(), sess)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, SessionResponse{User: fresh.User, ExpiresAt: fresh.ExpiresAt})
	}
}

// @Summary  Get event
// @Tags     events
// @Param    id   path      string  true  "Event ID"
// @Success  200  {object}  EventResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := svcs.Catalog.GetEvent(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, EventResponse{
			Event:        *e,
			DisplayPrice: pricing.Format(e.UnitPrice(), localeOf(c)),
		}, "public, max-age=30")
	}
}

// @Summary  Open a checkout for an event
// @Tags     checkouts
// @Param    id   path      string  true  "Event ID"
// @Success  201  {object}  CheckoutResponse
// @Failure  401  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/checkouts [post]
func handleStartCheckout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := sessionFrom(c)

		// points must reflect the current balance
		sess, err := svcs.Auth.Refresh(c.Request.Context(), sess)
		if err != nil {
			respondErr(c, err)
			return
		}

		co, err := svcs.Checkout.Start(c.Request.Context(), sess, c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, toCheckoutResponse(co, localeOf(c)))
	}
}

// @Summary  Get checkout
// @Tags     checkouts
// @Param    id   path      string  true  "Checkout ID"
// @Success  200  {object}  CheckoutResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /checkouts/{id} [get]
func handleGetCheckout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := sessionFrom(c)

		co, err := svcs.Checkout.Get(c.Request.Context(), sess.User.ID, c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toCheckoutResponse(co, localeOf(c)))
	}
}

// @Summary  Edit quantity, points or promo code
// @Tags     checkouts
// @Param    id   path      string                 true  "Checkout ID"
// @Param    req  body      UpdateCheckoutRequest  true  "changes"
// @Success  200  {object}  CheckoutResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "submission in progress"
// @Router   /checkouts/{id} [patch]
func handleUpdateCheckout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := sessionFrom(c)

		var req UpdateCheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		co, err := svcs.Checkout.Update(c.Request.Context(), sess.User.ID, c.Param("id"), req.changes())
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toCheckoutResponse(co, localeOf(c)))
	}
}

// @Summary  Validate and apply the promo code
// @Tags     checkouts
// @Param    id   path      string                 true   "Checkout ID"
// @Param    req  body      ApplyPromotionRequest  false  "code to apply; defaults to the form's code"
// @Success  200  {object}  CheckoutResponse
// @Failure  409  {object}  ErrorResponse           "validation in progress or code changed"
// @Failure  422  {object}  PromotionErrorResponse  "code rejected"
// @Failure  429  {object}  PromotionErrorResponse  "rate limited"
// @Failure  503  {object}  PromotionErrorResponse  "promotion service unavailable"
// @Router   /checkouts/{id}/promotion [post]
func handleApplyPromotion(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := sessionFrom(c)

		var req ApplyPromotionRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, err.Error())
			return
		}

		co, err := svcs.Checkout.ApplyPromotion(c.Request.Context(), sess, c.Param("id"), req.Code)
		switch {
		case err == nil, errors.Is(err, promotion.ErrEmptyCode):
			c.JSON(http.StatusOK, toCheckoutResponse(co, localeOf(c)))
		case co != nil:
			resp := toCheckoutResponse(co, localeOf(c))
			status, msg := errorStatus(err)
			c.JSON(status, PromotionErrorResponse{Error: msg, Checkout: &resp})
		default:
			respondErr(c, err)
		}
	}
}

// @Summary  Remove the promo code
// @Tags     checkouts
// @Param    id   path      string  true  "Checkout ID"
// @Success  200  {object}  CheckoutResponse
// @Router   /checkouts/{id}/promotion [delete]
func handleClearPromotion(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := sessionFrom(c)

		co, err := svcs.Checkout.ClearPromotion(c.Request.Context(), sess.User.ID, c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toCheckoutResponse(co, localeOf(c)))
	}
}

// @Summary  Submit the booking (idempotent)
// @Tags     checkouts
// @Param    id               path    string  true   "Checkout ID"
// @Param    Idempotency-Key  header  string  false  "replay key"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201  {object}  SubmitResponse
// @Failure  409  {object}  ErrorResponse  "busy or not enough seats"
// @Failure  502  {object}  ErrorResponse  "booking rejected"
// @Router   /checkouts/{id}/submit [post]
func handleSubmitCheckout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := sessionFrom(c)
		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))

		sub, err := svcs.Checkout.Submit(c.Request.Context(), sess, c.Param("id"), idemKey)
		if err != nil {
			respondErr(c, err)
			return
		}

		if idemKey != "" {
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, toSubmitResponse(sub, localeOf(c)))
	}
}

// @Summary  My transactions
// @Tags     transactions
// @Success  200  {array}  TransactionResponse
// @Router   /transactions [get]
func handleListTransactions(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := sessionFrom(c)

		list, err := svcs.Transactions.List(c.Request.Context(), sess.Token)
		if err != nil {
			respondErr(c, err)
			return
		}

		tag := localeOf(c)
		out := make([]TransactionResponse, 0, len(list))
		for _, st := range list {
			out = append(out, toTransactionResponse(st, tag))
		}

		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Get transaction with payment countdown
// @Tags     transactions
// @Param    id   path      string  true  "Transaction ID"
// @Success  200  {object}  TransactionResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /transactions/{id} [get]
func handleGetTransaction(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := sessionFrom(c)

		st, err := svcs.Transactions.Get(c.Request.Context(), sess.Token, c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toTransactionResponse(*st, localeOf(c)))
	}
}

// @Summary  Attach a payment proof URL
// @Tags     transactions
// @Param    id   path      string               true  "Transaction ID"
// @Param    req  body      PaymentProofRequest  true  "proof"
// @Success  200  {object}  TransactionResponse
// @Failure  409  {object}  ErrorResponse  "not waiting for payment"
// @Failure  410  {object}  ErrorResponse  "deadline passed"
// @Router   /transactions/{id}/payment-proof [post]
func handleUploadPaymentProof(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := sessionFrom(c)

		var req PaymentProofRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		st, err := svcs.Transactions.UploadPaymentProof(c.Request.Context(), sess.Token, c.Param("id"), req.PaymentProof)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toTransactionResponse(*st, localeOf(c)))
	}
}

// @Summary  My booking receipts
// @Tags     transactions
// @Param    limit   query  int  false  "page size"
// @Param    offset  query  int  false  "offset"
// @Success  200  {array}  ReceiptResponse
// @Router   /receipts [get]
func handleListReceipts(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := sessionFrom(c)

		limit := parseIntDefault(c.Query("limit"), 0)
		offset := parseIntDefault(c.Query("offset"), 0)

		rs, err := svcs.Transactions.Receipts(c.Request.Context(), sess.User.ID, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]ReceiptResponse, 0, len(rs))
		for _, rc := range rs {
			out = append(out, toReceiptResponse(rc))
		}

		c.JSON(http.StatusOK, out)
	}
}

// --- helpers ---

func localeOf(c *gin.Context) language.Tag {
	tag, _ := language.MatchStrings(locales, c.GetHeader("Accept-Language"))
	return tag
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	case errors.Is(err, eventhub.ErrUnauthorized):
		c.Set(ctxSessionRevoked, true)
		clearSessionCookie(c)
	case errors.Is(err, auth.ErrNoSession):
		clearSessionCookie(c)
	}

	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	c.JSON(status, ErrorResponse{Error: msg})
}

// errorStatus maps service errors to an HTTP status and a client message.
func errorStatus(err error) (int, string) {
	var (
		invalid   *promotion.InvalidError
		submitErr *checkout.SubmissionError
	)

	switch {
	// auth
	case errors.Is(err, auth.ErrNoSession):
		return http.StatusUnauthorized, "sign in required"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, eventhub.ErrUnauthorized):
		return http.StatusUnauthorized, "session expired, please sign in again"

	// promotion
	case errors.As(err, &invalid):
		if invalid.Reason != "" {
			return http.StatusUnprocessableEntity, invalid.Reason
		}
		return http.StatusUnprocessableEntity, "invalid promo code"
	case errors.Is(err, promotion.ErrEmptyCode):
		return http.StatusBadRequest, "promo code is empty"
	case errors.Is(err, promotion.ErrRateLimited):
		return http.StatusTooManyRequests, "too many promo code attempts, try again later"
	case errors.Is(err, promotion.ErrUnavailable):
		return http.StatusServiceUnavailable, "promotion service unavailable"

	// checkout
	case errors.Is(err, checkout.ErrEventNotFound), errors.Is(err, catalog.ErrEventNotFound):
		return http.StatusNotFound, "event not found"
	case errors.Is(err, checkout.ErrCheckoutNotFound):
		return http.StatusNotFound, "checkout not found"
	case errors.Is(err, checkout.ErrForbidden):
		return http.StatusForbidden, "checkout belongs to another user"
	case errors.Is(err, checkout.ErrBusy):
		return http.StatusConflict, "checkout is busy"
	case errors.Is(err, checkout.ErrStaleResponse):
		return http.StatusConflict, "promo code changed while it was being validated"
	case errors.Is(err, checkout.ErrInsufficientSeats):
		return http.StatusConflict, "not enough seats available"
	case errors.Is(err, checkout.ErrFreeEvent):
		return http.StatusUnprocessableEntity, "promotions do not apply to free events"
	case errors.As(err, &submitErr):
		return http.StatusBadGateway, submitErr.Error()

	// transactions
	case errors.Is(err, transactions.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction not found"
	case errors.Is(err, transactions.ErrNotAwaitingPayment):
		return http.StatusConflict, "transaction is not waiting for payment"
	case errors.Is(err, transactions.ErrPaymentDeadline):
		return http.StatusGone, "payment deadline has passed"
	case errors.Is(err, transactions.ErrInvalidProof):
		return http.StatusBadRequest, "payment proof must be an http(s) URL"

	// upstream
	case errors.Is(err, eventhub.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, eventhub.ErrUnavailable):
		return http.StatusServiceUnavailable, "EventHub is unavailable, try again later"
	}

	return http.StatusInternalServerError, "internal error"
}
