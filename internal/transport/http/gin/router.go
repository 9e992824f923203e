package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/feisbook/internal/domain"
	redisrepo "github.com/kirinyoku/feisbook/internal/repository/redis"
	"github.com/kirinyoku/feisbook/internal/service"
	"github.com/kirinyoku/feisbook/internal/service/booking"
	"github.com/kirinyoku/feisbook/internal/service/catalog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const idemLockTTL = 60 * time.Second

// SandboxCheckout is the hosted page behind the sandbox gateway.
type SandboxCheckout interface {
	Pay(sessionID string) (successURL string, err error)
	Cancel(sessionID string) (cancelURL string, err error)
}

// NewRouter builds the HTTP surface. idem and sandbox are optional.
func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	sandbox SandboxCheckout,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		otelgin.Middleware("feisbook"),
		LoggingMiddleware(logger),
		RequestIDMiddleware(),
		MetricsMiddleware(),
		CORS(),
	)
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", PrometheusHandler())

	// payment returns land on the root page
	r.GET("/", handleIndex(svcs))

	r.GET("/events", handleListEvents(svcs))
	r.GET("/events/:id", handleGetEvent(svcs))

	r.POST("/drafts", handleSelectEvent(svcs))
	r.POST("/checkout", handleBeginCheckout(svcs, idem))

	// Organizer view
	r.POST("/events", handleCreateEvent(svcs))
	r.GET("/bookings", handleListBookings(svcs))

	if sandbox != nil {
		r.GET("/sandbox/checkout/:id", handleSandboxCheckout(sandbox))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Landing page and payment returns
// @Description  Without page, lists events. page=confirm records the booking for a paid session, page=cancel abandons it.
// @Param    page        query  string  false  "confirm or cancel"
// @Param    session_id  query  string  false  "gateway session id"
// @Param    event_id    query  string  false  "event id"
// @Param    name        query  string  false  "attendee name"
// @Param    email       query  string  false  "attendee email"
// @Param    options     query  string  false  "comma separated options"
// @Success  200  {object}  ConfirmationResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  402  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse
// @Failure  503  {object}  ErrorResponse
// @Router   / [get]
func handleIndex(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ret := booking.ParseReturn(c.Request.URL.Query())

		switch ret.Page {
		case booking.PageConfirm:
			conf, err := svcs.Booking.CompleteCheckout(c.Request.Context(), ret)
			if err != nil {
				respondBookingErr(c, err)
				return
			}
			c.JSON(http.StatusOK, newConfirmationResponse(conf))

		case booking.PageCancel:
			flow, err := svcs.Booking.AbandonCheckout(c.Request.Context(), ret.SessionID)
			if err != nil {
				respondBookingErr(c, err)
				return
			}
			msg := "checkout cancelled, no booking was made"
			if flow.State == domain.StateConfirmed {
				msg = "this checkout was already paid and booked"
			}
			c.JSON(http.StatusOK, AbandonResponse{State: string(flow.State), Message: msg})

		default:
			events, err := svcs.Catalog.List(c.Request.Context())
			if err != nil {
				respondErr(c, err)
				return
			}
			c.JSON(http.StatusOK, IndexResponse{
				State:   string(domain.StateBrowsing),
				Events:  events,
				Options: svcs.Booking.Options(),
			})
		}
	}
}

// @Summary  List or search events
// @Param    q     query  string  false  "matches title or location"
// @Param    date  query  string  false  "YYYY-MM-DD"
// @Param    from  query  string  false  "YYYY-MM-DD"
// @Param    to    query  string  false  "YYYY-MM-DD"
// @Success  200  {array}   domain.Event
// @Failure  400  {object}  ErrorResponse
// @Router   /events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			f  catalog.Filter
			ok bool
		)
		f.Query = strings.TrimSpace(c.Query("q"))
		if f.Date, ok = parseDateQuery(c, "date"); !ok {
			return
		}
		if f.From, ok = parseDateQuery(c, "from"); !ok {
			return
		}
		if f.To, ok = parseDateQuery(c, "to"); !ok {
			return
		}
		filtered := f.Query != "" || !f.Date.IsZero() || !f.From.IsZero() || !f.To.IsZero()

		var (
			events []domain.Event
			err    error
		)
		if filtered {
			events, err = svcs.Catalog.Search(c.Request.Context(), f)
		} else {
			events, err = svcs.Catalog.List(c.Request.Context())
		}
		if err != nil {
			respondErr(c, err)
			return
		}
		writeCachedJSON(c, events, "public, max-age=15")
	}
}

// @Summary  Get event
// @Param    id  path  string  true  "Event ID"
// @Success  200  {object}  domain.Event
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := svcs.Catalog.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeCachedJSON(c, e, "public, max-age=60")
	}
}

// @Summary  Register event
// @Param    req  body  CreateEventRequest  true  "payload"
// @Success  201  {object}  domain.Event
// @Failure  400  {object}  ErrorResponse
// @Router   /events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		e, err := svcs.Catalog.Create(c.Request.Context(), catalog.CreateInput{
			Title:    req.Title,
			Date:     req.Date,
			Location: req.Location,
			Info:     req.Info,
			Price:    req.Price,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, e)
	}
}

// @Summary  Select event
// @Description  Validates the attendee's selection and returns the amount due.
// @Param    req  body  DraftRequest  true  "payload"
// @Success  200  {object}  DraftResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /drafts [post]
func handleSelectEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DraftRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		flow, err := svcs.Booking.SelectEvent(c.Request.Context(), req.input())
		if err != nil {
			respondBookingErr(c, err)
			return
		}
		c.JSON(http.StatusOK, newDraftResponse(flow))
	}
}

// @Summary  Begin checkout (idempotent)
// @Param    req  body  DraftRequest  true  "payload"
// @Header   201  {string}  Idempotency-Key  "echo"
// @Success  201  {object}  CheckoutResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "idem in progress"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Failure  502  {object}  ErrorResponse  "payment provider error"
// @Router   /checkout [post]
func handleBeginCheckout(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DraftRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemCheckout(idemKey)

			if replayResult(c, idem, idemStorageKey, idemKey) {
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, idemLockTTL)
			if err != nil {
				// without the lock the request runs unprotected
				idemStorageKey = ""
			} else if !locked {
				if replayResult(c, idem, idemStorageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		flow, err := svcs.Booking.BeginCheckout(c.Request.Context(), req.input(), rlKey)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondBookingErr(c, err)
			return
		}

		resp := newCheckoutResponse(flow)

		if idemStorageKey != "" {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  List bookings
// @Success  200  {array}   domain.BookingRecord
// @Failure  503  {object}  ErrorResponse
// @Router   /bookings [get]
func handleListBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Booking.ListBookings(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Sandbox hosted checkout
// @Description  Pays the session and redirects to its success URL, or to its cancel URL with action=cancel.
// @Param    id      path   string  true   "session id"
// @Param    action  query  string  false  "cancel"
// @Success  303
// @Failure  404  {object}  ErrorResponse
// @Router   /sandbox/checkout/{id} [get]
func handleSandboxCheckout(sandbox SandboxCheckout) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var (
			target string
			err    error
		)
		if c.Query("action") == "cancel" {
			target, err = sandbox.Cancel(id)
		} else {
			target, err = sandbox.Pay(id)
		}
		if err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "checkout session not found"})
			return
		}
		c.Redirect(http.StatusSeeOther, target)
	}
}

// --- Helpers ---

func replayResult(c *gin.Context, idem *redisrepo.IdempotencyStore, storageKey, idemKey string) bool {
	payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey)
	if !ok {
		return false
	}
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
	return true
}

func parseDateQuery(c *gin.Context, name string) (domain.Date, bool) {
	s := strings.TrimSpace(c.Query(name))
	if s == "" {
		return domain.Date{}, true
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		badRequest(c, "invalid "+name+" (YYYY-MM-DD)")
		return domain.Date{}, false
	}
	return d, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondBookingErr(c *gin.Context, err error) {
	writeErr(c, err, string(booking.StateOf(err)))
}

func respondErr(c *gin.Context, err error) {
	writeErr(c, err, "")
}

func writeErr(c *gin.Context, err error, state string) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	_ = c.Error(err)

	var (
		bookingInvalid *booking.ValidationError
		catalogInvalid *catalog.ValidationError
		gatewayErr     *booking.GatewayError
		rateLimited    *booking.RateLimitedError
	)

	switch {
	case errors.As(err, &bookingInvalid):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid booking", State: state, Fields: bookingInvalid.Fields})
	case errors.As(err, &catalogInvalid):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid event", Fields: catalogInvalid.Fields})
	case errors.As(err, &gatewayErr):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: gatewayErr.Message, State: state})
	case errors.As(err, &rateLimited):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rateLimited.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited", State: state})

	// booking service
	case errors.Is(err, booking.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found", State: state})
	case errors.Is(err, booking.ErrIncompleteReturn):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: booking.ErrIncompleteReturn.Error(), State: state})
	case errors.Is(err, booking.ErrReturnMismatch):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: booking.ErrReturnMismatch.Error(), State: state})
	case errors.Is(err, booking.ErrPaymentIncomplete):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{Error: booking.ErrPaymentIncomplete.Error(), State: state})
	case errors.Is(err, booking.ErrConfirmationInProgress):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: booking.ErrConfirmationInProgress.Error(), State: state})
	case errors.Is(err, booking.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "temporarily unavailable, retry later", State: state})

	// catalog service
	case errors.Is(err, catalog.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, catalog.ErrEventConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event conflict"})
	case errors.Is(err, catalog.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "temporarily unavailable, retry later"})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", State: state})
	}
}
